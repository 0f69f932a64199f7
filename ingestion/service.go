package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/clearclaim/claim-agent/search"
)

type Service struct {
	store  search.Store
	logger *log.Logger
}

func NewService(store search.Store, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{store: store, logger: logger}
}

// IngestDirectory walks dir and indexes every supported policy
// document. Per-file failures are logged and skipped so one corrupt
// document does not abort the batch.
func (s *Service) IngestDirectory(ctx context.Context, dir string) error {
	if s.store == nil {
		return fmt.Errorf("search store not configured")
	}

	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("data directory: %w", err)
	}

	entries := make([]string, 0)
	if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if DetectFormat(path) != FormatUnknown {
			entries = append(entries, path)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("walk data directory: %w", err)
	}

	if len(entries) == 0 {
		s.logger.Printf("no policy documents found in %s", dir)
		return nil
	}

	for _, path := range entries {
		if err := s.ingestFile(ctx, dir, path); err != nil {
			s.logger.Printf("ingest failed for %s: %v", path, err)
		}
	}

	return nil
}

func (s *Service) ingestFile(ctx context.Context, root, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	name, relErr := filepath.Rel(root, path)
	if relErr != nil {
		name = path
	}
	name = filepath.ToSlash(name)

	chunks, err := ParseDocument(DetectFormat(path), data)
	if err != nil {
		return fmt.Errorf("parse document: %w", err)
	}
	if len(chunks) == 0 {
		s.logger.Printf("skip empty document %s", path)
		return nil
	}

	hash := sha256.Sum256(data)

	if err := s.store.Index(ctx, search.Document{
		Name:   name,
		SHA:    hex.EncodeToString(hash[:]),
		Chunks: chunks,
	}); err != nil {
		return fmt.Errorf("index document: %w", err)
	}

	s.logger.Printf("ingested %s (%d chunks)", name, len(chunks))
	return nil
}
