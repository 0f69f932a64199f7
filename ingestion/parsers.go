package ingestion

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/clearclaim/claim-agent/search"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// ParseDocument turns raw file bytes into indexable chunks. PDF chunks
// carry their page number; text formats have no page structure.
func ParseDocument(format DocumentFormat, data []byte) ([]search.Chunk, error) {
	switch format {
	case FormatMarkdown, FormatText:
		return parseText(data), nil
	case FormatPDF:
		return parsePDF(data)
	default:
		return nil, fmt.Errorf("unsupported document format %q", format)
	}
}

func parseText(data []byte) []search.Chunk {
	pieces := ChunkText(string(data), defaultChunkSize, defaultChunkOverlap)
	chunks := make([]search.Chunk, 0, len(pieces))
	for i, text := range pieces {
		chunks = append(chunks, search.Chunk{Index: i, Text: text})
	}
	return chunks
}

func parsePDF(data []byte) ([]search.Chunk, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	chunks := make([]search.Chunk, 0)
	index := 0
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extract pdf page %d: %w", pageNum, err)
		}

		for _, piece := range ChunkText(text, defaultChunkSize, defaultChunkOverlap) {
			p := pageNum
			chunks = append(chunks, search.Chunk{Index: index, Text: piece, Page: &p})
			index++
		}
	}

	return chunks, nil
}

// ChunkText splits content on paragraph boundaries into chunks of
// roughly target bytes, carrying the last paragraph over as overlap.
func ChunkText(content string, target, overlap int) []string {
	clean := strings.ReplaceAll(content, "\r\n", "\n")
	paragraphs := strings.Split(clean, "\n\n")
	chunks := make([]string, 0)
	current := make([]string, 0)
	currentLen := 0

	for _, paragraph := range paragraphs {
		p := strings.TrimSpace(paragraph)
		if p == "" {
			continue
		}

		paragraphLen := len(p)
		if currentLen+paragraphLen > target && len(current) > 0 {
			chunks = append(chunks, strings.Join(current, "\n\n"))
			if overlap > 0 {
				last := current[len(current)-1]
				current = []string{last}
				currentLen = len(last)
			} else {
				current = current[:0]
				currentLen = 0
			}
		}

		current = append(current, p)
		currentLen += paragraphLen
	}

	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, "\n\n"))
	}

	return chunks
}
