package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/clearclaim/claim-agent/embeddings"
)

type PostgresStore struct {
	pool     *pgxpool.Pool
	embedder embeddings.Embedder
}

func NewPostgresStore(pool *pgxpool.Pool, embedder embeddings.Embedder) *PostgresStore {
	return &PostgresStore{pool: pool, embedder: embedder}
}

func (s *PostgresStore) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("postgres pool is nil")
	}
	if limit <= 0 {
		limit = 10
	}

	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vectors")
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	probes := limit * 10
	if probes < 10 {
		probes = 10
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf("SET ivfflat.probes = %d", probes)); err != nil {
		return nil, fmt.Errorf("set ivfflat probes: %w", err)
	}

	rows, err := conn.Query(ctx, `
        SELECT
            cc.content,
            cd.name,
            cc.page,
            (cc.embedding <-> $1::vector) AS distance
        FROM claim_chunks cc
        JOIN claim_documents cd ON cd.id = cc.document_id
        ORDER BY cc.embedding <-> $1::vector
        LIMIT $2
    `, pgvector.NewVector(vectors[0]), limit)
	if err != nil {
		return nil, fmt.Errorf("query similar chunks: %w", err)
	}
	defer rows.Close()

	results := make([]Result, 0)
	for rows.Next() {
		var item Result
		var distance float64
		if scanErr := rows.Scan(&item.Text, &item.Document, &item.Page, &distance); scanErr != nil {
			return nil, fmt.Errorf("scan similar chunk: %w", scanErr)
		}
		item.Score = 1 / (1 + distance)
		results = append(results, item)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return results, nil
}

func (s *PostgresStore) Index(ctx context.Context, doc Document) (err error) {
	if len(doc.Chunks) == 0 {
		return nil
	}

	texts := make([]string, len(doc.Chunks))
	for i, chunk := range doc.Chunks {
		texts[i] = chunk.Text
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(doc.Chunks) {
		return fmt.Errorf("embedding count mismatch: have %d chunks, %d embeddings", len(doc.Chunks), len(vectors))
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	docID, changed, err := upsertDocument(ctx, tx, doc.Name, doc.SHA)
	if err != nil {
		return err
	}

	if !changed {
		return tx.Commit(ctx)
	}

	if _, err = tx.Exec(ctx, "DELETE FROM claim_chunks WHERE document_id = $1", docID); err != nil {
		return fmt.Errorf("clear existing chunks: %w", err)
	}

	for i, chunk := range doc.Chunks {
		vec := pgvector.NewVector(vectors[i])
		if _, err = tx.Exec(ctx, `
			INSERT INTO claim_chunks (id, document_id, chunk_index, page, content, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
		`, uuid.New(), docID, chunk.Index, chunk.Page, chunk.Text, vec); err != nil {
			return fmt.Errorf("insert chunk %d: %w", chunk.Index, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "TRUNCATE claim_chunks, claim_documents"); err != nil {
		return fmt.Errorf("truncate claim tables: %w", err)
	}
	return nil
}

func upsertDocument(ctx context.Context, tx pgx.Tx, name, sha string) (uuid.UUID, bool, error) {
	var (
		docID        uuid.UUID
		existingHash string
	)

	err := tx.QueryRow(ctx, "SELECT id, sha256 FROM claim_documents WHERE name = $1", name).Scan(&docID, &existingHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			newID := uuid.New()
			_, execErr := tx.Exec(ctx, `
				INSERT INTO claim_documents (id, name, sha256, created_at, updated_at)
				VALUES ($1, $2, $3, NOW(), NOW())
			`, newID, name, sha)
			if execErr != nil {
				return uuid.Nil, false, fmt.Errorf("insert document: %w", execErr)
			}
			return newID, true, nil
		}
		return uuid.Nil, false, fmt.Errorf("query document: %w", err)
	}

	if existingHash == sha {
		return docID, false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE claim_documents
		SET sha256 = $2,
		    updated_at = NOW()
		WHERE id = $1
	`, docID, sha); err != nil {
		return uuid.Nil, false, fmt.Errorf("update document: %w", err)
	}

	return docID, true, nil
}

var _ Store = (*PostgresStore)(nil)
