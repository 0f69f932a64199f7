// Package history persists chat sessions and the user/assistant
// message pairs produced by completed pipeline runs. It is a pure side
// effect: the pipeline never reads it back.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrSessionNotFound = errors.New("chat session not found")

type Session struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Message struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	Type      string          `json:"message_type"`
	Content   string          `json:"content"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ExchangeMetadata is the blob stored with the assistant message of a
// completed run.
type ExchangeMetadata struct {
	Decision         string  `json:"decision"`
	ConfidenceScore  float64 `json:"confidence_score"`
	ProcessingTimeMs int64   `json:"processing_time_ms"`
	SourcesCount     int     `json:"sources_count"`
	AgentStepsCount  int     `json:"agent_steps_count"`
}

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateSession(ctx context.Context, name string) (Session, error) {
	session := Session{ID: uuid.New(), Name: name}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO chat_sessions (id, name, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		RETURNING created_at, updated_at
	`, session.ID, name).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("insert chat session: %w", err)
	}
	return session, nil
}

func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, created_at, updated_at
		FROM chat_sessions
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query chat sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]Session, 0)
	for rows.Next() {
		var session Session
		if err := rows.Scan(&session.ID, &session.Name, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *Store) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	var session Session
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, created_at, updated_at
		FROM chat_sessions
		WHERE id = $1
	`, id).Scan(&session.ID, &session.Name, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("query chat session: %w", err)
	}
	return session, nil
}

func (s *Store) Messages(ctx context.Context, sessionID uuid.UUID) ([]Message, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, message_type, content, metadata, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query chat messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var message Message
		if err := rows.Scan(&message.ID, &message.SessionID, &message.Type, &message.Content, &message.Metadata, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}

func (s *Store) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM chat_sessions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete chat session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// SaveExchange records the user query and the composed justification
// for a completed run, and bumps the session timestamp. It runs in one
// transaction so a session never holds half an exchange.
func (s *Store) SaveExchange(ctx context.Context, sessionID uuid.UUID, query, justification string, meta ExchangeMetadata) (err error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}

	encoded, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal exchange metadata: %w", err)
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

	if _, err = tx.Exec(ctx, `
		INSERT INTO chat_messages (id, session_id, message_type, content, created_at)
		VALUES ($1, $2, 'user', $3, NOW())
	`, uuid.New(), sessionID, query); err != nil {
		return fmt.Errorf("insert user message: %w", err)
	}

	if _, err = tx.Exec(ctx, `
		INSERT INTO chat_messages (id, session_id, message_type, content, metadata, created_at)
		VALUES ($1, $2, 'assistant', $3, $4, NOW())
	`, uuid.New(), sessionID, justification, encoded); err != nil {
		return fmt.Errorf("insert assistant message: %w", err)
	}

	if _, err = tx.Exec(ctx, "UPDATE chat_sessions SET updated_at = NOW() WHERE id = $1", sessionID); err != nil {
		return fmt.Errorf("update session timestamp: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
