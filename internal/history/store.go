package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists usage records to Postgres. A nil pool turns every method
// into a no-op so the engine runs without a database.
type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Insert writes one usage record. Failures are returned, not fatal; the
// caller decides whether accounting loss matters.
func (s *Store) Insert(ctx context.Context, r Record) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO usage_log (request_id, request_type, provider, model, status,
		                       prompt_preview, tokens, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, r.RequestID, r.Type, r.Provider, r.Model, r.Status,
		r.PromptPreview, r.Tokens, r.Duration.Milliseconds(), r.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// Recent loads the newest n records from the usage log.
func (s *Store) Recent(ctx context.Context, n int) ([]Record, error) {
	if s.db == nil {
		return nil, nil
	}
	if n <= 0 {
		n = 100
	}
	rows, err := s.db.Query(ctx, `
		SELECT request_id, request_type, provider, model, status,
		       prompt_preview, tokens, duration_ms, created_at
		FROM usage_log
		ORDER BY created_at DESC
		LIMIT $1
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query usage_log: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var durationMS int64
		if err := rows.Scan(&r.RequestID, &r.Type, &r.Provider, &r.Model, &r.Status,
			&r.PromptPreview, &r.Tokens, &durationMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan usage record: %w", err)
		}
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// TokensSince sums tokens consumed per provider since the given time.
func (s *Store) TokensSince(ctx context.Context, since time.Time) (map[string]int64, error) {
	if s.db == nil {
		return nil, nil
	}
	rows, err := s.db.Query(ctx, `
		SELECT provider, COALESCE(SUM(tokens), 0)
		FROM usage_log
		WHERE created_at >= $1
		GROUP BY provider
	`, since)
	if err != nil {
		return nil, fmt.Errorf("query token usage: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var provider string
		var tokens int64
		if err := rows.Scan(&provider, &tokens); err != nil {
			return nil, fmt.Errorf("scan token usage: %w", err)
		}
		out[provider] = tokens
	}
	return out, rows.Err()
}
