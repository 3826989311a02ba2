package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Activity is a generated activity persisted for its owner.
type Activity struct {
	ID             int64  `json:"id"`
	IdempotencyKey string `json:"idempotency_key"`
	RunID          string `json:"run_id"`
	Owner          string `json:"owner,omitempty"`
	Title          string `json:"title"`
	Kind           string `json:"kind,omitempty"`
	Theme          string `json:"theme,omitempty"`
	Grade          string `json:"grade,omitempty"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// ActivityFilter narrows ListActivities. Empty fields match everything.
type ActivityFilter struct {
	Owner string
	// Theme matches case-insensitively against theme and title.
	Theme string
	Limit int
}

// UpsertActivities writes activities in one transaction. Rows are keyed by
// IdempotencyKey, so writing the same key again updates instead of
// duplicating. It returns the number of rows written.
func (s *Store) UpsertActivities(ctx context.Context, activities []Activity) (int, error) {
	if len(activities) == 0 {
		return 0, nil
	}
	now := s.timestamp()
	err := s.inTx(ctx, "upsert activities", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO activities(idempotency_key, run_id, owner, title, kind, theme, grade, content, created_at, updated_at)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(idempotency_key) DO UPDATE SET
				title=excluded.title,
				kind=excluded.kind,
				theme=excluded.theme,
				grade=excluded.grade,
				content=excluded.content,
				updated_at=excluded.updated_at`)
		if err != nil {
			return fmt.Errorf("prepare upsert activity: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, a := range activities {
			if strings.TrimSpace(a.IdempotencyKey) == "" {
				return fmt.Errorf("activity %q has no idempotency key", a.Title)
			}
			if _, err := stmt.ExecContext(ctx, a.IdempotencyKey, a.RunID, a.Owner, a.Title, a.Kind, a.Theme, a.Grade,
				a.Content, now, now); err != nil {
				return fmt.Errorf("upsert activity %q: %w", a.IdempotencyKey, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(activities), nil
}

// ListActivities returns stored activities, newest first.
func (s *Store) ListActivities(ctx context.Context, f ActivityFilter) ([]Activity, error) {
	var (
		where []string
		args  []any
	)
	if f.Owner != "" {
		where = append(where, "owner = ?")
		args = append(args, f.Owner)
	}
	if f.Theme != "" {
		where = append(where, "(lower(theme) LIKE ? OR lower(title) LIKE ?)")
		pattern := "%" + strings.ToLower(f.Theme) + "%"
		args = append(args, pattern, pattern)
	}
	query := `SELECT id, idempotency_key, run_id, owner, title, kind, theme, grade, content, created_at, updated_at FROM activities`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Activity
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.IdempotencyKey, &a.RunID, &a.Owner, &a.Title, &a.Kind, &a.Theme, &a.Grade,
			&a.Content, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountActivities counts the activities of owner, or all when owner is empty.
func (s *Store) CountActivities(ctx context.Context, owner string) (int, error) {
	query := `SELECT COUNT(*) FROM activities`
	var args []any
	if owner != "" {
		query += ` WHERE owner = ?`
		args = append(args, owner)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count activities: %w", err)
	}
	return n, nil
}
