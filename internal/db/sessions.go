package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/raphaelgruber/podsearch/internal/models"
)

// GetSession loads a session and all of its messages in order.
func (c *Client) GetSession(ctx context.Context, id string) (*models.Session, error) {
	var s models.Session
	var created, updated string
	err := c.db.QueryRowContext(ctx, `
		SELECT id, episode_id, created_at, updated_at FROM chat_sessions WHERE id = ?`, id).
		Scan(&s.ID, &s.EpisodeID, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	s.CreatedAt = parseTime(created)
	s.UpdatedAt = parseTime(updated)

	rows, err := c.db.QueryContext(ctx, `
		SELECT role, content, created_at FROM chat_messages
		WHERE session_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("get messages %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Message
		var at string
		if err := rows.Scan(&m.Role, &m.Content, &at); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = parseTime(at)
		s.Messages = append(s.Messages, m)
	}
	return &s, rows.Err()
}

// SaveSession writes the session row and replaces its messages in one transaction.
func (c *Client) SaveSession(ctx context.Context, s *models.Session) error {
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save session: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_sessions (id, episode_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			episode_id = excluded.episode_id,
			updated_at = excluded.updated_at`,
		s.ID, s.EpisodeID, formatTime(s.CreatedAt), formatTime(s.UpdatedAt))
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, wrapQueryError(err))
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = ?`, s.ID); err != nil {
		return fmt.Errorf("clear messages %s: %w", s.ID, err)
	}
	for _, m := range s.Messages {
		at := m.CreatedAt
		if at.IsZero() {
			at = now
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chat_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			s.ID, m.Role, m.Content, formatTime(at)); err != nil {
			return fmt.Errorf("insert message %s: %w", s.ID, wrapQueryError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit session %s: %w", s.ID, err)
	}
	return nil
}

// DeleteSession removes a session and its messages.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return nil
}
