package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxQuerier implements Querier on a pgx connection pool. The users
// and messages tables come from the embedded migrations.
type PgxQuerier struct {
	pool *pgxpool.Pool
}

// NewPgxQuerier wraps a connection pool.
func NewPgxQuerier(pool *pgxpool.Pool) *PgxQuerier {
	return &PgxQuerier{pool: pool}
}

// UpsertUser inserts the user if absent, defaulting the display name
// to the username, and returns the stored record.
func (q *PgxQuerier) UpsertUser(ctx context.Context, username string, now time.Time) (User, error) {
	var user User
	err := q.pool.QueryRow(ctx, `
		INSERT INTO users (username, name, created_at, last_active)
		VALUES ($1, $1, $2, $2)
		ON CONFLICT (username) DO UPDATE SET last_active = EXCLUDED.last_active
		RETURNING username, name, created_at, last_active`,
		username, now).Scan(&user.Username, &user.Name, &user.CreatedAt, &user.LastActive)
	return user, err
}

// GetUser fetches a user by name.
func (q *PgxQuerier) GetUser(ctx context.Context, username string) (User, error) {
	var user User
	err := q.pool.QueryRow(ctx, `
		SELECT username, name, created_at, last_active
		FROM users
		WHERE username = $1`,
		username).Scan(&user.Username, &user.Name, &user.CreatedAt, &user.LastActive)
	return user, err
}

// TouchUser refreshes the user's last-active time.
func (q *PgxQuerier) TouchUser(ctx context.Context, username string, now time.Time) error {
	_, err := q.pool.Exec(ctx,
		"UPDATE users SET last_active = $2 WHERE username = $1",
		username, now)
	return err
}

// InsertMessage stores one message.
func (q *PgxQuerier) InsertMessage(ctx context.Context, msg Message) error {
	_, err := q.pool.Exec(ctx, `
		INSERT INTO messages (id, username, role, content, sources, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.Username, msg.Role, msg.Content, msg.Sources, msg.CreatedAt)
	return err
}

// ListMessages returns the user's messages in ascending chronological
// order. limit <= 0 disables the limit.
func (q *PgxQuerier) ListMessages(ctx context.Context, username string, limit, skip int32) ([]Message, error) {
	query := `
		SELECT id, username, role, content, sources, created_at
		FROM messages
		WHERE username = $1
		ORDER BY created_at ASC
		OFFSET $2`
	args := []any{username, skip}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}

	rows, err := q.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// ListMessagesSince returns the user's messages created at or after
// since, in ascending order.
func (q *PgxQuerier) ListMessagesSince(ctx context.Context, username string, since time.Time) ([]Message, error) {
	rows, err := q.pool.Query(ctx, `
		SELECT id, username, role, content, sources, created_at
		FROM messages
		WHERE username = $1 AND created_at >= $2
		ORDER BY created_at ASC`,
		username, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanMessages(rows rowScanner) ([]Message, error) {
	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Username, &m.Role, &m.Content, &m.Sources, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// DeleteMessages removes all of the user's messages and reports the
// count.
func (q *PgxQuerier) DeleteMessages(ctx context.Context, username string) (int64, error) {
	tag, err := q.pool.Exec(ctx, "DELETE FROM messages WHERE username = $1", username)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MessageStats aggregates total and per-role message counts and
// first/last timestamps. A user with no messages yields zero-value
// times.
func (q *PgxQuerier) MessageStats(ctx context.Context, username string) (UserStats, error) {
	stats := UserStats{Username: username}
	var first, last *time.Time
	err := q.pool.QueryRow(ctx, `
		SELECT count(*),
		       count(*) FILTER (WHERE role = 'user'),
		       count(*) FILTER (WHERE role = 'assistant'),
		       min(created_at), max(created_at)
		FROM messages
		WHERE username = $1`,
		username).Scan(&stats.MessageCount, &stats.UserMessages, &stats.AssistantMessages, &first, &last)
	if err != nil {
		return UserStats{}, err
	}
	if first != nil {
		stats.FirstMessage = *first
	}
	if last != nil {
		stats.LastMessage = *last
	}
	return stats, nil
}
