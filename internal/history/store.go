// Package history persists per-user conversation transcripts in
// PostgreSQL. Conversation state is keyed by username; message IDs are
// server-generated UUIDs.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUnsupportedFormat is returned by Export for formats other than
// json and txt.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// User is a chat participant. Name is a display name and defaults to
// the username on first contact.
type User struct {
	Username   string    `json:"username"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// Message is one stored conversation turn. Sources lists the document
// paths that grounded an assistant reply; user turns carry none.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Sources   []string  `json:"sources,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// UserStats summarizes a user's stored conversation.
type UserStats struct {
	Username          string    `json:"username"`
	MessageCount      int64     `json:"message_count"`
	UserMessages      int64     `json:"user_messages"`
	AssistantMessages int64     `json:"assistant_messages"`
	FirstMessage      time.Time `json:"first_message,omitzero"`
	LastMessage       time.Time `json:"last_message,omitzero"`
}

// Querier defines the database operations the store needs. Defined by
// the consumer so tests can substitute a stub.
type Querier interface {
	UpsertUser(ctx context.Context, username string, now time.Time) (User, error)
	GetUser(ctx context.Context, username string) (User, error)
	TouchUser(ctx context.Context, username string, now time.Time) error
	InsertMessage(ctx context.Context, msg Message) error
	ListMessages(ctx context.Context, username string, limit, skip int32) ([]Message, error)
	ListMessagesSince(ctx context.Context, username string, since time.Time) ([]Message, error)
	DeleteMessages(ctx context.Context, username string) (int64, error)
	MessageStats(ctx context.Context, username string) (UserStats, error)
}

// Store is the conversation history client.
type Store struct {
	querier Querier
	logger  *slog.Logger
}

// New creates a Store.
func New(querier Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{querier: querier, logger: logger}
}

// UpsertUser creates the user if absent and returns the record either
// way.
func (s *Store) UpsertUser(ctx context.Context, username string) (User, error) {
	user, err := s.querier.UpsertUser(ctx, username, time.Now().UTC())
	if err != nil {
		return User{}, fmt.Errorf("upserting user %q: %w", username, err)
	}
	return user, nil
}

// GetUser fetches a user record.
func (s *Store) GetUser(ctx context.Context, username string) (User, error) {
	user, err := s.querier.GetUser(ctx, username)
	if err != nil {
		return User{}, fmt.Errorf("getting user %q: %w", username, err)
	}
	return user, nil
}

// SaveMessage stores one turn and refreshes the user's last-active
// time. sources may be nil for user turns. Returns the generated
// message ID.
func (s *Store) SaveMessage(ctx context.Context, username, role, content string, sources []string) (uuid.UUID, error) {
	now := time.Now().UTC()
	msg := Message{
		ID:        uuid.New(),
		Username:  username,
		Role:      role,
		Content:   content,
		Sources:   sources,
		CreatedAt: now,
	}
	if err := s.querier.InsertMessage(ctx, msg); err != nil {
		return uuid.Nil, fmt.Errorf("saving message for %q: %w", username, err)
	}
	if err := s.querier.TouchUser(ctx, username, now); err != nil {
		return uuid.Nil, fmt.Errorf("updating last active for %q: %w", username, err)
	}
	return msg.ID, nil
}

// ChatHistory returns up to limit messages for the user in ascending
// chronological order, skipping the first skip messages. limit <= 0
// means no limit.
func (s *Store) ChatHistory(ctx context.Context, username string, limit, skip int32) ([]Message, error) {
	msgs, err := s.querier.ListMessages(ctx, username, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("listing messages for %q: %w", username, err)
	}
	return msgs, nil
}

// RecentHistory returns the messages from the last `hours` hours in
// ascending order.
func (s *Store) RecentHistory(ctx context.Context, username string, hours int) ([]Message, error) {
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	msgs, err := s.querier.ListMessagesSince(ctx, username, since)
	if err != nil {
		return nil, fmt.Errorf("listing recent messages for %q: %w", username, err)
	}
	return msgs, nil
}

// ClearHistory deletes the user's messages and returns how many were
// removed.
func (s *Store) ClearHistory(ctx context.Context, username string) (int64, error) {
	deleted, err := s.querier.DeleteMessages(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("clearing history for %q: %w", username, err)
	}
	s.logger.Info("cleared chat history", "username", username, "deleted", deleted)
	return deleted, nil
}

// Stats returns total and per-role message counts and first/last
// message times for the user.
func (s *Store) Stats(ctx context.Context, username string) (UserStats, error) {
	stats, err := s.querier.MessageStats(ctx, username)
	if err != nil {
		return UserStats{}, fmt.Errorf("reading stats for %q: %w", username, err)
	}
	return stats, nil
}

// Export renders the user's full transcript as "json" or "txt". Any
// other format returns ErrUnsupportedFormat before touching the
// database.
func (s *Store) Export(ctx context.Context, username, format string) (string, error) {
	switch format {
	case "json", "txt":
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	msgs, err := s.ChatHistory(ctx, username, 0, 0)
	if err != nil {
		return "", err
	}

	if format == "json" {
		data, err := json.MarshalIndent(msgs, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encoding transcript: %w", err)
		}
		return string(data), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Chat history for %s\n\n", username)
	for _, m := range msgs {
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.CreatedAt.Format(time.RFC3339), m.Role, m.Content)
		if len(m.Sources) > 0 {
			fmt.Fprintf(&b, "    sources: %s\n", strings.Join(m.Sources, ", "))
		}
	}
	return b.String(), nil
}
