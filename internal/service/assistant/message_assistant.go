package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"polychat/internal/models"
)

// HistoryWindow bounds how many recent messages are read back when a
// session's context is rebuilt.
const HistoryWindow = 4

// DefaultLanguage mirrors the annotator fallback for users with no
// recorded human messages.
const DefaultLanguage = "English"

// AddMessage appends a message, assigning its id and timestamp. The
// owning user row is created or touched first so the foreign key holds
// and last_access stays current.
func (s *Service) AddMessage(ctx context.Context, msg models.Message) (*models.Message, error) {
	if msg.UserID == "" {
		return nil, errors.New("user_id is required")
	}
	if msg.SessionID == "" {
		return nil, errors.New("session_id is required")
	}
	switch msg.Role {
	case models.RoleHuman, models.RoleAssistant, models.RoleSystem:
	default:
		return nil, fmt.Errorf("unknown role %q", msg.Role)
	}

	now := time.Now().UTC()
	if err := s.TouchUser(ctx, msg.UserID, now); err != nil {
		return nil, err
	}

	msg.ID = uuid.NewString()
	msg.CreatedAt = now
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, session_id, user_id, role, content, language, sentiment, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.UserID, msg.Role, msg.Content, msg.Language, msg.Sentiment, msg.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

// SessionHistory returns the most recent HistoryWindow messages of the
// session in ascending timestamp order. An empty session yields an
// empty slice, not an error.
func (s *Service) SessionHistory(ctx context.Context, sessionID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, session_id, user_id, role, content, language, sentiment, timestamp
		 FROM messages WHERE session_id = ?
		 ORDER BY timestamp DESC, message_id DESC LIMIT ?`,
		sessionID, HistoryWindow,
	)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// newest-first from the query; callers want chronological order
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// SessionMessages returns every message of the session in chronological
// order, for display rather than prompt context.
func (s *Service) SessionMessages(ctx context.Context, sessionID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, session_id, user_id, role, content, language, sentiment, timestamp
		 FROM messages WHERE session_id = ?
		 ORDER BY timestamp ASC, message_id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// PreferredLanguage infers the user's dominant language from their
// stored human messages. Ties fall to the aggregation order; users
// with no history get DefaultLanguage.
func (s *Service) PreferredLanguage(ctx context.Context, userID string) (string, error) {
	var (
		lang  string
		count int
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT language, COUNT(language) AS cnt FROM messages
		 WHERE user_id = ? AND role = ?
		 GROUP BY language ORDER BY cnt DESC LIMIT 1`,
		userID, models.RoleHuman,
	).Scan(&lang, &count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DefaultLanguage, nil
		}
		return "", fmt.Errorf("preferred language: %w", err)
	}
	if lang == "" {
		return DefaultLanguage, nil
	}
	return lang, nil
}

func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	var messages []*models.Message
	for rows.Next() {
		m := new(models.Message)
		if err := rows.Scan(&m.ID, &m.SessionID, &m.UserID, &m.Role, &m.Content, &m.Language, &m.Sentiment, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
