package assistant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"polychat/internal/models"
)

// Service owns durable reads and writes for users and messages.
type Service struct {
	db     *sql.DB
	driver string
}

// NewService builds a new assistant service for the given driver
// ("sqlite3" or "mysql"), which selects the upsert dialect.
func NewService(db *sql.DB, driver string) *Service {
	return &Service{db: db, driver: strings.ToLower(driver)}
}

// TouchUser records activity for the user, creating the row on first
// contact. The upsert is a single statement so concurrent first
// contacts for the same user cannot collide on the primary key.
// Preferences are left untouched.
func (s *Service) TouchUser(ctx context.Context, userID string, at time.Time) error {
	if userID == "" {
		return errors.New("user_id is required")
	}
	var stmt string
	switch s.driver {
	case "sqlite", "sqlite3":
		stmt = `INSERT INTO users (user_id, last_access) VALUES (?, ?)
			ON CONFLICT(user_id) DO UPDATE SET last_access = excluded.last_access`
	case "mysql":
		stmt = `INSERT INTO users (user_id, last_access) VALUES (?, ?)
			ON DUPLICATE KEY UPDATE last_access = VALUES(last_access)`
	default:
		return fmt.Errorf("unsupported driver: %s", s.driver)
	}
	if _, err := s.db.ExecContext(ctx, stmt, userID, at); err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	return nil
}

// GetUser returns the stored user row.
func (s *Service) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var (
		user        models.User
		lastAccess  sql.NullTime
		preferences sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, last_access, preferences FROM users WHERE user_id = ?`, userID,
	).Scan(&user.ID, &lastAccess, &preferences)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if lastAccess.Valid {
		user.LastAccess = lastAccess.Time
	}
	user.Preferences = preferences.String
	return &user, nil
}
