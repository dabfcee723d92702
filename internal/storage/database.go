package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"polychat/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database engine.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			dbCfg.Params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				user_id TEXT PRIMARY KEY,
				last_access DATETIME,
				preferences TEXT
			)`,
			`CREATE TABLE IF NOT EXISTS messages (
				message_id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				language TEXT NOT NULL,
				sentiment TEXT NOT NULL,
				timestamp DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(user_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_session_ts ON messages(session_id, timestamp)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_user_role ON messages(user_id, role)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				user_id VARCHAR(255) NOT NULL,
				last_access DATETIME,
				preferences TEXT,
				PRIMARY KEY (user_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS messages (
				message_id VARCHAR(36) NOT NULL,
				session_id VARCHAR(255) NOT NULL,
				user_id VARCHAR(255) NOT NULL,
				role VARCHAR(50) NOT NULL,
				content MEDIUMTEXT NOT NULL,
				language VARCHAR(100) NOT NULL,
				sentiment VARCHAR(20) NOT NULL,
				timestamp DATETIME(6) NOT NULL,
				PRIMARY KEY (message_id),
				INDEX idx_messages_session_ts (session_id, timestamp),
				INDEX idx_messages_user_role (user_id, role),
				CONSTRAINT fk_messages_user FOREIGN KEY (user_id) REFERENCES users(user_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
