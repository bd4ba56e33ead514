package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"leaddesk/internal/domain"
)

// Open opens a SQLite database with the given DSN. Timestamps are written in
// the sqlite text format so that range comparisons in SQL stay correct.
func Open(dsn string) (*sql.DB, error) {
	if !strings.Contains(dsn, "_time_format=") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_time_format=sqlite"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serializes writers and keeps in-memory databases alive.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping sqlite: %v", domain.ErrDatabaseConnection, err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent CREATE TABLE / CREATE INDEX statements.
func Migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY,
			username VARCHAR(50) UNIQUE NOT NULL,
			email VARCHAR(100) UNIQUE,
			hashed_password VARCHAR(255) NOT NULL,
			role VARCHAR(20) NOT NULL DEFAULT 'buyer',
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS leads (
			id INTEGER PRIMARY KEY,
			post_id INTEGER NOT NULL,
			buyer_id INTEGER NOT NULL,
			agent_id INTEGER DEFAULT NULL,
			tour_date VARCHAR(20) NOT NULL,
			tour_time VARCHAR(20) NOT NULL,
			status VARCHAR(50) NOT NULL,
			booking_status VARCHAR(50) NOT NULL,
			expired_status BOOLEAN NOT NULL DEFAULT 0,
			timer_expires_at DATETIME DEFAULT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (buyer_id) REFERENCES users(id),
			FOREIGN KEY (agent_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS lead_rejections (
			lead_id INTEGER NOT NULL,
			agent_id INTEGER NOT NULL,
			created_at DATETIME NOT NULL,
			PRIMARY KEY (lead_id, agent_id),
			FOREIGN KEY (lead_id) REFERENCES leads(id),
			FOREIGN KEY (agent_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			chat_id VARCHAR(64) NOT NULL,
			sender_id INTEGER NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (sender_id) REFERENCES users(id)
		);`,
		`CREATE TABLE IF NOT EXISTS chat_members (
			chat_id VARCHAR(64) NOT NULL,
			user_id INTEGER NOT NULL,
			PRIMARY KEY (chat_id, user_id)
		);`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id INTEGER PRIMARY KEY,
			user_id INTEGER NOT NULL,
			type VARCHAR(20) NOT NULL,
			title VARCHAR(200) NOT NULL,
			message TEXT NOT NULL,
			metadata TEXT DEFAULT NULL,
			is_read BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_leads_agent ON leads(agent_id);`,
		`CREATE INDEX IF NOT EXISTS idx_leads_pool ON leads(agent_id, expired_status, timer_expires_at);`,
		`CREATE INDEX IF NOT EXISTS idx_leads_buyer ON leads(buyer_id);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_members_user ON chat_members(user_id);`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
