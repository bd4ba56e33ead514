package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"leaddesk/internal/domain"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", domain.ErrDatabaseConnection, err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the leaddesk schema on PostgreSQL.
func Migrate(db *sql.DB) error {
	stmts := []string{
		// Users
		`CREATE TABLE IF NOT EXISTS users (
			id               BIGSERIAL PRIMARY KEY,
			username         VARCHAR(50)  UNIQUE NOT NULL,
			email            VARCHAR(100) UNIQUE,
			hashed_password  VARCHAR(255) NOT NULL,
			role             VARCHAR(20)  NOT NULL DEFAULT 'buyer',
			is_active        BOOLEAN      NOT NULL DEFAULT TRUE,
			created_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		// Tour leads
		`CREATE TABLE IF NOT EXISTS leads (
			id               BIGSERIAL    PRIMARY KEY,
			post_id          BIGINT       NOT NULL,
			buyer_id         BIGINT       NOT NULL REFERENCES users(id),
			agent_id         BIGINT       REFERENCES users(id),
			tour_date        VARCHAR(20)  NOT NULL,
			tour_time        VARCHAR(20)  NOT NULL,
			status           VARCHAR(50)  NOT NULL,
			booking_status   VARCHAR(50)  NOT NULL,
			expired_status   BOOLEAN      NOT NULL DEFAULT FALSE,
			timer_expires_at TIMESTAMPTZ,
			created_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		// Per-agent rejections
		`CREATE TABLE IF NOT EXISTS lead_rejections (
			lead_id    BIGINT      NOT NULL REFERENCES leads(id) ON DELETE CASCADE,
			agent_id   BIGINT      NOT NULL REFERENCES users(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (lead_id, agent_id)
		)`,

		// Direct chat messages
		`CREATE TABLE IF NOT EXISTS messages (
			id         TEXT        PRIMARY KEY,
			chat_id    VARCHAR(64) NOT NULL,
			sender_id  BIGINT      NOT NULL REFERENCES users(id),
			content    TEXT        NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS chat_members (
			chat_id VARCHAR(64) NOT NULL,
			user_id BIGINT      NOT NULL REFERENCES users(id),
			PRIMARY KEY (chat_id, user_id)
		)`,

		// Notifications
		`CREATE TABLE IF NOT EXISTS notifications (
			id         BIGSERIAL    PRIMARY KEY,
			user_id    BIGINT       NOT NULL REFERENCES users(id),
			type       VARCHAR(20)  NOT NULL,
			title      VARCHAR(200) NOT NULL,
			message    TEXT         NOT NULL,
			metadata   JSONB,
			is_read    BOOLEAN      NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_leads_agent ON leads(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_leads_pool ON leads(timer_expires_at) WHERE agent_id IS NULL AND NOT expired_status`,
		`CREATE INDEX IF NOT EXISTS idx_leads_buyer ON leads(buyer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_members_user ON chat_members(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications(user_id) WHERE NOT is_read`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
