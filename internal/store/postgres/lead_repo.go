package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"leaddesk/internal/domain"
)

type LeadRepo struct {
	db *sql.DB
}

func NewLeadRepo(db *sql.DB) *LeadRepo {
	return &LeadRepo{db: db}
}

var _ domain.LeadRepository = (*LeadRepo)(nil)

const leadColumns = `id, post_id, buyer_id, agent_id, tour_date, tour_time, status, booking_status,
	expired_status, timer_expires_at, created_at, updated_at`

func (r *LeadRepo) Create(ctx context.Context, l *domain.Lead) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO leads (post_id, buyer_id, agent_id, tour_date, tour_time, status, booking_status,
			expired_status, timer_expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, l.PostID, l.BuyerID, l.AgentID, l.Date, l.Time, l.Status, l.BookingStatus,
		l.ExpiredStatus, l.TimerExpiresAt, l.CreatedAt, l.UpdatedAt).Scan(&l.ID)
}

func (r *LeadRepo) GetByID(ctx context.Context, id int64) (*domain.Lead, error) {
	l := &domain.Lead{}
	err := scanLead(r.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id), l)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lead: %w", err)
	}
	return l, nil
}

func (r *LeadRepo) ListForAgent(ctx context.Context, agentID int64, now time.Time) ([]*domain.Lead, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+leadColumns+`
		FROM leads l
		WHERE l.agent_id = $1
		   OR (l.agent_id IS NULL
		       AND NOT l.expired_status
		       AND l.timer_expires_at > $2
		       AND NOT EXISTS (
		           SELECT 1 FROM lead_rejections lr
		           WHERE lr.lead_id = l.id AND lr.agent_id = $1
		       ))
		ORDER BY l.timer_expires_at ASC, l.id ASC
	`, agentID, now)
	if err != nil {
		return nil, fmt.Errorf("list leads for agent: %w", err)
	}
	return scanLeads(rows)
}

func (r *LeadRepo) ListForBuyer(ctx context.Context, buyerID int64) ([]*domain.Lead, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+leadColumns+` FROM leads WHERE buyer_id = $1 ORDER BY created_at DESC
	`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list leads for buyer: %w", err)
	}
	return scanLeads(rows)
}

func (r *LeadRepo) Claim(ctx context.Context, id, agentID int64, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads
		SET agent_id = $1, booking_status = $2, updated_at = $3
		WHERE id = $4 AND agent_id IS NULL AND NOT expired_status AND timer_expires_at > $3
		  AND NOT EXISTS (
		      SELECT 1 FROM lead_rejections lr
		      WHERE lr.lead_id = leads.id AND lr.agent_id = $1
		  )
	`, agentID, domain.BookingStatusClaimed, now, id)
	if err != nil {
		return fmt.Errorf("claim lead: %w", err)
	}
	return r.explainMiss(ctx, res, id, domain.ErrClaimConflict)
}

func (r *LeadRepo) Release(ctx context.Context, id, agentID int64, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads
		SET agent_id = NULL, booking_status = $1, timer_expires_at = $2, updated_at = NOW()
		WHERE id = $3 AND agent_id = $4
	`, domain.BookingStatusReleased, expiresAt, id, agentID)
	if err != nil {
		return fmt.Errorf("release lead: %w", err)
	}
	return r.explainMiss(ctx, res, id, domain.ErrForbidden)
}

func (r *LeadRepo) RecordRejection(ctx context.Context, id, agentID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lead_rejections (lead_id, agent_id) VALUES ($1, $2)
		ON CONFLICT (lead_id, agent_id) DO NOTHING
	`, id, agentID)
	if err != nil {
		return fmt.Errorf("record rejection: %w", err)
	}
	return nil
}

func (r *LeadRepo) UpdateStatus(ctx context.Context, id, agentID int64, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads SET status = $1, updated_at = NOW() WHERE id = $2 AND agent_id = $3
	`, status, id, agentID)
	if err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	return r.explainMiss(ctx, res, id, domain.ErrForbidden)
}

func (r *LeadRepo) ExpireDue(ctx context.Context, now time.Time) ([]*domain.Lead, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE leads
		SET expired_status = TRUE, status = $1, booking_status = $2, updated_at = $3
		WHERE agent_id IS NULL AND NOT expired_status AND timer_expires_at <= $3
		RETURNING `+leadColumns,
		domain.LeadStatusExpired, domain.BookingStatusExpired, now)
	if err != nil {
		return nil, fmt.Errorf("expire due leads: %w", err)
	}
	return scanLeads(rows)
}

func (r *LeadRepo) Expire(ctx context.Context, id int64, now time.Time) (*domain.Lead, error) {
	l := &domain.Lead{}
	err := scanLead(r.db.QueryRowContext(ctx, `
		UPDATE leads
		SET expired_status = TRUE, status = $1, booking_status = $2, updated_at = $3
		WHERE id = $4 AND agent_id IS NULL AND NOT expired_status AND timer_expires_at <= $3
		RETURNING `+leadColumns,
		domain.LeadStatusExpired, domain.BookingStatusExpired, now, id), l)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("expire lead %d: %w", id, err)
	}
	return l, nil
}

// explainMiss turns a zero-row update into ErrNotFound or the given error.
func (r *LeadRepo) explainMiss(ctx context.Context, res sql.Result, id int64, miss error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check lead: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return miss
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner, l *domain.Lead) error {
	return row.Scan(
		&l.ID, &l.PostID, &l.BuyerID, &l.AgentID, &l.Date, &l.Time, &l.Status, &l.BookingStatus,
		&l.ExpiredStatus, &l.TimerExpiresAt, &l.CreatedAt, &l.UpdatedAt,
	)
}

func scanLeads(rows *sql.Rows) ([]*domain.Lead, error) {
	defer rows.Close()
	var res []*domain.Lead
	for rows.Next() {
		l := &domain.Lead{}
		if err := scanLead(rows, l); err != nil {
			return nil, fmt.Errorf("scan lead: %w", err)
		}
		res = append(res, l)
	}
	return res, rows.Err()
}
