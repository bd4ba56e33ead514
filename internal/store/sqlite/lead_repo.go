package sqlite

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

// lapsed matches unclaimed leads whose window closed; the single parameter is now.
const lapsed = `agent_id IS NULL AND expired_status = 0 AND timer_expires_at <= ?`

func (r *LeadRepo) Create(ctx context.Context, l *domain.Lead) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO leads (post_id, buyer_id, agent_id, tour_date, tour_time, status, booking_status,
			expired_status, timer_expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.PostID, l.BuyerID, l.AgentID, l.Date, l.Time, l.Status, l.BookingStatus,
		l.ExpiredStatus, utcPtr(l.TimerExpiresAt), l.CreatedAt.UTC(), l.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	l.ID = id
	return nil
}

func (r *LeadRepo) GetByID(ctx context.Context, id int64) (*domain.Lead, error) {
	l := &domain.Lead{}
	err := scanLead(r.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id), l)
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
		WHERE l.agent_id = ?
		   OR (l.agent_id IS NULL
		       AND l.expired_status = 0
		       AND l.timer_expires_at > ?
		       AND NOT EXISTS (
		           SELECT 1 FROM lead_rejections lr
		           WHERE lr.lead_id = l.id AND lr.agent_id = ?
		       ))
		ORDER BY l.timer_expires_at ASC, l.id ASC
	`, agentID, now.UTC(), agentID)
	if err != nil {
		return nil, fmt.Errorf("list leads for agent: %w", err)
	}
	return scanLeads(rows)
}

func (r *LeadRepo) ListForBuyer(ctx context.Context, buyerID int64) ([]*domain.Lead, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+leadColumns+` FROM leads WHERE buyer_id = ? ORDER BY created_at DESC
	`, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list leads for buyer: %w", err)
	}
	return scanLeads(rows)
}

func (r *LeadRepo) Claim(ctx context.Context, id, agentID int64, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads
		SET agent_id = ?, booking_status = ?, updated_at = ?
		WHERE id = ? AND agent_id IS NULL AND expired_status = 0 AND timer_expires_at > ?
		  AND NOT EXISTS (
		      SELECT 1 FROM lead_rejections lr
		      WHERE lr.lead_id = leads.id AND lr.agent_id = ?
		  )
	`, agentID, domain.BookingStatusClaimed, now.UTC(), id, now.UTC(), agentID)
	if err != nil {
		return fmt.Errorf("claim lead: %w", err)
	}
	return r.explainMiss(ctx, res, id, domain.ErrClaimConflict)
}

func (r *LeadRepo) Release(ctx context.Context, id, agentID int64, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads
		SET agent_id = NULL, booking_status = ?, timer_expires_at = ?, updated_at = ?
		WHERE id = ? AND agent_id = ?
	`, domain.BookingStatusReleased, expiresAt.UTC(), time.Now().UTC(), id, agentID)
	if err != nil {
		return fmt.Errorf("release lead: %w", err)
	}
	return r.explainMiss(ctx, res, id, domain.ErrForbidden)
}

func (r *LeadRepo) RecordRejection(ctx context.Context, id, agentID int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lead_rejections (lead_id, agent_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (lead_id, agent_id) DO NOTHING
	`, id, agentID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record rejection: %w", err)
	}
	return nil
}

func (r *LeadRepo) UpdateStatus(ctx context.Context, id, agentID int64, status string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads SET status = ?, updated_at = ? WHERE id = ? AND agent_id = ?
	`, status, time.Now().UTC(), id, agentID)
	if err != nil {
		return fmt.Errorf("update lead status: %w", err)
	}
	return r.explainMiss(ctx, res, id, domain.ErrForbidden)
}

func (r *LeadRepo) ExpireDue(ctx context.Context, now time.Time) ([]*domain.Lead, error) {
	return r.expire(ctx, `SELECT `+leadColumns+` FROM leads WHERE `+lapsed, now, now.UTC())
}

func (r *LeadRepo) Expire(ctx context.Context, id int64, now time.Time) (*domain.Lead, error) {
	leads, err := r.expire(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ? AND `+lapsed, now, id, now.UTC())
	if err != nil || len(leads) == 0 {
		return nil, err
	}
	return leads[0], nil
}

// expire flags the lapsed leads selected by query inside one transaction and
// returns them as they read after the update.
func (r *LeadRepo) expire(ctx context.Context, query string, now time.Time, args ...any) ([]*domain.Lead, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin expire tx: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select lapsed leads: %w", err)
	}
	candidates, err := scanLeads(rows)
	if err != nil {
		return nil, err
	}

	var expired []*domain.Lead
	for _, l := range candidates {
		res, err := tx.ExecContext(ctx, `
			UPDATE leads
			SET expired_status = 1, status = ?, booking_status = ?, updated_at = ?
			WHERE id = ? AND `+lapsed,
			domain.LeadStatusExpired, domain.BookingStatusExpired, now.UTC(), l.ID, now.UTC())
		if err != nil {
			return nil, fmt.Errorf("expire lead %d: %w", l.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		l.ExpiredStatus = true
		l.Status = domain.LeadStatusExpired
		l.BookingStatus = domain.BookingStatusExpired
		l.UpdatedAt = now.UTC()
		expired = append(expired, l)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit expire tx: %w", err)
	}
	return expired, nil
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
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check lead: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}
	return miss
}

// ── helpers ──────────────────────────────────────────────────────────────────

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

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
