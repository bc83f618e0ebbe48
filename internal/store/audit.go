package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditEntry is one recorded user action
type AuditEntry struct {
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	CampaignID string         `json:"campaign_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// AuditFilter narrows List
type AuditFilter struct {
	Action     string
	CampaignID string
	Limit      int
	Offset     int
}

type AuditRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Record adds an audit log entry
func (r *AuditRepository) Record(ctx context.Context, action, campaignID string, details map[string]any) error {
	var raw any
	if len(details) > 0 {
		data, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
		raw = string(data)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, action, campaign_id, details, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.New().String(), action, campaignID, raw, r.now(),
	)
	return err
}

// List returns audit entries, newest first, with the total matching count
func (r *AuditRepository) List(ctx context.Context, filter AuditFilter) ([]AuditEntry, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	if filter.Action != "" {
		where += " AND action = ?"
		args = append(args, filter.Action)
	}
	if filter.CampaignID != "" {
		where += " AND campaign_id = ?"
		args = append(args, filter.CampaignID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT id, action, COALESCE(campaign_id, '') as campaign_id,
			COALESCE(details, '') as details, created_at
		FROM audit_log` + where + " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []AuditEntry{}
	for rows.Next() {
		var e AuditEntry
		var details string
		if err := rows.Scan(&e.ID, &e.Action, &e.CampaignID, &details, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		if details != "" {
			if err := json.Unmarshal([]byte(details), &e.Details); err != nil {
				return nil, 0, fmt.Errorf("audit entry %s: %w", e.ID, err)
			}
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

// DeleteOlderThan removes entries created before the cutoff
func (r *AuditRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM audit_log WHERE created_at < ?", before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountOlderThan counts entries that DeleteOlderThan would remove
func (r *AuditRepository) CountOlderThan(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log WHERE created_at < ?", before.UTC()).Scan(&n)
	return n, err
}
