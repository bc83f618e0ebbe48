package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDraftNotFound is returned for unknown draft IDs
var ErrDraftNotFound = errors.New("draft not found")

// Draft is a saved, unsubmitted wizard state
type Draft struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type DraftRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewDraftRepository(db *sql.DB) *DraftRepository {
	return &DraftRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Save inserts the draft, or updates it when ID is set and exists
func (r *DraftRepository) Save(ctx context.Context, d *Draft) error {
	now := r.now()
	if d.ID == "" {
		d.ID = uuid.New().String()
		d.CreatedAt = now
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO drafts (id, name, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, payload = excluded.payload, updated_at = excluded.updated_at`,
		d.ID, d.Name, string(d.Payload), d.CreatedAt, d.UpdatedAt,
	)
	return err
}

// Get returns a draft by ID
func (r *DraftRepository) Get(ctx context.Context, id string) (*Draft, error) {
	d := &Draft{}
	var payload string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, payload, created_at, updated_at
		FROM drafts WHERE id = ?`, id,
	).Scan(&d.ID, &d.Name, &payload, &d.CreatedAt, &d.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDraftNotFound
	}
	if err != nil {
		return nil, err
	}
	d.Payload = json.RawMessage(payload)
	return d, nil
}

// List returns drafts, most recently updated first. Payloads are omitted.
func (r *DraftRepository) List(ctx context.Context) ([]Draft, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at
		FROM drafts ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	drafts := []Draft{}
	for rows.Next() {
		var d Draft
		if err := rows.Scan(&d.ID, &d.Name, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

// Delete removes a draft
func (r *DraftRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM drafts WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrDraftNotFound
	}
	return nil
}

// DeleteOlderThan removes drafts not touched since before
func (r *DraftRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM drafts WHERE updated_at < ?", before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountOlderThan counts drafts that DeleteOlderThan would remove
func (r *DraftRepository) CountOlderThan(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM drafts WHERE updated_at < ?", before.UTC()).Scan(&n)
	return n, err
}
