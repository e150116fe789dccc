package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xiaocang/ghpr-view/internal/domain/model"
	"github.com/xiaocang/ghpr-view/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.NotificationStore = (*NotificationRepo)(nil)

// NotificationRepo is the SQLite implementation of the NotificationStore
// port interface.
type NotificationRepo struct {
	db *DB
}

// NewNotificationRepo creates a new NotificationRepo backed by the given DB.
func NewNotificationRepo(db *DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

// Insert journals a delivered notification and returns its assigned id.
func (r *NotificationRepo) Insert(ctx context.Context, event model.NotificationEvent) (int64, error) {
	const query = `
		INSERT INTO notifications (pr_id, repo, number, title, url, kind, unresolved_count, delta, ci_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	res, err := r.db.Writer.ExecContext(ctx, query,
		event.PRID, event.Repo, event.Number, event.Title, event.URL,
		string(event.Kind), event.UnresolvedCount, event.Delta, string(event.CIStatus),
		createdAt.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert notification for PR %d: %w", event.PRID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("notification insert id: %w", err)
	}

	return id, nil
}

// ListRecent returns up to limit events, newest first.
func (r *NotificationRepo) ListRecent(ctx context.Context, limit int) ([]model.NotificationEvent, error) {
	const query = `
		SELECT id, pr_id, repo, number, title, url, kind, unresolved_count, delta, ci_status, created_at
		FROM notifications
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent notifications: %w", err)
	}
	defer rows.Close()

	var events []model.NotificationEvent
	for rows.Next() {
		event, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		events = append(events, *event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}

	return events, nil
}

// LastForPR returns the most recent event for the given PR and kind, or
// (nil, nil) when the PR has never been notified for that kind.
func (r *NotificationRepo) LastForPR(ctx context.Context, prID int64, kind model.NotificationKind) (*model.NotificationEvent, error) {
	const query = `
		SELECT id, pr_id, repo, number, title, url, kind, unresolved_count, delta, ci_status, created_at
		FROM notifications
		WHERE pr_id = ? AND kind = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	row := r.db.Reader.QueryRowContext(ctx, query, prID, string(kind))

	event, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last notification for PR %d: %w", prID, err)
	}

	return event, nil
}

// Prune deletes all but the newest keep events so the journal cannot grow
// without bound.
func (r *NotificationRepo) Prune(ctx context.Context, keep int) error {
	const query = `
		DELETE FROM notifications
		WHERE id NOT IN (
			SELECT id FROM notifications
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
	`

	if keep < 0 {
		keep = 0
	}

	if _, err := r.db.Writer.ExecContext(ctx, query, keep); err != nil {
		return fmt.Errorf("prune notifications: %w", err)
	}

	return nil
}

// Clear empties the journal. Used on sign-out.
func (r *NotificationRepo) Clear(ctx context.Context) error {
	if _, err := r.db.Writer.ExecContext(ctx, `DELETE FROM notifications`); err != nil {
		return fmt.Errorf("clear notifications: %w", err)
	}

	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanNotification(s scanner) (*model.NotificationEvent, error) {
	var event model.NotificationEvent
	var kind, ciStatus, createdAt string

	err := s.Scan(
		&event.ID, &event.PRID, &event.Repo, &event.Number, &event.Title, &event.URL,
		&kind, &event.UnresolvedCount, &event.Delta, &ciStatus, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	event.Kind = model.NotificationKind(kind)
	event.CIStatus = model.CIStatus(ciStatus)

	event.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	return &event, nil
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02T15:04:05Z",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
