package storage

import (
	"context"
	"database/sql"
	"time"

	"jobhub/internal/errors"
)

// CreateNotification appends a ledger record and sets its ID.
func (db *DB) CreateNotification(ctx context.Context, n *Notification) error {
	err := db.connection.QueryRowContext(ctx,
		`INSERT INTO notifications (user_id, category, title, body, job_id, application_id, created_at, is_read)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
		 RETURNING id`,
		n.UserID, string(n.Category), n.Title, n.Body, nullInt64(n.JobID), nullInt64(n.ApplicationID), n.CreatedAt,
	).Scan(&n.ID)
	if err != nil {
		return mapErr(err, "create notification for %s", n.UserID)
	}
	return nil
}

// ListNotifications returns the newest records of a user first.
func (db *DB) ListNotifications(ctx context.Context, userID string, limit int, unreadOnly bool) ([]Notification, error) {
	query := `SELECT id, user_id, category, title, body, job_id, application_id, created_at, is_read, read_at
			  FROM notifications WHERE user_id = $1`
	if unreadOnly {
		query += ` AND NOT is_read`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $2`

	rows, err := db.connection.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, mapErr(err, "list notifications of %s", userID)
	}
	defer rows.Close()

	res := []Notification{}
	for rows.Next() {
		var n Notification
		var category string
		var jobID, appID sql.NullInt64
		var readAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.UserID, &category, &n.Title, &n.Body, &jobID, &appID,
			&n.CreatedAt, &n.IsRead, &readAt); err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		n.Category = NotificationCategory(category)
		n.JobID = int64Ptr(jobID)
		n.ApplicationID = int64Ptr(appID)
		n.ReadAt = timePtr(readAt)
		res = append(res, n)
	}
	return res, rows.Err()
}

func (db *DB) CountUnreadNotifications(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.connection.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND NOT is_read`, userID).Scan(&n)
	if err != nil {
		return 0, mapErr(err, "count unread notifications of %s", userID)
	}
	return n, nil
}

// MarkNotificationRead marks one record read. A record owned by someone else
// is reported as ErrNotFound.
func (db *DB) MarkNotificationRead(ctx context.Context, userID string, id int64, at time.Time) error {
	res, err := db.connection.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = COALESCE(read_at, $3)
		 WHERE id = $1 AND user_id = $2`, id, userID, at)
	if err != nil {
		return mapErr(err, "mark notification %d read", id)
	}
	return expectAffected(res, "notification %d", id)
}

func (db *DB) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := db.connection.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE, read_at = $2 WHERE user_id = $1 AND NOT is_read`, userID, at)
	if err != nil {
		return 0, mapErr(err, "mark notifications of %s read", userID)
	}
	return res.RowsAffected()
}
