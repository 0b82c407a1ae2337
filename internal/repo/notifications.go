package repo

import (
	"context"
	"database/sql"
	"fmt"

	"creditline/internal/domain"
)

// InsertNotification stores one in-app notification for an actor.
func (r *Repo) InsertNotification(ctx context.Context, n domain.Notification) (domain.Notification, error) {
	if n.CreatedAt == "" {
		n.CreatedAt = r.stamp()
	}
	res, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(actor_id,reference,kind,title,body,email,created_at)
VALUES (?,?,?,?,?,?,?)`,
		n.ActorID, nullable(n.Reference), n.Kind, n.Title, n.Body, boolInt(n.Email), n.CreatedAt)
	if err != nil {
		return n, fmt.Errorf("insert notification for %s: %w", n.ActorID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		n.ID = id
	}
	return n, nil
}

// ListNotifications returns an actor's notifications, newest first.
// unreadOnly restricts to entries without a read mark.
func (r *Repo) ListNotifications(ctx context.Context, actorID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	q := `SELECT id,actor_id,reference,kind,title,body,email,created_at,read_at FROM notifications WHERE actor_id=?`
	if unreadOnly {
		q += ` AND read_at IS NULL`
	}
	q += ` ORDER BY id DESC`
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q += fmt.Sprintf(` LIMIT %d`, limit)
	rows, err := r.DB.QueryContext(ctx, q, actorID)
	if err != nil {
		return nil, fmt.Errorf("list notifications for %s: %w", actorID, err)
	}
	defer rows.Close()
	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var reference, readAt sql.NullString
		var email int
		if err := rows.Scan(&n.ID, &n.ActorID, &reference, &n.Kind, &n.Title, &n.Body, &email, &n.CreatedAt, &readAt); err != nil {
			return nil, err
		}
		n.Reference = reference.String
		n.Email = email != 0
		if readAt.Valid {
			v := readAt.String
			n.ReadAt = &v
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead stamps a notification as read. Only the owning actor's
// rows are touched.
func (r *Repo) MarkNotificationRead(ctx context.Context, actorID string, id int64) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read_at=? WHERE id=? AND actor_id=? AND read_at IS NULL`,
		r.stamp(), id, actorID)
	if err != nil {
		return fmt.Errorf("mark notification %d read: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
