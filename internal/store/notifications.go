package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/notify"
)

// NotificationRepo implements notify.Store.
type NotificationRepo struct {
	pool *pgxpool.Pool
}

var notificationColumns = []string{
	"id", "event_id", "user_id", "user_model", "kind", "title", "message",
	"priority", "data", "actions", "is_read", "read_at", "clicked", "clicked_at",
	"delivery", "created_at", "expires_at",
}

// Insert stores n unless (event, recipient) already has a notification.
func (r *NotificationRepo) Insert(ctx context.Context, n *notify.Notification) (bool, error) {
	data, err := json.Marshal(n.Data)
	if err != nil {
		return false, fmt.Errorf("encode data: %w", err)
	}
	actions, err := json.Marshal(nonNil(n.Actions))
	if err != nil {
		return false, fmt.Errorf("encode actions: %w", err)
	}
	delivery, err := json.Marshal(n.Delivery)
	if err != nil {
		return false, fmt.Errorf("encode delivery: %w", err)
	}
	query, args, err := psql.Insert("notifications").Columns(notificationColumns...).Values(
		n.ID, n.EventID, n.Recipient.UserID, string(n.Recipient.Model), string(n.Kind), n.Title, n.Message,
		string(n.Priority), data, actions, n.Status.Read, n.Status.ReadAt, n.Status.Clicked, n.Status.ClickedAt,
		delivery, n.CreatedAt, n.ExpiresAt,
	).Suffix("ON CONFLICT (event_id, user_id, user_model) DO NOTHING").ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert notification: %w", err)
	}
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ByEvent returns the notification created for (event, recipient).
func (r *NotificationRepo) ByEvent(ctx context.Context, eventID string, rcpt notify.Recipient) (notify.Notification, error) {
	return r.one(ctx, sq.Eq{"event_id": eventID, "user_id": rcpt.UserID, "user_model": string(rcpt.Model)})
}

// Get returns a notification by id.
func (r *NotificationRepo) Get(ctx context.Context, id string) (notify.Notification, error) {
	return r.one(ctx, sq.Eq{"id": id})
}

// SaveDelivery replaces the delivery record.
func (r *NotificationRepo) SaveDelivery(ctx context.Context, id string, d notify.Delivery) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET delivery = $1 WHERE id = $2`, raw, id)
	if err != nil {
		return fmt.Errorf("save delivery %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return notify.ErrNotFound
	}
	return nil
}

// Unread returns the recipient's unread, unexpired notifications, newest first.
func (r *NotificationRepo) Unread(ctx context.Context, rcpt notify.Recipient, now time.Time, limit int) ([]notify.Notification, error) {
	q := psql.Select(notificationColumns...).
		From("notifications").
		Where(sq.Eq{"user_id": rcpt.UserID, "user_model": string(rcpt.Model), "is_read": false}).
		Where(sq.GtOrEq{"expires_at": now}).
		OrderBy("created_at DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build unread: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unread query: %w", err)
	}
	defer rows.Close()

	out := make([]notify.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("unread scan: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unread rows: %w", err)
	}
	return out, nil
}

// MarkRead flags the notification read. Notifications of other recipients
// are reported as not found.
func (r *NotificationRepo) MarkRead(ctx context.Context, id string, rcpt notify.Recipient, at time.Time) error {
	return r.touch(ctx,
		`UPDATE notifications
		 SET is_read = TRUE, read_at = COALESCE(read_at, $4)
		 WHERE id = $1 AND user_id = $2 AND user_model = $3`,
		id, rcpt, at)
}

// MarkClicked flags the notification clicked, which also reads it.
func (r *NotificationRepo) MarkClicked(ctx context.Context, id string, rcpt notify.Recipient, at time.Time) error {
	return r.touch(ctx,
		`UPDATE notifications
		 SET is_read = TRUE, read_at = COALESCE(read_at, $4),
		     clicked = TRUE, clicked_at = COALESCE(clicked_at, $4)
		 WHERE id = $1 AND user_id = $2 AND user_model = $3`,
		id, rcpt, at)
}

// DeleteExpired removes notifications past their expiry.
func (r *NotificationRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *NotificationRepo) touch(ctx context.Context, query, id string, rcpt notify.Recipient, at time.Time) error {
	tag, err := r.pool.Exec(ctx, query, id, rcpt.UserID, string(rcpt.Model), at)
	if err != nil {
		return fmt.Errorf("update notification %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return notify.ErrNotFound
	}
	return nil
}

func (r *NotificationRepo) one(ctx context.Context, where sq.Eq) (notify.Notification, error) {
	query, args, err := psql.Select(notificationColumns...).From("notifications").Where(where).ToSql()
	if err != nil {
		return notify.Notification{}, fmt.Errorf("build notification query: %w", err)
	}
	n, err := scanNotification(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return notify.Notification{}, notify.ErrNotFound
	}
	if err != nil {
		return notify.Notification{}, fmt.Errorf("notification scan: %w", err)
	}
	return n, nil
}

func scanNotification(row pgx.Row) (notify.Notification, error) {
	var n notify.Notification
	var model, kind, priority string
	var data, actions, delivery []byte
	if err := row.Scan(
		&n.ID, &n.EventID, &n.Recipient.UserID, &model, &kind, &n.Title, &n.Message,
		&priority, &data, &actions, &n.Status.Read, &n.Status.ReadAt, &n.Status.Clicked, &n.Status.ClickedAt,
		&delivery, &n.CreatedAt, &n.ExpiresAt,
	); err != nil {
		return notify.Notification{}, err
	}
	n.Recipient.Model = notify.UserModel(model)
	n.Kind = notify.Kind(kind)
	n.Priority = notify.Priority(priority)
	if err := unmarshalJSON(data, &n.Data); err != nil {
		return notify.Notification{}, fmt.Errorf("decode data of %s: %w", n.ID, err)
	}
	if err := unmarshalJSON(actions, &n.Actions); err != nil {
		return notify.Notification{}, fmt.Errorf("decode actions of %s: %w", n.ID, err)
	}
	if err := unmarshalJSON(delivery, &n.Delivery); err != nil {
		return notify.Notification{}, fmt.Errorf("decode delivery of %s: %w", n.ID, err)
	}
	return n, nil
}

// ─── Outbox ──────────────────────────────────────────────────────────────────

// OutboxRepo implements notify.Outbox over the outbox table.
type OutboxRepo struct {
	pool *pgxpool.Pool
}

// Pending returns up to limit events not yet relayed, oldest first.
func (r *OutboxRepo) Pending(ctx context.Context, limit int) ([]notify.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT body FROM outbox WHERE relayed_at IS NULL ORDER BY seq LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("outbox query: %w", err)
	}
	defer rows.Close()

	events := make([]notify.Event, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("outbox scan: %w", err)
		}
		var ev notify.Event
		if err := json.Unmarshal(body, &ev); err != nil {
			return nil, fmt.Errorf("decode outbox event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox rows: %w", err)
	}
	return events, nil
}

// MarkRelayed flags the given events as handed to the queue.
func (r *OutboxRepo) MarkRelayed(ctx context.Context, ids []string, at time.Time) error {
	if _, err := r.pool.Exec(ctx,
		`UPDATE outbox SET relayed_at = $2 WHERE id = ANY($1) AND relayed_at IS NULL`, ids, at,
	); err != nil {
		return fmt.Errorf("mark relayed: %w", err)
	}
	return nil
}

// PurgeRelayed deletes events relayed before cutoff.
func (r *OutboxRepo) PurgeRelayed(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM outbox WHERE relayed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}
