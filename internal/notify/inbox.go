package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/telemetry"
)

// DefaultUnreadLimit caps unread queries without an explicit limit.
const DefaultUnreadLimit = 50

// Inbox is the recipient-facing view over stored notifications.
type Inbox struct {
	store Store
	now   func() time.Time
}

// NewInbox returns an Inbox over store. A nil clock means time.Now.
func NewInbox(store Store, now func() time.Time) *Inbox {
	if now == nil {
		now = time.Now
	}
	return &Inbox{store: store, now: now}
}

// Unread lists r's unread notifications that have not expired.
func (i *Inbox) Unread(ctx context.Context, r Recipient, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = DefaultUnreadLimit
	}
	now := i.now()
	list, err := i.store.Unread(ctx, r, now, limit)
	if err != nil {
		return nil, fmt.Errorf("unread: %w", err)
	}
	// Stores filter on expiry already; the check keeps the guarantee local.
	out := list[:0]
	for _, n := range list {
		if !n.Expired(now) && !n.Status.Read {
			out = append(out, n)
		}
	}
	return out, nil
}

// MarkRead flags a notification as read by its recipient.
func (i *Inbox) MarkRead(ctx context.Context, id string, r Recipient) error {
	return i.store.MarkRead(ctx, id, r, i.now())
}

// MarkClicked flags a notification as clicked (and read).
func (i *Inbox) MarkClicked(ctx context.Context, id string, r Recipient) error {
	return i.store.MarkClicked(ctx, id, r, i.now())
}

// PurgeExpired deletes notifications past their expiry.
func (i *Inbox) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := i.store.DeleteExpired(ctx, i.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired: %w", err)
	}
	telemetry.ExpiredPurged.Add(float64(n))
	return n, nil
}
