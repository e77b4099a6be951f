package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/notify"
)

// Notifications implements notify.Store.
type Notifications struct {
	mu      sync.Mutex
	byID    map[string]notify.Notification
	byEvent map[string]string
}

func eventKey(eventID string, r notify.Recipient) string {
	return eventID + "\x00" + string(r.Model) + "\x00" + r.UserID
}

// Insert stores n unless (event, recipient) is already present.
func (s *Notifications) Insert(_ context.Context, n *notify.Notification) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := eventKey(n.EventID, n.Recipient)
	if _, ok := s.byEvent[key]; ok {
		return false, nil
	}
	s.byEvent[key] = n.ID
	s.byID[n.ID] = *n
	return true, nil
}

// ByEvent returns the notification created for (event, recipient).
func (s *Notifications) ByEvent(_ context.Context, eventID string, r notify.Recipient) (notify.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byEvent[eventKey(eventID, r)]
	if !ok {
		return notify.Notification{}, notify.ErrNotFound
	}
	return s.byID[id], nil
}

// SaveDelivery replaces the delivery record.
func (s *Notifications) SaveDelivery(_ context.Context, id string, d notify.Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[id]
	if !ok {
		return notify.ErrNotFound
	}
	n.Delivery = d
	s.byID[id] = n
	return nil
}

// Get returns a notification by id.
func (s *Notifications) Get(_ context.Context, id string) (notify.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[id]
	if !ok {
		return notify.Notification{}, notify.ErrNotFound
	}
	return n, nil
}

// Unread returns r's unread, unexpired notifications, newest first.
func (s *Notifications) Unread(_ context.Context, r notify.Recipient, now time.Time, limit int) ([]notify.Notification, error) {
	s.mu.Lock()
	var out []notify.Notification
	for _, n := range s.byID {
		if n.Recipient != r || n.Status.Read || n.Expired(now) {
			continue
		}
		out = append(out, n)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b notify.Notification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkRead flags the notification read. Notifications of other recipients
// are reported as not found.
func (s *Notifications) MarkRead(_ context.Context, id string, r notify.Recipient, at time.Time) error {
	return s.update(id, r, func(n *notify.Notification) {
		if !n.Status.Read {
			n.Status.Read = true
			n.Status.ReadAt = &at
		}
	})
}

// MarkClicked flags the notification clicked, which also reads it.
func (s *Notifications) MarkClicked(_ context.Context, id string, r notify.Recipient, at time.Time) error {
	return s.update(id, r, func(n *notify.Notification) {
		if !n.Status.Read {
			n.Status.Read = true
			n.Status.ReadAt = &at
		}
		if !n.Status.Clicked {
			n.Status.Clicked = true
			n.Status.ClickedAt = &at
		}
	})
}

func (s *Notifications) update(id string, r notify.Recipient, fn func(n *notify.Notification)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.byID[id]
	if !ok || n.Recipient != r {
		return notify.ErrNotFound
	}
	fn(&n)
	s.byID[id] = n
	return nil
}

// DeleteExpired removes notifications past their expiry.
func (s *Notifications) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, n := range s.byID {
		if n.Expired(now) {
			delete(s.byID, id)
			delete(s.byEvent, eventKey(n.EventID, n.Recipient))
			deleted++
		}
	}
	return deleted, nil
}
