package notify

import (
	"context"
	"errors"
	"time"
)

// DefaultTTL is how long a notification stays deliverable and visible.
const DefaultTTL = 30 * 24 * time.Hour

// Priority orders notifications for the recipient.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Channel is a delivery medium.
type Channel string

const (
	ChannelInApp Channel = "in_app"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
)

// Action is a link rendered with the notification.
type Action struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// ReadStatus tracks recipient interaction.
type ReadStatus struct {
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	Clicked   bool       `json:"clicked"`
	ClickedAt *time.Time `json:"clickedAt,omitempty"`
}

// Attempt is the outcome of one channel delivery.
type Attempt struct {
	Channel Channel   `json:"channel"`
	OK      bool      `json:"ok"`
	Error   string    `json:"error,omitempty"`
	At      time.Time `json:"at"`
}

// Delivery records what happened across channels.
type Delivery struct {
	Channels []Channel  `json:"channels"`
	Attempts []Attempt  `json:"attempts,omitempty"`
	Sent     bool       `json:"sent"`
	SentAt   *time.Time `json:"sentAt,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// Notification is addressed to exactly one recipient.
type Notification struct {
	ID        string         `json:"id"`
	EventID   string         `json:"eventId"`
	Recipient Recipient      `json:"recipient"`
	Kind      Kind           `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Priority  Priority       `json:"priority"`
	Data      map[string]any `json:"data"`
	Actions   []Action       `json:"actions,omitempty"`
	Status    ReadStatus     `json:"status"`
	Delivery  Delivery       `json:"delivery"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// Expired reports whether the notification is past its expiry at now.
func (n Notification) Expired(now time.Time) bool {
	return now.After(n.ExpiresAt)
}

// ErrNotFound is returned for unknown notifications or when the notification
// belongs to another recipient.
var ErrNotFound = errors.New("notification not found")

// Store persists notifications.
type Store interface {
	// Insert stores n unless a notification for the same (EventID,
	// Recipient) already exists; created reports which happened.
	Insert(ctx context.Context, n *Notification) (created bool, err error)
	ByEvent(ctx context.Context, eventID string, r Recipient) (Notification, error)
	SaveDelivery(ctx context.Context, id string, d Delivery) error
	Get(ctx context.Context, id string) (Notification, error)
	// Unread returns unread, unexpired notifications, newest first.
	Unread(ctx context.Context, r Recipient, now time.Time, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, id string, r Recipient, at time.Time) error
	MarkClicked(ctx context.Context, id string, r Recipient, at time.Time) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
