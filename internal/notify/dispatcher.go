package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/telemetry"
)

// Transport delivers a stored notification over one channel.
type Transport interface {
	Send(ctx context.Context, n Notification) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, n Notification) error

// Send calls f.
func (f TransportFunc) Send(ctx context.Context, n Notification) error { return f(ctx, n) }

// errNoTransport is recorded when a kind asks for a channel nobody serves.
var errNoTransport = errors.New("no transport configured for channel")

// Dispatcher creates notifications for events and attempts delivery.
type Dispatcher struct {
	store      Store
	transports map[Channel]Transport
	ttl        time.Duration
	now        func() time.Time
	log        zerolog.Logger
}

// DispatcherOption customises a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTransport registers the transport serving ch.
func WithTransport(ch Channel, t Transport) DispatcherOption {
	return func(d *Dispatcher) { d.transports[ch] = t }
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

// WithLogger sets the dispatcher logger.
func WithLogger(l zerolog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = l }
}

// NewDispatcher returns a Dispatcher writing to store.
func NewDispatcher(store Store, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:      store,
		transports: make(map[Channel]Transport),
		ttl:        DefaultTTL,
		now:        time.Now,
		log:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Dispatch creates one notification per recipient of ev and delivers each.
//
// Only storage failures are returned, so the caller can retry the event.
// Channel failures are recorded on the notification's delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) error {
	if _, err := ParseKind(string(ev.Kind)); err != nil {
		return err
	}
	var errs []error
	for _, r := range ev.Recipients {
		if err := d.dispatchOne(ctx, ev, r); err != nil {
			errs = append(errs, fmt.Errorf("recipient %s/%s: %w", r.Model, r.UserID, err))
		}
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) dispatchOne(ctx context.Context, ev Event, r Recipient) error {
	now := d.now()
	title, message, actions := render(ev, r)
	n := Notification{
		ID:        uuid.NewString(),
		EventID:   ev.ID,
		Recipient: r,
		Kind:      ev.Kind,
		Title:     title,
		Message:   message,
		Priority:  PriorityFor(ev.Kind),
		Data:      PayloadMap(ev.Payload),
		Actions:   actions,
		Delivery:  Delivery{Channels: ChannelsFor(ev.Kind)},
		CreatedAt: now,
		ExpiresAt: now.Add(d.ttl),
	}

	created, err := d.store.Insert(ctx, &n)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	if created {
		telemetry.NotificationsCreated.WithLabelValues(string(ev.Kind)).Inc()
	} else {
		// Re-dispatched event: reuse the stored notification.
		n, err = d.store.ByEvent(ctx, ev.ID, r)
		if err != nil {
			return fmt.Errorf("load existing notification: %w", err)
		}
		if n.Delivery.Sent {
			return nil
		}
	}

	if n.Expired(now) {
		d.log.Debug().Str("notificationId", n.ID).Msg("notification expired before delivery")
		return nil
	}

	n.Delivery = d.deliver(ctx, n)
	if err := d.store.SaveDelivery(ctx, n.ID, n.Delivery); err != nil {
		return fmt.Errorf("save delivery: %w", err)
	}
	return nil
}

// deliver attempts every channel independently.
func (d *Dispatcher) deliver(ctx context.Context, n Notification) Delivery {
	out := Delivery{Channels: n.Delivery.Channels}
	for _, ch := range n.Delivery.Channels {
		err := d.send(ctx, ch, n)
		at := d.now()
		attempt := Attempt{Channel: ch, OK: err == nil, At: at}
		if err != nil {
			attempt.Error = err.Error()
			out.Error = fmt.Sprintf("%s: %v", ch, err)
			telemetry.NotificationDeliveries.WithLabelValues(string(ch), "failed").Inc()
			d.log.Warn().Err(err).
				Str("notificationId", n.ID).
				Str("channel", string(ch)).
				Msg("notification delivery failed")
		} else {
			telemetry.NotificationDeliveries.WithLabelValues(string(ch), "sent").Inc()
			if !out.Sent {
				out.Sent = true
				out.SentAt = &at
			}
		}
		out.Attempts = append(out.Attempts, attempt)
	}
	return out
}

func (d *Dispatcher) send(ctx context.Context, ch Channel, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	t, ok := d.transports[ch]
	if !ok {
		if ch == ChannelInApp {
			// Stored notifications are visible in-app without a push.
			return nil
		}
		return errNoTransport
	}
	return t.Send(ctx, n)
}
