package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/telemetry"
)

// Outbox is the transactional staging area events are written to alongside
// the state change that produced them.
type Outbox interface {
	Pending(ctx context.Context, limit int) ([]Event, error)
	MarkRelayed(ctx context.Context, ids []string, at time.Time) error
}

// Relay moves pending outbox events into the queue.
type Relay struct {
	outbox Outbox
	queue  Queue
	batch  int
	log    zerolog.Logger
}

// NewRelay returns a Relay moving up to batch events per run.
func NewRelay(outbox Outbox, queue Queue, batch int, log zerolog.Logger) *Relay {
	if batch <= 0 {
		batch = 100
	}
	return &Relay{outbox: outbox, queue: queue, batch: batch, log: log}
}

// RelayOnce enqueues one batch and returns how many events were moved.
// Events that fail to enqueue stay pending for the next run.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	events, err := r.outbox.Pending(ctx, r.batch)
	if err != nil {
		return 0, fmt.Errorf("load pending events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	relayed := make([]string, 0, len(events))
	for _, ev := range events {
		if err := r.queue.Enqueue(ctx, ev); err != nil {
			r.log.Warn().Err(err).Str("eventId", ev.ID).Msg("enqueue failed, will retry")
			continue
		}
		relayed = append(relayed, ev.ID)
	}
	if len(relayed) == 0 {
		return 0, nil
	}
	if err := r.outbox.MarkRelayed(ctx, relayed, time.Now()); err != nil {
		// The events are queued; a second relay is absorbed by de-duplication.
		return len(relayed), fmt.Errorf("mark relayed: %w", err)
	}
	telemetry.OutboxRelayed.Add(float64(len(relayed)))
	return len(relayed), nil
}

// EventDispatcher is what the worker feeds leased events to.
type EventDispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

// Worker drains the queue into the dispatcher.
type Worker struct {
	queue      Queue
	dispatcher EventDispatcher
	poll       time.Duration
	log        zerolog.Logger
}

// NewWorker returns a Worker polling every poll when the queue is empty.
func NewWorker(q Queue, d EventDispatcher, poll time.Duration, log zerolog.Logger) *Worker {
	if poll <= 0 {
		poll = time.Second
	}
	return &Worker{queue: q, dispatcher: d, poll: poll, log: log}
}

// Run processes events until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if reclaimed, err := w.queue.RequeueExpired(ctx, time.Now(), 100); err == nil && len(reclaimed) > 0 {
			telemetry.InFlightGauge.Sub(float64(len(reclaimed)))
			w.log.Info().Int("count", len(reclaimed)).Msg("requeued expired leases")
		}

		processed, err := w.ProcessOne(ctx)
		if err != nil {
			w.log.Warn().Err(err).Msg("event processing failed")
		}
		if processed {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.poll):
		}
	}
}

// ProcessOne leases one event and dispatches it. It reports whether an event
// was taken. A failed dispatch is left in flight so the lease expiry retries it.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	ev, ok, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}
	if !ok {
		return false, nil
	}
	telemetry.InFlightGauge.Inc()

	if err := w.dispatcher.Dispatch(ctx, ev); err != nil {
		telemetry.EventsFailed.Inc()
		return true, fmt.Errorf("dispatch %s %s: %w", ev.Kind, ev.ID, err)
	}

	telemetry.InFlightGauge.Dec()
	if err := w.queue.Ack(ctx, ev.ID); err != nil {
		return true, fmt.Errorf("ack %s: %w", ev.ID, err)
	}
	w.log.Debug().Str("eventId", ev.ID).Str("kind", string(ev.Kind)).Msg("event dispatched")
	return true, nil
}
