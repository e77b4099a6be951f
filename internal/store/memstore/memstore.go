// Package memstore is an in-memory implementation of every repository port.
// It gives the same guarantees as the Postgres store: writers of one entity
// are serialised, the (candidate, job) pair is unique and outbox events are
// staged together with the change that produced them.
package memstore

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/notify"
)

// Store bundles the repositories over shared state.
type Store struct {
	Jobs          *Jobs
	Applications  *Applications
	Interviews    *Interviews
	Notifications *Notifications
	Outbox        *Outbox
}

// New returns an empty Store.
func New() *Store {
	ob := &Outbox{}
	jobs := &Jobs{jobs: make(map[string]jobRecord)}
	apps := &Applications{
		byID:   make(map[string]appRecord),
		byPair: make(map[string]string),
		locks:  newKeyLocks(),
		jobs:   jobs,
		outbox: ob,
	}
	jobs.apps = apps
	return &Store{
		Jobs:         jobs,
		Applications: apps,
		Interviews: &Interviews{
			byID:   make(map[string]interviewRecord),
			locks:  newKeyLocks(),
			outbox: ob,
		},
		Notifications: &Notifications{
			byID:    make(map[string]notify.Notification),
			byEvent: make(map[string]string),
		},
		Outbox: ob,
	}
}

// keyLocks hands out one mutex per key.
type keyLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func newKeyLocks() *keyLocks {
	return &keyLocks{m: make(map[string]*sync.Mutex)}
}

// lock acquires key's mutex and returns its release function.
func (k *keyLocks) lock(key string) func() {
	k.mu.Lock()
	l, ok := k.m[key]
	if !ok {
		l = &sync.Mutex{}
		k.m[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Outbox holds staged events until the relay picks them up.
type Outbox struct {
	mu      sync.Mutex
	entries []outboxEntry
}

type outboxEntry struct {
	event   notify.Event
	relayed bool
}

func (o *Outbox) stage(events []notify.Event) {
	if len(events) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, ev := range events {
		o.entries = append(o.entries, outboxEntry{event: ev})
	}
}

// Pending returns up to limit events not yet relayed, oldest first.
func (o *Outbox) Pending(_ context.Context, limit int) ([]notify.Event, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []notify.Event
	for _, e := range o.entries {
		if e.relayed {
			continue
		}
		out = append(out, e.event)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkRelayed flags the given events as handed to the queue.
func (o *Outbox) MarkRelayed(_ context.Context, ids []string, _ time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.entries {
		if slices.Contains(ids, o.entries[i].event.ID) {
			o.entries[i].relayed = true
		}
	}
	return nil
}

// Events returns every staged event, relayed or not, in staging order.
func (o *Outbox) Events() []notify.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]notify.Event, len(o.entries))
	for i, e := range o.entries {
		out[i] = e.event
	}
	return out
}

// PurgeRelayed drops relayed events. The in-memory outbox does not track
// relay time, so every relayed event counts as older than cutoff.
func (o *Outbox) PurgeRelayed(_ context.Context, _ time.Time) (int64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	kept := o.entries[:0]
	var purged int64
	for _, e := range o.entries {
		if e.relayed {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	o.entries = kept
	return purged, nil
}
