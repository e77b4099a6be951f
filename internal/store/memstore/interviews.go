package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/interview"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/notify"
)

type interviewRecord struct {
	iv *interview.Interview
}

// Interviews implements interview.Repository.
type Interviews struct {
	mu     sync.RWMutex
	byID   map[string]interviewRecord
	locks  *keyLocks
	outbox *Outbox
}

// Create inserts iv and stages events.
func (s *Interviews) Create(_ context.Context, iv *interview.Interview, events []notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[iv.ID]; exists {
		return fmt.Errorf("interview %s already exists", iv.ID)
	}
	s.byID[iv.ID] = interviewRecord{iv: iv.Clone()}
	s.outbox.stage(events)
	return nil
}

// Get returns a copy of the interview.
func (s *Interviews) Get(_ context.Context, id string) (*interview.Interview, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, interview.ErrNotFound)
	}
	return rec.iv.Clone(), nil
}

// ByApplication returns an application's interviews by scheduled date.
func (s *Interviews) ByApplication(_ context.Context, applicationID string) ([]*interview.Interview, error) {
	s.mu.RLock()
	var out []*interview.Interview
	for _, rec := range s.byID {
		if rec.iv.ApplicationID == applicationID {
			out = append(out, rec.iv.Clone())
		}
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b *interview.Interview) int {
		return a.ScheduledDate.Compare(b.ScheduledDate)
	})
	return out, nil
}

// Mutate applies fn under the interview's lock.
func (s *Interviews) Mutate(ctx context.Context, id string, fn interview.MutateFunc) (*interview.Interview, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	iv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := fn(iv)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.byID[id] = interviewRecord{iv: iv.Clone()}
	s.outbox.stage(events)
	s.mu.Unlock()
	return iv, nil
}

// Replace updates the interview and inserts its successor together.
func (s *Interviews) Replace(ctx context.Context, id string, fn interview.ReplaceFunc) (*interview.Interview, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	old, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, events, err := fn(old)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.byID[id] = interviewRecord{iv: old.Clone()}
	s.byID[next.ID] = interviewRecord{iv: next.Clone()}
	s.outbox.stage(events)
	s.mu.Unlock()
	return next, nil
}

// Upcoming returns scheduled, unreminded interviews starting in [from, to].
func (s *Interviews) Upcoming(_ context.Context, from, to time.Time, limit int) ([]*interview.Interview, error) {
	s.mu.RLock()
	var out []*interview.Interview
	for _, rec := range s.byID {
		iv := rec.iv
		if iv.Status != interview.StatusScheduled || iv.RemindedAt != nil {
			continue
		}
		if iv.ScheduledDate.Before(from) || iv.ScheduledDate.After(to) {
			continue
		}
		out = append(out, iv.Clone())
	}
	s.mu.RUnlock()
	slices.SortFunc(out, func(a, b *interview.Interview) int {
		return a.ScheduledDate.Compare(b.ScheduledDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
