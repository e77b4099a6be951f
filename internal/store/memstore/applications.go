package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/jobgate"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/lifecycle"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/notify"
)

type jobRecord struct {
	job jobgate.Job
}

// Jobs is the job read model.
type Jobs struct {
	mu   sync.RWMutex
	jobs map[string]jobRecord
	apps *Applications
}

// Put inserts or replaces a job.
func (s *Jobs) Put(j jobgate.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = jobRecord{job: j}
}

// Job returns the job with its active application count.
func (s *Jobs) Job(_ context.Context, id string) (jobgate.Job, error) {
	s.mu.RLock()
	rec, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return jobgate.Job{}, jobgate.ErrJobNotFound
	}
	j := rec.job
	j.RequiredDocuments = slices.Clone(j.RequiredDocuments)
	j.ActiveApplications = s.apps.activeFor(id)
	return j, nil
}

func (s *Jobs) openings(jobID string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[jobID]
	if !ok {
		return 0, false
	}
	return rec.job.Openings(), true
}

func (s *Jobs) linkApplication(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.jobs[jobID]; ok {
		rec.job.ApplicationCount++
		s.jobs[jobID] = rec
	}
}

type appRecord struct {
	app *lifecycle.Application
}

// Applications implements lifecycle.Repository.
type Applications struct {
	mu     sync.RWMutex
	byID   map[string]appRecord
	byPair map[string]string
	locks  *keyLocks
	jobs   *Jobs
	outbox *Outbox
}

func pairKey(candidateID, jobID string) string { return candidateID + "\x00" + jobID }

// Create inserts app if the (candidate, job) pair is free and the job still
// has an opening.
func (s *Applications) Create(_ context.Context, app *lifecycle.Application, events []notify.Event) error {
	openings, ok := s.jobs.openings(app.JobID)
	if !ok {
		return fmt.Errorf("job %s: %w", app.JobID, lifecycle.ErrNotFound)
	}

	s.mu.Lock()
	key := pairKey(app.CandidateID, app.JobID)
	if _, exists := s.byPair[key]; exists {
		s.mu.Unlock()
		return fmt.Errorf("candidate %s already applied to job %s: %w",
			app.CandidateID, app.JobID, lifecycle.ErrDuplicateApplication)
	}
	if s.countActive(app.JobID) >= openings {
		s.mu.Unlock()
		return &lifecycle.ClosedError{JobID: app.JobID, Reason: jobgate.ReasonOpeningsFilled}
	}
	s.byPair[key] = app.ID
	s.byID[app.ID] = appRecord{app: app.Clone()}
	s.outbox.stage(events)
	s.mu.Unlock()

	s.jobs.linkApplication(app.JobID)
	return nil
}

// Get returns a copy of the application.
func (s *Applications) Get(_ context.Context, id string) (*lifecycle.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("application %s: %w", id, lifecycle.ErrNotFound)
	}
	return rec.app.Clone(), nil
}

// List returns matching applications, newest first.
func (s *Applications) List(_ context.Context, f lifecycle.Filter) ([]*lifecycle.Application, error) {
	s.mu.RLock()
	var out []*lifecycle.Application
	for _, rec := range s.byID {
		a := rec.app
		if f.CandidateID != "" && a.CandidateID != f.CandidateID {
			continue
		}
		if f.JobID != "" && a.JobID != f.JobID {
			continue
		}
		if f.EnterpriseID != "" && a.EnterpriseID != f.EnterpriseID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.ActiveOnly && !a.Active {
			continue
		}
		out = append(out, a.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *lifecycle.Application) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Mutate applies fn under the application's lock.
func (s *Applications) Mutate(ctx context.Context, id string, fn lifecycle.MutateFunc) (*lifecycle.Application, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	app, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := fn(app)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.byID[id] = appRecord{app: app.Clone()}
	s.outbox.stage(events)
	s.mu.Unlock()
	return app, nil
}

func (s *Applications) activeFor(jobID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countActive(jobID)
}

// countActive expects s.mu to be held.
func (s *Applications) countActive(jobID string) int {
	n := 0
	for _, rec := range s.byID {
		if rec.app.JobID == jobID && rec.app.Active {
			n++
		}
	}
	return n
}
