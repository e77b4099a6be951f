// Package sweeper wires the cron jobs that drive the background side of the
// service: relaying the outbox, reminding candidates of upcoming interviews
// and purging expired notifications.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/telemetry"
)

// OutboxRetention is how long relayed outbox rows are kept before the purge
// job removes them.
const OutboxRetention = 7 * 24 * time.Hour

// requeueBatch caps how many expired leases one relay tick reclaims.
const requeueBatch = 500

// Relayer moves staged events into the delivery queue.
type Relayer interface {
	RelayOnce(ctx context.Context) (int, error)
}

// LeaseQueue is the queue side the relay job maintains.
type LeaseQueue interface {
	RequeueExpired(ctx context.Context, now time.Time, limit int64) ([]string, error)
	Depth(ctx context.Context) (ready, inflight int64, err error)
}

// Reminder sends reminders for interviews starting soon.
type Reminder interface {
	RemindUpcoming(ctx context.Context, window time.Duration) (int, error)
}

// Purger deletes expired notifications.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// OutboxPurger deletes relayed outbox rows older than a cutoff.
type OutboxPurger interface {
	PurgeRelayed(ctx context.Context, cutoff time.Time) (int64, error)
}

// Specs are the cron expressions of the three jobs. An empty spec disables
// that job.
type Specs struct {
	Relay          string
	Reminders      string
	ReminderWindow time.Duration
	Purge          string
}

// Jobs groups the collaborators the cron jobs call into.
type Jobs struct {
	Relay    Relayer
	Queue    LeaseQueue
	Reminder Reminder
	Inbox    Purger
	Outbox   OutboxPurger
}

// Sweeper wraps robfig/cron and owns the periodic jobs.
type Sweeper struct {
	cron  *cron.Cron
	specs Specs
	jobs  Jobs
	now   func() time.Time
	log   zerolog.Logger
}

// New creates a Sweeper. Overlapping runs of the same job are skipped.
func New(specs Specs, jobs Jobs, log zerolog.Logger) *Sweeper {
	cl := cronLogger{log: log}
	return &Sweeper{
		cron:  cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		specs: specs,
		jobs:  jobs,
		now:   time.Now,
		log:   log,
	}
}

// Start registers the jobs and starts the scheduler. The relay job also runs
// once immediately so events staged before a restart are not held back until
// the first tick.
func (s *Sweeper) Start(ctx context.Context) error {
	entries := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{"relay", s.specs.Relay, s.RelayTick},
		{"reminders", s.specs.Reminders, s.RemindTick},
		{"purge", s.specs.Purge, s.PurgeTick},
	}
	for _, e := range entries {
		if e.spec == "" {
			s.log.Warn().Str("job", e.name).Msg("no schedule, job disabled")
			continue
		}
		run := e.run
		if _, err := s.cron.AddFunc(e.spec, func() { run(ctx) }); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", e.name, e.spec, err)
		}
		s.log.Info().Str("job", e.name).Str("spec", e.spec).Msg("job scheduled")
	}

	s.cron.Start()
	s.log.Info().Msg("sweeper started")

	if s.specs.Relay != "" {
		go s.RelayTick(ctx)
	}
	return nil
}

// Stop halts the scheduler and waits for running jobs to return.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("sweeper stopped")
}

// RelayTick reclaims expired leases, relays pending outbox events and
// refreshes the queue gauges.
func (s *Sweeper) RelayTick(ctx context.Context) {
	if s.jobs.Queue != nil {
		ids, err := s.jobs.Queue.RequeueExpired(ctx, s.now(), requeueBatch)
		if err != nil {
			s.log.Error().Err(err).Msg("requeue expired leases")
		} else if len(ids) > 0 {
			s.log.Warn().Int("count", len(ids)).Msg("requeued events with expired leases")
		}
	}

	if s.jobs.Relay != nil {
		n, err := s.jobs.Relay.RelayOnce(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("relay outbox")
		}
		if n > 0 {
			s.log.Debug().Int("count", n).Msg("outbox events relayed")
		}
	}

	if s.jobs.Queue != nil {
		ready, inflight, err := s.jobs.Queue.Depth(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("queue depth")
			return
		}
		telemetry.QueueDepthGauge.Set(float64(ready))
		telemetry.InFlightGauge.Set(float64(inflight))
	}
}

// RemindTick sends reminders for interviews inside the configured window.
func (s *Sweeper) RemindTick(ctx context.Context) {
	if s.jobs.Reminder == nil {
		return
	}
	window := s.specs.ReminderWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	if _, err := s.jobs.Reminder.RemindUpcoming(ctx, window); err != nil {
		s.log.Error().Err(err).Msg("interview reminders")
	}
}

// PurgeTick deletes expired notifications and old relayed outbox rows.
func (s *Sweeper) PurgeTick(ctx context.Context) {
	if s.jobs.Inbox != nil {
		n, err := s.jobs.Inbox.PurgeExpired(ctx)
		if err != nil {
			s.log.Error().Err(err).Msg("purge expired notifications")
		} else if n > 0 {
			s.log.Info().Int64("count", n).Msg("expired notifications purged")
		}
	}
	if s.jobs.Outbox != nil {
		n, err := s.jobs.Outbox.PurgeRelayed(ctx, s.now().Add(-OutboxRetention))
		if err != nil {
			s.log.Error().Err(err).Msg("purge relayed outbox rows")
		} else if n > 0 {
			s.log.Info().Int64("count", n).Msg("relayed outbox rows purged")
		}
	}
}

// cronLogger routes robfig/cron's own logging through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
