package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/actor"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/jobgate"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/notify"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/telemetry"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/timeline"
)

// DocumentVerifier checks that a referenced artifact exists in asset storage.
type DocumentVerifier interface {
	Exists(ctx context.Context, url string) (bool, error)
}

// Broadcaster publishes live board moves after a transition commits.
type Broadcaster interface {
	ApplicationMoved(ctx context.Context, p notify.StatusChangePayload) error
}

// DefaultBroadcastTimeout bounds a live board publish.
const DefaultBroadcastTimeout = 2 * time.Second

// Service implements the application lifecycle.
type Service struct {
	repo             Repository
	jobs             jobgate.Reader
	policy           Policy
	verifier         DocumentVerifier
	broadcaster      Broadcaster
	broadcastTimeout time.Duration
	now              func() time.Time
	log              zerolog.Logger
}

// Option customises a Service.
type Option func(*Service)

// WithPolicy replaces the default transition policy.
func WithPolicy(p Policy) Option { return func(s *Service) { s.policy = p } }

// WithVerifier makes Submit check that document references resolve.
func WithVerifier(v DocumentVerifier) Option { return func(s *Service) { s.verifier = v } }

// WithBroadcaster publishes committed transitions for live views.
func WithBroadcaster(b Broadcaster) Option { return func(s *Service) { s.broadcaster = b } }

// WithBroadcastTimeout bounds each publish. Non-positive values keep the
// default.
func WithBroadcastTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.broadcastTimeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithLogger sets the service logger.
func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.log = l } }

// NewService returns a Service over repo reading jobs from jobs.
func NewService(repo Repository, jobs jobgate.Reader, opts ...Option) *Service {
	s := &Service{
		repo:             repo,
		jobs:             jobs,
		policy:           DefaultPolicy(),
		broadcastTimeout: DefaultBroadcastTimeout,
		now:              time.Now,
		log:              zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Policy returns the transition policy in force.
func (s *Service) Policy() Policy { return s.policy }

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.now() }

// SubmitRequest carries a candidate's application.
type SubmitRequest struct {
	Candidate        actor.Actor
	JobID            string
	Documents        Documents
	ScreeningAnswers []ScreeningAnswer
	Experience       string
	ExpectedSalary   *Salary
	AvailabilityDate *time.Time
	NoticePeriod     string
}

// Submit creates a pending application after the job gate and document checks
// pass. The application and its application_submitted event are stored in one
// unit.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Application, error) {
	if req.Candidate.Role != actor.RoleCandidate || req.Candidate.ID == "" {
		telemetry.Submissions.WithLabelValues("unauthorized").Inc()
		return nil, fmt.Errorf("%w: only candidates can apply", ErrUnauthorized)
	}
	if strings.TrimSpace(req.JobID) == "" {
		return nil, &ValidationError{Msg: "jobId is required"}
	}

	job, err := s.jobs.Job(ctx, req.JobID)
	if errors.Is(err, jobgate.ErrJobNotFound) {
		return nil, fmt.Errorf("job %s: %w", req.JobID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}

	now := s.now()
	if reason := jobgate.Check(job, now); reason != "" {
		telemetry.Submissions.WithLabelValues("job_closed").Inc()
		return nil, &ClosedError{JobID: job.ID, Reason: reason}
	}

	missing, err := s.missingDocuments(ctx, job, req.Documents)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		telemetry.Submissions.WithLabelValues("missing_documents").Inc()
		return nil, &MissingDocumentsError{Kinds: missing}
	}

	app := &Application{
		ID:               uuid.NewString(),
		CandidateID:      req.Candidate.ID,
		JobID:            job.ID,
		EnterpriseID:     job.EnterpriseID,
		JobTitle:         job.Title,
		Status:           StatusPending,
		Documents:        req.Documents,
		ScreeningAnswers: req.ScreeningAnswers,
		Experience:       req.Experience,
		ExpectedSalary:   req.ExpectedSalary,
		AvailabilityDate: req.AvailabilityDate,
		NoticePeriod:     req.NoticePeriod,
		Active:           true,
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := app.Timeline.Append(timeline.Entry{
		Status:  string(StatusPending),
		Date:    now,
		Comment: "Application submitted",
		Actor:   req.Candidate,
	}); err != nil {
		return nil, err
	}

	ev := notify.NewEvent(notify.KindApplicationSubmitted, now, notify.ApplicationPayload{
		ApplicationID: app.ID,
		JobID:         app.JobID,
		JobTitle:      app.JobTitle,
		CandidateID:   app.CandidateID,
		EnterpriseID:  app.EnterpriseID,
	}, notify.Candidate(app.CandidateID), notify.Enterprise(app.EnterpriseID))

	if err := s.repo.Create(ctx, app, []notify.Event{ev}); err != nil {
		switch {
		case errors.Is(err, ErrDuplicateApplication):
			telemetry.Submissions.WithLabelValues("duplicate").Inc()
		case errors.Is(err, ErrJobClosed):
			telemetry.Submissions.WithLabelValues("job_closed").Inc()
		}
		return nil, fmt.Errorf("create application: %w", err)
	}

	telemetry.Submissions.WithLabelValues("ok").Inc()
	s.log.Info().
		Str("applicationId", app.ID).
		Str("jobId", app.JobID).
		Str("candidateId", app.CandidateID).
		Msg("application submitted")
	return app, nil
}

// missingDocuments returns the sorted required kinds that are absent or,
// with a verifier, whose artifacts cannot be found.
func (s *Service) missingDocuments(ctx context.Context, job jobgate.Job, docs Documents) ([]jobgate.DocumentKind, error) {
	var missing []jobgate.DocumentKind
	for _, kind := range jobgate.RequiredDocuments(job) {
		if !docs.Has(kind) {
			missing = append(missing, kind)
			continue
		}
		if s.verifier == nil {
			continue
		}
		for _, a := range docs.Artifacts(kind) {
			ok, err := s.verifier.Exists(ctx, a.URL)
			if err != nil {
				return nil, fmt.Errorf("verify %s document: %w", kind, err)
			}
			if !ok {
				missing = append(missing, kind)
				break
			}
		}
	}
	slices.Sort(missing)
	return missing, nil
}

// Transition moves an application to target. The status change, its timeline
// entry and the resulting events commit together or not at all.
func (s *Service) Transition(ctx context.Context, applicationID string, target Status, who actor.Actor, comment string) (*Application, error) {
	if _, err := ParseStatus(string(target)); err != nil {
		return nil, &ValidationError{Msg: err.Error()}
	}

	var from Status
	app, err := s.repo.Mutate(ctx, applicationID, func(a *Application) ([]notify.Event, error) {
		from = a.Status
		if IsTerminal(a.Status) {
			return nil, fmt.Errorf("%w: application is %s", ErrTerminalState, a.Status)
		}
		if !s.policy.Allowed(a.Status, target) {
			return nil, &TransitionError{From: a.Status, To: target}
		}
		if err := authorize(a, target, who); err != nil {
			return nil, err
		}

		now := s.now()
		if err := a.Timeline.Append(timeline.Entry{
			Status:  string(target),
			Date:    now,
			Comment: comment,
			Actor:   who,
		}); err != nil {
			return nil, err
		}
		a.Status = target
		if Deactivates(target) {
			a.Active = false
		}
		a.Version++
		a.UpdatedAt = now
		return transitionEvents(a, from, comment, who, now), nil
	})
	if err != nil {
		telemetry.TransitionRejects.WithLabelValues(rejectReason(err)).Inc()
		return nil, err
	}

	telemetry.Transitions.WithLabelValues(string(from), string(target)).Inc()
	s.log.Info().
		Str("applicationId", app.ID).
		Str("from", string(from)).
		Str("to", string(target)).
		Str("actorId", who.ID).
		Msg("application moved")

	s.broadcast(ctx, statusPayload(app, from, comment, who))
	return app, nil
}

// broadcast publishes a committed move within the broadcast timeout. Failures
// are logged only.
func (s *Service) broadcast(ctx context.Context, p notify.StatusChangePayload) {
	if s.broadcaster == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.broadcastTimeout)
	defer cancel()
	if err := s.broadcaster.ApplicationMoved(ctx, p); err != nil {
		s.log.Warn().Err(err).Str("applicationId", p.ApplicationID).Msg("broadcast application move failed")
	}
}

// authorize checks the actor against the target status: withdrawal belongs to
// the applicant, every other move to the owning enterprise or an admin.
func authorize(a *Application, target Status, who actor.Actor) error {
	if target == StatusWithdrawn {
		if who.Role == actor.RoleCandidate && who.ID == a.CandidateID {
			return nil
		}
		return fmt.Errorf("%w: only the applicant can withdraw", ErrUnauthorized)
	}
	switch who.Role {
	case actor.RoleAdmin, actor.RoleSystem:
		return nil
	case actor.RoleEnterprise:
		if who.ID == a.EnterpriseID {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %q cannot move application to %s", ErrUnauthorized, who.Role, who.ID, target)
}

func statusPayload(a *Application, from Status, comment string, who actor.Actor) notify.StatusChangePayload {
	return notify.StatusChangePayload{
		ApplicationID: a.ID,
		JobID:         a.JobID,
		JobTitle:      a.JobTitle,
		CandidateID:   a.CandidateID,
		EnterpriseID:  a.EnterpriseID,
		From:          string(from),
		To:            string(a.Status),
		Comment:       comment,
		ActorID:       who.ID,
	}
}

// transitionEvents returns application_status_changed plus the
// status-specific follow-up. The enterprise is told about changes it did not
// make itself.
func transitionEvents(a *Application, from Status, comment string, who actor.Actor, at time.Time) []notify.Event {
	p := statusPayload(a, from, comment, who)
	recipients := []notify.Recipient{notify.Candidate(a.CandidateID)}
	if who.Role != actor.RoleEnterprise || who.ID != a.EnterpriseID {
		recipients = append(recipients, notify.Enterprise(a.EnterpriseID))
	}
	events := []notify.Event{notify.NewEvent(notify.KindApplicationStatusChanged, at, p, recipients...)}

	switch a.Status {
	case StatusAccepted:
		events = append(events, notify.NewEvent(notify.KindApplicationAccepted, at, p, notify.Candidate(a.CandidateID)))
	case StatusRejected:
		events = append(events, notify.NewEvent(notify.KindApplicationRejected, at, p, notify.Candidate(a.CandidateID)))
	}
	return events
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTerminalState):
		return "terminal_state"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, timeline.ErrOutOfOrderTimestamp):
		return "out_of_order"
	}
	return "error"
}

// canView reports whether who may read a.
func canView(a *Application, who actor.Actor) bool {
	switch who.Role {
	case actor.RoleAdmin, actor.RoleSystem:
		return true
	case actor.RoleCandidate:
		return who.ID == a.CandidateID
	case actor.RoleEnterprise:
		return who.ID == a.EnterpriseID
	}
	return false
}

// Get returns the application visible to who. Applications owned by someone
// else are reported as not found.
func (s *Service) Get(ctx context.Context, id string, who actor.Actor) (*Application, error) {
	app, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(app, who) {
		return nil, fmt.Errorf("application %s: %w", id, ErrNotFound)
	}
	return app, nil
}

// List returns applications matching f, scoped to what who may see.
func (s *Service) List(ctx context.Context, f Filter, who actor.Actor) ([]*Application, error) {
	switch who.Role {
	case actor.RoleCandidate:
		f.CandidateID = who.ID
	case actor.RoleEnterprise:
		f.EnterpriseID = who.ID
	case actor.RoleAdmin, actor.RoleSystem:
	default:
		return nil, fmt.Errorf("%w: unknown role", ErrUnauthorized)
	}
	if f.Status != "" {
		if _, err := ParseStatus(string(f.Status)); err != nil {
			return nil, &ValidationError{Msg: err.Error()}
		}
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	return s.repo.List(ctx, f)
}

// History returns the application's timeline, oldest first. The sequence can
// be ranged any number of times.
func (s *Service) History(ctx context.Context, id string, who actor.Actor) (iter.Seq[timeline.Entry], error) {
	app, err := s.Get(ctx, id, who)
	if err != nil {
		return nil, err
	}
	return app.Timeline.History(), nil
}

// AddNote attaches a recruiter note. Notes do not change the status.
func (s *Service) AddNote(ctx context.Context, id string, who actor.Actor, text string) (*Application, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &ValidationError{Msg: "note text is required"}
	}
	return s.repo.Mutate(ctx, id, func(a *Application) ([]notify.Event, error) {
		if err := authorizeStaff(a, who); err != nil {
			return nil, err
		}
		now := s.now()
		a.Notes = append(a.Notes, Note{AuthorID: who.ID, Text: text, At: now})
		a.Version++
		a.UpdatedAt = now
		return nil, nil
	})
}

// EvaluationInput is one rater's score.
type EvaluationInput struct {
	Criterion string
	Rating    int
	Comments  string
}

// AddEvaluation records a rating between 1 and 5.
func (s *Service) AddEvaluation(ctx context.Context, id string, who actor.Actor, in EvaluationInput) (*Application, error) {
	if in.Rating < 1 || in.Rating > 5 {
		return nil, &ValidationError{Msg: "rating must be between 1 and 5"}
	}
	if strings.TrimSpace(in.Criterion) == "" {
		return nil, &ValidationError{Msg: "criterion is required"}
	}
	return s.repo.Mutate(ctx, id, func(a *Application) ([]notify.Event, error) {
		if err := authorizeStaff(a, who); err != nil {
			return nil, err
		}
		now := s.now()
		a.Evaluations = append(a.Evaluations, Evaluation{
			RaterID:   who.ID,
			Criterion: strings.TrimSpace(in.Criterion),
			Rating:    in.Rating,
			Comments:  in.Comments,
			At:        now,
		})
		a.Version++
		a.UpdatedAt = now
		return nil, nil
	})
}

func authorizeStaff(a *Application, who actor.Actor) error {
	if who.CanManage(a.EnterpriseID) {
		return nil
	}
	return fmt.Errorf("%w: only the hiring enterprise can annotate applications", ErrUnauthorized)
}
