package interview

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/actor"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/lifecycle"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/notify"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/telemetry"
)

// Applications reads applications.
type Applications interface {
	Get(ctx context.Context, id string) (*lifecycle.Application, error)
}

// Advancer moves applications through the lifecycle.
type Advancer interface {
	Transition(ctx context.Context, applicationID string, target lifecycle.Status, who actor.Actor, comment string) (*lifecycle.Application, error)
	Policy() lifecycle.Policy
}

// Scheduler manages interviews.
type Scheduler struct {
	repo Repository
	apps Applications
	flow Advancer
	now  func() time.Time
	log  zerolog.Logger
}

// NewScheduler returns a Scheduler. A nil clock means time.Now.
func NewScheduler(repo Repository, apps Applications, flow Advancer, now func() time.Time, log zerolog.Logger) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{repo: repo, apps: apps, flow: flow, now: now, log: log}
}

// ScheduleRequest describes a new interview.
type ScheduleRequest struct {
	ApplicationID   string
	ScheduledDate   time.Time
	DurationMinutes int
	Type            Type
	Interviewers    []Interviewer
	Location        string
	MeetingLink     string
	Actor           actor.Actor
}

// Schedule creates a scheduled, unconfirmed interview for an application under
// review or shortlisted and notifies the candidate. The application status is
// not changed.
func (s *Scheduler) Schedule(ctx context.Context, req ScheduleRequest) (*Interview, error) {
	if _, err := ParseType(string(req.Type)); err != nil {
		return nil, &lifecycle.ValidationError{Msg: err.Error()}
	}
	location := strings.TrimSpace(req.Location)
	link := strings.TrimSpace(req.MeetingLink)
	if err := checkVenue(req.Type, location, link); err != nil {
		return nil, err
	}
	if req.DurationMinutes < 0 {
		return nil, &lifecycle.ValidationError{Msg: "duration must not be negative"}
	}

	app, err := s.apps.Get(ctx, req.ApplicationID)
	if err != nil {
		return nil, err
	}
	if err := authorizeStaff(req.Actor, app.EnterpriseID); err != nil {
		return nil, err
	}
	if app.Status != lifecycle.StatusReviewing && app.Status != lifecycle.StatusShortlisted {
		return nil, fmt.Errorf("%w: cannot schedule an interview while the application is %s",
			lifecycle.ErrInvalidTransition, app.Status)
	}

	now := s.now()
	if !req.ScheduledDate.After(now) {
		return nil, ErrAlreadyPast
	}

	duration := req.DurationMinutes
	if duration == 0 {
		duration = 60
	}
	iv := &Interview{
		ID:              uuid.NewString(),
		ApplicationID:   app.ID,
		JobID:           app.JobID,
		JobTitle:        app.JobTitle,
		CandidateID:     app.CandidateID,
		EnterpriseID:    app.EnterpriseID,
		ScheduledDate:   req.ScheduledDate,
		DurationMinutes: duration,
		Type:            req.Type,
		Status:          StatusScheduled,
		Interviewers:    req.Interviewers,
		Location:        location,
		MeetingLink:     link,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	ev := notify.NewEvent(notify.KindInterviewScheduled, now, iv.payload(false), notify.Candidate(iv.CandidateID))
	if err := s.repo.Create(ctx, iv, []notify.Event{ev}); err != nil {
		return nil, fmt.Errorf("create interview: %w", err)
	}

	telemetry.InterviewActions.WithLabelValues("scheduled").Inc()
	s.log.Info().
		Str("interviewId", iv.ID).
		Str("applicationId", iv.ApplicationID).
		Time("scheduledDate", iv.ScheduledDate).
		Msg("interview scheduled")
	return iv, nil
}

// Get returns an interview visible to who.
func (s *Scheduler) Get(ctx context.Context, id string, who actor.Actor) (*Interview, error) {
	iv, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canView(iv, who) {
		return nil, ErrNotFound
	}
	return iv, nil
}

// ForApplication lists the interviews of an application, including the
// rescheduled chain.
func (s *Scheduler) ForApplication(ctx context.Context, applicationID string, who actor.Actor) ([]*Interview, error) {
	app, err := s.apps.Get(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if !canViewApp(app, who) {
		return nil, fmt.Errorf("application %s: %w", applicationID, lifecycle.ErrNotFound)
	}
	return s.repo.ByApplication(ctx, applicationID)
}

// Confirm records the candidate's attendance confirmation. A past interview
// fails with ErrAlreadyPast and stays unconfirmed.
func (s *Scheduler) Confirm(ctx context.Context, id string, who actor.Actor) (*Interview, error) {
	iv, err := s.repo.Mutate(ctx, id, func(iv *Interview) ([]notify.Event, error) {
		if who.Role != actor.RoleCandidate || who.ID != iv.CandidateID {
			return nil, fmt.Errorf("%w: only the candidate can confirm the interview", lifecycle.ErrUnauthorized)
		}
		if err := requireScheduled(iv); err != nil {
			return nil, err
		}
		now := s.now()
		if !iv.ScheduledDate.After(now) {
			return nil, ErrAlreadyPast
		}
		if iv.Confirmed {
			return nil, nil
		}
		iv.Confirmed = true
		iv.ConfirmedAt = &now
		iv.UpdatedAt = now
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.InterviewActions.WithLabelValues("confirmed").Inc()
	return iv, nil
}

// Reschedule moves a scheduled interview to a new date. The original is kept
// as rescheduled and a successor pointing back to it is created unconfirmed.
func (s *Scheduler) Reschedule(ctx context.Context, id string, newDate time.Time, who actor.Actor) (*Interview, error) {
	next, err := s.repo.Replace(ctx, id, func(old *Interview) (*Interview, []notify.Event, error) {
		if err := authorizeStaff(who, old.EnterpriseID); err != nil {
			return nil, nil, err
		}
		if err := requireScheduled(old); err != nil {
			return nil, nil, err
		}
		now := s.now()
		if !newDate.After(now) {
			return nil, nil, ErrAlreadyPast
		}

		next := old.Clone()
		next.ID = uuid.NewString()
		next.ScheduledDate = newDate
		next.Status = StatusScheduled
		next.Confirmed = false
		next.ConfirmedAt = nil
		next.RemindedAt = nil
		next.Feedback = nil
		next.PreviousID = old.ID
		next.CreatedAt = now
		next.UpdatedAt = now

		old.Status = StatusRescheduled
		old.UpdatedAt = now

		ev := notify.NewEvent(notify.KindInterviewScheduled, now, next.payload(true), notify.Candidate(next.CandidateID))
		return next, []notify.Event{ev}, nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.InterviewActions.WithLabelValues("rescheduled").Inc()
	s.log.Info().Str("interviewId", next.ID).Str("previousId", id).Msg("interview rescheduled")
	return next, nil
}

// Cancel cancels a scheduled interview. The application is not touched.
func (s *Scheduler) Cancel(ctx context.Context, id, reason string, who actor.Actor) (*Interview, error) {
	iv, err := s.repo.Mutate(ctx, id, func(iv *Interview) ([]notify.Event, error) {
		isCandidate := who.Role == actor.RoleCandidate && who.ID == iv.CandidateID
		if !isCandidate {
			if err := authorizeStaff(who, iv.EnterpriseID); err != nil {
				return nil, err
			}
		}
		if err := requireScheduled(iv); err != nil {
			return nil, err
		}
		iv.Status = StatusCancelled
		iv.CancelReason = strings.TrimSpace(reason)
		iv.UpdatedAt = s.now()
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.InterviewActions.WithLabelValues("cancelled").Inc()
	return iv, nil
}

// Complete records feedback and advances the application to interviewed
// along the shortest route the transition policy allows, which passes
// through shortlisted under the default policy. Terminal applications and
// those already past interviewed are left alone. The interview stays
// completed when advancing fails; the failure is logged.
func (s *Scheduler) Complete(ctx context.Context, id string, fb Feedback, who actor.Actor) (*Interview, error) {
	if fb.Rating != 0 && (fb.Rating < 1 || fb.Rating > 5) {
		return nil, &lifecycle.ValidationError{Msg: "rating must be between 1 and 5"}
	}
	iv, err := s.repo.Mutate(ctx, id, func(iv *Interview) ([]notify.Event, error) {
		if err := authorizeStaff(who, iv.EnterpriseID); err != nil {
			return nil, err
		}
		if err := requireScheduled(iv); err != nil {
			return nil, err
		}
		f := fb
		iv.Status = StatusCompleted
		iv.Feedback = &f
		iv.UpdatedAt = s.now()
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	telemetry.InterviewActions.WithLabelValues("completed").Inc()

	if err := s.advance(ctx, iv, who); err != nil {
		s.log.Warn().Err(err).
			Str("interviewId", iv.ID).
			Str("applicationId", iv.ApplicationID).
			Msg("interview completed but application not advanced")
	}
	return iv, nil
}

func (s *Scheduler) advance(ctx context.Context, iv *Interview, who actor.Actor) error {
	app, err := s.apps.Get(ctx, iv.ApplicationID)
	if err != nil {
		return err
	}
	if lifecycle.IsTerminal(app.Status) || lifecycle.Reached(app.Status, lifecycle.StatusInterviewed) {
		return nil
	}
	path := s.flow.Policy().Path(app.Status, lifecycle.StatusInterviewed)
	if len(path) == 0 {
		s.log.Info().
			Str("applicationId", app.ID).
			Str("status", string(app.Status)).
			Msg("no route to interviewed, application left as is")
		return nil
	}
	comment := fmt.Sprintf("%s interview completed", iv.Type)
	for _, step := range path {
		if _, err := s.flow.Transition(ctx, app.ID, step, who, comment); err != nil {
			return fmt.Errorf("move application %s to %s: %w", app.ID, step, err)
		}
	}
	return nil
}

// RemindUpcoming emits one interview_reminder per scheduled interview starting
// within window. It is driven by a periodic trigger and returns the number of
// reminders sent.
func (s *Scheduler) RemindUpcoming(ctx context.Context, window time.Duration) (int, error) {
	now := s.now()
	list, err := s.repo.Upcoming(ctx, now, now.Add(window), 500)
	if err != nil {
		return 0, fmt.Errorf("load upcoming interviews: %w", err)
	}

	sent := 0
	for _, candidate := range list {
		reminded := false
		_, err := s.repo.Mutate(ctx, candidate.ID, func(iv *Interview) ([]notify.Event, error) {
			if iv.Status != StatusScheduled || iv.RemindedAt != nil || !iv.ScheduledDate.After(now) {
				return nil, nil
			}
			iv.RemindedAt = &now
			iv.UpdatedAt = now
			reminded = true
			return []notify.Event{
				notify.NewEvent(notify.KindInterviewReminder, now, iv.payload(false), notify.Candidate(iv.CandidateID)),
			}, nil
		})
		if err != nil {
			s.log.Warn().Err(err).Str("interviewId", candidate.ID).Msg("interview reminder failed")
			continue
		}
		if reminded {
			sent++
		}
	}
	if sent > 0 {
		telemetry.InterviewActions.WithLabelValues("reminded").Add(float64(sent))
		s.log.Info().Int("count", sent).Msg("interview reminders queued")
	}
	return sent, nil
}

func requireScheduled(iv *Interview) error {
	if iv.Status != StatusScheduled {
		return fmt.Errorf("%w: interview is %s", lifecycle.ErrInvalidTransition, iv.Status)
	}
	return nil
}

func authorizeStaff(who actor.Actor, enterpriseID string) error {
	if who.CanManage(enterpriseID) {
		return nil
	}
	return fmt.Errorf("%w: only the hiring enterprise can manage interviews", lifecycle.ErrUnauthorized)
}

func canView(iv *Interview, who actor.Actor) bool {
	switch who.Role {
	case actor.RoleAdmin, actor.RoleSystem:
		return true
	case actor.RoleCandidate:
		return who.ID == iv.CandidateID
	case actor.RoleEnterprise:
		return who.ID == iv.EnterpriseID
	}
	return false
}

func canViewApp(a *lifecycle.Application, who actor.Actor) bool {
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
