package interview_test

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/actor"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/interview"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/jobgate"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/lifecycle"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/notify"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/store/memstore"
)

var t0 = time.Date(2026, 4, 6, 10, 0, 0, 0, time.UTC)

var (
	candidate  = actor.Actor{ID: "cand-1", Role: actor.RoleCandidate}
	enterprise = actor.Actor{ID: "ent-1", Role: actor.RoleEnterprise}
	otherEnt   = actor.Actor{ID: "ent-2", Role: actor.RoleEnterprise}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	st    *memstore.Store
	svc   *lifecycle.Service
	sched *interview.Scheduler
	clk   *clock
	app   *lifecycle.Application
}

// newFixture submits one application and moves it to reviewing.
func newFixture(t *testing.T, opts ...lifecycle.Option) *fixture {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()
	st.Jobs.Put(jobgate.Job{
		ID:                  "job-1",
		EnterpriseID:        enterprise.ID,
		Title:               "SRE",
		Status:              jobgate.JobPublished,
		ApplicationDeadline: t0.Add(60 * 24 * time.Hour),
		NumberOfOpenings:    2,
	})
	clk := &clock{now: t0}
	svc := lifecycle.NewService(st.Applications, st.Jobs, append([]lifecycle.Option{lifecycle.WithClock(clk.Now)}, opts...)...)
	sched := interview.NewScheduler(st.Interviews, st.Applications, svc, clk.Now, zerolog.Nop())

	app, err := svc.Submit(ctx, lifecycle.SubmitRequest{Candidate: candidate, JobID: "job-1"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if app, err = svc.Transition(ctx, app.ID, lifecycle.StatusReviewing, enterprise, ""); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	return &fixture{st: st, svc: svc, sched: sched, clk: clk, app: app}
}

func (f *fixture) schedule(t *testing.T, at time.Time) *interview.Interview {
	t.Helper()
	iv, err := f.sched.Schedule(context.Background(), interview.ScheduleRequest{
		ApplicationID: f.app.ID,
		ScheduledDate: at,
		Type:          interview.TypeVideo,
		MeetingLink:   "https://meet.example.com/abc",
		Interviewers:  []interview.Interviewer{{Name: "Ada", Title: "CTO"}},
		Actor:         enterprise,
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	return iv
}

func lastEvent(t *testing.T, st *memstore.Store) notify.Event {
	t.Helper()
	events := st.Outbox.Events()
	if len(events) == 0 {
		t.Fatal("outbox is empty")
	}
	return events[len(events)-1]
}

func TestSchedule_CreatesUnconfirmedInterviewAndNotifies(t *testing.T) {
	f := newFixture(t)
	iv := f.schedule(t, t0.Add(48*time.Hour))

	if iv.Status != interview.StatusScheduled || iv.Confirmed {
		t.Errorf("interview = %+v, want scheduled and unconfirmed", iv)
	}
	if iv.DurationMinutes != 60 {
		t.Errorf("duration = %d, want default 60", iv.DurationMinutes)
	}

	ev := lastEvent(t, f.st)
	if ev.Kind != notify.KindInterviewScheduled {
		t.Fatalf("last event = %s, want interview_scheduled", ev.Kind)
	}
	if notify.PriorityFor(ev.Kind) != notify.PriorityHigh {
		t.Error("interview_scheduled should be high priority")
	}
	if len(ev.Recipients) != 1 || ev.Recipients[0] != notify.Candidate(candidate.ID) {
		t.Errorf("recipients = %v", ev.Recipients)
	}

	app, _ := f.st.Applications.Get(context.Background(), f.app.ID)
	if app.Status != lifecycle.StatusReviewing {
		t.Errorf("scheduling changed the application status to %s", app.Status)
	}
}

func TestSchedule_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	future := t0.Add(24 * time.Hour)

	cases := []struct {
		name string
		req  interview.ScheduleRequest
		want func(error) bool
	}{
		{
			"video without link",
			interview.ScheduleRequest{ApplicationID: f.app.ID, ScheduledDate: future, Type: interview.TypeVideo, Actor: enterprise},
			isValidation,
		},
		{
			"onsite without location",
			interview.ScheduleRequest{ApplicationID: f.app.ID, ScheduledDate: future, Type: interview.TypeOnsite, Actor: enterprise},
			isValidation,
		},
		{
			"technical without venue",
			interview.ScheduleRequest{ApplicationID: f.app.ID, ScheduledDate: future, Type: interview.TypeTechnical, Actor: enterprise},
			isValidation,
		},
		{
			"unknown type",
			interview.ScheduleRequest{ApplicationID: f.app.ID, ScheduledDate: future, Type: "carrier-pigeon", Actor: enterprise},
			isValidation,
		},
		{
			"past date",
			interview.ScheduleRequest{ApplicationID: f.app.ID, ScheduledDate: t0.Add(-time.Minute), Type: interview.TypePhone, Actor: enterprise},
			func(err error) bool { return errors.Is(err, interview.ErrAlreadyPast) },
		},
		{
			"other enterprise",
			interview.ScheduleRequest{ApplicationID: f.app.ID, ScheduledDate: future, Type: interview.TypePhone, Actor: otherEnt},
			func(err error) bool { return errors.Is(err, lifecycle.ErrUnauthorized) },
		},
		{
			"unknown application",
			interview.ScheduleRequest{ApplicationID: "nope", ScheduledDate: future, Type: interview.TypePhone, Actor: enterprise},
			func(err error) bool { return errors.Is(err, lifecycle.ErrNotFound) },
		},
	}
	for _, c := range cases {
		_, err := f.sched.Schedule(ctx, c.req)
		if !c.want(err) {
			t.Errorf("%s: unexpected error %v", c.name, err)
		}
	}

	if _, err := f.sched.Schedule(ctx, interview.ScheduleRequest{
		ApplicationID: f.app.ID, ScheduledDate: future, Type: interview.TypeHR, Location: "HQ", Actor: enterprise,
	}); err != nil {
		t.Errorf("hr with location should be accepted: %v", err)
	}
}

func isValidation(err error) bool {
	var ve *lifecycle.ValidationError
	return errors.As(err, &ve)
}

func TestSchedule_RequiresReviewOrShortlist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Transition(ctx, f.app.ID, lifecycle.StatusRejected, enterprise, ""); err != nil {
		t.Fatal(err)
	}
	_, err := f.sched.Schedule(ctx, interview.ScheduleRequest{
		ApplicationID: f.app.ID, ScheduledDate: t0.Add(time.Hour), Type: interview.TypePhone, Actor: enterprise,
	})
	if !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Errorf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	iv := f.schedule(t, t0.Add(2*time.Hour))

	if _, err := f.sched.Confirm(ctx, iv.ID, enterprise); !errors.Is(err, lifecycle.ErrUnauthorized) {
		t.Errorf("enterprise confirm: err = %v, want ErrUnauthorized", err)
	}

	got, err := f.sched.Confirm(ctx, iv.ID, candidate)
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !got.Confirmed || got.ConfirmedAt == nil || !got.ConfirmedAt.Equal(t0) {
		t.Errorf("interview = %+v, want confirmed at t0", got)
	}
}

func TestConfirm_PastInterviewStaysUnconfirmed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	iv := f.schedule(t, t0.Add(time.Hour))

	f.clk.Advance(2 * time.Hour)
	_, err := f.sched.Confirm(ctx, iv.ID, candidate)
	if !errors.Is(err, interview.ErrAlreadyPast) {
		t.Fatalf("err = %v, want ErrAlreadyPast", err)
	}
	stored, err := f.st.Interviews.Get(ctx, iv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Confirmed {
		t.Error("past interview must remain unconfirmed")
	}
}

func TestReschedule_KeepsChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	iv := f.schedule(t, t0.Add(24*time.Hour))
	if _, err := f.sched.Confirm(ctx, iv.ID, candidate); err != nil {
		t.Fatal(err)
	}

	next, err := f.sched.Reschedule(ctx, iv.ID, t0.Add(72*time.Hour), enterprise)
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if next.PreviousID != iv.ID || next.Status != interview.StatusScheduled || next.Confirmed {
		t.Errorf("successor = %+v", next)
	}
	if next.MeetingLink != iv.MeetingLink || len(next.Interviewers) != 1 {
		t.Error("successor should keep venue and panel")
	}

	old, _ := f.st.Interviews.Get(ctx, iv.ID)
	if old.Status != interview.StatusRescheduled {
		t.Errorf("original status = %s, want rescheduled", old.Status)
	}

	ev := lastEvent(t, f.st)
	p, ok := ev.Payload.(notify.InterviewPayload)
	if ev.Kind != notify.KindInterviewScheduled || !ok || !p.Rescheduled || p.InterviewID != next.ID {
		t.Errorf("last event = %s %+v", ev.Kind, ev.Payload)
	}

	if _, err := f.sched.Reschedule(ctx, iv.ID, t0.Add(96*time.Hour), enterprise); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Errorf("rescheduling a rescheduled interview: err = %v, want ErrInvalidTransition", err)
	}

	list, err := f.sched.ForApplication(ctx, f.app.ID, candidate)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("application has %d interviews, want 2", len(list))
	}
}

func TestCancel_LeavesApplicationAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	iv := f.schedule(t, t0.Add(24*time.Hour))
	events := len(f.st.Outbox.Events())

	got, err := f.sched.Cancel(ctx, iv.ID, "candidate unavailable", candidate)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != interview.StatusCancelled || got.CancelReason != "candidate unavailable" {
		t.Errorf("interview = %+v", got)
	}
	if n := len(f.st.Outbox.Events()); n != events {
		t.Errorf("cancel staged %d events", n-events)
	}
	app, _ := f.st.Applications.Get(ctx, f.app.ID)
	if app.Status != lifecycle.StatusReviewing {
		t.Errorf("application status = %s, want reviewing", app.Status)
	}
	if _, err := f.sched.Cancel(ctx, iv.ID, "", enterprise); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Errorf("second cancel: err = %v, want ErrInvalidTransition", err)
	}
}

func TestComplete_AdvancesApplicationThroughShortlist(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	iv := f.schedule(t, t0.Add(time.Hour))
	f.clk.Advance(2 * time.Hour)

	got, err := f.sched.Complete(ctx, iv.ID, interview.Feedback{Rating: 4, Comments: "solid", Interviewer: "Ada"}, enterprise)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Status != interview.StatusCompleted || got.Feedback == nil || got.Feedback.Rating != 4 {
		t.Errorf("interview = %+v", got)
	}

	app, _ := f.st.Applications.Get(ctx, f.app.ID)
	if app.Status != lifecycle.StatusInterviewed {
		t.Fatalf("application status = %s, want interviewed", app.Status)
	}
	var statuses []string
	for e := range app.Timeline.History() {
		statuses = append(statuses, e.Status)
	}
	want := []string{"pending", "reviewing", "shortlisted", "interviewed"}
	if len(statuses) != len(want) {
		t.Fatalf("history = %v, want %v", statuses, want)
	}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("history = %v, want %v", statuses, want)
			break
		}
	}
}

func statuses(app *lifecycle.Application) []string {
	var out []string
	for e := range app.Timeline.History() {
		out = append(out, e.Status)
	}
	return out
}

func policy(t *testing.T, edges map[lifecycle.Status][]lifecycle.Status) lifecycle.Option {
	t.Helper()
	p, err := lifecycle.NewPolicy(edges)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}
	return lifecycle.WithPolicy(p)
}

func TestComplete_FollowsCustomPolicyRoute(t *testing.T) {
	f := newFixture(t, policy(t, map[lifecycle.Status][]lifecycle.Status{
		lifecycle.StatusPending:     {lifecycle.StatusReviewing, lifecycle.StatusRejected},
		lifecycle.StatusReviewing:   {lifecycle.StatusInterviewed, lifecycle.StatusRejected},
		lifecycle.StatusInterviewed: {lifecycle.StatusOffered, lifecycle.StatusRejected},
	}))
	ctx := context.Background()
	iv := f.schedule(t, t0.Add(time.Hour))
	f.clk.Advance(2 * time.Hour)

	if _, err := f.sched.Complete(ctx, iv.ID, interview.Feedback{Rating: 3}, enterprise); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	app, _ := f.st.Applications.Get(ctx, f.app.ID)
	want := []string{"pending", "reviewing", "interviewed"}
	if got := statuses(app); !slices.Equal(got, want) {
		t.Errorf("history = %v, want %v", got, want)
	}
}

func TestComplete_WithoutRouteLeavesApplicationAndCompletes(t *testing.T) {
	f := newFixture(t, policy(t, map[lifecycle.Status][]lifecycle.Status{
		lifecycle.StatusPending:   {lifecycle.StatusReviewing},
		lifecycle.StatusReviewing: {lifecycle.StatusRejected},
	}))
	ctx := context.Background()
	iv := f.schedule(t, t0.Add(time.Hour))
	f.clk.Advance(2 * time.Hour)

	got, err := f.sched.Complete(ctx, iv.ID, interview.Feedback{Rating: 5}, enterprise)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got.Status != interview.StatusCompleted {
		t.Errorf("interview status = %s, want completed", got.Status)
	}
	app, _ := f.st.Applications.Get(ctx, f.app.ID)
	if app.Status != lifecycle.StatusReviewing {
		t.Errorf("application status = %s, want reviewing", app.Status)
	}
}

func TestComplete_NoOpWhenAlreadyPastInterviewed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	iv := f.schedule(t, t0.Add(time.Hour))
	for _, to := range []lifecycle.Status{lifecycle.StatusShortlisted, lifecycle.StatusInterviewed, lifecycle.StatusOffered} {
		if _, err := f.svc.Transition(ctx, f.app.ID, to, enterprise, ""); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := f.sched.Complete(ctx, iv.ID, interview.Feedback{}, enterprise); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	app, _ := f.st.Applications.Get(ctx, f.app.ID)
	if app.Status != lifecycle.StatusOffered {
		t.Errorf("application status = %s, want offered", app.Status)
	}
}

func TestComplete_RejectsBadRating(t *testing.T) {
	f := newFixture(t)
	iv := f.schedule(t, t0.Add(time.Hour))
	if _, err := f.sched.Complete(context.Background(), iv.ID, interview.Feedback{Rating: 9}, enterprise); !isValidation(err) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

func TestRemindUpcoming_OncePerInterview(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	soon := f.schedule(t, t0.Add(3*time.Hour))
	f.schedule(t, t0.Add(72*time.Hour))

	n, err := f.sched.RemindUpcoming(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("reminders = %d, want 1", n)
	}
	ev := lastEvent(t, f.st)
	if ev.Kind != notify.KindInterviewReminder {
		t.Fatalf("last event = %s, want interview_reminder", ev.Kind)
	}
	if p := ev.Payload.(notify.InterviewPayload); p.InterviewID != soon.ID {
		t.Errorf("reminder for %s, want %s", p.InterviewID, soon.ID)
	}

	again, err := f.sched.RemindUpcoming(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if again != 0 {
		t.Errorf("second sweep sent %d reminders, want 0", again)
	}
}
