// Package httpapi implements the HTTP surface of the lifecycle service.
//
// All routes except /health and /metrics expect the x-user-id and
// x-user-role headers forwarded by the Gateway.
//
// Routes:
//
//	POST /applications                         → submit an application
//	GET  /applications                         → list visible applications
//	GET  /applications/{id}                    → one application
//	POST /applications/{id}/transition         → move to a new status
//	POST /applications/{id}/note               → add a recruiter note
//	POST /applications/{id}/evaluation         → add a 1-5 evaluation
//	GET  /applications/{id}/timeline           → status history
//	GET  /applications/{id}/interviews         → interviews of an application
//	POST /applications/{id}/interviews         → schedule an interview
//	GET  /interviews/{id}                      → one interview
//	POST /interviews/{id}/confirm|reschedule|cancel|complete
//	GET  /notifications/unread                 → caller's unread notifications
//	POST /notifications/{id}/read|click
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/actor"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/interview"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/lifecycle"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/notify"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/telemetry"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/timeline"
)

// HealthFunc reports whether the service's dependencies respond.
type HealthFunc func(ctx context.Context) error

// Handler holds shared dependencies.
type Handler struct {
	apps   *lifecycle.Service
	sched  *interview.Scheduler
	inbox  *notify.Inbox
	health HealthFunc
	log    zerolog.Logger
}

// NewHandler returns a configured Handler. health may be nil.
func NewHandler(apps *lifecycle.Service, sched *interview.Scheduler, inbox *notify.Inbox, health HealthFunc, log zerolog.Logger) *Handler {
	return &Handler{apps: apps, sched: sched, inbox: inbox, health: health, log: log}
}

// Router builds the HTTP router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.handleHealth)
	r.Mount("/metrics", telemetry.Handler())

	r.Route("/applications", func(r chi.Router) {
		r.Post("/", h.submit)
		r.Get("/", h.listApplications)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getApplication)
			r.Post("/transition", h.transition)
			r.Post("/note", h.addNote)
			r.Post("/evaluation", h.addEvaluation)
			r.Get("/timeline", h.history)
			r.Get("/interviews", h.listInterviews)
			r.Post("/interviews", h.scheduleInterview)
		})
	})

	r.Route("/interviews/{id}", func(r chi.Router) {
		r.Get("/", h.getInterview)
		r.Post("/confirm", h.confirmInterview)
		r.Post("/reschedule", h.rescheduleInterview)
		r.Post("/cancel", h.cancelInterview)
		r.Post("/complete", h.completeInterview)
	})

	r.Route("/notifications", func(r chi.Router) {
		r.Get("/unread", h.unread)
		r.Post("/{id}/read", h.markRead)
		r.Post("/{id}/click", h.markClicked)
	})
	return r
}

// ─── Applications ────────────────────────────────────────────────────────────

type submitRequest struct {
	JobID            string                      `json:"jobId"`
	Documents        lifecycle.Documents         `json:"documents"`
	ScreeningAnswers []lifecycle.ScreeningAnswer `json:"screeningAnswers"`
	Experience       string                      `json:"experience"`
	ExpectedSalary   *lifecycle.Salary           `json:"expectedSalary"`
	AvailabilityDate *time.Time                  `json:"availabilityDate"`
	NoticePeriod     string                      `json:"noticePeriod"`
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	who, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body submitRequest
	if !decode(w, r, &body) {
		return
	}
	app, err := h.apps.Submit(r.Context(), lifecycle.SubmitRequest{
		Candidate:        who,
		JobID:            body.JobID,
		Documents:        body.Documents,
		ScreeningAnswers: body.ScreeningAnswers,
		Experience:       body.Experience,
		ExpectedSalary:   body.ExpectedSalary,
		AvailabilityDate: body.AvailabilityDate,
		NoticePeriod:     body.NoticePeriod,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

func (h *Handler) listApplications(w http.ResponseWriter, r *http.Request) {
	who, ok := h.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := lifecycle.Filter{
		CandidateID:  q.Get("candidateId"),
		JobID:        q.Get("jobId"),
		EnterpriseID: q.Get("enterpriseId"),
		ActiveOnly:   q.Get("active") == "true",
	}
	if s := q.Get("status"); s != "" {
		st, err := lifecycle.ParseStatus(s)
		if err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.Status = st
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		jsonError(w, "limit must be an integer", http.StatusBadRequest)
		return
	}
	if f.Offset, err = intParam(q.Get("offset")); err != nil {
		jsonError(w, "offset must be an integer", http.StatusBadRequest)
		return
	}

	apps, err := h.apps.List(r.Context(), f, who)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	now := h.apps.Now()
	out := make([]applicationView, len(apps))
	for i, a := range apps {
		out[i] = newApplicationView(a, now)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getApplication(w http.ResponseWriter, r *http.Request) {
	who, ok := h.actor(w, r)
	if !ok {
		return
	}
	app, err := h.apps.Get(r.Context(), chi.URLParam(r, "id"), who)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newApplicationView(app, h.apps.Now()))
}

// applicationView is an application as read back by clients.
type applicationView struct {
	*lifecycle.Application
	AgeInDays int `json:"ageInDays"`
}

func newApplicationView(a *lifecycle.Application, now time.Time) applicationView {
	return applicationView{Application: a, AgeInDays: a.AgeInDays(now)}
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	who, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Status  string `json:"status"`
		Comment string `json:"comment"`
	}
	if !decode(w, r, &body) {
		return
	}
	if body.Status == "" {
		jsonError(w, "body must contain status", http.StatusBadRequest)
		return
	}
	app, err := h.apps.Transition(r.Context(), chi.URLParam(r, "id"), lifecycle.Status(body.Status), who, body.Comment)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) addNote(w http.ResponseWriter, r *http.Request) {
	who, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if !decode(w, r, &body) {
		return
	}
	app, err := h.apps.AddNote(r.Context(), chi.URLParam(r, "id"), who, body.Text)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) addEvaluation(w http.ResponseWriter, r *http.Request) {
	who, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Criterion string `json:"criterion"`
		Rating    int    `json:"rating"`
		Comments  string `json:"comments"`
	}
	if !decode(w, r, &body) {
		return
	}
	app, err := h.apps.AddEvaluation(r.Context(), chi.URLParam(r, "id"), who, lifecycle.EvaluationInput{
		Criterion: body.Criterion,
		Rating:    body.Rating,
		Comments:  body.Comments,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	who, ok := h.actor(w, r)
	if !ok {
		return
	}
	seq, err := h.apps.History(r.Context(), chi.URLParam(r, "id"), who)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	entries := slices.Collect(seq)
	if entries == nil {
		entries = []timeline.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ─── Interviews ──────────────────────────────────────────────────────────────

type scheduleRequest struct {
	ScheduledDate   time.Time               `json:"scheduledDate"`
	DurationMinutes int                     `json:"durationMinutes"`
	Type            string                  `json:"type"`
	Interviewers    []interview.Interviewer `json:"interviewers"`
	Location        string                  `json:"location"`
	MeetingLink     string                  `json:"meetingLink"`
}

func (h *Handler) scheduleInterview(w http.ResponseWriter, r *http.Request) {
	who, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body scheduleRequest
	if !decode(w, r, &body) {
		return
	}
	typ, err := interview.ParseType(body.Type)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	iv, err := h.sched.Schedule(r.Context(), interview.ScheduleRequest{
		ApplicationID:   chi.URLParam(r, "id"),
		ScheduledDate:   body.ScheduledDate,
		DurationMinutes: body.DurationMinutes,
		Type:            typ,
		Interviewers:    body.Interviewers,
		Location:        body.Location,
		MeetingLink:     body.MeetingLink,
		Actor:           who,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, iv)
}

func (h *Handler) listInterviews(w http.ResponseWriter, r *http.Request) {
	who, ok := h.actor(w, r)
	if !ok {
		return
	}
	ivs, err := h.sched.ForApplication(r.Context(), chi.URLParam(r, "id"), who)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if ivs == nil {
		ivs = []*interview.Interview{}
	}
	writeJSON(w, http.StatusOK, ivs)
}

func (h *Handler) getInterview(w http.ResponseWriter, r *http.Request) {
	who, ok := h.actor(w, r)
	if !ok {
		return
	}
	iv, err := h.sched.Get(r.Context(), chi.URLParam(r, "id"), who)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func (h *Handler) confirmInterview(w http.ResponseWriter, r *http.Request) {
	who, ok := h.actor(w, r)
	if !ok {
		return
	}
	iv, err := h.sched.Confirm(r.Context(), chi.URLParam(r, "id"), who)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func (h *Handler) rescheduleInterview(w http.ResponseWriter, r *http.Request) {
	who, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		ScheduledDate time.Time `json:"scheduledDate"`
	}
	if !decode(w, r, &body) {
		return
	}
	iv, err := h.sched.Reschedule(r.Context(), chi.URLParam(r, "id"), body.ScheduledDate, who)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func (h *Handler) cancelInterview(w http.ResponseWriter, r *http.Request) {
	who, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if !decode(w, r, &body) {
		return
	}
	iv, err := h.sched.Cancel(r.Context(), chi.URLParam(r, "id"), body.Reason, who)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func (h *Handler) completeInterview(w http.ResponseWriter, r *http.Request) {
	who, ok := h.actor(w, r)
	if !ok {
		return
	}
	var body interview.Feedback
	if !decode(w, r, &body) {
		return
	}
	iv, err := h.sched.Complete(r.Context(), chi.URLParam(r, "id"), body, who)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

// ─── Notifications ───────────────────────────────────────────────────────────

func (h *Handler) unread(w http.ResponseWriter, r *http.Request) {
	who, ok := h.actor(w, r)
	if !ok {
		return
	}
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		jsonError(w, "limit must be an integer", http.StatusBadRequest)
		return
	}
	ns, err := h.inbox.Unread(r.Context(), recipientOf(who), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if ns == nil {
		ns = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, ns)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	who, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.inbox.MarkRead(r.Context(), chi.URLParam(r, "id"), recipientOf(who)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) markClicked(w http.ResponseWriter, r *http.Request) {
	who, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.inbox.MarkClicked(r.Context(), chi.URLParam(r, "id"), recipientOf(who)); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health != nil {
		if err := h.health(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// actor reads the caller forwarded by the Gateway. It writes a 401 and
// returns false when the headers are missing or invalid.
func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (actor.Actor, bool) {
	id := r.Header.Get("x-user-id")
	if id == "" {
		jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
		return actor.Actor{}, false
	}
	role, err := actor.ParseRole(r.Header.Get("x-user-role"))
	if err != nil {
		jsonError(w, "missing or invalid x-user-role header", http.StatusUnauthorized)
		return actor.Actor{}, false
	}
	return actor.Actor{ID: id, Role: role}, true
}

func recipientOf(who actor.Actor) notify.Recipient {
	return notify.Recipient{UserID: who.ID, Model: notify.UserModel(who.UserModel())}
}

// fail maps a domain error to its status code and writes it.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		jsonError(w, "internal server error", code)
		return
	}
	var missing *lifecycle.MissingDocumentsError
	if errors.As(err, &missing) {
		writeJSON(w, code, map[string]any{"error": err.Error(), "missing": missing.Kinds})
		return
	}
	jsonError(w, err.Error(), code)
}

func statusFor(err error) int {
	var ve *lifecycle.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, lifecycle.ErrNotFound), errors.Is(err, notify.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrDuplicateApplication):
		return http.StatusConflict
	case errors.Is(err, lifecycle.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, lifecycle.ErrJobClosed),
		errors.Is(err, lifecycle.ErrMissingDocuments),
		errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrTerminalState),
		errors.Is(err, interview.ErrAlreadyPast),
		errors.Is(err, timeline.ErrOutOfOrderTimestamp):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}
