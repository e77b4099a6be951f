package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/httpapi"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/interview"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/jobgate"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/lifecycle"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/notify"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/store/memstore"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/timeline"
)

var t0 = time.Date(2026, 4, 6, 10, 0, 0, 0, time.UTC)

type server struct {
	st      *memstore.Store
	handler http.Handler
	now     time.Time
}

func newServer(t *testing.T, health httpapi.HealthFunc) *server {
	t.Helper()
	s := &server{st: memstore.New(), now: t0}
	clock := func() time.Time { return s.now }
	s.st.Jobs.Put(jobgate.Job{
		ID:                  "job-1",
		EnterpriseID:        "ent-1",
		Title:               "Platform Engineer",
		Status:              jobgate.JobPublished,
		ApplicationDeadline: t0.Add(30 * 24 * time.Hour),
		NumberOfOpenings:    5,
		RequiredDocuments:   []jobgate.DocumentKind{jobgate.DocResume},
	})
	svc := lifecycle.NewService(s.st.Applications, s.st.Jobs, lifecycle.WithClock(clock))
	sched := interview.NewScheduler(s.st.Interviews, s.st.Applications, svc, clock, zerolog.Nop())
	inbox := notify.NewInbox(s.st.Notifications, clock)
	s.handler = httpapi.NewHandler(svc, sched, inbox, health, zerolog.Nop()).Router()
	return s
}

func (s *server) do(t *testing.T, method, path, userID, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set("x-user-id", userID)
	}
	if role != "" {
		req.Header.Set("x-user-role", role)
	}
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

const resumeBody = `{"jobId":"job-1","documents":{"resume":{"url":"s3://applications/cv.pdf"}}}`

func (s *server) submit(t *testing.T) lifecycle.Application {
	t.Helper()
	w := s.do(t, http.MethodPost, "/applications", "cand-1", "candidate", resumeBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	return decodeBody[lifecycle.Application](t, w)
}

func TestSubmit_CreatedThenDuplicate(t *testing.T) {
	s := newServer(t, nil)
	app := s.submit(t)
	if app.Status != lifecycle.StatusPending || app.CandidateID != "cand-1" {
		t.Errorf("app = %+v", app)
	}

	w := s.do(t, http.MethodPost, "/applications", "cand-1", "candidate", resumeBody)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate: got %d, want 409", w.Code)
	}
}

func TestSubmit_MissingDocumentsIs422WithKinds(t *testing.T) {
	s := newServer(t, nil)
	w := s.do(t, http.MethodPost, "/applications", "cand-1", "candidate", `{"jobId":"job-1"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("got %d, want 422", w.Code)
	}
	body := decodeBody[map[string]any](t, w)
	missing, _ := body["missing"].([]any)
	if len(missing) != 1 || missing[0] != "resume" {
		t.Errorf("missing = %v", body["missing"])
	}
}

func TestRequests_WithoutActorAreRejected(t *testing.T) {
	s := newServer(t, nil)
	cases := []struct{ id, role string }{
		{"", "candidate"},
		{"cand-1", ""},
		{"cand-1", "system"},
	}
	for _, c := range cases {
		w := s.do(t, http.MethodGet, "/applications", c.id, c.role, "")
		if w.Code != http.StatusUnauthorized {
			t.Errorf("id=%q role=%q: got %d, want 401", c.id, c.role, w.Code)
		}
	}
}

func TestErrorMapping(t *testing.T) {
	s := newServer(t, nil)
	app := s.submit(t)
	base := "/applications/" + app.ID

	cases := []struct {
		name, method, path, user, role, body string
		want                                 int
	}{
		{"unknown job", http.MethodPost, "/applications", "cand-2", "candidate", `{"jobId":"nope"}`, http.StatusNotFound},
		{"empty job id", http.MethodPost, "/applications", "cand-2", "candidate", `{}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/applications", "cand-2", "candidate", `{`, http.StatusBadRequest},
		{"enterprise submits", http.MethodPost, "/applications", "ent-1", "enterprise", resumeBody, http.StatusForbidden},
		{"invalid edge", http.MethodPost, base + "/transition", "ent-1", "enterprise", `{"status":"accepted"}`, http.StatusUnprocessableEntity},
		{"unknown status", http.MethodPost, base + "/transition", "ent-1", "enterprise", `{"status":"hired"}`, http.StatusBadRequest},
		{"missing status", http.MethodPost, base + "/transition", "ent-1", "enterprise", `{}`, http.StatusBadRequest},
		{"foreign enterprise", http.MethodPost, base + "/transition", "ent-2", "enterprise", `{"status":"reviewing"}`, http.StatusForbidden},
		{"unknown application", http.MethodGet, "/applications/nope", "cand-1", "candidate", "", http.StatusNotFound},
		{"other candidate", http.MethodGet, base, "cand-2", "candidate", "", http.StatusNotFound},
		{"bad rating", http.MethodPost, base + "/evaluation", "ent-1", "enterprise", `{"criterion":"skills","rating":9}`, http.StatusBadRequest},
		{"bad list status", http.MethodGet, "/applications?status=hired", "cand-1", "candidate", "", http.StatusBadRequest},
		{"bad limit", http.MethodGet, "/applications?limit=x", "cand-1", "candidate", "", http.StatusBadRequest},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := s.do(t, c.method, c.path, c.user, c.role, c.body)
			if w.Code != c.want {
				t.Errorf("got %d, want %d (%s)", w.Code, c.want, w.Body.String())
			}
		})
	}
}

func TestTransition_ThenWithdrawAndTerminal(t *testing.T) {
	s := newServer(t, nil)
	app := s.submit(t)
	base := "/applications/" + app.ID

	for _, to := range []string{"reviewing", "shortlisted"} {
		s.now = s.now.Add(time.Hour)
		w := s.do(t, http.MethodPost, base+"/transition", "ent-1", "enterprise", `{"status":"`+to+`"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("→ %s: %d %s", to, w.Code, w.Body.String())
		}
	}
	s.now = s.now.Add(time.Hour)
	w := s.do(t, http.MethodPost, base+"/transition", "cand-1", "candidate", `{"status":"withdrawn","comment":"accepted another offer"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("withdraw: %d %s", w.Code, w.Body.String())
	}
	got := decodeBody[lifecycle.Application](t, w)
	if got.Status != lifecycle.StatusWithdrawn || got.Active {
		t.Errorf("status = %s, active = %v", got.Status, got.Active)
	}

	w = s.do(t, http.MethodGet, base+"/timeline", "cand-1", "candidate", "")
	entries := decodeBody[[]timeline.Entry](t, w)
	if len(entries) != 4 || entries[3].Status != "withdrawn" {
		t.Errorf("timeline = %+v", entries)
	}

	w = s.do(t, http.MethodPost, base+"/transition", "ent-1", "enterprise", `{"status":"reviewing"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("terminal: got %d, want 422", w.Code)
	}
}

func TestList_ScopedToCaller(t *testing.T) {
	s := newServer(t, nil)
	s.submit(t)

	w := s.do(t, http.MethodGet, "/applications", "cand-2", "candidate", "")
	if apps := decodeBody[[]lifecycle.Application](t, w); len(apps) != 0 {
		t.Errorf("other candidate sees %d applications", len(apps))
	}
	w = s.do(t, http.MethodGet, "/applications?status=pending", "ent-1", "enterprise", "")
	if apps := decodeBody[[]lifecycle.Application](t, w); len(apps) != 1 {
		t.Errorf("enterprise sees %d applications, want 1", len(apps))
	}
}

func TestApplicationReads_CarryAgeInDays(t *testing.T) {
	s := newServer(t, nil)
	app := s.submit(t)
	s.now = t0.Add(3*24*time.Hour + time.Hour)

	type view struct {
		ID        string `json:"id"`
		AgeInDays int    `json:"ageInDays"`
	}
	w := s.do(t, http.MethodGet, "/applications/"+app.ID, "cand-1", "candidate", "")
	if got := decodeBody[view](t, w); got.ID != app.ID || got.AgeInDays != 3 {
		t.Errorf("get = %+v, want id %s aged 3 days", got, app.ID)
	}
	w = s.do(t, http.MethodGet, "/applications", "ent-1", "enterprise", "")
	list := decodeBody[[]view](t, w)
	if len(list) != 1 || list[0].AgeInDays != 3 {
		t.Errorf("list = %+v, want one application aged 3 days", list)
	}
}

func TestNotesAndEvaluations(t *testing.T) {
	s := newServer(t, nil)
	app := s.submit(t)
	base := "/applications/" + app.ID

	w := s.do(t, http.MethodPost, base+"/note", "ent-1", "enterprise", `{"text":"strong Go background"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("note: %d %s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPost, base+"/evaluation", "ent-1", "enterprise", `{"criterion":"skills","rating":4}`)
	if w.Code != http.StatusOK {
		t.Fatalf("evaluation: %d %s", w.Code, w.Body.String())
	}
	got := decodeBody[lifecycle.Application](t, w)
	if len(got.Notes) != 1 || len(got.Evaluations) != 1 {
		t.Errorf("notes %d, evaluations %d", len(got.Notes), len(got.Evaluations))
	}

	w = s.do(t, http.MethodPost, base+"/note", "cand-1", "candidate", `{"text":"hi"}`)
	if w.Code != http.StatusForbidden {
		t.Errorf("candidate note: got %d, want 403", w.Code)
	}
}

func TestInterviewFlow(t *testing.T) {
	s := newServer(t, nil)
	app := s.submit(t)
	base := "/applications/" + app.ID
	if w := s.do(t, http.MethodPost, base+"/transition", "ent-1", "enterprise", `{"status":"reviewing"}`); w.Code != http.StatusOK {
		t.Fatalf("reviewing: %d", w.Code)
	}

	at := t0.Add(48 * time.Hour).Format(time.RFC3339)
	w := s.do(t, http.MethodPost, base+"/interviews", "ent-1", "enterprise",
		`{"scheduledDate":"`+at+`","type":"video","meetingLink":"https://meet.example.com/x"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("schedule: %d %s", w.Code, w.Body.String())
	}
	iv := decodeBody[interview.Interview](t, w)

	w = s.do(t, http.MethodPost, base+"/interviews", "ent-1", "enterprise", `{"scheduledDate":"`+at+`","type":"dance"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad type: got %d, want 400", w.Code)
	}

	w = s.do(t, http.MethodPost, "/interviews/"+iv.ID+"/confirm", "cand-1", "candidate", "")
	if w.Code != http.StatusOK || !decodeBody[interview.Interview](t, w).Confirmed {
		t.Fatalf("confirm: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, base+"/interviews", "cand-1", "candidate", "")
	if ivs := decodeBody[[]interview.Interview](t, w); len(ivs) != 1 {
		t.Errorf("interviews = %d", len(ivs))
	}

	s.now = t0.Add(49 * time.Hour)
	w = s.do(t, http.MethodPost, "/interviews/"+iv.ID+"/complete", "ent-1", "enterprise", `{"rating":5,"comments":"great"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodGet, base, "ent-1", "enterprise", "")
	if got := decodeBody[lifecycle.Application](t, w); got.Status != lifecycle.StatusInterviewed {
		t.Errorf("status after completion = %s", got.Status)
	}

	w = s.do(t, http.MethodPost, "/interviews/"+iv.ID+"/cancel", "ent-1", "enterprise", `{"reason":"late"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("cancel completed: got %d, want 422", w.Code)
	}
}

func TestConfirmPastInterviewIs422(t *testing.T) {
	s := newServer(t, nil)
	app := s.submit(t)
	base := "/applications/" + app.ID
	s.do(t, http.MethodPost, base+"/transition", "ent-1", "enterprise", `{"status":"reviewing"}`)

	at := t0.Add(2 * time.Hour).Format(time.RFC3339)
	w := s.do(t, http.MethodPost, base+"/interviews", "ent-1", "enterprise",
		`{"scheduledDate":"`+at+`","type":"phone"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("schedule: %d %s", w.Code, w.Body.String())
	}
	iv := decodeBody[interview.Interview](t, w)

	s.now = t0.Add(3 * time.Hour)
	w = s.do(t, http.MethodPost, "/interviews/"+iv.ID+"/confirm", "cand-1", "candidate", "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("confirm past: got %d, want 422", w.Code)
	}
	w = s.do(t, http.MethodGet, "/interviews/"+iv.ID, "cand-1", "candidate", "")
	if decodeBody[interview.Interview](t, w).Confirmed {
		t.Error("past interview must stay unconfirmed")
	}
}

func TestNotifications_UnreadAndMarkRead(t *testing.T) {
	s := newServer(t, nil)
	s.submit(t)

	d := notify.NewDispatcher(s.st.Notifications, notify.WithClock(func() time.Time { return s.now }))
	for _, ev := range s.st.Outbox.Events() {
		if err := d.Dispatch(context.Background(), ev); err != nil {
			t.Fatalf("dispatch: %v", err)
		}
	}

	w := s.do(t, http.MethodGet, "/notifications/unread", "cand-1", "candidate", "")
	ns := decodeBody[[]notify.Notification](t, w)
	if len(ns) != 1 {
		t.Fatalf("unread = %d, want 1", len(ns))
	}

	w = s.do(t, http.MethodPost, "/notifications/"+ns[0].ID+"/read", "ent-1", "enterprise", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("foreign read: got %d, want 404", w.Code)
	}
	w = s.do(t, http.MethodPost, "/notifications/"+ns[0].ID+"/click", "cand-1", "candidate", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("click: got %d", w.Code)
	}
	w = s.do(t, http.MethodGet, "/notifications/unread", "cand-1", "candidate", "")
	if ns := decodeBody[[]notify.Notification](t, w); len(ns) != 0 {
		t.Errorf("unread after click = %d", len(ns))
	}
}

func TestHealth(t *testing.T) {
	s := newServer(t, func(context.Context) error { return nil })
	if w := s.do(t, http.MethodGet, "/health", "", "", ""); w.Code != http.StatusOK {
		t.Errorf("healthy: got %d", w.Code)
	}

	s = newServer(t, func(context.Context) error { return errors.New("redis down") })
	if w := s.do(t, http.MethodGet, "/health", "", "", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy: got %d", w.Code)
	}

	if w := s.do(t, http.MethodGet, "/metrics", "", "", ""); w.Code != http.StatusOK {
		t.Errorf("metrics: got %d", w.Code)
	}
}
