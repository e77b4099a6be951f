package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/notify"
)

func sampleNotification() notify.Notification {
	return notify.Notification{
		ID:        "n-1",
		EventID:   "ev-1",
		Recipient: notify.Candidate("cand-1"),
		Kind:      notify.KindInterviewReminder,
		Title:     "Interview reminder",
		Message:   "Tomorrow at 10:00",
		Priority:  notify.PriorityHigh,
		CreatedAt: t0,
		ExpiresAt: t0.Add(notify.DefaultTTL),
	}
}

func TestWebhookTransport_PostsJSON(t *testing.T) {
	var (
		gotKey  string
		gotBody map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("Idempotency-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	tr := notify.NewWebhookTransport(notify.ChannelSMS, srv.URL, time.Second)
	if err := tr.Send(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotKey != "n-1:sms" {
		t.Errorf("Idempotency-Key = %q", gotKey)
	}
	if gotBody["channel"] != "sms" || gotBody["type"] != "interview_reminder" || gotBody["title"] != "Interview reminder" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestWebhookTransport_Non2xxIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "mailbox full", http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := notify.NewWebhookTransport(notify.ChannelEmail, srv.URL, time.Second)
	if err := tr.Send(context.Background(), sampleNotification()); err == nil {
		t.Fatal("expected error for 502")
	}
}

func TestThrottle_WaitsForToken(t *testing.T) {
	calls := 0
	next := notify.TransportFunc(func(context.Context, notify.Notification) error {
		calls++
		return nil
	})
	tr := notify.Throttle(next, 0.01, 1)

	if err := tr.Send(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tr.Send(ctx, sampleNotification()); err == nil {
		t.Error("second Send should fail while the bucket is empty")
	}
	if calls != 1 {
		t.Errorf("next called %d times, want 1", calls)
	}
}

func TestInAppTransport_PublishesOnRecipientChannel(t *testing.T) {
	rdb := newRedis(t)
	ctx := context.Background()
	n := sampleNotification()

	sub := rdb.Subscribe(ctx, notify.InAppChannel(n.Recipient))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if err := notify.NewInAppTransport(rdb).Send(ctx, n); err != nil {
		t.Fatalf("Send: %v", err)
	}

	rctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(rctx)
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	if msg.Channel != "notifications:Candidat:cand-1" {
		t.Errorf("channel = %q", msg.Channel)
	}
	var got notify.Notification
	if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil || got.ID != "n-1" {
		t.Errorf("payload = %s (%v)", msg.Payload, err)
	}
}

func TestBroadcaster_ApplicationMoved(t *testing.T) {
	rdb := newRedis(t)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, notify.MovedChannel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	err := notify.NewBroadcaster(rdb).ApplicationMoved(ctx, notify.StatusChangePayload{
		ApplicationID: "app-1", CandidateID: "cand-1", EnterpriseID: "ent-1", From: "pending", To: "reviewing",
	})
	if err != nil {
		t.Fatal(err)
	}

	rctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(rctx)
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(msg.Payload), &body); err != nil {
		t.Fatal(err)
	}
	if body["type"] != notify.MovedChannel || body["to"] != "reviewing" {
		t.Errorf("body = %v", body)
	}
}
