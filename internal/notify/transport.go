package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// InAppChannel is the Redis pub/sub channel a recipient's live clients
// subscribe to.
func InAppChannel(r Recipient) string {
	return fmt.Sprintf("notifications:%s:%s", r.Model, r.UserID)
}

// InAppTransport pushes stored notifications to connected clients over Redis
// pub/sub. The gateway forwards the messages to SSE/websocket sessions.
type InAppTransport struct {
	rdb *redis.Client
}

// NewInAppTransport returns an in-app transport publishing on rdb.
func NewInAppTransport(rdb *redis.Client) *InAppTransport {
	return &InAppTransport{rdb: rdb}
}

// Send publishes n on the recipient's channel.
func (t *InAppTransport) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	if err := t.rdb.Publish(ctx, InAppChannel(n.Recipient), body).Err(); err != nil {
		return fmt.Errorf("publish in-app: %w", err)
	}
	return nil
}

// WebhookTransport hands a notification to the messaging gateway that owns
// email, push or SMS delivery. Addresses are resolved by the gateway from the
// recipient identifiers.
type WebhookTransport struct {
	channel Channel
	url     string
	client  *http.Client
}

// NewWebhookTransport posts notifications for channel ch to url.
func NewWebhookTransport(ch Channel, url string, timeout time.Duration) *WebhookTransport {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookTransport{
		channel: ch,
		url:     url,
		client:  &http.Client{Timeout: timeout},
	}
}

type webhookMessage struct {
	Channel      Channel        `json:"channel"`
	Notification string         `json:"notificationId"`
	Recipient    Recipient      `json:"recipient"`
	Type         Kind           `json:"type"`
	Priority     Priority       `json:"priority"`
	Title        string         `json:"title"`
	Message      string         `json:"message"`
	Actions      []Action       `json:"actions,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

// Send posts n as JSON and treats any non-2xx status as a failure.
func (t *WebhookTransport) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(webhookMessage{
		Channel:      t.channel,
		Notification: n.ID,
		Recipient:    n.Recipient,
		Type:         n.Kind,
		Priority:     n.Priority,
		Title:        n.Title,
		Message:      n.Message,
		Actions:      n.Actions,
		Data:         n.Data,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", n.ID+":"+string(t.channel))

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("http POST: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s gateway returned %d: %s", t.channel, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}

// Throttled wraps a transport with a token-bucket limiter so a burst of
// events cannot flood an external provider.
type Throttled struct {
	next    Transport
	limiter *rate.Limiter
}

// Throttle limits next to perSecond sends with the given burst.
func Throttle(next Transport, perSecond float64, burst int) *Throttled {
	if burst < 1 {
		burst = 1
	}
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

// Send waits for a token, then delegates.
func (t *Throttled) Send(ctx context.Context, n Notification) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return t.next.Send(ctx, n)
}

// MovedChannel is the pub/sub channel carrying application board moves for
// the gateway's live views.
const MovedChannel = "EVENT_APPLICATION_MOVED"

// Broadcaster publishes live board updates.
type Broadcaster struct {
	rdb *redis.Client
}

// NewBroadcaster returns a Broadcaster publishing on rdb.
func NewBroadcaster(rdb *redis.Client) *Broadcaster {
	return &Broadcaster{rdb: rdb}
}

// ApplicationMoved publishes a transition on MovedChannel.
func (b *Broadcaster) ApplicationMoved(ctx context.Context, p StatusChangePayload) error {
	event, err := json.Marshal(map[string]string{
		"type":          MovedChannel,
		"applicationId": p.ApplicationID,
		"candidateId":   p.CandidateID,
		"enterpriseId":  p.EnterpriseID,
		"from":          p.From,
		"to":            p.To,
	})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, MovedChannel, event).Err()
}
