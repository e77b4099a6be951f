// Package notify turns lifecycle events into recipient-addressed
// notifications and delivers them over independent channels.
//
// Events reach the Dispatcher asynchronously: producers write them to an
// outbox inside their own transaction, a Relay moves them into a Queue and a
// Worker leases them from the queue. Delivery is at-least-once; notifications
// are de-duplicated by (event id, recipient).
package notify

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind is the closed set of events the dispatcher understands.
type Kind string

const (
	KindApplicationSubmitted      Kind = "application_submitted"
	KindApplicationStatusChanged  Kind = "application_status_changed"
	KindInterviewScheduled        Kind = "interview_scheduled"
	KindInterviewReminder         Kind = "interview_reminder"
	KindApplicationAccepted       Kind = "application_accepted"
	KindApplicationRejected       Kind = "application_rejected"
	KindNewJobMatching            Kind = "new_job_matching"
	KindJobStatusChanged          Kind = "job_status_changed"
	KindJobExpired                Kind = "job_expired"
	KindJobApplicationReceived    Kind = "job_application_received"
	KindProfileIncomplete         Kind = "profile_incomplete"
	KindDocumentUploaded          Kind = "document_uploaded"
	KindVerificationStatusChanged Kind = "verification_status_changed"
	KindAccountCreated            Kind = "account_created"
	KindPasswordChanged           Kind = "password_changed"
	KindSystemMaintenance         Kind = "system_maintenance"
	KindNewMessage                Kind = "new_message"
	KindMessageRead               Kind = "message_read"
)

// Kinds lists every Kind in declaration order.
var Kinds = []Kind{
	KindApplicationSubmitted, KindApplicationStatusChanged, KindInterviewScheduled,
	KindInterviewReminder, KindApplicationAccepted, KindApplicationRejected,
	KindNewJobMatching, KindJobStatusChanged, KindJobExpired, KindJobApplicationReceived,
	KindProfileIncomplete, KindDocumentUploaded, KindVerificationStatusChanged,
	KindAccountCreated, KindPasswordChanged, KindSystemMaintenance, KindNewMessage,
	KindMessageRead,
}

// ParseKind converts a raw string to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// UserModel is the account collection a recipient belongs to.
type UserModel string

const (
	ModelCandidate  UserModel = "Candidat"
	ModelEnterprise UserModel = "Enterprise"
	ModelAdmin      UserModel = "Admin"
)

// Recipient addresses a notification.
type Recipient struct {
	UserID string    `json:"userId"`
	Model  UserModel `json:"userModel"`
}

// Candidate, Enterprise and Admin build recipients.
func Candidate(id string) Recipient  { return Recipient{UserID: id, Model: ModelCandidate} }
func Enterprise(id string) Recipient { return Recipient{UserID: id, Model: ModelEnterprise} }
func Admin(id string) Recipient      { return Recipient{UserID: id, Model: ModelAdmin} }

// Payload is the typed data carried by an event. The set of implementations
// is closed; kinds without a structured shape use Data.
type Payload interface {
	isPayload()
}

// ApplicationPayload describes a newly submitted application.
type ApplicationPayload struct {
	ApplicationID string `json:"applicationId"`
	JobID         string `json:"jobId"`
	JobTitle      string `json:"jobTitle,omitempty"`
	CandidateID   string `json:"candidateId"`
	EnterpriseID  string `json:"enterpriseId"`
}

// StatusChangePayload describes a lifecycle transition.
type StatusChangePayload struct {
	ApplicationID string `json:"applicationId"`
	JobID         string `json:"jobId"`
	JobTitle      string `json:"jobTitle,omitempty"`
	CandidateID   string `json:"candidateId"`
	EnterpriseID  string `json:"enterpriseId"`
	From          string `json:"from"`
	To            string `json:"to"`
	Comment       string `json:"comment,omitempty"`
	ActorID       string `json:"actorId"`
}

// InterviewPayload describes a scheduled or upcoming interview.
type InterviewPayload struct {
	InterviewID   string    `json:"interviewId"`
	ApplicationID string    `json:"applicationId"`
	JobID         string    `json:"jobId"`
	JobTitle      string    `json:"jobTitle,omitempty"`
	ScheduledDate time.Time `json:"scheduledDate"`
	Type          string    `json:"type"`
	Location      string    `json:"location,omitempty"`
	MeetingLink   string    `json:"meetingLink,omitempty"`
	Rescheduled   bool      `json:"rescheduled,omitempty"`
}

// Data is the opaque key-value fallback.
type Data map[string]string

func (ApplicationPayload) isPayload()  {}
func (StatusChangePayload) isPayload() {}
func (InterviewPayload) isPayload()    {}
func (Data) isPayload()                {}

// Event is an immutable fact consumed by the Dispatcher.
type Event struct {
	ID         string      `json:"id"`
	Kind       Kind        `json:"kind"`
	OccurredAt time.Time   `json:"occurredAt"`
	Recipients []Recipient `json:"recipients"`
	Payload    Payload     `json:"-"`
}

// NewEvent stamps a fresh event id.
func NewEvent(kind Kind, at time.Time, payload Payload, recipients ...Recipient) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		OccurredAt: at,
		Recipients: recipients,
		Payload:    payload,
	}
}

type eventJSON struct {
	ID         string          `json:"id"`
	Kind       Kind            `json:"kind"`
	OccurredAt time.Time       `json:"occurredAt"`
	Recipients []Recipient     `json:"recipients"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// MarshalJSON encodes the payload next to the envelope fields.
func (e Event) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", e.Kind, err)
	}
	return json.Marshal(eventJSON{
		ID:         e.ID,
		Kind:       e.Kind,
		OccurredAt: e.OccurredAt,
		Recipients: e.Recipients,
		Payload:    raw,
	})
}

// UnmarshalJSON decodes the payload into the shape registered for the kind.
func (e *Event) UnmarshalJSON(b []byte) error {
	var env eventJSON
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}
	kind, err := ParseKind(string(env.Kind))
	if err != nil {
		return err
	}
	payload, err := decodePayload(kind, env.Payload)
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", kind, err)
	}
	*e = Event{
		ID:         env.ID,
		Kind:       kind,
		OccurredAt: env.OccurredAt,
		Recipients: env.Recipients,
		Payload:    payload,
	}
	return nil
}

func decodePayload(kind Kind, raw json.RawMessage) (Payload, error) {
	empty := len(raw) == 0 || string(raw) == "null"
	switch kind {
	case KindApplicationSubmitted, KindJobApplicationReceived:
		var p ApplicationPayload
		if !empty {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, err
			}
		}
		return p, nil
	case KindApplicationStatusChanged, KindApplicationAccepted, KindApplicationRejected:
		var p StatusChangePayload
		if !empty {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, err
			}
		}
		return p, nil
	case KindInterviewScheduled, KindInterviewReminder:
		var p InterviewPayload
		if !empty {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, err
			}
		}
		return p, nil
	default:
		p := Data{}
		if !empty {
			if err := json.Unmarshal(raw, &p); err != nil {
				return nil, err
			}
		}
		return p, nil
	}
}

// PayloadMap flattens a payload into the key-value form stored on a
// notification.
func PayloadMap(p Payload) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return out
}
