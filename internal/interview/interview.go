// Package interview schedules interviews for applications under review and
// advances the application once an interview is completed.
package interview

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/lifecycle"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/notify"
)

// Type is the interview format.
type Type string

const (
	TypePhone     Type = "phone"
	TypeVideo     Type = "video"
	TypeOnsite    Type = "onsite"
	TypeTechnical Type = "technical"
	TypeHR        Type = "hr"
)

// ParseType converts a raw string to a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	switch t {
	case TypePhone, TypeVideo, TypeOnsite, TypeTechnical, TypeHR:
		return t, nil
	}
	return "", fmt.Errorf("unknown interview type %q", s)
}

// Status is the interview's own state, independent of the application's.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
)

// Interviewer is a person on the panel.
type Interviewer struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
}

// Feedback is recorded when the interview is completed.
type Feedback struct {
	Rating      int    `json:"rating,omitempty"`
	Comments    string `json:"comments,omitempty"`
	Interviewer string `json:"interviewer,omitempty"`
}

// Interview belongs to exactly one application. Confirmed is only ever set
// while the interview is scheduled and in the future.
type Interview struct {
	ID              string        `json:"id"`
	ApplicationID   string        `json:"applicationId"`
	JobID           string        `json:"jobId"`
	JobTitle        string        `json:"jobTitle,omitempty"`
	CandidateID     string        `json:"candidateId"`
	EnterpriseID    string        `json:"enterpriseId"`
	ScheduledDate   time.Time     `json:"scheduledDate"`
	DurationMinutes int           `json:"durationMinutes"`
	Type            Type          `json:"type"`
	Status          Status        `json:"status"`
	Interviewers    []Interviewer `json:"interviewers,omitempty"`
	Location        string        `json:"location,omitempty"`
	MeetingLink     string        `json:"meetingLink,omitempty"`
	Confirmed       bool          `json:"confirmed"`
	ConfirmedAt     *time.Time    `json:"confirmedAt,omitempty"`
	Feedback        *Feedback     `json:"feedback,omitempty"`
	PreviousID      string        `json:"previousId,omitempty"`
	CancelReason    string        `json:"cancelReason,omitempty"`
	RemindedAt      *time.Time    `json:"remindedAt,omitempty"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Clone returns a deep copy.
func (iv *Interview) Clone() *Interview {
	c := *iv
	c.Interviewers = append([]Interviewer(nil), iv.Interviewers...)
	if iv.ConfirmedAt != nil {
		t := *iv.ConfirmedAt
		c.ConfirmedAt = &t
	}
	if iv.RemindedAt != nil {
		t := *iv.RemindedAt
		c.RemindedAt = &t
	}
	if iv.Feedback != nil {
		f := *iv.Feedback
		c.Feedback = &f
	}
	return &c
}

// payload builds the event payload for iv.
func (iv *Interview) payload(rescheduled bool) notify.InterviewPayload {
	return notify.InterviewPayload{
		InterviewID:   iv.ID,
		ApplicationID: iv.ApplicationID,
		JobID:         iv.JobID,
		JobTitle:      iv.JobTitle,
		ScheduledDate: iv.ScheduledDate,
		Type:          string(iv.Type),
		Location:      iv.Location,
		MeetingLink:   iv.MeetingLink,
		Rescheduled:   rescheduled,
	}
}

// checkVenue enforces where each type takes place: video needs a link,
// onsite a location, technical and hr one of the two.
func checkVenue(t Type, location, link string) error {
	switch t {
	case TypeVideo:
		if link == "" {
			return &lifecycle.ValidationError{Msg: "video interviews require a meeting link"}
		}
	case TypeOnsite:
		if location == "" {
			return &lifecycle.ValidationError{Msg: "onsite interviews require a location"}
		}
	case TypeTechnical, TypeHR:
		if location == "" && link == "" {
			return &lifecycle.ValidationError{Msg: fmt.Sprintf("%s interviews require a location or a meeting link", t)}
		}
	}
	return nil
}

var (
	// ErrAlreadyPast is returned when an interview date is not in the future.
	ErrAlreadyPast = errors.New("interview date already past")
	// ErrNotFound matches lifecycle.ErrNotFound.
	ErrNotFound = fmt.Errorf("interview %w", lifecycle.ErrNotFound)
)

// MutateFunc changes an interview loaded under lock.
type MutateFunc func(iv *Interview) ([]notify.Event, error)

// ReplaceFunc builds the successor of an interview loaded under lock.
type ReplaceFunc func(old *Interview) (*Interview, []notify.Event, error)

// Repository persists interviews with their outbox events.
type Repository interface {
	Create(ctx context.Context, iv *Interview, events []notify.Event) error
	Get(ctx context.Context, id string) (*Interview, error)
	ByApplication(ctx context.Context, applicationID string) ([]*Interview, error)
	Mutate(ctx context.Context, id string, fn MutateFunc) (*Interview, error)
	// Replace persists the changes fn makes to old and inserts the successor
	// it returns, in one unit.
	Replace(ctx context.Context, id string, fn ReplaceFunc) (*Interview, error)
	// Upcoming returns scheduled interviews starting in [from, to] that have
	// not been reminded yet, soonest first.
	Upcoming(ctx context.Context, from, to time.Time, limit int) ([]*Interview, error)
}
