package lifecycle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/jobgate"
)

// ─── Sentinel errors ─────────────────────────────────────────────────────────

var (
	// ErrNotFound is returned when an application (or a referenced job) is missing.
	ErrNotFound             = errors.New("not found")
	ErrDuplicateApplication = errors.New("duplicate application")
	ErrJobClosed            = errors.New("job closed")
	ErrMissingDocuments     = errors.New("missing documents")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrTerminalState        = errors.New("terminal state")
	ErrUnauthorized         = errors.New("unauthorized")
)

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// MissingDocumentsError names the required document kinds that were absent.
type MissingDocumentsError struct {
	Kinds []jobgate.DocumentKind
}

func (e *MissingDocumentsError) Error() string {
	names := make([]string, len(e.Kinds))
	for i, k := range e.Kinds {
		names[i] = string(k)
	}
	return fmt.Sprintf("missing documents: [%s]", strings.Join(names, ", "))
}

func (e *MissingDocumentsError) Is(target error) bool { return target == ErrMissingDocuments }

// TransitionError reports an edge that does not exist in the policy.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s → %s is not allowed", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// ClosedError explains why a job refused an application.
type ClosedError struct {
	JobID  string
	Reason string
}

func (e *ClosedError) Error() string {
	return fmt.Sprintf("job %s is closed: %s", e.JobID, e.Reason)
}

func (e *ClosedError) Is(target error) bool { return target == ErrJobClosed }
