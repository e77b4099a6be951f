// Package jobgate enforces the job-side constraints an application must pass
// before it is accepted: publication state, deadline, openings and the set of
// documents the enterprise requires.
package jobgate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"
)

// JobStatus mirrors the job collaborator's publication state.
type JobStatus string

const (
	JobDraft     JobStatus = "draft"
	JobPublished JobStatus = "published"
	JobClosed    JobStatus = "closed"
	JobArchived  JobStatus = "archived"
)

// DocumentKind names an application document slot.
type DocumentKind string

const (
	DocResume          DocumentKind = "resume"
	DocCoverLetter     DocumentKind = "coverLetter"
	DocPortfolio       DocumentKind = "portfolio"
	DocCertificates    DocumentKind = "certificates"
	DocRecommendations DocumentKind = "recommendations"
)

// ParseDocumentKind converts a raw string to a DocumentKind.
func ParseDocumentKind(s string) (DocumentKind, error) {
	k := DocumentKind(s)
	switch k {
	case DocResume, DocCoverLetter, DocPortfolio, DocCertificates, DocRecommendations:
		return k, nil
	}
	return "", fmt.Errorf("unknown document kind %q", s)
}

// Job is the read model the lifecycle consumes. It is owned by the job
// module; only identifiers and the fields needed for gating are carried.
type Job struct {
	ID                  string         `json:"id"`
	EnterpriseID        string         `json:"enterpriseId"`
	Title               string         `json:"title"`
	Status              JobStatus      `json:"status"`
	ApplicationDeadline time.Time      `json:"applicationDeadline"`
	NumberOfOpenings    int            `json:"numberOfOpenings"`
	RequiredDocuments   []DocumentKind `json:"requiredDocuments"`
	ApplicationCount    int            `json:"applicationCount"`
	ActiveApplications  int            `json:"activeApplications"`
}

// Reader is the accessor the job CRUD module provides.
type Reader interface {
	Job(ctx context.Context, id string) (Job, error)
}

// ErrJobNotFound is returned by readers for unknown job ids.
var ErrJobNotFound = errors.New("job not found")

// Reasons reported by Check.
const (
	ReasonNotPublished   = "job is not published"
	ReasonDeadlinePassed = "application deadline has passed"
	ReasonOpeningsFilled = "all openings are filled"
)

// Openings returns the effective number of openings. Jobs created without an
// explicit value default to one opening.
func (j Job) Openings() int {
	if j.NumberOfOpenings < 1 {
		return 1
	}
	return j.NumberOfOpenings
}

// Check returns an empty string when the job accepts applications at now,
// otherwise the first failing reason.
func Check(j Job, now time.Time) string {
	if j.Status != JobPublished {
		return ReasonNotPublished
	}
	if !j.ApplicationDeadline.IsZero() && now.After(j.ApplicationDeadline) {
		return ReasonDeadlinePassed
	}
	if j.ActiveApplications >= j.Openings() {
		return ReasonOpeningsFilled
	}
	return ""
}

// CanAccept reports whether the job accepts a new application at now.
func CanAccept(j Job, now time.Time) bool {
	return Check(j, now) == ""
}

// RequiredDocuments returns the de-duplicated, sorted set of required kinds.
func RequiredDocuments(j Job) []DocumentKind {
	out := slices.Clone(j.RequiredDocuments)
	slices.Sort(out)
	return slices.Compact(out)
}

// DaysUntilDeadline is a derived value for display; negative once passed.
func DaysUntilDeadline(j Job, now time.Time) int {
	if j.ApplicationDeadline.IsZero() {
		return 0
	}
	return int(j.ApplicationDeadline.Sub(now).Hours() / 24)
}
