package lifecycle

import (
	"time"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/jobgate"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/timeline"
)

// Artifact is a reference to an uploaded document.
type Artifact struct {
	URL        string    `json:"url"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// Documents holds the application's document slots.
type Documents struct {
	Resume          *Artifact  `json:"resume,omitempty"`
	CoverLetter     *Artifact  `json:"coverLetter,omitempty"`
	Portfolio       *Artifact  `json:"portfolio,omitempty"`
	Certificates    []Artifact `json:"certificates,omitempty"`
	Recommendations []Artifact `json:"recommendations,omitempty"`
}

// Artifacts returns the artifacts stored under kind k.
func (d Documents) Artifacts(k jobgate.DocumentKind) []Artifact {
	switch k {
	case jobgate.DocResume:
		return single(d.Resume)
	case jobgate.DocCoverLetter:
		return single(d.CoverLetter)
	case jobgate.DocPortfolio:
		return single(d.Portfolio)
	case jobgate.DocCertificates:
		return d.Certificates
	case jobgate.DocRecommendations:
		return d.Recommendations
	}
	return nil
}

// Has reports whether at least one artifact with a URL is present for k.
func (d Documents) Has(k jobgate.DocumentKind) bool {
	for _, a := range d.Artifacts(k) {
		if a.URL != "" {
			return true
		}
	}
	return false
}

func single(a *Artifact) []Artifact {
	if a == nil {
		return nil
	}
	return []Artifact{*a}
}

// ScreeningAnswer answers one of the job's screening questions.
type ScreeningAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Salary is the candidate's expectation.
type Salary struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Period   string  `json:"period"`
}

// Evaluation is one rater's score on one criterion.
type Evaluation struct {
	RaterID   string    `json:"raterId"`
	Criterion string    `json:"criterion"`
	Rating    int       `json:"rating"`
	Comments  string    `json:"comments,omitempty"`
	At        time.Time `json:"at"`
}

// Note is internal free text attached by recruiters.
type Note struct {
	AuthorID string    `json:"authorId"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}

// Application is a candidate's application to a job. Its Status always equals
// the status of the last timeline entry.
type Application struct {
	ID               string            `json:"id"`
	CandidateID      string            `json:"candidateId"`
	JobID            string            `json:"jobId"`
	EnterpriseID     string            `json:"enterpriseId"`
	JobTitle         string            `json:"jobTitle,omitempty"`
	Status           Status            `json:"status"`
	Documents        Documents         `json:"documents"`
	ScreeningAnswers []ScreeningAnswer `json:"screeningAnswers,omitempty"`
	Experience       string            `json:"experience,omitempty"`
	ExpectedSalary   *Salary           `json:"expectedSalary,omitempty"`
	AvailabilityDate *time.Time        `json:"availabilityDate,omitempty"`
	NoticePeriod     string            `json:"noticePeriod,omitempty"`
	Evaluations      []Evaluation      `json:"evaluations,omitempty"`
	Notes            []Note            `json:"notes,omitempty"`
	Timeline         timeline.Log      `json:"timeline"`
	Active           bool              `json:"isActive"`
	Version          int               `json:"version"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// AgeInDays is a derived display value.
func (a *Application) AgeInDays(now time.Time) int {
	return int(now.Sub(a.CreatedAt).Hours() / 24)
}

// Clone returns a deep copy, so repositories can hand out values callers may
// mutate freely.
func (a *Application) Clone() *Application {
	c := *a
	if a.Documents.Resume != nil {
		r := *a.Documents.Resume
		c.Documents.Resume = &r
	}
	if a.Documents.CoverLetter != nil {
		r := *a.Documents.CoverLetter
		c.Documents.CoverLetter = &r
	}
	if a.Documents.Portfolio != nil {
		r := *a.Documents.Portfolio
		c.Documents.Portfolio = &r
	}
	c.Documents.Certificates = append([]Artifact(nil), a.Documents.Certificates...)
	c.Documents.Recommendations = append([]Artifact(nil), a.Documents.Recommendations...)
	c.ScreeningAnswers = append([]ScreeningAnswer(nil), a.ScreeningAnswers...)
	c.Evaluations = append([]Evaluation(nil), a.Evaluations...)
	c.Notes = append([]Note(nil), a.Notes...)
	if a.ExpectedSalary != nil {
		s := *a.ExpectedSalary
		c.ExpectedSalary = &s
	}
	if a.AvailabilityDate != nil {
		t := *a.AvailabilityDate
		c.AvailabilityDate = &t
	}
	c.Timeline = a.Timeline.Clone()
	return &c
}

// Filter narrows List. Zero fields do not filter.
type Filter struct {
	CandidateID  string
	JobID        string
	EnterpriseID string
	Status       Status
	ActiveOnly   bool
	Limit        int
	Offset       int
}
