package jobgate_test

import (
	"slices"
	"testing"
	"time"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/jobgate"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func openJob() jobgate.Job {
	return jobgate.Job{
		ID:                  "job-1",
		Status:              jobgate.JobPublished,
		ApplicationDeadline: now.Add(48 * time.Hour),
		NumberOfOpenings:    2,
	}
}

func TestCheck(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*jobgate.Job)
		want   string
	}{
		{"open", func(*jobgate.Job) {}, ""},
		{"draft", func(j *jobgate.Job) { j.Status = jobgate.JobDraft }, jobgate.ReasonNotPublished},
		{"closed", func(j *jobgate.Job) { j.Status = jobgate.JobClosed }, jobgate.ReasonNotPublished},
		{"archived", func(j *jobgate.Job) { j.Status = jobgate.JobArchived }, jobgate.ReasonNotPublished},
		{"deadline passed", func(j *jobgate.Job) { j.ApplicationDeadline = now.Add(-time.Minute) }, jobgate.ReasonDeadlinePassed},
		{"no deadline", func(j *jobgate.Job) { j.ApplicationDeadline = time.Time{} }, ""},
		{"openings filled", func(j *jobgate.Job) { j.ActiveApplications = 2 }, jobgate.ReasonOpeningsFilled},
		{"one slot left", func(j *jobgate.Job) { j.ActiveApplications = 1 }, ""},
		{"default single opening", func(j *jobgate.Job) { j.NumberOfOpenings = 0; j.ActiveApplications = 1 }, jobgate.ReasonOpeningsFilled},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			j := openJob()
			c.mutate(&j)
			if got := jobgate.Check(j, now); got != c.want {
				t.Errorf("Check() = %q, want %q", got, c.want)
			}
			if jobgate.CanAccept(j, now) != (c.want == "") {
				t.Errorf("CanAccept() disagrees with Check()")
			}
		})
	}
}

func TestRequiredDocuments_SortedUnique(t *testing.T) {
	j := openJob()
	j.RequiredDocuments = []jobgate.DocumentKind{jobgate.DocResume, jobgate.DocCoverLetter, jobgate.DocResume}
	got := jobgate.RequiredDocuments(j)
	want := []jobgate.DocumentKind{jobgate.DocCoverLetter, jobgate.DocResume}
	if !slices.Equal(got, want) {
		t.Errorf("RequiredDocuments() = %v, want %v", got, want)
	}
	if len(j.RequiredDocuments) != 3 {
		t.Errorf("RequiredDocuments must not modify the job")
	}
}

func TestParseDocumentKind(t *testing.T) {
	if _, err := jobgate.ParseDocumentKind("coverLetter"); err != nil {
		t.Errorf("ParseDocumentKind(coverLetter) unexpected error: %v", err)
	}
	if _, err := jobgate.ParseDocumentKind("cover_letter"); err == nil {
		t.Error("ParseDocumentKind(cover_letter) expected error")
	}
}

func TestDaysUntilDeadline(t *testing.T) {
	if got := jobgate.DaysUntilDeadline(openJob(), now); got != 2 {
		t.Errorf("DaysUntilDeadline() = %d, want 2", got)
	}
}
