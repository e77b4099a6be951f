package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/actor"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/jobgate"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/lifecycle"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/notify"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/timeline"
)

// ─── Jobs ────────────────────────────────────────────────────────────────────

// JobRepo is the job read model. It implements jobgate.Reader.
type JobRepo struct {
	pool *pgxpool.Pool
}

// Job returns the job with its active application count, computed at read
// time from the applications table.
func (r *JobRepo) Job(ctx context.Context, id string) (jobgate.Job, error) {
	var (
		j        jobgate.Job
		status   string
		deadline *time.Time
		docs     []string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT j.id, j.enterprise_id, j.title, j.status, j.application_deadline,
		        j.number_of_openings, j.required_documents, j.application_count,
		        (SELECT COUNT(*) FROM applications a WHERE a.job_id = j.id AND a.is_active)
		 FROM jobs j
		 WHERE j.id = $1`,
		id,
	).Scan(
		&j.ID, &j.EnterpriseID, &j.Title, &status, &deadline,
		&j.NumberOfOpenings, &docs, &j.ApplicationCount, &j.ActiveApplications,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return jobgate.Job{}, jobgate.ErrJobNotFound
	}
	if err != nil {
		return jobgate.Job{}, fmt.Errorf("job %s: %w", id, err)
	}
	j.Status = jobgate.JobStatus(status)
	if deadline != nil {
		j.ApplicationDeadline = *deadline
	}
	for _, d := range docs {
		j.RequiredDocuments = append(j.RequiredDocuments, jobgate.DocumentKind(d))
	}
	return j, nil
}

// Put inserts or replaces a job, keeping its application counter.
func (r *JobRepo) Put(ctx context.Context, j jobgate.Job) error {
	var deadline *time.Time
	if !j.ApplicationDeadline.IsZero() {
		deadline = &j.ApplicationDeadline
	}
	docs := make([]string, len(j.RequiredDocuments))
	for i, d := range j.RequiredDocuments {
		docs[i] = string(d)
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO jobs (id, enterprise_id, title, status, application_deadline,
		                   number_of_openings, required_documents, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 ON CONFLICT (id) DO UPDATE
		 SET enterprise_id        = EXCLUDED.enterprise_id,
		     title                = EXCLUDED.title,
		     status               = EXCLUDED.status,
		     application_deadline = EXCLUDED.application_deadline,
		     number_of_openings   = EXCLUDED.number_of_openings,
		     required_documents   = EXCLUDED.required_documents,
		     updated_at           = NOW()`,
		j.ID, j.EnterpriseID, j.Title, string(j.Status), deadline,
		j.NumberOfOpenings, docs,
	)
	if err != nil {
		return fmt.Errorf("put job %s: %w", j.ID, err)
	}
	return nil
}

// ─── Applications ────────────────────────────────────────────────────────────

// ApplicationRepo implements lifecycle.Repository.
type ApplicationRepo struct {
	pool *pgxpool.Pool
}

var applicationColumns = []string{
	"id", "candidate_id", "job_id", "enterprise_id", "job_title", "status",
	"documents", "screening_answers", "experience", "expected_salary",
	"availability_date", "notice_period", "evaluations", "notes",
	"is_active", "version", "created_at", "updated_at",
}

// Create inserts app with its initial timeline, bumps the job's application
// counter and stages events, in one transaction.
func (r *ApplicationRepo) Create(ctx context.Context, app *lifecycle.Application, events []notify.Event) error {
	cols, err := applicationValues(app)
	if err != nil {
		return err
	}
	query, args, err := psql.Insert("applications").Columns(applicationColumns...).Values(cols...).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		openings, err := lockJob(ctx, tx, app.JobID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("candidate %s already applied to job %s: %w",
					app.CandidateID, app.JobID, lifecycle.ErrDuplicateApplication)
			}
			return fmt.Errorf("insert application: %w", err)
		}
		// The count includes the row just inserted.
		var active int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM applications WHERE job_id = $1 AND is_active`, app.JobID,
		).Scan(&active); err != nil {
			return fmt.Errorf("count active applications: %w", err)
		}
		if active > openings {
			return &lifecycle.ClosedError{JobID: app.JobID, Reason: jobgate.ReasonOpeningsFilled}
		}
		if err := insertTimeline(ctx, tx, app.ID, 0, app.Timeline.Entries()); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE jobs SET application_count = application_count + 1, updated_at = NOW() WHERE id = $1`,
			app.JobID,
		); err != nil {
			return fmt.Errorf("link application to job: %w", err)
		}
		return stageEvents(ctx, tx, events)
	})
}

// lockJob takes the job row lock that serialises submissions to one job and
// returns its effective number of openings.
func lockJob(ctx context.Context, tx pgx.Tx, jobID string) (int, error) {
	var openings int
	err := tx.QueryRow(ctx,
		`SELECT number_of_openings FROM jobs WHERE id = $1 FOR UPDATE`, jobID,
	).Scan(&openings)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("job %s: %w", jobID, lifecycle.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("lock job %s: %w", jobID, err)
	}
	return jobgate.Job{NumberOfOpenings: openings}.Openings(), nil
}

// Get returns the application with its timeline.
func (r *ApplicationRepo) Get(ctx context.Context, id string) (*lifecycle.Application, error) {
	return getApplication(ctx, r.pool, id, false)
}

// List returns applications matching f, newest first.
func (r *ApplicationRepo) List(ctx context.Context, f lifecycle.Filter) ([]*lifecycle.Application, error) {
	q := psql.Select(applicationColumns...).From("applications").OrderBy("created_at DESC", "id ASC")
	if f.CandidateID != "" {
		q = q.Where(sq.Eq{"candidate_id": f.CandidateID})
	}
	if f.JobID != "" {
		q = q.Where(sq.Eq{"job_id": f.JobID})
	}
	if f.EnterpriseID != "" {
		q = q.Where(sq.Eq{"enterprise_id": f.EnterpriseID})
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": string(f.Status)})
	}
	if f.ActiveOnly {
		q = q.Where(sq.Eq{"is_active": true})
	}
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		q = q.Offset(uint64(f.Offset))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listApplications query: %w", err)
	}
	defer rows.Close()

	apps := make([]*lifecycle.Application, 0)
	ids := make([]string, 0)
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("listApplications scan: %w", err)
		}
		apps = append(apps, a)
		ids = append(ids, a.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listApplications rows: %w", err)
	}
	if len(apps) == 0 {
		return apps, nil
	}

	logs, err := loadTimelines(ctx, r.pool, ids)
	if err != nil {
		return nil, err
	}
	for _, a := range apps {
		a.Timeline = logs[a.ID]
	}
	return apps, nil
}

// Mutate locks the application row, applies fn and persists the result with
// the timeline entries fn appended and the events it returned.
func (r *ApplicationRepo) Mutate(ctx context.Context, id string, fn lifecycle.MutateFunc) (*lifecycle.Application, error) {
	var out *lifecycle.Application
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		app, err := getApplication(ctx, tx, id, true)
		if err != nil {
			return err
		}
		before := app.Timeline.Len()
		events, err := fn(app)
		if err != nil {
			return err
		}

		docs, evals, notes, err := mutableColumns(app)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE applications
			 SET status = $1, documents = $2, evaluations = $3, notes = $4,
			     is_active = $5, version = $6, updated_at = $7
			 WHERE id = $8`,
			string(app.Status), docs, evals, notes, app.Active, app.Version, app.UpdatedAt, id,
		); err != nil {
			return fmt.Errorf("update application %s: %w", id, err)
		}
		if err := insertTimeline(ctx, tx, id, before, app.Timeline.Since(before)); err != nil {
			return err
		}
		if err := stageEvents(ctx, tx, events); err != nil {
			return err
		}
		out = app
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func getApplication(ctx context.Context, q querier, id string, forUpdate bool) (*lifecycle.Application, error) {
	sel := psql.Select(applicationColumns...).From("applications").Where(sq.Eq{"id": id})
	if forUpdate {
		sel = sel.Suffix("FOR UPDATE")
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get: %w", err)
	}
	app, err := scanApplication(q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("application %s: %w", id, lifecycle.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getApplication scan: %w", err)
	}
	logs, err := loadTimelines(ctx, q, []string{id})
	if err != nil {
		return nil, err
	}
	app.Timeline = logs[id]
	return app, nil
}

func scanApplication(row pgx.Row) (*lifecycle.Application, error) {
	var a lifecycle.Application
	var status string
	var docs, answers, salary, evals, notes []byte
	if err := row.Scan(
		&a.ID, &a.CandidateID, &a.JobID, &a.EnterpriseID, &a.JobTitle, &status,
		&docs, &answers, &a.Experience, &salary,
		&a.AvailabilityDate, &a.NoticePeriod, &evals, &notes,
		&a.Active, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Status = lifecycle.Status(status)
	for _, c := range []struct {
		raw []byte
		dst any
	}{
		{docs, &a.Documents},
		{answers, &a.ScreeningAnswers},
		{salary, &a.ExpectedSalary},
		{evals, &a.Evaluations},
		{notes, &a.Notes},
	} {
		if err := unmarshalJSON(c.raw, c.dst); err != nil {
			return nil, fmt.Errorf("decode application %s: %w", a.ID, err)
		}
	}
	return &a, nil
}

func applicationValues(a *lifecycle.Application) ([]any, error) {
	docs, evals, notes, err := mutableColumns(a)
	if err != nil {
		return nil, err
	}
	answers, err := json.Marshal(nonNil(a.ScreeningAnswers))
	if err != nil {
		return nil, fmt.Errorf("encode screening answers: %w", err)
	}
	var salary []byte
	if a.ExpectedSalary != nil {
		if salary, err = json.Marshal(a.ExpectedSalary); err != nil {
			return nil, fmt.Errorf("encode salary: %w", err)
		}
	}
	return []any{
		a.ID, a.CandidateID, a.JobID, a.EnterpriseID, a.JobTitle, string(a.Status),
		docs, answers, a.Experience, salary,
		a.AvailabilityDate, a.NoticePeriod, evals, notes,
		a.Active, a.Version, a.CreatedAt, a.UpdatedAt,
	}, nil
}

func mutableColumns(a *lifecycle.Application) (docs, evals, notes []byte, err error) {
	if docs, err = json.Marshal(a.Documents); err != nil {
		return nil, nil, nil, fmt.Errorf("encode documents: %w", err)
	}
	if evals, err = json.Marshal(nonNil(a.Evaluations)); err != nil {
		return nil, nil, nil, fmt.Errorf("encode evaluations: %w", err)
	}
	if notes, err = json.Marshal(nonNil(a.Notes)); err != nil {
		return nil, nil, nil, fmt.Errorf("encode notes: %w", err)
	}
	return docs, evals, notes, nil
}

// nonNil keeps empty lists encoded as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// ─── Timeline ────────────────────────────────────────────────────────────────

// insertTimeline appends entries starting at sequence number from.
func insertTimeline(ctx context.Context, q querier, appID string, from int, entries []timeline.Entry) error {
	for i, e := range entries {
		if _, err := q.Exec(ctx,
			`INSERT INTO application_timeline (application_id, seq, status, date, comment, actor_id, actor_role)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			appID, from+i, e.Status, e.Date, e.Comment, e.Actor.ID, string(e.Actor.Role),
		); err != nil {
			return fmt.Errorf("insert timeline entry %d: %w", from+i, err)
		}
	}
	return nil
}

// loadTimelines rebuilds the logs of the given applications.
func loadTimelines(ctx context.Context, q querier, ids []string) (map[string]timeline.Log, error) {
	rows, err := q.Query(ctx,
		`SELECT application_id, status, date, comment, actor_id, actor_role
		 FROM application_timeline
		 WHERE application_id = ANY($1)
		 ORDER BY application_id, date, seq`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("timeline query: %w", err)
	}
	defer rows.Close()

	entries := make(map[string][]timeline.Entry, len(ids))
	for rows.Next() {
		var (
			appID string
			e     timeline.Entry
			role  string
		)
		if err := rows.Scan(&appID, &e.Status, &e.Date, &e.Comment, &e.Actor.ID, &role); err != nil {
			return nil, fmt.Errorf("timeline scan: %w", err)
		}
		e.Actor.Role = actor.Role(role)
		entries[appID] = append(entries[appID], e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("timeline rows: %w", err)
	}

	logs := make(map[string]timeline.Log, len(entries))
	for id, es := range entries {
		l, err := timeline.FromEntries(es)
		if err != nil {
			return nil, fmt.Errorf("timeline of %s: %w", id, err)
		}
		logs[id] = l
	}
	return logs, nil
}
