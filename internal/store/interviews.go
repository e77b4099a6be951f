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

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/interview"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/notify"
)

// InterviewRepo implements interview.Repository.
type InterviewRepo struct {
	pool *pgxpool.Pool
}

var interviewColumns = []string{
	"id", "application_id", "job_id", "job_title", "candidate_id", "enterprise_id",
	"scheduled_date", "duration_minutes", "type", "status", "interviewers",
	"location", "meeting_link", "confirmed", "confirmed_at", "feedback",
	"previous_id", "cancel_reason", "reminded_at", "created_at", "updated_at",
}

// Create inserts iv and stages events.
func (r *InterviewRepo) Create(ctx context.Context, iv *interview.Interview, events []notify.Event) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if err := insertInterview(ctx, tx, iv); err != nil {
			return err
		}
		return stageEvents(ctx, tx, events)
	})
}

// Get returns an interview by id.
func (r *InterviewRepo) Get(ctx context.Context, id string) (*interview.Interview, error) {
	return getInterview(ctx, r.pool, id, false)
}

// ByApplication returns an application's interviews by scheduled date.
func (r *InterviewRepo) ByApplication(ctx context.Context, applicationID string) ([]*interview.Interview, error) {
	return r.query(ctx, psql.Select(interviewColumns...).
		From("interviews").
		Where(sq.Eq{"application_id": applicationID}).
		OrderBy("scheduled_date ASC"))
}

// Upcoming returns scheduled, unreminded interviews starting in [from, to].
func (r *InterviewRepo) Upcoming(ctx context.Context, from, to time.Time, limit int) ([]*interview.Interview, error) {
	q := psql.Select(interviewColumns...).
		From("interviews").
		Where(sq.Eq{"status": string(interview.StatusScheduled), "reminded_at": nil}).
		Where(sq.GtOrEq{"scheduled_date": from}).
		Where(sq.LtOrEq{"scheduled_date": to}).
		OrderBy("scheduled_date ASC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	return r.query(ctx, q)
}

// Mutate locks the interview row, applies fn and persists the result.
func (r *InterviewRepo) Mutate(ctx context.Context, id string, fn interview.MutateFunc) (*interview.Interview, error) {
	var out *interview.Interview
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		iv, err := getInterview(ctx, tx, id, true)
		if err != nil {
			return err
		}
		events, err := fn(iv)
		if err != nil {
			return err
		}
		if err := updateInterview(ctx, tx, iv); err != nil {
			return err
		}
		if err := stageEvents(ctx, tx, events); err != nil {
			return err
		}
		out = iv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Replace locks the interview, persists fn's changes to it and inserts the
// successor in the same transaction.
func (r *InterviewRepo) Replace(ctx context.Context, id string, fn interview.ReplaceFunc) (*interview.Interview, error) {
	var out *interview.Interview
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		old, err := getInterview(ctx, tx, id, true)
		if err != nil {
			return err
		}
		next, events, err := fn(old)
		if err != nil {
			return err
		}
		if err := updateInterview(ctx, tx, old); err != nil {
			return err
		}
		if err := insertInterview(ctx, tx, next); err != nil {
			return err
		}
		if err := stageEvents(ctx, tx, events); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *InterviewRepo) query(ctx context.Context, b sq.SelectBuilder) ([]*interview.Interview, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build interview query: %w", err)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("interview query: %w", err)
	}
	defer rows.Close()

	out := make([]*interview.Interview, 0)
	for rows.Next() {
		iv, err := scanInterview(rows)
		if err != nil {
			return nil, fmt.Errorf("interview scan: %w", err)
		}
		out = append(out, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("interview rows: %w", err)
	}
	return out, nil
}

func getInterview(ctx context.Context, q querier, id string, forUpdate bool) (*interview.Interview, error) {
	sel := psql.Select(interviewColumns...).From("interviews").Where(sq.Eq{"id": id})
	if forUpdate {
		sel = sel.Suffix("FOR UPDATE")
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get interview: %w", err)
	}
	iv, err := scanInterview(q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, interview.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getInterview scan: %w", err)
	}
	return iv, nil
}

func insertInterview(ctx context.Context, q querier, iv *interview.Interview) error {
	panel, feedback, err := interviewJSON(iv)
	if err != nil {
		return err
	}
	query, args, err := psql.Insert("interviews").Columns(interviewColumns...).Values(
		iv.ID, iv.ApplicationID, iv.JobID, iv.JobTitle, iv.CandidateID, iv.EnterpriseID,
		iv.ScheduledDate, iv.DurationMinutes, string(iv.Type), string(iv.Status), panel,
		iv.Location, iv.MeetingLink, iv.Confirmed, iv.ConfirmedAt, feedback,
		iv.PreviousID, iv.CancelReason, iv.RemindedAt, iv.CreatedAt, iv.UpdatedAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build insert interview: %w", err)
	}
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert interview %s: %w", iv.ID, err)
	}
	return nil
}

func updateInterview(ctx context.Context, q querier, iv *interview.Interview) error {
	panel, feedback, err := interviewJSON(iv)
	if err != nil {
		return err
	}
	query, args, err := psql.Update("interviews").SetMap(map[string]any{
		"scheduled_date":   iv.ScheduledDate,
		"duration_minutes": iv.DurationMinutes,
		"status":           string(iv.Status),
		"interviewers":     panel,
		"location":         iv.Location,
		"meeting_link":     iv.MeetingLink,
		"confirmed":        iv.Confirmed,
		"confirmed_at":     iv.ConfirmedAt,
		"feedback":         feedback,
		"cancel_reason":    iv.CancelReason,
		"reminded_at":      iv.RemindedAt,
		"updated_at":       iv.UpdatedAt,
	}).Where(sq.Eq{"id": iv.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("build update interview: %w", err)
	}
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update interview %s: %w", iv.ID, err)
	}
	return nil
}

func interviewJSON(iv *interview.Interview) (panel, feedback []byte, err error) {
	if panel, err = json.Marshal(nonNil(iv.Interviewers)); err != nil {
		return nil, nil, fmt.Errorf("encode interviewers: %w", err)
	}
	if iv.Feedback != nil {
		if feedback, err = json.Marshal(iv.Feedback); err != nil {
			return nil, nil, fmt.Errorf("encode feedback: %w", err)
		}
	}
	return panel, feedback, nil
}

func scanInterview(row pgx.Row) (*interview.Interview, error) {
	var iv interview.Interview
	var kind, status string
	var panel, feedback []byte
	if err := row.Scan(
		&iv.ID, &iv.ApplicationID, &iv.JobID, &iv.JobTitle, &iv.CandidateID, &iv.EnterpriseID,
		&iv.ScheduledDate, &iv.DurationMinutes, &kind, &status, &panel,
		&iv.Location, &iv.MeetingLink, &iv.Confirmed, &iv.ConfirmedAt, &feedback,
		&iv.PreviousID, &iv.CancelReason, &iv.RemindedAt, &iv.CreatedAt, &iv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	iv.Type = interview.Type(kind)
	iv.Status = interview.Status(status)
	if err := unmarshalJSON(panel, &iv.Interviewers); err != nil {
		return nil, fmt.Errorf("decode interviewers of %s: %w", iv.ID, err)
	}
	if err := unmarshalJSON(feedback, &iv.Feedback); err != nil {
		return nil, fmt.Errorf("decode feedback of %s: %w", iv.ID, err)
	}
	return &iv, nil
}
