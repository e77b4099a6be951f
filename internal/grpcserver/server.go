// Package grpcserver implements the LifecycleService gRPC server.
//
// It delegates all business logic to lifecycle.Service, interview.Scheduler
// and notify.Inbox and handles only the gRPC transport concerns: metadata
// extraction, error mapping, and conversion between the domain model and the
// google.protobuf.Struct messages the service exchanges.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/actor"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/interview"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/lifecycle"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/notify"
	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/timeline"
)

// Server implements LifecycleServer.
type Server struct {
	apps  *lifecycle.Service
	sched *interview.Scheduler
	inbox *notify.Inbox
}

// NewServer constructs a gRPC Server backed by the given services.
func NewServer(apps *lifecycle.Service, sched *interview.Scheduler, inbox *notify.Inbox) *Server {
	return &Server{apps: apps, sched: sched, inbox: inbox}
}

// Register mounts the service on gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&ServiceDesc, s)
}

// ─── RPC implementations ──────────────────────────────────────────────────────

type submitRequest struct {
	JobID            string                      `json:"jobId"`
	Documents        lifecycle.Documents         `json:"documents"`
	ScreeningAnswers []lifecycle.ScreeningAnswer `json:"screeningAnswers"`
	Experience       string                      `json:"experience"`
	ExpectedSalary   *lifecycle.Salary           `json:"expectedSalary"`
	AvailabilityDate *time.Time                  `json:"availabilityDate"`
	NoticePeriod     string                      `json:"noticePeriod"`
}

// Submit creates an application for the calling candidate.
func (s *Server) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	who, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var req submitRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	app, err := s.apps.Submit(ctx, lifecycle.SubmitRequest{
		Candidate:        who,
		JobID:            req.JobID,
		Documents:        req.Documents,
		ScreeningAnswers: req.ScreeningAnswers,
		Experience:       req.Experience,
		ExpectedSalary:   req.ExpectedSalary,
		AvailabilityDate: req.AvailabilityDate,
		NoticePeriod:     req.NoticePeriod,
	})
	if err != nil {
		return nil, toGRPCError(err)
	}
	return encode(app)
}

// Transition moves an application to a new status.
func (s *Server) Transition(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	who, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		ApplicationID string `json:"applicationId"`
		Status        string `json:"status"`
		Comment       string `json:"comment"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	app, err := s.apps.Transition(ctx, req.ApplicationID, lifecycle.Status(req.Status), who, req.Comment)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return encode(app)
}

// GetApplication returns one application visible to the caller.
func (s *Server) GetApplication(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	who, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		ApplicationID string `json:"applicationId"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	app, err := s.apps.Get(ctx, req.ApplicationID, who)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return encode(app)
}

// History returns the timeline of an application, oldest first.
func (s *Server) History(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	who, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		ApplicationID string `json:"applicationId"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	seq, err := s.apps.History(ctx, req.ApplicationID, who)
	if err != nil {
		return nil, toGRPCError(err)
	}
	entries := slices.Collect(seq)
	if entries == nil {
		entries = []timeline.Entry{}
	}
	return encode(map[string]any{"entries": entries})
}

// ScheduleInterview schedules an interview for an application under review.
func (s *Server) ScheduleInterview(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	who, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		ApplicationID   string                  `json:"applicationId"`
		ScheduledDate   time.Time               `json:"scheduledDate"`
		DurationMinutes int                     `json:"durationMinutes"`
		Type            string                  `json:"type"`
		Interviewers    []interview.Interviewer `json:"interviewers"`
		Location        string                  `json:"location"`
		MeetingLink     string                  `json:"meetingLink"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	typ, err := interview.ParseType(req.Type)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	iv, err := s.sched.Schedule(ctx, interview.ScheduleRequest{
		ApplicationID:   req.ApplicationID,
		ScheduledDate:   req.ScheduledDate,
		DurationMinutes: req.DurationMinutes,
		Type:            typ,
		Interviewers:    req.Interviewers,
		Location:        req.Location,
		MeetingLink:     req.MeetingLink,
		Actor:           who,
	})
	if err != nil {
		return nil, toGRPCError(err)
	}
	return encode(iv)
}

type interviewRequest struct {
	InterviewID   string    `json:"interviewId"`
	ScheduledDate time.Time `json:"scheduledDate"`
	Reason        string    `json:"reason"`
	Rating        int       `json:"rating"`
	Comments      string    `json:"comments"`
	Interviewer   string    `json:"interviewer"`
}

// ConfirmInterview confirms attendance for the calling candidate.
func (s *Server) ConfirmInterview(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.interviewCall(ctx, in, func(who actor.Actor, req interviewRequest) (*interview.Interview, error) {
		return s.sched.Confirm(ctx, req.InterviewID, who)
	})
}

// RescheduleInterview moves an interview to a new date.
func (s *Server) RescheduleInterview(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.interviewCall(ctx, in, func(who actor.Actor, req interviewRequest) (*interview.Interview, error) {
		return s.sched.Reschedule(ctx, req.InterviewID, req.ScheduledDate, who)
	})
}

// CancelInterview cancels a scheduled interview.
func (s *Server) CancelInterview(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.interviewCall(ctx, in, func(who actor.Actor, req interviewRequest) (*interview.Interview, error) {
		return s.sched.Cancel(ctx, req.InterviewID, req.Reason, who)
	})
}

// CompleteInterview records feedback and advances the application.
func (s *Server) CompleteInterview(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return s.interviewCall(ctx, in, func(who actor.Actor, req interviewRequest) (*interview.Interview, error) {
		return s.sched.Complete(ctx, req.InterviewID, interview.Feedback{
			Rating:      req.Rating,
			Comments:    req.Comments,
			Interviewer: req.Interviewer,
		}, who)
	})
}

func (s *Server) interviewCall(ctx context.Context, in *structpb.Struct, call func(actor.Actor, interviewRequest) (*interview.Interview, error)) (*structpb.Struct, error) {
	who, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var req interviewRequest
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	iv, err := call(who, req)
	if err != nil {
		return nil, toGRPCError(err)
	}
	return encode(iv)
}

// UnreadNotifications lists the caller's unread notifications.
func (s *Server) UnreadNotifications(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	who, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		Limit int `json:"limit"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	ns, err := s.inbox.Unread(ctx, recipientOf(who), req.Limit)
	if err != nil {
		return nil, toGRPCError(err)
	}
	if ns == nil {
		ns = []notify.Notification{}
	}
	return encode(map[string]any{"notifications": ns})
}

// MarkNotificationRead marks a notification read, or clicked when requested.
func (s *Server) MarkNotificationRead(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	who, err := actorFromCtx(ctx)
	if err != nil {
		return nil, err
	}
	var req struct {
		NotificationID string `json:"notificationId"`
		Clicked        bool   `json:"clicked"`
	}
	if err := decode(in, &req); err != nil {
		return nil, err
	}
	mark := s.inbox.MarkRead
	if req.Clicked {
		mark = s.inbox.MarkClicked
	}
	if err := mark(ctx, req.NotificationID, recipientOf(who)); err != nil {
		return nil, toGRPCError(err)
	}
	return &structpb.Struct{}, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// actorFromCtx extracts the x-user-id and x-user-role values forwarded by the
// Gateway via gRPC metadata.
func actorFromCtx(ctx context.Context) (actor.Actor, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return actor.Actor{}, status.Error(codes.Unauthenticated, "missing metadata")
	}
	ids := md.Get("x-user-id")
	if len(ids) == 0 || ids[0] == "" {
		return actor.Actor{}, status.Error(codes.Unauthenticated, "missing x-user-id metadata")
	}
	roles := md.Get("x-user-role")
	if len(roles) == 0 {
		return actor.Actor{}, status.Error(codes.Unauthenticated, "missing x-user-role metadata")
	}
	role, err := actor.ParseRole(roles[0])
	if err != nil {
		return actor.Actor{}, status.Error(codes.Unauthenticated, err.Error())
	}
	return actor.Actor{ID: ids[0], Role: role}, nil
}

func recipientOf(who actor.Actor) notify.Recipient {
	return notify.Recipient{UserID: who.ID, Model: notify.UserModel(who.UserModel())}
}

// toGRPCError maps domain errors to gRPC status errors.
func toGRPCError(err error) error {
	var ve *lifecycle.ValidationError
	switch {
	case errors.As(err, &ve):
		return status.Error(codes.InvalidArgument, ve.Msg)
	case errors.Is(err, lifecycle.ErrNotFound), errors.Is(err, notify.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, lifecycle.ErrDuplicateApplication):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, lifecycle.ErrUnauthorized):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, lifecycle.ErrJobClosed),
		errors.Is(err, lifecycle.ErrMissingDocuments),
		errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrTerminalState),
		errors.Is(err, interview.ErrAlreadyPast),
		errors.Is(err, timeline.ErrOutOfOrderTimestamp):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, "internal server error")
}

// decode reads a Struct request into dst through its JSON form.
func decode(in *structpb.Struct, dst any) error {
	if in == nil {
		return nil
	}
	raw, err := protojson.Marshal(in)
	if err != nil {
		return status.Error(codes.InvalidArgument, "malformed request")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}
	return nil
}

// encode converts a JSON-serialisable object to a Struct.
func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

// LoggingInterceptor logs one line per unary call.
func LoggingInterceptor(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		ev := log.Info()
		if code == codes.Internal || code == codes.Unknown {
			ev = log.Error().Err(err)
		}
		ev.Str("method", info.FullMethod).
			Str("code", code.String()).
			Dur("latency", time.Since(start)).
			Msg("rpc handled")
		return resp, err
	}
}
