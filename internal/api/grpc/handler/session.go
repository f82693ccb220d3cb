package handler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dtroode/rollcall-server/internal/apierrors"
	"github.com/dtroode/rollcall-server/internal/audit"
	"github.com/dtroode/rollcall-server/internal/logger"
	"github.com/dtroode/rollcall-server/internal/model"
	"github.com/dtroode/rollcall-server/internal/service"
)

// SessionService defines lecturer-facing session operations.
type SessionService interface {
	Start(ctx context.Context, params service.StartParams) (model.Session, error)
	Close(ctx context.Context, lecturerID, sessionID uuid.UUID) (model.Session, error)
	DisplayFrame(ctx context.Context, lecturerID, sessionID uuid.UUID) (service.DisplayFrame, error)
	Report(ctx context.Context, lecturerID, sessionID uuid.UUID) (audit.Report, error)
}

// SessionServer is the server API of the rollcall.v1.Sessions service.
type SessionServer interface {
	StartSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	CloseSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetDisplayFrame(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetSessionReport(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

const sessionServiceName = "rollcall.v1.Sessions"

// SessionServiceDesc describes the sessions service for grpc.Server.RegisterService.
var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: sessionServiceName,
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "StartSession",
			Handler: unaryHandler("/"+sessionServiceName+"/StartSession", func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.(SessionServer).StartSession(ctx, in)
			}),
		},
		{
			MethodName: "CloseSession",
			Handler: unaryHandler("/"+sessionServiceName+"/CloseSession", func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.(SessionServer).CloseSession(ctx, in)
			}),
		},
		{
			MethodName: "GetDisplayFrame",
			Handler: unaryHandler("/"+sessionServiceName+"/GetDisplayFrame", func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.(SessionServer).GetDisplayFrame(ctx, in)
			}),
		},
		{
			MethodName: "GetSessionReport",
			Handler: unaryHandler("/"+sessionServiceName+"/GetSessionReport", func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.(SessionServer).GetSessionReport(ctx, in)
			}),
		},
	},
	Metadata: "rollcall/v1/sessions",
}

type startRequest struct {
	CourseID                uuid.UUID `json:"course_id"`
	CenterLat               float64   `json:"center_lat"`
	CenterLng               float64   `json:"center_lng"`
	RadiusMeters            float64   `json:"radius_meters"`
	RotationMs              int64     `json:"rotation_ms,omitempty"`
	GraceMs                 int64     `json:"grace_ms,omitempty"`
	InitialDurationSeconds  int64     `json:"initial_duration_seconds,omitempty"`
	ReverifyDurationSeconds int64     `json:"reverify_duration_seconds,omitempty"`
	SelectionRate           float64   `json:"selection_rate,omitempty"`
}

type sessionRequest struct {
	SessionID uuid.UUID `json:"session_id"`
}

type sessionResponse struct {
	ID             uuid.UUID  `json:"id"`
	CourseID       uuid.UUID  `json:"course_id"`
	Status         string     `json:"status"`
	Phase          string     `json:"phase"`
	RotationMs     int64      `json:"rotation_ms"`
	GraceMs        int64      `json:"grace_ms"`
	StartedAt      time.Time  `json:"started_at"`
	InitialEndsAt  time.Time  `json:"initial_ends_at"`
	ReverifyEndsAt time.Time  `json:"reverify_ends_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	SelectionRate  float64    `json:"selection_rate"`
	SelectedCount  int        `json:"selected_count"`
}

type frameResponse struct {
	SessionID   uuid.UUID  `json:"session_id"`
	Status      string     `json:"status"`
	Phase       string     `json:"phase"`
	Token       string     `json:"token,omitempty"`
	Sequence    int64      `json:"sequence,omitempty"`
	RotatesAt   *time.Time `json:"rotates_at,omitempty"`
	RotatesInMs int64      `json:"rotates_in_ms,omitempty"`
	PhaseEndsAt *time.Time `json:"phase_ends_at,omitempty"`
}

// Session handles gRPC endpoints for lecturers.
type Session struct {
	sessionService SessionService
	contextManager model.ContextManager
	logger         *logger.Logger
}

var _ SessionServer = (*Session)(nil)

// NewSession creates a new Session handler.
func NewSession(sessionService SessionService, contextManager model.ContextManager, logger *logger.Logger) *Session {
	return &Session{
		sessionService: sessionService,
		contextManager: contextManager,
		logger:         logger,
	}
}

// StartSession opens a session owned by the calling lecturer.
func (h *Session) StartSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	lecturerID, ok := h.contextManager.GetCallerIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "caller not identified")
	}

	var req startRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, handleError(ctx, err)
	}

	session, err := h.sessionService.Start(ctx, service.StartParams{
		CourseID:         req.CourseID,
		LecturerID:       lecturerID,
		CenterLat:        req.CenterLat,
		CenterLng:        req.CenterLng,
		RadiusMeters:     req.RadiusMeters,
		Rotation:         time.Duration(req.RotationMs) * time.Millisecond,
		Grace:            time.Duration(req.GraceMs) * time.Millisecond,
		InitialDuration:  time.Duration(req.InitialDurationSeconds) * time.Second,
		ReverifyDuration: time.Duration(req.ReverifyDurationSeconds) * time.Second,
		SelectionRate:    req.SelectionRate,
	})
	if err != nil {
		h.logger.Error("Session handler: start session failed",
			"lecturer_id", lecturerID,
			"course_id", req.CourseID,
			"error", err.Error())
		return nil, handleError(ctx, err)
	}

	h.logger.Info("Session handler: session started", "session_id", session.ID, "lecturer_id", lecturerID)
	return encodeResponse(convertSession(session))
}

// CloseSession closes the lecturer's session early.
func (h *Session) CloseSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	lecturerID, sessionID, err := h.target(ctx, in)
	if err != nil {
		return nil, err
	}

	session, err := h.sessionService.Close(ctx, lecturerID, sessionID)
	if err != nil {
		h.logger.Error("Session handler: close session failed",
			"session_id", sessionID,
			"error", err.Error())
		return nil, handleError(ctx, err)
	}
	return encodeResponse(convertSession(session))
}

// GetDisplayFrame returns what the shared display shows right now.
func (h *Session) GetDisplayFrame(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	lecturerID, sessionID, err := h.target(ctx, in)
	if err != nil {
		return nil, err
	}

	frame, err := h.sessionService.DisplayFrame(ctx, lecturerID, sessionID)
	if err != nil {
		return nil, handleError(ctx, err)
	}
	return encodeResponse(convertFrame(frame))
}

// GetSessionReport returns the audit report of the session.
func (h *Session) GetSessionReport(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	lecturerID, sessionID, err := h.target(ctx, in)
	if err != nil {
		return nil, err
	}

	report, err := h.sessionService.Report(ctx, lecturerID, sessionID)
	if err != nil {
		h.logger.Error("Session handler: get report failed",
			"session_id", sessionID,
			"error", err.Error())
		return nil, handleError(ctx, err)
	}
	return encodeResponse(report)
}

func (h *Session) target(ctx context.Context, in *structpb.Struct) (uuid.UUID, uuid.UUID, error) {
	lecturerID, ok := h.contextManager.GetCallerIDFromContext(ctx)
	if !ok {
		return uuid.Nil, uuid.Nil, status.Error(codes.Unauthenticated, "caller not identified")
	}

	var req sessionRequest
	if err := decodeRequest(in, &req); err != nil {
		return uuid.Nil, uuid.Nil, handleError(ctx, err)
	}
	if req.SessionID == uuid.Nil {
		return uuid.Nil, uuid.Nil, handleError(ctx, apierrors.NewErrInvalidArgument("session_id is required"))
	}
	return lecturerID, req.SessionID, nil
}

func convertSession(s model.Session) sessionResponse {
	return sessionResponse{
		ID:             s.ID,
		CourseID:       s.CourseID,
		Status:         string(s.Status),
		Phase:          string(s.Phase),
		RotationMs:     s.Rotation.Milliseconds(),
		GraceMs:        s.Grace.Milliseconds(),
		StartedAt:      s.StartedAt,
		InitialEndsAt:  s.InitialEndsAt,
		ReverifyEndsAt: s.ReverifyEndsAt,
		ClosedAt:       s.ClosedAt,
		SelectionRate:  s.ReverifySelectionRate,
		SelectedCount:  s.ReverifySelectedCount,
	}
}

// convertFrame renders a display frame in its wire shape.
func convertFrame(f service.DisplayFrame) frameResponse {
	out := frameResponse{
		SessionID:   f.SessionID,
		Status:      string(f.Status),
		Phase:       string(f.Phase),
		Token:       f.Token,
		Sequence:    f.Sequence,
		RotatesInMs: f.RotatesIn.Milliseconds(),
	}
	if !f.RotatesAt.IsZero() {
		out.RotatesAt = &f.RotatesAt
	}
	if !f.PhaseEndsAt.IsZero() {
		out.PhaseEndsAt = &f.PhaseEndsAt
	}
	return out
}
