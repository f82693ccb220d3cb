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
	"github.com/dtroode/rollcall-server/internal/logger"
	"github.com/dtroode/rollcall-server/internal/model"
	"github.com/dtroode/rollcall-server/internal/scoring"
	"github.com/dtroode/rollcall-server/internal/service"
)

// AttendanceService defines participant-facing verification operations.
type AttendanceService interface {
	Submit(ctx context.Context, params service.SubmitParams) (service.SubmissionResult, error)
	SubmitReverification(ctx context.Context, params service.SubmitParams) (service.SubmissionResult, error)
	GetSlot(ctx context.Context, sessionID, participantID uuid.UUID) (service.SlotInfo, error)
}

// AttendanceServer is the server API of the rollcall.v1.Attendance service.
type AttendanceServer interface {
	Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	SubmitReverification(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	GetReverificationSlot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

const attendanceServiceName = "rollcall.v1.Attendance"

// AttendanceServiceDesc describes the attendance service for grpc.Server.RegisterService.
var AttendanceServiceDesc = grpc.ServiceDesc{
	ServiceName: attendanceServiceName,
	HandlerType: (*AttendanceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Submit",
			Handler: unaryHandler("/"+attendanceServiceName+"/Submit", func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.(AttendanceServer).Submit(ctx, in)
			}),
		},
		{
			MethodName: "SubmitReverification",
			Handler: unaryHandler("/"+attendanceServiceName+"/SubmitReverification", func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.(AttendanceServer).SubmitReverification(ctx, in)
			}),
		},
		{
			MethodName: "GetReverificationSlot",
			Handler: unaryHandler("/"+attendanceServiceName+"/GetReverificationSlot", func(srv any, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.(AttendanceServer).GetReverificationSlot(ctx, in)
			}),
		},
	},
	Metadata: "rollcall/v1/attendance",
}

type submitRequest struct {
	SessionID         uuid.UUID `json:"session_id"`
	Token             string    `json:"token"`
	CapturedAt        time.Time `json:"captured_at"`
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	DeviceToken       string    `json:"device_token"`
	BiometricVerified bool      `json:"biometric_verified"`
	ProximityRSSI     []float64 `json:"proximity_rssi,omitempty"`
	ProximityScans    int       `json:"proximity_scans,omitempty"`
}

type submitResponse struct {
	Accepted       bool                `json:"accepted"`
	RecordID       uuid.UUID           `json:"record_id"`
	Confidence     int                 `json:"confidence"`
	Flagged        bool                `json:"flagged"`
	DistanceMeters float64             `json:"distance_meters"`
	Layers         []scoring.Layer     `json:"layers"`
	Anomalies      []model.AnomalyType `json:"anomalies"`
	ReverifyStatus string              `json:"reverify_status"`
}

type slotRequest struct {
	SessionID uuid.UUID `json:"session_id"`
}

type slotResponse struct {
	SessionID    uuid.UUID  `json:"session_id"`
	Status       string     `json:"status"`
	Sequence     int64      `json:"sequence,omitempty"`
	StartsAt     *time.Time `json:"starts_at,omitempty"`
	EndsAt       *time.Time `json:"ends_at,omitempty"`
	AttemptCount int        `json:"attempt_count"`
	RetryCount   int        `json:"retry_count"`
}

// Attendance handles gRPC endpoints for participants.
type Attendance struct {
	attendanceService AttendanceService
	contextManager    model.ContextManager
	logger            *logger.Logger
}

var _ AttendanceServer = (*Attendance)(nil)

// NewAttendance creates a new Attendance handler.
func NewAttendance(attendanceService AttendanceService, contextManager model.ContextManager, logger *logger.Logger) *Attendance {
	return &Attendance{
		attendanceService: attendanceService,
		contextManager:    contextManager,
		logger:            logger,
	}
}

// Submit records the initial attendance of the calling participant.
func (h *Attendance) Submit(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return h.submit(ctx, in, "submit", h.attendanceService.Submit)
}

// SubmitReverification completes the calling participant's reverification slot.
func (h *Attendance) SubmitReverification(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return h.submit(ctx, in, "reverification", h.attendanceService.SubmitReverification)
}

// GetReverificationSlot returns the calling participant's current slot.
func (h *Attendance) GetReverificationSlot(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	participantID, ok := h.contextManager.GetCallerIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "caller not identified")
	}

	var req slotRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, handleError(ctx, err)
	}
	if req.SessionID == uuid.Nil {
		return nil, handleError(ctx, apierrors.NewErrInvalidArgument("session_id is required"))
	}

	slot, err := h.attendanceService.GetSlot(ctx, req.SessionID, participantID)
	if err != nil {
		h.logger.Debug("Attendance handler: get slot failed",
			"session_id", req.SessionID,
			"participant_id", participantID,
			"error", err.Error())
		return nil, handleError(ctx, err)
	}

	return encodeResponse(convertSlot(slot))
}

func (h *Attendance) submit(
	ctx context.Context,
	in *structpb.Struct,
	kind string,
	call func(context.Context, service.SubmitParams) (service.SubmissionResult, error),
) (*structpb.Struct, error) {
	participantID, ok := h.contextManager.GetCallerIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "caller not identified")
	}

	var req submitRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, handleError(ctx, err)
	}
	if req.SessionID == uuid.Nil {
		return nil, handleError(ctx, apierrors.NewErrInvalidArgument("session_id is required"))
	}

	res, err := call(ctx, service.SubmitParams{
		SessionID:     req.SessionID,
		ParticipantID: participantID,
		Evidence: service.Evidence{
			Token:             req.Token,
			CapturedAt:        req.CapturedAt,
			Latitude:          req.Latitude,
			Longitude:         req.Longitude,
			DeviceToken:       req.DeviceToken,
			BiometricVerified: req.BiometricVerified,
			ProximityRSSI:     req.ProximityRSSI,
			ProximityScans:    req.ProximityScans,
		},
	})
	if err != nil {
		h.logger.Info("Attendance handler: submission rejected",
			"kind", kind,
			"session_id", req.SessionID,
			"participant_id", participantID,
			"error", err.Error())
		return nil, handleError(ctx, err)
	}

	return encodeResponse(convertResult(res))
}

func convertResult(res service.SubmissionResult) submitResponse {
	out := submitResponse{
		Accepted:       res.Accepted,
		RecordID:       res.RecordID,
		Confidence:     res.Confidence,
		Flagged:        res.Flagged,
		DistanceMeters: res.DistanceMeters,
		Layers:         res.Layers,
		Anomalies:      res.Anomalies,
		ReverifyStatus: string(res.ReverifyStatus),
	}
	if out.Layers == nil {
		out.Layers = []scoring.Layer{}
	}
	if out.Anomalies == nil {
		out.Anomalies = []model.AnomalyType{}
	}
	return out
}

func convertSlot(slot service.SlotInfo) slotResponse {
	out := slotResponse{
		SessionID:    slot.SessionID,
		Status:       string(slot.Status),
		Sequence:     slot.Sequence,
		AttemptCount: slot.AttemptCount,
		RetryCount:   slot.RetryCount,
	}
	if !slot.StartsAt.IsZero() {
		out.StartsAt = &slot.StartsAt
		out.EndsAt = &slot.EndsAt
	}
	return out
}
