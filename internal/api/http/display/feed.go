// Package display streams rotating proof tokens to the lecture hall screen.
package display

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"google.golang.org/grpc/codes"

	"github.com/dtroode/rollcall-server/internal/apierrors"
	"github.com/dtroode/rollcall-server/internal/logger"
	"github.com/dtroode/rollcall-server/internal/model"
	"github.com/dtroode/rollcall-server/internal/service"
)

const writeWait = 5 * time.Second

// FrameSource renders the display state of a lecturer's session.
type FrameSource interface {
	DisplayFrame(ctx context.Context, lecturerID, sessionID uuid.UUID) (service.DisplayFrame, error)
}

// Message is one frame pushed over the socket.
type Message struct {
	SessionID   uuid.UUID  `json:"session_id"`
	Status      string     `json:"status"`
	Phase       string     `json:"phase"`
	Token       string     `json:"token,omitempty"`
	Sequence    int64      `json:"sequence,omitempty"`
	RotatesAt   *time.Time `json:"rotates_at,omitempty"`
	RotatesInMs int64      `json:"rotates_in_ms,omitempty"`
	PhaseEndsAt *time.Time `json:"phase_ends_at,omitempty"`
}

// Feed pushes a display frame to each connected screen on every tick.
type Feed struct {
	frames   FrameSource
	tokens   model.TokenManager
	interval time.Duration
	upgrader websocket.Upgrader
	logger   *logger.Logger
}

// NewFeed creates new Feed instance. A non-positive interval defaults to one second.
func NewFeed(frames FrameSource, tokens model.TokenManager, interval time.Duration, logger *logger.Logger) *Feed {
	if interval <= 0 {
		interval = time.Second
	}
	return &Feed{
		frames:   frames,
		tokens:   tokens,
		interval: interval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP authenticates the lecturer via the token query parameter and upgrades the connection.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lecturerID, err := f.tokens.ParseAccessToken(r.URL.Query().Get("token"))
	if err != nil || lecturerID == uuid.Nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	// The first frame is rendered before upgrading so ownership errors map to HTTP statuses.
	frame, err := f.frames.DisplayFrame(r.Context(), lecturerID, sessionID)
	if err != nil {
		http.Error(w, http.StatusText(statusOf(err)), statusOf(err))
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("Display feed: upgrade failed", "session_id", sessionID, "error", err.Error())
		return
	}
	defer conn.Close()

	f.logger.Info("Display feed: screen connected", "session_id", sessionID, "lecturer_id", lecturerID)
	f.stream(r.Context(), conn, lecturerID, sessionID, frame)
	f.logger.Info("Display feed: screen disconnected", "session_id", sessionID)
}

func (f *Feed) stream(ctx context.Context, conn *websocket.Conn, lecturerID, sessionID uuid.UUID, frame service.DisplayFrame) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Reads only detect the client going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		if err := f.write(conn, frame); err != nil {
			f.logger.Debug("Display feed: write failed", "session_id", sessionID, "error", err.Error())
			return
		}
		if frame.Phase == model.PhaseClosed || frame.Status != model.SessionStatusActive {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
				time.Now().Add(writeWait))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		next, err := f.frames.DisplayFrame(ctx, lecturerID, sessionID)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				f.logger.Error("Display feed: failed to render frame", "session_id", sessionID, "error", err.Error())
			}
			return
		}
		frame = next
	}
}

func (f *Feed) write(conn *websocket.Conn, frame service.DisplayFrame) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(NewMessage(frame))
}

// NewMessage converts a display frame to its wire form.
func NewMessage(frame service.DisplayFrame) Message {
	m := Message{
		SessionID:   frame.SessionID,
		Status:      string(frame.Status),
		Phase:       string(frame.Phase),
		Token:       frame.Token,
		Sequence:    frame.Sequence,
		RotatesInMs: frame.RotatesIn.Milliseconds(),
	}
	if !frame.RotatesAt.IsZero() {
		m.RotatesAt = &frame.RotatesAt
	}
	if !frame.PhaseEndsAt.IsZero() {
		m.PhaseEndsAt = &frame.PhaseEndsAt
	}
	return m
}

func statusOf(err error) int {
	var apiErr *apierrors.APIError
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError
	}
	switch apiErr.GRPCCode {
	case codes.NotFound:
		return http.StatusNotFound
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.InvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
