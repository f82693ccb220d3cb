package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/rollcall-server/internal/audit"
	"github.com/dtroode/rollcall-server/internal/mocks"
	"github.com/dtroode/rollcall-server/internal/model"
	"github.com/dtroode/rollcall-server/internal/proof"
	"github.com/dtroode/rollcall-server/internal/reverify"
	"github.com/dtroode/rollcall-server/internal/testutil"
)

func newSessionService(f *fixture, storage model.Storage) *Session {
	log := testutil.MakeNoopLogger()
	archiver := audit.NewArchiver(f.store.RecordStore(), f.store.AnomalyStore(), storage, f.clock, log)
	return NewSession(f.store.SessionStore(), f.ctrl, archiver, reverify.DefaultCapacity(), DefaultSessionConfig(), f.clock, log)
}

func TestSession_Start(t *testing.T) {
	f := newFixture(t, 0.5)
	svc := newSessionService(f, mocks.NewStorage(t))
	lecturer := uuid.New()

	s, err := svc.Start(context.Background(), StartParams{
		CourseID:      f.courseID,
		LecturerID:    lecturer,
		CenterLat:     51.5,
		CenterLng:     -0.12,
		RadiusMeters:  40,
		SelectionRate: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, model.SessionStatusActive, s.Status)
	assert.Equal(t, model.PhaseInitial, s.Phase)
	assert.Len(t, s.Secret, 32)
	assert.Equal(t, 5*time.Second, s.Rotation)
	assert.Equal(t, time.Second, s.Grace)
	assert.Equal(t, 1.0, s.ReverifySelectionRate)
	assert.Equal(t, start.Add(10*time.Minute), s.InitialEndsAt)
	assert.Equal(t, start.Add(20*time.Minute), s.ReverifyEndsAt)
	assert.Equal(t, lecturer, f.store.Session(s.ID).LecturerID)
}

func TestSession_Start_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		params StartParams
	}{
		{name: "missing course", params: StartParams{CenterLat: 1, CenterLng: 1, RadiusMeters: 10}},
		{name: "bad center", params: StartParams{CourseID: uuid.New(), CenterLat: 100, RadiusMeters: 10}},
		{name: "zero radius", params: StartParams{CourseID: uuid.New(), CenterLat: 1, CenterLng: 1}},
		{name: "short rotation", params: StartParams{CourseID: uuid.New(), RadiusMeters: 10, Rotation: 500 * time.Millisecond}},
		{name: "grace longer than rotation", params: StartParams{CourseID: uuid.New(), RadiusMeters: 10, Grace: 6 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0.5)
			svc := newSessionService(f, mocks.NewStorage(t))
			_, err := svc.Start(context.Background(), tt.params)
			requireAPIError(t, err, "INVALID_ARGUMENT")
		})
	}
}

func TestSession_Close(t *testing.T) {
	ctx := context.Background()

	t.Run("other lecturer", func(t *testing.T) {
		f := newFixture(t, 0.5)
		svc := newSessionService(f, mocks.NewStorage(t))
		_, err := svc.Close(ctx, uuid.New(), f.session.ID)
		requireAPIError(t, err, "NOT_SESSION_OWNER")
		assert.Equal(t, model.SessionStatusActive, f.store.Session(f.session.ID).Status)
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t, 0.5)
		svc := newSessionService(f, mocks.NewStorage(t))
		_, err := svc.Close(ctx, f.session.LecturerID, uuid.New())
		requireAPIError(t, err, "SESSION_NOT_FOUND")
	})

	t.Run("owner", func(t *testing.T) {
		f := newFixture(t, 0.5)
		svc := newSessionService(f, mocks.NewStorage(t))
		s, err := svc.Close(ctx, f.session.LecturerID, f.session.ID)
		require.NoError(t, err)
		assert.Equal(t, model.PhaseClosed, s.Phase)
		assert.Equal(t, model.SessionStatusClosed, f.store.Session(f.session.ID).Status)
	})
}

func TestFrame(t *testing.T) {
	f := newFixture(t, 0.5)
	now := start.Add(2500 * time.Millisecond)

	frame := Frame(f.session, now)
	assert.Equal(t, model.PhaseInitial, frame.Phase)
	assert.Equal(t, proof.Sequence(now.UnixMilli(), 5000), frame.Sequence)
	assert.Equal(t, proof.Issue(secret, model.PhaseInitial, frame.Sequence), frame.Token)
	assert.Equal(t, start.Add(5*time.Second), frame.RotatesAt)
	assert.Equal(t, 2500*time.Millisecond, frame.RotatesIn)
	assert.Equal(t, f.session.InitialEndsAt, frame.PhaseEndsAt)
	assert.True(t, proof.Verify(secret, frame.Token, model.PhaseInitial, now.UnixMilli(), 5000, 1000))

	closedAt := now
	f.session.Status, f.session.Phase, f.session.ClosedAt = model.SessionStatusClosed, model.PhaseClosed, &closedAt
	frame = Frame(f.session, now)
	assert.Empty(t, frame.Token)
	assert.Equal(t, closedAt, frame.PhaseEndsAt)
}

func TestSession_DisplayFrame_FollowsPhase(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0.5)
	svc := newSessionService(f, mocks.NewStorage(t))

	frame, err := svc.DisplayFrame(ctx, f.session.LecturerID, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseInitial, frame.Phase)

	f.clock.Set(start.Add(12 * time.Minute))
	frame, err = svc.DisplayFrame(ctx, f.session.LecturerID, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseReverify, frame.Phase)
	assert.Equal(t, f.session.ReverifyEndsAt, frame.PhaseEndsAt)
	assert.NotEmpty(t, frame.Token)

	_, err = svc.DisplayFrame(ctx, uuid.New(), f.session.ID)
	requireAPIError(t, err, "NOT_SESSION_OWNER")
}

func TestSession_Report_BuiltWhenNotArchived(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 0.5)
	storage := mocks.NewStorage(t)
	storage.On("Exists", mock.Anything, audit.ReportKey(f.session.ID)).Return(false, nil)
	svc := newSessionService(f, storage)

	_, err := f.attendance.Submit(ctx, f.params(f.enroll(), f.evidence(model.PhaseInitial, "d")))
	require.NoError(t, err)

	report, err := svc.Report(ctx, f.session.LecturerID, f.session.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Summary.Total)
	assert.Equal(t, 1, report.Summary.NotRequired)
}
