package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/rollcall-server/internal/apierrors"
	"github.com/dtroode/rollcall-server/internal/model"
	"github.com/dtroode/rollcall-server/internal/phase"
	"github.com/dtroode/rollcall-server/internal/proof"
	"github.com/dtroode/rollcall-server/internal/reverify"
	"github.com/dtroode/rollcall-server/internal/scoring"
	"github.com/dtroode/rollcall-server/internal/testutil"
)

// start is aligned on a five second boundary, so sequences start exactly at it.
var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

var secret = []byte("0123456789abcdef0123456789abcdef")

type fixture struct {
	store      *testutil.MemStore
	clock      *testutil.FakeClock
	cache      *testutil.MemCache
	notifier   *testutil.RecordingNotifier
	ctrl       *phase.Controller
	attendance *Attendance
	session    model.Session
	courseID   uuid.UUID
}

func newFixture(t *testing.T, rate float64) *fixture {
	t.Helper()

	f := &fixture{
		store:    testutil.NewMemStore(),
		clock:    testutil.NewFakeClock(start),
		cache:    testutil.NewMemCache(),
		notifier: &testutil.RecordingNotifier{},
		courseID: uuid.New(),
	}
	f.session = model.Session{
		ID:                    uuid.New(),
		CourseID:              f.courseID,
		LecturerID:            uuid.New(),
		CenterLat:             40.0,
		CenterLng:             -75.0,
		RadiusMeters:          50,
		Rotation:              5 * time.Second,
		Grace:                 time.Second,
		Status:                model.SessionStatusActive,
		Phase:                 model.PhaseInitial,
		StartedAt:             start,
		InitialEndsAt:         start.Add(10 * time.Minute),
		ReverifyEndsAt:        start.Add(20 * time.Minute),
		ReverifySelectionRate: rate,
		Secret:                secret,
	}
	f.store.PutSession(f.session)

	log := testutil.MakeNoopLogger()
	capacity := reverify.DefaultCapacity()
	f.ctrl = phase.NewController(
		f.store.SessionStore(),
		reverify.NewScheduler(f.store.SessionStore(), f.notifier, capacity, f.clock, log),
		reverify.NewSweeper(f.store.RecordStore(), f.notifier, capacity, f.clock, log),
		nil,
		phase.Durations{Initial: 10 * time.Minute, Reverify: 10 * time.Minute},
		f.clock,
		log,
	)
	f.attendance = f.newAttendance(f.cache, DefaultAdmissionConfig())
	return f
}

func (f *fixture) newAttendance(cache model.Cache, cfg AdmissionConfig) *Attendance {
	return f.newAttendanceWith(f.store.RecordStore(), cache, cfg)
}

func (f *fixture) newAttendanceWith(records model.RecordStore, cache model.Cache, cfg AdmissionConfig) *Attendance {
	log := testutil.MakeNoopLogger()
	return NewAttendance(
		f.store.ParticipantStore(),
		records,
		f.store.DeviceStore(),
		f.ctrl,
		scoring.NewDeviceConsistency(f.store.DeviceStore(), cache, log),
		scoring.NewScorer(scoring.DefaultConfig()),
		cache,
		f.notifier,
		f.clock,
		cfg,
		log,
	)
}

// enroll adds a participant who satisfies every precondition.
func (f *fixture) enroll() uuid.UUID {
	id := uuid.New()
	f.store.PutParticipant(model.Participant{
		ID:               id,
		Email:            id.String() + "@example.com",
		ContactVerified:  true,
		BiometricDevices: 1,
	}, f.courseID)
	return id
}

// evidence is a fully passing capture taken one second ago, eleven meters from the center.
func (f *fixture) evidence(p model.Phase, device string) Evidence {
	now := f.clock.Now()
	seq := proof.Sequence(now.UnixMilli(), f.session.Rotation.Milliseconds())
	return Evidence{
		Token:             proof.Issue(secret, p, seq),
		CapturedAt:        now.Add(-time.Second),
		Latitude:          40.0001,
		Longitude:         -75.0,
		DeviceToken:       device,
		BiometricVerified: true,
		ProximityRSSI:     []float64{-60, -65},
		ProximityScans:    3,
	}
}

func (f *fixture) params(participantID uuid.UUID, ev Evidence) SubmitParams {
	return SubmitParams{SessionID: f.session.ID, ParticipantID: participantID, Evidence: ev}
}

func requireAPIError(t *testing.T, err error, code string) {
	t.Helper()
	var apiErr *apierrors.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, code, apiErr.Code)
}
