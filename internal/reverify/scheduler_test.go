package reverify

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/rollcall-server/internal/model"
	"github.com/dtroode/rollcall-server/internal/testutil"
)

func newScheduler(store *testutil.MemStore, notifier model.Notifier, now time.Time) *Scheduler {
	return NewScheduler(store.SessionStore(), notifier, DefaultCapacity(), testutil.NewFakeClock(now), testutil.MakeNoopLogger())
}

func TestScheduler_EnsureSelection(t *testing.T) {
	store := testutil.NewMemStore()
	notifier := &testutil.RecordingNotifier{}
	session := newSession(0.35, 10*time.Minute)
	store.PutSession(session)
	seedRecords(store, session, 40)

	err := newScheduler(store, notifier, t0).EnsureSelection(t.Context(), session)
	require.NoError(t, err)

	stored := store.Session(session.ID)
	assert.True(t, stored.ReverifySelectionDone)
	assert.Equal(t, 14, stored.ReverifySelectedCount)
	require.NotNil(t, stored.ReverifySelectionRunAt)

	pending := 0
	for _, r := range store.Records() {
		if r.Reverify.Status != model.ReverifyPending {
			assert.Equal(t, model.ReverifyNotRequired, r.Reverify.Status)
			continue
		}
		pending++
		assert.True(t, r.Reverify.Required)
		assert.Equal(t, 1, r.Reverify.AttemptCount)
		assert.Equal(t, 0, r.Reverify.RetryCount)
		assert.False(t, r.Flagged)
		require.NotNil(t, r.Reverify.RequestedAt)
		require.NotNil(t, r.Reverify.DeadlineAt)
		assert.Equal(t, r.Reverify.RequestedAt.Add(rotation+grace), *r.Reverify.DeadlineAt)
		assert.False(t, r.Reverify.RequestedAt.Before(t0.Add(DefaultCapacity().MinLead)))
	}
	assert.Equal(t, 14, pending)

	sent := notifier.Sent()
	require.Len(t, sent, 14)
	for _, n := range sent {
		assert.Equal(t, model.NotificationReverifyScheduled, n.Kind)
		assert.Contains(t, n.Metadata, "slot_start")
		assert.Contains(t, n.Metadata, "batch_index")
	}
}

func TestScheduler_RunsOnce(t *testing.T) {
	store := testutil.NewMemStore()
	notifier := &testutil.RecordingNotifier{}
	session := newSession(0.5, 10*time.Minute)
	store.PutSession(session)
	seedRecords(store, session, 20)

	s := newScheduler(store, notifier, t0)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Every caller holds the stale, not-yet-selected snapshot.
			assert.NoError(t, s.EnsureSelection(t.Context(), session))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.SelectionRuns())
	assert.Equal(t, 10, store.Session(session.ID).ReverifySelectedCount)
	assert.Len(t, notifier.Sent(), 10)

	require.NoError(t, s.EnsureSelection(t.Context(), store.Session(session.ID)))
	assert.Equal(t, 1, store.SelectionRuns())
}

func TestScheduler_NoTimeLeft(t *testing.T) {
	store := testutil.NewMemStore()
	notifier := &testutil.RecordingNotifier{}
	session := newSession(1.0, 4*time.Second)
	store.PutSession(session)
	seedRecords(store, session, 10)

	require.NoError(t, newScheduler(store, notifier, t0).EnsureSelection(t.Context(), session))

	stored := store.Session(session.ID)
	assert.True(t, stored.ReverifySelectionDone)
	assert.Zero(t, stored.ReverifySelectedCount)
	assert.Empty(t, notifier.Sent())
	for _, r := range store.Records() {
		assert.Equal(t, model.ReverifyNotRequired, r.Reverify.Status)
	}
}

func TestScheduler_NoSlotAbortsSelection(t *testing.T) {
	store := testutil.NewMemStore()
	session := newSession(1.0, 10*time.Minute)
	store.PutSession(session)
	seedRecords(store, session, 5)

	capacity := DefaultCapacity()
	capacity.MinLead = 15 * time.Minute
	s := NewScheduler(store.SessionStore(), &testutil.RecordingNotifier{}, capacity, testutil.NewFakeClock(t0), testutil.MakeNoopLogger())

	require.NoError(t, s.EnsureSelection(t.Context(), session))

	stored := store.Session(session.ID)
	assert.True(t, stored.ReverifySelectionDone)
	assert.Zero(t, stored.ReverifySelectedCount)
}

func TestScheduler_NotificationFailureIsSwallowed(t *testing.T) {
	store := testutil.NewMemStore()
	session := newSession(1.0, 10*time.Minute)
	store.PutSession(session)
	seedRecords(store, session, 3)

	notifier := &testutil.RecordingNotifier{Err: assert.AnError}
	require.NoError(t, newScheduler(store, notifier, t0).EnsureSelection(t.Context(), session))
	assert.Equal(t, 3, store.Session(session.ID).ReverifySelectedCount)
}

func TestScheduler_PlanUsesShuffle(t *testing.T) {
	store := testutil.NewMemStore()
	session := newSession(0.5, 10*time.Minute)
	records := seedRecords(store, session, 4)

	reverse := func(n int, swap func(i, j int)) {
		for i := 0; i < n/2; i++ {
			swap(i, n-1-i)
		}
	}
	s := newScheduler(store, &testutil.RecordingNotifier{}, t0).WithShuffle(reverse)

	before := slices.Clone(records)
	got := s.Plan(session, records, t0)
	require.Len(t, got, 2)
	assert.Equal(t, records[3].ID, got[0].RecordID)
	assert.Equal(t, records[2].ID, got[1].RecordID)
	assert.Equal(t, before, records)
}

func TestScheduler_PlanIsUniform(t *testing.T) {
	session := newSession(0.5, 10*time.Minute)
	pool := make([]model.Record, 10)
	for i := range pool {
		pool[i] = model.Record{ID: uuid.New(), ParticipantID: uuid.New()}
	}
	s := newScheduler(testutil.NewMemStore(), &testutil.RecordingNotifier{}, t0)

	const rounds = 2000
	hits := map[uuid.UUID]int{}
	for range rounds {
		for _, a := range s.Plan(session, pool, t0) {
			hits[a.RecordID]++
		}
	}

	// Each participant is chosen with probability 1/2; 200 is about nine standard deviations.
	for _, r := range pool {
		assert.InDelta(t, rounds/2, hits[r.ID], 200, "participant %s", r.ID)
	}
}
