package reverify

import (
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/rollcall-server/internal/model"
	"github.com/dtroode/rollcall-server/internal/testutil"
)

// t0 is aligned to a rotation boundary.
var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newSession(rate float64, reverifyFor time.Duration) model.Session {
	return model.Session{
		ID:                    uuid.New(),
		CourseID:              uuid.New(),
		Rotation:              rotation,
		Grace:                 grace,
		Status:                model.SessionStatusActive,
		Phase:                 model.PhaseReverify,
		StartedAt:             t0.Add(-10 * time.Minute),
		InitialEndsAt:         t0,
		ReverifyEndsAt:        t0.Add(reverifyFor),
		ReverifySelectionRate: rate,
	}
}

func seedRecords(store *testutil.MemStore, session model.Session, n int) []model.Record {
	out := make([]model.Record, 0, n)
	for i := range n {
		r := model.Record{
			ID:            uuid.New(),
			SessionID:     session.ID,
			ParticipantID: uuid.New(),
			Confidence:    90,
			Reverify:      model.ReverifyState{Status: model.ReverifyNotRequired},
			CreatedAt:     t0.Add(-10*time.Minute + time.Duration(i)*time.Second),
		}
		store.PutRecord(r)
		out = append(out, r)
	}
	return out
}

func pendingRecord(session model.Session, attempt, retry int, requestedAt time.Time) model.Record {
	deadline := requestedAt.Add(rotation + grace)
	return model.Record{
		ID:            uuid.New(),
		SessionID:     session.ID,
		ParticipantID: uuid.New(),
		Confidence:    90,
		Reverify: model.ReverifyState{
			Required:     true,
			Status:       model.ReverifyPending,
			AttemptCount: attempt,
			RetryCount:   retry,
			RequestedAt:  &requestedAt,
			DeadlineAt:   &deadline,
		},
		CreatedAt: t0.Add(-5 * time.Minute),
	}
}
