package testutil

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/rollcall-server/internal/model"
)

type deviceKey struct {
	participantID uuid.UUID
	token         string
}

type enrollmentKey struct {
	courseID      uuid.UUID
	participantID uuid.UUID
}

// MemStore is an in-memory implementation of every store with the same
// atomicity guarantees as the Postgres repositories.
type MemStore struct {
	mu           sync.Mutex
	sessions     map[uuid.UUID]model.Session
	records      map[uuid.UUID]model.Record
	anomalies    []model.Anomaly
	devices      map[deviceKey]model.DeviceLink
	participants map[uuid.UUID]model.Participant
	enrollments  map[enrollmentKey]bool

	selectionRuns int
	casWins       int
}

func NewMemStore() *MemStore {
	return &MemStore{
		sessions:     make(map[uuid.UUID]model.Session),
		records:      make(map[uuid.UUID]model.Record),
		devices:      make(map[deviceKey]model.DeviceLink),
		participants: make(map[uuid.UUID]model.Participant),
		enrollments:  make(map[enrollmentKey]bool),
	}
}

func (m *MemStore) SessionStore() model.SessionStore         { return memSessions{m} }
func (m *MemStore) RecordStore() model.RecordStore           { return memRecords{m} }
func (m *MemStore) AnomalyStore() model.AnomalyStore         { return memAnomalies{m} }
func (m *MemStore) DeviceStore() model.DeviceStore           { return memDevices{m} }
func (m *MemStore) ParticipantStore() model.ParticipantStore { return memParticipants{m} }

// PutSession stores s as is.
func (m *MemStore) PutSession(s model.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
}

// PutRecord stores r as is.
func (m *MemStore) PutRecord(r model.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID] = r
}

// PutParticipant stores p and enrolls it in the given courses.
func (m *MemStore) PutParticipant(p model.Participant, courses ...uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.participants[p.ID] = p
	for _, c := range courses {
		m.enrollments[enrollmentKey{courseID: c, participantID: p.ID}] = true
	}
}

// PutDevice stores a device link as is.
func (m *MemStore) PutDevice(l model.DeviceLink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[deviceKey{l.ParticipantID, l.DeviceToken}] = l
}

func (m *MemStore) Session(id uuid.UUID) model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

func (m *MemStore) Record(id uuid.UUID) model.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id]
}

func (m *MemStore) Records() []model.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	sortRecords(out)
	return out
}

func (m *MemStore) Anomalies() []model.Anomaly {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.anomalies)
}

// SelectionRuns returns how many times a selection function was invoked.
func (m *MemStore) SelectionRuns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectionRuns
}

// CASWins returns how many reverify compare-and-swaps succeeded.
func (m *MemStore) CASWins() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.casWins
}

func sortRecords(rs []model.Record) {
	slices.SortFunc(rs, func(a, b model.Record) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

type memSessions struct{ m *MemStore }

func (s memSessions) Create(_ context.Context, session model.Session) (model.Session, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.sessions[session.ID]; ok {
		return model.Session{}, model.ErrConflict
	}
	s.m.sessions[session.ID] = session
	return session, nil
}

func (s memSessions) GetByID(_ context.Context, id uuid.UUID) (model.Session, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	session, ok := s.m.sessions[id]
	if !ok {
		return model.Session{}, model.ErrNotFound
	}
	return session, nil
}

func (s memSessions) ListOpen(_ context.Context) ([]model.Session, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.Session
	for _, session := range s.m.sessions {
		if session.Status == model.SessionStatusActive {
			out = append(out, session)
		}
	}
	return out, nil
}

func (s memSessions) CompareAndSetPhase(_ context.Context, id uuid.UUID, from, to model.Phase, at time.Time) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	session, ok := s.m.sessions[id]
	if !ok {
		return false, model.ErrNotFound
	}
	if session.Phase != from || to.Rank() <= from.Rank() {
		return false, nil
	}
	session.Phase = to
	if to == model.PhaseClosed {
		session.Status = model.SessionStatusClosed
		if session.ClosedAt == nil {
			session.ClosedAt = &at
		}
	}
	session.UpdatedAt = at
	s.m.sessions[id] = session
	return true, nil
}

func (s memSessions) Close(_ context.Context, id uuid.UUID, at time.Time) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	session, ok := s.m.sessions[id]
	if !ok {
		return false, model.ErrNotFound
	}
	if session.Status != model.SessionStatusActive {
		return false, nil
	}
	session.Status = model.SessionStatusClosed
	session.ClosedAt = &at
	session.UpdatedAt = at
	s.m.sessions[id] = session
	return true, nil
}

func (s memSessions) ApplySelection(_ context.Context, id uuid.UUID, at time.Time, fn model.SelectionFunc) (model.SelectionOutcome, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	session, ok := s.m.sessions[id]
	if !ok {
		return model.SelectionOutcome{}, model.ErrNotFound
	}
	if session.ReverifySelectionDone {
		return model.SelectionOutcome{AlreadyDone: true}, nil
	}

	var eligible []model.Record
	for _, r := range s.m.records {
		if r.SessionID == id && r.Reverify.Status == model.ReverifyNotRequired {
			eligible = append(eligible, r)
		}
	}
	sortRecords(eligible)

	s.m.selectionRuns++
	assignments := fn(session, eligible)

	for _, a := range assignments {
		r := s.m.records[a.RecordID]
		requested, deadline := a.RequestedAt, a.DeadlineAt
		r.Reverify = model.ReverifyState{
			Required:     true,
			Status:       model.ReverifyPending,
			AttemptCount: 1,
			RetryCount:   0,
			RequestedAt:  &requested,
			DeadlineAt:   &deadline,
		}
		r.Flagged = false
		r.UpdatedAt = at
		s.m.records[r.ID] = r
	}

	session.ReverifySelectionDone = true
	session.ReverifySelectedCount = len(assignments)
	session.ReverifySelectionRunAt = &at
	session.UpdatedAt = at
	s.m.sessions[id] = session

	return model.SelectionOutcome{Assignments: assignments}, nil
}

type memRecords struct{ m *MemStore }

func (s memRecords) CreateWithAnomalies(_ context.Context, record model.Record, anomalies []model.Anomaly) (model.Record, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, r := range s.m.records {
		if r.SessionID == record.SessionID && r.ParticipantID == record.ParticipantID {
			return model.Record{}, model.ErrConflict
		}
	}
	s.m.records[record.ID] = record
	s.m.anomalies = append(s.m.anomalies, anomalies...)
	return record, nil
}

func (s memRecords) GetBySessionAndParticipant(_ context.Context, sessionID, participantID uuid.UUID) (model.Record, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, r := range s.m.records {
		if r.SessionID == sessionID && r.ParticipantID == participantID {
			return r, nil
		}
	}
	return model.Record{}, model.ErrNotFound
}

func (s memRecords) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.Record, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.Record
	for _, r := range s.m.records {
		if r.SessionID == sessionID {
			out = append(out, r)
		}
	}
	sortRecords(out)
	return out, nil
}

func (s memRecords) ListPending(_ context.Context, sessionID uuid.UUID, dueBefore *time.Time) ([]model.Record, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.Record
	for _, r := range s.m.records {
		if r.SessionID != sessionID || !r.Reverify.Status.IsPending() {
			continue
		}
		if dueBefore != nil && (r.Reverify.DeadlineAt == nil || r.Reverify.DeadlineAt.After(*dueBefore)) {
			continue
		}
		out = append(out, r)
	}
	sortRecords(out)
	return out, nil
}

func (s memRecords) LatestReservedAt(_ context.Context, sessionID uuid.UUID) (*time.Time, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var latest *time.Time
	for _, r := range s.m.records {
		if r.SessionID != sessionID || r.Reverify.RequestedAt == nil {
			continue
		}
		if latest == nil || r.Reverify.RequestedAt.After(*latest) {
			latest = r.Reverify.RequestedAt
		}
	}
	return latest, nil
}

func (s memRecords) CompareAndSwapReverify(_ context.Context, id uuid.UUID, guard model.ReverifyGuard, update model.ReverifyUpdate) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	r, ok := s.m.records[id]
	if !ok {
		return false, model.ErrNotFound
	}
	if r.Reverify.Status != guard.Status || !sameTime(r.Reverify.DeadlineAt, guard.DeadlineAt) {
		return false, nil
	}
	r.Reverify.Status = update.Status
	r.Reverify.AttemptCount = update.AttemptCount
	r.Reverify.RetryCount = update.RetryCount
	r.Reverify.RequestedAt = update.RequestedAt
	r.Reverify.DeadlineAt = update.DeadlineAt
	r.Reverify.CompletedAt = update.CompletedAt
	r.Reverify.Confidence = update.Confidence
	r.Flagged = update.Flagged
	s.m.records[id] = r
	s.m.anomalies = append(s.m.anomalies, update.Anomalies...)
	s.m.casWins++
	return true, nil
}

func (s memRecords) RecentLocations(_ context.Context, participantID uuid.UUID, limit int) ([]model.Location, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.Location
	for _, r := range s.m.records {
		if r.ParticipantID == participantID {
			out = append(out, model.Location{Latitude: r.Latitude, Longitude: r.Longitude, CapturedAt: r.CapturedAt})
		}
	}
	slices.SortFunc(out, func(a, b model.Location) int { return b.CapturedAt.Compare(a.CapturedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memAnomalies struct{ m *MemStore }

func (s memAnomalies) Create(_ context.Context, anomaly model.Anomaly) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.anomalies = append(s.m.anomalies, anomaly)
	return nil
}

func (s memAnomalies) ListBySession(_ context.Context, sessionID uuid.UUID) ([]model.Anomaly, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.Anomaly
	for _, a := range s.m.anomalies {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memDevices struct{ m *MemStore }

func (s memDevices) Touch(_ context.Context, participantID uuid.UUID, deviceToken string, at time.Time) (model.DeviceLink, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for k, l := range s.m.devices {
		if k.token == deviceToken && k.participantID != participantID && l.Trusted() {
			return model.DeviceLink{}, model.ErrDeviceConflict
		}
	}
	key := deviceKey{participantID, deviceToken}
	prior := s.m.devices[key]
	next := prior
	if next.CreatedAt.IsZero() {
		next = model.DeviceLink{ParticipantID: participantID, DeviceToken: deviceToken, CreatedAt: at}
	}
	next.LastUsedAt = at
	s.m.devices[key] = next
	return prior, nil
}

func (s memDevices) ListByParticipant(_ context.Context, participantID uuid.UUID) ([]model.DeviceLink, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	var out []model.DeviceLink
	for k, l := range s.m.devices {
		if k.participantID == participantID {
			out = append(out, l)
		}
	}
	return out, nil
}

type memParticipants struct{ m *MemStore }

func (s memParticipants) GetByID(_ context.Context, id uuid.UUID) (model.Participant, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	p, ok := s.m.participants[id]
	if !ok {
		return model.Participant{}, model.ErrNotFound
	}
	return p, nil
}

func (s memParticipants) IsEnrolled(_ context.Context, courseID, participantID uuid.UUID) (bool, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	return s.m.enrollments[enrollmentKey{courseID, participantID}], nil
}
