package reverify

import (
	"time"

	"github.com/dtroode/rollcall-server/internal/model"
	"github.com/dtroode/rollcall-server/internal/proof"
)

// Slot is the window of one token sequence during which a participant must reverify.
type Slot struct {
	Sequence    int64
	RequestedAt time.Time
	DeadlineAt  time.Time
}

// SlotRange is an inclusive range of usable sequences.
type SlotRange struct {
	First    int64
	Last     int64
	Rotation time.Duration
	Grace    time.Duration
}

// Count returns the number of slots in the range.
func (r SlotRange) Count() int {
	if r.Last < r.First {
		return 0
	}
	return int(r.Last-r.First) + 1
}

// Slot returns the slot of sequence seq.
func (r SlotRange) Slot(seq int64) Slot {
	start, _ := proof.Window(seq, r.Rotation)
	return Slot{
		Sequence:    seq,
		RequestedAt: start,
		DeadlineAt:  start.Add(r.Rotation + r.Grace),
	}
}

// PlanSlots returns the sequences whose slot opens no earlier than now+MinLead,
// closes no later than reverifyEndsAt-SafetyBuffer and, when after is set,
// opens strictly after it.
func PlanSlots(now, reverifyEndsAt time.Time, rotation, grace time.Duration, c Capacity, after *time.Time) (SlotRange, bool) {
	rotMs := rotation.Milliseconds()
	if rotMs <= 0 {
		return SlotRange{}, false
	}

	earliest := now.Add(c.MinLead).UnixMilli()
	first := proof.Sequence(earliest, rotMs)
	if first*rotMs < earliest {
		first++
	}
	if after != nil {
		if next := proof.Sequence(after.UnixMilli(), rotMs) + 1; next > first {
			first = next
		}
	}

	limit := reverifyEndsAt.Add(-c.SafetyBuffer).UnixMilli() - rotMs - grace.Milliseconds()
	last := proof.Sequence(limit, rotMs)

	r := SlotRange{First: first, Last: last, Rotation: rotation, Grace: grace}
	return r, r.Count() > 0
}

// Assign spreads records over the slot range in sequential batches of ceil(n/slots).
func Assign(records []model.Record, r SlotRange) []model.ReverifyAssignment {
	n, slots := len(records), r.Count()
	if n == 0 || slots == 0 {
		return nil
	}

	perSlot := (n + slots - 1) / slots
	batches := (n + perSlot - 1) / perSlot

	out := make([]model.ReverifyAssignment, 0, n)
	for i, rec := range records {
		batch := i / perSlot
		slot := r.Slot(r.First + int64(batch))
		out = append(out, model.ReverifyAssignment{
			RecordID:      rec.ID,
			ParticipantID: rec.ParticipantID,
			Sequence:      slot.Sequence,
			RequestedAt:   slot.RequestedAt,
			DeadlineAt:    slot.DeadlineAt,
			BatchIndex:    batch,
			BatchCount:    batches,
		})
	}
	return out
}
