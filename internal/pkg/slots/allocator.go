package slots

import (
	"fmt"
	"time"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
)

// DefaultStepMin is the candidate-start granularity in minutes.
const DefaultStepMin = 15

// Slot is a derived, ephemeral candidate start time with remaining capacity
// for one date. Slots are computed fresh per query and never persisted.
type Slot struct {
	Key               string    `json:"key"`
	Label             string    `json:"label"`
	StartsAt          time.Time `json:"starts_at"`
	RemainingCapacity int       `json:"remaining_capacity"`
	TotalCapacity     int       `json:"total_capacity"`
}

// Available reports whether at least one capacity unit is free.
func (s Slot) Available() bool {
	return s.RemainingCapacity > 0
}

// Request describes one availability computation.
type Request struct {
	Date            time.Time // any instant on the target date, in the company's zone
	OpensAtMin      int       // operating window start, minutes since midnight
	ClosesAtMin     int       // operating window end, exclusive
	StepMin         int       // candidate granularity; DefaultStepMin when 0
	DurationMin     int
	BufferBeforeMin int
	BufferAfterMin  int
	Capacity        int       // total service capacity
	Now             time.Time // candidates before Now are excluded
}

// ComputeDaySlots generates the chronological slot list for one company day.
// Each candidate occupies the half-open interval
// [start - bufferBefore, start + duration + bufferAfter); a candidate's
// remaining capacity is the service capacity minus the units consumed by
// overlapping existing bookings, clamped to zero. A closed day
// (opens >= closes) yields an empty list, not an error.
func ComputeDaySlots(req Request, existing []models.Booking) []Slot {
	if req.OpensAtMin >= req.ClosesAtMin || req.DurationMin <= 0 || req.Capacity <= 0 {
		return nil
	}
	step := req.StepMin
	if step <= 0 {
		step = DefaultStepMin
	}

	y, m, d := req.Date.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, req.Date.Location())

	var out []Slot
	for min := req.OpensAtMin; min+req.DurationMin <= req.ClosesAtMin; min += step {
		start := midnight.Add(time.Duration(min) * time.Minute)
		if !req.Now.IsZero() && start.Before(req.Now) {
			continue
		}

		from := start.Add(-time.Duration(req.BufferBeforeMin) * time.Minute)
		to := start.Add(time.Duration(req.DurationMin+req.BufferAfterMin) * time.Minute)

		used := consumedCapacity(from, to, existing)
		remaining := req.Capacity - used
		if remaining < 0 {
			remaining = 0
		}

		out = append(out, Slot{
			Key:               SlotKey(start),
			Label:             start.Format("15:04"),
			StartsAt:          start,
			RemainingCapacity: remaining,
			TotalCapacity:     req.Capacity,
		})
	}
	return out
}

// SlotKey derives the stable identifier for a candidate start time.
func SlotKey(start time.Time) string {
	return fmt.Sprintf("%s-%02d%02d", start.Format("20060102"), start.Hour(), start.Minute())
}

// consumedCapacity sums the capacity units of bookings whose buffered
// interval overlaps [from, to). Both intervals are half-open, so a booking
// ending exactly at `from` does not overlap.
func consumedCapacity(from, to time.Time, existing []models.Booking) int {
	used := 0
	for i := range existing {
		b := &existing[i]
		if !b.CountsAgainstCapacity() {
			continue
		}
		bFrom, bTo := b.OccupiedInterval()
		if bFrom.Before(to) && from.Before(bTo) {
			units := b.Capacity
			if units <= 0 {
				units = 1
			}
			used += units
		}
	}
	return used
}
