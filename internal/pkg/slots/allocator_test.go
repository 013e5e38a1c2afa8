package slots

import (
	"testing"
	"time"

	"github.com/opslagbijjou-creator/bookbeauty-api/app/models"
)

var testDay = time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)

func makeRequest() Request {
	return Request{
		Date:        testDay,
		OpensAtMin:  9 * 60,
		ClosesAtMin: 17 * 60,
		StepMin:     30,
		DurationMin: 30,
		Capacity:    1,
	}
}

func booking(start time.Time, durationMin, bufBefore, bufAfter, capacity int) models.Booking {
	return models.Booking{
		StartsAt:        start,
		DurationMin:     durationMin,
		BufferBeforeMin: bufBefore,
		BufferAfterMin:  bufAfter,
		Capacity:        capacity,
		Status:          models.BookingStatusConfirmed,
	}
}

func slotByKey(t *testing.T, list []Slot, key string) Slot {
	t.Helper()
	for _, s := range list {
		if s.Key == key {
			return s
		}
	}
	t.Fatalf("slot %q not found", key)
	return Slot{}
}

func TestComputeDaySlots_ClosedDayIsEmpty(t *testing.T) {
	req := makeRequest()
	req.OpensAtMin = 0
	req.ClosesAtMin = 0

	if got := ComputeDaySlots(req, nil); len(got) != 0 {
		t.Fatalf("expected empty slot list for closed day, got %d slots", len(got))
	}
}

func TestComputeDaySlots_ChronologicalAndKeyed(t *testing.T) {
	got := ComputeDaySlots(makeRequest(), nil)
	if len(got) == 0 {
		t.Fatalf("expected slots for an open day")
	}
	if got[0].Key != "20260914-0900" {
		t.Fatalf("first slot key = %q, want 20260914-0900", got[0].Key)
	}
	if got[0].Label != "09:00" {
		t.Fatalf("first slot label = %q, want 09:00", got[0].Label)
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].StartsAt.Before(got[i].StartsAt) {
			t.Fatalf("slots not chronological at index %d", i)
		}
	}
	// Last candidate must still fit before closing.
	last := got[len(got)-1]
	if last.StartsAt.Add(30*time.Minute).After(testDay.Add(17 * time.Hour)) {
		t.Fatalf("last slot %v does not fit in operating window", last.StartsAt)
	}
}

func TestComputeDaySlots_FullyBookedSlotHasZeroRemaining(t *testing.T) {
	existing := []models.Booking{
		booking(testDay.Add(10*time.Hour), 30, 0, 0, 1),
	}
	got := ComputeDaySlots(makeRequest(), existing)

	s := slotByKey(t, got, "20260914-1000")
	if s.RemainingCapacity != 0 {
		t.Fatalf("remaining capacity = %d, want 0", s.RemainingCapacity)
	}
	if s.Available() {
		t.Fatalf("fully booked slot must not be available")
	}
}

func TestComputeDaySlots_CapacityThreeWithTwoOverlaps(t *testing.T) {
	req := makeRequest()
	req.Capacity = 3
	existing := []models.Booking{
		booking(testDay.Add(11*time.Hour), 30, 0, 0, 1),
		booking(testDay.Add(11*time.Hour), 30, 0, 0, 1),
	}
	got := ComputeDaySlots(req, existing)

	s := slotByKey(t, got, "20260914-1100")
	if s.RemainingCapacity != 1 {
		t.Fatalf("remaining capacity = %d, want 1", s.RemainingCapacity)
	}
	if s.TotalCapacity != 3 {
		t.Fatalf("total capacity = %d, want 3", s.TotalCapacity)
	}
}

func TestComputeDaySlots_HalfOpenBoundaryDoesNotOverlap(t *testing.T) {
	// Existing booking with after-buffer occupies [10:00, 11:00); a candidate
	// at 11:00 starts exactly at the boundary and must stay available.
	existing := []models.Booking{
		booking(testDay.Add(10*time.Hour), 45, 0, 15, 1),
	}
	got := ComputeDaySlots(makeRequest(), existing)

	if s := slotByKey(t, got, "20260914-1030"); s.RemainingCapacity != 0 {
		t.Fatalf("10:30 inside buffered interval should be taken, remaining = %d", s.RemainingCapacity)
	}
	if s := slotByKey(t, got, "20260914-1100"); s.RemainingCapacity != 1 {
		t.Fatalf("11:00 at exact boundary should be free, remaining = %d", s.RemainingCapacity)
	}
}

func TestComputeDaySlots_BufferBeforeBlocksEarlierCandidates(t *testing.T) {
	// Candidate interval extends bufferBefore to the left: a booking at 09:30
	// blocks a 10:00 candidate whose bufferBefore reaches into it.
	req := makeRequest()
	req.BufferBeforeMin = 15
	existing := []models.Booking{
		booking(testDay.Add(9*time.Hour+30*time.Minute), 30, 0, 0, 1),
	}
	got := ComputeDaySlots(req, existing)

	if s := slotByKey(t, got, "20260914-1000"); s.RemainingCapacity != 0 {
		t.Fatalf("10:00 with buffer-before overlap should be taken, remaining = %d", s.RemainingCapacity)
	}
}

func TestComputeDaySlots_PastCandidatesExcluded(t *testing.T) {
	req := makeRequest()
	req.Now = testDay.Add(12 * time.Hour)

	got := ComputeDaySlots(req, nil)
	for _, s := range got {
		if s.StartsAt.Before(req.Now) {
			t.Fatalf("slot %v lies in the past", s.StartsAt)
		}
	}
	if len(got) == 0 {
		t.Fatalf("expected remaining afternoon slots")
	}
}

func TestComputeDaySlots_CancelledBookingsReleaseCapacity(t *testing.T) {
	b := booking(testDay.Add(13*time.Hour), 30, 0, 0, 1)
	b.Status = models.BookingStatusCancelled
	got := ComputeDaySlots(makeRequest(), []models.Booking{b})

	if s := slotByKey(t, got, "20260914-1300"); s.RemainingCapacity != 1 {
		t.Fatalf("cancelled booking must not consume capacity, remaining = %d", s.RemainingCapacity)
	}
}
