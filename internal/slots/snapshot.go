package slots

import (
	"iter"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketcart-backend/pkg/db/models"
	"github.com/angelmondragon/marketcart-backend/pkg/enums"
	"github.com/angelmondragon/marketcart-backend/pkg/types"
)

type heldWindow struct {
	window
	customerID uuid.UUID
}

// snapshot is an immutable read of everything that decides availability for a
// seller over a date range.
type snapshot struct {
	weekly   map[int]models.WeeklySchedule
	daySlots map[string][]int
	blocked  map[string][]window
	booked   map[string][]window
	locked   map[string][]heldWindow
	dates    []string
	today    string
	nowMin   int
}

func newSnapshot(dates []string) *snapshot {
	return &snapshot{
		weekly:   map[int]models.WeeklySchedule{},
		daySlots: map[string][]int{},
		blocked:  map[string][]window{},
		booked:   map[string][]window{},
		locked:   map[string][]heldWindow{},
		dates:    dates,
		nowMin:   -1,
	}
}

func (s *snapshot) addBlock(block models.AvailabilityBlock) {
	w := window{start: 0, end: minutesPerDay}
	if !block.AllDay() {
		w = window{start: *block.StartMinute, end: *block.EndMinute}
	}
	if block.Kind == enums.BlockKindBooking {
		s.booked[block.BlockDate] = append(s.booked[block.BlockDate], w)
		return
	}
	s.blocked[block.BlockDate] = append(s.blocked[block.BlockDate], w)
}

func (s *snapshot) addLock(lock models.SlotLock) {
	s.locked[lock.SlotDate] = append(s.locked[lock.SlotDate], heldWindow{
		window:     window{start: lock.SlotMinute, end: lock.SlotMinute + lock.DurationMinutes},
		customerID: lock.CustomerID,
	})
}

func (s *snapshot) setNow(now time.Time, loc *time.Location) {
	if loc == nil {
		return
	}
	local := now.In(loc)
	s.today = local.Format(types.DateLayout)
	s.nowMin = local.Hour()*60 + local.Minute()
}

// candidates lists the start minutes offered on date before any filtering.
func (s *snapshot) candidates(date string, duration, interval int) []int {
	if explicit, ok := s.daySlots[date]; ok && len(explicit) > 0 {
		out := make([]int, 0, len(explicit))
		for _, minute := range explicit {
			if minute+duration <= minutesPerDay {
				out = append(out, minute)
			}
		}
		return out
	}
	day, err := types.ParseDate(date)
	if err != nil {
		return nil
	}
	row, ok := s.weekly[int(day.Weekday())]
	if !ok || !row.IsAvailable || row.StartMinute == nil || row.EndMinute == nil {
		return nil
	}
	var out []int
	for minute := *row.StartMinute; minute+duration <= *row.EndMinute; minute += interval {
		out = append(out, minute)
	}
	return out
}

// inWindow reports whether [minute, minute+duration) is offered on date.
func (s *snapshot) inWindow(date string, minute, duration int) bool {
	if minute < 0 || minute+duration > minutesPerDay {
		return false
	}
	if explicit, ok := s.daySlots[date]; ok && len(explicit) > 0 {
		idx := sort.SearchInts(explicit, minute)
		return idx < len(explicit) && explicit[idx] == minute
	}
	day, err := types.ParseDate(date)
	if err != nil {
		return false
	}
	row, ok := s.weekly[int(day.Weekday())]
	if !ok || !row.IsAvailable || row.StartMinute == nil || row.EndMinute == nil {
		return false
	}
	return minute >= *row.StartMinute && minute+duration <= *row.EndMinute
}

func (s *snapshot) started(date string, minute int) bool {
	if s.today == "" {
		return false
	}
	if date < s.today {
		return true
	}
	return date == s.today && minute <= s.nowMin
}

// classify applies blocks, bookings and live locks to one candidate. ignore skips
// locks held by that customer.
func (s *snapshot) classify(date string, minute, duration int, ignore uuid.UUID) Status {
	end := minute + duration
	for _, w := range s.blocked[date] {
		if w.overlaps(minute, end) {
			return StatusBlocked
		}
	}
	for _, w := range s.booked[date] {
		if w.overlaps(minute, end) {
			return StatusBooked
		}
	}
	for _, held := range s.locked[date] {
		if ignore != uuid.Nil && held.customerID == ignore {
			continue
		}
		if held.overlaps(minute, end) {
			return StatusLocked
		}
	}
	return StatusAvailable
}

// available yields every candidate that classifies as available. The sequence
// reads only the snapshot, so ranging over it again yields the same slots.
func (s *snapshot) available(duration, interval int) iter.Seq[Slot] {
	return func(yield func(Slot) bool) {
		for _, date := range s.dates {
			for _, minute := range s.candidates(date, duration, interval) {
				if s.started(date, minute) {
					continue
				}
				if s.classify(date, minute, duration, uuid.Nil) != StatusAvailable {
					continue
				}
				if !yield(Slot{Date: date, Start: types.ClockTime(minute), DurationMinutes: duration}) {
					return
				}
			}
		}
	}
}

func (s *snapshot) grid(duration, interval int) []GridCell {
	var cells []GridCell
	for _, date := range s.dates {
		for _, minute := range s.candidates(date, duration, interval) {
			cells = append(cells, GridCell{
				Slot:   Slot{Date: date, Start: types.ClockTime(minute), DurationMinutes: duration},
				Status: s.classify(date, minute, duration, uuid.Nil),
			})
		}
	}
	return cells
}

// expandDates returns every date from start to end inclusive.
func expandDates(start, end time.Time) []string {
	var dates []string
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		dates = append(dates, day.Format(types.DateLayout))
	}
	return dates
}
