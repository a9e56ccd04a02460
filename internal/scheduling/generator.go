package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrPastDate covers every operation that refuses to look backwards.
var ErrPastDate = errors.New("date is in the past")

// buildSlots partitions [StartMinute, EndMinute) into contiguous windows
// of SlotMinutes. A trailing window that would cross EndMinute is
// dropped rather than shortened.
func buildSlots(ws *WeeklySchedule, date time.Time) []Slot {
	day := dateOnly(date)
	start := day.Add(time.Duration(ws.StartMinute) * time.Minute)
	end := day.Add(time.Duration(ws.EndMinute) * time.Minute)
	window := time.Duration(ws.SlotMinutes) * time.Minute

	if window <= 0 {
		return nil
	}

	var slots []Slot
	for !start.Add(window).After(end) {
		slots = append(slots, Slot{
			ID:        uuid.New(),
			DoctorID:  ws.DoctorID,
			Date:      day,
			StartTime: start,
			EndTime:   start.Add(window),
		})
		start = start.Add(window)
	}

	return slots
}

// ensureSlots generates slot rows for (doctor, date) if they do not
// exist yet. It must run inside the caller's transaction: the FOR UPDATE
// read on the schedule row serializes concurrent generators, and the
// existence re-check plus the unique index on (doctor_id, date,
// start_time) keep repeated calls from duplicating rows.
func ensureSlots(ctx context.Context, tx TxStore, doctorID uuid.UUID, date time.Time) error {
	ws, err := tx.GetScheduleForUpdate(ctx, doctorID, mondayIndexedWeekday(date.Weekday()))
	if err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			// Doctor has no availability that day.
			return nil
		}
		return fmt.Errorf("load weekly schedule: %w", err)
	}

	exists, err := tx.SlotsExist(ctx, doctorID, dateOnly(date))
	if err != nil {
		return fmt.Errorf("check existing slots: %w", err)
	}
	if exists {
		return nil
	}

	slots := buildSlots(ws, date)
	if len(slots) == 0 {
		return nil
	}

	if err := tx.InsertSlots(ctx, slots); err != nil {
		return fmt.Errorf("insert slots: %w", err)
	}
	return nil
}
