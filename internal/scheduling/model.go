package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// ValidStatus reports whether s is a known appointment status.
func ValidStatus(s AppointmentStatus) bool {
	switch s {
	case StatusScheduled, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

type Department struct {
	ID          uuid.UUID
	Name        string
	Description *string
}

type Doctor struct {
	ID             uuid.UUID
	Name           string
	Specialization string
	DepartmentID   uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WeeklySchedule is a doctor's recurring availability template for one
// weekday. DayOfWeek is Monday-indexed (0=Monday .. 6=Sunday). Times are
// minutes from midnight so the template stays timezone-free.
type WeeklySchedule struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	DayOfWeek   int
	StartMinute int
	EndMinute   int
	SlotMinutes int
}

// Slot is one bookable window. Date is the calendar day at midnight UTC;
// StartTime/EndTime are the full timestamps of the window.
type Slot struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	Date      time.Time
	StartTime time.Time
	EndTime   time.Time
	Occupied  bool
	CreatedAt time.Time
}

type Appointment struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
	SlotID    uuid.UUID
	Date      time.Time
	Status    AppointmentStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppointmentSummary is the joined row returned by patient listings.
type AppointmentSummary struct {
	AppointmentID uuid.UUID
	DoctorName    string
	Date          time.Time
	SlotStart     *time.Time
	Status        AppointmentStatus
}

// mondayIndexedWeekday maps Go's Sunday-indexed weekday onto the
// schedule table's Monday-indexed convention.
func mondayIndexedWeekday(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// dateOnly truncates t to midnight UTC.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
