package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrDepartmentNotFound  = errors.New("department not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrScheduleNotFound    = errors.New("no weekly schedule for this day")

	// ErrSlotAlreadyBooked also covers the unique-index backstop: a
	// constraint violation at commit surfaces as this, never as an
	// internal error.
	ErrSlotAlreadyBooked       = errors.New("slot already booked")
	ErrDuplicatePatientBooking = errors.New("patient already has a scheduled appointment with this doctor")
)

// Store contains all DB interactions needed by the booking service.
// Reads that feed a mutation must happen through InTx so they hold row
// locks until commit.
type Store interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	ListDoctorsByDepartment(ctx context.Context, departmentID uuid.UUID) ([]Doctor, error)

	ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error)
	ListPatientAppointments(ctx context.Context, patientID uuid.UUID, status AppointmentStatus) ([]AppointmentSummary, error)

	InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
}

// TxStore is the transaction-scoped view of the store. ForUpdate reads
// take row-level exclusive locks held until the transaction ends.
type TxStore interface {
	// Slot generation
	GetScheduleForUpdate(ctx context.Context, doctorID uuid.UUID, dayOfWeek int) (*WeeklySchedule, error)
	SlotsExist(ctx context.Context, doctorID uuid.UUID, date time.Time) (bool, error)
	InsertSlots(ctx context.Context, slots []Slot) error

	// Booking
	GetSlotForUpdate(ctx context.Context, slotID uuid.UUID) (*Slot, error)
	SetSlotOccupied(ctx context.Context, slotID uuid.UUID, occupied bool) error
	ScheduledAppointmentExistsForSlot(ctx context.Context, slotID uuid.UUID) (bool, error)
	PatientHasScheduledWithDoctor(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error)
	CreateAppointment(ctx context.Context, patientID, doctorID, slotID uuid.UUID, date time.Time) (*Appointment, error)

	// Lifecycle
	GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetPatientAppointmentForUpdate(ctx context.Context, id, patientID uuid.UUID) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
}
