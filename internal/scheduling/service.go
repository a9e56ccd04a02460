package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicore/scheduling/internal/redisclient"
)

var (
	ErrSlotContended     = errors.New("slot is currently being booked, please retry")
	ErrNotScheduled      = errors.New("appointment is not in scheduled state")
	ErrTooLateToCancel   = errors.New("too late to cancel")
	ErrFutureAppointment = errors.New("cannot complete a future appointment")
)

// Invoicer is the billing surface the completion path needs: inline
// invoice creation when the queue is unreachable, and an existence
// check so a retried completion can re-enqueue a lost job. Implemented
// by the billing service; creation must be idempotent per appointment.
type Invoicer interface {
	CreateForAppointment(ctx context.Context, appointmentID uuid.UUID) error
	HasInvoiceForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error)
}

type Service struct {
	store        Store
	locker       redisclient.SlotLocker
	queue        redisclient.BillingQueue
	invoices     Invoicer
	cancelWindow time.Duration
	log          zerolog.Logger

	now func() time.Time
}

func NewService(store Store, locker redisclient.SlotLocker, queue redisclient.BillingQueue, invoices Invoicer, cancelWindow time.Duration, log zerolog.Logger) *Service {
	return &Service{
		store:        store,
		locker:       locker,
		queue:        queue,
		invoices:     invoices,
		cancelWindow: cancelWindow,
		log:          log,
		now:          time.Now,
	}
}

// Book reserves a slot for a patient. A Redis lock keyed by
// (doctor, date, slot) rejects contenders fast; the row lock taken
// inside the transaction is the authoritative check, and the partial
// unique indexes on appointments are the last backstop.
func (s *Service) Book(ctx context.Context, patientID, doctorID, slotID uuid.UUID, date time.Time) (*Appointment, error) {
	if dateOnly(date).Before(dateOnly(s.now())) {
		return nil, ErrPastDate
	}

	if _, err := s.store.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if _, err := s.store.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	var created *Appointment

	err := s.locker.WithSlotLock(ctx, doctorID, date, slotID, func(lockCtx context.Context) error {
		return s.store.InTx(lockCtx, func(txCtx context.Context, tx TxStore) error {
			slot, err := tx.GetSlotForUpdate(txCtx, slotID)
			if err != nil {
				return err
			}
			if slot.DoctorID != doctorID {
				return ErrSlotNotFound
			}
			if !slot.Date.Equal(dateOnly(date)) {
				return ErrSlotNotFound
			}
			if slot.Occupied {
				return ErrSlotAlreadyBooked
			}

			// The occupied flag can lag a prior commit or
			// cancellation; the appointment table is the truth.
			taken, err := tx.ScheduledAppointmentExistsForSlot(txCtx, slotID)
			if err != nil {
				return fmt.Errorf("check slot appointments: %w", err)
			}
			if taken {
				return ErrSlotAlreadyBooked
			}

			dup, err := tx.PatientHasScheduledWithDoctor(txCtx, patientID, doctorID)
			if err != nil {
				return fmt.Errorf("check patient appointments: %w", err)
			}
			if dup {
				return ErrDuplicatePatientBooking
			}

			created, err = tx.CreateAppointment(txCtx, patientID, doctorID, slotID, dateOnly(date))
			if err != nil {
				return err
			}

			return tx.SetSlotOccupied(txCtx, slotID, true)
		})
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotContended
		}
		return nil, translateUnique(err)
	}

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("slot_id", slotID.String()).
		Str("patient_id", patientID.String()).
		Msg("appointment booked")

	return created, nil
}

// Cancel releases a scheduled appointment owned by patientID. The
// ownership check uses not-found semantics so callers cannot probe for
// other patients' appointments. Status change and slot release commit
// together.
func (s *Service) Cancel(ctx context.Context, appointmentID, patientID uuid.UUID) error {
	err := s.store.InTx(ctx, func(txCtx context.Context, tx TxStore) error {
		appt, err := tx.GetPatientAppointmentForUpdate(txCtx, appointmentID, patientID)
		if err != nil {
			return err
		}
		if appt.Status != StatusScheduled {
			return ErrNotScheduled
		}

		slot, err := tx.GetSlotForUpdate(txCtx, appt.SlotID)
		if err != nil {
			return err
		}
		if slot.StartTime.Sub(s.now()) < s.cancelWindow {
			return ErrTooLateToCancel
		}

		if _, err := tx.UpdateAppointmentStatus(txCtx, appt.ID, StatusScheduled, StatusCancelled); err != nil {
			return err
		}
		return tx.SetSlotOccupied(txCtx, appt.SlotID, false)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("appointment_id", appointmentID.String()).
		Str("patient_id", patientID.String()).
		Msg("appointment cancelled")

	return nil
}

// Complete marks a visit as done and queues invoice creation. The
// billing job is pushed after commit; if the push fails the invoice is
// created inline. Calling Complete again on a completed appointment
// succeeds and, if no invoice exists yet, enqueues billing again, so a
// job lost between commit and push is recovered by retrying. The worker
// absorbs the resulting duplicates.
func (s *Service) Complete(ctx context.Context, appointmentID uuid.UUID) (*Appointment, error) {
	var (
		appt    *Appointment
		already bool
	)

	err := s.store.InTx(ctx, func(txCtx context.Context, tx TxStore) error {
		var err error
		appt, err = tx.GetAppointmentForUpdate(txCtx, appointmentID)
		if err != nil {
			return err
		}

		if appt.Status == StatusCompleted {
			already = true
			return nil
		}
		if appt.Status != StatusScheduled {
			return ErrNotScheduled
		}
		if dateOnly(appt.Date).After(dateOnly(s.now())) {
			return ErrFutureAppointment
		}

		appt, err = tx.UpdateAppointmentStatus(txCtx, appt.ID, StatusScheduled, StatusCompleted)
		return err
	})
	if err != nil {
		return nil, err
	}

	if already {
		billed, err := s.invoices.HasInvoiceForAppointment(ctx, appt.ID)
		if err != nil {
			s.log.Warn().Err(err).
				Str("appointment_id", appt.ID.String()).
				Msg("invoice lookup failed, re-enqueueing billing")
		}
		if billed {
			return appt, nil
		}
	}

	s.enqueueBilling(ctx, appt.ID)
	return appt, nil
}

func (s *Service) enqueueBilling(ctx context.Context, appointmentID uuid.UUID) {
	job := redisclient.BillingJob{AppointmentID: appointmentID, EnqueuedAt: s.now().UTC()}
	if err := s.queue.Push(ctx, job); err != nil {
		s.log.Error().Err(err).
			Str("appointment_id", appointmentID.String()).
			Msg("billing job push failed, creating invoice inline")

		if invErr := s.invoices.CreateForAppointment(ctx, appointmentID); invErr != nil {
			s.log.Error().Err(invErr).
				Str("appointment_id", appointmentID.String()).
				Msg("inline invoice fallback failed")
		}
	}
}

// AvailableSlots generates the day's slots on first access and returns
// the unoccupied ones ordered by start time.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	if dateOnly(date).Before(dateOnly(s.now())) {
		return nil, ErrPastDate
	}

	if _, err := s.store.GetDoctorByID(ctx, doctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	err := s.store.InTx(ctx, func(txCtx context.Context, tx TxStore) error {
		return ensureSlots(txCtx, tx, doctorID, date)
	})
	if err != nil {
		return nil, fmt.Errorf("ensure slots: %w", err)
	}

	return s.store.ListAvailableSlots(ctx, doctorID, dateOnly(date))
}

// PatientAppointments lists the caller's appointments, optionally
// filtered by status, newest date first.
func (s *Service) PatientAppointments(ctx context.Context, patientID uuid.UUID, status AppointmentStatus) ([]AppointmentSummary, error) {
	if status != "" && !ValidStatus(status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, status)
	}
	return s.store.ListPatientAppointments(ctx, patientID, status)
}

// DoctorsByDepartment is a read-only convenience for slot discovery.
func (s *Service) DoctorsByDepartment(ctx context.Context, departmentID uuid.UUID) ([]Doctor, error) {
	return s.store.ListDoctorsByDepartment(ctx, departmentID)
}

var ErrInvalidFilter = errors.New("invalid status filter")
