package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicore/scheduling/internal/db"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	return db.RunInTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxStore{tx: tx})
	})
}

type pgTxStore struct {
	tx pgx.Tx
}

// Helpers

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Specialization,
		&d.DepartmentID,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}

	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var sl Slot

	err := row.Scan(
		&sl.ID,
		&sl.DoctorID,
		&sl.Date,
		&sl.StartTime,
		&sl.EndTime,
		&sl.Occupied,
		&sl.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &sl, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.SlotID,
		&a.Date,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

// translateUnique maps the partial unique indexes on appointments to the
// sentinel the caller expects; anything else passes through untouched.
func translateUnique(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "appointments_one_scheduled_per_slot":
			return ErrSlotAlreadyBooked
		case "appointments_one_scheduled_per_patient_doctor":
			return ErrDuplicatePatientBooking
		}
	}
	return err
}

// Pool-backed reads

func (s *PgStore) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, specialization, department_id, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (s *PgStore) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (s *PgStore) ListDoctorsByDepartment(ctx context.Context, departmentID uuid.UUID) ([]Doctor, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM departments WHERE id = $1)
	`, departmentID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrDepartmentNotFound
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, name, specialization, department_id, created_at, updated_at
		FROM doctors
		WHERE department_id = $1
		ORDER BY name
	`, departmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}

	return result, rows.Err()
}

func (s *PgStore) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, doctor_id, date, start_time, end_time, occupied, created_at
		FROM availability_slots
		WHERE doctor_id = $1
		  AND date = $2
		  AND occupied = false
		ORDER BY start_time
	`, doctorID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		sl, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *sl)
	}

	return result, rows.Err()
}

func (s *PgStore) ListPatientAppointments(ctx context.Context, patientID uuid.UUID, status AppointmentStatus) ([]AppointmentSummary, error) {
	query := `
		SELECT a.id, d.name, a.date, sl.start_time, a.status
		FROM appointments a
		JOIN doctors d ON d.id = a.doctor_id
		LEFT JOIN availability_slots sl ON sl.id = a.slot_id
		WHERE a.patient_id = $1
	`
	args := []any{patientID}

	if status != "" {
		query += ` AND a.status = $2`
		args = append(args, status)
	}
	query += ` ORDER BY a.date DESC, sl.start_time DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentSummary
	for rows.Next() {
		var sum AppointmentSummary
		if err := rows.Scan(&sum.AppointmentID, &sum.DoctorName, &sum.Date, &sum.SlotStart, &sum.Status); err != nil {
			return nil, err
		}
		result = append(result, sum)
	}

	return result, rows.Err()
}

// Transaction-scoped methods

func (t *pgTxStore) GetScheduleForUpdate(ctx context.Context, doctorID uuid.UUID, dayOfWeek int) (*WeeklySchedule, error) {
	var ws WeeklySchedule

	err := t.tx.QueryRow(ctx, `
		SELECT id, doctor_id, day_of_week, start_minute, end_minute, slot_minutes
		FROM doctor_schedules
		WHERE doctor_id = $1 AND day_of_week = $2
		FOR UPDATE
	`, doctorID, dayOfWeek).Scan(
		&ws.ID,
		&ws.DoctorID,
		&ws.DayOfWeek,
		&ws.StartMinute,
		&ws.EndMinute,
		&ws.SlotMinutes,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	return &ws, nil
}

func (t *pgTxStore) SlotsExist(ctx context.Context, doctorID uuid.UUID, date time.Time) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM availability_slots WHERE doctor_id = $1 AND date = $2
		)
	`, doctorID, date).Scan(&exists)
	return exists, err
}

func (t *pgTxStore) InsertSlots(ctx context.Context, slots []Slot) error {
	for _, sl := range slots {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO availability_slots (id, doctor_id, date, start_time, end_time, occupied, created_at)
			VALUES ($1, $2, $3, $4, $5, false, now())
			ON CONFLICT (doctor_id, date, start_time) DO NOTHING
		`, sl.ID, sl.DoctorID, sl.Date, sl.StartTime, sl.EndTime)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTxStore) GetSlotForUpdate(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, doctor_id, date, start_time, end_time, occupied, created_at
		FROM availability_slots
		WHERE id = $1
		FOR UPDATE
	`, slotID)
	return scanSlot(row)
}

func (t *pgTxStore) SetSlotOccupied(ctx context.Context, slotID uuid.UUID, occupied bool) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE availability_slots
		SET occupied = $2
		WHERE id = $1
	`, slotID, occupied)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (t *pgTxStore) ScheduledAppointmentExistsForSlot(ctx context.Context, slotID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments WHERE slot_id = $1 AND status = 'scheduled'
		)
	`, slotID).Scan(&exists)
	return exists, err
}

func (t *pgTxStore) PatientHasScheduledWithDoctor(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1 AND doctor_id = $2 AND status = 'scheduled'
		)
	`, patientID, doctorID).Scan(&exists)
	return exists, err
}

func (t *pgTxStore) CreateAppointment(ctx context.Context, patientID, doctorID, slotID uuid.UUID, date time.Time) (*Appointment, error) {
	id := uuid.New()

	row := t.tx.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, slot_id, date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'scheduled', now(), now())
		RETURNING id, patient_id, doctor_id, slot_id, date, status, created_at, updated_at
	`, id, patientID, doctorID, slotID, date)

	appt, err := scanAppointment(row)
	if err != nil {
		return nil, translateUnique(err)
	}
	return appt, nil
}

func (t *pgTxStore) GetAppointmentForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, patient_id, doctor_id, slot_id, date, status, created_at, updated_at
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (t *pgTxStore) GetPatientAppointmentForUpdate(ctx context.Context, id, patientID uuid.UUID) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id, patient_id, doctor_id, slot_id, date, status, created_at, updated_at
		FROM appointments
		WHERE id = $1 AND patient_id = $2
		FOR UPDATE
	`, id, patientID)
	return scanAppointment(row)
}

func (t *pgTxStore) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING id, patient_id, doctor_id, slot_id, date, status, created_at, updated_at
	`, id, to, from)
	return scanAppointment(row)
}
