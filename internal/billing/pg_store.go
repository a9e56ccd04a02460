package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
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

const invoiceColumns = `id, appointment_id, patient_id, doctor_id, consultation_fee, tax_amount, total_amount, status, created_at, paid_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var paidAt *time.Time

	err := row.Scan(
		&inv.ID,
		&inv.AppointmentID,
		&inv.PatientID,
		&inv.DoctorID,
		&inv.ConsultationFee,
		&inv.TaxAmount,
		&inv.TotalAmount,
		&inv.Status,
		&inv.CreatedAt,
		&paidAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}

	inv.PaidAt = paidAt
	return &inv, nil
}

func (s *PgStore) GetInvoiceByID(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE id = $1
	`, id)
	return scanInvoice(row)
}

func (s *PgStore) GetInvoiceByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Invoice, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE appointment_id = $1
	`, appointmentID)
	return scanInvoice(row)
}

func (t *pgTxStore) GetAppointmentRef(ctx context.Context, appointmentID uuid.UUID) (*AppointmentRef, error) {
	var ref AppointmentRef

	err := t.tx.QueryRow(ctx, `
		SELECT id, patient_id, doctor_id
		FROM appointments
		WHERE id = $1
	`, appointmentID).Scan(&ref.ID, &ref.PatientID, &ref.DoctorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &ref, nil
}

func (t *pgTxStore) GetInvoiceByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Invoice, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE appointment_id = $1
	`, appointmentID)
	return scanInvoice(row)
}

// InsertOrGetInvoice relies on the unique constraint on appointment_id:
// ON CONFLICT DO NOTHING returns no row when another writer won the
// race, in which case the existing invoice is read back and returned.
func (t *pgTxStore) InsertOrGetInvoice(ctx context.Context, inv Invoice) (*Invoice, error) {
	row := t.tx.QueryRow(ctx, `
		INSERT INTO invoices (id, appointment_id, patient_id, doctor_id, consultation_fee, tax_amount, total_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (appointment_id) DO NOTHING
		RETURNING `+invoiceColumns+`
	`, inv.ID, inv.AppointmentID, inv.PatientID, inv.DoctorID,
		inv.ConsultationFee, inv.TaxAmount, inv.TotalAmount, inv.Status)

	created, err := scanInvoice(row)
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, ErrInvoiceNotFound) {
		return nil, err
	}

	return t.GetInvoiceByAppointment(ctx, inv.AppointmentID)
}

func (t *pgTxStore) GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanInvoice(row)
}

func (t *pgTxStore) MarkInvoicePaid(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE invoices
		SET status = 'paid',
		    paid_at = now()
		WHERE id = $1
		RETURNING `+invoiceColumns+`
	`, id)
	return scanInvoice(row)
}
