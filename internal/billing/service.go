package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	store   Store
	fee     float64
	taxRate float64
	log     zerolog.Logger
}

func NewService(store Store, fee, taxRate float64, log zerolog.Logger) *Service {
	return &Service{
		store:   store,
		fee:     fee,
		taxRate: taxRate,
		log:     log,
	}
}

// CreateForAppointment creates the pending invoice for a completed
// visit. It is idempotent: a second call, or a concurrent one, leaves
// exactly one invoice behind. Unknown appointment ids are reported as
// ErrAppointmentNotFound so the worker can drop the job.
func (s *Service) CreateForAppointment(ctx context.Context, appointmentID uuid.UUID) error {
	return s.store.InTx(ctx, func(txCtx context.Context, tx TxStore) error {
		ref, err := tx.GetAppointmentRef(txCtx, appointmentID)
		if err != nil {
			return err
		}

		if _, err := tx.GetInvoiceByAppointment(txCtx, appointmentID); err == nil {
			// Already billed.
			return nil
		} else if !errors.Is(err, ErrInvoiceNotFound) {
			return fmt.Errorf("check existing invoice: %w", err)
		}

		tax := s.fee * s.taxRate
		inv := Invoice{
			ID:              uuid.New(),
			AppointmentID:   ref.ID,
			PatientID:       ref.PatientID,
			DoctorID:        ref.DoctorID,
			ConsultationFee: s.fee,
			TaxAmount:       tax,
			TotalAmount:     s.fee + tax,
			Status:          InvoicePending,
		}

		created, err := tx.InsertOrGetInvoice(txCtx, inv)
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}

		s.log.Info().
			Str("invoice_id", created.ID.String()).
			Str("appointment_id", appointmentID.String()).
			Float64("total", created.TotalAmount).
			Msg("invoice created")

		return nil
	})
}

// Pay flips a pending invoice to paid under a row lock. Paying twice
// fails with ErrInvoiceAlreadyPaid.
func (s *Service) Pay(ctx context.Context, invoiceID uuid.UUID) (*Invoice, error) {
	var paid *Invoice

	err := s.store.InTx(ctx, func(txCtx context.Context, tx TxStore) error {
		inv, err := tx.GetInvoiceForUpdate(txCtx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == InvoicePaid {
			return ErrInvoiceAlreadyPaid
		}

		paid, err = tx.MarkInvoicePaid(txCtx, invoiceID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("invoice_id", invoiceID.String()).
		Msg("invoice paid")

	return paid, nil
}

// InvoiceForAppointment looks up the invoice produced for a visit.
func (s *Service) InvoiceForAppointment(ctx context.Context, appointmentID uuid.UUID) (*Invoice, error) {
	return s.store.GetInvoiceByAppointment(ctx, appointmentID)
}

// HasInvoiceForAppointment reports whether a visit has been billed yet.
// The completion path uses it to decide if a retry needs to enqueue
// billing again.
func (s *Service) HasInvoiceForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	_, err := s.store.GetInvoiceByAppointment(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, ErrInvoiceNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
