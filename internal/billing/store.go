package billing

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrInvoiceAlreadyPaid  = errors.New("invoice already paid")
)

type Store interface {
	GetInvoiceByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	GetInvoiceByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Invoice, error)

	InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error
}

type TxStore interface {
	GetAppointmentRef(ctx context.Context, appointmentID uuid.UUID) (*AppointmentRef, error)
	GetInvoiceByAppointment(ctx context.Context, appointmentID uuid.UUID) (*Invoice, error)

	// InsertOrGetInvoice inserts inv, or returns the row another writer
	// already created for the same appointment. This is the single
	// retry-on-conflict primitive for the billing pipeline.
	InsertOrGetInvoice(ctx context.Context, inv Invoice) (*Invoice, error)

	GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (*Invoice, error)
	MarkInvoicePaid(ctx context.Context, id uuid.UUID) (*Invoice, error)
}
