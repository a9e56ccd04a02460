package billing

import (
	"time"

	"github.com/google/uuid"
)

type InvoiceStatus string

const (
	InvoicePending  InvoiceStatus = "pending"
	InvoicePaid     InvoiceStatus = "paid"
	InvoiceFailed   InvoiceStatus = "failed"
	InvoiceRefunded InvoiceStatus = "refunded"
)

// Invoice is the billing record for one completed visit. Exactly one
// exists per appointment, enforced by a unique constraint.
type Invoice struct {
	ID              uuid.UUID
	AppointmentID   uuid.UUID
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	ConsultationFee float64
	TaxAmount       float64
	TotalAmount     float64
	Status          InvoiceStatus
	CreatedAt       time.Time
	PaidAt          *time.Time
}

// AppointmentRef is the slice of an appointment the billing pipeline
// needs to cut an invoice.
type AppointmentRef struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	DoctorID  uuid.UUID
}
