package api

import (
	"time"

	"github.com/google/uuid"
)

type BookAppointmentRequest struct {
	DoctorID string `json:"doctor_id" validate:"required,uuid"`
	SlotID   string `json:"slot_id" validate:"required,uuid"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
}

type AppointmentResponse struct {
	ID        uuid.UUID `json:"appointment_id"`
	PatientID uuid.UUID `json:"patient_id"`
	DoctorID  uuid.UUID `json:"doctor_id"`
	SlotID    uuid.UUID `json:"slot_id"`
	Date      string    `json:"date"`
	Status    string    `json:"status"`
}

type SlotResponse struct {
	SlotID    uuid.UUID `json:"slot_id"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
}

type AppointmentSummaryResponse struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	DoctorName    string    `json:"doctor_name"`
	Date          string    `json:"appointment_date"`
	StartTime     *string   `json:"start_time,omitempty"`
	Status        string    `json:"status"`
}

type DoctorResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Specialization string    `json:"specialization"`
}

type InvoiceResponse struct {
	ID              uuid.UUID  `json:"invoice_id"`
	AppointmentID   uuid.UUID  `json:"appointment_id"`
	ConsultationFee float64    `json:"consultation_fee"`
	TaxAmount       float64    `json:"tax_amount"`
	TotalAmount     float64    `json:"total_amount"`
	Status          string     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
}

type AckResponse struct {
	Message string `json:"message"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
