package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/clinicore/scheduling/internal/billing"
	"github.com/clinicore/scheduling/internal/scheduling"
)

// BookingService is what the handlers need from the scheduling core.
type BookingService interface {
	Book(ctx context.Context, patientID, doctorID, slotID uuid.UUID, date time.Time) (*scheduling.Appointment, error)
	Cancel(ctx context.Context, appointmentID, patientID uuid.UUID) error
	Complete(ctx context.Context, appointmentID uuid.UUID) (*scheduling.Appointment, error)
	AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]scheduling.Slot, error)
	PatientAppointments(ctx context.Context, patientID uuid.UUID, status scheduling.AppointmentStatus) ([]scheduling.AppointmentSummary, error)
	DoctorsByDepartment(ctx context.Context, departmentID uuid.UUID) ([]scheduling.Doctor, error)
}

// BillingService is what the handlers need from the billing side.
type BillingService interface {
	Pay(ctx context.Context, invoiceID uuid.UUID) (*billing.Invoice, error)
	InvoiceForAppointment(ctx context.Context, appointmentID uuid.UUID) (*billing.Invoice, error)
}

var validate = validator.New()

const dateLayout = "2006-01-02"

func bookAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetIdentity(r.Context())

		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		doctorID, _ := uuid.Parse(req.DoctorID)
		slotID, _ := uuid.Parse(req.SlotID)
		date, _ := time.ParseInLocation(dateLayout, req.Date, time.UTC)

		appt, err := svc.Book(r.Context(), id.UserID, doctorID, slotID, date)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetIdentity(r.Context())

		apptID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		if err := svc.Cancel(r.Context(), apptID, id.UserID); err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AckResponse{Message: "appointment cancelled"})
	}
}

func completeAppointmentHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apptID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Complete(r.Context(), apptID)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listSlotsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "id must be a valid UUID")
			return
		}

		date, err := time.ParseInLocation(dateLayout, r.URL.Query().Get("date"), time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), doctorID, date)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, sl := range slots {
			resp = append(resp, SlotResponse{
				SlotID:    sl.ID,
				StartTime: sl.StartTime.UTC().Format("15:04"),
				EndTime:   sl.EndTime.UTC().Format("15:04"),
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func listMyAppointmentsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetIdentity(r.Context())

		status := scheduling.AppointmentStatus(r.URL.Query().Get("status"))

		summaries, err := svc.PatientAppointments(r.Context(), id.UserID, status)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		resp := make([]AppointmentSummaryResponse, 0, len(summaries))
		for _, sum := range summaries {
			item := AppointmentSummaryResponse{
				AppointmentID: sum.AppointmentID,
				DoctorName:    sum.DoctorName,
				Date:          sum.Date.UTC().Format(dateLayout),
				Status:        string(sum.Status),
			}
			if sum.SlotStart != nil {
				start := sum.SlotStart.UTC().Format("15:04")
				item.StartTime = &start
			}
			resp = append(resp, item)
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func listDoctorsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		deptID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_department_id", "id must be a valid UUID")
			return
		}

		doctors, err := svc.DoctorsByDepartment(r.Context(), deptID)
		if err != nil {
			handleSchedulingError(w, err)
			return
		}

		resp := make([]DoctorResponse, 0, len(doctors))
		for _, d := range doctors {
			resp = append(resp, DoctorResponse{ID: d.ID, Name: d.Name, Specialization: d.Specialization})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func payInvoiceHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_invoice_id", "id must be a valid UUID")
			return
		}

		inv, err := svc.Pay(r.Context(), invoiceID)
		if err != nil {
			handleBillingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
	}
}

func getAppointmentInvoiceHandler(svc BillingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apptID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		inv, err := svc.InvoiceForAppointment(r.Context(), apptID)
		if err != nil {
			handleBillingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toInvoiceResponse(inv))
	}
}

func toAppointmentResponse(appt *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        appt.ID,
		PatientID: appt.PatientID,
		DoctorID:  appt.DoctorID,
		SlotID:    appt.SlotID,
		Date:      appt.Date.UTC().Format(dateLayout),
		Status:    string(appt.Status),
	}
}

func toInvoiceResponse(inv *billing.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:              inv.ID,
		AppointmentID:   inv.AppointmentID,
		ConsultationFee: inv.ConsultationFee,
		TaxAmount:       inv.TaxAmount,
		TotalAmount:     inv.TotalAmount,
		Status:          string(inv.Status),
		CreatedAt:       inv.CreatedAt,
		PaidAt:          inv.PaidAt,
	}
}

func handleSchedulingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrPastDate):
		writeError(w, http.StatusBadRequest, "past_date", err.Error())
	case errors.Is(err, scheduling.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, "invalid_status_filter", err.Error())
	case errors.Is(err, scheduling.ErrDepartmentNotFound):
		writeError(w, http.StatusNotFound, "department_not_found", err.Error())
	case errors.Is(err, scheduling.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSlotContended):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, scheduling.ErrSlotAlreadyBooked):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, scheduling.ErrDuplicatePatientBooking):
		writeError(w, http.StatusConflict, "duplicate_booking", err.Error())
	case errors.Is(err, scheduling.ErrTooLateToCancel):
		writeError(w, http.StatusConflict, "too_late_to_cancel", err.Error())
	case errors.Is(err, scheduling.ErrNotScheduled):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, scheduling.ErrFutureAppointment):
		writeError(w, http.StatusConflict, "future_appointment", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleBillingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrInvoiceNotFound):
		writeError(w, http.StatusNotFound, "invoice_not_found", err.Error())
	case errors.Is(err, billing.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, billing.ErrInvoiceAlreadyPaid):
		writeError(w, http.StatusConflict, "invoice_already_paid", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
