package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicore/scheduling/internal/billing"
	"github.com/clinicore/scheduling/internal/scheduling"
)

// stubBooking lets each test plug in just the method it exercises.
type stubBooking struct {
	bookFn         func(ctx context.Context, patientID, doctorID, slotID uuid.UUID, date time.Time) (*scheduling.Appointment, error)
	cancelFn       func(ctx context.Context, appointmentID, patientID uuid.UUID) error
	completeFn     func(ctx context.Context, appointmentID uuid.UUID) (*scheduling.Appointment, error)
	slotsFn        func(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]scheduling.Slot, error)
	appointmentsFn func(ctx context.Context, patientID uuid.UUID, status scheduling.AppointmentStatus) ([]scheduling.AppointmentSummary, error)
	doctorsFn      func(ctx context.Context, departmentID uuid.UUID) ([]scheduling.Doctor, error)
}

func (s *stubBooking) Book(ctx context.Context, patientID, doctorID, slotID uuid.UUID, date time.Time) (*scheduling.Appointment, error) {
	return s.bookFn(ctx, patientID, doctorID, slotID, date)
}

func (s *stubBooking) Cancel(ctx context.Context, appointmentID, patientID uuid.UUID) error {
	return s.cancelFn(ctx, appointmentID, patientID)
}

func (s *stubBooking) Complete(ctx context.Context, appointmentID uuid.UUID) (*scheduling.Appointment, error) {
	return s.completeFn(ctx, appointmentID)
}

func (s *stubBooking) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]scheduling.Slot, error) {
	return s.slotsFn(ctx, doctorID, date)
}

func (s *stubBooking) PatientAppointments(ctx context.Context, patientID uuid.UUID, status scheduling.AppointmentStatus) ([]scheduling.AppointmentSummary, error) {
	return s.appointmentsFn(ctx, patientID, status)
}

func (s *stubBooking) DoctorsByDepartment(ctx context.Context, departmentID uuid.UUID) ([]scheduling.Doctor, error) {
	return s.doctorsFn(ctx, departmentID)
}

type stubBilling struct {
	payFn     func(ctx context.Context, invoiceID uuid.UUID) (*billing.Invoice, error)
	invoiceFn func(ctx context.Context, appointmentID uuid.UUID) (*billing.Invoice, error)
}

func (s *stubBilling) Pay(ctx context.Context, invoiceID uuid.UUID) (*billing.Invoice, error) {
	return s.payFn(ctx, invoiceID)
}

func (s *stubBilling) InvoiceForAppointment(ctx context.Context, appointmentID uuid.UUID) (*billing.Invoice, error) {
	return s.invoiceFn(ctx, appointmentID)
}

func newTestRouter(booking BookingService, bill BillingService) http.Handler {
	return NewRouter(RouterConfig{
		Booking: booking,
		Billing: bill,
		Env:     "test",
		Version: "test",
		Log:     zerolog.Nop(),
	})
}

func asPatient(r *http.Request, patientID uuid.UUID) *http.Request {
	r.Header.Set("X-User-ID", patientID.String())
	r.Header.Set("X-User-Role", RolePatient)
	return r
}

func asRole(r *http.Request, role string) *http.Request {
	r.Header.Set("X-User-ID", uuid.New().String())
	r.Header.Set("X-User-Role", role)
	return r
}

func bookBody(t *testing.T, doctorID, slotID uuid.UUID, date string) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(BookAppointmentRequest{
		DoctorID: doctorID.String(),
		SlotID:   slotID.String(),
		Date:     date,
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func TestBookAppointment_Created(t *testing.T) {
	patientID := uuid.New()
	doctorID := uuid.New()
	slotID := uuid.New()

	booking := &stubBooking{
		bookFn: func(_ context.Context, gotPatient, gotDoctor, gotSlot uuid.UUID, date time.Time) (*scheduling.Appointment, error) {
			assert.Equal(t, patientID, gotPatient)
			assert.Equal(t, doctorID, gotDoctor)
			assert.Equal(t, slotID, gotSlot)
			assert.Equal(t, "2026-09-14", date.Format("2006-01-02"))
			return &scheduling.Appointment{
				ID:        uuid.New(),
				PatientID: gotPatient,
				DoctorID:  gotDoctor,
				SlotID:    gotSlot,
				Date:      date,
				Status:    scheduling.StatusScheduled,
			}, nil
		},
	}

	router := newTestRouter(booking, &stubBilling{})
	req := asPatient(httptest.NewRequest(http.MethodPost, "/appointments", bookBody(t, doctorID, slotID, "2026-09-14")), patientID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp AppointmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, patientID, resp.PatientID)
	assert.Equal(t, "scheduled", resp.Status)
}

func TestBookAppointment_Validation(t *testing.T) {
	router := newTestRouter(&stubBooking{}, &stubBilling{})

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", "{"},
		{"missing fields", "{}"},
		{"bad uuid", `{"doctor_id":"nope","slot_id":"nope","date":"2026-09-14"}`},
		{"bad date", fmt.Sprintf(`{"doctor_id":%q,"slot_id":%q,"date":"14-09-2026"}`, uuid.New(), uuid.New())},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := asPatient(httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString(tc.body)), uuid.New())
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestBookAppointment_ErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"past date", scheduling.ErrPastDate, http.StatusBadRequest, "past_date"},
		{"doctor missing", scheduling.ErrDoctorNotFound, http.StatusNotFound, "doctor_not_found"},
		{"slot missing", scheduling.ErrSlotNotFound, http.StatusNotFound, "slot_not_found"},
		{"slot taken", scheduling.ErrSlotAlreadyBooked, http.StatusConflict, "slot_already_booked"},
		{"slot contended", scheduling.ErrSlotContended, http.StatusConflict, "slot_being_booked"},
		{"duplicate booking", scheduling.ErrDuplicatePatientBooking, http.StatusConflict, "duplicate_booking"},
		{"storage failure", fmt.Errorf("connection refused"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			booking := &stubBooking{
				bookFn: func(context.Context, uuid.UUID, uuid.UUID, uuid.UUID, time.Time) (*scheduling.Appointment, error) {
					return nil, tc.err
				},
			}
			router := newTestRouter(booking, &stubBilling{})

			req := asPatient(httptest.NewRequest(http.MethodPost, "/appointments", bookBody(t, uuid.New(), uuid.New(), "2026-09-14")), uuid.New())
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.wantCode, resp.Error)
		})
	}
}

func TestIdentityRequired(t *testing.T) {
	router := newTestRouter(&stubBooking{}, &stubBilling{})

	t.Run("no headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("bad user id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
		req.Header.Set("X-User-ID", "not-a-uuid")
		req.Header.Set("X-User-Role", RolePatient)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown role", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
		req.Header.Set("X-User-ID", uuid.New().String())
		req.Header.Set("X-User-Role", "superuser")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestRoleEnforcement(t *testing.T) {
	router := newTestRouter(&stubBooking{
		completeFn: func(_ context.Context, appointmentID uuid.UUID) (*scheduling.Appointment, error) {
			return &scheduling.Appointment{ID: appointmentID, Status: scheduling.StatusCompleted}, nil
		},
	}, &stubBilling{})

	t.Run("patient cannot complete", func(t *testing.T) {
		req := asRole(httptest.NewRequest(http.MethodPost, "/appointments/"+uuid.NewString()+"/complete", nil), RolePatient)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("doctor can complete", func(t *testing.T) {
		req := asRole(httptest.NewRequest(http.MethodPost, "/appointments/"+uuid.NewString()+"/complete", nil), RoleDoctor)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("doctor cannot pay", func(t *testing.T) {
		req := asRole(httptest.NewRequest(http.MethodPost, "/invoices/"+uuid.NewString()+"/pay", nil), RoleDoctor)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("doctor cannot book", func(t *testing.T) {
		req := asRole(httptest.NewRequest(http.MethodPost, "/appointments", bookBody(t, uuid.New(), uuid.New(), "2026-09-14")), RoleDoctor)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestCancelAppointment(t *testing.T) {
	apptID := uuid.New()
	patientID := uuid.New()

	t.Run("success", func(t *testing.T) {
		booking := &stubBooking{
			cancelFn: func(_ context.Context, gotAppt, gotPatient uuid.UUID) error {
				assert.Equal(t, apptID, gotAppt)
				assert.Equal(t, patientID, gotPatient)
				return nil
			},
		}
		router := newTestRouter(booking, &stubBilling{})

		req := asPatient(httptest.NewRequest(http.MethodPost, "/appointments/"+apptID.String()+"/cancel", nil), patientID)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		router := newTestRouter(&stubBooking{}, &stubBilling{})
		req := asPatient(httptest.NewRequest(http.MethodPost, "/appointments/xyz/cancel", nil), patientID)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too late", func(t *testing.T) {
		booking := &stubBooking{
			cancelFn: func(context.Context, uuid.UUID, uuid.UUID) error {
				return scheduling.ErrTooLateToCancel
			},
		}
		router := newTestRouter(booking, &stubBilling{})

		req := asPatient(httptest.NewRequest(http.MethodPost, "/appointments/"+apptID.String()+"/cancel", nil), patientID)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestListSlots(t *testing.T) {
	doctorID := uuid.New()
	day := time.Date(2026, 9, 14, 0, 0, 0, 0, time.UTC)

	booking := &stubBooking{
		slotsFn: func(_ context.Context, gotDoctor uuid.UUID, date time.Time) ([]scheduling.Slot, error) {
			assert.Equal(t, doctorID, gotDoctor)
			assert.Equal(t, day, date)
			return []scheduling.Slot{
				{ID: uuid.New(), DoctorID: gotDoctor, Date: day, StartTime: day.Add(9 * time.Hour), EndTime: day.Add(9*time.Hour + 30*time.Minute)},
			}, nil
		},
	}
	router := newTestRouter(booking, &stubBilling{})

	t.Run("success", func(t *testing.T) {
		req := asRole(httptest.NewRequest(http.MethodGet, "/doctors/"+doctorID.String()+"/slots?date=2026-09-14", nil), RolePatient)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp []SlotResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
		assert.Equal(t, "09:00", resp[0].StartTime)
		assert.Equal(t, "09:30", resp[0].EndTime)
	})

	t.Run("missing date", func(t *testing.T) {
		req := asRole(httptest.NewRequest(http.MethodGet, "/doctors/"+doctorID.String()+"/slots", nil), RolePatient)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListMyAppointments(t *testing.T) {
	patientID := uuid.New()
	start := time.Date(2026, 9, 14, 9, 0, 0, 0, time.UTC)

	booking := &stubBooking{
		appointmentsFn: func(_ context.Context, gotPatient uuid.UUID, status scheduling.AppointmentStatus) ([]scheduling.AppointmentSummary, error) {
			assert.Equal(t, patientID, gotPatient)
			assert.Equal(t, scheduling.StatusScheduled, status)
			return []scheduling.AppointmentSummary{
				{AppointmentID: uuid.New(), DoctorName: "Dr. Adams", Date: start, SlotStart: &start, Status: scheduling.StatusScheduled},
			}, nil
		},
	}
	router := newTestRouter(booking, &stubBilling{})

	req := asPatient(httptest.NewRequest(http.MethodGet, "/appointments?status=scheduled", nil), patientID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp []AppointmentSummaryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "Dr. Adams", resp[0].DoctorName)
	require.NotNil(t, resp[0].StartTime)
	assert.Equal(t, "09:00", *resp[0].StartTime)
}

func TestPayInvoice(t *testing.T) {
	invoiceID := uuid.New()

	t.Run("success", func(t *testing.T) {
		bill := &stubBilling{
			payFn: func(_ context.Context, gotID uuid.UUID) (*billing.Invoice, error) {
				assert.Equal(t, invoiceID, gotID)
				now := time.Now()
				return &billing.Invoice{
					ID:            gotID,
					AppointmentID: uuid.New(),
					TotalAmount:   590,
					Status:        billing.InvoicePaid,
					PaidAt:        &now,
				}, nil
			},
		}
		router := newTestRouter(&stubBooking{}, bill)

		req := asPatient(httptest.NewRequest(http.MethodPost, "/invoices/"+invoiceID.String()+"/pay", nil), uuid.New())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp InvoiceResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "paid", resp.Status)
		assert.NotNil(t, resp.PaidAt)
	})

	t.Run("already paid", func(t *testing.T) {
		bill := &stubBilling{
			payFn: func(context.Context, uuid.UUID) (*billing.Invoice, error) {
				return nil, billing.ErrInvoiceAlreadyPaid
			},
		}
		router := newTestRouter(&stubBooking{}, bill)

		req := asPatient(httptest.NewRequest(http.MethodPost, "/invoices/"+invoiceID.String()+"/pay", nil), uuid.New())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestGetAppointmentInvoice_NotFound(t *testing.T) {
	bill := &stubBilling{
		invoiceFn: func(context.Context, uuid.UUID) (*billing.Invoice, error) {
			return nil, billing.ErrInvoiceNotFound
		},
	}
	router := newTestRouter(&stubBooking{}, bill)

	req := asPatient(httptest.NewRequest(http.MethodGet, "/appointments/"+uuid.NewString()+"/invoice", nil), uuid.New())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invoice_not_found", resp.Error)
}

func TestListDoctors(t *testing.T) {
	deptID := uuid.New()

	booking := &stubBooking{
		doctorsFn: func(_ context.Context, gotDept uuid.UUID) ([]scheduling.Doctor, error) {
			assert.Equal(t, deptID, gotDept)
			return []scheduling.Doctor{
				{ID: uuid.New(), Name: "Dr. Adams", Specialization: "Cardiology"},
				{ID: uuid.New(), Name: "Dr. Brown", Specialization: "Cardiology"},
			}, nil
		},
	}
	router := newTestRouter(booking, &stubBilling{})

	req := asRole(httptest.NewRequest(http.MethodGet, "/departments/"+deptID.String()+"/doctors", nil), RolePatient)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp []DoctorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "Cardiology", resp[0].Specialization)
}
