package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicore/scheduling/internal/redisclient"
)

// fakeStore is an in-memory Store. InTx serializes transactions with a
// single mutex, which stands in for row locks in concurrency tests, and
// enforces the same partial-unique constraints the schema declares.
type fakeStore struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]Doctor
	patients     map[uuid.UUID]Patient
	schedules    []WeeklySchedule
	slots        map[uuid.UUID]*Slot
	appointments map[uuid.UUID]*Appointment
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		doctors:      make(map[uuid.UUID]Doctor),
		patients:     make(map[uuid.UUID]Patient),
		slots:        make(map[uuid.UUID]*Slot),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

func (f *fakeStore) addDoctor() uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.doctors[id] = Doctor{ID: id, Name: "Dr. Test", Specialization: "General", DepartmentID: uuid.New()}
	return id
}

func (f *fakeStore) addPatient() uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.patients[id] = Patient{ID: id, Name: "Pat Test"}
	return id
}

func (f *fakeStore) addSchedule(ws WeeklySchedule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ws.ID = uuid.New()
	f.schedules = append(f.schedules, ws)
}

func (f *fakeStore) addSlot(doctorID uuid.UUID, start time.Time, dur time.Duration) uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := uuid.New()
	f.slots[id] = &Slot{
		ID:        id,
		DoctorID:  doctorID,
		Date:      dateOnly(start),
		StartTime: start,
		EndTime:   start.Add(dur),
	}
	return id
}

func (f *fakeStore) slot(id uuid.UUID) Slot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.slots[id]
}

func (f *fakeStore) appointment(id uuid.UUID) Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.appointments[id]
}

func (f *fakeStore) slotCount(doctorID uuid.UUID, date time.Time) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, sl := range f.slots {
		if sl.DoctorID == doctorID && sl.Date.Equal(dateOnly(date)) {
			n++
		}
	}
	return n
}

func (f *fakeStore) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (f *fakeStore) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (f *fakeStore) ListDoctorsByDepartment(_ context.Context, departmentID uuid.UUID) ([]Doctor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []Doctor
	for _, d := range f.doctors {
		if d.DepartmentID == departmentID {
			result = append(result, d)
		}
	}
	return result, nil
}

func (f *fakeStore) ListAvailableSlots(_ context.Context, doctorID uuid.UUID, date time.Time) ([]Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []Slot
	for _, sl := range f.slots {
		if sl.DoctorID == doctorID && sl.Date.Equal(dateOnly(date)) && !sl.Occupied {
			result = append(result, *sl)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.Before(result[j].StartTime) })
	return result, nil
}

func (f *fakeStore) ListPatientAppointments(_ context.Context, patientID uuid.UUID, status AppointmentStatus) ([]AppointmentSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []AppointmentSummary
	for _, a := range f.appointments {
		if a.PatientID != patientID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		sum := AppointmentSummary{
			AppointmentID: a.ID,
			DoctorName:    f.doctors[a.DoctorID].Name,
			Date:          a.Date,
			Status:        a.Status,
		}
		if sl, ok := f.slots[a.SlotID]; ok {
			start := sl.StartTime
			sum.SlotStart = &start
		}
		result = append(result, sum)
	}
	return result, nil
}

func (f *fakeStore) InTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Snapshot for rollback on error.
	slots := make(map[uuid.UUID]*Slot, len(f.slots))
	for id, sl := range f.slots {
		cp := *sl
		slots[id] = &cp
	}
	appts := make(map[uuid.UUID]*Appointment, len(f.appointments))
	for id, a := range f.appointments {
		cp := *a
		appts[id] = &cp
	}

	if err := fn(ctx, &fakeTx{store: f}); err != nil {
		f.slots = slots
		f.appointments = appts
		return err
	}
	return nil
}

type fakeTx struct {
	store *fakeStore
}

func (t *fakeTx) GetScheduleForUpdate(_ context.Context, doctorID uuid.UUID, dayOfWeek int) (*WeeklySchedule, error) {
	for _, ws := range t.store.schedules {
		if ws.DoctorID == doctorID && ws.DayOfWeek == dayOfWeek {
			cp := ws
			return &cp, nil
		}
	}
	return nil, ErrScheduleNotFound
}

func (t *fakeTx) SlotsExist(_ context.Context, doctorID uuid.UUID, date time.Time) (bool, error) {
	for _, sl := range t.store.slots {
		if sl.DoctorID == doctorID && sl.Date.Equal(dateOnly(date)) {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) InsertSlots(_ context.Context, slots []Slot) error {
	for _, sl := range slots {
		dup := false
		for _, existing := range t.store.slots {
			if existing.DoctorID == sl.DoctorID && existing.StartTime.Equal(sl.StartTime) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		cp := sl
		t.store.slots[sl.ID] = &cp
	}
	return nil
}

func (t *fakeTx) GetSlotForUpdate(_ context.Context, slotID uuid.UUID) (*Slot, error) {
	sl, ok := t.store.slots[slotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *sl
	return &cp, nil
}

func (t *fakeTx) SetSlotOccupied(_ context.Context, slotID uuid.UUID, occupied bool) error {
	sl, ok := t.store.slots[slotID]
	if !ok {
		return ErrSlotNotFound
	}
	sl.Occupied = occupied
	return nil
}

func (t *fakeTx) ScheduledAppointmentExistsForSlot(_ context.Context, slotID uuid.UUID) (bool, error) {
	for _, a := range t.store.appointments {
		if a.SlotID == slotID && a.Status == StatusScheduled {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) PatientHasScheduledWithDoctor(_ context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	for _, a := range t.store.appointments {
		if a.PatientID == patientID && a.DoctorID == doctorID && a.Status == StatusScheduled {
			return true, nil
		}
	}
	return false, nil
}

func (t *fakeTx) CreateAppointment(_ context.Context, patientID, doctorID, slotID uuid.UUID, date time.Time) (*Appointment, error) {
	// Enforce the schema's partial unique indexes.
	for _, a := range t.store.appointments {
		if a.Status != StatusScheduled {
			continue
		}
		if a.SlotID == slotID {
			return nil, ErrSlotAlreadyBooked
		}
		if a.PatientID == patientID && a.DoctorID == doctorID {
			return nil, ErrDuplicatePatientBooking
		}
	}

	now := time.Now()
	a := &Appointment{
		ID:        uuid.New(),
		PatientID: patientID,
		DoctorID:  doctorID,
		SlotID:    slotID,
		Date:      date,
		Status:    StatusScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.store.appointments[a.ID] = a
	cp := *a
	return &cp, nil
}

func (t *fakeTx) GetAppointmentForUpdate(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := t.store.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (t *fakeTx) GetPatientAppointmentForUpdate(_ context.Context, id, patientID uuid.UUID) (*Appointment, error) {
	a, ok := t.store.appointments[id]
	if !ok || a.PatientID != patientID {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (t *fakeTx) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	a, ok := t.store.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

// fakeLocker holds per-key flags and rejects contenders immediately,
// standing in for a bounded-wait Redis lock.
type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) WithSlotLock(ctx context.Context, doctorID uuid.UUID, date time.Time, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	key := doctorID.String() + date.Format("2006-01-02") + slotID.String()

	l.mu.Lock()
	if l.held[key] {
		l.mu.Unlock()
		return redisclient.ErrLockNotAcquired
	}
	l.held[key] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()

	return fn(ctx)
}

// fakeQueue is a channel-backed BillingQueue.
type fakeQueue struct {
	jobs    chan redisclient.BillingJob
	pushErr error
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(chan redisclient.BillingJob, 64)}
}

func (q *fakeQueue) Push(_ context.Context, job redisclient.BillingJob) error {
	if q.pushErr != nil {
		return q.pushErr
	}
	q.jobs <- job
	return nil
}

func (q *fakeQueue) Pop(ctx context.Context) (redisclient.BillingJob, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-ctx.Done():
		return redisclient.BillingJob{}, ctx.Err()
	}
}

// fakeInvoices records inline creation calls and tracks which
// appointments have been billed.
type fakeInvoices struct {
	mu        sync.Mutex
	calls     []uuid.UUID
	createErr error
	billed    map[uuid.UUID]bool
}

func (f *fakeInvoices) CreateForAppointment(_ context.Context, appointmentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, appointmentID)
	if f.createErr != nil {
		return f.createErr
	}
	f.set(appointmentID)
	return nil
}

func (f *fakeInvoices) HasInvoiceForAppointment(_ context.Context, appointmentID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.billed[appointmentID], nil
}

// markBilled stands in for the queue worker finishing a job.
func (f *fakeInvoices) markBilled(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set(id)
}

func (f *fakeInvoices) set(id uuid.UUID) {
	if f.billed == nil {
		f.billed = make(map[uuid.UUID]bool)
	}
	f.billed[id] = true
}
