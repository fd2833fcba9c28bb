package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebridge/scheduling/internal/config"
	redisclient "github.com/carebridge/scheduling/internal/redis"
)

// memRepo is an in-memory Repository for service tests. The mutex around
// CommitBooking plays the role of the store's transaction: the conditional
// claim and the appointment insert are indivisible.
type memRepo struct {
	mu           sync.Mutex
	schedules    map[uuid.UUID]Schedule
	slots        map[uuid.UUID]Slot
	appointments map[uuid.UUID]Appointment
	idempotency  map[string]IdempotencyRecord
	links        map[uuid.UUID]map[uuid.UUID]GuardianLink
	teams        map[uuid.UUID]CareTeam
	members      map[uuid.UUID][]CareTeamMember
	events       []EventLog

	// getSlotFailures injects transient errors into GetSlot.
	// commitAckFailures makes CommitBooking commit durably and then lose
	// the acknowledgement, reporting transientErr to the caller.
	getSlotFailures   int
	commitAckFailures int
	transientErr      error
}

func newMemRepo() *memRepo {
	return &memRepo{
		schedules:    make(map[uuid.UUID]Schedule),
		slots:        make(map[uuid.UUID]Slot),
		appointments: make(map[uuid.UUID]Appointment),
		idempotency:  make(map[string]IdempotencyRecord),
		links:        make(map[uuid.UUID]map[uuid.UUID]GuardianLink),
		teams:        make(map[uuid.UUID]CareTeam),
		members:      make(map[uuid.UUID][]CareTeamMember),
	}
}

func newTestService(repo Repository) *Service {
	cfg := config.Config{
		StoreMaxRetries:    3,
		StoreRetryInterval: time.Millisecond,
	}
	return NewService(repo, redisclient.NoopLocker{}, cfg, zerolog.Nop())
}

func (m *memRepo) CreateSchedule(_ context.Context, sched *Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sched.CreatedAt = time.Now()
	m.schedules[sched.ID] = *sched
	return nil
}

func (m *memRepo) GetSchedule(_ context.Context, id uuid.UUID) (*Schedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sched, ok := m.schedules[id]
	if !ok {
		return nil, ErrScheduleNotFound
	}
	return &sched, nil
}

func (m *memRepo) CreateSlots(_ context.Context, slots []Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range slots {
		m.slots[s.ID] = s
	}
	return nil
}

func (m *memRepo) GetSlot(_ context.Context, id uuid.UUID) (*Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getSlotFailures > 0 {
		m.getSlotFailures--
		return nil, m.transientErr
	}
	slot, ok := m.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &slot, nil
}

func (m *memRepo) ListSlotsByPractitioner(_ context.Context, practitionerID uuid.UUID) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Slot
	for _, s := range m.slots {
		if m.schedules[s.ScheduleID].PractitionerID == practitionerID {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Start.Before(result[j].Start) })
	return result, nil
}

func (m *memRepo) ListFreeSlots(_ context.Context, from, to time.Time) ([]Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Slot
	for _, s := range m.slots {
		if s.Status == SlotFree && !s.Start.Before(from) && !s.End.After(to) {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Start.Before(result[j].Start) })
	return result, nil
}

func (m *memRepo) CommitBooking(_ context.Context, commit BookingCommit) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.idempotency[commit.IdempotencyKey]; ok && rec.AppointmentID != uuid.Nil {
		existing := m.appointments[rec.AppointmentID]
		return &existing, nil
	}

	slot, ok := m.slots[commit.Appointment.SlotID]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if slot.Status != SlotFree {
		return nil, ErrSlotTaken
	}

	slot.Status = SlotBooked
	slot.UpdatedAt = time.Now()
	m.slots[slot.ID] = slot

	appt := *commit.Appointment
	appt.CreatedAt = time.Now()
	m.appointments[appt.ID] = appt
	m.idempotency[commit.IdempotencyKey] = IdempotencyRecord{
		Key:           commit.IdempotencyKey,
		SlotID:        appt.SlotID,
		AppointmentID: appt.ID,
		CreatedAt:     appt.CreatedAt,
	}
	m.events = append(m.events, commit.Event)

	if m.commitAckFailures > 0 {
		m.commitAckFailures--
		return nil, m.transientErr
	}
	return &appt, nil
}

func (m *memRepo) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Appointment
	for _, a := range m.appointments {
		if a.PatientID == patientID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *memRepo) ListAppointmentsByPractitioner(_ context.Context, practitionerID uuid.UUID) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []Appointment
	for _, a := range m.appointments {
		if a.PractitionerID == practitionerID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m *memRepo) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &appt, nil
}

func (m *memRepo) GetIdempotencyRecord(_ context.Context, key string) (*IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.idempotency[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memRepo) FindGuardianLink(_ context.Context, guardianID, patientID uuid.UUID) (*GuardianLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[guardianID][patientID]
	if !ok {
		return nil, nil
	}
	return &link, nil
}

func (m *memRepo) CreateGuardianLink(_ context.Context, link GuardianLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[link.GuardianID][link.PatientID]; ok {
		return ErrAlreadyLinked
	}
	if m.links[link.GuardianID] == nil {
		m.links[link.GuardianID] = make(map[uuid.UUID]GuardianLink)
	}
	link.CreatedAt = time.Now()
	m.links[link.GuardianID][link.PatientID] = link
	return nil
}

func (m *memRepo) GetCareTeamByPatient(_ context.Context, patientID uuid.UUID) (*CareTeam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	team, ok := m.teams[patientID]
	if !ok {
		return nil, nil
	}
	return &team, nil
}

func (m *memRepo) CreateCareTeam(_ context.Context, team *CareTeam) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.teams[team.PatientID]; ok {
		return ErrAlreadyMember
	}
	team.CreatedAt = time.Now()
	m.teams[team.PatientID] = *team
	return nil
}

func (m *memRepo) AddCareTeamMember(_ context.Context, member CareTeamMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.members[member.CareTeamID] {
		if existing.MemberID == member.MemberID {
			return ErrAlreadyMember
		}
	}
	member.CreatedAt = time.Now()
	m.members[member.CareTeamID] = append(m.members[member.CareTeamID], member)
	return nil
}

func (m *memRepo) ListCareTeamMembers(_ context.Context, patientID uuid.UUID) ([]CareTeamMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	team, ok := m.teams[patientID]
	if !ok {
		return nil, nil
	}
	return append([]CareTeamMember(nil), m.members[team.ID]...), nil
}

func (m *memRepo) ListCareTeamPatients(_ context.Context, practitionerID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []uuid.UUID
	for patientID, team := range m.teams {
		for _, member := range m.members[team.ID] {
			if member.MemberID == practitionerID && member.Role == RolePractitioner {
				result = append(result, patientID)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].String() < result[j].String() })
	return result, nil
}

func (m *memRepo) FindUnpublishedEvents(_ context.Context, limit int) ([]EventLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []EventLog
	for _, ev := range m.events {
		if ev.PublishedAt == nil && len(result) < limit {
			result = append(result, ev)
		}
	}
	return result, nil
}

func (m *memRepo) MarkEventPublished(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for i := range m.events {
		if m.events[i].ID == id {
			m.events[i].PublishedAt = &now
		}
	}
	return nil
}
