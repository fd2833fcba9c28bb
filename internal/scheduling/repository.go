package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrScheduleNotFound    = errors.New("schedule not found")
	ErrSlotNotFound        = errors.New("slot not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotTaken           = errors.New("slot no longer available")
	ErrAlreadyLinked       = errors.New("patient is already linked to this guardian")
	ErrAlreadyMember       = errors.New("member is already on the care team")
	ErrStoreUnavailable    = errors.New("store unavailable")
)

// BookingCommit is the write set of the booking commit step. The repository
// must apply it as one indivisible operation: the store never observes a
// booked slot without its appointment, or the reverse.
type BookingCommit struct {
	IdempotencyKey string
	Appointment    *Appointment
	Event          EventLog
}

// Repository contains all store interactions needed by the service.
type Repository interface {
	CreateSchedule(ctx context.Context, sched *Schedule) error
	GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error)

	// CreateSlots writes the whole batch or nothing.
	CreateSlots(ctx context.Context, slots []Slot) error
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListSlotsByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]Slot, error)
	ListFreeSlots(ctx context.Context, from, to time.Time) ([]Slot, error)

	// CommitBooking claims the slot and creates the appointment atomically.
	// The slot transition is conditional on the stored status still being
	// free at commit time; a lost race returns ErrSlotTaken. A commit whose
	// idempotency key was already finalized returns the original
	// appointment instead of re-claiming.
	CommitBooking(ctx context.Context, commit BookingCommit) (*Appointment, error)
	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	ListAppointmentsByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]Appointment, error)
	GetIdempotencyRecord(ctx context.Context, key string) (*IdempotencyRecord, error)

	FindGuardianLink(ctx context.Context, guardianID, patientID uuid.UUID) (*GuardianLink, error)
	CreateGuardianLink(ctx context.Context, link GuardianLink) error

	GetCareTeamByPatient(ctx context.Context, patientID uuid.UUID) (*CareTeam, error)
	CreateCareTeam(ctx context.Context, team *CareTeam) error
	AddCareTeamMember(ctx context.Context, member CareTeamMember) error
	ListCareTeamMembers(ctx context.Context, patientID uuid.UUID) ([]CareTeamMember, error)
	ListCareTeamPatients(ctx context.Context, practitionerID uuid.UUID) ([]uuid.UUID, error)

	// Outbox for downstream notification.
	FindUnpublishedEvents(ctx context.Context, limit int) ([]EventLog, error)
	MarkEventPublished(ctx context.Context, id int64) error
}
