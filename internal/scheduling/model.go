package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type SlotStatus string

const (
	SlotFree   SlotStatus = "free"
	SlotBusy   SlotStatus = "busy"
	SlotBooked SlotStatus = "booked"
)

type SchedulePurpose string

const (
	PurposeAvailability SchedulePurpose = "availability"
	PurposeTimeOff      SchedulePurpose = "time-off"
)

type AppointmentStatus string

const (
	AppointmentBooked AppointmentStatus = "booked"
)

type Role string

const (
	RolePractitioner Role = "practitioner"
	RolePatient      Role = "patient"
	RoleGuardian     Role = "guardian"
)

// Principal is the acting identity on a request. Token verification is the
// surrounding application's job; the core only consumes the resolved id+role.
type Principal struct {
	ID   uuid.UUID
	Role Role
}

// Window is a declared time range. End must be after Start.
type Window struct {
	Start time.Time
	End   time.Time
}

// Schedule is a practitioner-declared window grouping slots. Immutable once
// created; a new declaration creates a new Schedule.
type Schedule struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	Start          time.Time
	End            time.Time
	Purpose        SchedulePurpose
	Comment        string
	CreatedAt      time.Time
}

// Slot is the atomic bookable unit. Generated once, never split. The only
// status transition after creation is free -> booked.
type Slot struct {
	ID         uuid.UUID
	ScheduleID uuid.UUID
	Start      time.Time
	End        time.Time
	Status     SlotStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Appointment struct {
	ID             uuid.UUID
	SlotID         uuid.UUID
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
	Status         AppointmentStatus
	Reason         string
	CreatedAt      time.Time
}

// GuardianLink is the standing authorization relation between a guardian and
// a dependent patient. A (guardian, patient) pair is linked at most once.
type GuardianLink struct {
	GuardianID uuid.UUID
	PatientID  uuid.UUID
	CreatedAt  time.Time
}

type CareTeam struct {
	ID        uuid.UUID
	PatientID uuid.UUID
	CreatedAt time.Time
}

type CareTeamMember struct {
	CareTeamID uuid.UUID
	MemberID   uuid.UUID
	Role       Role
	CreatedAt  time.Time
}

// Block is the display view of a slot in a merged schedule.
type Block struct {
	Start  time.Time
	End    time.Time
	Status SlotStatus
}

type BookingRequest struct {
	SlotID         uuid.UUID
	PatientID      uuid.UUID
	Principal      Principal
	Reason         string
	IdempotencyKey string
}

// IdempotencyRecord is one row of the durable idempotency log. AppointmentID
// is uuid.Nil until the booking it belongs to has committed.
type IdempotencyRecord struct {
	Key           string
	SlotID        uuid.UUID
	AppointmentID uuid.UUID
	CreatedAt     time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
}
