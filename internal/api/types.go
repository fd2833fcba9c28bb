package api

import (
	"time"

	"github.com/google/uuid"
)

type PublishAvailabilityRequest struct {
	PractitionerID string `json:"practitioner_id"`
	Start          string `json:"start"`
	End            string `json:"end"`
	SlotMinutes    int    `json:"slot_minutes"`
}

type PublishTimeOffRequest struct {
	PractitionerID string `json:"practitioner_id"`
	Start          string `json:"start"`
	End            string `json:"end"`
}

type PublishResponse struct {
	SlotsCreated int `json:"slots_created"`
}

type BookSlotRequest struct {
	SlotID         string `json:"slot_id"`
	PatientID      string `json:"patient_id"`
	Reason         string `json:"reason"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

type AppointmentResponse struct {
	ID             uuid.UUID `json:"id"`
	SlotID         uuid.UUID `json:"slot_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	Status         string    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type SlotResponse struct {
	ID         uuid.UUID `json:"id"`
	ScheduleID uuid.UUID `json:"schedule_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	Status     string    `json:"status"`
}

type BlockResponse struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Status string    `json:"status"`
}

type LinkPatientRequest struct {
	PatientID string `json:"patient_id"`
}

type AssignPractitionerRequest struct {
	PatientID      string `json:"patient_id"`
	PractitionerID string `json:"practitioner_id"`
}

type PatientRef struct {
	PatientID uuid.UUID `json:"patient_id"`
}

type CareTeamMemberResponse struct {
	MemberID uuid.UUID `json:"member_id"`
	Role     string    `json:"role"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
