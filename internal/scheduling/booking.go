package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	redisclient "github.com/carebridge/scheduling/internal/redis"
)

const EventBookingConfirmed = "BOOKING_CONFIRMED"

var (
	ErrSlotContended         = errors.New("slot is currently being booked, retry shortly")
	ErrMissingIdempotencyKey = errors.New("idempotency key is required")
)

// Book claims a free slot for a patient and creates the appointment.
//
// The protocol: authorize the acting principal, consult the idempotency log,
// read the slot, resolve the owning practitioner through the schedule, then
// commit. The commit is one atomic store operation whose slot transition is
// conditional on the status still being free, so concurrent bookings for the
// same slot are serialized by the store: exactly one wins, the rest get
// ErrSlotTaken. The per-slot Redis lock around the commit only thins out
// contention; correctness never depends on it.
//
// Transient store failures re-run everything from the slot read with bounded
// exponential backoff. A retry whose idempotency key already committed gets
// the original appointment back instead of a conflict.
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if req.IdempotencyKey == "" {
		return nil, ErrMissingIdempotencyKey
	}

	if err := s.authorizeBooking(ctx, req); err != nil {
		return nil, err
	}

	// Fast path for a retried request that already succeeded.
	if rec, err := s.repo.GetIdempotencyRecord(ctx, req.IdempotencyKey); err == nil && rec != nil && rec.AppointmentID != uuid.Nil {
		return s.repo.GetAppointment(ctx, rec.AppointmentID)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = s.cfg.StoreRetryInterval

	appt, err := backoff.Retry(ctx, func() (*Appointment, error) {
		a, err := s.attemptBooking(ctx, req)
		if err != nil && bookingErrIsFinal(err) {
			return nil, backoff.Permanent(err)
		}
		return a, err
	}, backoff.WithBackOff(expo), backoff.WithMaxTries(s.cfg.StoreMaxRetries))

	if err != nil {
		if bookingErrIsFinal(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.log.Info().
		Str("appointment_id", appt.ID.String()).
		Str("slot_id", req.SlotID.String()).
		Str("patient_id", req.PatientID.String()).
		Msg("slot booked")
	return appt, nil
}

func (s *Service) authorizeBooking(ctx context.Context, req BookingRequest) error {
	switch req.Principal.Role {
	case RolePatient:
		if req.Principal.ID != req.PatientID {
			return ErrForbidden
		}
	case RoleGuardian:
		linked, err := s.IsGuardianOf(ctx, req.Principal.ID, req.PatientID)
		if err != nil {
			return err
		}
		if !linked {
			return ErrForbidden
		}
	default:
		return ErrForbidden
	}
	return nil
}

// attemptBooking runs one full pass of read-resolve-commit. Safe to repeat:
// the commit's conditional guard and the idempotency log make a blind rerun
// produce at most one appointment for the slot.
func (s *Service) attemptBooking(ctx context.Context, req BookingRequest) (*Appointment, error) {
	slot, err := s.repo.GetSlot(ctx, req.SlotID)
	if err != nil {
		return nil, err
	}
	if slot.Status != SlotFree {
		// A retry of a commit whose acknowledgement was lost lands here:
		// the slot is booked, but under this request's own key. That is a
		// success, not a conflict.
		if appt, ok := s.committedUnderKey(ctx, req.IdempotencyKey); ok {
			return appt, nil
		}
		return nil, ErrSlotTaken
	}

	sched, err := s.repo.GetSchedule(ctx, slot.ScheduleID)
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:             uuid.New(),
		SlotID:         slot.ID,
		PatientID:      req.PatientID,
		PractitionerID: sched.PractitionerID,
		Status:         AppointmentBooked,
		Reason:         req.Reason,
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id":  appt.ID.String(),
		"slot_id":         slot.ID.String(),
		"patient_id":      req.PatientID.String(),
		"practitioner_id": sched.PractitionerID.String(),
		"start":           slot.Start,
		"end":             slot.End,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event payload: %w", err)
	}

	var committed *Appointment
	lockErr := s.locker.WithSlotLock(ctx, slot.ID, func(lockCtx context.Context) error {
		a, err := s.repo.CommitBooking(lockCtx, BookingCommit{
			IdempotencyKey: req.IdempotencyKey,
			Appointment:    appt,
			Event: EventLog{
				EventType:     EventBookingConfirmed,
				AppointmentID: &appt.ID,
				Payload:       payload,
			},
		})
		if err != nil {
			return err
		}
		committed = a
		return nil
	})
	if lockErr != nil {
		if errors.Is(lockErr, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotContended
		}
		return nil, lockErr
	}

	return committed, nil
}

// committedUnderKey reports whether the idempotency key has a finalized
// commit, returning its appointment when it does.
func (s *Service) committedUnderKey(ctx context.Context, key string) (*Appointment, bool) {
	rec, err := s.repo.GetIdempotencyRecord(ctx, key)
	if err != nil || rec == nil || rec.AppointmentID == uuid.Nil {
		return nil, false
	}
	appt, err := s.repo.GetAppointment(ctx, rec.AppointmentID)
	if err != nil {
		return nil, false
	}
	return appt, true
}

// bookingErrIsFinal reports whether an error must surface to the caller
// rather than be retried. A lost conditional claim is final: retrying the
// same slot cannot win it back.
func bookingErrIsFinal(err error) bool {
	return errors.Is(err, ErrSlotNotFound) ||
		errors.Is(err, ErrScheduleNotFound) ||
		errors.Is(err, ErrSlotTaken) ||
		errors.Is(err, ErrSlotContended) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrAppointmentNotFound)
}

// GetAppointment retrieves a booked appointment by id. Only the booked
// patient, the schedule's practitioner, or a guardian linked to the patient
// may read it.
func (s *Service) GetAppointment(ctx context.Context, principal Principal, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}

	switch principal.Role {
	case RolePatient:
		if principal.ID == appt.PatientID {
			return appt, nil
		}
	case RolePractitioner:
		if principal.ID == appt.PractitionerID {
			return appt, nil
		}
	case RoleGuardian:
		linked, err := s.IsGuardianOf(ctx, principal.ID, appt.PatientID)
		if err != nil {
			return nil, err
		}
		if linked {
			return appt, nil
		}
	}
	return nil, ErrForbidden
}

// ListAppointments returns the appointments the acting principal may see:
// a patient's own, a practitioner's schedule (optionally narrowed to one
// patient), or a linked guardian's dependent. patientID is uuid.Nil when the
// caller did not ask for a specific patient.
func (s *Service) ListAppointments(ctx context.Context, principal Principal, patientID uuid.UUID) ([]Appointment, error) {
	switch principal.Role {
	case RolePatient:
		if patientID != uuid.Nil && patientID != principal.ID {
			return nil, ErrForbidden
		}
		appts, err := s.repo.ListAppointmentsByPatient(ctx, principal.ID)
		if err != nil {
			return nil, fmt.Errorf("list appointments: %w", err)
		}
		return appts, nil
	case RolePractitioner:
		appts, err := s.repo.ListAppointmentsByPractitioner(ctx, principal.ID)
		if err != nil {
			return nil, fmt.Errorf("list appointments: %w", err)
		}
		if patientID == uuid.Nil {
			return appts, nil
		}
		filtered := appts[:0]
		for _, a := range appts {
			if a.PatientID == patientID {
				filtered = append(filtered, a)
			}
		}
		return filtered, nil
	case RoleGuardian:
		if patientID == uuid.Nil {
			return nil, ErrForbidden
		}
		linked, err := s.IsGuardianOf(ctx, principal.ID, patientID)
		if err != nil {
			return nil, err
		}
		if !linked {
			return nil, ErrForbidden
		}
		appts, err := s.repo.ListAppointmentsByPatient(ctx, patientID)
		if err != nil {
			return nil, fmt.Errorf("list appointments: %w", err)
		}
		return appts, nil
	}
	return nil, ErrForbidden
}
