package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidRange    = errors.New("window end must be after window start")
	ErrInvalidDuration = errors.New("slot duration must be a positive whole number of minutes")
)

// GenerateSlots turns a declared window into bookable units. In availability
// mode it emits free slots of slotLen back to back from the window start; a
// remainder shorter than slotLen is dropped. In time-off mode it emits a
// single busy slot spanning the whole window and ignores slotLen.
func GenerateSlots(scheduleID uuid.UUID, window Window, purpose SchedulePurpose, slotLen time.Duration) ([]Slot, error) {
	if !window.End.After(window.Start) {
		return nil, ErrInvalidRange
	}

	if purpose == PurposeTimeOff {
		return []Slot{{
			ID:         uuid.New(),
			ScheduleID: scheduleID,
			Start:      window.Start,
			End:        window.End,
			Status:     SlotBusy,
		}}, nil
	}

	if slotLen <= 0 || slotLen%time.Minute != 0 {
		return nil, ErrInvalidDuration
	}

	var slots []Slot
	for cursor := window.Start; ; {
		next := cursor.Add(slotLen)
		if next.After(window.End) {
			break
		}
		slots = append(slots, Slot{
			ID:         uuid.New(),
			ScheduleID: scheduleID,
			Start:      cursor,
			End:        next,
			Status:     SlotFree,
		})
		cursor = next
	}
	return slots, nil
}

// PublishAvailability declares open hours for a practitioner and persists the
// generated free slots. Only the practitioner may publish their own schedule.
func (s *Service) PublishAvailability(ctx context.Context, principal Principal, practitionerID uuid.UUID, window Window, slotLen time.Duration) (int, error) {
	return s.publishWindow(ctx, principal, practitionerID, window, PurposeAvailability, slotLen, "availability posted by practitioner")
}

// PublishTimeOff declares PTO: a single busy slot covering the window, never
// eligible for booking.
func (s *Service) PublishTimeOff(ctx context.Context, principal Principal, practitionerID uuid.UUID, window Window) (int, error) {
	return s.publishWindow(ctx, principal, practitionerID, window, PurposeTimeOff, 0, "PTO/time off")
}

func (s *Service) publishWindow(ctx context.Context, principal Principal, practitionerID uuid.UUID, window Window, purpose SchedulePurpose, slotLen time.Duration, comment string) (int, error) {
	if !s.CanManageSchedule(principal, practitionerID) {
		return 0, ErrForbidden
	}

	sched := &Schedule{
		ID:             uuid.New(),
		PractitionerID: practitionerID,
		Start:          window.Start,
		End:            window.End,
		Purpose:        purpose,
		Comment:        comment,
	}

	// Validate before any write.
	slots, err := GenerateSlots(sched.ID, window, purpose, slotLen)
	if err != nil {
		return 0, err
	}

	if err := s.repo.CreateSchedule(ctx, sched); err != nil {
		return 0, fmt.Errorf("create schedule: %w", err)
	}
	if err := s.repo.CreateSlots(ctx, slots); err != nil {
		return 0, fmt.Errorf("create slots: %w", err)
	}

	s.log.Info().
		Str("schedule_id", sched.ID.String()).
		Str("practitioner_id", practitionerID.String()).
		Str("purpose", string(purpose)).
		Int("slots", len(slots)).
		Msg("published schedule window")

	return len(slots), nil
}

// SearchFreeSlots lists free slots in [from, to] ordered by start time.
func (s *Service) SearchFreeSlots(ctx context.Context, from, to time.Time) ([]Slot, error) {
	if !to.After(from) {
		return nil, ErrInvalidRange
	}
	slots, err := s.repo.ListFreeSlots(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list free slots: %w", err)
	}
	return slots, nil
}
