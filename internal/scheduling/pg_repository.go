package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func scanSchedule(row pgx.Row) (*Schedule, error) {
	var s Schedule
	err := row.Scan(
		&s.ID,
		&s.PractitionerID,
		&s.Start,
		&s.End,
		&s.Purpose,
		&s.Comment,
		&s.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	err := row.Scan(
		&s.ID,
		&s.ScheduleID,
		&s.Start,
		&s.End,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID,
		&a.SlotID,
		&a.PatientID,
		&a.PractitionerID,
		&a.Status,
		&a.Reason,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

// Schedules and slots

func (r *PgRepository) CreateSchedule(ctx context.Context, sched *Schedule) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO schedules (id, practitioner_id, start_time, end_time, purpose, comment)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, sched.ID, sched.PractitionerID, sched.Start, sched.End, sched.Purpose, sched.Comment).Scan(&sched.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func (r *PgRepository) GetSchedule(ctx context.Context, id uuid.UUID) (*Schedule, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, practitioner_id, start_time, end_time, purpose, comment, created_at
		FROM schedules
		WHERE id = $1
	`, id)
	return scanSchedule(row)
}

// CreateSlots writes the batch inside one transaction so a partial slot set
// is never visible.
func (r *PgRepository) CreateSlots(ctx context.Context, slots []Slot) error {
	if len(slots) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, s := range slots {
		batch.Queue(`
			INSERT INTO slots (id, schedule_id, start_time, end_time, status)
			VALUES ($1, $2, $3, $4, $5)
		`, s.ID, s.ScheduleID, s.Start, s.End, s.Status)
	}

	br := tx.SendBatch(ctx, batch)
	for range slots {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert slot: %w", err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, schedule_id, start_time, end_time, status, created_at, updated_at
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListSlotsByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.schedule_id, s.start_time, s.end_time, s.status, s.created_at, s.updated_at
		FROM slots s
		JOIN schedules sc ON sc.id = s.schedule_id
		WHERE sc.practitioner_id = $1
		ORDER BY s.start_time ASC
	`, practitionerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSlots(rows)
}

func (r *PgRepository) ListFreeSlots(ctx context.Context, from, to time.Time) ([]Slot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, schedule_id, start_time, end_time, status, created_at, updated_at
		FROM slots
		WHERE status = 'free'
		  AND start_time >= $1
		  AND end_time <= $2
		ORDER BY start_time ASC
	`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSlots(rows)
}

func collectSlots(rows pgx.Rows) ([]Slot, error) {
	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Booking

// CommitBooking runs the whole commit in one transaction: lock the
// idempotency row, conditionally claim the slot, create the appointment and
// the outbox event. The conditional UPDATE is the serialization point for
// concurrent bookings of the same slot.
func (r *PgRepository) CommitBooking(ctx context.Context, commit BookingCommit) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	appt := commit.Appointment

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (idempotency_key, slot_id)
		VALUES ($1, $2)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, commit.IdempotencyKey, appt.SlotID)
	if err != nil {
		return nil, fmt.Errorf("insert idempotency key: %w", err)
	}

	var finalized *uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT appointment_id
		FROM booking_idempotency_keys
		WHERE idempotency_key = $1
		FOR UPDATE
	`, commit.IdempotencyKey).Scan(&finalized)
	if err != nil {
		return nil, fmt.Errorf("lock idempotency key: %w", err)
	}

	if finalized != nil {
		// An earlier attempt of the same logical request already
		// committed. Return its appointment untouched.
		row := tx.QueryRow(ctx, `
			SELECT id, slot_id, patient_id, practitioner_id, status, reason, created_at
			FROM appointments
			WHERE id = $1
		`, *finalized)
		existing, err := scanAppointment(row)
		if err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return existing, nil
	}

	ct, err := tx.Exec(ctx, `
		UPDATE slots
		SET status = 'booked',
		    updated_at = now()
		WHERE id = $1
		  AND status = 'free'
	`, appt.SlotID)
	if err != nil {
		return nil, fmt.Errorf("claim slot: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return nil, ErrSlotTaken
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO appointments (id, slot_id, patient_id, practitioner_id, status, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, appt.ID, appt.SlotID, appt.PatientID, appt.PractitionerID, appt.Status, appt.Reason).Scan(&appt.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	_, err = tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $2,
		    updated_at = now()
		WHERE idempotency_key = $1
	`, commit.IdempotencyKey, appt.ID)
	if err != nil {
		return nil, fmt.Errorf("finalize idempotency key: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload)
		VALUES ($1, $2, $3)
	`, commit.Event.EventType, commit.Event.AppointmentID, commit.Event.Payload)
	if err != nil {
		return nil, fmt.Errorf("insert event log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return appt, nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, slot_id, patient_id, practitioner_id, status, reason, created_at
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, slot_id, patient_id, practitioner_id, status, reason, created_at
		FROM appointments
		WHERE patient_id = $1
		ORDER BY created_at ASC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, slot_id, patient_id, practitioner_id, status, reason, created_at
		FROM appointments
		WHERE practitioner_id = $1
		ORDER BY created_at ASC
	`, practitionerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) GetIdempotencyRecord(ctx context.Context, key string) (*IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var apptID *uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT idempotency_key, slot_id, appointment_id, created_at
		FROM booking_idempotency_keys
		WHERE idempotency_key = $1
	`, key).Scan(&rec.Key, &rec.SlotID, &apptID, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if apptID != nil {
		rec.AppointmentID = *apptID
	}
	return &rec, nil
}

// Guardian links and care teams

func (r *PgRepository) FindGuardianLink(ctx context.Context, guardianID, patientID uuid.UUID) (*GuardianLink, error) {
	var link GuardianLink
	err := r.pool.QueryRow(ctx, `
		SELECT guardian_id, patient_id, created_at
		FROM guardian_links
		WHERE guardian_id = $1 AND patient_id = $2
	`, guardianID, patientID).Scan(&link.GuardianID, &link.PatientID, &link.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

func (r *PgRepository) CreateGuardianLink(ctx context.Context, link GuardianLink) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO guardian_links (guardian_id, patient_id)
		VALUES ($1, $2)
	`, link.GuardianID, link.PatientID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyLinked
		}
		return fmt.Errorf("insert guardian link: %w", err)
	}
	return nil
}

func (r *PgRepository) GetCareTeamByPatient(ctx context.Context, patientID uuid.UUID) (*CareTeam, error) {
	var team CareTeam
	err := r.pool.QueryRow(ctx, `
		SELECT id, patient_id, created_at
		FROM care_teams
		WHERE patient_id = $1
	`, patientID).Scan(&team.ID, &team.PatientID, &team.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &team, nil
}

func (r *PgRepository) CreateCareTeam(ctx context.Context, team *CareTeam) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO care_teams (id, patient_id)
		VALUES ($1, $2)
		RETURNING created_at
	`, team.ID, team.PatientID).Scan(&team.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert care team: %w", err)
	}
	return nil
}

func (r *PgRepository) AddCareTeamMember(ctx context.Context, member CareTeamMember) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO care_team_members (care_team_id, member_id, role)
		VALUES ($1, $2, $3)
	`, member.CareTeamID, member.MemberID, member.Role)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyMember
		}
		return fmt.Errorf("insert care team member: %w", err)
	}
	return nil
}

func (r *PgRepository) ListCareTeamMembers(ctx context.Context, patientID uuid.UUID) ([]CareTeamMember, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT m.care_team_id, m.member_id, m.role, m.created_at
		FROM care_team_members m
		JOIN care_teams t ON t.id = m.care_team_id
		WHERE t.patient_id = $1
		ORDER BY m.created_at ASC
	`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CareTeamMember
	for rows.Next() {
		var m CareTeamMember
		if err := rows.Scan(&m.CareTeamID, &m.MemberID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) ListCareTeamPatients(ctx context.Context, practitionerID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT t.patient_id
		FROM care_team_members m
		JOIN care_teams t ON t.id = m.care_team_id
		WHERE m.member_id = $1 AND m.role = $2
		ORDER BY t.patient_id ASC
	`, practitionerID, RolePractitioner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Outbox

func (r *PgRepository) FindUnpublishedEvents(ctx context.Context, limit int) ([]EventLog, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_type, appointment_id, payload, created_at, published_at
		FROM event_logs
		WHERE published_at IS NULL
		ORDER BY id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []EventLog
	for rows.Next() {
		var ev EventLog
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.AppointmentID, &ev.Payload, &ev.CreatedAt, &ev.PublishedAt); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) MarkEventPublished(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE event_logs
		SET published_at = now()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}
