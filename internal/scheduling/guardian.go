package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrForbidden deliberately carries no detail about what exists; a denied
// caller learns nothing beyond the denial itself.
var ErrForbidden = errors.New("not permitted")

// IsGuardianOf reports whether a standing GuardianLink exists. The check is a
// direct lookup: guardianship is never transitive through another guardian.
func (s *Service) IsGuardianOf(ctx context.Context, guardianID, patientID uuid.UUID) (bool, error) {
	link, err := s.repo.FindGuardianLink(ctx, guardianID, patientID)
	if err != nil {
		return false, fmt.Errorf("find guardian link: %w", err)
	}
	return link != nil, nil
}

// CanManageSchedule is true only when the principal is the practitioner who
// owns the schedule.
func (s *Service) CanManageSchedule(principal Principal, practitionerID uuid.UUID) bool {
	return principal.Role == RolePractitioner && principal.ID == practitionerID
}

// LinkPatient attaches a patient as a dependent of a guardian. A duplicate
// (guardian, patient) pair is rejected. The guardian joins the patient's care
// team, creating the container first-link-wins if none exists.
func (s *Service) LinkPatient(ctx context.Context, guardianID, patientID uuid.UUID) error {
	existing, err := s.repo.FindGuardianLink(ctx, guardianID, patientID)
	if err != nil {
		return fmt.Errorf("find guardian link: %w", err)
	}
	if existing != nil {
		return ErrAlreadyLinked
	}

	if err := s.repo.CreateGuardianLink(ctx, GuardianLink{GuardianID: guardianID, PatientID: patientID}); err != nil {
		return fmt.Errorf("create guardian link: %w", err)
	}

	if err := s.addToCareTeam(ctx, patientID, guardianID, RoleGuardian); err != nil {
		return err
	}

	s.log.Info().
		Str("guardian_id", guardianID.String()).
		Str("patient_id", patientID.String()).
		Msg("linked patient to guardian")
	return nil
}

// AssignPractitioner adds a practitioner to the patient's care team on behalf
// of a linked guardian.
func (s *Service) AssignPractitioner(ctx context.Context, guardianID, patientID, practitionerID uuid.UUID) error {
	linked, err := s.IsGuardianOf(ctx, guardianID, patientID)
	if err != nil {
		return err
	}
	if !linked {
		return ErrForbidden
	}

	if err := s.addToCareTeam(ctx, patientID, practitionerID, RolePractitioner); err != nil {
		return err
	}

	s.log.Info().
		Str("guardian_id", guardianID.String()).
		Str("patient_id", patientID.String()).
		Str("practitioner_id", practitionerID.String()).
		Msg("assigned practitioner to care team")
	return nil
}

// ListPatients returns the ids of patients whose care team includes the
// practitioner. Only the practitioner may list their own panel.
func (s *Service) ListPatients(ctx context.Context, principal Principal, practitionerID uuid.UUID) ([]uuid.UUID, error) {
	if !s.CanManageSchedule(principal, practitionerID) {
		return nil, ErrForbidden
	}
	ids, err := s.repo.ListCareTeamPatients(ctx, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("list care team patients: %w", err)
	}
	return ids, nil
}

// ListCareTeam returns the patient's care team memberships.
func (s *Service) ListCareTeam(ctx context.Context, patientID uuid.UUID) ([]CareTeamMember, error) {
	members, err := s.repo.ListCareTeamMembers(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list care team: %w", err)
	}
	return members, nil
}

// addToCareTeam uses the patient's existing care team container or creates
// one, then adds the member. Duplicate membership surfaces as ErrAlreadyMember.
func (s *Service) addToCareTeam(ctx context.Context, patientID, memberID uuid.UUID, role Role) error {
	team, err := s.repo.GetCareTeamByPatient(ctx, patientID)
	if err != nil {
		return fmt.Errorf("get care team: %w", err)
	}
	if team == nil {
		team = &CareTeam{ID: uuid.New(), PatientID: patientID}
		if err := s.repo.CreateCareTeam(ctx, team); err != nil {
			// Lost the creation race: another request created the
			// container first. Use theirs.
			created, lookupErr := s.repo.GetCareTeamByPatient(ctx, patientID)
			if lookupErr != nil || created == nil {
				return fmt.Errorf("create care team: %w", err)
			}
			team = created
		}
	}

	member := CareTeamMember{CareTeamID: team.ID, MemberID: memberID, Role: role}
	if err := s.repo.AddCareTeamMember(ctx, member); err != nil {
		if errors.Is(err, ErrAlreadyMember) {
			return ErrAlreadyMember
		}
		return fmt.Errorf("add care team member: %w", err)
	}
	return nil
}
