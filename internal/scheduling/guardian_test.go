package scheduling

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestLinkPatient_CreatesLinkAndCareTeamEntry(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	guardianID := uuid.New()
	patientID := uuid.New()

	if err := svc.LinkPatient(context.Background(), guardianID, patientID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	linked, err := svc.IsGuardianOf(context.Background(), guardianID, patientID)
	if err != nil {
		t.Fatalf("is guardian of: %v", err)
	}
	if !linked {
		t.Fatalf("link must be visible after LinkPatient")
	}

	members, err := svc.ListCareTeam(context.Background(), patientID)
	if err != nil {
		t.Fatalf("list care team: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("expected 1 care team member, got %d", len(members))
	}
	if members[0].MemberID != guardianID || members[0].Role != RoleGuardian {
		t.Fatalf("expected guardian membership, got %+v", members[0])
	}
}

func TestLinkPatient_DuplicateRejected(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	guardianID := uuid.New()
	patientID := uuid.New()

	if err := svc.LinkPatient(context.Background(), guardianID, patientID); err != nil {
		t.Fatalf("first link: %v", err)
	}
	if err := svc.LinkPatient(context.Background(), guardianID, patientID); !errors.Is(err, ErrAlreadyLinked) {
		t.Fatalf("expected ErrAlreadyLinked, got %v", err)
	}

	members, err := svc.ListCareTeam(context.Background(), patientID)
	if err != nil {
		t.Fatalf("list care team: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("duplicate link must not add a second membership, got %d", len(members))
	}
}

func TestLinkPatient_TwoGuardiansShareOneCareTeam(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	patientID := uuid.New()
	first := uuid.New()
	second := uuid.New()

	if err := svc.LinkPatient(context.Background(), first, patientID); err != nil {
		t.Fatalf("first guardian: %v", err)
	}
	if err := svc.LinkPatient(context.Background(), second, patientID); err != nil {
		t.Fatalf("second guardian: %v", err)
	}

	if len(repo.teams) != 1 {
		t.Fatalf("expected one care team container, got %d", len(repo.teams))
	}
	members, err := svc.ListCareTeam(context.Background(), patientID)
	if err != nil {
		t.Fatalf("list care team: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected both guardians on the team, got %d", len(members))
	}
}

func TestAssignPractitioner_RequiresLink(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	guardianID := uuid.New()
	patientID := uuid.New()
	practitionerID := uuid.New()

	err := svc.AssignPractitioner(context.Background(), guardianID, patientID, practitionerID)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden without link, got %v", err)
	}
	if len(repo.teams) != 0 {
		t.Fatalf("forbidden assignment must not create a care team")
	}
}

func TestAssignPractitioner_ReusesCareTeamContainer(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	guardianID := uuid.New()
	patientID := uuid.New()
	practitionerID := uuid.New()

	if err := svc.LinkPatient(context.Background(), guardianID, patientID); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := svc.AssignPractitioner(context.Background(), guardianID, patientID, practitionerID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	if len(repo.teams) != 1 {
		t.Fatalf("link and assign must share one container, got %d", len(repo.teams))
	}
	members, err := svc.ListCareTeam(context.Background(), patientID)
	if err != nil {
		t.Fatalf("list care team: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected guardian + practitioner, got %d", len(members))
	}
	roles := map[Role]int{}
	for _, m := range members {
		roles[m.Role]++
	}
	if roles[RoleGuardian] != 1 || roles[RolePractitioner] != 1 {
		t.Fatalf("unexpected membership roles: %+v", members)
	}
}

func TestAssignPractitioner_DuplicateMemberRejected(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	guardianID := uuid.New()
	patientID := uuid.New()
	practitionerID := uuid.New()

	if err := svc.LinkPatient(context.Background(), guardianID, patientID); err != nil {
		t.Fatalf("link: %v", err)
	}
	if err := svc.AssignPractitioner(context.Background(), guardianID, patientID, practitionerID); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	err := svc.AssignPractitioner(context.Background(), guardianID, patientID, practitionerID)
	if !errors.Is(err, ErrAlreadyMember) {
		t.Fatalf("expected ErrAlreadyMember, got %v", err)
	}
}

func TestListPatients_PractitionerPanel(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	guardianID := uuid.New()
	patientA := uuid.New()
	patientB := uuid.New()
	practitionerID := uuid.New()

	if err := svc.LinkPatient(context.Background(), guardianID, patientA); err != nil {
		t.Fatalf("link A: %v", err)
	}
	if err := svc.LinkPatient(context.Background(), guardianID, patientB); err != nil {
		t.Fatalf("link B: %v", err)
	}
	if err := svc.AssignPractitioner(context.Background(), guardianID, patientA, practitionerID); err != nil {
		t.Fatalf("assign: %v", err)
	}

	principal := Principal{ID: practitionerID, Role: RolePractitioner}
	ids, err := svc.ListPatients(context.Background(), principal, practitionerID)
	if err != nil {
		t.Fatalf("list patients: %v", err)
	}
	if len(ids) != 1 || ids[0] != patientA {
		t.Fatalf("panel must hold only the assigned patient, got %+v", ids)
	}

	other := Principal{ID: uuid.New(), Role: RolePractitioner}
	if _, err := svc.ListPatients(context.Background(), other, practitionerID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for another practitioner, got %v", err)
	}
	if _, err := svc.ListPatients(context.Background(), Principal{ID: guardianID, Role: RoleGuardian}, practitionerID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for guardian role, got %v", err)
	}
}

func TestIsGuardianOf_NotTransitive(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)
	guardianID := uuid.New()
	patientID := uuid.New()
	other := uuid.New()

	if err := svc.LinkPatient(context.Background(), guardianID, patientID); err != nil {
		t.Fatalf("link: %v", err)
	}

	linked, err := svc.IsGuardianOf(context.Background(), guardianID, other)
	if err != nil {
		t.Fatalf("is guardian of: %v", err)
	}
	if linked {
		t.Fatalf("guardianship must not extend beyond the linked patient")
	}

	reversed, err := svc.IsGuardianOf(context.Background(), patientID, guardianID)
	if err != nil {
		t.Fatalf("is guardian of: %v", err)
	}
	if reversed {
		t.Fatalf("links are directional, patient is not the guardian's guardian")
	}
}

func TestListCareTeam_EmptyWithoutContainer(t *testing.T) {
	repo := newMemRepo()
	svc := newTestService(repo)

	members, err := svc.ListCareTeam(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(members) != 0 {
		t.Fatalf("expected empty care team, got %+v", members)
	}
}
