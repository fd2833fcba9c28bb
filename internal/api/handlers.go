package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/carebridge/scheduling/internal/scheduling"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// principalFrom resolves the acting principal from request headers. Token
// verification happens upstream; by the time a request reaches the core the
// identity is already authenticated.
func principalFrom(r *http.Request) (scheduling.Principal, bool) {
	id, err := uuid.Parse(r.Header.Get("X-Principal-ID"))
	if err != nil {
		return scheduling.Principal{}, false
	}
	role := scheduling.Role(r.Header.Get("X-Principal-Role"))
	switch role {
	case scheduling.RolePractitioner, scheduling.RolePatient, scheduling.RoleGuardian:
		return scheduling.Principal{ID: id, Role: role}, true
	}
	return scheduling.Principal{}, false
}

func parseWindow(start, end string) (scheduling.Window, error) {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return scheduling.Window{}, err
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return scheduling.Window{}, err
	}
	return scheduling.Window{Start: s, End: e}, nil
}

func publishAvailabilityHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFrom(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_principal", "X-Principal-ID and X-Principal-Role headers are required")
			return
		}

		var req PublishAvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}

		window, err := parseWindow(req.Start, req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_window", "start and end must be RFC3339 timestamps")
			return
		}

		created, err := svc.PublishAvailability(r.Context(), principal, practitionerID, window, time.Duration(req.SlotMinutes)*time.Minute)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, PublishResponse{SlotsCreated: created})
	}
}

func publishTimeOffHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFrom(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_principal", "X-Principal-ID and X-Principal-Role headers are required")
			return
		}

		var req PublishTimeOffRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}

		window, err := parseWindow(req.Start, req.End)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_window", "start and end must be RFC3339 timestamps")
			return
		}

		created, err := svc.PublishTimeOff(r.Context(), principal, practitionerID, window)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, PublishResponse{SlotsCreated: created})
	}
}

func bookSlotHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFrom(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_principal", "X-Principal-ID and X-Principal-Role headers are required")
			return
		}

		var req BookSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		// Patients book for themselves; the body field is for guardians.
		patientID := principal.ID
		if req.PatientID != "" {
			patientID, err = uuid.Parse(req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
		}

		// The key is the caller's retry token; generating one here would
		// make their retries look like fresh requests.
		key := r.Header.Get("Idempotency-Key")
		if key == "" {
			key = req.IdempotencyKey
		}

		appt, err := svc.Book(r.Context(), scheduling.BookingRequest{
			SlotID:         slotID,
			PatientID:      patientID,
			Principal:      principal,
			Reason:         req.Reason,
			IdempotencyKey: key,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFrom(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_principal", "X-Principal-ID and X-Principal-Role headers are required")
			return
		}

		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), principal, id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFrom(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_principal", "X-Principal-ID and X-Principal-Role headers are required")
			return
		}

		patientID := uuid.Nil
		if raw := r.URL.Query().Get("patient_id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			patientID = id
		}

		appts, err := svc.ListAppointments(r.Context(), principal, patientID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func listPractitionerPatientsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := principalFrom(r)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_principal", "X-Principal-ID and X-Principal-Role headers are required")
			return
		}

		practitionerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "id must be a valid UUID")
			return
		}

		ids, err := svc.ListPatients(r.Context(), principal, practitionerID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]PatientRef, 0, len(ids))
		for _, id := range ids {
			resp = append(resp, PatientRef{PatientID: id})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func searchFreeSlotsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window, err := parseWindow(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_window", "from and to must be RFC3339 timestamps")
			return
		}

		slots, err := svc.SearchFreeSlots(r.Context(), window.Start, window.End)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]SlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, SlotResponse{
				ID:         s.ID,
				ScheduleID: s.ScheduleID,
				Start:      s.Start,
				End:        s.End,
				Status:     string(s.Status),
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func mergedScheduleHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "id must be a valid UUID")
			return
		}

		blocks, err := svc.ListMergedSchedule(r.Context(), practitionerID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]BlockResponse, 0, len(blocks))
		for _, b := range blocks {
			resp = append(resp, BlockResponse{Start: b.Start, End: b.End, Status: string(b.Status)})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func linkPatientHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guardianID, ok := guardianFromPath(w, r)
		if !ok {
			return
		}

		var req LinkPatientRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}

		if err := svc.LinkPatient(r.Context(), guardianID, patientID); err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"message": "patient linked"})
	}
}

func assignPractitionerHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		guardianID, ok := guardianFromPath(w, r)
		if !ok {
			return
		}

		var req AssignPractitionerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}

		if err := svc.AssignPractitioner(r.Context(), guardianID, patientID, practitionerID); err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"message": "practitioner assigned"})
	}
}

func listCareTeamHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		members, err := svc.ListCareTeam(r.Context(), patientID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]CareTeamMemberResponse, 0, len(members))
		for _, m := range members {
			resp = append(resp, CareTeamMemberResponse{MemberID: m.MemberID, Role: string(m.Role)})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// guardianFromPath checks that the acting principal is the guardian named in
// the URL. Acting on another guardian's behalf is denied without detail.
func guardianFromPath(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	principal, ok := principalFrom(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_principal", "X-Principal-ID and X-Principal-Role headers are required")
		return uuid.Nil, false
	}

	guardianID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_guardian_id", "id must be a valid UUID")
		return uuid.Nil, false
	}

	if principal.Role != scheduling.RoleGuardian || principal.ID != guardianID {
		writeError(w, http.StatusForbidden, "forbidden", "not permitted")
		return uuid.Nil, false
	}

	return guardianID, true
}

func toAppointmentResponse(appt *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:             appt.ID,
		SlotID:         appt.SlotID,
		PatientID:      appt.PatientID,
		PractitionerID: appt.PractitionerID,
		Status:         string(appt.Status),
		Reason:         appt.Reason,
		CreatedAt:      appt.CreatedAt,
	}
}

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrInvalidRange):
		writeError(w, http.StatusBadRequest, "invalid_range", err.Error())
	case errors.Is(err, scheduling.ErrInvalidDuration):
		writeError(w, http.StatusBadRequest, "invalid_duration", err.Error())
	case errors.Is(err, scheduling.ErrMissingIdempotencyKey):
		writeError(w, http.StatusBadRequest, "missing_idempotency_key", err.Error())
	case errors.Is(err, scheduling.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "not permitted")
	case errors.Is(err, scheduling.ErrSlotNotFound):
		writeError(w, http.StatusNotFound, "slot_not_found", err.Error())
	case errors.Is(err, scheduling.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, scheduling.ErrSlotContended):
		writeError(w, http.StatusConflict, "slot_contended", err.Error())
	case errors.Is(err, scheduling.ErrAlreadyLinked):
		writeError(w, http.StatusConflict, "already_linked", err.Error())
	case errors.Is(err, scheduling.ErrAlreadyMember):
		writeError(w, http.StatusConflict, "already_member", err.Error())
	case errors.Is(err, scheduling.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", "temporary store failure, retry with the same idempotency key")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
