package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/medrex/rxledger/pkg/logger"
	"github.com/medrex/rxledger/pkg/types"
)

func (s *Service) setupRoutes(exposeMetrics bool) {
	s.router.Handle("/health", s.health.HTTPHandler()).Methods(http.MethodGet)
	if exposeMetrics {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	v1 := s.router.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/doctors", s.handleRegisterDoctor).Methods(http.MethodPost)
	v1.HandleFunc("/doctors", s.handleListDoctors).Methods(http.MethodGet)
	v1.HandleFunc("/doctors/{id}", s.handleGetDoctor).Methods(http.MethodGet)
	v1.HandleFunc("/doctors/{id}", s.handleRevokeDoctor).Methods(http.MethodDelete)
	v1.HandleFunc("/doctors/{id}/active", s.handleIsActive).Methods(http.MethodGet)
	v1.HandleFunc("/doctors/{id}/access", s.handleDoctorAccess).Methods(http.MethodGet)
	v1.HandleFunc("/doctors/{id}/prescriptions", s.handleDoctorPrescriptions).Methods(http.MethodGet)

	v1.HandleFunc("/pharmacists", s.handleRegisterPharmacist).Methods(http.MethodPost)
	v1.HandleFunc("/pharmacists", s.handleListPharmacists).Methods(http.MethodGet)
	v1.HandleFunc("/pharmacists/{id}", s.handleGetPharmacist).Methods(http.MethodGet)
	v1.HandleFunc("/pharmacists/{id}", s.handleRevokePharmacist).Methods(http.MethodDelete)
	v1.HandleFunc("/pharmacists/{id}/verified", s.handleIsVerified).Methods(http.MethodGet)

	v1.HandleFunc("/patients", s.handleRegisterPatient).Methods(http.MethodPost)
	v1.HandleFunc("/patients/me/profile", s.handleUpdateProfile).Methods(http.MethodPut)
	v1.HandleFunc("/patients/{id}", s.handleGetPatient).Methods(http.MethodGet)
	v1.HandleFunc("/patients/{id}/permissions", s.handleActivePermissions).Methods(http.MethodGet)
	v1.HandleFunc("/patients/{id}/prescriptions", s.handlePatientPrescriptions).Methods(http.MethodGet)

	v1.HandleFunc("/identities/{id}/roles", s.handleRoles).Methods(http.MethodGet)
	v1.HandleFunc("/admins", s.handleAddAdmin).Methods(http.MethodPost)
	v1.HandleFunc("/admins/{id}", s.handleRemoveAdmin).Methods(http.MethodDelete)

	v1.HandleFunc("/grants", s.handleGrantAccess).Methods(http.MethodPost)
	v1.HandleFunc("/grants/{requestID:[0-9]+}", s.handleGetGrant).Methods(http.MethodGet)
	v1.HandleFunc("/grants/{requestID:[0-9]+}/extend", s.handleExtendAccess).Methods(http.MethodPost)
	v1.HandleFunc("/grants/{requestID:[0-9]+}/revoke", s.handleRevokeAccess).Methods(http.MethodPost)
	v1.HandleFunc("/access-check", s.handleCheckAccess).Methods(http.MethodGet)

	v1.HandleFunc("/prescriptions", s.handleCreatePrescription).Methods(http.MethodPost)
	v1.HandleFunc("/prescriptions/count", s.handlePrescriptionCount).Methods(http.MethodGet)
	v1.HandleFunc("/prescriptions/{id:[0-9]+}", s.handleGetPrescription).Methods(http.MethodGet)
	v1.HandleFunc("/prescriptions/{id:[0-9]+}/fulfill", s.handleFulfillPrescription).Methods(http.MethodPost)

	v1.HandleFunc("/tokens/base-uri", s.handleSetBaseURI).Methods(http.MethodPut)
	v1.HandleFunc("/tokens/{id:[0-9]+}", s.handleGetToken).Methods(http.MethodGet)
	v1.HandleFunc("/tokens/{id:[0-9]+}/transfer", s.handleTransferToken).Methods(http.MethodPost)

	v1.HandleFunc("/pause", s.handlePauseState).Methods(http.MethodGet)
	v1.HandleFunc("/pause", s.handleTogglePause).Methods(http.MethodPost)

	v1.HandleFunc("/audit/events", s.handleAuditEvents).Methods(http.MethodGet)
}

// Doctors

type registerDoctorRequest struct {
	Identity         types.Identity `json:"identity"`
	LicenseContentID string         `json:"license_content_id"`
	LicenseExpiry    time.Time      `json:"license_expiry"`
	Name             string         `json:"name"`
	Specialization   string         `json:"specialization"`
}

func (s *Service) handleRegisterDoctor(w http.ResponseWriter, r *http.Request) {
	var req registerDoctorRequest
	if err := decodeBody(r, registerDoctorSchema, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	caller := callerFrom(r.Context())
	err := s.run(r.Context(), "register_doctor", caller, func(ctx context.Context) error {
		return s.ledger.RegisterDoctor(ctx, caller, req.Identity, req.LicenseContentID, req.LicenseExpiry, req.Name, req.Specialization)
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	doctor, err := s.ledger.GetDoctor(req.Identity)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, doctor)
}

func (s *Service) handleListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors := s.ledger.ListDoctors()
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"doctors": nonNil(doctors),
		"count":   len(doctors),
	})
}

func (s *Service) handleGetDoctor(w http.ResponseWriter, r *http.Request) {
	doctor, err := s.ledger.GetDoctor(pathIdentity(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, doctor)
}

func (s *Service) handleRevokeDoctor(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	doctor := pathIdentity(r)
	err := s.run(r.Context(), "revoke_doctor", caller, func(ctx context.Context) error {
		return s.ledger.RevokeDoctor(ctx, caller, doctor)
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleIsActive(w http.ResponseWriter, r *http.Request) {
	doctor := pathIdentity(r)
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"identity": doctor,
		"active":   s.ledger.IsActive(doctor),
	})
}

func (s *Service) handleDoctorAccess(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"grants": nonNil(s.ledger.GetDoctorAccess(pathIdentity(r))),
	})
}

func (s *Service) handleDoctorPrescriptions(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"prescription_ids": nonNil(s.ledger.GetDoctorPrescriptions(pathIdentity(r))),
	})
}

// Pharmacists

type registerPharmacistRequest struct {
	Identity     types.Identity `json:"identity"`
	PharmacyID   string         `json:"pharmacy_id"`
	PharmacyName string         `json:"pharmacy_name"`
}

func (s *Service) handleRegisterPharmacist(w http.ResponseWriter, r *http.Request) {
	var req registerPharmacistRequest
	if err := decodeBody(r, registerPharmacistSchema, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	caller := callerFrom(r.Context())
	err := s.run(r.Context(), "register_pharmacist", caller, func(ctx context.Context) error {
		return s.ledger.RegisterPharmacist(ctx, caller, req.Identity, req.PharmacyID, req.PharmacyName)
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	pharmacist, err := s.ledger.GetPharmacist(req.Identity)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, pharmacist)
}

func (s *Service) handleListPharmacists(w http.ResponseWriter, r *http.Request) {
	pharmacists := s.ledger.ListPharmacists()
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"pharmacists": nonNil(pharmacists),
		"count":       len(pharmacists),
	})
}

func (s *Service) handleGetPharmacist(w http.ResponseWriter, r *http.Request) {
	pharmacist, err := s.ledger.GetPharmacist(pathIdentity(r))
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, pharmacist)
}

func (s *Service) handleRevokePharmacist(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	pharmacist := pathIdentity(r)
	err := s.run(r.Context(), "revoke_pharmacist", caller, func(ctx context.Context) error {
		return s.ledger.RevokePharmacist(ctx, caller, pharmacist)
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleIsVerified(w http.ResponseWriter, r *http.Request) {
	pharmacist := pathIdentity(r)
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"identity": pharmacist,
		"verified": s.ledger.IsVerifiedPharmacist(pharmacist),
	})
}

// Patients and roles

type patientProfileRequest struct {
	ProfileContentID string `json:"profile_content_id"`
}

func (s *Service) handleRegisterPatient(w http.ResponseWriter, r *http.Request) {
	var req patientProfileRequest
	if err := decodeBody(r, patientProfileSchema, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	caller := callerFrom(r.Context())
	err := s.run(r.Context(), "register_patient", caller, func(ctx context.Context) error {
		return s.ledger.RegisterPatient(ctx, caller, req.ProfileContentID)
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writePatient(w, r, http.StatusCreated, caller)
}

func (s *Service) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req patientProfileRequest
	if err := decodeBody(r, patientProfileSchema, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	caller := callerFrom(r.Context())
	err := s.run(r.Context(), "update_patient_profile", caller, func(ctx context.Context) error {
		return s.ledger.UpdatePatientProfile(ctx, caller, req.ProfileContentID)
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writePatient(w, r, http.StatusOK, caller)
}

func (s *Service) handleGetPatient(w http.ResponseWriter, r *http.Request) {
	s.writePatient(w, r, http.StatusOK, pathIdentity(r))
}

func (s *Service) writePatient(w http.ResponseWriter, r *http.Request, status int, patient types.Identity) {
	record, err := s.ledger.GetPatient(callerFrom(r.Context()), patient)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSONResponse(w, status, record)
}

func (s *Service) handleActivePermissions(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"grants": nonNil(s.ledger.GetActivePermissions(pathIdentity(r))),
	})
}

func (s *Service) handlePatientPrescriptions(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"prescription_ids": nonNil(s.ledger.GetPatientPrescriptions(pathIdentity(r))),
	})
}

func (s *Service) handleRoles(w http.ResponseWriter, r *http.Request) {
	identity := pathIdentity(r)

	if raw := r.URL.Query().Get("role"); raw != "" {
		role := types.Role(strings.ToLower(raw))
		if !role.Valid() {
			s.writeLedgerError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "unknown role", map[string]interface{}{"role": raw}))
			return
		}
		s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
			"identity": identity,
			"role":     role,
			"has_role": s.ledger.HasRole(identity, role),
		})
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"identity": identity,
		"roles":    nonNil(s.ledger.Roles(identity)),
	})
}

type identityRequest struct {
	Identity types.Identity `json:"identity"`
}

func (s *Service) handleAddAdmin(w http.ResponseWriter, r *http.Request) {
	var req identityRequest
	if err := decodeBody(r, identitySchema, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	caller := callerFrom(r.Context())
	err := s.run(r.Context(), "add_admin", caller, func(ctx context.Context) error {
		return s.ledger.AddAdmin(ctx, caller, req.Identity)
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusCreated, map[string]interface{}{
		"identity": req.Identity,
		"roles":    s.ledger.Roles(req.Identity),
	})
}

func (s *Service) handleRemoveAdmin(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	admin := pathIdentity(r)
	err := s.run(r.Context(), "remove_admin", caller, func(ctx context.Context) error {
		return s.ledger.RemoveAdmin(ctx, caller, admin)
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Grants

type grantAccessRequest struct {
	Doctor          types.Identity `json:"doctor"`
	DataFields      []string       `json:"data_fields"`
	DurationSeconds int64          `json:"duration_seconds"`
}

func (s *Service) handleGrantAccess(w http.ResponseWriter, r *http.Request) {
	var req grantAccessRequest
	if err := decodeBody(r, grantAccessSchema, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	duration, err := secondsToDuration("duration_seconds", req.DurationSeconds)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	caller := callerFrom(r.Context())
	var requestID uint64
	err = s.run(r.Context(), "grant_access", caller, func(ctx context.Context) error {
		var err error
		requestID, err = s.ledger.GrantAccess(ctx, caller, req.Doctor, req.DataFields, duration)
		return err
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeGrant(w, r, http.StatusCreated, requestID)
}

func (s *Service) handleGetGrant(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathUint(r, "requestID")
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeGrant(w, r, http.StatusOK, requestID)
}

type extendAccessRequest struct {
	AdditionalSeconds int64 `json:"additional_seconds"`
}

func (s *Service) handleExtendAccess(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathUint(r, "requestID")
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	var req extendAccessRequest
	if err := decodeBody(r, extendAccessSchema, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	additional, err := secondsToDuration("additional_seconds", req.AdditionalSeconds)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	caller := callerFrom(r.Context())
	err = s.run(r.Context(), "extend_access", caller, func(ctx context.Context) error {
		return s.ledger.ExtendAccess(ctx, caller, requestID, additional)
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeGrant(w, r, http.StatusOK, requestID)
}

func (s *Service) handleRevokeAccess(w http.ResponseWriter, r *http.Request) {
	requestID, err := pathUint(r, "requestID")
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	caller := callerFrom(r.Context())
	err = s.run(r.Context(), "revoke_access", caller, func(ctx context.Context) error {
		return s.ledger.RevokeAccessEarly(ctx, caller, requestID)
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeGrant(w, r, http.StatusOK, requestID)
}

func (s *Service) writeGrant(w http.ResponseWriter, r *http.Request, status int, requestID uint64) {
	grant, err := s.ledger.GetGrant(requestID)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSONResponse(w, status, map[string]interface{}{
		"grant":      grant,
		"is_granted": s.ledger.IsGranted(requestID),
	})
}

func (s *Service) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	patient, doctor, field := q.Get("patient"), q.Get("doctor"), q.Get("field")
	if patient == "" || doctor == "" || field == "" {
		s.writeLedgerError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "patient, doctor and field are required", nil))
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"patient": patient,
		"doctor":  doctor,
		"field":   field,
		"allowed": s.ledger.CheckAccess(types.Identity(patient), types.Identity(doctor), field),
	})
}

// Prescriptions and tokens

type createPrescriptionRequest struct {
	Patient    types.Identity `json:"patient"`
	ExpiryDate time.Time      `json:"expiry_date"`
	ContentRef string         `json:"content_ref"`
}

func (s *Service) handleCreatePrescription(w http.ResponseWriter, r *http.Request) {
	var req createPrescriptionRequest
	if err := decodeBody(r, createPrescriptionSchema, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	caller := callerFrom(r.Context())
	var id uint64
	err := s.run(r.Context(), "create_prescription", caller, func(ctx context.Context) error {
		var err error
		id, err = s.ledger.CreatePrescription(ctx, caller, req.Patient, req.ExpiryDate, req.ContentRef)
		return err
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writePrescription(w, r, http.StatusCreated, id)
}

func (s *Service) handlePrescriptionCount(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"count": s.ledger.GetPrescriptionCount(),
	})
}

func (s *Service) handleGetPrescription(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writePrescription(w, r, http.StatusOK, id)
}

func (s *Service) handleFulfillPrescription(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	caller := callerFrom(r.Context())
	err = s.run(r.Context(), "fulfill_prescription", caller, func(ctx context.Context) error {
		return s.ledger.FulfillPrescription(ctx, caller, id)
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writePrescription(w, r, http.StatusOK, id)
}

func (s *Service) writePrescription(w http.ResponseWriter, r *http.Request, status int, id uint64) {
	rx, err := s.ledger.GetPrescription(id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	response := map[string]interface{}{"prescription": rx}
	if uri, err := s.ledger.TokenURI(id); err == nil {
		response["token_uri"] = uri
	}
	s.writeJSONResponse(w, status, response)
}

func (s *Service) handleGetToken(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	owner, err := s.ledger.OwnerOf(id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	uri, err := s.ledger.TokenURI(id)
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"id":        id,
		"owner":     owner,
		"token_uri": uri,
	})
}

type transferTokenRequest struct {
	To types.Identity `json:"to"`
}

func (s *Service) handleTransferToken(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint(r, "id")
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	var req transferTokenRequest
	if err := decodeBody(r, transferTokenSchema, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	caller := callerFrom(r.Context())
	err = s.run(r.Context(), "transfer_token", caller, func(ctx context.Context) error {
		return s.ledger.TransferToken(ctx, caller, id, req.To)
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type baseURIRequest struct {
	BaseURI string `json:"base_uri"`
}

func (s *Service) handleSetBaseURI(w http.ResponseWriter, r *http.Request) {
	var req baseURIRequest
	if err := decodeBody(r, baseURISchema, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	caller := callerFrom(r.Context())
	err := s.run(r.Context(), "set_token_base_uri", caller, func(ctx context.Context) error {
		return s.ledger.SetTokenBaseURI(ctx, caller, req.BaseURI)
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, req)
}

// Pause and audit

type togglePauseRequest struct {
	DurationHours int `json:"duration_hours"`
}

func (s *Service) handlePauseState(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"state":     s.ledger.PauseState(),
		"effective": s.ledger.EffectivePause(),
	})
}

func (s *Service) handleTogglePause(w http.ResponseWriter, r *http.Request) {
	var req togglePauseRequest
	if err := decodeBody(r, togglePauseSchema, &req); err != nil {
		s.writeLedgerError(w, r, err)
		return
	}

	caller := callerFrom(r.Context())
	var state types.PauseState
	err := s.run(r.Context(), "toggle_pause", caller, func(ctx context.Context) error {
		var err error
		state, err = s.ledger.TogglePause(ctx, caller, req.DurationHours)
		return err
	})
	if err != nil {
		s.writeLedgerError(w, r, err)
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"state":     state,
		"effective": s.ledger.EffectivePause(),
	})
}

// handleAuditEvents serves the journal to admins. source=archive reads the
// long-term store when one is configured.
func (s *Service) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())
	if !s.ledger.HasRole(caller, types.RoleAdmin) {
		s.writeLedgerError(w, r, types.NewUnauthorizedError(types.ErrCodeNotAdmin, "caller is not an admin"))
		return
	}

	q := r.URL.Query()
	filter := &types.AuditFilter{
		Name:    types.EventName(q.Get("name")),
		Actor:   types.Identity(q.Get("actor")),
		Subject: q.Get("subject"),
	}
	if raw := q.Get("after"); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeLedgerError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "invalid after sequence", nil))
			return
		}
		filter.AfterSequence = after
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeLedgerError(w, r, types.NewValidationError(types.ErrCodeInvalidInput, "invalid limit", nil))
			return
		}
		filter.Limit = limit
	}

	var (
		events []types.AuditEvent
		source = "journal"
	)
	if q.Get("source") == "archive" {
		if s.archive == nil {
			s.writeLedgerError(w, r, types.NewNotFoundError(types.ErrCodeNotFound, "no audit archive configured"))
			return
		}
		var err error
		events, err = s.archive.Query(r.Context(), filter)
		if err != nil {
			s.writeLedgerError(w, r, types.NewInternalError("ARCHIVE_QUERY_FAILED", "failed to query audit archive", err))
			return
		}
		source = "archive"
	} else {
		events = s.ledger.Events(filter)
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"events": nonNil(events),
		"count":  len(events),
		"source": source,
	})
}

// Helpers

// pathIdentity returns the {id} path variable; "me" names the caller
func pathIdentity(r *http.Request) types.Identity {
	id := mux.Vars(r)["id"]
	if id == "me" {
		return callerFrom(r.Context())
	}
	return types.Identity(id)
}

func pathUint(r *http.Request, name string) (uint64, error) {
	raw := mux.Vars(r)[name]
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, types.NewValidationError(types.ErrCodeInvalidInput, "invalid "+name, map[string]interface{}{name: raw})
	}
	return v, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// statusFor maps a ledger error kind to an HTTP status
func statusFor(kind types.ErrorKind) int {
	switch kind {
	case types.KindUnauthorized:
		return http.StatusForbidden
	case types.KindSystemPaused:
		return http.StatusServiceUnavailable
	case types.KindAlreadyRegistered, types.KindAlreadyExists, types.KindAlreadyFulfilled, types.KindNonTransferable:
		return http.StatusConflict
	case types.KindNotFound:
		return http.StatusNotFound
	case types.KindInvalidInput, types.KindInvalidTarget, types.KindPatientNotRegistered:
		return http.StatusBadRequest
	case types.KindExpired, types.KindGrantInactive:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Kind      types.ErrorKind        `json:"kind,omitempty"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// writeLedgerError writes err as a structured error response
func (s *Service) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	var le *types.LedgerError
	if !errors.As(err, &le) {
		le = types.NewInternalError(types.ErrCodeInternal, "internal error", err)
	}

	body := errorBody{
		Kind:      le.Kind,
		Code:      le.Code,
		Message:   le.Message,
		Details:   le.Details,
		RequestID: requestIDFrom(r),
	}
	if le.Kind == types.KindInternal {
		s.logger.WithContext(r.Context()).WithError(err).Error("Request failed")
		body.Message = "internal error"
		body.Details = nil
	}
	s.writeJSONResponse(w, statusFor(le.Kind), map[string]interface{}{"error": body})
}

// writeErrorResponse writes a gateway-level error that did not come from the ledger
func (s *Service) writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	s.writeJSONResponse(w, status, map[string]interface{}{
		"error": errorBody{Code: code, Message: message, RequestID: requestIDFrom(r)},
	})
}

func (s *Service) writeJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithComponent("gateway").WithError(err).Error("Failed to encode response")
	}
}

func requestIDFrom(r *http.Request) string {
	id, _ := r.Context().Value(logger.RequestIDKey).(string)
	return id
}
