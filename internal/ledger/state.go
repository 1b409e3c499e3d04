package ledger

import (
	"github.com/medrex/rxledger/pkg/types"
)

// State is the single owning aggregate behind the ledger. Writers work on a
// clone and swap it in on commit; readers see whichever state was last
// committed.
type State struct {
	Roles map[types.Identity][]types.Role `json:"roles"`

	Doctors       map[types.Identity]*types.Doctor     `json:"doctors"`
	DoctorSet     []types.Identity                     `json:"doctor_set"`
	Pharmacists   map[types.Identity]*types.Pharmacist `json:"pharmacists"`
	PharmacistSet []types.Identity                     `json:"pharmacist_set"`
	Patients      map[types.Identity]*types.Patient    `json:"patients"`

	Grants          map[uint64]*types.AccessGrant `json:"grants"`
	GrantsByPatient map[types.Identity][]uint64   `json:"grants_by_patient"`
	GrantsByDoctor  map[types.Identity][]uint64   `json:"grants_by_doctor"`
	LastRequestID   uint64                        `json:"last_request_id"`

	Prescriptions          map[uint64]*types.Prescription `json:"prescriptions"`
	PrescriptionsByPatient map[types.Identity][]uint64    `json:"prescriptions_by_patient"`
	PrescriptionsByDoctor  map[types.Identity][]uint64    `json:"prescriptions_by_doctor"`
	LastPrescriptionID     uint64                         `json:"last_prescription_id"`

	Tokens       map[uint64]*types.CapabilityToken `json:"tokens"`
	TokenBaseURI string                            `json:"token_base_uri"`

	Pause types.PauseState `json:"pause"`

	// Journal is persisted event by event, not as part of the snapshot.
	Journal      []types.AuditEvent `json:"-"`
	LastSequence uint64             `json:"last_sequence"`
}

// NewState returns an empty state
func NewState() *State {
	return &State{
		Roles:                  make(map[types.Identity][]types.Role),
		Doctors:                make(map[types.Identity]*types.Doctor),
		Pharmacists:            make(map[types.Identity]*types.Pharmacist),
		Patients:               make(map[types.Identity]*types.Patient),
		Grants:                 make(map[uint64]*types.AccessGrant),
		GrantsByPatient:        make(map[types.Identity][]uint64),
		GrantsByDoctor:         make(map[types.Identity][]uint64),
		Prescriptions:          make(map[uint64]*types.Prescription),
		PrescriptionsByPatient: make(map[types.Identity][]uint64),
		PrescriptionsByDoctor:  make(map[types.Identity][]uint64),
		Tokens:                 make(map[uint64]*types.CapabilityToken),
	}
}

// normalize fills nil maps left by decoding an older or partial snapshot
func (s *State) normalize() {
	empty := NewState()
	if s.Roles == nil {
		s.Roles = empty.Roles
	}
	if s.Doctors == nil {
		s.Doctors = empty.Doctors
	}
	if s.Pharmacists == nil {
		s.Pharmacists = empty.Pharmacists
	}
	if s.Patients == nil {
		s.Patients = empty.Patients
	}
	if s.Grants == nil {
		s.Grants = empty.Grants
	}
	if s.GrantsByPatient == nil {
		s.GrantsByPatient = empty.GrantsByPatient
	}
	if s.GrantsByDoctor == nil {
		s.GrantsByDoctor = empty.GrantsByDoctor
	}
	if s.Prescriptions == nil {
		s.Prescriptions = empty.Prescriptions
	}
	if s.PrescriptionsByPatient == nil {
		s.PrescriptionsByPatient = empty.PrescriptionsByPatient
	}
	if s.PrescriptionsByDoctor == nil {
		s.PrescriptionsByDoctor = empty.PrescriptionsByDoctor
	}
	if s.Tokens == nil {
		s.Tokens = empty.Tokens
	}
}

// clone deep-copies every mutable record. Data field slices, audit payloads
// and journal entries below len(Journal) are never mutated in place, so they
// are shared.
func (s *State) clone() *State {
	c := &State{
		Roles:                  make(map[types.Identity][]types.Role, len(s.Roles)),
		Doctors:                make(map[types.Identity]*types.Doctor, len(s.Doctors)),
		DoctorSet:              append([]types.Identity(nil), s.DoctorSet...),
		Pharmacists:            make(map[types.Identity]*types.Pharmacist, len(s.Pharmacists)),
		PharmacistSet:          append([]types.Identity(nil), s.PharmacistSet...),
		Patients:               make(map[types.Identity]*types.Patient, len(s.Patients)),
		Grants:                 make(map[uint64]*types.AccessGrant, len(s.Grants)),
		GrantsByPatient:        cloneIndex(s.GrantsByPatient),
		GrantsByDoctor:         cloneIndex(s.GrantsByDoctor),
		LastRequestID:          s.LastRequestID,
		Prescriptions:          make(map[uint64]*types.Prescription, len(s.Prescriptions)),
		PrescriptionsByPatient: cloneIndex(s.PrescriptionsByPatient),
		PrescriptionsByDoctor:  cloneIndex(s.PrescriptionsByDoctor),
		LastPrescriptionID:     s.LastPrescriptionID,
		Tokens:                 make(map[uint64]*types.CapabilityToken, len(s.Tokens)),
		TokenBaseURI:           s.TokenBaseURI,
		Pause:                  s.Pause,
		Journal:                s.Journal,
		LastSequence:           s.LastSequence,
	}

	for id, roles := range s.Roles {
		c.Roles[id] = append([]types.Role(nil), roles...)
	}
	for id, d := range s.Doctors {
		cp := *d
		c.Doctors[id] = &cp
	}
	for id, p := range s.Pharmacists {
		cp := *p
		c.Pharmacists[id] = &cp
	}
	for id, p := range s.Patients {
		cp := *p
		c.Patients[id] = &cp
	}
	for id, g := range s.Grants {
		cp := *g
		c.Grants[id] = &cp
	}
	for id, p := range s.Prescriptions {
		cp := *p
		c.Prescriptions[id] = &cp
	}
	for id, t := range s.Tokens {
		cp := *t
		c.Tokens[id] = &cp
	}

	return c
}

func cloneIndex(idx map[types.Identity][]uint64) map[types.Identity][]uint64 {
	c := make(map[types.Identity][]uint64, len(idx))
	for k, v := range idx {
		c[k] = append([]uint64(nil), v...)
	}
	return c
}

func (s *State) rolesOf(id types.Identity) []types.Role {
	return s.Roles[id]
}

func (s *State) hasRole(id types.Identity, role types.Role) bool {
	return Authorize(s.Roles[id], role)
}

func (s *State) addRole(id types.Identity, role types.Role) {
	if s.hasRole(id, role) {
		return
	}
	s.Roles[id] = append(s.Roles[id], role)
}

func (s *State) removeRole(id types.Identity, role types.Role) {
	roles := s.Roles[id]
	kept := roles[:0]
	for _, r := range roles {
		if r != role {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 {
		delete(s.Roles, id)
		return
	}
	s.Roles[id] = kept
}

// exclusiveRoleOf returns the doctor/pharmacist/patient role held by id, if any
func (s *State) exclusiveRoleOf(id types.Identity) (types.Role, bool) {
	for _, r := range s.Roles[id] {
		if isExclusive(r) {
			return r, true
		}
	}
	return "", false
}

func (s *State) adminCount() int {
	n := 0
	for _, roles := range s.Roles {
		if Authorize(roles, types.RoleAdmin) {
			n++
		}
	}
	return n
}

func removeIdentity(set []types.Identity, id types.Identity) []types.Identity {
	for i, v := range set {
		if v == id {
			return append(set[:i], set[i+1:]...)
		}
	}
	return set
}

func containsIdentity(set []types.Identity, id types.Identity) bool {
	for _, v := range set {
		if v == id {
			return true
		}
	}
	return false
}
