package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/medrex/rxledger/pkg/types"
)

// RegisterDoctor registers or re-licenses a doctor. Only admins may call it.
func (l *Ledger) RegisterDoctor(ctx context.Context, caller, doctor types.Identity, licenseCID string, licenseExpiry time.Time, name, specialization string) error {
	return l.update(ctx, caller, true, func(tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		if strings.TrimSpace(string(doctor)) == "" || strings.TrimSpace(licenseCID) == "" || strings.TrimSpace(name) == "" {
			return types.NewValidationError(types.ErrCodeInvalidInput, "doctor identity, license and name are required", nil)
		}
		if !licenseExpiry.After(tx.now) {
			return types.NewValidationError(types.ErrCodeLicenseExpired, "license expired", map[string]interface{}{
				"license_expiry": licenseExpiry,
			})
		}

		existing, ok := tx.st.Doctors[doctor]
		if ok && existing.ActiveAt(tx.now) {
			return types.NewError(types.KindAlreadyRegistered, types.ErrCodeAlreadyRegistered, "doctor already registered")
		}
		if held, ok := tx.st.exclusiveRoleOf(doctor); ok && held != types.RoleDoctor {
			return types.NewError(types.KindAlreadyRegistered, types.ErrCodeRoleConflict, "identity already holds another role").
				WithDetail("role", string(held))
		}

		tx.st.Doctors[doctor] = &types.Doctor{
			Identity:         doctor,
			LicenseContentID: licenseCID,
			LicenseExpiry:    licenseExpiry.UTC(),
			Name:             name,
			Specialization:   specialization,
			RegisteredAt:     tx.now,
		}
		tx.st.addRole(doctor, types.RoleDoctor)
		if !containsIdentity(tx.st.DoctorSet, doctor) {
			tx.st.DoctorSet = append(tx.st.DoctorSet, doctor)
		}

		tx.emit(types.EventDoctorRegistered, string(doctor), map[string]interface{}{
			"license_content_id": licenseCID,
			"license_expiry":     licenseExpiry.UTC(),
			"name":               name,
			"specialization":     specialization,
		})
		return nil
	})
}

// RevokeDoctor deactivates an active doctor and removes it from the
// enumerable set. A doctor whose license has lapsed is already inactive and
// reads as not found. The record stays available for lookups.
func (l *Ledger) RevokeDoctor(ctx context.Context, caller, doctor types.Identity) error {
	return l.update(ctx, caller, true, func(tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		d, ok := tx.st.Doctors[doctor]
		if !ok || !d.ActiveAt(tx.now) {
			return types.NewNotFoundError(types.ErrCodeNotFound, "not an active doctor")
		}

		d.Revoked = true
		d.RevokedAt = types.TimeAt(tx.now)
		tx.st.removeRole(doctor, types.RoleDoctor)
		tx.st.DoctorSet = removeIdentity(tx.st.DoctorSet, doctor)

		tx.emit(types.EventDoctorRevoked, string(doctor), nil)
		return nil
	})
}

// IsActive reports whether doctor is registered, not revoked and licensed now
func (l *Ledger) IsActive(doctor types.Identity) bool {
	var active bool
	l.view(func(st *State, now time.Time) {
		if d, ok := st.Doctors[doctor]; ok {
			active = d.ActiveAt(now)
		}
	})
	return active
}

// GetDoctor returns the latest doctor record for identity, revoked or not
func (l *Ledger) GetDoctor(doctor types.Identity) (types.Doctor, error) {
	var (
		out types.Doctor
		ok  bool
	)
	l.view(func(st *State, _ time.Time) {
		var d *types.Doctor
		if d, ok = st.Doctors[doctor]; ok {
			out = *d
		}
	})
	if !ok {
		return types.Doctor{}, types.NewNotFoundError(types.ErrCodeNotFound, "doctor not found")
	}
	return out, nil
}

// ListDoctors returns doctors that are active now, in registration order
func (l *Ledger) ListDoctors() []types.Doctor {
	var out []types.Doctor
	l.view(func(st *State, now time.Time) {
		for _, id := range st.DoctorSet {
			if d := st.Doctors[id]; d != nil && d.ActiveAt(now) {
				out = append(out, *d)
			}
		}
	})
	return out
}

// DoctorCount returns the size of the enumerable doctor set
func (l *Ledger) DoctorCount() int {
	var n int
	l.view(func(st *State, _ time.Time) { n = len(st.DoctorSet) })
	return n
}

// RegisterPharmacist registers a verified pharmacist. Only admins may call it.
func (l *Ledger) RegisterPharmacist(ctx context.Context, caller, pharmacist types.Identity, pharmacyID, pharmacyName string) error {
	return l.update(ctx, caller, true, func(tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		if strings.TrimSpace(string(pharmacist)) == "" || strings.TrimSpace(pharmacyID) == "" {
			return types.NewValidationError(types.ErrCodeInvalidInput, "pharmacist identity and pharmacy id are required", nil)
		}

		if p, ok := tx.st.Pharmacists[pharmacist]; ok && p.Verified {
			return types.NewError(types.KindAlreadyRegistered, types.ErrCodeAlreadyRegistered, "pharmacist already registered")
		}
		if held, ok := tx.st.exclusiveRoleOf(pharmacist); ok && held != types.RolePharmacist {
			return types.NewError(types.KindAlreadyRegistered, types.ErrCodeRoleConflict, "identity already holds another role").
				WithDetail("role", string(held))
		}

		tx.st.Pharmacists[pharmacist] = &types.Pharmacist{
			Identity:     pharmacist,
			PharmacyID:   pharmacyID,
			PharmacyName: pharmacyName,
			Verified:     true,
			RegisteredAt: tx.now,
		}
		tx.st.addRole(pharmacist, types.RolePharmacist)
		if !containsIdentity(tx.st.PharmacistSet, pharmacist) {
			tx.st.PharmacistSet = append(tx.st.PharmacistSet, pharmacist)
		}

		tx.emit(types.EventPharmacistRegistered, string(pharmacist), map[string]interface{}{
			"pharmacy_id":   pharmacyID,
			"pharmacy_name": pharmacyName,
		})
		return nil
	})
}

// RevokePharmacist clears a pharmacist's verified flag
func (l *Ledger) RevokePharmacist(ctx context.Context, caller, pharmacist types.Identity) error {
	return l.update(ctx, caller, true, func(tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		p, ok := tx.st.Pharmacists[pharmacist]
		if !ok || !p.Verified {
			return types.NewNotFoundError(types.ErrCodeNotFound, "not a verified pharmacist")
		}

		p.Verified = false
		p.RevokedAt = types.TimeAt(tx.now)
		tx.st.removeRole(pharmacist, types.RolePharmacist)
		tx.st.PharmacistSet = removeIdentity(tx.st.PharmacistSet, pharmacist)

		tx.emit(types.EventPharmacistRevoked, string(pharmacist), nil)
		return nil
	})
}

// IsVerifiedPharmacist reports whether pharmacist is registered and not revoked
func (l *Ledger) IsVerifiedPharmacist(pharmacist types.Identity) bool {
	var verified bool
	l.view(func(st *State, _ time.Time) {
		if p, ok := st.Pharmacists[pharmacist]; ok {
			verified = p.Verified
		}
	})
	return verified
}

// GetPharmacist returns the latest pharmacist record for identity
func (l *Ledger) GetPharmacist(pharmacist types.Identity) (types.Pharmacist, error) {
	var (
		out types.Pharmacist
		ok  bool
	)
	l.view(func(st *State, _ time.Time) {
		var p *types.Pharmacist
		if p, ok = st.Pharmacists[pharmacist]; ok {
			out = *p
		}
	})
	if !ok {
		return types.Pharmacist{}, types.NewNotFoundError(types.ErrCodeNotFound, "pharmacist not found")
	}
	return out, nil
}

// ListPharmacists returns verified pharmacists in registration order
func (l *Ledger) ListPharmacists() []types.Pharmacist {
	var out []types.Pharmacist
	l.view(func(st *State, _ time.Time) {
		for _, id := range st.PharmacistSet {
			if p := st.Pharmacists[id]; p != nil {
				out = append(out, *p)
			}
		}
	})
	return out
}

// PharmacistCount returns the number of verified pharmacists
func (l *Ledger) PharmacistCount() int {
	var n int
	l.view(func(st *State, _ time.Time) { n = len(st.PharmacistSet) })
	return n
}

// RegisterPatient self-registers the caller as a patient. profileCID may be
// empty and set later with UpdatePatientProfile.
func (l *Ledger) RegisterPatient(ctx context.Context, caller types.Identity, profileCID string) error {
	return l.update(ctx, caller, true, func(tx *txn) error {
		if strings.TrimSpace(string(caller)) == "" {
			return types.NewValidationError(types.ErrCodeInvalidInput, "caller identity is required", nil)
		}
		if tx.st.hasRole(caller, types.RolePatient) {
			return types.NewError(types.KindAlreadyRegistered, types.ErrCodeAlreadyRegistered, "patient already registered")
		}
		if held, ok := tx.st.exclusiveRoleOf(caller); ok {
			return types.NewError(types.KindAlreadyRegistered, types.ErrCodeRoleConflict, "identity already holds another role").
				WithDetail("role", string(held))
		}

		tx.st.Patients[caller] = &types.Patient{
			Identity:         caller,
			RegisteredAt:     tx.now,
			ProfileContentID: profileCID,
		}
		tx.st.addRole(caller, types.RolePatient)

		tx.emit(types.EventPatientRegistered, string(caller), map[string]interface{}{
			"profile_content_id": profileCID,
		})
		return nil
	})
}

// UpdatePatientProfile replaces the caller's profile content identifier
func (l *Ledger) UpdatePatientProfile(ctx context.Context, caller types.Identity, profileCID string) error {
	return l.update(ctx, caller, true, func(tx *txn) error {
		if err := tx.requireRole(types.RolePatient, types.ErrCodeNotPatient, "caller is not a registered patient"); err != nil {
			return err
		}
		if strings.TrimSpace(profileCID) == "" {
			return types.NewValidationError(types.ErrCodeInvalidInput, "profile content id is required", nil)
		}

		tx.st.Patients[caller].ProfileContentID = profileCID
		tx.emit(types.EventPatientProfileUpdated, string(caller), map[string]interface{}{
			"profile_content_id": profileCID,
		})
		return nil
	})
}

// GetPatient returns a patient record. The patient, any admin, and doctors
// holding an active grant from the patient may read it.
func (l *Ledger) GetPatient(caller, patient types.Identity) (types.Patient, error) {
	var (
		out types.Patient
		err error
	)
	l.view(func(st *State, now time.Time) {
		p, ok := st.Patients[patient]
		if !ok {
			err = types.NewNotFoundError(types.ErrCodeNotFound, "patient not found")
			return
		}
		if caller != patient && !st.hasRole(caller, types.RoleAdmin) && !st.doctorHasAnyGrant(patient, caller, now) {
			err = types.NewUnauthorizedError(types.ErrCodeUnauthorized, "caller may not read this patient")
			return
		}
		out = *p
	})
	return out, err
}

// AddAdmin grants the admin role. Admin is the only role that may be held
// alongside doctor, pharmacist or patient.
func (l *Ledger) AddAdmin(ctx context.Context, caller, admin types.Identity) error {
	return l.update(ctx, caller, true, func(tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		if strings.TrimSpace(string(admin)) == "" {
			return types.NewValidationError(types.ErrCodeInvalidInput, "admin identity is required", nil)
		}
		if tx.st.hasRole(admin, types.RoleAdmin) {
			return types.NewError(types.KindAlreadyRegistered, types.ErrCodeAlreadyRegistered, "identity is already an admin")
		}

		tx.st.addRole(admin, types.RoleAdmin)
		tx.emit(types.EventAdminAdded, string(admin), nil)
		return nil
	})
}

// RemoveAdmin revokes the admin role. The last admin cannot be removed.
func (l *Ledger) RemoveAdmin(ctx context.Context, caller, admin types.Identity) error {
	return l.update(ctx, caller, true, func(tx *txn) error {
		if err := tx.requireAdmin(); err != nil {
			return err
		}
		if !tx.st.hasRole(admin, types.RoleAdmin) {
			return types.NewNotFoundError(types.ErrCodeNotFound, "identity is not an admin")
		}
		if tx.st.adminCount() == 1 {
			return types.NewValidationError(types.ErrCodeLastAdmin, "cannot remove the last admin", nil)
		}

		tx.st.removeRole(admin, types.RoleAdmin)
		tx.emit(types.EventAdminRemoved, string(admin), nil)
		return nil
	})
}

// HasRole reports whether identity currently holds role
func (l *Ledger) HasRole(identity types.Identity, role types.Role) bool {
	var has bool
	l.view(func(st *State, _ time.Time) { has = st.hasRole(identity, role) })
	return has
}

// Roles returns the roles currently held by identity
func (l *Ledger) Roles(identity types.Identity) []types.Role {
	var out []types.Role
	l.view(func(st *State, _ time.Time) {
		out = append(out, st.rolesOf(identity)...)
	})
	return out
}
