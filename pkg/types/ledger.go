package types

import "time"

// Identity is the opaque, externally asserted identifier of a caller
type Identity string

// Role represents a membership category in the role registry
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleDoctor     Role = "doctor"
	RolePharmacist Role = "pharmacist"
	RolePatient    Role = "patient"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RolePharmacist, RolePatient:
		return true
	}
	return false
}

// Data field tags a patient can delegate
const (
	FieldName        = "name"
	FieldDateOfBirth = "dob"
	FieldAllergies   = "allergies"
	FieldMedications = "medications"
	FieldConditions  = "conditions"
)

// Doctor is the registry record of a licensed practitioner
type Doctor struct {
	Identity         Identity   `json:"identity"`
	LicenseContentID string     `json:"license_content_id"`
	LicenseExpiry    time.Time  `json:"license_expiry"`
	Name             string     `json:"name"`
	Specialization   string     `json:"specialization"`
	RegisteredAt     time.Time  `json:"registered_at"`
	Revoked          bool       `json:"revoked"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
}

// ActiveAt reports whether the doctor may act at the given instant
func (d *Doctor) ActiveAt(now time.Time) bool {
	return !d.Revoked && now.Before(d.LicenseExpiry)
}

// Pharmacist is the registry record of a dispensing pharmacist
type Pharmacist struct {
	Identity     Identity   `json:"identity"`
	PharmacyID   string     `json:"pharmacy_id"`
	PharmacyName string     `json:"pharmacy_name"`
	Verified     bool       `json:"verified"`
	RegisteredAt time.Time  `json:"registered_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
}

// Patient is the registry record of a self-registered patient
type Patient struct {
	Identity         Identity  `json:"identity"`
	RegisteredAt     time.Time `json:"registered_at"`
	ProfileContentID string    `json:"profile_content_id,omitempty"`
}

// AccessGrant is a patient-issued, time-bounded delegation to a doctor
type AccessGrant struct {
	RequestID  uint64     `json:"request_id"`
	Patient    Identity   `json:"patient"`
	Doctor     Identity   `json:"doctor"`
	DataFields []string   `json:"data_fields"`
	ExpiryTime *time.Time `json:"expiry_time,omitempty"`
	Indefinite bool       `json:"indefinite"`
	IsActive   bool       `json:"is_active"`
	GrantedAt  time.Time  `json:"granted_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
}

// ActiveAt reports whether the grant is in force at the given instant
func (g *AccessGrant) ActiveAt(now time.Time) bool {
	if !g.IsActive {
		return false
	}
	return g.Indefinite || (g.ExpiryTime != nil && now.Before(*g.ExpiryTime))
}

// Covers reports whether the grant includes the given data field
func (g *AccessGrant) Covers(field string) bool {
	for _, f := range g.DataFields {
		if f == field {
			return true
		}
	}
	return false
}

// Prescription is an issued prescription record. Records are never deleted.
type Prescription struct {
	ID              uint64     `json:"id"`
	Doctor          Identity   `json:"doctor"`
	Patient         Identity   `json:"patient"`
	IssueDate       time.Time  `json:"issue_date"`
	ExpiryDate      time.Time  `json:"expiry_date"`
	ContentRef      string     `json:"content_ref"`
	IsFulfilled     bool       `json:"is_fulfilled"`
	FulfilledBy     Identity   `json:"fulfilled_by,omitempty"`
	FulfillmentDate *time.Time `json:"fulfillment_date,omitempty"`
}

// TokenState is the lifecycle state of a capability token
type TokenState string

const (
	TokenOutstanding TokenState = "outstanding"
	TokenBurned      TokenState = "burned"
)

// CapabilityToken is the non-transferable right to fulfill a prescription
type CapabilityToken struct {
	ID       uint64     `json:"id"`
	Owner    Identity   `json:"owner"`
	State    TokenState `json:"state"`
	MintedAt time.Time  `json:"minted_at"`
	BurnedAt *time.Time `json:"burned_at,omitempty"`
}

// PauseState is the stored emergency pause flag and its expiry
type PauseState struct {
	EmergencyPause bool       `json:"emergency_pause"`
	PauseExpiry    *time.Time `json:"pause_expiry,omitempty"`
	ToggledBy      Identity   `json:"toggled_by,omitempty"`
	ToggledAt      *time.Time `json:"toggled_at,omitempty"`
}

// TimeAt returns a pointer to t for optional timestamp fields
func TimeAt(t time.Time) *time.Time {
	return &t
}

// EffectiveAt reports whether the pause is in force at the given instant.
// A stored flag past its expiry reads as unpaused.
func (p PauseState) EffectiveAt(now time.Time) bool {
	return p.EmergencyPause && p.PauseExpiry != nil && now.Before(*p.PauseExpiry)
}
