package types

import "time"

// EventName identifies the kind of audit event
type EventName string

const (
	EventDoctorRegistered      EventName = "DoctorRegistered"
	EventDoctorRevoked         EventName = "DoctorRevoked"
	EventPharmacistRegistered  EventName = "PharmacistRegistered"
	EventPharmacistRevoked     EventName = "PharmacistRevoked"
	EventPatientRegistered     EventName = "PatientRegistered"
	EventPatientProfileUpdated EventName = "PatientProfileUpdated"
	EventAdminAdded            EventName = "AdminAdded"
	EventAdminRemoved          EventName = "AdminRemoved"
	EventAccessGranted         EventName = "AccessGranted"
	EventAccessExtended        EventName = "AccessExtended"
	EventAccessRevoked         EventName = "AccessRevoked"
	EventPrescriptionCreated   EventName = "PrescriptionCreated"
	EventPrescriptionFulfilled EventName = "PrescriptionFulfilled"
	EventTokenMinted           EventName = "TokenMinted"
	EventTokenBurned           EventName = "TokenBurned"
	EventTokenBaseURIUpdated   EventName = "TokenBaseURIUpdated"
	EventPauseToggled          EventName = "PauseToggled"
)

// AuditEvent is one entry of the append-only audit journal
type AuditEvent struct {
	ID        string                 `json:"id"`
	Sequence  uint64                 `json:"sequence"`
	Name      EventName              `json:"name"`
	Actor     Identity               `json:"actor"`
	Subject   string                 `json:"subject"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// AuditFilter narrows an audit journal query
type AuditFilter struct {
	Name          EventName `json:"name,omitempty"`
	Actor         Identity  `json:"actor,omitempty"`
	Subject       string    `json:"subject,omitempty"`
	AfterSequence uint64    `json:"after_sequence,omitempty"`
	Limit         int       `json:"limit,omitempty"`
}

// Matches reports whether the event passes the filter
func (f *AuditFilter) Matches(e *AuditEvent) bool {
	if f == nil {
		return true
	}
	if f.Name != "" && f.Name != e.Name {
		return false
	}
	if f.Actor != "" && f.Actor != e.Actor {
		return false
	}
	if f.Subject != "" && f.Subject != e.Subject {
		return false
	}
	return e.Sequence > f.AfterSequence
}
