package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/medrex/rxledger/pkg/types"
)

// CreatePrescription issues a prescription for a registered patient and
// mints its capability token in the same transaction. Ids start at 1.
func (l *Ledger) CreatePrescription(ctx context.Context, caller, patient types.Identity, expiryDate time.Time, contentRef string) (uint64, error) {
	var id uint64
	err := l.update(ctx, caller, true, func(tx *txn) error {
		d, ok := tx.st.Doctors[caller]
		if !ok || !d.ActiveAt(tx.now) {
			return types.NewUnauthorizedError(types.ErrCodeNotActiveDoctor, "caller is not an active doctor")
		}
		if !expiryDate.After(tx.now) {
			return types.NewValidationError(types.ErrCodeInvalidInput, "expiry date should be in future", map[string]interface{}{
				"expiry_date": expiryDate,
			})
		}
		if strings.TrimSpace(contentRef) == "" {
			return types.NewValidationError(types.ErrCodeInvalidInput, "prescription content reference is required", nil)
		}
		if !tx.st.hasRole(patient, types.RolePatient) {
			return types.NewError(types.KindPatientNotRegistered, types.ErrCodePatientNotRegistered, "patient not registered").
				WithDetail("patient", string(patient))
		}

		tx.st.LastPrescriptionID++
		id = tx.st.LastPrescriptionID

		tx.st.Prescriptions[id] = &types.Prescription{
			ID:         id,
			Doctor:     caller,
			Patient:    patient,
			IssueDate:  tx.now,
			ExpiryDate: expiryDate.UTC(),
			ContentRef: contentRef,
		}
		tx.st.PrescriptionsByPatient[patient] = append(tx.st.PrescriptionsByPatient[patient], id)
		tx.st.PrescriptionsByDoctor[caller] = append(tx.st.PrescriptionsByDoctor[caller], id)

		if err := tx.mint(id, patient); err != nil {
			return err
		}

		tx.emit(types.EventPrescriptionCreated, string(patient), map[string]interface{}{
			"prescription_id": id,
			"doctor":          string(caller),
			"expiry_date":     expiryDate.UTC(),
			"content_ref":     contentRef,
		})
		return nil
	})
	return id, err
}

// FulfillPrescription marks a prescription fulfilled by the calling
// pharmacist and burns its token. A prescription can be fulfilled once.
func (l *Ledger) FulfillPrescription(ctx context.Context, caller types.Identity, id uint64) error {
	return l.update(ctx, caller, true, func(tx *txn) error {
		rx, ok := tx.st.Prescriptions[id]
		if !ok {
			return types.NewNotFoundError(types.ErrCodeNotFound, "prescription not found").WithDetail("prescription_id", id)
		}
		if p, ok := tx.st.Pharmacists[caller]; !ok || !p.Verified {
			return types.NewUnauthorizedError(types.ErrCodeNotPharmacist, "not a verified pharmacist")
		}
		if tx.now.After(rx.ExpiryDate) {
			return types.NewError(types.KindExpired, types.ErrCodeExpired, "prescription expired").
				WithDetail("expiry_date", rx.ExpiryDate)
		}
		if rx.IsFulfilled {
			return types.NewError(types.KindAlreadyFulfilled, types.ErrCodeAlreadyFulfilled, "prescription is fulfilled")
		}

		if err := tx.burn(id); err != nil {
			return err
		}
		rx.IsFulfilled = true
		rx.FulfilledBy = caller
		rx.FulfillmentDate = types.TimeAt(tx.now)

		tx.emit(types.EventPrescriptionFulfilled, string(rx.Patient), map[string]interface{}{
			"prescription_id": id,
			"pharmacist":      string(caller),
		})
		return nil
	})
}

// GetPrescription returns the prescription with the given id
func (l *Ledger) GetPrescription(id uint64) (types.Prescription, error) {
	var (
		out types.Prescription
		ok  bool
	)
	l.view(func(st *State, _ time.Time) {
		var rx *types.Prescription
		if rx, ok = st.Prescriptions[id]; ok {
			out = *rx
		}
	})
	if !ok {
		return types.Prescription{}, types.NewNotFoundError(types.ErrCodeNotFound, "prescription not found")
	}
	return out, nil
}

// GetPatientPrescriptions returns the ids issued to patient, oldest first
func (l *Ledger) GetPatientPrescriptions(patient types.Identity) []uint64 {
	var out []uint64
	l.view(func(st *State, _ time.Time) {
		out = append([]uint64{}, st.PrescriptionsByPatient[patient]...)
	})
	return out
}

// GetDoctorPrescriptions returns the ids issued by doctor, oldest first
func (l *Ledger) GetDoctorPrescriptions(doctor types.Identity) []uint64 {
	var out []uint64
	l.view(func(st *State, _ time.Time) {
		out = append([]uint64{}, st.PrescriptionsByDoctor[doctor]...)
	})
	return out
}

// GetPrescriptionCount returns the number of prescriptions ever issued
func (l *Ledger) GetPrescriptionCount() uint64 {
	var n uint64
	l.view(func(st *State, _ time.Time) { n = st.LastPrescriptionID })
	return n
}
