// Package patient exposes the read model the safety gate needs: allergies,
// current medications and pregnancy status.
package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("patient record not found")

// Record holds the safety-relevant slice of a patient's chart. Allergies is
// free text as entered by the patient or clinic staff.
type Record struct {
	PatientID          uuid.UUID `json:"patient_id" db:"patient_id"`
	Allergies          string    `json:"allergies" db:"allergies"`
	CurrentMedications []string  `json:"current_medications" db:"current_medications"`
	Pregnant           bool      `json:"pregnant" db:"pregnant"`
}

type Reader interface {
	Get(ctx context.Context, patientID uuid.UUID) (*Record, error)
}
