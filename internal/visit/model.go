package visit

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"diagnosis-engine/internal/bayes"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

var (
	// ErrNotFound indicates an explicit visit id that is absent in the store.
	ErrNotFound = errors.New("visit not found")

	// ErrConflict indicates a lost optimistic-concurrency race: the visit was
	// modified between read and save.
	ErrConflict = errors.New("visit version conflict")
)

// Visit is the durable record of one diagnostic session: the aggregate root
// owned exclusively by the engine.
type Visit struct {
	ID        uuid.UUID `json:"id" db:"id"`
	PatientID uuid.UUID `json:"patient_id" db:"patient_id"`

	// Evidence accumulated over the session.
	FreeText string         `json:"symptom_text" db:"symptom_text"`
	Symptoms []string       `json:"selected_symptoms" db:"selected_symptoms"`
	Answers  []bayes.Answer `json:"answers" db:"answers"`

	Status       Status                    `json:"status" db:"status"`
	Differential []bayes.DifferentialEntry `json:"differential,omitempty" db:"differential"`
	SafetyFlags  []string                  `json:"safety_flags,omitempty" db:"safety_flags"`

	PrescriptionID *uuid.UUID `json:"prescription_id,omitempty" db:"prescription_id"`

	// Version backs the optimistic concurrency check in the store.
	Version   int       `json:"-" db:"version"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// New creates a fresh in-progress visit with a new identity.
func New(patientID uuid.UUID) *Visit {
	now := time.Now().UTC()
	return &Visit{
		ID:        uuid.New(),
		PatientID: patientID,
		Status:    StatusInProgress,
		Answers:   []bayes.Answer{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AnsweredIDs returns the set of question ids already answered in this visit.
func (v *Visit) AnsweredIDs() map[string]bool {
	ids := make(map[string]bool, len(v.Answers))
	for _, a := range v.Answers {
		ids[a.QuestionID] = true
	}
	return ids
}
