package pharmacy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrPrescriptionNotFound = errors.New("prescription not found")

const (
	// PrescriptionStatusIssued marks a prescription that cleared every
	// safety check and is ready for the pharmacy.
	PrescriptionStatusIssued = "issued"
)

// Diagnosis identifies the condition a prescription was written for.
type Diagnosis struct {
	Name       string  `json:"name"`
	ICD10      string  `json:"icd10"`
	Confidence float64 `json:"confidence"`
}

// PrescriptionRecord is created at most once per visit, and only after the
// visit has been finalized.
type PrescriptionRecord struct {
	ID          uuid.UUID    `json:"id" db:"id"`
	VisitID     uuid.UUID    `json:"visit_id" db:"visit_id"`
	PatientID   uuid.UUID    `json:"patient_id" db:"patient_id"`
	Medications []Medication `json:"medications" db:"medications"`
	Diagnosis   Diagnosis    `json:"diagnosis" db:"diagnosis"`
	SafetyFlags []string     `json:"safety_flags,omitempty" db:"safety_flags"`
	Status      string       `json:"status" db:"status"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

type PrescriptionRepository interface {
	Create(ctx context.Context, p *PrescriptionRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*PrescriptionRecord, error)
}

type postgresPrescriptions struct {
	db *sql.DB
}

func NewPrescriptionRepository(db *sql.DB) PrescriptionRepository {
	return &postgresPrescriptions{db: db}
}

func (r *postgresPrescriptions) Create(ctx context.Context, p *PrescriptionRecord) error {
	medsJSON, err := json.Marshal(p.Medications)
	if err != nil {
		return err
	}
	diagnosisJSON, err := json.Marshal(p.Diagnosis)
	if err != nil {
		return err
	}
	flagsJSON, err := json.Marshal(p.SafetyFlags)
	if err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO prescriptions (id, visit_id, patient_id, medications, diagnosis, safety_flags, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.db.ExecContext(ctx, query,
		p.ID, p.VisitID, p.PatientID, medsJSON, diagnosisJSON, flagsJSON, p.Status, p.CreatedAt)
	return err
}

func (r *postgresPrescriptions) GetByID(ctx context.Context, id uuid.UUID) (*PrescriptionRecord, error) {
	query := `SELECT id, visit_id, patient_id, medications, diagnosis, safety_flags, status, created_at
		FROM prescriptions WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	var p PrescriptionRecord
	var medsJSON, diagnosisJSON, flagsJSON []byte
	err := row.Scan(&p.ID, &p.VisitID, &p.PatientID, &medsJSON, &diagnosisJSON, &flagsJSON, &p.Status, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrPrescriptionNotFound
		}
		return nil, err
	}

	if len(medsJSON) > 0 {
		if err := json.Unmarshal(medsJSON, &p.Medications); err != nil {
			return nil, fmt.Errorf("failed to unmarshal medications: %w", err)
		}
	}
	if len(diagnosisJSON) > 0 {
		if err := json.Unmarshal(diagnosisJSON, &p.Diagnosis); err != nil {
			return nil, fmt.Errorf("failed to unmarshal diagnosis: %w", err)
		}
	}
	if len(flagsJSON) > 0 {
		if err := json.Unmarshal(flagsJSON, &p.SafetyFlags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal safety flags: %w", err)
		}
	}
	return &p, nil
}

type memoryPrescriptions struct {
	mu      sync.RWMutex
	records map[uuid.UUID]PrescriptionRecord
}

func NewMemoryPrescriptionRepository() PrescriptionRepository {
	return &memoryPrescriptions{records: make(map[uuid.UUID]PrescriptionRecord)}
}

func (r *memoryPrescriptions) Create(ctx context.Context, p *PrescriptionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	r.records[p.ID] = *p
	return nil
}

func (r *memoryPrescriptions) GetByID(ctx context.Context, id uuid.UUID) (*PrescriptionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.records[id]
	if !ok {
		return nil, ErrPrescriptionNotFound
	}
	cp := p
	return &cp, nil
}
