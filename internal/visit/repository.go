package visit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Visit, error)
	// Save persists the visit with an optimistic version check: the write
	// only lands if the stored version still matches the loaded one.
	// Returns ErrConflict otherwise. Version is bumped on success.
	Save(ctx context.Context, v *Visit) error
}

type postgresRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	query := `SELECT id, patient_id, symptom_text, selected_symptoms, answers, status,
		differential, safety_flags, prescription_id, version, created_at, updated_at
		FROM visits WHERE id = $1`

	row := r.db.QueryRowContext(ctx, query, id)

	var v Visit
	var symptomsJSON, answersJSON, differentialJSON, flagsJSON []byte
	var prescriptionID sql.NullString

	err := row.Scan(
		&v.ID,
		&v.PatientID,
		&v.FreeText,
		&symptomsJSON,
		&answersJSON,
		&v.Status,
		&differentialJSON,
		&flagsJSON,
		&prescriptionID,
		&v.Version,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if len(symptomsJSON) > 0 {
		if err := json.Unmarshal(symptomsJSON, &v.Symptoms); err != nil {
			return nil, fmt.Errorf("failed to unmarshal symptoms: %w", err)
		}
	}
	if len(answersJSON) > 0 {
		if err := json.Unmarshal(answersJSON, &v.Answers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal answers: %w", err)
		}
	}
	if len(differentialJSON) > 0 {
		if err := json.Unmarshal(differentialJSON, &v.Differential); err != nil {
			return nil, fmt.Errorf("failed to unmarshal differential: %w", err)
		}
	}
	if len(flagsJSON) > 0 {
		if err := json.Unmarshal(flagsJSON, &v.SafetyFlags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal safety flags: %w", err)
		}
	}
	if prescriptionID.Valid {
		pid, err := uuid.Parse(prescriptionID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid prescription id: %w", err)
		}
		v.PrescriptionID = &pid
	}

	return &v, nil
}

func (r *postgresRepo) Save(ctx context.Context, v *Visit) error {
	symptomsJSON, err := json.Marshal(v.Symptoms)
	if err != nil {
		return err
	}
	answersJSON, err := json.Marshal(v.Answers)
	if err != nil {
		return err
	}
	differentialJSON, err := json.Marshal(v.Differential)
	if err != nil {
		return err
	}
	flagsJSON, err := json.Marshal(v.SafetyFlags)
	if err != nil {
		return err
	}

	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	v.UpdatedAt = time.Now().UTC()

	var prescriptionID interface{}
	if v.PrescriptionID != nil {
		prescriptionID = v.PrescriptionID.String()
	}

	// The ON CONFLICT guard only updates when the stored version matches the
	// version this copy was loaded with. A concurrent writer bumps the
	// version first, so the slower write affects zero rows.
	query := `
		INSERT INTO visits (id, patient_id, symptom_text, selected_symptoms, answers,
			status, differential, safety_flags, prescription_id, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10 + 1, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			symptom_text = EXCLUDED.symptom_text,
			selected_symptoms = EXCLUDED.selected_symptoms,
			answers = EXCLUDED.answers,
			status = EXCLUDED.status,
			differential = EXCLUDED.differential,
			safety_flags = EXCLUDED.safety_flags,
			prescription_id = EXCLUDED.prescription_id,
			version = visits.version + 1,
			updated_at = EXCLUDED.updated_at
		WHERE visits.version = $10
	`
	res, err := r.db.ExecContext(ctx, query,
		v.ID, v.PatientID, v.FreeText, symptomsJSON, answersJSON,
		v.Status, differentialJSON, flagsJSON, prescriptionID,
		v.Version, v.CreatedAt, v.UpdatedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrConflict
	}
	v.Version++
	return nil
}
