package patient

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

type postgresRepo struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Reader {
	return &postgresRepo{db: db}
}

func (r *postgresRepo) Get(ctx context.Context, patientID uuid.UUID) (*Record, error) {
	query := `SELECT patient_id, allergies, current_medications, pregnant
		FROM patient_records WHERE patient_id = $1`

	row := r.db.QueryRowContext(ctx, query, patientID)

	var rec Record
	var medsJSON []byte
	err := row.Scan(&rec.PatientID, &rec.Allergies, &medsJSON, &rec.Pregnant)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(medsJSON) > 0 {
		if err := json.Unmarshal(medsJSON, &rec.CurrentMedications); err != nil {
			return nil, fmt.Errorf("failed to unmarshal medications: %w", err)
		}
	}
	return &rec, nil
}

// MemoryStore is the in-memory Reader used in demo mode and tests. Put makes
// it seedable.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[uuid.UUID]Record)}
}

func (s *MemoryStore) Get(ctx context.Context, patientID uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[patientID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := rec
	cp.CurrentMedications = append([]string(nil), rec.CurrentMedications...)
	return &cp, nil
}

func (s *MemoryStore) Put(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.PatientID] = rec
}
