package visit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"diagnosis-engine/internal/bayes"
)

// memoryRepo keeps visits in process memory. Used when the server runs
// without a database and as the store for tests. Honors the same optimistic
// version contract as the postgres repository.
type memoryRepo struct {
	mu     sync.RWMutex
	visits map[uuid.UUID]*Visit
}

func NewMemoryRepository() Repository {
	return &memoryRepo{visits: make(map[uuid.UUID]*Visit)}
}

func (r *memoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*Visit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.visits[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := clone(v)
	return cp, nil
}

func (r *memoryRepo) Save(ctx context.Context, v *Visit) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.visits[v.ID]; ok && existing.Version != v.Version {
		return ErrConflict
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	v.UpdatedAt = time.Now().UTC()
	v.Version++
	r.visits[v.ID] = clone(v)
	return nil
}

func clone(v *Visit) *Visit {
	cp := *v
	cp.Symptoms = append([]string(nil), v.Symptoms...)
	cp.Answers = append([]bayes.Answer(nil), v.Answers...)
	cp.Differential = append([]bayes.DifferentialEntry(nil), v.Differential...)
	cp.SafetyFlags = append([]string(nil), v.SafetyFlags...)
	if v.PrescriptionID != nil {
		pid := *v.PrescriptionID
		cp.PrescriptionID = &pid
	}
	return &cp
}
