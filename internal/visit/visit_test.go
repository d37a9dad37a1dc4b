package visit

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"diagnosis-engine/internal/bayes"
)

func TestMemoryRepoRoundTrip(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	v := New(uuid.New())
	v.FreeText = "headache for two days"
	v.Answers = append(v.Answers, bayes.Answer{QuestionID: "headache_pattern", Value: "dull and constant"})

	require.NoError(t, repo.Save(ctx, v))

	loaded, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, v.FreeText, loaded.FreeText)
	assert.Equal(t, v.Answers, loaded.Answers)
	assert.Equal(t, StatusInProgress, loaded.Status)
	assert.Equal(t, 1, loaded.Version)
}

func TestMemoryRepoNotFound(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.GetByID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepoVersionConflict(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	v := New(uuid.New())
	require.NoError(t, repo.Save(ctx, v))

	first, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	second, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)

	first.FreeText = "writer one"
	require.NoError(t, repo.Save(ctx, first))

	second.FreeText = "writer two"
	assert.ErrorIs(t, repo.Save(ctx, second), ErrConflict)

	loaded, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "writer one", loaded.FreeText)
}

func TestMemoryRepoReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	v := New(uuid.New())
	v.Symptoms = []string{"fever"}
	require.NoError(t, repo.Save(ctx, v))

	loaded, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	loaded.Symptoms[0] = "mutated"

	again, err := repo.GetByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"fever"}, again.Symptoms)
}

func TestAnsweredIDs(t *testing.T) {
	v := New(uuid.New())
	v.Answers = []bayes.Answer{
		{QuestionID: "q1", Value: "yes"},
		{QuestionID: "q2", Value: "no"},
	}

	ids := v.AnsweredIDs()

	assert.True(t, ids["q1"])
	assert.True(t, ids["q2"])
	assert.False(t, ids["q3"])
}

func TestLocksSerializePerVisit(t *testing.T) {
	locks := NewLocks()
	id := uuid.New()

	var mu sync.Mutex
	inCritical := 0
	maxInCritical := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(id)
			defer unlock()

			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			mu.Lock()
			inCritical--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInCritical)
}

func TestLocksIndependentVisits(t *testing.T) {
	locks := NewLocks()

	unlockA := locks.Lock(uuid.New())
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock(uuid.New())
		unlockB()
		close(done)
	}()

	// Holding A must not block B.
	<-done
}
