package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryTrialRepository_BetaQuotaSequential(t *testing.T) {
	repo := NewInMemoryTrialRepository(logger.NewNop())
	ctx := context.Background()
	now := time.Now()

	const maxBeta = 5
	for i := 1; i <= maxBeta+3; i++ {
		trial, err := repo.CreateTrial(ctx, domain.NewTrial(fmt.Sprintf("user-%d", i), "u@example.com", now), maxBeta)
		require.NoError(t, err)

		if i <= maxBeta {
			require.True(t, trial.IsBetaUser, "user %d should be admitted", i)
			require.NotNil(t, trial.BetaUserNumber)
			assert.Equal(t, i, *trial.BetaUserNumber)
		} else {
			assert.False(t, trial.IsBetaUser)
			assert.Nil(t, trial.BetaUserNumber)
		}
	}

	count, err := repo.CountActiveBeta(ctx)
	require.NoError(t, err)
	assert.Equal(t, maxBeta, count)
}

func TestInMemoryTrialRepository_BetaQuotaConcurrent(t *testing.T) {
	repo := NewInMemoryTrialRepository(logger.NewNop())
	ctx := context.Background()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.CreateTrial(ctx, domain.NewTrial(fmt.Sprintf("user-%d", i), "", now), 10)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	count, err := repo.CountActiveBeta(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, count)

	seen := map[int]bool{}
	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	for _, trial := range active {
		if trial.BetaUserNumber != nil {
			assert.False(t, seen[*trial.BetaUserNumber], "duplicate beta number %d", *trial.BetaUserNumber)
			seen[*trial.BetaUserNumber] = true
		}
	}
	assert.Len(t, seen, 10)
}

func TestInMemoryTrialRepository_BetaNumbersKeepGrowingAfterDeactivation(t *testing.T) {
	repo := NewInMemoryTrialRepository(logger.NewNop())
	ctx := context.Background()
	now := time.Now()

	_, err := repo.CreateTrial(ctx, domain.NewTrial("a", "", now), 2)
	require.NoError(t, err)
	_, err = repo.CreateTrial(ctx, domain.NewTrial("b", "", now), 2)
	require.NoError(t, err)

	changed, err := repo.Deactivate(ctx, "a")
	require.NoError(t, err)
	assert.True(t, changed)

	// Слот освободился, но номер не переиспользуется
	trial, err := repo.CreateTrial(ctx, domain.NewTrial("c", "", now), 2)
	require.NoError(t, err)
	require.True(t, trial.IsBetaUser)
	assert.Equal(t, 3, *trial.BetaUserNumber)

	hasBeta, err := repo.HasBetaTrial(ctx, "a")
	require.NoError(t, err)
	assert.True(t, hasBeta, "deactivation must not clear the beta grant")
}

func TestInMemoryTrialRepository_DuplicateActiveTrial(t *testing.T) {
	repo := NewInMemoryTrialRepository(logger.NewNop())
	ctx := context.Background()

	_, err := repo.CreateTrial(ctx, domain.NewTrial("dup", "", time.Now()), 100)
	require.NoError(t, err)

	_, err = repo.CreateTrial(ctx, domain.NewTrial("dup", "", time.Now()), 100)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestInMemoryTrialRepository_DeactivateExpired(t *testing.T) {
	repo := NewInMemoryTrialRepository(logger.NewNop())
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		_, err := repo.CreateTrial(ctx, domain.NewTrial(fmt.Sprintf("old-%d", i), "", now.Add(-20*24*time.Hour)), 100)
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := repo.CreateTrial(ctx, domain.NewTrial(fmt.Sprintf("new-%d", i), "", now), 100)
		require.NoError(t, err)
	}

	count, err := repo.DeactivateExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	count, err = repo.DeactivateExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestInMemoryTrialRepository_GetLatestIncludesInactive(t *testing.T) {
	repo := NewInMemoryTrialRepository(logger.NewNop())
	ctx := context.Background()

	_, err := repo.CreateTrial(ctx, domain.NewTrial("u", "", time.Now()), 100)
	require.NoError(t, err)
	_, err = repo.Deactivate(ctx, "u")
	require.NoError(t, err)

	_, err = repo.GetActiveByUserID(ctx, "u")
	assert.ErrorIs(t, err, ErrNotFound)

	latest, err := repo.GetLatestByUserID(ctx, "u")
	require.NoError(t, err)
	assert.False(t, latest.IsActive)
}
