package postgres

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/internal/repository"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPool подключается к базе из TEST_DATABASE_DSN и накатывает схему.
// Без переменной интеграционные тесты пропускаются.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN is not set")
	}

	ctx := context.Background()
	log := logger.NewNop()

	pool, err := NewConnection(ctx, dsn, 5, log)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool, log))
	_, err = pool.Exec(ctx, `TRUNCATE user_trials, user_subscriptions`)
	require.NoError(t, err)
	return pool
}

func TestTrialRepository_ConcurrentAdmissionRespectsCeiling(t *testing.T) {
	pool := newTestPool(t)
	repo := NewTrialRepository(pool, logger.NewNop())
	ctx := context.Background()

	const maxBeta = 3
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.CreateTrial(ctx, domain.NewTrial(uuid.NewString(), "x@example.com", time.Now()), maxBeta)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	count, err := repo.CountActiveBeta(ctx)
	require.NoError(t, err)
	assert.Equal(t, maxBeta, count)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 10)
}

func TestTrialRepository_Lifecycle(t *testing.T) {
	pool := newTestPool(t)
	repo := NewTrialRepository(pool, logger.NewNop())
	ctx := context.Background()
	userID := uuid.NewString()

	created, err := repo.CreateTrial(ctx, domain.NewTrial(userID, "a@example.com", time.Now()), 100)
	require.NoError(t, err)
	require.True(t, created.IsBetaUser)
	assert.Equal(t, 1, *created.BetaUserNumber)

	_, err = repo.CreateTrial(ctx, domain.NewTrial(userID, "a@example.com", time.Now()), 100)
	assert.ErrorIs(t, err, repository.ErrDuplicate)

	changed, err := repo.Deactivate(ctx, userID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = repo.Deactivate(ctx, userID)
	require.NoError(t, err)
	assert.False(t, changed)

	latest, err := repo.GetLatestByUserID(ctx, userID)
	require.NoError(t, err)
	assert.False(t, latest.IsActive)
	assert.True(t, latest.IsBetaUser)

	_, err = repo.GetActiveByUserID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTrialRepository_DeactivateExpired(t *testing.T) {
	pool := newTestPool(t)
	repo := NewTrialRepository(pool, logger.NewNop())
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		_, err := repo.CreateTrial(ctx, domain.NewTrial(uuid.NewString(), "", now.Add(-15*24*time.Hour)), 100)
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := repo.CreateTrial(ctx, domain.NewTrial(uuid.NewString(), "", now), 100)
		require.NoError(t, err)
	}

	count, err := repo.DeactivateExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSubscriptionRepository_SaveUpdateDelete(t *testing.T) {
	pool := newTestPool(t)
	repo := NewSubscriptionRepository(pool, logger.NewNop())
	ctx := context.Background()
	userID := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)

	sub := &domain.Subscription{
		ID:                 "sub_1",
		UserID:             userID,
		CustomerID:         "cus_1",
		PlanID:             domain.PlanRegularMonthly,
		Status:             domain.SubscriptionStatusActive,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 1, 0),
	}
	require.NoError(t, repo.Save(ctx, sub))

	updated, err := repo.UpdateIfExists(ctx, userID, func(s *domain.Subscription) {
		s.CancelAtPeriodEnd = true
	})
	require.NoError(t, err)
	assert.True(t, updated)

	got, err := repo.GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.True(t, got.CancelAtPeriodEnd)
	assert.Equal(t, domain.PlanRegularMonthly, got.PlanID)

	updated, err = repo.UpdateIfExists(ctx, uuid.NewString(), func(s *domain.Subscription) {})
	require.NoError(t, err)
	assert.False(t, updated)

	require.NoError(t, repo.Delete(ctx, userID))
	_, err = repo.GetByUserID(ctx, userID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
