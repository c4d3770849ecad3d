package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
	"github.com/google/uuid"
)

// InMemoryTrialRepository реализация хранилища триалов в памяти.
// Используется в тестах и в локальном запуске без DATABASE_DSN.
type InMemoryTrialRepository struct {
	trials []domain.Trial // в порядке вставки
	mutex  sync.RWMutex
	log    *logger.Logger
}

// NewInMemoryTrialRepository создает новое хранилище триалов в памяти
func NewInMemoryTrialRepository(log *logger.Logger) *InMemoryTrialRepository {
	return &InMemoryTrialRepository{
		log: log,
	}
}

// CreateTrial атомарно распределяет бета-слот и вставляет триал.
// Весь расчет идет под одной блокировкой, поэтому квота не превышается.
func (r *InMemoryTrialRepository) CreateTrial(ctx context.Context, trial domain.Trial, maxBeta int) (domain.Trial, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for _, t := range r.trials {
		if t.UserID == trial.UserID && t.IsActive {
			return domain.Trial{}, ErrDuplicate
		}
	}

	trial.IsBetaUser = false
	trial.BetaUserNumber = nil
	if r.countActiveBetaLocked() < maxBeta {
		next := r.nextBetaNumberLocked()
		trial.IsBetaUser = true
		trial.BetaUserNumber = &next
	}

	if trial.ID == "" {
		trial.ID = uuid.NewString()
	}
	r.trials = append(r.trials, trial)

	r.log.Debugw("Trial stored in memory", "userID", trial.UserID, "isBetaUser", trial.IsBetaUser)
	return trial, nil
}

// GetActiveByUserID возвращает активный триал пользователя
func (r *InMemoryTrialRepository) GetActiveByUserID(ctx context.Context, userID string) (domain.Trial, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for i := len(r.trials) - 1; i >= 0; i-- {
		if r.trials[i].UserID == userID && r.trials[i].IsActive {
			return r.trials[i], nil
		}
	}
	return domain.Trial{}, ErrNotFound
}

// GetLatestByUserID возвращает последний триал пользователя
func (r *InMemoryTrialRepository) GetLatestByUserID(ctx context.Context, userID string) (domain.Trial, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for i := len(r.trials) - 1; i >= 0; i-- {
		if r.trials[i].UserID == userID {
			return r.trials[i], nil
		}
	}
	return domain.Trial{}, ErrNotFound
}

// HasBetaTrial проверяет, был ли у пользователя бета-триал
func (r *InMemoryTrialRepository) HasBetaTrial(ctx context.Context, userID string) (bool, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, t := range r.trials {
		if t.UserID == userID && t.IsBetaUser {
			return true, nil
		}
	}
	return false, nil
}

// Deactivate завершает активный триал пользователя
func (r *InMemoryTrialRepository) Deactivate(ctx context.Context, userID string) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	changed := false
	for i := range r.trials {
		if r.trials[i].UserID == userID && r.trials[i].IsActive {
			r.trials[i].IsActive = false
			r.trials[i].UpdatedAt = time.Now()
			changed = true
		}
	}
	return changed, nil
}

// DeactivateExpired завершает все просроченные триалы
func (r *InMemoryTrialRepository) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	count := 0
	for i := range r.trials {
		if r.trials[i].IsExpiredAt(now) {
			r.trials[i].IsActive = false
			r.trials[i].UpdatedAt = now
			count++
		}
	}
	return count, nil
}

// CountActiveBeta возвращает количество активных бета-триалов
func (r *InMemoryTrialRepository) CountActiveBeta(ctx context.Context) (int, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.countActiveBetaLocked(), nil
}

// ListActive возвращает активные триалы, новые первыми
func (r *InMemoryTrialRepository) ListActive(ctx context.Context) ([]domain.Trial, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	active := make([]domain.Trial, 0, len(r.trials))
	for _, t := range r.trials {
		if t.IsActive {
			active = append(active, t)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	return active, nil
}

func (r *InMemoryTrialRepository) countActiveBetaLocked() int {
	count := 0
	for _, t := range r.trials {
		if t.IsActive && t.IsBetaUser {
			count++
		}
	}
	return count
}

// nextBetaNumberLocked = max(номер)+1, не зависит от того, активны ли триалы.
func (r *InMemoryTrialRepository) nextBetaNumberLocked() int {
	highest := 0
	for _, t := range r.trials {
		if t.BetaUserNumber != nil && *t.BetaUserNumber > highest {
			highest = *t.BetaUserNumber
		}
	}
	return highest + 1
}
