package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Dhoini/glucose-gateway/internal/domain"
	"github.com/Dhoini/glucose-gateway/internal/kafka"
	"github.com/Dhoini/glucose-gateway/internal/metrics"
	"github.com/Dhoini/glucose-gateway/internal/repository"
	"github.com/Dhoini/glucose-gateway/pkg/logger"
)

// TrialService управляет пробными периодами и бета-квотой.
type TrialService struct {
	repo     repository.TrialRepository
	producer kafka.Producer
	metrics  metrics.GatewayMetrics
	maxBeta  int
	now      func() time.Time
	log      *logger.Logger
}

// NewTrialService создает новый сервис триалов
func NewTrialService(
	repo repository.TrialRepository,
	producer kafka.Producer,
	gatewayMetrics metrics.GatewayMetrics,
	log *logger.Logger,
) *TrialService {
	return &TrialService{
		repo:     repo,
		producer: producer,
		metrics:  gatewayMetrics,
		maxBeta:  domain.MaxBetaUsers,
		now:      time.Now,
		log:      log.Named("trial"),
	}
}

// CreateTrial открывает 14-дневный триал. Бета-статус решает хранилище атомарно.
func (s *TrialService) CreateTrial(ctx context.Context, userID, email string) (domain.Trial, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Trial{}, domain.NewValidationError("userId", "is required")
	}

	_, err := s.repo.GetActiveByUserID(ctx, userID)
	switch {
	case err == nil:
		return domain.Trial{}, domain.ErrTrialExists
	case !errors.Is(err, repository.ErrNotFound):
		return domain.Trial{}, domain.NewPersistenceError("get active trial", err)
	}

	trial, err := s.repo.CreateTrial(ctx, domain.NewTrial(userID, email, s.now().UTC()), s.maxBeta)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicate):
			return domain.Trial{}, domain.ErrTrialExists
		case errors.Is(err, repository.ErrInvalidData):
			return domain.Trial{}, domain.NewValidationError("userId", "must be a valid user id")
		}
		s.log.Errorw("Failed to create trial", "userID", userID, "error", err)
		return domain.Trial{}, domain.NewPersistenceError("create trial", err)
	}

	s.metrics.IncTrialCreated(trial.IsBetaUser)
	s.log.Infow("Trial created",
		"userID", userID,
		"isBetaUser", trial.IsBetaUser,
		"trialEndDate", trial.TrialEndDate,
	)

	s.publish(ctx, kafka.TopicTrialCreated, userID, trial)
	return trial, nil
}

// GetTrialStatus возвращает статус последнего триала пользователя.
// Пользователь без триалов - domain.ErrTrialNotFound.
func (s *TrialService) GetTrialStatus(ctx context.Context, userID string) (domain.TrialStatus, error) {
	trial, err := s.repo.GetLatestByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.TrialStatus{}, domain.ErrTrialNotFound
		}
		return domain.TrialStatus{}, domain.NewPersistenceError("get trial", err)
	}
	return trial.StatusAt(s.now()), nil
}

// EndTrial завершает активный триал. Повторный вызов ничего не меняет.
func (s *TrialService) EndTrial(ctx context.Context, userID string) error {
	changed, err := s.repo.Deactivate(ctx, userID)
	if err != nil {
		return domain.NewPersistenceError("end trial", err)
	}
	if !changed {
		s.log.Debugw("No active trial to end", "userID", userID)
		return nil
	}

	s.log.Infow("Trial ended", "userID", userID)
	s.publish(ctx, kafka.TopicTrialEnded, userID, nil)
	return nil
}

// CleanupExpiredTrials деактивирует просроченные триалы одним запросом.
func (s *TrialService) CleanupExpiredTrials(ctx context.Context) (int, error) {
	count, err := s.repo.DeactivateExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, domain.NewPersistenceError("cleanup expired trials", err)
	}

	s.metrics.AddTrialsExpired(count)
	if count > 0 {
		s.log.Infow("Expired trials deactivated", "count", count)
	}
	return count, nil
}

// CanGetBetaPricing - есть свободные бета-слоты или пользователь уже получал бета-триал.
func (s *TrialService) CanGetBetaPricing(ctx context.Context, userID string) (bool, error) {
	count, err := s.repo.CountActiveBeta(ctx)
	if err != nil {
		return false, domain.NewPersistenceError("count beta users", err)
	}
	if count < s.maxBeta {
		return true, nil
	}
	return s.IsBetaUser(ctx, userID)
}

// IsBetaUser - пользователь когда-либо получал бета-статус в триале.
func (s *TrialService) IsBetaUser(ctx context.Context, userID string) (bool, error) {
	hasBeta, err := s.repo.HasBetaTrial(ctx, userID)
	if err != nil {
		return false, domain.NewPersistenceError("check beta trial", err)
	}
	return hasBeta, nil
}

// BetaUserCount - текущее значение бета-квоты
func (s *TrialService) BetaUserCount(ctx context.Context) (int, error) {
	count, err := s.repo.CountActiveBeta(ctx)
	if err != nil {
		return 0, domain.NewPersistenceError("count beta users", err)
	}
	return count, nil
}

// MaxBetaUsers - потолок бета-квоты
func (s *TrialService) MaxBetaUsers() int {
	return s.maxBeta
}

// ListActiveTrials возвращает активные триалы
func (s *TrialService) ListActiveTrials(ctx context.Context) ([]domain.Trial, error) {
	trials, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, domain.NewPersistenceError("list active trials", err)
	}
	return trials, nil
}

// RunExpirySweep периодически чистит просроченные триалы до отмены ctx.
func (s *TrialService) RunExpirySweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Infow("Trial expiry sweep started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Infow("Trial expiry sweep stopped")
			return
		case <-ticker.C:
			if _, err := s.CleanupExpiredTrials(ctx); err != nil && ctx.Err() == nil {
				s.log.Errorw("Trial expiry sweep failed", "error", err)
			}
		}
	}
}

// publish отправляет событие в фоне: сбой Kafka не влияет на ответ.
func (s *TrialService) publish(ctx context.Context, topic, userID string, data any) {
	publishAsync(ctx, s.producer, s.log, topic, kafka.Event{UserID: userID, Data: data})
}
