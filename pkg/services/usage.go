package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/insights-engine/pkg/logging"
	"github.com/ekaya-inc/insights-engine/pkg/metrics"
	"github.com/ekaya-inc/insights-engine/pkg/models"
	"github.com/ekaya-inc/insights-engine/pkg/repositories"
)

// DefaultUsageWriteTimeout bounds a single usage log insert.
const DefaultUsageWriteTimeout = 5 * time.Second

// UsageService records pipeline invocations and reads the aggregate views.
type UsageService interface {
	// Log writes entry. It never fails; write errors are only logged.
	Log(ctx context.Context, entry *models.UsageLogEntry)

	HourlyUsage(ctx context.Context, since time.Time) ([]models.HourlyUsage, error)
	ErrorBreakdown(ctx context.Context, limit int) ([]models.ErrorBreakdown, error)
	QueryTypePerformance(ctx context.Context) ([]models.QueryTypePerformance, error)
}

type usageService struct {
	repo         repositories.UsageLogRepository
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewUsageService creates the usage service. A nil repo disables logging and
// makes the read methods return empty results.
func NewUsageService(repo repositories.UsageLogRepository, writeTimeout time.Duration, logger *zap.Logger) UsageService {
	if writeTimeout <= 0 {
		writeTimeout = DefaultUsageWriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &usageService{
		repo:         repo,
		writeTimeout: writeTimeout,
		logger:       logger.Named("usage"),
	}
}

var _ UsageService = (*usageService)(nil)

func (s *usageService) Log(ctx context.Context, entry *models.UsageLogEntry) {
	if s.repo == nil || entry == nil {
		metrics.UsageLogWrites.WithLabelValues("disabled").Inc()
		return
	}

	// The entry is written even when the request was canceled.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.writeTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			metrics.UsageLogWrites.WithLabelValues("error").Inc()
			s.logger.Error("Usage log write panicked",
				zap.String("session_id", entry.SessionID.String()),
				zap.Any("panic", r))
		}
	}()

	if err := s.repo.Create(writeCtx, entry); err != nil {
		metrics.UsageLogWrites.WithLabelValues("error").Inc()
		s.logger.Error("Failed to write usage log",
			zap.String("session_id", entry.SessionID.String()),
			zap.String("error", logging.SanitizeError(err)))
		return
	}
	metrics.UsageLogWrites.WithLabelValues("success").Inc()
	s.logger.Debug("Usage logged",
		zap.String("session_id", entry.SessionID.String()),
		zap.Int64("id", entry.ID))
}

func (s *usageService) HourlyUsage(ctx context.Context, since time.Time) ([]models.HourlyUsage, error) {
	if s.repo == nil {
		return []models.HourlyUsage{}, nil
	}
	usage, err := s.repo.HourlyUsage(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("hourly usage: %w", err)
	}
	return usage, nil
}

func (s *usageService) ErrorBreakdown(ctx context.Context, limit int) ([]models.ErrorBreakdown, error) {
	if s.repo == nil {
		return []models.ErrorBreakdown{}, nil
	}
	breakdown, err := s.repo.ErrorBreakdown(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("error breakdown: %w", err)
	}
	return breakdown, nil
}

func (s *usageService) QueryTypePerformance(ctx context.Context) ([]models.QueryTypePerformance, error) {
	if s.repo == nil {
		return []models.QueryTypePerformance{}, nil
	}
	perf, err := s.repo.QueryTypePerformance(ctx)
	if err != nil {
		return nil, fmt.Errorf("query type performance: %w", err)
	}
	return perf, nil
}
