package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/stuvusIT/entman/internal/entman/types"
	"github.com/stuvusIT/entman/internal/metrics"
)

type HistoryService struct {
	shared  *Shared
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewHistoryService(shared *Shared, logger *zap.Logger, m *metrics.Metrics) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{shared: shared, logger: logger, metrics: m}
}

// Query returns the recorded attempts matching q. Filters are passed to the
// store unchanged. An empty result is an empty, non-nil slice; a store
// failure wraps ErrServiceUnavailable.
func (s *HistoryService) Query(ctx context.Context, q types.HistoryQuery) ([]types.HistoryEntry, error) {
	entries, err := s.shared.query(ctx, q)
	s.metrics.ObserveHistoryQuery(err == nil)
	if err != nil {
		s.logger.Error("history query failed", zap.Error(err))
		return nil, err
	}
	return entries, nil
}

// Ping reports whether the history store is reachable. It does not count as
// a history query.
func (s *HistoryService) Ping(ctx context.Context) error {
	return s.shared.ping(ctx)
}
