package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stuvusIT/entman/internal/entman/callback"
	"github.com/stuvusIT/entman/internal/entman/store"
	"github.com/stuvusIT/entman/internal/entman/types"
	"github.com/stuvusIT/entman/internal/metrics"
)

type AccessOptions struct {
	Clock   Clock // defaults to SystemClock
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type AccessService struct {
	shared   *Shared
	callback callback.Callback
	clock    Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

func NewAccessService(shared *Shared, cb callback.Callback, opt AccessOptions) *AccessService {
	if cb == nil {
		cb = callback.Nop{}
	}
	if opt.Clock == nil {
		opt.Clock = SystemClock
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	return &AccessService{
		shared:   shared,
		callback: cb,
		clock:    opt.Clock,
		logger:   opt.Logger,
		metrics:  opt.Metrics,
	}
}

// Access decides on token, records the attempt and, if access was granted,
// runs the callback.
//
// On ErrVerifier, ErrClock and ErrServiceUnavailable nothing was recorded
// or no decision may be reported, and the returned response is empty. On
// ErrGateway the attempt is recorded and the decided response is returned
// together with the error.
func (s *AccessService) Access(ctx context.Context, token string) (Status, types.AccessResponse, error) {
	log := s.logger.With(zap.String("token_prefix", tokenHint(token)))

	resp, err := s.shared.record(ctx, token, s.clock)
	if err != nil {
		status := StatusOf(err)
		s.metrics.ObserveAccess(string(status))
		log.Error("access attempt not recorded", zap.String("status", string(status)), zap.Error(err))
		return status, types.AccessResponse{}, err
	}

	if !resp.Granted() {
		s.metrics.ObserveAccess(string(StatusForbidden))
		log.Warn("access denied", zap.String("reason", resp.Reason))
		return StatusForbidden, resp, nil
	}

	if err := s.callback.Call(ctx); err != nil {
		s.metrics.ObserveAccess(string(StatusGatewayError))
		s.metrics.CallbackFailed()
		log.Error("callback failed after granted access",
			zap.String("name", resp.Name),
			zap.Error(err),
		)
		return StatusGatewayError, resp, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	s.metrics.ObserveAccess(string(StatusOK))
	log.Info("access granted", zap.String("name", resp.Name), zap.String("reason", resp.Reason))
	return StatusOK, resp, nil
}

// tokenHint is what gets logged instead of the token.
func tokenHint(token string) string {
	if p := store.TokenPrefix(token); p != "" {
		return p + "..."
	}
	return "***"
}
