package portfolio

import (
	"context"
	"errors"
	"sync"
	"time"

	apperrors "github.com/BytebleCode/Investment-Platform/pkg/errors"
	"github.com/BytebleCode/Investment-Platform/pkg/logger"
)

const defaultRetryInterval = 30 * time.Second

// Scheduler runs AutoTrade for a fixed set of accounts, each on its own
// goroutine, at the interval of the account's strategy and frequency.
type Scheduler struct {
	svc      *Service
	accounts []string
	retry    time.Duration

	wg sync.WaitGroup
}

func NewScheduler(svc *Service, accounts []string) *Scheduler {
	return &Scheduler{svc: svc, accounts: accounts, retry: defaultRetryInterval}
}

// Run blocks until ctx is cancelled and every account loop has returned.
func (s *Scheduler) Run(ctx context.Context) {
	for _, id := range s.accounts {
		s.wg.Add(1)
		go func(accountID string) {
			defer s.wg.Done()
			s.loop(ctx, accountID)
		}(id)
	}
	logger.Info().Strs("accounts", s.accounts).Msg("auto trader started")
	s.wg.Wait()
	logger.Info().Msg("auto trader stopped")
}

func (s *Scheduler) loop(ctx context.Context, accountID string) {
	timer := time.NewTimer(s.next(ctx, accountID))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.Tick(ctx, accountID)
			timer.Reset(s.next(ctx, accountID))
		}
	}
}

// next reads the interval fresh so strategy and frequency changes apply
// from the following tick.
func (s *Scheduler) next(ctx context.Context, accountID string) time.Duration {
	d, _, err := s.svc.TradeInterval(ctx, accountID)
	if err != nil || d <= 0 {
		return s.retry
	}
	return d
}

// Tick runs one auto-trade cycle if the account has auto rebalancing
// enabled. It reports whether a trade was executed.
func (s *Scheduler) Tick(ctx context.Context, accountID string) bool {
	log := logger.ForAccount(ctx, accountID)

	_, enabled, err := s.svc.TradeInterval(ctx, accountID)
	if err != nil {
		log.Error().Err(err).Msg("failed to read trade interval")
		return false
	}
	if !enabled {
		return false
	}

	res, err := s.svc.AutoTrade(ctx, accountID)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrConcurrencyConflict), errors.Is(err, apperrors.ErrPriceUnavailable):
		log.Warn().Err(err).Msg("auto trade skipped")
		return false
	default:
		log.Error().Err(err).Msg("auto trade failed")
		return false
	}
	if res.Trade == nil {
		log.Debug().Str("reason", res.Reason).Msg("auto trade no-op")
		return false
	}
	return true
}

// TradeInterval returns the auto-trade period of the account's current
// strategy and customization, and whether auto rebalancing is enabled.
func (s *Service) TradeInterval(ctx context.Context, accountID string) (time.Duration, bool, error) {
	acct, err := s.Account(ctx, accountID)
	if err != nil {
		return 0, false, err
	}
	cust, err := s.customs.Get(ctx, accountID, acct.Strategy)
	if err != nil {
		return 0, false, err
	}
	d, err := s.catalog.TradeInterval(acct.Strategy, cust.TradeFrequency)
	if err != nil {
		return 0, false, err
	}
	return d, cust.AutoRebalance, nil
}
