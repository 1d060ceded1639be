package sampler

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ledwatcher/internal/chain"
	"ledwatcher/internal/metrics"
	"ledwatcher/internal/snapshot"
	"ledwatcher/internal/storage"
)

// Config tunes a sampling Service.
type Config struct {
	Network         string
	Workers         int
	AdvisoryLockKey int64
}

// Service orchestrates the periodic sampling pass: protocol metrics once,
// then per-address balance snapshots fanned out over a bounded worker pool.
type Service struct {
	cfg       Config
	scheduler *Scheduler
	reader    chain.Reader
	metrics   storage.MetricStore
	snapshots storage.UserSnapshotStore
	grants    storage.GrantStore
	locker    storage.AdvisoryLocker
	logger    zerolog.Logger

	// Single-flight guard: a tick that fires while a pass is still
	// running is skipped, not queued.
	passMu sync.Mutex
}

// New constructs the sampling service.
func New(cfg Config, sched *Scheduler, reader chain.Reader, metricStore storage.MetricStore, snapshotStore storage.UserSnapshotStore, grantStore storage.GrantStore, locker storage.AdvisoryLocker, logger zerolog.Logger) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Service{
		cfg:       cfg,
		scheduler: sched,
		reader:    reader,
		metrics:   metricStore,
		snapshots: snapshotStore,
		grants:    grantStore,
		locker:    locker,
		logger:    logger.With().Str("component", "sampler").Logger(),
	}
}

// Run begins the aligned sampling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, _ time.Time) error {
		return s.RunPass(ctx)
	})
}

// RunPass 执行一次完整的采样流程。Skips silently when another pass holds
// the in-process or cross-process lock.
func (s *Service) RunPass(ctx context.Context) error {
	if !s.passMu.TryLock() {
		s.logger.Warn().Msg("previous pass still running; skipping tick")
		metrics.PassTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	defer s.passMu.Unlock()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Msg("advisory lock held elsewhere; skipping pass")
		metrics.PassTotal.WithLabelValues("skipped").Inc()
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	started := time.Now()
	err = s.executePass(ctx)
	metrics.PassDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.PassTotal.WithLabelValues("error").Inc()
		return err
	}
	metrics.PassTotal.WithLabelValues("ok").Inc()
	return nil
}

func (s *Service) executePass(ctx context.Context) error {
	// One timestamp per pass: every row written below shares it so the
	// pass can be correlated later.
	passTS, err := s.reader.LatestBlockTimestamp(ctx)
	if err != nil {
		return fmt.Errorf("fetch pass timestamp: %w", err)
	}

	price, ok := s.sampleProtocolMetrics(ctx, passTS)
	if ok {
		s.sampleAddresses(ctx, passTS, price)
	}

	s.logger.Info().Int64("timestamp", passTS).Msg("sampling pass complete")
	return nil
}

// sampleProtocolMetrics fetches the five metric values once, persists
// them, and hands the market price back for the per-address snapshots.
func (s *Service) sampleProtocolMetrics(ctx context.Context, passTS int64) (*big.Int, bool) {
	pm, err := s.reader.ProtocolMetrics(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to fetch protocol metrics")
		return nil, false
	}

	for _, sample := range []storage.MetricSample{
		{Kind: storage.MetricDeviationFactor, Value: pm.DeviationFactor},
		{Kind: storage.MetricRedemptionRate, Value: pm.RedemptionRate},
		{Kind: storage.MetricOraclePrice, Value: pm.OraclePrice},
		{Kind: storage.MetricLastGoodPrice, Value: pm.LastGoodPrice},
		{Kind: storage.MetricMarketPrice, Value: pm.MarketPrice},
	} {
		sample.Network = s.cfg.Network
		sample.Timestamp = passTS
		if err := s.metrics.AppendMetric(ctx, sample); err != nil {
			s.logger.Error().Err(err).Str("kind", string(sample.Kind)).Msg("failed to persist metric")
		}
	}
	return pm.MarketPrice, true
}

func (s *Service) sampleAddresses(ctx context.Context, passTS int64, price *big.Int) {
	grants, err := s.grants.ListGrants(ctx, s.cfg.Network)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list granted addresses")
		return
	}
	if len(grants) == 0 {
		return
	}

	jobs := make(chan storage.FaucetGrant)
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for grant := range jobs {
				s.sampleOne(ctx, passTS, grant, price)
			}
		}()
	}

	for _, grant := range grants {
		jobs <- grant
	}
	close(jobs)
	wg.Wait()
}

// sampleOne snapshots a single address. Failures are logged and counted;
// they never abort the batch.
func (s *Service) sampleOne(ctx context.Context, passTS int64, grant storage.FaucetGrant, price *big.Int) {
	balances, err := s.reader.AddressBalances(ctx, grant.Address)
	if err != nil {
		s.logger.Error().Err(err).Str("address", grant.Address).Msg("failed to fetch balances")
		metrics.AddressSampleTotal.WithLabelValues("fetch_error").Inc()
		return
	}

	snap, err := snapshot.FromRaw(balances, price)
	if err != nil {
		s.logger.Error().Err(err).Str("address", grant.Address).Msg("failed to compute snapshot")
		metrics.AddressSampleTotal.WithLabelValues("compute_error").Inc()
		return
	}
	netValue, err := snap.NetValue()
	if err != nil {
		s.logger.Error().Err(err).Str("address", grant.Address).Msg("failed to compute net value")
		metrics.AddressSampleTotal.WithLabelValues("compute_error").Inc()
		return
	}

	row := storage.UserSnapshot{
		Network:       s.cfg.Network,
		Timestamp:     passTS,
		Address:       grant.Address,
		RequesterID:   grant.RequesterID,
		USDAssets:     snap.USDAssets,
		LEDAssets:     snap.LEDAssets,
		LEDDebt:       snap.LEDDebt,
		PriceAtSample: snap.Price,
		NetValue:      netValue,
	}
	if err := s.snapshots.AppendUserSnapshot(ctx, row); err != nil {
		s.logger.Error().Err(err).Str("address", grant.Address).Msg("failed to persist snapshot")
		metrics.AddressSampleTotal.WithLabelValues("store_error").Inc()
		return
	}
	metrics.AddressSampleTotal.WithLabelValues("ok").Inc()
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.cfg.AdvisoryLockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.cfg.AdvisoryLockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
