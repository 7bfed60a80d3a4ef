package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"solana-autolink/internal/config"
	"solana-autolink/internal/notify"
	"solana-autolink/internal/service"
	"solana-autolink/internal/storage"
	chstore "solana-autolink/internal/storage/clickhouse"
	"solana-autolink/internal/storage/memory"
	pgstore "solana-autolink/internal/storage/postgres"
)

// stores holds the storage implementations selected by configuration.
type stores struct {
	observations storage.ObservationStore
	settings     storage.SettingsStore
	history      storage.WalletHistoryStore
	transitions  storage.TransitionLogStore
	analytics    storage.TransitionLogStore // optional ClickHouse copy
	close        func()
}

// openStores connects the configured backend. The caller must call close.
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	s := &stores{close: func() {}}

	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		s.observations = pgstore.NewObservationStore(pool)
		s.settings = pgstore.NewSettingsStore(pool)
		s.history = pgstore.NewWalletHistoryStore(pool)
		s.transitions = pgstore.NewTransitionLogStore(pool)
		s.close = pool.Close
	default:
		observations := memory.NewObservationStore()
		s.observations = observations
		s.settings = memory.NewSettingsStore()
		s.history = memory.NewWalletHistoryStore(observations)
		s.transitions = memory.NewTransitionLogStore()
	}

	if cfg.Storage.ClickHouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.Storage.ClickHouseDSN)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("connect to clickhouse: %w", err)
		}
		s.analytics = chstore.NewTransitionEventStore(conn)
		closePrimary := s.close
		s.close = func() {
			conn.Close()
			closePrimary()
		}
	}
	return s, nil
}

// app is a fully wired service plus the resources it holds.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	stores *stores
	svc    *service.Service
	hub    *notify.Hub // nil unless requested
}

// newApp builds the logger, stores and service, then applies the seed file.
func (c *cli) newApp(ctx context.Context, withHub bool) (*app, error) {
	logger, err := c.cfg.Log.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	st, err := openStores(ctx, c.cfg)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}

	a := &app{cfg: c.cfg, logger: logger, stores: st}

	var publishers []notify.Publisher
	if st.analytics != nil {
		publishers = append(publishers, notify.NewAuditLog(st.analytics))
	}
	if withHub {
		hubCfg := notify.DefaultHubConfig()
		a.hub = notify.NewHub(st.settings, &hubCfg, logger.Named("hub"))
		publishers = append(publishers, a.hub)
	}

	a.svc = service.New(service.Options{
		Observations:       st.observations,
		Settings:           st.settings,
		History:            st.history,
		Transitions:        st.transitions,
		Publishers:         publishers,
		Workers:            c.cfg.Engine.Workers,
		LockHoldTimeout:    c.cfg.Engine.LockHoldTimeout,
		MaxConflictRetries: c.cfg.Engine.MaxConflictRetries,
		SweepInterval:      c.cfg.Sweeper.Interval,
		SweepBatchLimit:    c.cfg.Sweeper.BatchLimit,
		StatsLookback:      c.cfg.Stats.Lookback,
		Logger:             logger,
	})

	if c.cfg.SeedFile != "" {
		seed, err := config.LoadSeed(c.cfg.SeedFile)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := seed.Apply(ctx, a.svc); err != nil {
			a.Close()
			return nil, fmt.Errorf("apply seed: %w", err)
		}
		logger.Info("applied seed", zap.String("file", c.cfg.SeedFile), zap.Int("wallets", len(seed.Wallets)))
	}

	if c.cfg.Storage.Backend == config.BackendMemory {
		logger.Debug("using in-memory storage; state is lost on exit")
	}
	return a, nil
}

// Close releases the hub, the stores and flushes the logger.
func (a *app) Close() {
	if a.hub != nil {
		a.hub.Close()
	}
	a.stores.close()
	_ = a.logger.Sync()
}
