package app

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"ledwatcher/internal/api"
	"ledwatcher/internal/chain"
	"ledwatcher/internal/config"
	"ledwatcher/internal/discord"
	"ledwatcher/internal/faucet"
	"ledwatcher/internal/query"
	"ledwatcher/internal/sampler"
	"ledwatcher/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newChainClient() *chain.Client {
	eth := a.Config.Ethereum
	return chain.NewClient(chain.Options{
		RPCURL:              eth.RPCURL,
		PriceFeedAddress:    eth.PriceFeedAddress,
		LEDTokenAddress:     eth.LEDTokenAddress,
		StableTokenAddress:  eth.StableTokenAddress,
		StabilityPoolAddr:   eth.StabilityPoolAddr,
		TroveManagerAddress: eth.TroveManagerAddress,
		DeployerKey:         eth.DeployerKey,
		Timeout:             eth.RequestTimeout,
	}, a.Logger)
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the sampling service, query API, and interactions endpoint.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := storage.Migrate(a.Config.Database, a.Logger); err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	chainClient := a.newChainClient()
	network := a.Config.Ethereum.Network

	registry := faucet.New(network, a.Config.Faucet.AmountTokens, store, chainClient, a.Logger)
	facade := query.New(network, store, store)

	sched := sampler.NewScheduler(sampler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := sampler.New(sampler.Config{
		Network:         network,
		Workers:         a.Config.Scheduler.Workers,
		AdvisoryLockKey: a.Config.Scheduler.AdvisoryLockKey,
	}, sched, chainClient, store, store, store, store, a.Logger)

	extra := map[string]http.Handler{}
	if a.Config.Discord.Enabled {
		interactions, err := discord.NewHandler(a.Config.Discord.PublicKey, registry, facade, a.Logger)
		if err != nil {
			return err
		}
		extra["/interactions"] = interactions
	}

	server := api.NewServer(a.Config.Server, api.NewHandler(facade), extra, a.Logger)

	errCh := make(chan error, 2)
	go func() {
		errCh <- svc.Run(ctx)
	}()
	go func() {
		errCh <- server.Start()
	}()

	a.Logger.Info().Str("network", network).Msg("ledwatcher started")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error().Err(err).Msg("http shutdown failed")
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		a.Logger.Error().Err(runErr).Msg("service terminated with error")
		return runErr
	}

	a.Logger.Info().Msg("ledwatcher stopped")
	return nil
}

// RegisterCommands installs the Discord slash commands.
func (a *App) RegisterCommands(ctx context.Context) error {
	cfg := a.Config.Discord
	if cfg.AppID == "" || cfg.BotToken == "" {
		return errors.New("discord.app_id and discord.bot_token are required")
	}
	registrar := discord.NewRegistrar(cfg.AppID, cfg.BotToken, cfg.APIBase, 10*time.Second, a.Logger)
	return registrar.InstallGlobalCommands(ctx)
}

// ExportOptions hold parameters for exporting historical metric samples.
type ExportOptions struct {
	Kind      string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Kind  string
	Limit int
}
