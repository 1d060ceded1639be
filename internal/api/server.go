package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ledwatcher/internal/config"
	"ledwatcher/internal/storage"
)

// Server hosts the query API and, optionally, the Discord interactions
// endpoint mounted by the caller.
type Server struct {
	server *http.Server
	logger zerolog.Logger
}

// NewServer builds the router and HTTP server. extra handlers are mounted
// verbatim (method+pattern -> handler).
func NewServer(cfg config.ServerConfig, handler *Handler, extra map[string]http.Handler, logger zerolog.Logger) *Server {
	log := logger.With().Str("component", "api_server").Logger()

	r := chi.NewRouter()
	r.Use(Recover(log))
	r.Use(RequestLogger(log))

	r.Get("/healthz", Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/deviationFactor", handler.Metric(storage.MetricDeviationFactor))
	r.Get("/redemptionRate", handler.Metric(storage.MetricRedemptionRate))
	r.Get("/LEDPrice", handler.Metric(storage.MetricOraclePrice))
	r.Get("/lastGoodPrice", handler.Metric(storage.MetricLastGoodPrice))
	r.Get("/marketPrice", handler.Metric(storage.MetricMarketPrice))
	r.Get("/leaderboard", handler.Leaderboard)

	for pattern, h := range extra {
		r.Method(http.MethodPost, pattern, h)
	}

	return &Server{
		server: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      r,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		logger: log,
	}
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("http server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down http server")
	return s.server.Shutdown(ctx)
}
