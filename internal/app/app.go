package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/similar-products/internal/domain/similar"
	"github.com/xenking/similar-products/internal/handler"
	"github.com/xenking/similar-products/internal/upstream"
	"github.com/xenking/similar-products/pkg/health"
	"github.com/xenking/similar-products/pkg/httpmiddleware"
)

const serviceName = "similar-products"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("upstream", cfg.Upstream.BaseURL),
		zap.Int("concurrency", cfg.Aggregator.Concurrency),
		zap.Bool("skip_missing", cfg.Aggregator.SkipMissing),
	)

	h, healthSvc, err := newHTTPHandler(lg, m.TracerProvider(), m.MeterProvider(), cfg)
	if err != nil {
		return err
	}
	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler:           h,
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newHTTPHandler wires the upstream client, the aggregator and the API
// handler behind the middleware chain. Health checks are registered but not
// started.
func newHTTPHandler(
	lg *zap.Logger,
	tp trace.TracerProvider,
	mp metric.MeterProvider,
	cfg *Config,
) (http.Handler, *health.Health, error) {
	client, err := upstream.New(
		upstream.Config{
			BaseURL: cfg.Upstream.BaseURL,
			Timeout: cfg.Upstream.Timeout,
		},
		upstream.WithTracerProvider(tp),
		upstream.WithMeterProvider(mp),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create upstream client")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("upstream", 2*time.Second, client.Ping)
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	similarSvc := similar.NewService(
		similar.Config{
			Concurrency: cfg.Aggregator.Concurrency,
			SkipMissing: cfg.Aggregator.SkipMissing,
		},
		client,
		tp,
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	handler.NewHandler(similarSvc).Register(mux)

	return httpmiddleware.Wrap(mux,
		httpmiddleware.InjectLogger(lg),
		httpmiddleware.RequestID(),
		httpmiddleware.Recovery(handler.WriteInternalError),
		httpmiddleware.Instrument(serviceName, tp, mp),
		httpmiddleware.LogRequests(),
	), healthSvc, nil
}
