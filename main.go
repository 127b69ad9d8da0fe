package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/application/checkout"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/application/reconcile"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/application/sweep"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/config"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/product"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/stock"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/domain/transaction"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/infrastructure/boltstore"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/infrastructure/bus"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/infrastructure/delivery"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/infrastructure/httpapi"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/infrastructure/id"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/infrastructure/memory"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/infrastructure/wompi"
	"github.com/JoseFeliciano-spec/TiendaInterviewBackend/internal/pkg/logging"
)

// store is the intersection of the persistence contracts the wiring needs.
type store interface {
	transaction.Repository
	product.Catalog
	stock.Ledger
}

func main() {
	cfg := config.Load()

	logger := logging.MustNewLogger(cfg.ServiceName, cfg.Env)
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	usecaseRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usecase_requests_total",
		Help: "Use case executions by outcome.",
	}, []string{"use_case", "outcome"})
	usecaseDurations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "usecase_duration_seconds",
		Help:    "Use case execution latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"use_case"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Webhook events by reconciliation outcome.",
	}, []string{"outcome"})
	httpRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})
	httpDurations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	prometheus.MustRegister(usecaseRequests, usecaseDurations, webhookEvents, httpRequests, httpDurations)

	var (
		st      store
		cleanup func() error = func() error { return nil }
	)
	switch cfg.Store {
	case "bolt":
		bs, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			logger.Fatal("bolt_open_failed", zap.String("path", cfg.BoltPath), zap.Error(err))
		}
		st = bs
		cleanup = bs.Close
		logger.Info("store_ready", zap.String("backend", "bolt"), zap.String("path", cfg.BoltPath))
	default:
		st = memory.NewStore()
		logger.Info("store_ready", zap.String("backend", "memory"))
	}
	defer func() {
		if err := cleanup(); err != nil {
			logger.Warn("store_close_failed", zap.Error(err))
		}
	}()

	if err := seedCatalog(ctx, st); err != nil {
		logger.Fatal("catalog_seed_failed", zap.Error(err))
	}

	gateway := wompi.NewClient(wompi.Config{
		BaseURL:         cfg.WompiAPIURL,
		PublicKey:       cfg.WompiPublicKey,
		PrivateKey:      cfg.WompiPrivateKey,
		IntegritySecret: cfg.WompiIntegrityKey,
		Timeout:         cfg.GatewayTimeout,
	}, nil)

	eventBus := bus.New(logger)
	eventBus.Start(ctx)
	defer eventBus.Stop(context.Background())

	deliveryWorker := delivery.New(eventBus, logger)
	deliveryWorker.Start()

	checkoutSvc := checkout.NewService(
		st, st, gateway, id.NewUUIDGenerator(), eventBus,
		usecaseRequests, usecaseDurations,
	)
	reconcileSvc := reconcile.NewService(st, eventBus, cfg.WompiEventsKey, webhookEvents)

	sweeper := sweep.New(
		st, gateway, eventBus,
		cfg.SweepInterval, cfg.SweepStaleAfter, cfg.SweepMaxConcurrency,
		logger,
	)
	sweeper.Start(ctx)

	handler := httpapi.NewHandler(checkoutSvc, reconcileSvc, st, st, logger, &httpapi.Metrics{
		Requests:  httpRequests,
		Durations: httpDurations,
	})

	mux := http.NewServeMux()
	mux.Handle("/", handler.Router())
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http_server_listening", zap.String("addr", cfg.Addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown_signal_received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http_server_failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http_shutdown_incomplete", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("shutdown_complete")
}

// seedCatalog loads the demo products on first boot so the checkout flow is
// exercisable without an admin surface. An already-populated catalog is left
// untouched.
func seedCatalog(ctx context.Context, catalog product.Catalog) error {
	existing, err := catalog.ListProducts(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	seed := []*product.Product{
		{ID: "prod-001", Name: "iPhone 15 Pro Max", SKU: "IPH15PM-256", Price: 499_999_900, Stock: 15, Active: true},
		{ID: "prod-002", Name: "MacBook Pro 16", SKU: "MBP16-M3-512", Price: 899_999_900, Stock: 8, Active: true},
		{ID: "prod-003", Name: "AirPods Pro 2", SKU: "APP2-USBC", Price: 89_999_900, Stock: 40, Active: true},
		{ID: "prod-004", Name: "Apple Watch Ultra 2", SKU: "AWU2-49", Price: 349_999_900, Stock: 12, Active: true},
		{ID: "prod-005", Name: "iPad Air 11", SKU: "IPA11-M2-128", Price: 259_999_900, Stock: 20, Active: true},
	}
	for _, p := range seed {
		if err := catalog.SaveProduct(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
