// Package app wires the shop's stores, services and HTTP server together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/eshop/internal/domain/order"
	"github.com/xenking/eshop/internal/domain/payment"
	"github.com/xenking/eshop/internal/domain/product"
	"github.com/xenking/eshop/internal/domain/recommend"
	"github.com/xenking/eshop/internal/domain/user"
	"github.com/xenking/eshop/internal/handler"
	"github.com/xenking/eshop/internal/seed"
	"github.com/xenking/eshop/internal/storage/memory"
	"github.com/xenking/eshop/internal/storage/postgres"
	"github.com/xenking/eshop/pkg/health"
	"github.com/xenking/eshop/pkg/httpmiddleware"
)

type stores struct {
	products product.Repository
	users    user.Repository
	orders   order.Repository
}

// openStores builds the configured storage backend. The returned function
// releases its resources.
func openStores(ctx context.Context, cfg *Config, h *health.Health) (stores, func(), error) {
	if cfg.Storage == StorageMemory {
		return stores{
			products: memory.NewProductStore(),
			users:    memory.NewUserStore(),
			orders:   memory.NewOrderStore(),
		}, func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return stores{}, nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return stores{}, nil, errors.Wrap(err, "run migrations")
	}
	h.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	return stores{
		products: postgres.NewProductRepository(pool),
		users:    postgres.NewUserRepository(pool),
		orders:   postgres.NewOrderRepository(pool),
	}, pool.Close, nil
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing",
		zap.String("addr", cfg.Addr),
		zap.String("storage", cfg.Storage),
	)

	healthSvc := health.New()
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))

	st, closeStores, err := openStores(ctx, cfg, healthSvc)
	if err != nil {
		return err
	}
	defer closeStores()

	if cfg.SeedDemoData {
		if err := seed.Load(zctx.Base(ctx, lg), st.products, st.users, time.Now()); err != nil {
			return errors.Wrap(err, "seed demo data")
		}
	}

	orderService, err := order.NewService(st.products, st.users, st.orders,
		order.WithTiers(cfg.Discount.Tiers()),
		order.WithPaymentTimeout(cfg.Payment.Timeout),
		order.WithTelemetry(m.TracerProvider(), m.MeterProvider()),
	)
	if err != nil {
		return errors.Wrap(err, "create order service")
	}

	h := handler.NewHandler(
		handler.HandlerConfig{Payments: payment.Methods{Delay: cfg.Payment.SettlementDelay}},
		product.NewService(st.products),
		user.NewService(st.users, st.products),
		orderService,
		recommend.NewService(st.products, st.users, st.orders),
	)

	mux := http.NewServeMux()
	healthSvc.Register(mux)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      cfg.Payment.Timeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Recovery(),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:     cfg.RateLimit.Max,
				Window:  cfg.RateLimit.Window,
				KeyFunc: httpmiddleware.UserKeyFunc,
			}),
			httpmiddleware.Instrument("eshop-api", routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
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
