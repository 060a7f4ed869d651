package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"ms-inventory/internal/auth"
	"ms-inventory/internal/clock"
	"ms-inventory/internal/config"
	"ms-inventory/internal/database"
	"ms-inventory/internal/database/migrations"
	"ms-inventory/internal/events"
	eventsdb "ms-inventory/internal/events/db"
	"ms-inventory/internal/events/event_api"
	"ms-inventory/internal/kafka"
	"ms-inventory/internal/ledger"
	"ms-inventory/internal/logger"
	"ms-inventory/internal/monitoring"
	"ms-inventory/internal/order"
	orderdb "ms-inventory/internal/order/db"
	"ms-inventory/internal/order/order_api"
	rediswrap "ms-inventory/internal/order/redis"
	"ms-inventory/internal/pricing"
	"ms-inventory/internal/refund"
	ticketsdb "ms-inventory/internal/tickets/db"
	"ms-inventory/internal/tickets/qr"
	tickets "ms-inventory/internal/tickets/service"
	"ms-inventory/internal/tickets/ticket_api"
	"ms-inventory/internal/utils"
	"ms-inventory/internal/waitlist"
	waitlistdb "ms-inventory/internal/waitlist/db"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

const serviceName = "ms-inventory"

func connectPostgres(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (*bun.DB, error) {
	var sqldb *sql.DB
	attempt := 0
	op := func() error {
		attempt++
		log.Info("DATABASE", fmt.Sprintf("Attempting to connect to PostgreSQL (attempt %d)", attempt))
		db, err := sql.Open("postgres", cfg.DSN)
		if err != nil {
			return err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return err
		}
		sqldb = db
		return nil
	}
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = time.Second
	policy := backoff.WithContext(backoff.WithMaxRetries(expo, 5), ctx)
	notify := func(err error, wait time.Duration) {
		log.Error("DATABASE", fmt.Sprintf("Failed to connect to PostgreSQL: %v (retrying in %s)", err, wait))
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, fmt.Errorf("connect to postgres after %d attempts: %w", attempt, err)
	}

	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.MaxLifetime)
	log.Info("DATABASE", "PostgreSQL connection successful")
	return bun.NewDB(sqldb, pgdialect.New()), nil
}

func connectRedis(ctx context.Context, addr string, log *logger.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("REDIS", fmt.Sprintf("Redis at %s unreachable, sweeping without a lease: %v", addr, err))
		client.Close()
		return nil
	}
	log.Info("REDIS", fmt.Sprintf("Redis connection successful to %s (DB: %d)", addr, client.Options().DB))
	return client
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.LogAPI(r.Method, r.URL.Path, strconv.Itoa(ww.Status()), time.Since(start).String())
		})
	}
}

func main() {
	log := logger.NewLogger(serviceName)
	defer log.Close()

	log.Info("APP", "Starting inventory service initialization")

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	} else {
		log.Info("CONFIG", "Loaded environment variables from .env file")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("CONFIG", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bunDB, err := connectPostgres(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	runner := migrations.NewRunner(bunDB, migrations.MigrateOptions{
		MigrationsDir: cfg.Database.MigrationsDir,
		AutoMigrate:   cfg.Database.AutoMigrate,
	}, log)
	if err := runner.RunMigrations(); err != nil {
		log.Fatal("DATABASE", fmt.Sprintf("Migrations failed: %v", err))
	}

	// Notifications are optional; the engine works without a broker.
	var (
		producer       *kafka.Producer
		orderNotifier  order.Notifier
		offerNotifier  waitlist.Notifier
		refundNotifier refund.Notifier
	)
	if cfg.Kafka.Enabled {
		if err := kafka.EnsureTopicsExist(ctx, cfg.Kafka.Brokers, kafka.TopicNames(cfg.Kafka.Topics), log); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Topic creation might have failed: %v", err))
		}
		producer = kafka.NewProducer(cfg.Kafka.Brokers, log)
		defer producer.Close()
		n := kafka.NewNotifier(producer, cfg.Kafka.Topics)
		orderNotifier, offerNotifier, refundNotifier = n, n, n
		log.Info("KAFKA", fmt.Sprintf("Kafka producer initialized for %v", cfg.Kafka.Brokers))
	}

	clk := clock.NewSystem()
	tx := database.NewTxRunner(bunDB)
	eventStore := &eventsdb.DB{Bun: bunDB}
	ticketStore := &ticketsdb.DB{Bun: bunDB}
	qrGen := qr.NewQRGenerator(cfg.Inventory.QRSecret)

	tierLedger := ledger.New(eventStore, tx, clk,
		ledger.WithLogger(log),
		ledger.WithRetry(uint64(cfg.Inventory.LedgerMaxRetries), 10*time.Millisecond))

	waitlistManager := waitlist.NewManager(&waitlistdb.DB{Bun: bunDB}, eventStore, tierLedger, offerNotifier, clk, log,
		waitlist.Config{OfferTTL: cfg.Inventory.OfferTTL, MaxMissedOffers: cfg.Inventory.MaxMissedOffers})

	orderService := order.NewOrderService(
		&orderdb.DB{Bun: bunDB},
		ticketStore,
		eventStore,
		tierLedger,
		waitlistManager,
		orderNotifier,
		qrGen,
		pricing.NewCalculator(cfg.Inventory.CurrencyPlaces),
		tx,
		clk,
		log,
		order.Config{ReservationTTL: cfg.Inventory.ReservationTTL, SweepBatchSize: cfg.Inventory.SweepBatchSize},
	)
	waitlistManager.SetReserver(orderService)

	if err := orderService.Bootstrap(ctx); err != nil {
		log.Fatal("LEDGER", fmt.Sprintf("Failed to rebuild ledger: %v", err))
	}

	refunds := refund.NewProcessor(ticketStore, eventStore, tierLedger, waitlistManager, refundNotifier,
		refund.CutoffPolicy{Cutoff: cfg.Inventory.RefundCutoff}, clk, log)
	ticketService := tickets.NewTicketService(ticketStore, eventStore, qrGen, clk, log)
	eventService := events.NewEventService(eventStore, tierLedger, waitlistManager, clk, log)

	orderHandler := order_api.NewHandler(orderService, waitlistManager, log)
	ticketHandler := ticket_api.NewHandler(ticketService, refunds, log)
	eventHandler := event_api.NewHandler(eventService, log)

	var authMiddleware func(http.Handler) http.Handler
	if cfg.Auth.OIDCIssuer != "" {
		verifier, err := auth.NewOIDCVerifier(ctx, cfg.Auth.OIDCIssuer)
		if err != nil {
			log.Fatal("AUTH", fmt.Sprintf("OIDC discovery failed: %v", err))
		}
		authMiddleware = auth.Middleware(verifier)
		log.Info("AUTH", fmt.Sprintf("Verifying bearer tokens against %s", cfg.Auth.OIDCIssuer))
	} else {
		authMiddleware = auth.TrustedHeader(cfg.Auth.TrustedHeader)
		log.Warn("AUTH", fmt.Sprintf("Trusting caller identity from header %s", cfg.Auth.TrustedHeader))
	}

	log.Info("HTTP", "Setting up router and middleware")
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	// --- Public Routes ---
	r.Get("/api/tickets/count", ticketHandler.GetTotalTicketsCount)
	r.Handle("/metrics", monitoring.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := bunDB.PingContext(r.Context()); err != nil {
			utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("Database unavailable", err.Error()))
			return
		}
		utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("ok", nil))
	})

	// --- Protected Routes ---
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Route("/api", func(r chi.Router) {
			orderHandler.RegisterRoutes(r)
			ticketHandler.RegisterRoutes(r)
			eventHandler.RegisterRoutes(r)
		})
		log.Info("ROUTER", "Reservation, waitlist, ticket and organizer routes registered under /api")
	})

	// Only the lease holder sweeps; without Redis every instance sweeps and
	// the guarded transitions keep that safe.
	var lease order.Lock
	if redisClient := connectRedis(ctx, cfg.Redis.Addr, log); redisClient != nil {
		defer redisClient.Close()
		owner := cfg.Inventory.InstanceID
		if owner == "" {
			owner = utils.GenerateInstanceID(serviceName)
		}
		lease = rediswrap.NewLease(redisClient, "inventory:sweeper", owner, cfg.Inventory.SweepLockTTL, log)
	}
	sweeper := order.NewSweeper(orderService, lease, cfg.Inventory.SweepInterval, log)
	sweeper.Start(ctx)

	var consumer *kafka.PaymentConsumer
	if cfg.Kafka.Enabled {
		consumer = kafka.NewPaymentConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.Topics, orderService, log)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				log.Error("KAFKA", fmt.Sprintf("Payment consumer stopped: %v", err))
			}
		}()
	}

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("HTTP", fmt.Sprintf("Inventory service running on %s", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP", fmt.Sprintf("HTTP server error: %v", err))
		}
	}()

	log.Info("APP", "Service started successfully, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("APP", "Shutdown signal received, initiating graceful shutdown")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctxShutdown); err != nil {
		log.Error("HTTP", fmt.Sprintf("Server Shutdown Failed: %v", err))
	}
	sweeper.Stop()
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			log.Warn("KAFKA", fmt.Sprintf("Closing payment consumer: %v", err))
		}
	}
	if err := runner.Close(); err != nil {
		log.Warn("DATABASE", fmt.Sprintf("Closing migrator: %v", err))
	}
	log.Info("APP", "Inventory service shutdown complete")
}
