// Command server runs the invitation platform: the order lifecycle API, the
// public guest surface, and the background expiry jobs.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"fete/internal/db"
	"fete/internal/guest/fingerprint"
	guestsvc "fete/internal/guest/service"
	gueststore "fete/internal/guest/store"
	invsvc "fete/internal/invitation/service"
	invstore "fete/internal/invitation/store"
	"fete/internal/jwttoken"
	ordersvc "fete/internal/order/service"
	orderstore "fete/internal/order/store"
	"fete/internal/platform/config"
	"fete/internal/platform/httpserver"
	"fete/internal/platform/logger"
	"fete/internal/platform/metrics"
	"fete/internal/platform/redis"
	"fete/internal/transport/rest"
	"fete/pkg/platform/audit"
	"fete/pkg/platform/audit/publisher"
	"fete/pkg/platform/tx"
)

// expiryInterval is how often the background jobs sweep for stale orders and
// lapsed invitations. Reads apply expiry lazily, so the sweep only needs to
// keep stored rows from drifting, not to be prompt.
const expiryInterval = 10 * time.Minute

func main() {
	log := logger.New()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		orders      orderstore.Store
		invitations invstore.Store
		guests      gueststore.Store
		runner      tx.Runner
	)
	if cfg.PostgresDSN != "" {
		pool, err := db.Open(cfg.PostgresDSN)
		if err != nil {
			log.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := db.Migrate(pool); err != nil {
			log.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}

		orders = orderstore.NewPostgres(pool)
		invitations = invstore.NewPostgres(pool)
		guests = gueststore.NewPostgres(pool)
		runner = tx.NewSQLRunner(pool)
		log.Info("using postgres stores")
	} else {
		orders = orderstore.NewMemory()
		invitations = invstore.NewMemory()
		guests = gueststore.NewMemory()
		runner = tx.NewMemoryRunner()
		log.Warn("FETE_POSTGRES_DSN not set, using in-memory stores")
	}

	redisClient, err := redis.New(cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var auditPublisher audit.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := publisher.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("failed to create kafka publisher", "error", err)
			os.Exit(1)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := kafka.Close(flushCtx); err != nil {
				log.Warn("kafka publisher close", "error", err)
			}
		}()
		auditPublisher = kafka
		log.Info("audit events publishing to kafka", "topic", cfg.KafkaTopic)
	} else {
		auditPublisher = publisher.NewMemory()
	}

	m := metrics.New()

	orderService, err := ordersvc.New(orders, invitations, runner,
		cfg.ValidityWindow, cfg.PaymentDeadline,
		ordersvc.WithLogger(log),
		ordersvc.WithAuditPublisher(auditPublisher),
		ordersvc.WithMetrics(m),
	)
	if err != nil {
		log.Error("failed to create order service", "error", err)
		os.Exit(1)
	}

	invitationService, err := invsvc.New(invitations,
		invsvc.WithLogger(log),
		invsvc.WithAuditPublisher(auditPublisher),
		invsvc.WithMetrics(m),
	)
	if err != nil {
		log.Error("failed to create invitation service", "error", err)
		os.Exit(1)
	}

	guestService, err := guestsvc.New(invitations, guests,
		fingerprint.New(cfg.FingerprintSalt), runner, cfg.DuplicateWindow,
		guestsvc.WithLogger(log),
		guestsvc.WithAuditPublisher(auditPublisher),
		guestsvc.WithMetrics(m),
	)
	if err != nil {
		log.Error("failed to create guest service", "error", err)
		os.Exit(1)
	}

	router := rest.NewRouter(rest.Deps{
		Orders:            orderService,
		Invitations:       invitationService,
		Guests:            guestService,
		TokenValidator:    jwttoken.NewValidator(cfg.JWTSigningKey),
		Redis:             redisClient,
		Logger:            log,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	})

	server := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(expiryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n, err := orderService.ExpireStale(gctx); err != nil {
					log.Warn("order expiry sweep failed", "error", err)
				} else if n > 0 {
					log.Info("expired stale orders", "count", n)
				}
				if n, err := invitationService.ExpireLapsed(gctx); err != nil {
					log.Warn("invitation expiry sweep failed", "error", err)
				} else if n > 0 {
					log.Info("expired lapsed invitations", "count", n)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
