package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bxhive/internal/audit"
	auditkafka "bxhive/internal/audit/kafka"
	auditmem "bxhive/internal/audit/memory"
	cataloghandler "bxhive/internal/catalog/handler"
	catalogsvc "bxhive/internal/catalog/service"
	catalogmem "bxhive/internal/catalog/store/memory"
	catalogpg "bxhive/internal/catalog/store/postgres"
	dirhandler "bxhive/internal/directory/handler"
	dirsvc "bxhive/internal/directory/service"
	dirmem "bxhive/internal/directory/store/memory"
	dirpg "bxhive/internal/directory/store/postgres"
	fundsmem "bxhive/internal/funds/memory"
	"bxhive/internal/jwtauth"
	"bxhive/internal/platform/config"
	"bxhive/internal/platform/httpserver"
	"bxhive/internal/platform/logger"
	"bxhive/internal/platform/metrics"
	mw "bxhive/internal/platform/middleware"
	platformredis "bxhive/internal/platform/redis"
	ratemw "bxhive/internal/ratelimit/middleware"
	ratememory "bxhive/internal/ratelimit/store/memory"
	rateredis "bxhive/internal/ratelimit/store/redis"
	"bxhive/internal/variation/engine"
	variationhandler "bxhive/internal/variation/handler"
	id "bxhive/pkg/domain"
	"bxhive/pkg/secrets"
)

const tokenTTL = 24 * time.Hour

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in the context packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()
	ctx := context.Background()

	treasury := fundsmem.NewTreasury()

	var auditor audit.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := auditkafka.New(cfg.KafkaBrokers, cfg.AuditTopic, auditkafka.WithLogger(log))
		if err != nil {
			log.Error("kafka audit publisher init failed", "error", err)
			os.Exit(1)
		}
		defer publisher.Close(ctx)
		auditor = publisher
		log.Info("audit events published to kafka", "topic", cfg.AuditTopic)
	} else {
		auditor = auditmem.NewSink()
		log.Info("audit events kept in memory, configure KAFKA_BROKERS for durability")
	}

	var directoryStore dirsvc.Store
	var catalogStore catalogsvc.Store
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Error("postgres pool init failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		dirStore := dirpg.New(pool)
		if err := dirStore.EnsureSchema(ctx); err != nil {
			log.Error("directory schema init failed", "error", err)
			os.Exit(1)
		}
		directoryStore = dirStore

		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("postgres open failed", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		catStore := catalogpg.New(db)
		if err := catStore.EnsureSchema(ctx); err != nil {
			log.Error("catalog schema init failed", "error", err)
			os.Exit(1)
		}
		catalogStore = catStore
		log.Info("using postgres-backed stores")
	} else {
		directoryStore = dirmem.New()
		catalogStore = catalogmem.New()
		log.Info("using in-memory stores, configure POSTGRES_URL for durability")
	}

	var rateStore ratemw.Store
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		rateStore = rateredis.New(redisClient.Client)
		log.Info("decision rate limits shared via redis")
	} else {
		rateStore = ratememory.New()
	}
	limiter := ratemw.New(rateStore, cfg.DecisionRateLimit, cfg.DecisionRateWindow, log)

	var superAdmin id.Address
	if cfg.SuperAdminAddress != "" {
		superAdmin, err = id.ParseAddress(cfg.SuperAdminAddress)
		if err != nil {
			log.Error("invalid SUPER_ADMIN_ADDRESS", "error", err)
			os.Exit(1)
		}
	} else {
		superAdmin = id.NewAddress()
		log.Info("minted bootstrap super admin", "address", superAdmin)
	}

	adminTokenHash := cfg.AdminTokenHash
	if adminTokenHash == "" {
		adminTokenHash, err = secrets.Hash(cfg.AdminToken)
		if err != nil {
			log.Error("admin token hashing failed", "error", err)
			os.Exit(1)
		}
		log.Warn("ADMIN_TOKEN_HASH not set, using development admin token")
	}

	tokens := jwtauth.NewService(cfg.JWTSigningKey, cfg.JWTIssuer, tokenTTL)

	directory := dirsvc.New(directoryStore, treasury, superAdmin,
		dirsvc.WithFaucet(cfg.FaucetAmount),
		dirsvc.WithLogger(log),
		dirsvc.WithMetrics(m),
		dirsvc.WithAuditPublisher(auditor),
	)
	if err := directory.Bootstrap(ctx); err != nil {
		log.Error("directory bootstrap failed", "error", err)
		os.Exit(1)
	}

	host := engine.NewHost(treasury,
		engine.WithLogger(log),
		engine.WithMetrics(m),
		engine.WithAuditPublisher(auditor),
	)

	catalogAddr := id.NewAddress()
	catalog := catalogsvc.New(catalogStore, host, treasury, catalogAddr,
		catalogsvc.WithDirectory(superAdmin),
		catalogsvc.WithLogger(log),
		catalogsvc.WithMetrics(m),
		catalogsvc.WithAuditPublisher(auditor),
	)
	log.Info("catalog treasury account", "address", catalogAddr)

	dirHandler := dirhandler.New(directory, tokens, log)
	catHandler := cataloghandler.New(catalog, log)
	varHandler := variationhandler.New(host, log,
		variationhandler.WithDecisionLimiter(limiter.LimitDecisions))

	router := chi.NewRouter()
	router.Use(mw.RequestMetadata)

	// Registration and lookups are public; experiment and variation
	// operations require a bearer token.
	dirHandler.Register(router)
	router.Group(func(r chi.Router) {
		r.Use(mw.RequireAuth(tokens, log))
		catHandler.Register(r)
		varHandler.Register(r)
	})
	router.Group(func(r chi.Router) {
		r.Use(mw.RequireAdminToken(adminTokenHash, log))
		dirHandler.RegisterAdmin(r)
	})

	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting bxhive", "addr", cfg.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
