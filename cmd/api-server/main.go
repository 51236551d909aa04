package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/careledger/careledger/internal/api"
	"github.com/careledger/careledger/internal/appointment"
	"github.com/careledger/careledger/internal/audit"
	"github.com/careledger/careledger/internal/config"
	"github.com/careledger/careledger/internal/db"
	"github.com/careledger/careledger/internal/events"
	"github.com/careledger/careledger/internal/ledger"
	redisclient "github.com/careledger/careledger/internal/redis"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s", cfg.Env, cfg.HTTPPort)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the state database
	var stateDB ledger.StateDB
	if cfg.LedgerPath != "" {
		stateDB, err = ledger.OpenLevelStateDB(cfg.LedgerPath)
		if err != nil {
			log.Fatalf("ledger open error: %v", err)
		}
		log.Printf("ledger state at %s", cfg.LedgerPath)
	} else {
		stateDB = ledger.NewMemStateDB()
		log.Println("ledger state in memory, nothing survives a restart")
	}
	led := ledger.New(stateDB)
	defer func() {
		if err := led.Close(); err != nil {
			log.Printf("error closing ledger: %v", err)
		}
	}()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	sink := audit.NewPgSink(pgPool)
	schemaCtx, cancelSchema := context.WithTimeout(rootCtx, 10*time.Second)
	err = sink.EnsureSchema(schemaCtx)
	cancelSchema()
	if err != nil {
		log.Fatalf("audit schema error: %v", err)
	}

	svc := appointment.NewService(
		ledger.NewSubmitter(led, cfg.SubmitRetries, cfg.SubmitBackoff),
		sink,
		events.NewRedisBus(rdb),
		appointment.WithSlotGranularity(cfg.SlotGranule),
	)

	router := api.NewRouter(api.RouterConfig{
		Service:   svc,
		Ledger:    led,
		PgPool:    pgPool,
		Redis:     rdb,
		JWTSecret: []byte(cfg.JWTSecret),
		TokenTTL:  cfg.TokenTTL,
		Env:       cfg.Env,
		Version:   version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Println("shutting down api-server")
	case err := <-errCh:
		log.Printf("http server error: %v", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown error: %v", err)
	}
}
