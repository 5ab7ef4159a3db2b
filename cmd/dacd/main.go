package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"dacgov.org/internal/engine"
	"dacgov.org/internal/httpapi"
	"dacgov.org/internal/kv"
	"dacgov.org/internal/migrate"
	"dacgov.org/internal/obs"
	"dacgov.org/internal/params"
	"dacgov.org/internal/store/pg"
	"dacgov.org/internal/stream"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("ignoring %s=%q: not an integer", key, v)
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("ignoring %s=%q: not a duration", key, v)
	}
	return def
}

func main() {
	var (
		httpAddr  = flag.String("http", envOr("DAC_HTTP_ADDR", ":8080"), "HTTP listen address")
		grpcAddr  = flag.String("grpc", envOr("DAC_GRPC_ADDR", ":9091"), "gRPC health listen address (empty disables)")
		dsn       = flag.String("dsn", os.Getenv("DAC_PG_DSN"), "PostgreSQL DSN (empty keeps state in memory)")
		paramPath = flag.String("params", os.Getenv("DAC_PARAMS"), "genesis parameters YAML")
		sweep     = flag.Duration("sweep", envDuration("DAC_SWEEP_INTERVAL", 0), "interval of the proposal check sweep (0 disables)")
		burst     = flag.Int("rate-burst", envInt("DAC_RATE_BURST", 20), "per-IP request burst")
		perSec    = flag.Int("rate-per-sec", envInt("DAC_RATE_PER_SEC", 10), "per-IP requests per second")
		autoMig   = flag.Bool("migrate", false, "apply schema migrations before serving")
	)
	flag.Parse()

	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()

	genesis, err := params.Load(*paramPath)
	if err != nil {
		log.Fatalf("params: %v", err)
	}
	obs.InitBuildInfo(version, commit, genesis.Contract)

	var (
		store kv.Store
		ready httpapi.ReadyProbe
		db    *pg.Store
	)
	if *dsn != "" {
		db, err = pg.Open(*dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		if *autoMig {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := migrate.NewManager(db.DB(), migrate.Schema(), nil).Up(ctx)
			cancel()
			if err != nil {
				log.Fatalf("migrate: %v", err)
			}
		}
		store = db
		ready = httpapi.ReadyProbe{DB: db.DB()}
	} else {
		store = kv.NewMemory()
		obs.Log("warn", "memory_store", obs.Fields{"detail": "DAC_PG_DSN not set; state is lost on exit"})
	}

	events := stream.New()
	stopHeartbeat := events.StartHeartbeat(15 * time.Second)
	defer stopHeartbeat()

	eng, err := engine.New(store, genesis, engine.WithPublisher(events))
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	api := httpapi.New(ready, version, eng, events, httpapi.WithRateLimit(*burst, *perSec))

	srv := &http.Server{
		Addr:              *httpAddr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// WriteTimeout stays 0: /v1/events holds connections open.
	}

	var grpcSrv *grpc.Server
	if *grpcAddr != "" {
		lis, err := net.Listen("tcp", *grpcAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer()
		httpapi.NewGRPCServer(ready, version).Register(grpcSrv)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if *sweep > 0 {
		go eng.RunSweeper(ctx, *sweep)
	}

	obs.Log("info", "starting", obs.Fields{
		"version":  version,
		"http":     *httpAddr,
		"grpc":     *grpcAddr,
		"contract": genesis.Contract,
		"sweep":    sweep.String(),
	})

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	obs.Log("info", "shutting_down", nil)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if db != nil {
		_ = db.Close()
	}
	obs.Log("info", "stopped", nil)
}
