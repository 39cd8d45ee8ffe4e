package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/evoapps/datastore/server/internal/api"
	"github.com/evoapps/datastore/server/internal/config"
	"github.com/evoapps/datastore/server/internal/healthsrv"
	"github.com/evoapps/datastore/server/internal/hooks"
	"github.com/evoapps/datastore/server/internal/logging"
	"github.com/evoapps/datastore/server/internal/metrics"
	"github.com/evoapps/datastore/server/internal/store"
	"github.com/evoapps/datastore/server/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "path to config file; built-in defaults when empty")
	port := flag.Int("port", config.DefaultHTTPPort, "document router port (overrides server.http_port)")
	dataRoot := flag.String("data-root", config.DefaultDataRoot, "directory behind /data/ (overrides server.data_root)")
	staticRoot := flag.String("static-root", config.DefaultStaticRoot, "directory served for other paths (overrides server.static_root)")
	flag.Parse()

	level := new(slog.LevelVar)
	slog.SetDefault(logging.New(logging.Config{Level: level}))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			slog.Error("failed to load config", "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	// Explicit flags win over the file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Server.HTTPPort = *port
		case "data-root":
			cfg.Server.DataRoot = *dataRoot
		case "static-root":
			cfg.Server.StaticRoot = *staticRoot
		}
	})
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	sc := cfg.Server
	level.Set(logging.ParseLevel(sc.Log.Level))
	slog.SetDefault(logging.New(logging.Config{Level: level, Format: logging.ParseFormat(sc.Log.Format)}))

	slog.Info("config loaded",
		"http_port", sc.HTTPPort,
		"admin_port", sc.AdminPort,
		"grpc_port", sc.GRPCPort,
		"data_root", sc.DataRoot,
		"static_root", sc.StaticRoot,
		"hooks", len(sc.Hooks),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := store.Open(sc.DataRoot)
	if err != nil {
		slog.Error("failed to open data root", "err", err)
		os.Exit(1)
	}
	if n, err := st.Seed(sc.Seed); err != nil {
		slog.Error("failed to seed documents", "err", err)
		os.Exit(1)
	} else if n > 0 {
		slog.Info("seeded default documents", "count", n)
	}

	reg := metrics.New()

	hub := ws.New(ws.DefaultBuffer)
	reg.Gauge("datastore_feed_clients", "Connected change-feed WebSocket clients.",
		func() float64 { return float64(hub.Count()) })
	st.Subscribe(hub.Publish)

	hookEngine := hooks.New(sc.Hooks)
	st.Subscribe(hookEngine.Notify)

	var wg sync.WaitGroup
	run := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}
	run(func() { hub.Run(ctx) })

	if *configPath != "" {
		run(func() {
			err := config.Watch(ctx, *configPath, func(c *config.Config) {
				level.Set(logging.ParseLevel(c.Server.Log.Level))
				hookEngine.Reload(c.Server.Hooks)
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		})
	}

	httpSrv := newServer(sc, sc.HTTPPort, api.New(st, api.Options{
		StaticRoot:   sc.StaticRoot,
		MaxBodyBytes: sc.MaxBodyBytes,
		Metrics:      reg,
	}))
	servers := []*http.Server{httpSrv}

	if sc.AdminPort != 0 {
		servers = append(servers, newServer(sc, sc.AdminPort, api.NewAdmin(st, api.AdminOptions{
			Hub:     hub,
			Hooks:   hookEngine,
			Metrics: reg,
		})))
	}

	var health *healthsrv.Server
	if sc.GRPCPort != 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", sc.GRPCPort))
		if err != nil {
			slog.Error("failed to listen on gRPC port", "port", sc.GRPCPort, "err", err)
			os.Exit(1)
		}
		health = healthsrv.New(st, healthsrv.DefaultInterval)
		run(func() { health.Run(ctx) })
		go func() {
			if err := health.Serve(lis); err != nil {
				slog.Error("gRPC health server stopped", "err", err)
			}
		}()
	}

	for _, srv := range servers {
		srv := srv
		go func() {
			slog.Info("starting server on port", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server stopped", "addr", srv.Addr, "err", err)
				cancel()
			}
		}()
	}

	<-ctx.Done()
	slog.Info("shutting down", "timeout", sc.ShutdownTimeout)

	shutdownCtx, done := context.WithTimeout(context.Background(), sc.ShutdownTimeout)
	defer done()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP shutdown incomplete", "addr", srv.Addr, "err", err)
		}
	}
	if health != nil {
		health.Stop()
	}
	wg.Wait()
	hookEngine.Wait()
}

func newServer(sc config.ServerConfig, port int, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: sc.ReadHeaderTimeout,
		ReadTimeout:       sc.ReadTimeout,
		WriteTimeout:      sc.WriteTimeout,
		IdleTimeout:       sc.IdleTimeout,
	}
}
