// Package main provides the entry point for cardinal-server.
//
// cardinal-server is an in-memory key-value server speaking the
// Redis serialization protocol, with optional snapshot loading at
// startup.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/cardinalkv/cardinal/internal/infra/buildinfo"
	"github.com/cardinalkv/cardinal/internal/infra/confloader"
	"github.com/cardinalkv/cardinal/internal/infra/shutdown"
	"github.com/cardinalkv/cardinal/internal/server/config"
	"github.com/cardinalkv/cardinal/internal/server/redisserver"
	"github.com/cardinalkv/cardinal/internal/storage/memory"
	"github.com/cardinalkv/cardinal/internal/storage/rdb"
	"github.com/cardinalkv/cardinal/internal/telemetry/logger"
	"github.com/cardinalkv/cardinal/internal/telemetry/metric"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		addr        = flag.String("addr", "", "Listen address (host:port)")
		dir         = flag.String("dir", "", "Snapshot directory")
		dbFilename  = flag.String("dbfilename", "", "Snapshot file name")
		replicaOf   = flag.String("replicaof", "", "Master to replicate from (\"host port\")")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("cardinal-server %s\n", buildinfo.Get().String())
		return nil
	}

	cfg, err := loadConfig(*configFile, flagOverrides(*addr, *dir, *dbFilename, *replicaOf))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	slog.SetDefault(log)

	log.Info("starting cardinal-server",
		"version", buildinfo.Version,
		"addr", cfg.Server.Addr,
		"config", *configFile)

	metrics := metric.NewRegistry()
	store := memory.New()
	metrics.RegisterKeyspace(store, memory.NumDatabases)

	loadSnapshot(cfg, store, metrics, log)

	srv := redisserver.New(&redisserver.Config{
		Addr:           cfg.Server.Addr,
		MaxMessageSize: cfg.Server.MaxMessageSize,
		Dir:            cfg.Snapshot.Dir,
		DBFilename:     cfg.Snapshot.DBFilename,
		ReplicaOf:      cfg.Replication.ReplicaOf,
	}, store, metrics, log)

	ctx := context.Background()
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	log.Info("server listening", "addr", srv.Addr())

	shutdownHandler := shutdown.NewHandler(shutdownTimeout)
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down server")
		return srv.Shutdown(ctx)
	})

	if cfg.Metrics.Enabled {
		metricsServer := startMetricsServer(cfg.Metrics.Addr, metrics, log)
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			log.Info("shutting down metrics server")
			return metricsServer.Shutdown(ctx)
		})
	}

	if *configFile != "" {
		watcher, err := watchConfig(*configFile, log)
		if err != nil {
			log.Warn("configuration watcher unavailable", "error", err)
		} else {
			shutdownHandler.OnShutdown(func(ctx context.Context) error {
				return watcher.Stop()
			})
		}
	}

	log.Info("server started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("server stopped gracefully")
	return nil
}

// flagOverrides collects the command line flags that were set into a
// configuration overlay.
func flagOverrides(addr, dir, dbFilename, replicaOf string) map[string]any {
	overrides := map[string]any{}
	if addr != "" {
		overrides["server.addr"] = addr
	}
	if dir != "" {
		overrides["snapshot.dir"] = dir
	}
	if dbFilename != "" {
		overrides["snapshot.dbfilename"] = dbFilename
	}
	if replicaOf != "" {
		overrides["replication.replica_of"] = replicaOf
	}
	return overrides
}

// loadConfig layers defaults, the optional config file, environment
// variables, and command line flags, in that order.
func loadConfig(configFile string, overrides map[string]any) (*config.ServerConfig, error) {
	cfg := config.Default()

	opts := []confloader.Option{}
	if configFile != "" {
		opts = append(opts, confloader.WithConfigFile(configFile))
	}
	loader := confloader.NewLoader(opts...)

	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		if err := loader.LoadMap(overrides); err != nil {
			return nil, err
		}
		if err := loader.Unmarshal(cfg); err != nil {
			return nil, err
		}
	}

	if err := config.Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadSnapshot seeds the store from the configured snapshot file. A
// missing or unreadable snapshot is logged and the server starts
// empty.
func loadSnapshot(cfg *config.ServerConfig, store *memory.Store, metrics *metric.Registry, log *slog.Logger) {
	path := cfg.Snapshot.Path()
	if path == "" {
		return
	}

	if err := store.LoadSnapshot(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Info("snapshot file not found, starting empty", "path", path)
			return
		}
		if errors.Is(err, rdb.ErrCompressedString) {
			log.Warn("snapshot uses unsupported compression, starting empty", "path", path)
			return
		}
		log.Warn("failed to load snapshot, starting empty", "path", path, "error", err)
		return
	}

	keys := store.TotalKeys()
	metrics.KeysLoaded.Set(float64(keys))
	log.Info("snapshot loaded", "path", path, "keys", keys)
}

// startMetricsServer serves the Prometheus endpoint on its own
// listener.
func startMetricsServer(addr string, metrics *metric.Registry, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("metrics server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err)
		}
	}()

	return srv
}

// watchConfig reloads the log level when the configuration file
// changes.
func watchConfig(configFile string, log *slog.Logger) (*confloader.Watcher, error) {
	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := watcher.Watch(configFile); err != nil {
		return nil, err
	}

	watcher.OnChange(func(path string) {
		cfg := config.Default()
		loader := confloader.NewLoader(confloader.WithConfigFile(configFile))
		if err := loader.Load(cfg); err != nil {
			log.Warn("configuration reload failed", "error", err)
			return
		}
		if cfg.Log.Level != logger.Level() {
			logger.SetLevel(cfg.Log.Level)
			log.Info("log level updated", "level", cfg.Log.Level)
		}
	})
	watcher.StartAsync()

	return watcher, nil
}
