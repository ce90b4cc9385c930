package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/benthamhq/bentham/pkg/auth"
	"github.com/benthamhq/bentham/pkg/config"
	"github.com/benthamhq/bentham/pkg/events"
	"github.com/benthamhq/bentham/pkg/executor"
	"github.com/benthamhq/bentham/pkg/gateway"
	"github.com/benthamhq/bentham/pkg/log"
	"github.com/benthamhq/bentham/pkg/metrics"
	"github.com/benthamhq/bentham/pkg/orchestrator"
	"github.com/benthamhq/bentham/pkg/ratelimit"
	"github.com/benthamhq/bentham/pkg/recovery"
	"github.com/benthamhq/bentham/pkg/sessions"
	"github.com/benthamhq/bentham/pkg/storage"
	"github.com/benthamhq/bentham/pkg/surface"
	"github.com/benthamhq/bentham/pkg/validator"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the study execution server",
	Long: `Start the full service: the tenant-facing API gateway, the study
orchestrator, the executor pool, and the surface health prober, backed
by an embedded bbolt database.

Examples:
  # Run with defaults (listens on :8080, data in ./data)
  bentham serve

  # Run with a config file
  bentham serve --config /etc/bentham/bentham.yaml`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("config", "", "Path to YAML config file")
	serveCmd.Flags().String("listen", "", "Listen address (overrides config)")
	serveCmd.Flags().String("data-dir", "", "Data directory (overrides config)")
	serveCmd.Flags().Bool("dev", false, "Mint an ephemeral dev API key at startup and print it")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
		cfg.ListenAddr = listen
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	logger := log.WithComponent("serve")
	logger.Info().Str("version", Version).Msg("Starting bentham")

	store, err := storage.NewBoltStore(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()

	registry, err := surface.NewRegistry(cfg.Surfaces)
	if err != nil {
		return fmt.Errorf("failed to build surface registry: %w", err)
	}
	defer registry.CloseAll()

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	logSub := events.NewLogSubscriber(broker)
	defer logSub.Stop()

	rec := recovery.NewManager(recovery.Config{
		MaxRetries:   cfg.Recovery.MaxRetries,
		BaseDelay:    time.Duration(cfg.Recovery.BaseDelayMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.Recovery.MaxDelayMs) * time.Millisecond,
		Threshold:    cfg.Recovery.Threshold,
		ResetTimeout: time.Duration(cfg.Recovery.ResetMs) * time.Millisecond,
	}, broker)

	exec := executor.New(store, registry, rec, sessions.NewRegistry(cfg.SessionTTL()), broker, executor.Config{
		Workers: cfg.Executor.Workers,
	})
	defer exec.Stop()

	orch := orchestrator.New(store, validator.New(), exec, broker, registry.Pricing())

	monitor := orchestrator.NewMonitor(orch, cfg.MonitorInterval())
	monitor.Start()
	defer monitor.Stop()

	prober := surface.NewProber(registry, rec, cfg.ProbeInterval())
	prober.Start()
	defer prober.Stop()

	collector := metrics.NewCollector(store, rec)
	collector.Start()
	defer collector.Stop()

	var limiter ratelimit.Limiter
	var redisLimiter *ratelimit.RedisLimiter
	if cfg.RedisAddr != "" {
		redisLimiter, err = ratelimit.NewRedisLimiter(cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		limiter = redisLimiter
		logger.Info().Str("addr", cfg.RedisAddr).Msg("Using redis rate limiter")
	} else {
		limiter = ratelimit.NewLocalLimiter()
	}
	defer limiter.Close()

	keychain := auth.NewKeychain(store)
	if dev, _ := cmd.Flags().GetBool("dev"); dev {
		key, secret, err := auth.Mint("dev", "dev key", 0, 0, nil)
		if err != nil {
			return fmt.Errorf("failed to mint dev key: %w", err)
		}
		if err := keychain.Add(key); err != nil {
			return fmt.Errorf("failed to store dev key: %w", err)
		}
		fmt.Printf("Dev API key (tenant %q): %s\n", key.TenantID, secret)
	}

	server := gateway.NewServer(gateway.Config{
		ListenAddr:   cfg.ListenAddr,
		MaxBodyBytes: cfg.MaxBodyBytes,
	}, orch, keychain, limiter, store, redisLimiter)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Graceful shutdown failed")
	}
	return nil
}
