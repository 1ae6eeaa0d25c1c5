package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/glottahq/glotta/pkg/api"
	"github.com/glottahq/glotta/pkg/config"
	"github.com/glottahq/glotta/pkg/keyring"
	"github.com/glottahq/glotta/pkg/log"
	"github.com/glottahq/glotta/pkg/observer"
	"github.com/glottahq/glotta/pkg/prompts"
	"github.com/glottahq/glotta/pkg/provider"
	"github.com/glottahq/glotta/pkg/store"
	"github.com/glottahq/glotta/pkg/tasks"
	"github.com/glottahq/glotta/pkg/types"
	"github.com/glottahq/glotta/pkg/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a translation service instance",
	Long: `Start a glotta instance: the HTTP API, the worker pool, and the
background loops (heartbeat, cluster scaling, orphan reclaim).

Configuration comes from environment variables (REDIS_ADDR, SERVER_PORT,
CREDENTIALS_FILE, ...) with command-line flags taking precedence. Every
instance pointed at the same Redis joins the same cluster and shares the
task queue.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("host", "", "Listen host (overrides SERVER_HOST)")
	serveCmd.Flags().Int("port", 0, "Listen port (overrides SERVER_PORT)")
	serveCmd.Flags().String("redis", "", "Redis address (overrides REDIS_ADDR)")
	serveCmd.Flags().String("credentials", "", "Credentials file (overrides CREDENTIALS_FILE)")
	serveCmd.Flags().String("prompts", "", "Prompts file (overrides PROMPTS_FILE)")
	serveCmd.Flags().String("instance-id", "", "Instance identity in the cluster (overrides INSTANCE_ID)")
	serveCmd.Flags().Int("min-workers", 0, "Minimum local workers (overrides MIN_WORKERS)")
	serveCmd.Flags().Int("max-workers", 0, "Cluster-wide worker cap (overrides MAX_WORKERS)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Init(log.Config{Level: log.Level(cfg.LogLevel), JSONOutput: cfg.LogJSON})

	fmt.Println("Starting glotta...")
	fmt.Printf("  Listen: %s\n", cfg.ListenAddr())
	fmt.Printf("  Store: %s\n", cfg.RedisAddr)
	fmt.Printf("  Model: %s\n", cfg.GeminiModel)
	fmt.Println()

	st := store.New(store.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	err = st.Ping(pingCtx)
	cancelPing()
	if err != nil {
		return fmt.Errorf("store unreachable at %s: %w", cfg.RedisAddr, err)
	}
	fmt.Println("✓ Store connected")

	defaults := types.CredentialLimits{
		RequestsPerMinute: cfg.DefaultRPM,
		RequestsPerDay:    cfg.DefaultRPD,
		TokensPerMinute:   cfg.DefaultTPM,
	}
	creds, err := keyring.LoadCredentials(cfg.CredentialsFile, defaults)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	if len(creds) == 0 {
		fmt.Println("! No credentials configured; translations will fail until keys are added")
	} else {
		fmt.Printf("✓ Loaded %d credential(s)\n", len(creds))
	}
	keys := keyring.New(st, creds)

	pm := prompts.Load(cfg.PromptsFile)
	fmt.Printf("✓ Prompts ready (%d languages)\n", len(pm.Languages()))

	translator := provider.NewGemini(keys, pm, provider.Config{Model: cfg.GeminiModel})
	manager := tasks.NewManager(st)

	reclaimer := tasks.NewReclaimer(manager, cfg.ReclaimInterval, cfg.MaxProcessingTime)
	reclaimer.Start()
	fmt.Println("✓ Reclaimer started")

	pool := worker.NewPool(st, manager, translator, keys, worker.Config{
		InstanceID:            cfg.InstanceID,
		MinWorkers:            cfg.MinWorkers,
		MaxWorkers:            cfg.MaxWorkers,
		MaxWorkersPerInstance: cfg.MaxWorkersPerInstance,
		ScaleCheckInterval:    cfg.ScaleCheckInterval,
	})
	pool.Start(context.Background())
	fmt.Printf("✓ Worker pool started (instance %s)\n", pool.InstanceID())

	obs := observer.New(manager, cfg.PollingTimeout, cfg.PollingCheckInterval)

	srv := api.NewServer(api.Config{
		Addr:            cfg.ListenAddr(),
		Version:         Version,
		MaxUploadSize:   cfg.MaxUploadSize,
		GlobalRateLimit: cfg.GlobalRateLimit,
		BurstRateLimit:  cfg.BurstRateLimit,
		PollingTimeout:  cfg.PollingTimeout,
		DefaultRPM:      cfg.DefaultRPM,
		MaxWorkers:      cfg.MaxWorkers,
	}, api.Deps{
		Store:    st,
		Tasks:    manager,
		Observer: obs,
		Keys:     keys,
		Pool:     pool,
		Provider: translator,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	fmt.Printf("✓ API server listening on %s\n", cfg.ListenAddr())

	fmt.Println()
	fmt.Println("Glotta is running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
	}

	// Stop intake first, then drain workers, then the background sweeps.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "http shutdown: %v\n", err)
	}
	pool.Stop()
	reclaimer.Stop()
	_ = st.Close()

	fmt.Println("✓ Shutdown complete")
	return nil
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.ServerHost, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.ServerPort, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("redis") {
		cfg.RedisAddr, _ = cmd.Flags().GetString("redis")
	}
	if cmd.Flags().Changed("credentials") {
		cfg.CredentialsFile, _ = cmd.Flags().GetString("credentials")
	}
	if cmd.Flags().Changed("prompts") {
		cfg.PromptsFile, _ = cmd.Flags().GetString("prompts")
	}
	if cmd.Flags().Changed("instance-id") {
		cfg.InstanceID, _ = cmd.Flags().GetString("instance-id")
	}
	if cmd.Flags().Changed("min-workers") {
		cfg.MinWorkers, _ = cmd.Flags().GetInt("min-workers")
	}
	if cmd.Flags().Changed("max-workers") {
		cfg.MaxWorkers, _ = cmd.Flags().GetInt("max-workers")
	}
}
