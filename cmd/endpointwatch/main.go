package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"endpointwatch/internal/auth"
	"endpointwatch/internal/config"
	"endpointwatch/internal/domain"
	"endpointwatch/internal/httpapi"
	"endpointwatch/internal/logging"
	"endpointwatch/internal/monitor"
	"endpointwatch/internal/probe"
	"endpointwatch/internal/query"
	"endpointwatch/internal/store"
	"endpointwatch/internal/store/memory"
	"endpointwatch/internal/store/postgres"
	"endpointwatch/internal/store/sqlite"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "endpointwatch",
		Short:        "HTTP endpoint uptime and TLS monitor",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")

	root.AddCommand(serveCmd())
	root.AddCommand(checkCmd())

	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor loop and the query API",
		RunE:  runServe,
	}
}

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run one check cycle and exit",
		RunE:  runCheck,
	}
}

// dataStore is what every storage driver provides.
type dataStore interface {
	store.EndpointStore
	store.TelemetryStore
}

func openStore(ctx context.Context, cfg *config.Config) (dataStore, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.Storage.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("opening sqlite store: %w", err)
		}
		return db, func() { _ = db.Close() }, nil
	case config.DriverPostgres:
		db, err := postgres.New(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return db, db.Close, nil
	default:
		return memory.New(), func() {}, nil
	}
}

func buildVerifier(cfg *config.Config, log *zap.Logger) auth.Verifier {
	var vs auth.Multi
	if len(cfg.Auth.APIKeys) > 0 {
		keys := make(map[string]domain.OwnerID, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			keys[k.Key] = domain.OwnerID(k.OwnerID)
		}
		vs = append(vs, auth.NewStaticVerifier(keys))
	}
	if cfg.Auth.JWTSecret != "" {
		vs = append(vs, auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret), cfg.Auth.JWTIssuer))
	}
	if len(vs) == 0 {
		log.Warn("no_credentials_configured")
	}
	return vs
}

func seedEndpoints(ctx context.Context, st store.EndpointStore, cfg *config.Config) error {
	for _, e := range cfg.Endpoints {
		err := st.Put(ctx, &domain.Endpoint{
			ID:       domain.EndpointID(e.ID),
			OwnerID:  domain.OwnerID(e.OwnerID),
			URL:      e.URL,
			IsActive: e.IsActive,
		})
		if err != nil {
			return fmt.Errorf("seeding endpoint %s: %w", e.URL, err)
		}
	}
	return nil
}

func setup(ctx context.Context) (*config.Config, *zap.Logger, dataStore, func(), error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}
	log, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("building logger: %w", err)
	}
	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := seedEndpoints(ctx, st, cfg); err != nil {
		closeStore()
		return nil, nil, nil, nil, err
	}
	return cfg, log, st, closeStore, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, log, st, closeStore, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	defer func() { _ = log.Sync() }()

	prober := probe.NewHTTPProber(cfg.Monitor.Timeout, log)
	runner := monitor.NewRunner(log, st, st, prober, cfg.Monitor.Timeout, int64(cfg.Monitor.Concurrency))

	// the whole cycle gets a generous multiple of the per-check timeout
	sched, err := monitor.NewSchedule(log, runner, cfg.Monitor.Schedule, 10*cfg.Monitor.Timeout)
	if err != nil {
		return fmt.Errorf("building schedule: %w", err)
	}

	srv := httpapi.NewServer(log, query.NewService(log, st, st), runner, buildVerifier(cfg, log))
	srv.AllowedOrigins = cfg.Server.AllowedOrigins
	srv.RatePerMinute = cfg.Server.RatePerMinute
	srv.RateBurst = cfg.Server.RateBurst

	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: srv.Router(),
	}

	sched.Start()
	log.Info("monitor_started",
		zap.String("schedule", cfg.Monitor.Schedule),
		zap.Int("concurrency", cfg.Monitor.Concurrency),
	)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown_signal")
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}

	// Stop is non-blocking, so request draining proceeds while any in-flight
	// cycle finishes; the store is only closed once both are done.
	stopped := sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server_shutdown", zap.Error(err))
	}
	<-stopped.Done()

	log.Info("shutdown_complete")
	return nil
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, log, st, closeStore, err := setup(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	defer func() { _ = log.Sync() }()

	prober := probe.NewHTTPProber(cfg.Monitor.Timeout, log)
	runner := monitor.NewRunner(log, st, st, prober, cfg.Monitor.Timeout, int64(cfg.Monitor.Concurrency))

	summary, err := runner.RunCycle(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "checked=%d up=%d down=%d\n", summary.Checked, summary.Up, summary.Down)
	if summary.Down > 0 {
		return fmt.Errorf("%d endpoint(s) down", summary.Down)
	}
	return nil
}
