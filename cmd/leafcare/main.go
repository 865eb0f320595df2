// Command leafcare runs the plant-care service and its maintenance tasks.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"github.com/conorfennell/leafcare/internal/catalog"
	"github.com/conorfennell/leafcare/internal/config"
	"github.com/conorfennell/leafcare/internal/domain"
	"github.com/conorfennell/leafcare/internal/garden"
	"github.com/conorfennell/leafcare/internal/identify"
	"github.com/conorfennell/leafcare/internal/jobs"
	"github.com/conorfennell/leafcare/internal/metrics"
	"github.com/conorfennell/leafcare/internal/notify"
	"github.com/conorfennell/leafcare/internal/storage"
	"github.com/conorfennell/leafcare/internal/web"
	"github.com/conorfennell/leafcare/internal/wiki"
)

var version = "dev"

const (
	dueCheckTimeout    = 30 * time.Second
	catalogSyncTimeout = 10 * time.Minute
	watchDebounce      = 2 * time.Second
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "leafcare",
		Short:         "Plant identification and care reminders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(serveCmd(), dueCmd(), completeCmd(), syncCmd(), versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "leafcare %s\n", version)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, reminder checks and catalog syncs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cmd)
		},
	}
}

func dueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "due",
		Short: "List care tasks due today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			due := a.garden.DueTasks(a.now())
			if len(due) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing due today.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PLANT\tTASK\tTIME\tFREQUENCY\tPLANT ID")
			for _, t := range due {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.PlantName, t.Type, t.Time, t.Frequency, t.PlantID)
			}
			return tw.Flush()
		},
	}
}

func completeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <plant-id> <task>",
		Short: "Record that a care task was done",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, ok := parseTask(args[1])
			if !ok {
				return fmt.Errorf("unknown task %q", args[1])
			}
			a, err := setup(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.garden.CompleteTask(cmd.Context(), args[0], task, a.now()); err != nil {
				return fmt.Errorf("failed to complete task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s for %s.\n", task, args[0])
			return nil
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Sync the care-guide catalog from its sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.catalog.Sync(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to sync catalog: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d sources (%d failed): %d guides, %d added, %d removed, %d parse errors.\n",
				stats.Sources, stats.Failed, stats.Entries, stats.Added, stats.Removed, stats.Errors)
			return nil
		},
	}
}

// parseTask matches a care action case-insensitively.
func parseTask(s string) (domain.TaskType, bool) {
	for _, t := range domain.TaskTypes {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	return "", false
}

// app holds what every command shares.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	loc     *time.Location
	store   storage.Store
	garden  *garden.Service
	catalog *catalog.Catalog
	metrics *metrics.Metrics
}

func setup(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	log := newLogger(cfg.Log)
	slog.SetDefault(log)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	log.Info("Storage opened", "driver", cfg.Storage.Driver)

	a := &app{cfg: cfg, log: log, loc: loc, store: store, metrics: metrics.New()}
	a.garden = garden.New(store, garden.Options{
		Logger:               log.With("component", "garden"),
		Clock:                a.now,
		PurgeHistoryOnRemove: cfg.Garden.PurgeHistoryOnRemove,
	})
	if err := a.garden.Load(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to load garden: %w", err)
	}

	a.catalog = catalog.New(cfg.Catalog, store, log)
	if err := a.catalog.Load(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return a, nil
}

func (a *app) now() time.Time {
	return time.Now().In(a.loc)
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("Failed to close storage", "error", err)
	}
}

func newLogger(cfg config.Log) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func serve(ctx context.Context, cmd *cobra.Command) error {
	a, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.close()
	cfg, log := a.cfg, a.log

	notifier, err := notify.Open(cfg.Notify, log)
	if err != nil {
		return fmt.Errorf("failed to open notifier: %w", err)
	}
	dispatcher := notify.NewDispatcher(notifier, cfg.Notify.RatePerSec, a.metrics, log)

	srv := web.NewServer(web.Options{
		Garden:     a.garden,
		Identifier: identify.New(cfg.AI, log),
		Images:     wiki.New(cfg.Wiki, log),
		Catalog:    a.catalog,
		Metrics:    a.metrics,
		Clock:      a.now,
		Logger:     log,
	})

	sched := jobs.New(a.loc, log)
	if err := sched.Add("due-check", cfg.Notify.CheckSchedule, dueCheckTimeout,
		jobs.DueCheck(a.garden, dispatcher, a.now, a.metrics, log)); err != nil {
		return err
	}
	syncJob := jobs.CatalogSync(a.catalog, a.metrics)
	if len(cfg.Catalog.Sources) > 0 {
		if err := sched.Add("catalog-sync", cfg.Catalog.SyncSchedule, catalogSyncTimeout, syncJob); err != nil {
			return err
		}
	}
	sched.Start(ctx)

	if len(cfg.Catalog.Sources) > 0 {
		go sched.RunNow("catalog-sync", catalogSyncTimeout, syncJob)
	}
	if cfg.Catalog.Watch {
		go func() {
			if err := a.catalog.Watch(ctx, watchDebounce); err != nil {
				log.Error("Catalog watcher stopped", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", "addr", cfg.HTTP.Addr, "version", version)
		errCh <- httpServer.ListenAndServe()
	}()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("Failed to notify systemd", "error", err)
	} else if ok {
		log.Debug("Notified systemd of readiness")
	}

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("server failed: %w", err)
		}
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	timeout := cfg.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	sched.Stop(shutdownCtx)
	return runErr
}
