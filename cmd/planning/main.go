/*
main.go - Application entry point

PURPOSE:
  Command-line front end of the planning engine. Starts the HTTP API and
  exposes the maintenance operations planners run by hand.

COMMANDS:
  serve                      Start the HTTP server
  migrate                    Apply database migrations and exit
  template import <file>     Store a template document (YAML or JSON)
  counters rollover --from   Roll periodic counters into the next period

STARTUP SEQUENCE (serve):
  1. Load configuration (defaults, --config file, .env, PLANNING_* vars)
  2. Initialize zap logger
  3. Open the store (SQLite or PostgreSQL) and migrate
  4. Wire counter ledger, planning and absence services
  5. Configure HTTP router, start the rollover scheduler if enabled
  6. Serve until SIGINT/SIGTERM, then shut down gracefully

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the rollover scheduler
  2. Stop accepting new connections
  3. Wait for active requests (server.shutdown_timeout)
  4. Close the database

EXAMPLES:
  planning serve --config planning.yaml
  PLANNING_DATABASE_DRIVER=postgres PLANNING_DATABASE_DSN=postgres://... planning serve
  planning template import templates/semaine.yaml
  planning counters rollover --from 2025-2026

SEE ALSO:
  - config/config.go: settings and environment variables
  - api/server.go: Router configuration
  - store/sqlstore/sqlstore.go: Database implementation
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/villacare/planning-engine/api"
	"github.com/villacare/planning-engine/config"
	"github.com/villacare/planning-engine/counter"
	"github.com/villacare/planning-engine/factory"
	"github.com/villacare/planning-engine/logging"
	"github.com/villacare/planning-engine/planning"
	"github.com/villacare/planning-engine/store/sqlstore"
	"github.com/villacare/planning-engine/timeoff"
)

// App holds the application dependencies.
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *sqlstore.Store
	ledger   *counter.Ledger
	planning *planning.Service
	absences *timeoff.Service
	ctx      context.Context

	closeLog func()
}

var (
	configPath string
	app        *App
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "planning",
		Short:         "Villa planning engine",
		Long:          `Shift planning for villas: templates, assignments, validation, publication and day counters.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeApp()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(countersCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		closeApp()
		os.Exit(1)
	}
}

// initApp loads configuration, sets up the logger and opens the store.
func initApp() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, closeLog, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app = &App{cfg: cfg, logger: logger, closeLog: closeLog, ctx: context.Background()}

	loc, err := cfg.Planning.Location()
	if err != nil {
		return fmt.Errorf("failed to load time zone %q: %w", cfg.Planning.Timezone, err)
	}

	logger.Info("Opening database", zap.String("driver", cfg.Database.Driver))
	app.store, err = sqlstore.Open(app.ctx, sqlstore.Dialect(cfg.Database.Driver), cfg.Database.DSN, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	app.ledger = counter.NewLedger(app.store, cfg.Counters.Periods(loc), cfg.Counters.Allocation(),
		counter.WithLogger(logger.Named("counter")))
	app.planning = planning.NewService(app.store, app.ledger,
		planning.WithLocation(loc),
		planning.WithLogger(logger.Named("planning")))
	app.absences = timeoff.NewService(app.store, app.ledger, timeoff.WithLogger(logger.Named("timeoff")))

	logger.Debug("Application initialized", zap.String("timezone", loc.String()))
	return nil
}

func closeApp() {
	if app == nil {
		return
	}
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			app.logger.Warn("Failed to close database", zap.Error(err))
		}
		app.store = nil
	}
	if app.closeLog != nil {
		app.closeLog()
		app.closeLog = nil
	}
}

// =============================================================================
// SERVE
// =============================================================================

func serveCmd() *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.cfg
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			return serve(cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP server port (overrides server.port)")
	return cmd
}

func serve(cfg *config.Config) error {
	logger := app.logger

	handler := api.NewHandler(app.planning, app.absences, logger.Named("api"))
	router := api.NewRouter(handler, api.RouterOptions{
		CORSOrigins: cfg.Server.CORSOrigins,
		Logger:      logger.Named("http"),
	})

	var scheduler *api.RolloverScheduler
	if cfg.Scheduler.RolloverEnabled {
		scheduler = api.NewRolloverScheduler(app.ledger, cfg.Scheduler.Interval, logger)
		scheduler.Start()
		defer scheduler.Stop()
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-quit:
		logger.Info("Shutting down server", zap.String("signal", sig.String()))
	}

	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Open already migrated; run again to report an up-to-date schema.
			if err := app.store.Migrate(app.ctx); err != nil {
				return fmt.Errorf("failed to migrate: %w", err)
			}
			fmt.Printf("Database schema is up to date (%s)\n", app.store.Dialect())
			return nil
		},
	}
}

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage shift templates",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file>",
		Short: "Import a template document (.yaml, .yml or .json)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			tmpl, err := factory.NewTemplateFactory().Parse(data, factory.FormatFromPath(path))
			if err != nil {
				return fmt.Errorf("invalid template %s: %w", path, err)
			}
			saved, err := app.planning.CreateTemplate(app.ctx, *tmpl)
			if err != nil {
				return fmt.Errorf("failed to store template: %w", err)
			}

			fmt.Printf("\nTemplate imported\n\n")
			fmt.Printf("ID:      %s\n", saved.ID)
			fmt.Printf("Name:    %s\n", saved.Name)
			fmt.Printf("Default: %t\n", saved.IsDefault)
			fmt.Printf("Slots:   %d\n\n", len(saved.Slots))
			for _, s := range saved.Slots {
				fmt.Printf("  %-20s %s-%s  %s\n", s.Label, s.StartTime, s.EndTime, s.Recurrence())
			}
			fmt.Println()
			return nil
		},
	})
	return cmd
}

func countersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "counters",
		Short: "Administer day counters",
	}

	var from, userID string
	rollover := &cobra.Command{
		Use:   "rollover",
		Short: "Carry remaining paid leave of a period into the next one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID != "" {
				res, err := app.ledger.RollToNewPeriod(app.ctx, userID, from)
				if err != nil {
					return fmt.Errorf("failed to roll over %s: %w", userID, err)
				}
				printRollover([]counter.RolloverResult{*res})
				return nil
			}

			results, failures, err := app.ledger.RollAll(app.ctx, from)
			if err != nil {
				return fmt.Errorf("failed to roll over %s: %w", from, err)
			}
			printRollover(results)
			for user, ferr := range failures {
				fmt.Printf("  FAILED %-36s %v\n", user, ferr)
			}
			if len(failures) > 0 {
				return fmt.Errorf("%d counters could not be rolled over", len(failures))
			}
			return nil
		},
	}
	rollover.Flags().StringVar(&from, "from", "", "Period key to close, e.g. 2025-2026")
	rollover.Flags().StringVar(&userID, "user", "", "Only roll this user's counter")
	_ = rollover.MarkFlagRequired("from")

	cmd.AddCommand(rollover)
	return cmd
}

func printRollover(results []counter.RolloverResult) {
	fmt.Printf("\n%-36s  %-10s  %-10s  %9s  %9s\n", "User", "From", "To", "Carried", "Forfeited")
	for _, r := range results {
		fmt.Printf("%-36s  %-10s  %-10s  %9s  %9s\n",
			r.UserID, r.FromKey, r.ToKey, r.CarriedOver.String(), r.Forfeited.String())
	}
	fmt.Printf("\n%d counters rolled over\n", len(results))
}
