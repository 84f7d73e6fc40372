package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ticketsync/ticketsync/pkg/browser"
	"github.com/ticketsync/ticketsync/pkg/config"
	"github.com/ticketsync/ticketsync/pkg/database"
	"github.com/ticketsync/ticketsync/pkg/logging"
	"github.com/ticketsync/ticketsync/pkg/metrics"
	"github.com/ticketsync/ticketsync/pkg/receipt"
	"github.com/ticketsync/ticketsync/pkg/repositories"
	"github.com/ticketsync/ticketsync/pkg/retry"
	"github.com/ticketsync/ticketsync/pkg/services"
)

// app carries what every command needs once configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB
}

// stages selects which pipeline stages a command runs.
type stages struct {
	discover bool
	convert  bool
	load     bool
}

func newRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Discover, convert and load new tickets",
		Long:  `Log in to the portal, download every ticket not seen before, convert the downloads to text and load their product lines.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStages(cmd.Context(), stages{discover: true, convert: true, load: true})
		},
	}
}

func newDiscoverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Download new tickets from the portal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStages(cmd.Context(), stages{discover: true})
		},
	}
}

func newConvertCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "convert",
		Short: "Convert downloaded tickets to text",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStages(cmd.Context(), stages{convert: true})
		},
	}
}

func newLoadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "load",
		Short: "Parse converted tickets and load their product lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStages(cmd.Context(), stages{load: true})
		},
	}
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  `Create or upgrade the tickets and products tables. Other commands do this on startup as well.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.logger.Sync() //nolint:errcheck
			return nil
		},
	}
}

func newInitConfigCommand() *cobra.Command {
	var output string
	var force bool

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a config file with default settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}

			cfg, err := config.Defaults()
			if err != nil {
				return err
			}
			data, err := config.Render(cfg)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, data, 0o600); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", config.DefaultPath, "Where to write the config file")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	return cmd
}

// setup loads configuration, builds the logger and, when needDB is set,
// connects to PostgreSQL and ensures the schema.
func setup(ctx context.Context, needDB bool) (*app, error) {
	cfg, err := config.Load(configPath, Version)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("tickets_dir", cfg.Storage.TicketsDir))

	a := &app{cfg: cfg, logger: logger}
	if !needDB {
		return a, nil
	}

	dsn := cfg.Database.ConnectionString()
	logger.Info("Connecting to database", zap.String("dsn", logging.SanitizeConnectionString(dsn)))

	policy := retry.DefaultConfig()
	policy.MaxRetries = cfg.Database.ConnectRetries
	db, err := database.Open(ctx, &database.Config{
		URL:            dsn,
		ConnectTimeout: cfg.Database.ConnectTimeout,
		Retry:          policy,
	})
	if err != nil {
		logger.Error("Database unreachable", zap.String("error", logging.SanitizeError(err, cfg.Database.Password)))
		return nil, errors.New(logging.SanitizeError(err, cfg.Database.Password))
	}
	if err := db.EnsureSchema(ctx, logger); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	a.db = db
	return a, nil
}

func runStages(ctx context.Context, s stages) error {
	a, err := setup(ctx, s.discover || s.load)
	if err != nil {
		return err
	}
	defer a.logger.Sync() //nolint:errcheck
	cfg := a.cfg

	if err := os.MkdirAll(cfg.Storage.TicketsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create tickets dir: %w", err)
	}

	var (
		discovery services.DiscoveryService
		converter services.ConverterService
		loader    services.LoaderService
	)

	if s.discover {
		if err := cfg.ValidateDiscovery(); err != nil {
			return err
		}
		session, err := browser.NewChromeSession(ctx, browser.Options{
			Headless:     !cfg.Browser.Headed,
			NoSandbox:    !cfg.Browser.BrowserSandbox(),
			ExecPath:     cfg.Browser.ExecPath,
			DownloadDir:  cfg.Storage.TicketsDir,
			ImplicitWait: cfg.Browser.ImplicitWait,
			WindowWidth:  cfg.Browser.WindowWidth,
			WindowHeight: cfg.Browser.WindowHeight,
		}, a.logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := session.Close(); err != nil {
				a.logger.Warn("Failed to close browser", zap.Error(err))
			}
		}()

		portal := services.NewPortal(session, cfg.Portal, cfg.Credentials, a.logger)
		locator := services.NewDownloadLocator(cfg.Storage.TicketsDir, cfg.Download, a.logger)
		discovery = services.NewDiscoveryService(
			session,
			portal,
			repositories.NewTicketRepository(a.db),
			locator,
			services.DiscoveryOptionsFromConfig(cfg),
			a.logger,
		)
	}

	if s.convert {
		converter = services.NewConverterService(cfg.Storage.TicketsDir, cfg.Converter, a.logger)
	}

	if s.load {
		parser := receipt.NewParser(receipt.LayoutFromConfig(cfg.Parser))
		loader = services.NewLoaderService(
			repositories.NewProductRepository(a.db),
			parser,
			services.LoaderOptionsFromConfig(cfg),
			a.logger,
		)
	}

	recorder := metrics.NewRecorder()
	pipeline := services.NewPipeline(discovery, converter, loader, recorder, a.logger).
		WithMetricsTextfile(cfg.Metrics.Textfile)
	report, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}
	if report.Load != nil && report.Load.ErrorLog != "" {
		a.logger.Warn("Run finished with load errors", zap.String("error_log", report.Load.ErrorLog))
	}
	return nil
}
