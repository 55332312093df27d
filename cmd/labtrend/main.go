package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/labtrend/labtrend/internal/config"
	"github.com/labtrend/labtrend/internal/domain/records"
	"github.com/labtrend/labtrend/internal/extract"
	"github.com/labtrend/labtrend/internal/loader"
	"github.com/labtrend/labtrend/internal/match"
	"github.com/labtrend/labtrend/internal/normalize"
	"github.com/labtrend/labtrend/internal/platform/db"
)

// rootFlags are the persistent flags that override configuration.
type rootFlags struct {
	dataDir string
	debug   bool
	workers int
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	rootCmd := &cobra.Command{
		Use:          "labtrend",
		Short:        "Lab result extraction and trend queries",
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.dataDir, "data-dir", "", "Folder of input documents (overrides DATA_DIR)")
	pf.BoolVar(&flags.debug, "debug", false, "Log parser diagnostics (overrides DEBUG)")
	pf.IntVar(&flags.workers, "workers", 0, "Files parsed in parallel (overrides LOAD_WORKERS)")

	rootCmd.AddCommand(loadCmd(flags))
	rootCmd.AddCommand(listCmd(flags))
	rootCmd.AddCommand(queryCmd(flags))
	rootCmd.AddCommand(abnormalCmd(flags))
	rootCmd.AddCommand(chartCmd(flags))
	rootCmd.AddCommand(shellCmd(flags))
	rootCmd.AddCommand(convertCmd(flags))
	rootCmd.AddCommand(serveCmd(flags))
	rootCmd.AddCommand(migrateCmd(flags))
	rootCmd.AddCommand(snapshotCmd(flags))
	rootCmd.AddCommand(tokenCmd(flags))

	return rootCmd
}

// loadConfig reads configuration and applies any flags set on cmd.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, flags, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, flags *rootFlags, cfg *config.Config) {
	set := cmd.Flags()
	if set.Changed("data-dir") {
		cfg.DataDir = flags.dataDir
	}
	if set.Changed("debug") {
		cfg.Debug = flags.debug
	}
	if set.Changed("workers") {
		cfg.LoadWorkers = flags.workers
	}
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	logger := zerolog.New(w).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
	}
	if cfg.Debug {
		return logger.Level(zerolog.DebugLevel)
	}
	return logger.Level(zerolog.InfoLevel)
}

// newLoader builds the extract, normalize and load pipeline.
func newLoader(cfg *config.Config, logger zerolog.Logger) (*loader.Loader, *normalize.Normalizer, error) {
	n, err := normalize.Load(cfg.NormalizerRulesFile)
	if err != nil {
		return nil, nil, err
	}
	source := cfg.NormalizerRulesFile
	if source == "" {
		source = "embedded"
	}
	logger.Debug().Str("source", source).Int("rules", len(n.Rules())).Msg("normalizer rules loaded")
	x := extract.New(cfg.Limits, logger)
	l := loader.New(x, n, logger, loader.Options{
		Extensions: cfg.DataExtensions,
		Workers:    cfg.LoadWorkers,
	})
	return l, n, nil
}

// newService wires the corpus service. pool may be nil.
func newService(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool) (*records.Service, error) {
	l, n, err := newLoader(cfg, logger)
	if err != nil {
		return nil, err
	}
	var snapshots records.SnapshotRepository
	if pool != nil {
		snapshots = records.NewSnapshotRepoPG(pool)
	}
	svc := records.NewService(l, cfg.DataDir, match.New(n), snapshots, logger)
	if err := svc.EnableQueryCache(cfg.QueryCacheSize); err != nil {
		return nil, err
	}
	return svc, nil
}

// loadService builds a service and fills it from the data folder.
func loadService(ctx context.Context, cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool) (*records.Service, error) {
	svc, err := newService(cfg, logger, pool)
	if err != nil {
		return nil, err
	}
	if _, err := svc.Reload(ctx); err != nil {
		return nil, userError(cfg, err)
	}
	return svc, nil
}

// userError rewrites collaborator failures into a message the user can act on.
func userError(cfg *config.Config, err error) error {
	if errors.Is(err, loader.ErrDataDirNotFound) {
		return fmt.Errorf("results folder %q not found. Set DATA_DIR or pass --data-dir", cfg.DataDir)
	}
	return err
}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	return db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
}
