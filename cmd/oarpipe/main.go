package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oar-pipeline/internal/config"
	"github.com/oar-pipeline/internal/db"
	"github.com/oar-pipeline/internal/debug"
	"github.com/oar-pipeline/internal/export"
	"github.com/oar-pipeline/internal/fetch"
	"github.com/oar-pipeline/internal/store"
)

// app carries the state shared by every subcommand.
type app struct {
	envFile string
	verbose bool

	cfg *config.Config
	log *zap.Logger
}

func main() {
	a := &app{}

	// Create root command
	rootCmd := &cobra.Command{
		Use:           "oarpipe",
		Short:         "Open Apparel Registry facility/company pipeline",
		Long:          `Builds normalized Companies, Facilities and Links tables from the Open Apparel Registry and reports on them`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&a.envFile, "env-file", "", "Load environment from this file instead of .env")

	// Add subcommands
	rootCmd.AddCommand(createRunCmd(a))
	rootCmd.AddCommand(createFetchCmd(a))
	rootCmd.AddCommand(createValidateCmd(a))
	rootCmd.AddCommand(createClassifyCmd(a))
	rootCmd.AddCommand(createServeCmd(a))
	rootCmd.AddCommand(createPingCmd(a))
	rootCmd.AddCommand(createRunsCmd(a))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if a.log != nil {
		if err != nil {
			a.log.Error("Command failed", zap.Error(err))
		}
		_ = a.log.Sync()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (a *app) init() error {
	var err error
	if a.envFile != "" {
		err = config.LoadEnv(a.envFile)
	} else {
		err = config.LoadEnv()
	}
	if err != nil {
		return err
	}

	a.cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	a.log, err = debug.NewLogger(a.cfg.LogLevel, a.cfg.LogFormat, a.verbose, a.cfg.LogDir)
	return err
}

func (a *app) dirs() export.Dirs {
	return export.Dirs{
		Cleaned:    a.cfg.CleanedDir,
		Relational: a.cfg.RelationalDir,
		Outputs:    a.cfg.OutputsDir,
		Final:      a.cfg.FinalDir,
	}
}

func (a *app) fetchClient() *fetch.Client {
	opts := fetch.DefaultOptions()
	opts.BaseURL = a.cfg.APIURL
	opts.BulkURL = a.cfg.BulkURL
	opts.Countries = a.cfg.Countries
	opts.MinCompanies = a.cfg.MinCompanies
	opts.Timeout = a.cfg.FetchTimeout
	opts.Retries = a.cfg.FetchRetries
	opts.Backoff = a.cfg.FetchBackoff
	opts.RateLimit = a.cfg.FetchRateLimit
	opts.MaxPages = a.cfg.FetchMaxPages
	return fetch.NewClient(a.log, opts)
}

// openStore connects to the configured database and ensures the schema.
// The returned close func must be called when done.
func (a *app) openStore(ctx context.Context) (*store.Store, func(), error) {
	if !a.cfg.StoreEnabled() {
		return nil, nil, fmt.Errorf("no database configured: set OAR_DB_DRIVER and OAR_DB_DSN")
	}

	conn, err := db.Open(ctx, a.cfg.DBDriver, a.cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	st := store.New(conn, a.log)
	if err := st.Init(ctx); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return st, func() { conn.Close() }, nil
}
