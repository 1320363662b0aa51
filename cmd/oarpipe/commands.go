package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/oar-pipeline/internal/classify"
	"github.com/oar-pipeline/internal/etl"
	"github.com/oar-pipeline/internal/export"
	"github.com/oar-pipeline/internal/fetch"
	"github.com/oar-pipeline/internal/metrics"
	"github.com/oar-pipeline/internal/model"
	"github.com/oar-pipeline/internal/store"
	"github.com/oar-pipeline/internal/validation"
	"github.com/oar-pipeline/internal/web"
)

// createRunCmd creates the end-to-end pipeline command
func createRunCmd(a *app) *cobra.Command {
	var (
		input    string
		fromAPI  bool
		fromBulk bool
		noStore  bool
		workers  int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the full pipeline",
		Long:  `Load raw records from a CSV file, the registry API or its bulk CSV export, build the relational tables, validate, analyse, classify and export them`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if input == "" && !fromAPI && !fromBulk {
				return errors.New("one of --input, --fetch or --bulk is required")
			}

			var src etl.Source
			switch {
			case fromAPI:
				src = etl.NewFetchSource(a.fetchClient(), a.cfg.RawDir, a.log)
			case fromBulk:
				src = etl.NewBulkSource(a.fetchClient(), a.cfg.RawDir, a.log)
			default:
				src = etl.NewFileSource(input, a.log)
			}

			keywords, err := a.keywords()
			if err != nil {
				return err
			}

			var st *store.Store
			if a.cfg.StoreEnabled() && !noStore {
				var closeStore func()
				st, closeStore, err = a.openStore(ctx)
				if err != nil {
					return err
				}
				defer closeStore()
			}

			if workers < 1 {
				workers = a.cfg.Workers
			}
			pipeline, err := etl.NewPipeline(etl.Options{
				Workers:  workers,
				Keywords: keywords,
				Dirs:     a.dirs(),
				Workbook: a.cfg.Workbook,
			}, a.log, metrics.New(), st)
			if err != nil {
				return err
			}

			res, err := pipeline.Run(ctx, src)
			if err != nil {
				return err
			}

			fmt.Printf("Run %s completed in %s\n", res.RunID, res.Duration.Round(time.Millisecond))
			fmt.Printf("  Records:    %d\n", res.Records)
			fmt.Printf("  Companies:  %d\n", len(res.Tables.Companies))
			fmt.Printf("  Facilities: %d\n", len(res.Tables.Facilities))
			fmt.Printf("  Links:      %d (dropped %d)\n", len(res.Tables.Links), res.Reconcile.Dropped())
			fmt.Printf("  Integrity:  %s\n", res.Validation)
			fmt.Printf("  Report:     %s\n", res.Files.Report)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Raw registry CSV file")
	cmd.Flags().BoolVar(&fromAPI, "fetch", false, "Fetch records from the registry API")
	cmd.Flags().BoolVar(&fromBulk, "bulk", false, "Download the registry bulk CSV export")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not save the run even if a database is configured")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of parallel workers (default OAR_WORKERS)")
	cmd.MarkFlagsMutuallyExclusive("input", "fetch", "bulk")
	return cmd
}

// createFetchCmd creates a command that only downloads a raw snapshot
func createFetchCmd(a *app) *cobra.Command {
	var (
		output string
		bulk   bool
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download facilities from the registry API into a raw CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := a.fetchClient()

			var (
				records []model.RawRecord
				stats   fetch.Stats
				err     error
			)
			if bulk {
				records, stats, err = client.DownloadBulk(cmd.Context(), nil)
			} else {
				records, stats, err = client.FetchFacilities(cmd.Context())
			}
			if err != nil {
				return err
			}

			if output == "" {
				output = filepath.Join(a.cfg.RawDir, fetch.SnapshotName(time.Now()))
			}
			if err := fetch.WriteRawCSV(output, records); err != nil {
				return err
			}

			fmt.Printf("Fetched %d facilities (%d companies) over %d pages into %s\n",
				stats.Kept, stats.Companies, stats.Pages, output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output CSV path (default a timestamped file in OAR_RAW_DIR)")
	cmd.Flags().BoolVar(&bulk, "bulk", false, "Download the bulk CSV export instead of paging the API")
	return cmd
}

// createValidateCmd creates a command checking exported tables
func createValidateCmd(a *app) *cobra.Command {
	var (
		dir    string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check relational integrity of exported tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = a.cfg.RelationalDir
			}
			tables, err := export.ReadTables(dir)
			if err != nil {
				return err
			}

			v := validation.NewValidator(a.log)
			report := v.Validate(tables)
			_, stats := v.Reconcile(tables)

			fmt.Printf("Companies: %d, Facilities: %d, Links: %d\n",
				len(tables.Companies), len(tables.Facilities), len(tables.Links))
			fmt.Printf("Integrity: %s\n", report)
			fmt.Printf("Unresolvable links: %d\n", stats.Dropped())

			if strict && (!report.OK() || stats.Dropped() > 0) {
				return errors.New("integrity check failed")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory holding the relational CSV tables (default OAR_RELATIONAL_DIR)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero on any integrity issue")
	return cmd
}

// createClassifyCmd creates a command classifying exported companies
func createClassifyCmd(a *app) *cobra.Command {
	var (
		dir    string
		output string
	)

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Match sustainability keywords against exported companies",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				dir = a.cfg.RelationalDir
			}
			tables, err := export.ReadTables(dir)
			if err != nil {
				return err
			}

			keywords, err := a.keywords()
			if err != nil {
				return err
			}
			if len(keywords) == 0 {
				keywords = classify.DefaultKeywords
			}
			classifier, err := classify.NewClassifier(a.log, keywords)
			if err != nil {
				return err
			}

			results, stats := classifier.Classify(tables.Companies)
			if output == "" {
				output = filepath.Join(a.cfg.OutputsDir, "classification_results.csv")
			}
			if err := export.WriteClassificationCSV(output, results); err != nil {
				return err
			}

			fmt.Printf("Matched %d of %d companies (%.1f%%), results in %s\n",
				stats.Matched, stats.Companies, stats.MatchRate*100, output)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory holding the relational CSV tables (default OAR_RELATIONAL_DIR)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output CSV path")
	return cmd
}

// createServeCmd creates the web API command
func createServeCmd(a *app) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored runs over the JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			cfg := web.ConfigFrom(a.cfg)
			if port > 0 {
				cfg.Port = port
			}
			return web.NewServer(cfg, st, metrics.New(), a.log).Run(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 0, "Listen port (default OAR_HTTP_PORT)")
	return cmd
}

// createPingCmd creates a command to test database connectivity
func createPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Test database connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := st.Ping(ctx); err != nil {
				return err
			}
			fmt.Printf("Database connection successful (%s)\n", a.cfg.DBDriver)

			latest, err := st.Tracker().Latest(ctx)
			if err != nil {
				a.log.Debug("No completed run", zap.Error(err))
				fmt.Println("No completed runs stored")
				return nil
			}
			fmt.Printf("Latest run: %s (%d companies, %d facilities, %d links)\n",
				latest.RunID, latest.Companies, latest.Facilities, latest.Links)
			return nil
		},
	}
}

// createRunsCmd creates a command listing the audit trail
func createRunsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, closeStore, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer closeStore()

			runs, err := st.Tracker().List(ctx, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RUN\tSTATUS\tSTARTED\tCOMPANIES\tFACILITIES\tLINKS\tSOURCE")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					r.RunID, r.Status, r.StartedAt.Format(time.RFC3339), r.Companies, r.Facilities, r.Links, r.Source)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	return cmd
}

// keywords returns the configured keyword list, or nil for the defaults.
func (a *app) keywords() ([]string, error) {
	if a.cfg.KeywordsFile == "" {
		return nil, nil
	}
	return classify.LoadKeywords(a.cfg.KeywordsFile)
}
