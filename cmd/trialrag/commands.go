package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trialmatch/trialrag/internal/cache"
	"github.com/trialmatch/trialrag/internal/corpus"
	"github.com/trialmatch/trialrag/internal/evaluation"
	"github.com/trialmatch/trialrag/internal/lightrag"
	"github.com/trialmatch/trialrag/internal/server"
	"github.com/trialmatch/trialrag/internal/store"
	"github.com/trialmatch/trialrag/internal/table"
)

// signalContext is cancelled on interrupt or termination.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of trials in the studies table",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext(cmd)
			defer stop()

			f, err := a.fetcher()
			if err != nil {
				return err
			}
			n, err := f.CountTotal(ctx)
			if err != nil {
				return err
			}

			if a.format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]int64{"total": n})
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func fetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch eligibility criteria and merge them onto the trials table",
		Long: `Read the trials CSV, fetch the eligibility criteria of every distinct
nct_id and write the left-merged table. With --batch-size 0 all identifiers
are fetched in one query.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			trialsPath := stringFlag(cmd, "trials", a.cfg.Data.TrialsCSV)
			outPath := stringFlag(cmd, "out", a.cfg.Data.EligibilityCSV)
			batchSize := a.cfg.Data.BatchSize
			if cmd.Flags().Changed("batch-size") {
				batchSize, _ = cmd.Flags().GetInt("batch-size")
			}
			if trialsPath == "" || outPath == "" {
				return fmt.Errorf("--trials and --out are required")
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			trials, err := table.ReadCSVFile(trialsPath)
			if err != nil {
				return err
			}
			ids := trials.Unique(store.ColumnID)

			f, err := a.fetcher()
			if err != nil {
				return err
			}
			criteria, err := f.FetchAll(ctx, ids, batchSize)
			if err != nil {
				return err
			}

			merged, err := table.LeftMerge(trials, criteria, store.ColumnID)
			if err != nil {
				return err
			}
			if err := table.WriteCSVFile(outPath, merged); err != nil {
				return err
			}

			a.log.Info("Wrote merged table", "path", outPath, "trials", len(ids), "rows", merged.Len())
			return nil
		},
	}

	cmd.Flags().String("trials", "", "trials CSV with an nct_id column (default from config)")
	cmd.Flags().String("out", "", "output CSV path (default from config)")
	cmd.Flags().Int("batch-size", 0, "identifiers per query, 0 for a single query")

	return cmd
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Render one document per trial and index it",
		Long: `Render the merged trial table into documents and insert them into the
LightRAG server, then wait for its pipeline to drain. When ground-truth files
are given only the trials they reference are indexed. --dry-run renders into
an in-process store instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			tablePath := stringFlag(cmd, "table", a.cfg.Data.EligibilityCSV)
			if tablePath == "" {
				return fmt.Errorf("--table is required")
			}
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			ctx, stop := signalContext(cmd)
			defer stop()

			tbl, err := table.ReadCSVFile(tablePath)
			if err != nil {
				return err
			}

			var allow map[string]struct{}
			if gt := stringSliceFlag(cmd, "gt", a.cfg.Data.GroundTruth); len(gt) > 0 {
				groups, err := evaluation.LoadGroupFiles(groupFilter(cmd, a.cfg.Data.Topics), gt...)
				if err != nil {
					return err
				}
				allow = evaluation.AllowSet(groups)
				a.log.Info("Restricting corpus to ground truth", "groups", len(groups), "trials", len(allow))
			}

			var indexer corpus.Indexer = a.lightrag()
			if dryRun {
				indexer = lightrag.NewMemoryStore()
			}

			eventBus, err := a.bus()
			if err != nil {
				return err
			}

			b := corpus.NewBuilder(corpus.DefaultConfig(), indexer, a.log, eventBus, a.metrics)
			b.SetProgressCallback(func(p corpus.Progress) {
				if p.Stage != corpus.StageInserting || p.Current%100 == 0 || p.Current == p.Total {
					a.log.Info("Ingest progress", "stage", p.Stage, "current", p.Current, "total", p.Total, "percent", p.Percent)
				}
			})

			result, err := b.Build(ctx, tbl, allow)
			if err != nil {
				if result != nil {
					a.log.Error("Ingest stopped", "processed", result.Inserted, "total", result.Total)
				}
				return err
			}

			if a.format == "json" {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d of %d documents (%d header only, %d rows without id) in %s\n",
				result.Inserted, result.Total, result.Empty, result.Skipped, result.Duration)
			return nil
		},
	}

	cmd.Flags().String("table", "", "merged trial table CSV (default from config)")
	cmd.Flags().StringSlice("gt", nil, "ground-truth CSVs restricting the corpus")
	cmd.Flags().StringSlice("topics", nil, "topic ids to keep from the ground truth")
	cmd.Flags().Bool("dry-run", false, "index into an in-process store")

	return cmd
}

func evaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Query every topic and score the answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			gt := stringSliceFlag(cmd, "gt", a.cfg.Data.GroundTruth)
			if len(gt) == 0 {
				return fmt.Errorf("--gt is required")
			}

			ctx, stop := signalContext(cmd)
			defer stop()

			groups, err := evaluation.LoadGroupFiles(groupFilter(cmd, a.cfg.Data.Topics), gt...)
			if err != nil {
				return err
			}

			ev, err := a.evaluator(cmd)
			if err != nil {
				return err
			}

			report, err := ev.Evaluate(ctx, groups)
			if err != nil {
				return err
			}

			if a.format == "json" {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			return report.WriteText(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSlice("gt", nil, "ground-truth CSVs (default from config)")
	cmd.Flags().StringSlice("topics", nil, "topic ids to evaluate, empty for all")
	cmd.Flags().String("mode", "", "retrieval mode (local, global, hybrid, naive, mix, bypass)")
	cmd.Flags().Int("top-k", 0, "entities or relations retrieved per query")
	cmd.Flags().Int("concurrency", 0, "queries in flight")
	cmd.Flags().Bool("no-cache", false, "send every query to the server")

	return cmd
}

// evaluator builds an Evaluator over the LightRAG client, applying flag
// overrides from cmd when it defines them.
func (a *app) evaluator(cmd *cobra.Command) (*evaluation.Evaluator, error) {
	opts := evaluation.DefaultOptions()
	opts.Param = a.queryParam()
	opts.Concurrency = a.cfg.Query.Concurrency
	opts.DisableCache = a.cfg.Query.DisableCache

	flags := cmd.Flags()
	if flags.Changed("mode") {
		opts.Param.Mode, _ = flags.GetString("mode")
	}
	if flags.Changed("top-k") {
		opts.Param.TopK, _ = flags.GetInt("top-k")
	}
	if flags.Changed("concurrency") {
		opts.Concurrency, _ = flags.GetInt("concurrency")
	}
	if noCache, _ := flags.GetBool("no-cache"); noCache {
		opts.DisableCache = true
	}

	var c cache.Cache
	if !opts.DisableCache {
		var err error
		if c, err = a.cache(); err != nil {
			return nil, err
		}
	}

	eventBus, err := a.bus()
	if err != nil {
		return nil, err
	}
	return evaluation.NewEvaluator(a.lightrag(), c, opts, a.log, eventBus, a.metrics)
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve scoring, live evaluation, health and metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			cfg := server.DefaultConfig()
			cfg.Host = a.cfg.Server.Host
			cfg.Port = a.cfg.Server.Port
			cfg.RateLimit = a.cfg.Server.RateLimit
			cfg.Version = version
			if cmd.Flags().Changed("host") {
				cfg.Host, _ = cmd.Flags().GetString("host")
			}
			if cmd.Flags().Changed("port") {
				cfg.Port, _ = cmd.Flags().GetInt("port")
			}

			ev, err := a.evaluator(cmd)
			if err != nil {
				return err
			}

			srv := server.New(cfg, server.Deps{
				Evaluator: ev,
				Health:    a.lightrag(),
				Metrics:   a.metrics,
			}, a.log)

			ctx, stop := signalContext(cmd)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				a.log.Info("Shutdown signal received")
			}
			return srv.Stop(context.Background())
		},
	}

	cmd.Flags().IntP("port", "p", 8080, "HTTP server port")
	cmd.Flags().String("host", "0.0.0.0", "HTTP server host")
	cmd.Flags().String("mode", "", "retrieval mode for live evaluation")
	cmd.Flags().Int("top-k", 0, "entities or relations retrieved per query")
	cmd.Flags().Int("concurrency", 0, "queries in flight per evaluation")
	cmd.Flags().Bool("no-cache", false, "send every query to the server")

	return cmd
}

func groupFilter(cmd *cobra.Command, topics []string) evaluation.GroupFilter {
	f := evaluation.DefaultGroupFilter()
	f.Topics = stringSliceFlag(cmd, "topics", topics)
	return f
}

func stringFlag(cmd *cobra.Command, name, fallback string) string {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return fallback
}

func stringSliceFlag(cmd *cobra.Command, name string, fallback []string) []string {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetStringSlice(name)
		return v
	}
	return fallback
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
