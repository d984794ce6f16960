package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tunogya/coil/pkg/config"
	"github.com/tunogya/coil/pkg/data"
	"github.com/tunogya/coil/pkg/dataset"
	"github.com/tunogya/coil/pkg/model"
	"github.com/tunogya/coil/pkg/outcome"
	"github.com/tunogya/coil/pkg/similarity"
	"github.com/tunogya/coil/pkg/store/duckdb"
	"github.com/tunogya/coil/pkg/store/milvus"
)

type options struct {
	configPath string
	csvPath    string
	symbol     string
	skipMilvus bool
	reset      bool
	exportPath string
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Scan historical daily bars for consolidation patterns and label their outcomes",
		Long: `Loads daily bars from a CSV file into DuckDB, replays every symbol through
the consolidation tracker without lookahead, labels each resolved pattern with
its forward outcome and indexes the labelled features in Milvus.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to YAML configuration")
	cmd.Flags().StringVar(&opts.csvPath, "csv", "", "CSV file with daily bars")
	cmd.Flags().StringVar(&opts.symbol, "symbol", "", "Symbol for CSV files without a symbol column")
	cmd.Flags().BoolVar(&opts.skipMilvus, "skip-milvus", false, "Do not index embeddings in Milvus")
	cmd.Flags().BoolVar(&opts.reset, "reset", false, "Drop and recreate every DuckDB table first")
	cmd.Flags().StringVar(&opts.exportPath, "export", "", "Write the labelled training set as JSON to this file")
	_ = cmd.MarkFlagRequired("csv")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Backfill failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	cfg.SetupLogger()
	started := time.Now()

	log.Info().Str("path", cfg.DuckDB.Path).Msg("Opening DuckDB")
	db, err := duckdb.Open(cfg.DuckDB.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	if opts.reset {
		if err := duckdb.DropAllTables(ctx, db); err != nil {
			return err
		}
		if err := duckdb.InitializeSchema(ctx, db); err != nil {
			return err
		}
		log.Warn().Msg("DuckDB tables reset")
	}

	bars := duckdb.NewBarRepo(db)
	patterns := duckdb.NewPatternRepo(db)
	samples := duckdb.NewSampleRepo(db)

	provider := data.NewCSVProvider(opts.csvPath, opts.symbol)
	series, err := data.FetchAll(ctx, provider, time.Time{}, time.Time{})
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", opts.csvPath, err)
	}
	if n := provider.Skipped(); n > 0 {
		log.Warn().Int("rows", n).Msg("Skipped malformed CSV rows")
	}
	for symbol, s := range series {
		if err := bars.InsertBatch(ctx, s); err != nil {
			return err
		}
		log.Info().Str("symbol", symbol).Int("bars", len(s)).Msg("Stored bars")
	}

	scanner := dataset.NewScanner(dataset.Config{
		Tracker:    cfg.Tracker(""),
		Outcome:    cfg.Outcome,
		MinHistory: cfg.Scan.MinHistory,
		Workers:    cfg.Scan.Workers,
	})
	results, err := scanner.ScanAll(ctx, series)
	if err != nil {
		return err
	}

	var labelled []*model.PatternOutcome
	for _, res := range results {
		for i := range res.Samples {
			if err := samples.SaveSample(ctx, &res.Samples[i]); err != nil {
				return err
			}
		}
		if err := patterns.UpsertBatch(ctx, persistable(res.Pending)); err != nil {
			return err
		}
		labelled = append(labelled, res.Outcomes()...)
		log.Info().Msg(res.Statistics.String())
	}
	log.Info().Msg(outcome.Summarize(labelled).String())

	if opts.exportPath != "" {
		if err := export(ctx, opts.exportPath, samples); err != nil {
			return err
		}
	}

	if !opts.skipMilvus {
		if err := index(ctx, cfg, samples); err != nil {
			return err
		}
	}

	log.Info().
		Int("symbols", len(results)).
		Int("samples", len(labelled)).
		Dur("elapsed", time.Since(started)).
		Msg("Backfill complete")
	return nil
}

// persistable keeps the patterns worth storing before they are labelled
func persistable(patterns []model.Pattern) []model.Pattern {
	var out []model.Pattern
	for _, p := range patterns {
		if p.Phase == model.PhaseActive || p.Phase.IsTerminal() {
			out = append(out, p)
		}
	}
	return out
}

// index rebuilds the Milvus collection from every stored sample, since the
// normalizer is refitted on the whole population
func index(ctx context.Context, cfg config.Config, samples *duckdb.SampleRepo) error {
	all, err := samples.ListSamples(ctx, "")
	if err != nil {
		return err
	}
	if len(all) == 0 {
		log.Warn().Msg("No labelled samples to index")
		return nil
	}

	client, err := milvus.NewClient(ctx, cfg.Milvus)
	if err != nil {
		return err
	}
	defer client.Close()

	exists, err := client.HasCollection(ctx, cfg.Collection.Name)
	if err != nil {
		return err
	}
	if exists {
		if err := client.DropCollection(ctx, cfg.Collection.Name); err != nil {
			return fmt.Errorf("failed to drop collection: %w", err)
		}
	}
	if err := client.EnsureCollection(ctx, cfg.Collection); err != nil {
		return err
	}

	x := similarity.NewIndex(client, similarity.Config{Collection: cfg.Collection, Rerank: cfg.Rerank})
	x.Fit(all)
	n, err := x.Add(ctx, all)
	if err != nil {
		return err
	}
	if err := client.Flush(ctx, cfg.Collection.Name); err != nil {
		log.Warn().Err(err).Msg("Failed to flush Milvus")
	}

	log.Info().Int("vectors", n).Str("milvus", client.Address()).Str("collection", cfg.Collection.Name).Msg("Indexed samples")
	return nil
}

// trainingSet is the export consumed by the offline model trainer
type trainingSet struct {
	Features []string    `json:"features"`
	Train    matrix      `json:"train"`
	Valid    matrix      `json:"validation"`
	Classes  map[int]int `json:"classes"`
}

type matrix struct {
	X [][]float64 `json:"x"`
	Y []int       `json:"y"`
}

// export writes every stored sample as a chronologically split matrix
func export(ctx context.Context, path string, samples *duckdb.SampleRepo) error {
	all, err := samples.ListSamples(ctx, "")
	if err != nil {
		return err
	}

	train, valid := dataset.SplitTemporal(all, 0.2)
	set := trainingSet{Features: model.FeatureNames, Classes: make(map[int]int)}
	set.Train.X, set.Train.Y = dataset.Matrix(train)
	set.Valid.X, set.Valid.Y = dataset.Matrix(valid)
	for class, n := range dataset.ClassDistribution(all) {
		set.Classes[class.Label()] = n
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(set); err != nil {
		return fmt.Errorf("failed to write training set: %w", err)
	}
	log.Info().Str("path", path).Int("train", len(train)).Int("validation", len(valid)).Msg("Exported training set")
	return nil
}
