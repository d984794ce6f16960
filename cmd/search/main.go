package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tunogya/coil/pkg/config"
	"github.com/tunogya/coil/pkg/model"
	"github.com/tunogya/coil/pkg/similarity"
	"github.com/tunogya/coil/pkg/store/duckdb"
	"github.com/tunogya/coil/pkg/store/milvus"
	"github.com/tunogya/coil/pkg/tracker"
	"github.com/tunogya/coil/pkg/window"
)

type options struct {
	configPath string
	symbol     string
	topK       int
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Find historical patterns similar to a symbol's latest consolidation",
		Long: `Replays the stored history of a symbol, takes its active pattern (or the
last resolved one), embeds its features and looks up the most similar labelled
patterns in Milvus, re-ranked by age, with the expected outcome.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to YAML configuration")
	cmd.Flags().StringVar(&opts.symbol, "symbol", "", "Symbol to query")
	cmd.Flags().IntVar(&opts.topK, "top-k", 10, "Number of neighbours")
	_ = cmd.MarkFlagRequired("symbol")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Search failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	cfg.SetupLogger()

	db, err := duckdb.Open(cfg.DuckDB.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	bars, err := duckdb.NewBarRepo(db).GetAll(ctx, opts.symbol)
	if err != nil {
		return err
	}
	if len(bars) == 0 {
		return fmt.Errorf("no bars stored for %s", opts.symbol)
	}

	p, features, err := latestPattern(cfg, opts.symbol, bars)
	if err != nil {
		return err
	}

	samples, err := duckdb.NewSampleRepo(db).ListSamples(ctx, "")
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return errors.New("no labelled samples, run backfill first")
	}

	client, err := milvus.NewClient(ctx, cfg.Milvus)
	if err != nil {
		return err
	}
	defer client.Close()
	if err := client.LoadCollection(ctx, cfg.Collection.Name); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	x := similarity.NewIndex(client, similarity.Config{Collection: cfg.Collection, Rerank: cfg.Rerank})
	x.Fit(samples)

	asOf := bars[len(bars)-1].Date
	match, err := x.Query(ctx, *p, *features, asOf, opts.topK)
	if err != nil {
		return err
	}

	printMatch(p, match)
	return nil
}

// latestPattern replays bars and returns the active pattern, or the last resolved one
func latestPattern(cfg config.Config, symbol string, bars []model.Bar) (*model.Pattern, *model.PatternFeatures, error) {
	tr := tracker.New(cfg.Tracker(symbol))
	feed := window.NewBuilder(window.Config{Symbol: symbol, Warmup: 1})
	err := feed.ProcessBars(bars, func(history []model.Bar) error {
		_, err := tr.Update(history)
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	p := tr.Current()
	if p == nil || p.Phase != model.PhaseActive {
		archive := tr.Archive()
		if len(archive) == 0 {
			return nil, nil, fmt.Errorf("%s has no active or resolved pattern", symbol)
		}
		p = &archive[len(archive)-1]
	}

	f := tr.Features(*p)
	if f == nil {
		return nil, nil, fmt.Errorf("pattern %s has no snapshots", p.ID)
	}
	return p, f, nil
}

func printMatch(p *model.Pattern, m *similarity.Match) {
	fmt.Printf("Pattern %s %s %s start=%s", p.ID, p.Symbol, p.Phase, p.StartDate.Format(model.DateLayout))
	if p.Boundaries != nil {
		fmt.Printf(" upper=%.4f lower=%.4f power=%.4f range=%.2f%%",
			p.Boundaries.Upper, p.Boundaries.Lower, p.Boundaries.Power, p.RangePercentage())
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tPATTERN\tSYMBOL\tRESOLVED\tCLASS\tMAX GAIN\tSCORE\tWEIGHT\tFINAL")
	for i, r := range m.Neighbours {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%.2f%%\t%.4f\t%.4f\t%.4f\n",
			i+1, r.PatternID, r.Symbol, r.ResolvedAt.Format(model.DateLayout), r.Class,
			r.MaxGain, r.Score, r.TimeWeight, r.FinalScore)
	}
	w.Flush()

	e := m.Estimate
	fmt.Printf("\nExpected value %.3f, expected max gain %.2f%%, most likely %s (%s) over %d neighbours\n",
		e.ExpectedValue, e.ExpectedGain, e.MostLikely, e.MostLikely.Description(), e.Neighbours)
	for c := model.K0; c <= model.K5; c++ {
		fmt.Printf("  %s %-12s %5.1f%%\n", c, c.Description(), e.Probabilities[c]*100)
	}
}
