package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"ledwatcher/internal/storage"
)

// Show prints the most recent samples of one metric to stdout.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	kind := storage.MetricKind(opts.Kind)
	if !storage.KnownMetricKind(kind) {
		return fmt.Errorf("unknown metric kind: %s", opts.Kind)
	}
	if opts.Limit <= 0 {
		opts.Limit = 20
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	samples, err := store.ListRecentMetrics(ctx, a.Config.Ethereum.Network, kind, opts.Limit)
	if err != nil {
		return fmt.Errorf("list recent metrics: %w", err)
	}
	if len(samples) == 0 {
		fmt.Printf("no samples recorded for %s\n", kind)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tTIME (UTC)\tNETWORK\tVALUE")
	for _, s := range samples {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			s.Timestamp,
			time.Unix(s.Timestamp, 0).UTC().Format("2006-01-02 15:04:05"),
			s.Network,
			decimal.NewFromBigInt(s.Value, -18).StringFixed(6),
		)
	}
	return w.Flush()
}
