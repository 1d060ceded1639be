package app

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wcharczuk/go-chart/v2"

	"ledwatcher/internal/storage"
)

// Export dumps one metric series to PNG and/or CSV.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	kind := storage.MetricKind(opts.Kind)
	if !storage.KnownMetricKind(kind) {
		return fmt.Errorf("unknown metric kind: %s", opts.Kind)
	}
	if opts.PNGPath == "" && opts.CSVPath == "" {
		return fmt.Errorf("nothing to export: provide --png and/or --csv")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	// Range bounds are exclusive, so widen by one second on each side.
	begin := int64(0)
	if opts.From != nil {
		begin = opts.From.Unix() - 1
	}
	end := time.Now().Unix() + 1
	if opts.To != nil {
		end = opts.To.Unix() + 1
	}

	samples, err := store.QueryMetricRange(ctx, a.Config.Ethereum.Network, kind, begin, end)
	if err != nil {
		return fmt.Errorf("query metric range: %w", err)
	}
	if len(samples) == 0 {
		return fmt.Errorf("no samples for %s in the requested range", kind)
	}

	maxPoints := opts.MaxPoints
	if maxPoints <= 0 {
		maxPoints = a.Config.Export.MaxDataPoints
	}
	samples = downsample(samples, maxPoints)

	if opts.CSVPath != "" {
		if err := writeCSV(opts.CSVPath, samples); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.CSVPath).Int("rows", len(samples)).Msg("csv exported")
	}

	if opts.PNGPath != "" {
		if err := renderPNG(opts.PNGPath, string(kind), samples); err != nil {
			return err
		}
		a.Logger.Info().Str("path", opts.PNGPath).Int("points", len(samples)).Msg("chart exported")
	}

	return nil
}

// downsample keeps at most maxPoints samples, evenly strided, always
// retaining the final sample.
func downsample(samples []storage.MetricSample, maxPoints int) []storage.MetricSample {
	if len(samples) <= maxPoints {
		return samples
	}
	stride := (len(samples) + maxPoints - 1) / maxPoints
	out := make([]storage.MetricSample, 0, maxPoints)
	for i := 0; i < len(samples); i += stride {
		out = append(out, samples[i])
	}
	if last := samples[len(samples)-1]; out[len(out)-1].Timestamp != last.Timestamp {
		out = append(out, last)
	}
	return out
}

func writeCSV(path string, samples []storage.MetricSample) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"timestamp", "network", "value"}); err != nil {
		return err
	}
	for _, s := range samples {
		row := []string{
			strconv.FormatInt(s.Timestamp, 10),
			s.Network,
			s.Value.String(),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func renderPNG(path, title string, samples []storage.MetricSample) error {
	xs := make([]time.Time, len(samples))
	ys := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = time.Unix(s.Timestamp, 0).UTC()
		ys[i] = decimal.NewFromBigInt(s.Value, -18).InexactFloat64()
	}

	graph := chart.Chart{
		Title:  title,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02 15:04"),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    title,
				XValues: xs,
				YValues: ys,
			},
		},
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	defer f.Close()

	if err := graph.Render(chart.PNG, f); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}
