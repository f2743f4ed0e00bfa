package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"trade-signal-radar/internal/signal"
	"trade-signal-radar/internal/storage"
)

// Export writes the signal population as CSV and/or the per-source accuracy
// history as a PNG chart.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}
	from := to.AddDate(0, -1, 0)
	if opts.From != nil {
		from = opts.From.UTC()
	}
	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	if opts.CSVPath != "" {
		signals, err := store.ListSignals(ctx)
		if err != nil {
			return err
		}
		windowed := filterWindow(signals, from, to)
		a.Logger.Info().Int("total", len(signals)).Int("exported", len(windowed)).Msg("exporting signals")
		if err := writeSignalsCSV(opts.CSVPath, windowed); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		history, err := store.ListAccuracyHistory(ctx, from, to)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			a.Logger.Info().Msg("no accuracy history in export window; skipping chart")
			return nil
		}
		if err := writeAccuracyPNG(opts.PNGPath, history, opts.MaxPoints); err != nil {
			return err
		}
	}

	return nil
}

func filterWindow(signals []signal.Signal, from, to time.Time) []signal.Signal {
	out := make([]signal.Signal, 0, len(signals))
	for _, sig := range signals {
		if sig.ExtractedAt.Before(from) || !sig.ExtractedAt.Before(to) {
			continue
		}
		out = append(out, sig)
	}
	return out
}

func writeSignalsCSV(path string, signals []signal.Signal) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"id", "source", "asset", "direction", "entry_price", "target_price", "stop_loss", "confidence", "quality_tier", "is_valid", "extracted_at", "message_ts"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sig := range signals {
		record := []string{
			sig.ID,
			sig.Source,
			sig.Asset,
			string(sig.Direction),
			formatPrice(sig.EntryPrice),
			formatPrice(sig.TargetPrice),
			formatPrice(sig.StopLoss),
			sig.Confidence.String(),
			string(sig.QualityTier),
			boolString(sig.IsValid),
			sig.ExtractedAt.Format(time.RFC3339),
			sig.MessageTimestamp.Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeAccuracyPNG(path string, history []storage.AccuracyPoint, maxPoints int) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	bySource := make(map[string][]storage.AccuracyPoint)
	for _, point := range history {
		bySource[point.Source] = append(bySource[point.Source], point)
	}

	sources := make([]string, 0, len(bySource))
	for src := range bySource {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	pctFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.1f")
	}
	graph := chart.Chart{
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Accuracy (%)",
			ValueFormatter: pctFormatter,
		},
	}

	for _, src := range sources {
		points := downsamplePoints(bySource[src], maxPoints)
		x := make([]time.Time, len(points))
		y := make([]float64, len(points))
		for i, p := range points {
			x[i] = p.RecordedAt
			y[i] = p.AccuracyPercent.InexactFloat64()
		}
		graph.Series = append(graph.Series, chart.TimeSeries{
			Name:    src,
			XValues: x,
			YValues: y,
		})
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func downsamplePoints(points []storage.AccuracyPoint, max int) []storage.AccuracyPoint {
	if max <= 0 || len(points) <= max {
		return points
	}

	result := make([]storage.AccuracyPoint, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
