package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
)

// Show prints recent signals and the recorded source trust profiles.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show signals")
	}
	if closeStore != nil {
		defer closeStore()
	}

	signals, err := store.ListRecentSignals(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(signals) == 0 {
		fmt.Fprintln(os.Stdout, "no signals found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Extracted (UTC)\tSource\tAsset\tDir\tEntry\tTarget\tStop\tConf\tTier\tValid")

	for _, sig := range signals {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%t\n",
			sig.ExtractedAt.UTC().Format(time.RFC3339),
			sanitizeInline(sig.Source),
			sig.Asset,
			sig.Direction,
			formatPrice(sig.EntryPrice),
			formatPrice(sig.TargetPrice),
			formatPrice(sig.StopLoss),
			sig.Confidence.StringFixed(1),
			sig.QualityTier,
			sig.IsValid,
		)
	}
	writer.Flush()

	stats, err := store.ListSourceStats(ctx)
	if err != nil {
		return err
	}
	if len(stats) == 0 {
		return nil
	}

	fmt.Fprintln(os.Stdout)
	writer = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Source\tSamples\tAccuracy%\tRecomputed (UTC)")
	for _, s := range stats {
		fmt.Fprintf(writer, "%s\t%d\t%s\t%s\n",
			sanitizeInline(s.Source),
			s.SampleCount,
			s.AccuracyPercent.StringFixed(1),
			s.LastRecomputed.UTC().Format(time.RFC3339),
		)
	}
	writer.Flush()
	return nil
}

func formatPrice(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
