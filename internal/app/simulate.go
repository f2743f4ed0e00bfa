package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"trade-signal-radar/internal/pipeline"
)

// Simulate runs one message through extraction without touching the database
// and prints the resulting record. Useful for tuning vocabulary and ranges.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	if opts.Text == "" {
		return errors.New("--text must be provided")
	}
	if opts.MessageID == "" {
		opts.MessageID = "simulated"
	}
	if opts.Source == "" {
		opts.Source = "simulated"
	}

	pipe := a.newPipeline(nil)
	sig, err := pipe.Extract(ctx, pipeline.IncomingMessage{
		Source:    opts.Source,
		MessageID: opts.MessageID,
		Text:      opts.Text,
	})
	if errors.Is(err, pipeline.ErrNoSignal) {
		fmt.Fprintln(os.Stdout, "no signal: message contains no recognizable asset or direction")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "id:          %s\n", sig.ID)
	fmt.Fprintf(os.Stdout, "asset:       %s (%s)\n", sig.Asset, sig.AssetProvenance)
	fmt.Fprintf(os.Stdout, "direction:   %s (%s)\n", sig.Direction, sig.DirProvenance)
	fmt.Fprintf(os.Stdout, "entry:       %s (%s)\n", formatPrice(sig.EntryPrice), sig.EntryProvenance)
	fmt.Fprintf(os.Stdout, "target:      %s\n", formatPrice(sig.TargetPrice))
	fmt.Fprintf(os.Stdout, "stop:        %s\n", formatPrice(sig.StopLoss))
	fmt.Fprintf(os.Stdout, "tier:        %s\n", sig.QualityTier)
	fmt.Fprintf(os.Stdout, "valid:       %t\n", sig.IsValid)
	fmt.Fprintf(os.Stdout, "confidence:  %s\n", sig.Confidence.StringFixed(1))
	return nil
}
