package cli

import (
	"github.com/spf13/cobra"

	"trade-signal-radar/internal/app"
)

var (
	ingestFile   string
	ingestSource string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest raw messages from a JSONL file or stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.IngestOptions{
			Path:   ingestFile,
			Source: ingestSource,
		}
		return getApp().Ingest(cmd.Context(), opts)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "-", "Path to JSONL messages file, or - for stdin")
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "Default source for messages that omit one")
}
