package cli

import (
	"github.com/spf13/cobra"

	"trade-signal-radar/internal/app"
)

var (
	simulateText      string
	simulateSource    string
	simulateMessageID string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Extract a single message without persisting the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.SimulateOptions{
			Text:      simulateText,
			Source:    simulateSource,
			MessageID: simulateMessageID,
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateText, "text", "", "Raw message text to extract")
	simulateCmd.Flags().StringVar(&simulateSource, "source", "", "Source label for the simulated message")
	simulateCmd.Flags().StringVar(&simulateMessageID, "message-id", "", "Message id for the simulated message")
}
