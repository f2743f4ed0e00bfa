package cli

import (
	"github.com/spf13/cobra"
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate",
	Short: "Run one calibration pass over the stored signal population",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Calibrate(cmd.Context())
	},
}
