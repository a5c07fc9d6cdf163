package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/justyntemme/gainlink/pkg/gainstage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the coordinator and every connected track",
	Long: `Read the shared registry and list the coordinator's settings and every
participant refreshed within the active window, with its metering and the
control source it currently follows.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringP("output", "o", formatTable, "output format: table, json or yaml")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) (err error) {
	format, _ := cmd.Flags().GetString("output")
	if err := validFormat(format); err != nil {
		return err
	}

	reg, _, err := openRegistry(cfg)
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	defer func() { err = multierr.Append(err, reg.Close()) }()

	ctx := gainstage.BuildContext(reg, cfg.Timing.ActiveWindow, cfg.Timing.Freshness)
	return renderContext(cmd.OutOrStdout(), ctx, format)
}
