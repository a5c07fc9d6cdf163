package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Mark every registry slot inactive",
	Long: `Clear the shared registry the way a starting coordinator does. Running
participants reconnect on their next keepalive. With --remove the registry
file is deleted as well; instances that already mapped it keep their copy.`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

func init() {
	clearCmd.Flags().Bool("remove", false, "delete the registry file after clearing it")
	rootCmd.AddCommand(clearCmd)
}

func runClear(cmd *cobra.Command, _ []string) error {
	remove, _ := cmd.Flags().GetBool("remove")

	reg, backing, err := openRegistry(cfg)
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	active := reg.ActiveCount(cfg.Timing.ActiveWindow)
	reg.ClearAll()
	log.Info("Registry cleared", "path", backing.Path(), "active", active)

	if err := reg.Close(); err != nil {
		return err
	}
	if remove {
		if err := backing.Remove(); err != nil {
			return fmt.Errorf("failed to remove registry: %w", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d active slots in %s\n", active, backing.Path())
	return nil
}
