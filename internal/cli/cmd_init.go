package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/orc/internal/config"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize orc in the current directory",
		Long: `Creates .orc/config.yaml with default settings.

Example:
  orc init
  orc init --force  # overwrite existing config`,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("force")
			if err := config.Init(force); err != nil {
				return err
			}
			fmt.Println("orc initialized: .orc/config.yaml")
			fmt.Println("next: orc task new \"Your task title\"")
			return nil
		},
	}
	cmd.Flags().Bool("force", false, "overwrite existing configuration")
	return cmd
}
