package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/orc/internal/task"
)

func newTemplateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Create and inspect stage templates",
	}
	cmd.AddCommand(newTemplateCreateCmd(), newTemplateShowCmd())
	return cmd
}

// newTemplateCreateCmd loads a Template from a JSON file on disk (the
// Template type is entirely JSON-tagged, so it doubles as the on-disk
// authoring format) and persists it as a new version.
func newTemplateCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <file.json>",
		Short: "Create a template from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read template file: %w", err)
			}
			var t task.Template
			if err := json.Unmarshal(data, &t); err != nil {
				return fmt.Errorf("parse template: %w", err)
			}
			if t.Name == "" {
				return fmt.Errorf("template must set \"name\"")
			}
			if t.Version == 0 {
				t.Version = 1
			}

			ctx := context.Background()
			st, err := openStore(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.CreateTemplate(ctx, &t); err != nil {
				return err
			}
			fmt.Printf("created template %s (%s v%d)\n", t.ID, t.Name, t.Version)
			return nil
		},
	}
}

func newTemplateShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name-or-id>",
		Short: "Show a template's stages and gates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			st, err := openStore(ctx, loadConfig())
			if err != nil {
				return err
			}
			defer st.Close()

			t, err := st.GetTemplate(ctx, args[0])
			if err != nil {
				t, err = st.GetTemplateByName(ctx, args[0])
			}
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(t)
			}
			fmt.Printf("%s  v%d  (%s)\n", t.Name, t.Version, t.ID)
			for _, s := range t.Stages {
				fmt.Printf("  [%d] %-20s role=%s depends_on=%v\n", s.Order, s.Name, s.AgentRole, s.DependsOn)
			}
			for _, g := range t.Gates {
				fmt.Printf("  gate after=%-20s type=%s max_retries=%d\n", g.AfterStage, g.Type, g.MaxRetries)
			}
			return nil
		},
	}
}
