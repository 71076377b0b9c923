// Package cli implements the orc command-line interface: orc serve runs the
// engine's poll loop, orc task/gate drive and inspect individual tasks, and
// orc watch renders a live TUI over the broadcast stream.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	jsonOut bool
)

// Command group IDs
const (
	groupCore    = "core"
	groupTask    = "task"
	groupGate    = "gate"
	groupConfig  = "config"
	groupAdvanced = "advanced"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "orc",
	Short: "Task orchestration engine",
	Long: `orc claims pending tasks and drives each through its stage graph,
pausing for human-approval gates and enforcing a per-task circuit breaker.

Quick start:
  orc init                       Initialize orc in the current directory
  orc task new "Fix login bug"   Create a new task
  orc serve                      Run the poll loop that claims and executes tasks
  orc task status <id>           Show task and stage state
  orc gate approve <gate-id>     Approve a pending gate`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .orc/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: groupCore, Title: "Core Commands:"},
		&cobra.Group{ID: groupTask, Title: "Task Management:"},
		&cobra.Group{ID: groupGate, Title: "Gates:"},
		&cobra.Group{ID: groupConfig, Title: "Configuration:"},
		&cobra.Group{ID: groupAdvanced, Title: "Advanced:"},
	)

	addCmd(newInitCmd(), groupCore)
	addCmd(newServeCmd(), groupCore)
	addCmd(newWatchCmd(), groupCore)
	addCmd(newVersionCmd(), groupCore)

	addCmd(newTaskCmd(), groupTask)
	addCmd(newTemplateCmd(), groupTask)

	addCmd(newGateCmd(), groupGate)

	addCmd(newConfigCmd(), groupConfig)
}

func addCmd(cmd *cobra.Command, groupID string) {
	cmd.GroupID = groupID
	rootCmd.AddCommand(cmd)
}

// initConfig reads in config file and ENV variables if set, mirroring the
// teacher's root.go binding of --config/--verbose/--json to viper.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".orc")
		viper.AddConfigPath("$HOME/.orc")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("ORC")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
