// Package cli implements the agentboard command-line interface: serve,
// agents, export, dashboard, and version, grounded on the same cobra/viper
// layering used throughout the rest of the service's configuration.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:   "agentboard",
	Short: "Multi-agent task orchestrator over a Kanban board",
	Long: `agentboard runs two independent polling loops against a shared board:
the Spec Generator Loop turns backlog projects into specs and tasks, and
the Task Runner Loop dispatches queued tasks to agent processes.

Quick start:
  agentboard serve       Start both loops plus the health/control server
  agentboard agents      List the current agent registry
  agentboard export      Trigger an on-demand backup
  agentboard dashboard   Terminal UI over the live status endpoint`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default .agentboard/agentboard.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newAgentsCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newDashboardCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func printf(format string, args ...any) {
	if quiet {
		return
	}
	fmt.Fprintf(os.Stdout, format, args...)
}
