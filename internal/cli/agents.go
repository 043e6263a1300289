package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentboard/agentboard/internal/config"
	"github.com/agentboard/agentboard/internal/registry"
)

func newAgentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the current agent registry",
		Long:  `agents prints the same agent definitions a running server reports on GET /api/agents, read directly from the registry file.`,
		RunE:  runAgents,
	}
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	reg, err := registry.New(cfg.RegistryPath)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCMD\tDEFAULT\tENABLED\tNOTE")
	for _, a := range reg.Agents() {
		fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%s\n", a.ID, a.Cmd, a.Default, a.Enabled, a.Note)
	}
	return w.Flush()
}
