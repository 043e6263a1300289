package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show agentboard version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("agentboard version 0.1.0-dev")
		},
	}
}
