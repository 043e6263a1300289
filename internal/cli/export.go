package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/agentboard/agentboard/internal/archiver"
	"github.com/agentboard/agentboard/internal/config"
	"github.com/agentboard/agentboard/internal/store"
)

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write an on-demand backup export",
		Long:  `export triggers the same backup archive as GET /export and prints the resulting file path.`,
		RunE:  runExport,
	}
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	backend, err := store.New(store.Config{
		Mode:      store.Mode(cfg.BoardMode),
		RemoteURL: cfg.BoardURL,
		Token:     cfg.BoardToken,
		Timeout:   cfg.BoardTimeout,
		LocalPath: cfg.BoardPath,
	})
	if err != nil {
		return err
	}
	defer backend.Close()

	result, err := archiver.Export(cmd.Context(), archiver.ExportConfig{
		Backend:    backend,
		ResultsDir: cfg.ResultsDir,
		ExportsDir: cfg.ExportsDir,
	}, time.Now())
	if err != nil {
		return err
	}

	printf("%s (%d tasks, %d results)\n", result.Path, result.TaskCount, result.ResultCount)
	return nil
}
