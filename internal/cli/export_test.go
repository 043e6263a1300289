package cli

// NOTE: these tests mutate the package-level cfgFile var and must not run
// with t.Parallel().

import (
	"path/filepath"
	"testing"
)

func TestRunExportWritesBackup(t *testing.T) {
	dir := t.TempDir()
	exportsDir := filepath.Join(dir, "exports")
	resultsDir := filepath.Join(dir, "results")
	withConfigFile(t, "board_mode: memory\nexports_dir: "+exportsDir+"\nresults_dir: "+resultsDir+"\n")

	cmd := newExportCmd()
	if err := cmd.RunE(cmd, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entries, err := filepath.Glob(filepath.Join(exportsDir, "backup-*.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected one backup file, got %v", entries)
	}
}
