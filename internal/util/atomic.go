// Package util holds small filesystem helpers shared by the registry and
// archiver packages.
package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriteFile replaces path's contents without ever leaving it
// half-written: it writes to a temp file in path's directory, syncs and
// chmods it, then renames it over path. A crash mid-write leaves the
// original file (or nothing) behind, never a truncated one, which is why
// the registry's self-healing default and the backup exporter both go
// through this instead of os.WriteFile directly.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp to final: %w", err)
	}

	return nil
}

// AtomicWriteFileString wraps AtomicWriteFile for callers building a
// string rather than a []byte (the backup exporter's manifest, the
// registry's default-agent JSON).
func AtomicWriteFileString(path, content string, perm os.FileMode) error {
	return AtomicWriteFile(path, []byte(content), perm)
}
