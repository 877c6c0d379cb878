package files

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dopagent/internal/config"
)

// Manager owns the agent's on-disk layout: the data directory with the
// ledger and account snapshots, the dated report tree, and the scratch
// space browser downloads land in.
type Manager struct {
	paths config.PathsConfig
}

// NewManager creates a file manager over the configured paths.
func NewManager(paths config.PathsConfig) *Manager {
	return &Manager{paths: paths}
}

// EnsureDirectories creates every directory the agent writes to. Called
// once at startup so later writes never race directory creation.
func (m *Manager) EnsureDirectories() error {
	dirs := []string{
		m.paths.DataDir,
		m.paths.RecordsDir,
		m.paths.TempDir,
		m.paths.ReportsDir,
		m.paths.LogsDir,
		filepath.Dir(m.paths.LedgerFile),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// LedgerPath returns where the ledger CSV lives.
func (m *Manager) LedgerPath() string {
	return m.paths.LedgerFile
}

// TempDir returns the scratch directory browser sessions download into.
func (m *Manager) TempDir() string {
	return m.paths.TempDir
}

// RecordsDir returns the directory account export snapshots accumulate in.
func (m *Manager) RecordsDir() string {
	return m.paths.RecordsDir
}

// SnapshotPath returns the dated path a new account export snapshot is
// written to, e.g. data/records/RDRecord_20240501_153000.csv.
func (m *Manager) SnapshotPath(now time.Time) string {
	return filepath.Join(m.paths.RecordsDir, now.Format("RDRecord_20060102_150405.csv"))
}

// ReportDirs returns (and creates) the dated directories a lot's transaction
// report and its declaration copy belong in: one subtree per month, one per
// day, split into Reports and Declarations.
func (m *Manager) ReportDirs(now time.Time) (reports, declarations string, err error) {
	day := filepath.Join(m.paths.ReportsDir, now.Format("01-2006"), now.Format("02-01-2006"))
	reports = filepath.Join(day, "Reports")
	declarations = filepath.Join(day, "Declarations")
	for _, dir := range []string{reports, declarations} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", "", fmt.Errorf("failed to create report directory %s: %w", dir, err)
		}
	}
	return reports, declarations, nil
}

// FreshDir recreates an empty named directory under the scratch space and
// returns its path.
func (m *Manager) FreshDir(name string) (string, error) {
	dir := filepath.Join(m.paths.TempDir, name)
	if err := os.RemoveAll(dir); err != nil {
		return "", fmt.Errorf("failed to clear directory %s: %w", dir, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return dir, nil
}

// CopyFile copies a file, creating the destination directory as needed.
func CopyFile(src, dst string) error {
	slog.Debug("Copying file",
		slog.String("src", src),
		slog.String("dst", dst))

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file content: %w", err)
	}
	return dstFile.Sync()
}

// MoveFile moves a file. Rename is tried first; a cross-filesystem move
// falls back to copy and delete.
func MoveFile(src, dst string) error {
	slog.Debug("Moving file",
		slog.String("src", src),
		slog.String("dst", dst))

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := CopyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}
