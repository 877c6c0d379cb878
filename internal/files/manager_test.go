package files

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dopagent/internal/config"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	root := t.TempDir()
	return NewManager(config.PathsConfig{
		DataDir:    filepath.Join(root, "data"),
		RecordsDir: filepath.Join(root, "data", "records"),
		TempDir:    filepath.Join(root, "data", "temp"),
		ReportsDir: filepath.Join(root, "RDReports"),
		LedgerFile: filepath.Join(root, "data", "ledger.csv"),
		LogsDir:    filepath.Join(root, "logs"),
	})
}

func TestEnsureDirectories(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.EnsureDirectories())

	for _, dir := range []string{
		m.paths.DataDir,
		m.paths.RecordsDir,
		m.paths.TempDir,
		m.paths.ReportsDir,
		m.paths.LogsDir,
	} {
		info, err := os.Stat(dir)
		require.NoError(t, err, dir)
		assert.True(t, info.IsDir(), dir)
	}
}

func TestSnapshotPath(t *testing.T) {
	m := testManager(t)
	now := time.Date(2024, 5, 1, 15, 30, 0, 0, time.UTC)
	got := m.SnapshotPath(now)
	assert.Equal(t, filepath.Join(m.paths.RecordsDir, "RDRecord_20240501_153000.csv"), got)
}

func TestReportDirs(t *testing.T) {
	m := testManager(t)
	now := time.Date(2024, 5, 1, 15, 30, 0, 0, time.UTC)

	reports, declarations, err := m.ReportDirs(now)
	require.NoError(t, err)

	day := filepath.Join(m.paths.ReportsDir, "05-2024", "01-05-2024")
	assert.Equal(t, filepath.Join(day, "Reports"), reports)
	assert.Equal(t, filepath.Join(day, "Declarations"), declarations)

	for _, dir := range []string{reports, declarations} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestFreshDirClearsPreviousContents(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.EnsureDirectories())

	dir, err := m.FreshDir("downloads")
	require.NoError(t, err)
	stale := filepath.Join(dir, "stale.xls")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0644))

	dir, err = m.FreshDir("downloads")
	require.NoError(t, err)
	_, err = os.Stat(stale)
	assert.True(t, os.IsNotExist(err))
}

func TestMoveFile(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.EnsureDirectories())

	src := filepath.Join(m.paths.TempDir, "report.xls")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

	dst := filepath.Join(m.paths.ReportsDir, "nested", "report.xls")
	require.NoError(t, MoveFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestCopyFile(t *testing.T) {
	m := testManager(t)
	require.NoError(t, m.EnsureDirectories())

	src := filepath.Join(m.paths.TempDir, "a.csv")
	require.NoError(t, os.WriteFile(src, []byte("x,y"), 0644))

	dst := filepath.Join(m.paths.DataDir, "b.csv")
	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "x,y", string(data))

	_, err = os.Stat(src)
	assert.NoError(t, err, "copy keeps the source")
}
