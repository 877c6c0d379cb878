package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileInfo describes a discovered file.
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// LatestCSV returns the most recently modified CSV file in dir. The second
// return is false when the directory holds none.
func LatestCSV(dir string) (FileInfo, bool, error) {
	return latestByExt(dir, ".csv")
}

// LatestSpreadsheet returns the most recently modified spreadsheet (.xls or
// .xlsx) in dir. Portal downloads land with unpredictable server-assigned
// names, so freshness is the only usable ordering.
func LatestSpreadsheet(dir string) (FileInfo, bool, error) {
	xls, okXLS, err := latestByExt(dir, ".xls")
	if err != nil {
		return FileInfo{}, false, err
	}
	xlsx, okXLSX, err := latestByExt(dir, ".xlsx")
	if err != nil {
		return FileInfo{}, false, err
	}
	switch {
	case okXLS && okXLSX:
		if xlsx.ModTime.After(xls.ModTime) {
			return xlsx, true, nil
		}
		return xls, true, nil
	case okXLS:
		return xls, true, nil
	case okXLSX:
		return xlsx, true, nil
	default:
		return FileInfo{}, false, nil
	}
}

func latestByExt(dir, ext string) (FileInfo, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return FileInfo{}, false, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}

	var latest FileInfo
	found := false
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if !found || info.ModTime().After(latest.ModTime) {
			latest = FileInfo{
				Path:    filepath.Join(dir, entry.Name()),
				Name:    entry.Name(),
				Size:    info.Size(),
				ModTime: info.ModTime(),
			}
			found = true
		}
	}
	return latest, found, nil
}
