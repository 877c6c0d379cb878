package portal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dopagent/internal/files"
)

// DownloadReport fetches the paid-installment report for a transaction
// reference as a spreadsheet, renames it with a timestamp and the reference,
// and moves it into destDir. An existing file of the same name is replaced.
func (e *Executor) DownloadReport(ctx context.Context, refNo, destDir string) (string, error) {
	if err := e.openAccountsSection(ctx); err != nil {
		return "", err
	}
	if err := e.click(ctx, "open reports section", IDReportsTab); err != nil {
		return "", err
	}

	if err := e.typeInto(ctx, "enter reference number", IDReferenceInput, refNo); err != nil {
		return "", err
	}
	if err := e.selectValue(ctx, "select success status", IDStatusSelect, statusValueSuccess); err != nil {
		return "", err
	}

	now := time.Now()
	firstOfMonth := now.AddDate(0, 0, -now.Day()+1)
	if err := e.typeInto(ctx, "set from date", IDReportFromDate,
		firstOfMonth.Format("02-Jan-2006")); err != nil {
		return "", err
	}
	if err := e.click(ctx, "search reports", IDReportSearch); err != nil {
		return "", err
	}

	if err := e.selectValue(ctx, "select spreadsheet output", IDReportOutFormat, outFormatSpreadsheet); err != nil {
		return "", err
	}
	if err := e.click(ctx, "generate report", IDGenerateReport); err != nil {
		return "", err
	}
	if err := e.waitOverlayGone(ctx, "wait for report generation"); err != nil {
		return "", err
	}

	downloaded, err := e.waitDownload(ctx)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("RDReport-%s-%s.xls", now.Format("02-01-2006-15-04-05"), refNo)
	dest := filepath.Join(destDir, name)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.Remove(dest); err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to replace existing report: %w", err)
	}
	if err := files.MoveFile(downloaded, dest); err != nil {
		return "", err
	}

	e.logger.Info("Report downloaded",
		slog.String("reference", refNo),
		slog.String("path", dest))
	return dest, nil
}

// waitDownload polls the session download directory until the spreadsheet
// the portal is serving has fully landed, and returns its path. In-progress
// browser downloads keep a .crdownload suffix until complete, so they never
// match.
func (e *Executor) waitDownload(ctx context.Context) (string, error) {
	deadline := time.Now().Add(e.cfg.DownloadTimeout)
	for {
		info, ok, err := files.LatestSpreadsheet(e.cfg.DownloadDir)
		if err != nil {
			return "", err
		}
		if ok {
			return info.Path, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("no file appeared in %s within %s", e.cfg.DownloadDir, e.cfg.DownloadTimeout)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}
