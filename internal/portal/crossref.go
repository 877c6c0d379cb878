package portal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// UpdateCrossRefs writes aslaas numbers to the portal, one form round trip
// per pair, in order. There is no batching and no transactional guarantee: a
// failure partway through leaves the earlier pairs already committed.
func (e *Executor) UpdateCrossRefs(ctx context.Context, updates []CrossRefUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	if err := e.openAccountsSection(ctx); err != nil {
		return err
	}
	if err := e.click(ctx, "open aslaas update screen", IDAslaasUpdateTab); err != nil {
		return err
	}

	for i, u := range updates {
		if err := e.typeInto(ctx, "enter account number", IDAslaasAccInput, u.AccountNo); err != nil {
			return fmt.Errorf("pair %d (%s): %w", i+1, u.AccountNo, err)
		}
		if err := e.typeInto(ctx, "enter aslaas number", IDAslaasNoInput, u.CrossRef); err != nil {
			return fmt.Errorf("pair %d (%s): %w", i+1, u.AccountNo, err)
		}
		if err := e.click(ctx, "confirm aslaas update", IDAslaasContinue); err != nil {
			return fmt.Errorf("pair %d (%s): %w", i+1, u.AccountNo, err)
		}
		if err := e.click(ctx, "save aslaas update", IDAslaasSave); err != nil {
			return fmt.Errorf("pair %d (%s): %w", i+1, u.AccountNo, err)
		}
		e.logger.Info("Aslaas number updated",
			slog.String("account", u.AccountNo),
			slog.Int("pair", i+1),
			slog.Int("total", len(updates)))
	}
	return nil
}

// ExportCrossRefs downloads the aslaas number report spreadsheet and parses
// it into an account number to aslaas number mapping. The downloaded
// artifact is deleted after parsing.
func (e *Executor) ExportCrossRefs(ctx context.Context) (map[string]string, error) {
	if err := e.openAccountsSection(ctx); err != nil {
		return nil, err
	}
	if err := e.click(ctx, "open aslaas report screen", IDAslaasReportTab); err != nil {
		return nil, err
	}

	if err := e.click(ctx, "search aslaas numbers", IDAslaasSearch); err != nil {
		return nil, err
	}
	if err := e.waitOverlayGone(ctx, "wait for aslaas search"); err != nil {
		return nil, err
	}

	if err := e.selectValue(ctx, "select spreadsheet output", IDAslaasOutFormat, outFormatSpreadsheet); err != nil {
		return nil, err
	}
	if err := e.click(ctx, "generate aslaas report", IDGenerateReport); err != nil {
		return nil, err
	}
	if err := e.waitOverlayGone(ctx, "wait for aslaas report generation"); err != nil {
		return nil, err
	}

	path, err := e.waitDownload(ctx)
	if err != nil {
		return nil, err
	}
	defer os.Remove(path)

	mapping, err := ParseCrossRefWorkbook(path)
	if err != nil {
		return nil, err
	}

	e.logger.Info("Aslaas report parsed", slog.Int("entries", len(mapping)))
	return mapping, nil
}

// crossRefSkipRows and the column offsets describe the fixed layout of the
// aslaas report: data starts on the eighth row, account numbers in the third
// column, aslaas numbers in the ninth.
const (
	crossRefSkipRows   = 7
	crossRefAccountCol = 2
	crossRefAslaasCol  = 8
)

// legacyWorkbookMagic is the OLE2 compound-file signature. The portal's
// spreadsheet output arrives as a legacy BIFF .xls wrapped in it, which
// excelize cannot read.
var legacyWorkbookMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// isLegacyWorkbook reports whether the file carries the OLE2 signature. A
// file too short to hold one is not a legacy workbook.
func isLegacyWorkbook(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, len(legacyWorkbookMagic))
	if _, err := io.ReadFull(f, header); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, nil
		}
		return false, fmt.Errorf("failed to read workbook header %s: %w", path, err)
	}
	return bytes.Equal(header, legacyWorkbookMagic), nil
}

// ParseCrossRefWorkbook extracts the account to aslaas mapping from a
// downloaded aslaas report spreadsheet. Both the legacy BIFF .xls the portal
// serves and an OOXML .xlsx are handled.
func ParseCrossRefWorkbook(path string) (map[string]string, error) {
	legacy, err := isLegacyWorkbook(path)
	if err != nil {
		return nil, err
	}
	if legacy {
		return parseLegacyCrossRefWorkbook(path)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}

	mapping := make(map[string]string)
	for i, row := range rows {
		if i < crossRefSkipRows {
			continue
		}
		if len(row) <= crossRefAccountCol {
			continue
		}
		accNo := strings.TrimSpace(row[crossRefAccountCol])
		if accNo == "" {
			continue
		}
		aslaas := ""
		if len(row) > crossRefAslaasCol {
			aslaas = strings.TrimSpace(row[crossRefAslaasCol])
		}
		mapping[accNo] = aslaas
	}
	return mapping, nil
}

// parseLegacyCrossRefWorkbook reads the same fixed layout out of a BIFF
// workbook.
func parseLegacyCrossRefWorkbook(path string) (map[string]string, error) {
	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("failed to open legacy workbook %s: %w", path, err)
	}

	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("legacy workbook %s has no sheets", path)
	}

	mapping := make(map[string]string)
	for i := crossRefSkipRows; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		accNo := strings.TrimSpace(row.Col(crossRefAccountCol))
		if accNo == "" {
			continue
		}
		mapping[accNo] = strings.TrimSpace(row.Col(crossRefAslaasCol))
	}
	return mapping, nil
}
