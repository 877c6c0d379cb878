package reconcile

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"dopagent/internal/portal"
)

// snapshotHeader is the column layout of an account export snapshot.
var snapshotHeader = []string{
	"ac_no",
	"acc_holder_name",
	"denomination",
	"no_of_installments",
	"is_active",
	"acc_opening_date",
}

// WriteSnapshot persists a scraped account batch as a dated CSV so a sync
// can be reconciled later, or re-reconciled without touching the portal.
func WriteSnapshot(path string, batch []portal.AccountRow) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("failed to create snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(snapshotHeader); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	for _, row := range batch {
		active := "0"
		if row.Active {
			active = "1"
		}
		record := []string{
			row.No,
			row.HolderName,
			row.Denomination,
			strconv.Itoa(row.Installments),
			active,
			row.OpeningDate,
		}
		if err := w.Write(record); err != nil {
			tmp.Close()
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to publish snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot loads a previously written account snapshot.
func ReadSnapshot(path string) ([]portal.AccountRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("snapshot %s is empty", path)
	}

	var batch []portal.AccountRow
	for i, record := range records[1:] {
		if len(record) != len(snapshotHeader) {
			return nil, fmt.Errorf("snapshot %s row %d: expected %d columns, got %d", path, i+2, len(snapshotHeader), len(record))
		}
		installments, err := strconv.Atoi(record[3])
		if err != nil {
			return nil, fmt.Errorf("snapshot %s row %d: bad installment count %q", path, i+2, record[3])
		}
		batch = append(batch, portal.AccountRow{
			No:           record[0],
			HolderName:   record[1],
			Denomination: record[2],
			Installments: installments,
			Active:       record[4] == "1",
			OpeningDate:  record[5],
		})
	}
	return batch, nil
}
