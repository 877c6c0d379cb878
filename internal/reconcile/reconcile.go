// Package reconcile merges freshly scraped portal state into the local
// ledger. The portal is authoritative for account attributes; the ledger is
// authoritative for account identity (the assigned account IDs).
package reconcile

import (
	"dopagent/internal/ledger"
	"dopagent/internal/portal"
)

// Result summarizes what a reconciliation changed.
type Result struct {
	Added          int
	Updated        int
	CrossRefLinked int
}

// Merge folds a scraped account batch and a cross-reference export into the
// existing ledger rows. Known accounts have all portal-sourced fields
// refreshed in place; unknown accounts are appended in scrape order with
// sequential IDs continuing from the current maximum, so IDs stay gapless
// and never recycle. A missing or empty cross-reference never clears one
// already recorded.
func Merge(existing []ledger.Account, batch []portal.AccountRow, crossRefs map[string]string) ([]ledger.Account, Result) {
	merged := make([]ledger.Account, len(existing))
	copy(merged, existing)

	pos := make(map[string]int, len(merged))
	for i, acc := range merged {
		pos[acc.No] = i
	}

	var res Result
	nextID := ledger.MaxID(merged) + 1

	for _, row := range batch {
		if i, ok := pos[row.No]; ok {
			acc := &merged[i]
			if acc.HolderName != row.HolderName ||
				acc.Denomination != row.Denomination ||
				acc.OpeningDate != row.OpeningDate ||
				acc.Installments != row.Installments ||
				acc.Active != row.Active {
				res.Updated++
			}
			acc.HolderName = row.HolderName
			acc.Denomination = row.Denomination
			acc.OpeningDate = row.OpeningDate
			acc.Installments = row.Installments
			acc.Active = row.Active
			continue
		}
		merged = append(merged, ledger.Account{
			No:           row.No,
			ID:           nextID,
			HolderName:   row.HolderName,
			Denomination: row.Denomination,
			OpeningDate:  row.OpeningDate,
			Installments: row.Installments,
			Active:       row.Active,
		})
		pos[row.No] = len(merged) - 1
		nextID++
		res.Added++
	}

	for no, ref := range crossRefs {
		if ref == "" {
			continue
		}
		if i, ok := pos[no]; ok && merged[i].CrossRef != ref {
			merged[i].CrossRef = ref
			res.CrossRefLinked++
		}
	}

	return merged, res
}
