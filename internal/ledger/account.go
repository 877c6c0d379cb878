// Package ledger is the durable local record of every RD account the agent
// has ever seen on the portal. The portal is authoritative for every field
// except the locally assigned surrogate ID and, between syncs, the aslaas
// cross-reference number.
package ledger

// Account is one row of the ledger.
type Account struct {
	No           string // portal-issued account number, stable, unique
	ID           int    // locally assigned surrogate key, never reused
	HolderName   string
	Denomination string // per-installment deposit amount
	OpeningDate  string // "2006-01-02"; empty when unrecoverable (closed account)
	Installments int    // installments paid so far, portal-authoritative
	Active       bool
	CrossRef     string // aslaas number; empty = not yet linked
}

// MaxID returns the highest assigned account ID, or 0 for an empty ledger.
func MaxID(accounts []Account) int {
	max := 0
	for _, a := range accounts {
		if a.ID > max {
			max = a.ID
		}
	}
	return max
}

// ActiveWithoutCrossRef returns the account numbers of active accounts that
// have no aslaas number yet. These are the candidates for the
// cross-reference update task.
func ActiveWithoutCrossRef(accounts []Account) []string {
	var nos []string
	for _, a := range accounts {
		if a.Active && a.CrossRef == "" {
			nos = append(nos, a.No)
		}
	}
	return nos
}

// ActiveIDs returns the IDs of all active accounts.
func ActiveIDs(accounts []Account) []int {
	var ids []int
	for _, a := range accounts {
		if a.Active {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// ByIDs returns the accounts whose ID is in ids, in ledger order.
func ByIDs(accounts []Account, ids []int) []Account {
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Account
	for _, a := range accounts {
		if want[a.ID] {
			out = append(out, a)
		}
	}
	return out
}

// NosByIDs maps account IDs to account numbers, in ledger order.
func NosByIDs(accounts []Account, ids []int) []string {
	var nos []string
	for _, a := range ByIDs(accounts, ids) {
		nos = append(nos, a.No)
	}
	return nos
}

// IDsByNos maps account numbers to IDs, in ledger order.
func IDsByNos(accounts []Account, nos []string) []int {
	want := make(map[string]bool, len(nos))
	for _, no := range nos {
		want[no] = true
	}
	var ids []int
	for _, a := range accounts {
		if want[a.No] {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

// SetCrossRefsByNo sets the aslaas number for the given account numbers in
// place. Pairs with no matching ledger row are ignored. Returns the number
// of rows changed.
func SetCrossRefsByNo(accounts []Account, nos, refs []string) int {
	byNo := make(map[string]int, len(accounts))
	for i, a := range accounts {
		byNo[a.No] = i
	}
	changed := 0
	for i, no := range nos {
		if i >= len(refs) {
			break
		}
		if pos, ok := byNo[no]; ok {
			accounts[pos].CrossRef = refs[i]
			changed++
		}
	}
	return changed
}
