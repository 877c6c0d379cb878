package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dopagent/internal/ledger"
	"dopagent/internal/portal"
)

func TestMergeAppendsNewAccountsInScrapeOrder(t *testing.T) {
	existing := []ledger.Account{
		{No: "RD0001", ID: 1, HolderName: "Asha", Denomination: "500", Active: true},
		{No: "RD0002", ID: 7, HolderName: "Binod", Denomination: "1000", Active: true},
	}
	batch := []portal.AccountRow{
		{No: "RD0010", HolderName: "Chitra", Denomination: "500", Installments: 2, Active: true, OpeningDate: "2024-03-01"},
		{No: "RD0011", HolderName: "Deepak", Denomination: "2000", Installments: 1, Active: true, OpeningDate: "2024-04-01"},
	}

	merged, res := Merge(existing, batch, nil)
	require.Len(t, merged, 4)
	assert.Equal(t, 2, res.Added)
	assert.Equal(t, 0, res.Updated)

	// IDs continue from the current maximum, gapless, in scrape order.
	assert.Equal(t, 8, merged[2].ID)
	assert.Equal(t, "RD0010", merged[2].No)
	assert.Equal(t, 9, merged[3].ID)
	assert.Equal(t, "RD0011", merged[3].No)
}

func TestMergeRefreshesKnownAccounts(t *testing.T) {
	existing := []ledger.Account{
		{No: "RD0001", ID: 1, HolderName: "Asha", Denomination: "500", Installments: 3, Active: true, OpeningDate: "2024-01-01", CrossRef: "AS100"},
	}
	batch := []portal.AccountRow{
		{No: "RD0001", HolderName: "Asha Kumari", Denomination: "500", Installments: 5, Active: true, OpeningDate: "2024-01-01"},
	}

	merged, res := Merge(existing, batch, nil)
	require.Len(t, merged, 1)
	assert.Equal(t, 1, res.Updated)
	assert.Equal(t, 0, res.Added)

	got := merged[0]
	assert.Equal(t, 1, got.ID, "identity is never reassigned")
	assert.Equal(t, "Asha Kumari", got.HolderName)
	assert.Equal(t, 5, got.Installments)
	assert.Equal(t, "AS100", got.CrossRef, "cross-reference survives a refresh")
}

func TestMergeMarksClosedAccounts(t *testing.T) {
	existing := []ledger.Account{
		{No: "RD0001", ID: 1, Active: true, OpeningDate: "2024-01-01", Installments: 11},
	}
	batch := []portal.AccountRow{
		{No: "RD0001", Installments: 12, Active: false, OpeningDate: ""},
	}

	merged, _ := Merge(existing, batch, nil)
	assert.False(t, merged[0].Active)
	assert.Empty(t, merged[0].OpeningDate)
}

func TestMergeIsIdempotent(t *testing.T) {
	batch := []portal.AccountRow{
		{No: "RD0001", HolderName: "Asha", Denomination: "500", Installments: 2, Active: true, OpeningDate: "2024-01-01"},
		{No: "RD0002", HolderName: "Binod", Denomination: "1000", Installments: 4, Active: true, OpeningDate: "2023-11-01"},
	}
	refs := map[string]string{"RD0001": "AS100"}

	once, _ := Merge(nil, batch, refs)
	twice, res := Merge(once, batch, refs)

	assert.Equal(t, once, twice)
	assert.Equal(t, Result{}, res)
}

func TestMergeCrossRefNeverRegresses(t *testing.T) {
	existing := []ledger.Account{
		{No: "RD0001", ID: 1, Active: true, CrossRef: "AS100"},
	}
	merged, res := Merge(existing, nil, map[string]string{"RD0001": ""})
	assert.Equal(t, "AS100", merged[0].CrossRef)
	assert.Equal(t, 0, res.CrossRefLinked)
}

func TestMergeLinksCrossRefs(t *testing.T) {
	existing := []ledger.Account{
		{No: "RD0001", ID: 1, Active: true},
	}
	merged, res := Merge(existing, nil, map[string]string{"RD0001": "AS200", "RD9999": "AS300"})
	assert.Equal(t, "AS200", merged[0].CrossRef)
	assert.Equal(t, 1, res.CrossRefLinked, "unknown account numbers are ignored")
}

func TestMergeScrapedBatchIntoEmptyLedger(t *testing.T) {
	// Two rows as they come off a scrape: RD001 with four paid installments
	// due on 01-May-2024, RD002 with no parseable due date.
	active1, opening1 := portal.DeriveOpeningDate("01-May-2024", 4)
	active2, opening2 := portal.DeriveOpeningDate("", 0)
	batch := []portal.AccountRow{
		{No: "RD001", HolderName: "Asha", Denomination: "500", Installments: 4, Active: active1, OpeningDate: opening1},
		{No: "RD002", HolderName: "Bala", Denomination: "300", Installments: 0, Active: active2, OpeningDate: opening2},
	}

	merged, res := Merge(nil, batch, map[string]string{"RD001": "AS100"})
	require.Len(t, merged, 2)
	assert.Equal(t, Result{Added: 2, CrossRefLinked: 1}, res)

	assert.Equal(t, ledger.Account{
		No:           "RD001",
		ID:           1,
		HolderName:   "Asha",
		Denomination: "500",
		OpeningDate:  "2024-01-01",
		Installments: 4,
		Active:       true,
		CrossRef:     "AS100",
	}, merged[0])
	assert.Equal(t, ledger.Account{
		No:           "RD002",
		ID:           2,
		HolderName:   "Bala",
		Denomination: "300",
		Installments: 0,
	}, merged[1])
}

func TestMergeLeavesAbsentAccountsUntouched(t *testing.T) {
	existing := []ledger.Account{
		{No: "RD0001", ID: 1, HolderName: "Asha", Active: true},
	}
	merged, res := Merge(existing, []portal.AccountRow{{No: "RD0002", HolderName: "Binod", Active: true}}, nil)
	require.Len(t, merged, 2)
	assert.Equal(t, existing[0], merged[0])
	assert.Equal(t, 1, res.Added)
}

func TestMergeDoesNotMutateInput(t *testing.T) {
	existing := []ledger.Account{{No: "RD0001", ID: 1, HolderName: "Asha"}}
	Merge(existing, []portal.AccountRow{{No: "RD0001", HolderName: "Changed"}}, nil)
	assert.Equal(t, "Asha", existing[0].HolderName)
}
