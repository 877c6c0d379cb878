package ledger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func sampleAccounts() []Account {
	return []Account{
		{No: "RD001", ID: 1, HolderName: "Asha", Denomination: "500", OpeningDate: "2024-01-01", Installments: 4, Active: true, CrossRef: "AS100"},
		{No: "RD002", ID: 2, HolderName: "Bala", Denomination: "300", Installments: 0, Active: false},
	}
}

func TestLoadMissingFileIsEmptyLedger(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "ledger.csv"), testLogger())
	accounts, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "ledger.csv"), testLogger())

	require.NoError(t, store.Save(sampleAccounts()))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, sampleAccounts(), loaded)
}

func TestSaveWritesExactColumnLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	store := NewStore(path, testLogger())
	require.NoError(t, store.Save(sampleAccounts()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ac_no,ac_id,acc_holder_name,denomination,acc_opening_date,no_of_installments,is_active,aslaas_no", lines[0])
	assert.Equal(t, "RD001,1,Asha,500,2024-01-01,4,1,AS100", lines[1])
	assert.Equal(t, "RD002,2,Bala,300,,0,0,", lines[2])
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(filepath.Join(dir, "ledger.csv"), testLogger())
	require.NoError(t, store.Save(sampleAccounts()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ledger.csv", entries[0].Name())
}

func TestSaveReplacesExistingLedger(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "ledger.csv"), testLogger())
	require.NoError(t, store.Save(sampleAccounts()))

	updated := sampleAccounts()
	updated[0].Installments = 5
	require.NoError(t, store.Save(updated))

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, 5, loaded[0].Installments)
	assert.Len(t, loaded, 2)
}

func TestLoadRejectsMalformedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.csv")
	content := "ac_no,ac_id,acc_holder_name,denomination,acc_opening_date,no_of_installments,is_active,aslaas_no\nRD001,notanumber,Asha,500,2024-01-01,4,1,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	store := NewStore(path, testLogger())
	_, err := store.Load()
	assert.Error(t, err)
}

func TestMaxID(t *testing.T) {
	assert.Equal(t, 0, MaxID(nil))
	assert.Equal(t, 2, MaxID(sampleAccounts()))
}

func TestActiveWithoutCrossRef(t *testing.T) {
	accounts := []Account{
		{No: "RD001", ID: 1, Active: true, CrossRef: "AS100"},
		{No: "RD002", ID: 2, Active: true},
		{No: "RD003", ID: 3, Active: false},
	}
	assert.Equal(t, []string{"RD002"}, ActiveWithoutCrossRef(accounts))
}

func TestIDLookups(t *testing.T) {
	accounts := sampleAccounts()

	assert.Equal(t, []string{"RD002"}, NosByIDs(accounts, []int{2}))
	assert.Equal(t, []int{1}, IDsByNos(accounts, []string{"RD001"}))
	assert.Equal(t, []int{1}, ActiveIDs(accounts))

	byID := ByIDs(accounts, []int{2, 1})
	require.Len(t, byID, 2)
	assert.Equal(t, "RD001", byID[0].No)
}

func TestSetCrossRefsByNo(t *testing.T) {
	accounts := sampleAccounts()
	changed := SetCrossRefsByNo(accounts, []string{"RD002", "RD999"}, []string{"AS200", "AS300"})
	assert.Equal(t, 1, changed)
	assert.Equal(t, "AS200", accounts[1].CrossRef)
}
