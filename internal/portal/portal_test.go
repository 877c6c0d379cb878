package portal

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestPageCounts(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want []int
	}{
		{"empty", 0, nil},
		{"partial page", 3, []int{3}},
		{"exact page", 10, []int{10}},
		{"spills onto third page", 23, []int{10, 10, 3}},
		{"two exact pages", 20, []int{10, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pageCounts(tt.n))
		})
	}
}

func TestParseReference(t *testing.T) {
	ref, err := ParseReference("Your transaction reference number is DOP123456. Thank you.")
	require.NoError(t, err)
	assert.Equal(t, "DOP123456", ref)
}

func TestParseReferenceNoMarker(t *testing.T) {
	_, err := ParseReference("Something went wrong.")
	assert.Error(t, err)
}

func TestDeriveOpeningDate(t *testing.T) {
	active, opening := DeriveOpeningDate("01-May-2024", 4)
	assert.True(t, active)
	assert.Equal(t, "2024-01-01", opening)
}

func TestDeriveOpeningDateClosedAccount(t *testing.T) {
	active, opening := DeriveOpeningDate("--", 12)
	assert.False(t, active)
	assert.Empty(t, opening)
}

func TestDeriveRow(t *testing.T) {
	row, err := deriveRow(probeResult{
		No:           "RD0042",
		HolderName:   "Asha Kumari",
		Denomination: "1,500.00",
		Installments: "4",
		NextDue:      "01-May-2024",
	})
	require.NoError(t, err)
	assert.Equal(t, AccountRow{
		No:           "RD0042",
		HolderName:   "Asha Kumari",
		Denomination: "1500",
		Installments: 4,
		Active:       true,
		OpeningDate:  "2024-01-01",
	}, row)
}

func TestDeriveRowBadInstallments(t *testing.T) {
	_, err := deriveRow(probeResult{No: "RD1", Installments: "n/a"})
	assert.Error(t, err)
}

func TestNormalizeDenomination(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"1,500.00", "1500"},
		{"500", "500"},
		{" 2,000 ", "2000"},
		{"100.50", "100"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeDenomination(tt.raw), tt.raw)
	}
}

func TestByID(t *testing.T) {
	assert.Equal(t, `[id="AuthenticationFG.USER_PRINCIPAL"]`, ByID("AuthenticationFG.USER_PRINCIPAL"))
}

func TestParseCrossRefWorkbook(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	// Rows 1-7 are report boilerplate the parser must skip.
	require.NoError(t, f.SetCellValue(sheet, "C7", "Account No"))
	require.NoError(t, f.SetCellValue(sheet, "I7", "ASLAAS No"))
	require.NoError(t, f.SetCellValue(sheet, "C8", "RD0001"))
	require.NoError(t, f.SetCellValue(sheet, "I8", "AS1001"))
	require.NoError(t, f.SetCellValue(sheet, "C9", " RD0002 "))
	require.NoError(t, f.SetCellValue(sheet, "I9", " AS1002 "))
	// Trailing row with no account number is ignored.
	require.NoError(t, f.SetCellValue(sheet, "I10", "AS9999"))

	path := filepath.Join(t.TempDir(), "aslaas.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	refs, err := ParseCrossRefWorkbook(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"RD0001": "AS1001",
		"RD0002": "AS1002",
	}, refs)
}

func TestParseCrossRefWorkbookMissingFile(t *testing.T) {
	_, err := ParseCrossRefWorkbook(filepath.Join(t.TempDir(), "nope.xlsx"))
	assert.Error(t, err)
}

func TestIsLegacyWorkbook(t *testing.T) {
	dir := t.TempDir()

	legacy := filepath.Join(dir, "report.xls")
	require.NoError(t, os.WriteFile(legacy, append(append([]byte{}, legacyWorkbookMagic...), 0x00, 0x00), 0644))
	ok, err := isLegacyWorkbook(legacy)
	require.NoError(t, err)
	assert.True(t, ok)

	zipped := filepath.Join(dir, "report.xlsx")
	require.NoError(t, os.WriteFile(zipped, []byte("PK\x03\x04rest"), 0644))
	ok, err = isLegacyWorkbook(zipped)
	require.NoError(t, err)
	assert.False(t, ok)

	short := filepath.Join(dir, "short.xls")
	require.NoError(t, os.WriteFile(short, []byte{0xD0, 0xCF}, 0644))
	ok, err = isLegacyWorkbook(short)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseCrossRefWorkbookLegacySignatureTakesBIFFPath(t *testing.T) {
	// A file carrying the OLE2 signature but no readable workbook behind it
	// must fail in the legacy reader, not fall through to excelize.
	path := filepath.Join(t.TempDir(), "report.xls")
	require.NoError(t, os.WriteFile(path, legacyWorkbookMagic, 0644))

	_, err := ParseCrossRefWorkbook(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "legacy workbook")
}
