package portal

// LotEntry is one account in a payment lot: the account to pay and how many
// installments to pay for it.
type LotEntry struct {
	AccountNo    string
	Installments int
}

// CrossRefUpdate links one account number to its aslaas number on the portal.
type CrossRefUpdate struct {
	AccountNo string
	CrossRef  string
}

// AccountRow is one row of the account-list export after post-processing.
// An account is active iff its next due date parsed as a date; for active
// accounts OpeningDate is derived by walking the due date back one month per
// paid installment. For closed accounts the portal gives no way to recover
// the opening date, so it stays empty.
type AccountRow struct {
	No           string
	HolderName   string
	Denomination string
	Installments int
	Active       bool
	OpeningDate  string // "2006-01-02", empty when inactive
}
