// Package portal drives the agent portal's server-rendered UI through an
// authenticated browser session. Each task is a fixed sequence of page
// navigation steps against named controls.
package portal

import "fmt"

// The portal addresses every control by a stable identifier string. These
// identifiers are the wire contract with the portal: they must match its
// markup exactly, and a portal markup change is fixed by editing this table
// only.
const (
	// Login page.
	IDUserPrincipal = "AuthenticationFG.USER_PRINCIPAL"
	IDAccessCode    = "AuthenticationFG.ACCESS_CODE"
	IDCaptchaImage  = "IMAGECAPTCHA"
	IDCaptchaInput  = "AuthenticationFG.VERIFICATION_CODE"
	IDLoginSubmit   = "VALIDATE_RM_PLUS_CREDENTIALS_CATCHA_DISABLED"

	// Landing page. Presence of the Accounts control is the only reliable
	// signal that login succeeded; the portal re-renders the login form
	// silently on failure.
	IDAccountsTab = "Accounts"

	// Agent enquire & update screen (lot entry and account listing).
	IDAgentEnquireTab  = "Agent Enquire & Update Screen"
	IDAccountSearchBox = "CustomAgentRDAccountFG.ACCOUNT_NUMBER_FOR_SEARCH"
	IDFetchAccounts    = "Button3087042"
	IDSaveLot          = "Button26553257"
	IDNextAllListing   = "Action.AgentRDActSummaryAllListing.GOTO_NEXT__"
	IDInstallmentInput = "CustomAgentRDAccountFG.RD_INSTALLMENT_NO"
	IDSaveInstallments = "Button11874602"
	IDNextSavedListing = "Action.SelectedAgentRDActSummaryListing.GOTO_NEXT__"
	IDPayAllSaved      = "PAY_ALL_SAVED_INSTALLMENTS"
	IDPrintPreview     = "HREF_printPreview"

	// Reports screen.
	IDReportsTab         = "Reports"
	IDReferenceInput     = "CustomAgentRDAccountFG.EBANKING_REF_NUMBER"
	IDStatusSelect       = "CustomAgentRDAccountFG.INSTALLMENT_STATUS"
	IDReportFromDate     = "CustomAgentRDAccountFG.REPORT_DATE_FROM"
	IDReportSearch       = "SearchBtn"
	IDReportOutFormat    = "CustomAgentRDAccountFG.OUTFORMAT"
	IDGenerateReport     = "GENERATE_REPORT"
	statusValueSuccess   = "SUC"
	outFormatSpreadsheet = "4"

	// Aslaas number update screen.
	IDAslaasUpdateTab = "Update ASLAAS Number"
	IDAslaasAccInput  = "CustomAgentAslaasNoFG.RD_ACC_NO"
	IDAslaasNoInput   = "CustomAgentAslaasNoFG.ASLAAS_NO"
	IDAslaasContinue  = "LOAD_CONFIRM_PAGE"
	IDAslaasSave      = "ADD_FIELD_SUBMIT"

	// Aslaas number report screen.
	IDAslaasReportTab = "ASLAAS Number Report"
	IDAslaasSearch    = "SEARCH_ASLAAS_NUMBER"
	IDAslaasOutFormat = "CustomAgentAslaasNoFG.OUTFORMAT"
)

// Indexed controls. The portal renders listings as per-row controls whose
// identifiers embed the absolute row index.
const (
	fmtSelectCheckbox = "CustomAgentRDAccountFG.SELECT_INDEX_ARRAY[%d]"
	fmtRowAccountNo   = "HREF_CustomAgentRDAccountFG.ACCOUNT_NUMBER_ARRAY[%d]"

	fmtAllRowAccountNo    = "HREF_CustomAgentRDAccountFG.ACCOUNT_NUMBER_ALL_ARRAY[%d]"
	fmtAllRowHolderName   = "HREF_CustomAgentRDAccountFG.ACCOUNT_NAME_ALL_ARRAY[%d]"
	fmtAllRowDenomination = "HREF_CustomAgentRDAccountFG.DEPOSIT_AMOUNT_ALL_ARRAY[%d]"
	fmtAllRowInstallments = "HREF_CustomAgentRDAccountFG.MONTH_PAID_UPTO_ALL_ARRAY[%d]"
	fmtAllRowNextDueDate  = "HREF_CustomAgentRDAccountFG.NEXT_RD_INSTALLMENT_DATE_ALL_ARRAY[%d]"
)

// XPath selectors for controls the portal only distinguishes by value.
const (
	xpathCashPayMode    = `//input[@id="CustomAgentRDAccountFG.PAY_MODE_SELECTED_FOR_TRN"][@value="C"]`
	fmtXPathSelectRadio = `//input[@id="CustomAgentRDAccountFG.SELECTED_INDEX"][@value="%d"]`
	xpathResultBanner   = `//div[@class="greenbg"][@role="alert"]`
)

// overlaySelector matches the blocking overlay the portal shows while it
// generates reports server-side.
const overlaySelector = "div.blockUI.blockOverlay"

// ByID returns a CSS selector matching a portal control ID. The IDs contain
// dots and brackets, so a plain #id selector cannot address them.
func ByID(id string) string {
	return fmt.Sprintf(`[id=%q]`, id)
}
