package portal

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/chromedp/chromedp"
)

// SubmitLot pays one installment batch. It fetches all requested accounts
// into the lot listing, selects every row page by page, raises the
// installment count for accounts paying more than one, then pays all saved
// installments and returns the portal's transaction reference number.
//
// A failure at any step leaves the lot half-submitted on the portal; the
// caller must reconcile manually against the portal before retrying.
func (e *Executor) SubmitLot(ctx context.Context, entries []LotEntry) (string, error) {
	if len(entries) == 0 {
		return "", fmt.Errorf("empty lot")
	}

	if err := e.openAccountsSection(ctx); err != nil {
		return "", err
	}
	if err := e.click(ctx, "open agent enquire screen", IDAgentEnquireTab); err != nil {
		return "", err
	}

	nos := make([]string, len(entries))
	for i, en := range entries {
		nos[i] = en.AccountNo
	}
	if err := e.typeInto(ctx, "enter account numbers", IDAccountSearchBox, strings.Join(nos, ",")); err != nil {
		return "", err
	}
	if err := e.click(ctx, "fetch accounts", IDFetchAccounts); err != nil {
		return "", err
	}
	if err := e.clickXPath(ctx, "select cash payment", xpathCashPayMode); err != nil {
		return "", err
	}

	if err := e.selectAllRows(ctx, len(entries)); err != nil {
		return "", err
	}
	e.logger.Info("Lot saved", slog.Int("accounts", len(entries)))

	for _, en := range entries {
		if en.Installments <= 1 {
			continue
		}
		if err := e.overrideInstallments(ctx, en, len(entries)); err != nil {
			return "", err
		}
	}

	if err := e.click(ctx, "pay all saved installments", IDPayAllSaved); err != nil {
		return "", err
	}

	var banner string
	if err := e.step(ctx, "read confirmation banner",
		chromedp.Text(xpathResultBanner, &banner, chromedp.BySearch)); err != nil {
		return "", err
	}
	ref, err := ParseReference(banner)
	if err != nil {
		return "", err
	}

	e.logger.Info("Lot submitted", slog.String("reference", ref))
	return ref, nil
}

// selectAllRows ticks every row checkbox across the paginated lot listing.
// A checkbox may be absent on a short last page; that is tolerated. The last
// page saves the lot, every earlier page advances to the next.
func (e *Executor) selectAllRows(ctx context.Context, n int) error {
	counts := pageCounts(n)
	for p, count := range counts {
		for j := 0; j < count; j++ {
			idx := p*pageSize + j
			id := fmt.Sprintf(fmtSelectCheckbox, idx)
			ok, err := e.present(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			if err := e.click(ctx, fmt.Sprintf("select row %d", idx), id); err != nil {
				return err
			}
		}
		if p == len(counts)-1 {
			if err := e.click(ctx, "save lot", IDSaveLot); err != nil {
				return err
			}
		} else {
			if err := e.click(ctx, "next lot page", IDNextAllListing); err != nil {
				return err
			}
		}
	}
	return nil
}

// overrideInstallments walks the saved-lot listing looking for the row whose
// displayed account number matches the entry, scanning the current page
// fully before advancing, then selects the row, overwrites its installment
// count and saves. The listing returns to its first page after each save.
func (e *Executor) overrideInstallments(ctx context.Context, entry LotEntry, total int) error {
	counts := pageCounts(total)
	for p, count := range counts {
		for k := 0; k < count; k++ {
			idx := p*pageSize + k
			rowID := fmt.Sprintf(fmtRowAccountNo, idx)
			no, err := e.text(ctx, fmt.Sprintf("read saved row %d", idx), rowID)
			if err != nil {
				return err
			}
			if strings.TrimSpace(no) != entry.AccountNo {
				continue
			}
			if err := e.clickXPath(ctx, "select saved row",
				fmt.Sprintf(fmtXPathSelectRadio, idx)); err != nil {
				return err
			}
			if err := e.typeInto(ctx, "set installment count",
				IDInstallmentInput, strconv.Itoa(entry.Installments)); err != nil {
				return err
			}
			if err := e.click(ctx, "save installment count", IDSaveInstallments); err != nil {
				return err
			}
			e.logger.Info("Installment count overridden",
				slog.String("account", entry.AccountNo),
				slog.Int("installments", entry.Installments))
			return nil
		}
		if p < len(counts)-1 {
			if err := e.click(ctx, "next saved page", IDNextSavedListing); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("account %s not found in saved lot listing", entry.AccountNo)
}

// ParseReference extracts the transaction reference number from the
// confirmation banner: the token following "is", cut at its first period.
func ParseReference(banner string) (string, error) {
	fields := strings.Fields(banner)
	for i, f := range fields {
		if strings.EqualFold(f, "is") && i+1 < len(fields) {
			ref := strings.SplitN(fields[i+1], ".", 2)[0]
			if ref != "" {
				return ref, nil
			}
		}
	}
	return "", fmt.Errorf("no reference number in banner %q", banner)
}
