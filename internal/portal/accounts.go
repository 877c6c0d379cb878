package portal

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/shopspring/decimal"
)

// ExportAccountList opens the account listing's print preview in a new
// browser target and reads every row by probing sequential row indices
// until one is absent. Absence terminates the sequence; it is the portal's
// end-of-list signal, not an error.
func (e *Executor) ExportAccountList(ctx context.Context) ([]AccountRow, error) {
	if err := e.openAccountsSection(ctx); err != nil {
		return nil, err
	}
	if err := e.click(ctx, "open agent enquire screen", IDAgentEnquireTab); err != nil {
		return nil, err
	}

	targetCh := chromedp.WaitNewTarget(ctx, func(info *target.Info) bool {
		return info.OpenerID != ""
	})

	if err := e.clickPrintPreview(ctx); err != nil {
		return nil, err
	}

	var previewID target.ID
	select {
	case previewID = <-targetCh:
	case <-time.After(e.cfg.StepTimeout):
		return nil, fmt.Errorf("print preview window did not open within %s", e.cfg.StepTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tabCtx, cancelTab := chromedp.NewContext(ctx, chromedp.WithTargetID(previewID))
	defer cancelTab()

	if err := e.step(tabCtx, "wait for print preview", chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return nil, err
	}

	var rows []AccountRow
	for i := 0; ; i++ {
		probed, err := e.probeRow(tabCtx, i)
		if err != nil {
			return nil, err
		}
		if probed == nil {
			break
		}
		row, err := deriveRow(*probed)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		rows = append(rows, row)
		if e.cfg.Progress != nil {
			e.cfg.Progress("export_accounts", len(rows))
		}
	}

	// Close the preview target and hand control back to the main page.
	if err := chromedp.Run(tabCtx, page.Close()); err != nil {
		e.logger.Warn("Failed to close print preview", slog.String("error", err.Error()))
	}

	e.logger.Info("Account list exported", slog.Int("accounts", len(rows)))
	return rows, nil
}

// clickPrintPreview clicks the print preview control once it becomes
// clickable. The portal's own script readiness is not observable, so the
// click is retried on a fixed cadence up to the configured bound.
func (e *Executor) clickPrintPreview(ctx context.Context) error {
	sel := ByID(IDPrintPreview)
	var lastErr error
	for attempt := 1; attempt <= e.cfg.PreviewRetries; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := chromedp.Run(cctx,
			chromedp.ScrollIntoView(sel, chromedp.ByQuery),
			chromedp.Click(sel, chromedp.ByQuery),
		)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		e.logger.Debug("Print preview not clickable yet",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return fmt.Errorf("print preview not clickable after %d attempts: %w", e.cfg.PreviewRetries, lastErr)
}

// probeResult is the raw text of one preview row before post-processing.
type probeResult struct {
	No           string `json:"no"`
	HolderName   string `json:"holder"`
	Denomination string `json:"denomination"`
	Installments string `json:"installments"`
	NextDue      string `json:"nextDue"`
}

// probeRow reads the preview row at index i, or returns nil when any of the
// row's controls is absent.
func (e *Executor) probeRow(ctx context.Context, i int) (*probeResult, error) {
	expr := fmt.Sprintf(`(() => {
		const g = (id) => document.getElementById(id);
		const no = g(%q);
		const holder = g(%q);
		const denom = g(%q);
		const paid = g(%q);
		const due = g(%q);
		if (!no || !holder || !denom || !paid || !due) return null;
		return {
			no: no.textContent.trim(),
			holder: holder.textContent.trim(),
			denomination: denom.textContent.trim(),
			installments: paid.textContent.trim(),
			nextDue: due.textContent.trim(),
		};
	})()`,
		fmt.Sprintf(fmtAllRowAccountNo, i),
		fmt.Sprintf(fmtAllRowHolderName, i),
		fmt.Sprintf(fmtAllRowDenomination, i),
		fmt.Sprintf(fmtAllRowInstallments, i),
		fmt.Sprintf(fmtAllRowNextDueDate, i),
	)

	var probed *probeResult
	sctx, cancel := context.WithTimeout(ctx, e.cfg.StepTimeout)
	defer cancel()
	if err := chromedp.Run(sctx, chromedp.Evaluate(expr, &probed)); err != nil {
		return nil, fmt.Errorf("probe row %d: %w", i, err)
	}
	return probed, nil
}

// portalDateLayout is how the portal renders due dates, e.g. "01-May-2024".
const portalDateLayout = "02-Jan-2006"

// deriveRow post-processes one scraped row: normalizes the denomination,
// decides activity from the due date's parseability, and derives the
// opening date for active accounts.
func deriveRow(p probeResult) (AccountRow, error) {
	installments, err := strconv.Atoi(strings.TrimSpace(p.Installments))
	if err != nil {
		return AccountRow{}, fmt.Errorf("bad installment count %q: %w", p.Installments, err)
	}

	row := AccountRow{
		No:           p.No,
		HolderName:   p.HolderName,
		Denomination: normalizeDenomination(p.Denomination),
		Installments: installments,
	}
	row.Active, row.OpeningDate = DeriveOpeningDate(p.NextDue, installments)
	return row, nil
}

// DeriveOpeningDate decides activity and the derived opening date from the
// raw next-due-date text. An unparseable due date means the account has no
// pending installment and is closed; its opening date is unrecoverable.
func DeriveOpeningDate(nextDueRaw string, installments int) (active bool, openingDate string) {
	due, err := time.Parse(portalDateLayout, strings.TrimSpace(nextDueRaw))
	if err != nil {
		return false, ""
	}
	return true, due.AddDate(0, -installments, 0).Format("2006-01-02")
}

// normalizeDenomination strips grouping commas and the fractional part from
// a scraped amount, "1,500.00" -> "1500".
func normalizeDenomination(raw string) string {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if d, err := decimal.NewFromString(cleaned); err == nil {
		return d.Truncate(0).String()
	}
	return strings.SplitN(cleaned, ".", 2)[0]
}
