// dopctl runs portal tasks from the command line, against the same config
// and ledger the server uses.
package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"dopagent/internal/config"
	"dopagent/internal/files"
	"dopagent/internal/infrastructure"
	"dopagent/internal/ledger"
	"dopagent/internal/portal"
	"dopagent/internal/service"
	"dopagent/internal/websocket"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:          "dopctl",
		Short:        "Run RD agent portal tasks from the command line",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to settings.yaml (default ./settings.yaml)")

	root.AddCommand(newLotCmd(), newSyncCmd(), newCrossRefCmd(), newReportCmd(), newAccountsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// progressPrinter renders task progress events as a terminal progress bar.
type progressPrinter struct {
	bar *progressbar.ProgressBar
}

func (p *progressPrinter) Broadcast(event websocket.TaskEvent) {
	switch event.Status {
	case websocket.StatusProgress:
		if p.bar == nil {
			p.bar = progressbar.NewOptions(-1,
				progressbar.OptionSetDescription("scraping accounts"),
				progressbar.OptionShowCount(),
				progressbar.OptionSpinnerType(14),
			)
		}
		if counts, ok := event.Payload.(map[string]int); ok {
			p.bar.Set(counts["count"])
		}
	case websocket.StatusCompleted, websocket.StatusFailed:
		if p.bar != nil {
			p.bar.Finish()
			fmt.Fprintln(os.Stderr)
		}
	}
}

func buildService() (*service.TaskService, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	fm := files.NewManager(cfg.Paths)
	if err := fm.EnsureDirectories(); err != nil {
		return nil, err
	}
	store := ledger.NewStore(cfg.Paths.LedgerFile, logger)
	factory := service.NewChromeFactory(cfg, fm, logger)
	return service.NewTaskService(store, fm, factory, &progressPrinter{}, logger), nil
}

func newLotCmd() *cobra.Command {
	var accounts []string
	var installments []int
	var withReport bool

	cmd := &cobra.Command{
		Use:   "lot",
		Short: "Submit an installment lot for the given accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(accounts) == 0 {
				return fmt.Errorf("at least one --account is required")
			}
			if len(installments) > 0 && len(installments) != len(accounts) {
				return fmt.Errorf("--installments must match --account in count")
			}
			entries := make([]portal.LotEntry, len(accounts))
			for i, no := range accounts {
				n := 1
				if len(installments) > 0 {
					n = installments[i]
				}
				entries[i] = portal.LotEntry{AccountNo: no, Installments: n}
			}

			svc, err := buildService()
			if err != nil {
				return err
			}
			res, err := svc.RunLot(cmd.Context(), entries, withReport)
			if err != nil {
				return err
			}
			fmt.Printf("lot submitted, reference %s\n", res.Reference)
			if res.ReportPath != "" {
				fmt.Printf("report saved to %s\n", res.ReportPath)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&accounts, "account", nil, "account number (repeatable)")
	cmd.Flags().IntSliceVar(&installments, "installments", nil, "installment count per account (defaults to 1 each)")
	cmd.Flags().BoolVar(&withReport, "report", false, "download the transaction report after submission")
	return cmd
}

func newSyncCmd() *cobra.Command {
	var fromSnapshot bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Scrape the full account list and reconcile it into the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			if fromSnapshot {
				res, err := svc.RunSyncFromSnapshot(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Printf("reconciled %d accounts from %s: %d added, %d updated\n",
					res.Accounts, res.SnapshotPath, res.Added, res.Updated)
				return nil
			}
			res, err := svc.RunSync(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("synced %d accounts: %d added, %d updated, %d linked\n",
				res.Accounts, res.Added, res.Updated, res.CrossRefLinked)
			fmt.Printf("snapshot saved to %s\n", res.SnapshotPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromSnapshot, "from-snapshot", false, "reconcile the newest saved snapshot instead of scraping the portal")
	return cmd
}

func newCrossRefCmd() *cobra.Command {
	var accounts, refs []string

	cmd := &cobra.Command{
		Use:   "aslaas",
		Short: "Record aslaas numbers against accounts on the portal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(accounts) == 0 || len(accounts) != len(refs) {
				return fmt.Errorf("--account and --aslaas must be given in matching pairs")
			}
			updates := make([]portal.CrossRefUpdate, len(accounts))
			for i := range accounts {
				updates[i] = portal.CrossRefUpdate{AccountNo: accounts[i], CrossRef: refs[i]}
			}

			svc, err := buildService()
			if err != nil {
				return err
			}
			linked, err := svc.RunCrossRefUpdate(cmd.Context(), updates)
			if err != nil {
				return err
			}
			fmt.Printf("updated %d of %d accounts in the ledger\n", linked, len(updates))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&accounts, "account", nil, "account number (repeatable)")
	cmd.Flags().StringSliceVar(&refs, "aslaas", nil, "aslaas number (repeatable, pairs with --account)")
	return cmd
}

func newReportCmd() *cobra.Command {
	var reference string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Download the transaction report for a lot reference",
		RunE: func(cmd *cobra.Command, args []string) error {
			if reference == "" {
				return fmt.Errorf("--reference is required")
			}
			svc, err := buildService()
			if err != nil {
				return err
			}
			path, err := svc.RunReportDownload(cmd.Context(), reference)
			if err != nil {
				return err
			}
			fmt.Printf("report saved to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&reference, "reference", "", "lot reference number")
	return cmd
}

func newAccountsCmd() *cobra.Command {
	var unlinked bool

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "List ledger accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := buildService()
			if err != nil {
				return err
			}
			if unlinked {
				nos, err := svc.UnlinkedAccounts()
				if err != nil {
					return err
				}
				for _, no := range nos {
					fmt.Println(no)
				}
				return nil
			}
			accounts, err := svc.Accounts()
			if err != nil {
				return err
			}
			for _, a := range accounts {
				status := "Closed"
				if a.Active {
					status = "Active"
				}
				fmt.Printf("%-4d %-16s %-24s %8s %4d %-7s %s\n",
					a.ID, a.No, a.HolderName, a.Denomination, a.Installments, status, a.CrossRef)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&unlinked, "unlinked", false, "only active accounts without an aslaas number")
	return cmd
}
