// Package service orchestrates portal tasks end to end: one browser session
// per task, one task in flight at a time, results folded into the ledger
// and streamed to connected UIs.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"dopagent/internal/files"
	"dopagent/internal/ledger"
	"dopagent/internal/portal"
	"dopagent/internal/reconcile"
	"dopagent/internal/websocket"
)

// Broadcaster receives task lifecycle events. *websocket.Hub implements it.
type Broadcaster interface {
	Broadcast(event websocket.TaskEvent)
}

// TaskService runs portal tasks. The portal serves one authenticated
// session sanely, so the service admits exactly one task at a time and
// rejects the rest immediately instead of queueing them.
type TaskService struct {
	store   *ledger.Store
	files   *files.Manager
	factory Factory
	hub     Broadcaster
	logger  *slog.Logger
	sem     *semaphore.Weighted
}

// NewTaskService wires the service.
func NewTaskService(store *ledger.Store, fm *files.Manager, factory Factory, hub Broadcaster, logger *slog.Logger) *TaskService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskService{
		store:   store,
		files:   fm,
		factory: factory,
		hub:     hub,
		logger:  logger.With(slog.String("component", "task_service")),
		sem:     semaphore.NewWeighted(1),
	}
}

// LotResult is the outcome of a successful lot submission.
type LotResult struct {
	Reference  string `json:"reference"`
	ReportPath string `json:"report_path,omitempty"`
}

// SyncResult is the outcome of a successful account sync.
type SyncResult struct {
	Accounts       int    `json:"accounts"`
	Added          int    `json:"added"`
	Updated        int    `json:"updated"`
	CrossRefLinked int    `json:"cross_ref_linked"`
	SnapshotPath   string `json:"snapshot_path"`
}

// StartLot launches a lot submission in the background and returns its run
// ID, or ErrTaskInFlight.
func (s *TaskService) StartLot(entries []portal.LotEntry, withReport bool) (string, error) {
	return s.start("lot", func(ctx context.Context, runID string) (interface{}, error) {
		return s.runLot(ctx, runID, entries, withReport)
	})
}

// RunLot runs a lot submission synchronously.
func (s *TaskService) RunLot(ctx context.Context, entries []portal.LotEntry, withReport bool) (LotResult, error) {
	res, err := s.run(ctx, "lot", func(ctx context.Context, runID string) (interface{}, error) {
		return s.runLot(ctx, runID, entries, withReport)
	})
	if err != nil {
		return LotResult{}, err
	}
	return res.(LotResult), nil
}

// StartSync launches an account sync in the background.
func (s *TaskService) StartSync() (string, error) {
	return s.start("sync", func(ctx context.Context, runID string) (interface{}, error) {
		return s.runSync(ctx, runID)
	})
}

// RunSync runs an account sync synchronously.
func (s *TaskService) RunSync(ctx context.Context) (SyncResult, error) {
	res, err := s.run(ctx, "sync", func(ctx context.Context, runID string) (interface{}, error) {
		return s.runSync(ctx, runID)
	})
	if err != nil {
		return SyncResult{}, err
	}
	return res.(SyncResult), nil
}

// RunSyncFromSnapshot reconciles the newest saved account snapshot into the
// ledger without touching the portal. Useful after a sync whose ledger write
// failed, or to rebuild a lost ledger from the records directory.
func (s *TaskService) RunSyncFromSnapshot(ctx context.Context) (SyncResult, error) {
	res, err := s.run(ctx, "sync", func(ctx context.Context, runID string) (interface{}, error) {
		return s.runSyncFromSnapshot(ctx)
	})
	if err != nil {
		return SyncResult{}, err
	}
	return res.(SyncResult), nil
}

// StartCrossRefUpdate launches an aslaas linkage update in the background.
func (s *TaskService) StartCrossRefUpdate(updates []portal.CrossRefUpdate) (string, error) {
	return s.start("aslaas", func(ctx context.Context, runID string) (interface{}, error) {
		return s.runCrossRefUpdate(ctx, runID, updates)
	})
}

// RunCrossRefUpdate runs an aslaas linkage update synchronously and returns
// the number of ledger rows linked.
func (s *TaskService) RunCrossRefUpdate(ctx context.Context, updates []portal.CrossRefUpdate) (int, error) {
	res, err := s.run(ctx, "aslaas", func(ctx context.Context, runID string) (interface{}, error) {
		return s.runCrossRefUpdate(ctx, runID, updates)
	})
	if err != nil {
		return 0, err
	}
	return res.(int), nil
}

// StartReportDownload launches a transaction report download in the
// background.
func (s *TaskService) StartReportDownload(reference string) (string, error) {
	return s.start("report", func(ctx context.Context, runID string) (interface{}, error) {
		return s.runReport(ctx, runID, reference)
	})
}

// RunReportDownload runs a transaction report download synchronously and
// returns the stored report path.
func (s *TaskService) RunReportDownload(ctx context.Context, reference string) (string, error) {
	res, err := s.run(ctx, "report", func(ctx context.Context, runID string) (interface{}, error) {
		return s.runReport(ctx, runID, reference)
	})
	if err != nil {
		return "", err
	}
	return res.(string), nil
}

// Accounts returns the current ledger rows.
func (s *TaskService) Accounts() ([]ledger.Account, error) {
	return s.store.Load()
}

// UnlinkedAccounts returns the numbers of active accounts with no aslaas
// cross-reference yet.
func (s *TaskService) UnlinkedAccounts() ([]string, error) {
	accounts, err := s.store.Load()
	if err != nil {
		return nil, err
	}
	return ledger.ActiveWithoutCrossRef(accounts), nil
}

type taskFunc func(ctx context.Context, runID string) (interface{}, error)

func (s *TaskService) start(task string, fn taskFunc) (string, error) {
	if !s.sem.TryAcquire(1) {
		return "", ErrTaskInFlight
	}
	runID := uuid.NewString()
	go func() {
		defer s.sem.Release(1)
		s.execute(context.Background(), task, runID, fn)
	}()
	return runID, nil
}

func (s *TaskService) run(ctx context.Context, task string, fn taskFunc) (interface{}, error) {
	if !s.sem.TryAcquire(1) {
		return nil, ErrTaskInFlight
	}
	defer s.sem.Release(1)
	return s.execute(ctx, task, runID(), fn)
}

func runID() string { return uuid.NewString() }

func (s *TaskService) execute(ctx context.Context, task, runID string, fn taskFunc) (interface{}, error) {
	logger := s.logger.With(slog.String("task", task), slog.String("run_id", runID))
	logger.Info("Task started")
	s.broadcast(websocket.TaskEvent{RunID: runID, Task: task, Status: websocket.StatusStarted})

	started := time.Now()
	result, err := fn(ctx, runID)
	taskDuration.WithLabelValues(task).Observe(time.Since(started).Seconds())

	if err != nil {
		taskRuns.WithLabelValues(task, "failure").Inc()
		logger.Error("Task failed",
			slog.String("kind", string(KindOf(err))),
			slog.String("error", err.Error()))
		s.broadcast(websocket.TaskEvent{
			RunID:  runID,
			Task:   task,
			Status: websocket.StatusFailed,
			Error:  err.Error(),
		})
		return nil, err
	}

	taskRuns.WithLabelValues(task, "success").Inc()
	logger.Info("Task completed", slog.Duration("elapsed", time.Since(started)))
	s.broadcast(websocket.TaskEvent{
		RunID:   runID,
		Task:    task,
		Status:  websocket.StatusCompleted,
		Payload: result,
	})
	return result, nil
}

func (s *TaskService) broadcast(event websocket.TaskEvent) {
	if s.hub != nil {
		s.hub.Broadcast(event)
	}
}

// openSession opens and authenticates a fresh browser session and returns
// it with its executor. The caller owns closing the session.
func (s *TaskService) openSession(ctx context.Context, runID string) (Session, Executor, error) {
	sess, err := s.factory.NewSession()
	if err != nil {
		return nil, nil, wrap(KindOpenBrowser, err)
	}
	if err := sess.Open(ctx); err != nil {
		sess.Close()
		return nil, nil, wrap(KindOpenBrowser, err)
	}
	if err := sess.Login(ctx); err != nil {
		sess.Close()
		return nil, nil, wrap(KindLogin, err)
	}
	exec := s.factory.NewExecutor(sess.DownloadDir(), func(task string, count int) {
		s.broadcast(websocket.TaskEvent{
			RunID:   runID,
			Task:    task,
			Status:  websocket.StatusProgress,
			Payload: map[string]int{"count": count},
		})
	})
	return sess, exec, nil
}

func (s *TaskService) runLot(ctx context.Context, runID string, entries []portal.LotEntry, withReport bool) (LotResult, error) {
	if len(entries) == 0 {
		return LotResult{}, wrap(KindLotSubmission, fmt.Errorf("empty lot"))
	}
	s.warnUnknownLotEntries(entries)

	sess, exec, err := s.openSession(ctx, runID)
	if err != nil {
		return LotResult{}, err
	}
	defer sess.Close()

	reference, err := exec.SubmitLot(sess.Ctx(), entries)
	if err != nil {
		return LotResult{}, wrap(KindLotSubmission, err)
	}
	result := LotResult{Reference: reference}

	if withReport {
		reportsDir, _, err := s.files.ReportDirs(time.Now())
		if err != nil {
			return result, wrap(KindDownload, err)
		}
		path, err := exec.DownloadReport(sess.Ctx(), reference, reportsDir)
		if err != nil {
			return result, wrap(KindDownload, err)
		}
		result.ReportPath = path
	}
	return result, nil
}

// warnUnknownLotEntries flags lot entries the ledger does not list as
// active. The portal is authoritative and the ledger may simply be stale, so
// this warns instead of failing.
func (s *TaskService) warnUnknownLotEntries(entries []portal.LotEntry) {
	accounts, err := s.store.Load()
	if err != nil || len(accounts) == 0 {
		return
	}
	active := make(map[string]bool)
	for _, no := range ledger.NosByIDs(accounts, ledger.ActiveIDs(accounts)) {
		active[no] = true
	}
	for _, entry := range entries {
		if !active[entry.AccountNo] {
			s.logger.Warn("Lot entry is not an active ledger account",
				slog.String("account", entry.AccountNo))
		}
	}
}

func (s *TaskService) runSync(ctx context.Context, runID string) (SyncResult, error) {
	sess, exec, err := s.openSession(ctx, runID)
	if err != nil {
		return SyncResult{}, err
	}
	defer sess.Close()

	batch, err := exec.ExportAccountList(sess.Ctx())
	if err != nil {
		return SyncResult{}, wrap(KindDownload, err)
	}

	snapshotPath := s.files.SnapshotPath(time.Now())
	if err := reconcile.WriteSnapshot(snapshotPath, batch); err != nil {
		return SyncResult{}, wrap(KindLedgerUpdate, err)
	}

	crossRefs, err := exec.ExportCrossRefs(sess.Ctx())
	if err != nil {
		return SyncResult{}, wrap(KindDownload, err)
	}

	existing, err := s.store.Load()
	if err != nil {
		return SyncResult{}, wrap(KindLedgerUpdate, err)
	}
	merged, res := reconcile.Merge(existing, batch, crossRefs)
	if err := s.store.Save(merged); err != nil {
		return SyncResult{}, wrap(KindLedgerUpdate, err)
	}
	ledgerAccounts.Set(float64(len(merged)))

	return SyncResult{
		Accounts:       len(merged),
		Added:          res.Added,
		Updated:        res.Updated,
		CrossRefLinked: res.CrossRefLinked,
		SnapshotPath:   snapshotPath,
	}, nil
}

func (s *TaskService) runSyncFromSnapshot(_ context.Context) (SyncResult, error) {
	info, ok, err := files.LatestCSV(s.files.RecordsDir())
	if err != nil {
		return SyncResult{}, wrap(KindLedgerUpdate, err)
	}
	if !ok {
		return SyncResult{}, wrap(KindLedgerUpdate, fmt.Errorf("no snapshot in %s", s.files.RecordsDir()))
	}

	batch, err := reconcile.ReadSnapshot(info.Path)
	if err != nil {
		return SyncResult{}, wrap(KindLedgerUpdate, err)
	}

	existing, err := s.store.Load()
	if err != nil {
		return SyncResult{}, wrap(KindLedgerUpdate, err)
	}
	merged, res := reconcile.Merge(existing, batch, nil)
	if err := s.store.Save(merged); err != nil {
		return SyncResult{}, wrap(KindLedgerUpdate, err)
	}
	ledgerAccounts.Set(float64(len(merged)))

	s.logger.Info("Ledger reconciled from snapshot",
		slog.String("snapshot", info.Path),
		slog.Int("accounts", len(merged)))
	return SyncResult{
		Accounts:       len(merged),
		Added:          res.Added,
		Updated:        res.Updated,
		CrossRefLinked: res.CrossRefLinked,
		SnapshotPath:   info.Path,
	}, nil
}

func (s *TaskService) runCrossRefUpdate(ctx context.Context, runID string, updates []portal.CrossRefUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, wrap(KindCrossRefUpdate, fmt.Errorf("no updates given"))
	}

	accounts, err := s.store.Load()
	if err != nil {
		return 0, wrap(KindLedgerUpdate, err)
	}
	nos := make([]string, len(updates))
	refs := make([]string, len(updates))
	for i, u := range updates {
		nos[i] = u.AccountNo
		refs[i] = u.CrossRef
	}

	// The ledger drives aslaas linkage, so an account it has never seen is
	// an operator mistake; reject it before driving the browser.
	known := make(map[string]bool, len(nos))
	for _, a := range ledger.ByIDs(accounts, ledger.IDsByNos(accounts, nos)) {
		known[a.No] = true
	}
	for _, no := range nos {
		if !known[no] {
			return 0, wrap(KindCrossRefUpdate, fmt.Errorf("account %s is not in the ledger; run a sync first", no))
		}
	}

	sess, exec, err := s.openSession(ctx, runID)
	if err != nil {
		return 0, err
	}
	defer sess.Close()

	if err := exec.UpdateCrossRefs(sess.Ctx(), updates); err != nil {
		return 0, wrap(KindCrossRefUpdate, err)
	}

	linked := ledger.SetCrossRefsByNo(accounts, nos, refs)
	if err := s.store.Save(accounts); err != nil {
		return 0, wrap(KindLedgerUpdate, err)
	}
	return linked, nil
}

func (s *TaskService) runReport(ctx context.Context, runID, reference string) (string, error) {
	sess, exec, err := s.openSession(ctx, runID)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	reportsDir, _, err := s.files.ReportDirs(time.Now())
	if err != nil {
		return "", wrap(KindDownload, err)
	}
	path, err := exec.DownloadReport(sess.Ctx(), reference, reportsDir)
	if err != nil {
		return "", wrap(KindDownload, err)
	}
	return path, nil
}
