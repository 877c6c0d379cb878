package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dopagent/internal/config"
	"dopagent/internal/files"
	"dopagent/internal/ledger"
	"dopagent/internal/portal"
	"dopagent/internal/service"
)

type stubSession struct{}

func (stubSession) Open(context.Context) error  { return nil }
func (stubSession) Login(context.Context) error { return nil }
func (stubSession) Close() error                { return nil }
func (stubSession) Ctx() context.Context        { return context.Background() }
func (stubSession) DownloadDir() string         { return "" }

type stubExecutor struct {
	block chan struct{}
}

func (e *stubExecutor) SubmitLot(_ context.Context, _ []portal.LotEntry) (string, error) {
	if e.block != nil {
		<-e.block
	}
	return "DOP123456", nil
}

func (e *stubExecutor) DownloadReport(_ context.Context, refNo, destDir string) (string, error) {
	return filepath.Join(destDir, refNo+".xls"), nil
}

func (e *stubExecutor) UpdateCrossRefs(context.Context, []portal.CrossRefUpdate) error {
	return nil
}

func (e *stubExecutor) ExportCrossRefs(context.Context) (map[string]string, error) {
	return nil, nil
}

func (e *stubExecutor) ExportAccountList(context.Context) ([]portal.AccountRow, error) {
	return nil, nil
}

type stubFactory struct {
	executor *stubExecutor
}

func (f *stubFactory) NewSession() (service.Session, error) { return stubSession{}, nil }
func (f *stubFactory) NewExecutor(string, func(string, int)) service.Executor {
	return f.executor
}

func newTestHandlers(t *testing.T) (*TaskHandler, *AccountsHandler, *ledger.Store, *stubExecutor) {
	t.Helper()
	root := t.TempDir()
	store := ledger.NewStore(filepath.Join(root, "ledger.csv"), slog.Default())
	fm := files.NewManager(config.PathsConfig{
		DataDir:    root,
		RecordsDir: filepath.Join(root, "records"),
		TempDir:    filepath.Join(root, "temp"),
		ReportsDir: filepath.Join(root, "RDReports"),
		LedgerFile: filepath.Join(root, "ledger.csv"),
		LogsDir:    filepath.Join(root, "logs"),
	})
	require.NoError(t, fm.EnsureDirectories())

	exec := &stubExecutor{}
	svc := service.NewTaskService(store, fm, &stubFactory{executor: exec}, nil, slog.Default())
	return NewTaskHandler(svc, slog.Default()), NewAccountsHandler(svc, slog.Default()), store, exec
}

func postJSON(t *testing.T, handler http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestStartLotAccepted(t *testing.T) {
	taskHandler, _, _, _ := newTestHandlers(t)

	w := postJSON(t, taskHandler.StartLot, `{"accounts":["RD0001","RD0002"],"installments":[1,3]}`)
	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
}

func TestStartLotValidation(t *testing.T) {
	taskHandler, _, _, _ := newTestHandlers(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing accounts", `{}`},
		{"empty accounts", `{"accounts":[]}`},
		{"length mismatch", `{"accounts":["RD0001"],"installments":[1,2]}`},
		{"zero installments", `{"accounts":["RD0001"],"installments":[0]}`},
		{"malformed json", `{"accounts":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, taskHandler.StartLot, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestStartLotConflict(t *testing.T) {
	taskHandler, _, _, exec := newTestHandlers(t)
	exec.block = make(chan struct{})
	defer close(exec.block)

	w := postJSON(t, taskHandler.StartLot, `{"accounts":["RD0001"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = postJSON(t, taskHandler.StartLot, `{"accounts":["RD0002"]}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "TASK_IN_FLIGHT")
}

func TestStartCrossRefUpdateValidation(t *testing.T) {
	taskHandler, _, _, _ := newTestHandlers(t)

	w := postJSON(t, taskHandler.StartCrossRefUpdate, `{"accounts":["RD0001","RD0002"],"cross_refs":["AS1"]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(t, taskHandler.StartCrossRefUpdate, `{"accounts":["RD0001"],"cross_refs":["AS1"]}`)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestStartReportDownloadRequiresReference(t *testing.T) {
	taskHandler, _, _, _ := newTestHandlers(t)

	w := postJSON(t, taskHandler.StartReportDownload, `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStartSyncAccepted(t *testing.T) {
	taskHandler, _, _, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	w := httptest.NewRecorder()
	taskHandler.StartSync(w, req)
	assert.Equal(t, http.StatusAccepted, w.Code)
}
