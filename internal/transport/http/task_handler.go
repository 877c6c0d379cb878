// Package http exposes the agent's task API: start a portal task, watch it
// over the websocket, read the ledger.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "dopagent/internal/errors"
	"dopagent/internal/portal"
	"dopagent/internal/service"
)

var validate = validator.New()

// TaskHandler starts portal tasks. Tasks run in the background; the 202
// response carries the run ID the websocket events are tagged with.
type TaskHandler struct {
	service *service.TaskService
	logger  *slog.Logger
}

// NewTaskHandler creates a task handler.
func NewTaskHandler(svc *service.TaskService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		service: svc,
		logger:  logger.With(slog.String("handler", "tasks")),
	}
}

// LotRequest asks for a lot submission. Accounts and installment counts are
// parallel; installments may be omitted entirely for an all-single-installment
// lot.
type LotRequest struct {
	Accounts     []string `json:"accounts" validate:"required,min=1,dive,required"`
	Installments []int    `json:"installments,omitempty" validate:"omitempty,dive,min=1"`
	WithReport   bool     `json:"with_report,omitempty"`
}

// Bind implements render.Binder.
func (r *LotRequest) Bind(req *http.Request) error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if len(r.Installments) > 0 && len(r.Installments) != len(r.Accounts) {
		return apierrors.ErrValidation("installments", "must match accounts in length")
	}
	return nil
}

func (r *LotRequest) entries() []portal.LotEntry {
	entries := make([]portal.LotEntry, len(r.Accounts))
	for i, no := range r.Accounts {
		installments := 1
		if len(r.Installments) > 0 {
			installments = r.Installments[i]
		}
		entries[i] = portal.LotEntry{AccountNo: no, Installments: installments}
	}
	return entries
}

// CrossRefRequest asks for aslaas number linkage on the portal.
type CrossRefRequest struct {
	Accounts  []string `json:"accounts" validate:"required,min=1,dive,required"`
	CrossRefs []string `json:"cross_refs" validate:"required,min=1,dive,required"`
}

// Bind implements render.Binder.
func (r *CrossRefRequest) Bind(req *http.Request) error {
	if err := validate.Struct(r); err != nil {
		return err
	}
	if len(r.Accounts) != len(r.CrossRefs) {
		return apierrors.ErrValidation("cross_refs", "must match accounts in length")
	}
	return nil
}

// ReportRequest asks for a transaction report download.
type ReportRequest struct {
	Reference string `json:"reference" validate:"required"`
}

// Bind implements render.Binder.
func (r *ReportRequest) Bind(req *http.Request) error {
	return validate.Struct(r)
}

// RunResponse acknowledges an accepted task.
type RunResponse struct {
	RunID string `json:"run_id"`
}

// StartLot handles POST /api/tasks/lot.
func (h *TaskHandler) StartLot(w http.ResponseWriter, r *http.Request) {
	var req LotRequest
	if err := render.Bind(r, &req); err != nil {
		h.renderBindError(w, r, err)
		return
	}
	runID, err := h.service.StartLot(req.entries(), req.WithReport)
	if err != nil {
		h.renderStartError(w, r, err)
		return
	}
	h.accepted(w, r, runID)
}

// StartSync handles POST /api/tasks/sync.
func (h *TaskHandler) StartSync(w http.ResponseWriter, r *http.Request) {
	runID, err := h.service.StartSync()
	if err != nil {
		h.renderStartError(w, r, err)
		return
	}
	h.accepted(w, r, runID)
}

// StartCrossRefUpdate handles POST /api/tasks/aslaas.
func (h *TaskHandler) StartCrossRefUpdate(w http.ResponseWriter, r *http.Request) {
	var req CrossRefRequest
	if err := render.Bind(r, &req); err != nil {
		h.renderBindError(w, r, err)
		return
	}
	updates := make([]portal.CrossRefUpdate, len(req.Accounts))
	for i := range req.Accounts {
		updates[i] = portal.CrossRefUpdate{AccountNo: req.Accounts[i], CrossRef: req.CrossRefs[i]}
	}
	runID, err := h.service.StartCrossRefUpdate(updates)
	if err != nil {
		h.renderStartError(w, r, err)
		return
	}
	h.accepted(w, r, runID)
}

// StartReportDownload handles POST /api/tasks/report.
func (h *TaskHandler) StartReportDownload(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	if err := render.Bind(r, &req); err != nil {
		h.renderBindError(w, r, err)
		return
	}
	runID, err := h.service.StartReportDownload(req.Reference)
	if err != nil {
		h.renderStartError(w, r, err)
		return
	}
	h.accepted(w, r, runID)
}

func (h *TaskHandler) accepted(w http.ResponseWriter, r *http.Request, runID string) {
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, RunResponse{RunID: runID})
}

func (h *TaskHandler) renderBindError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *apierrors.APIError
	if e, ok := err.(*apierrors.APIError); ok {
		apiErr = e
	} else {
		apiErr = apierrors.InvalidRequestWithError(err)
	}
	render.Render(w, r, apiErr)
}

func (h *TaskHandler) renderStartError(w http.ResponseWriter, r *http.Request, err error) {
	if err == service.ErrTaskInFlight {
		render.Render(w, r, apierrors.ErrTaskConflict)
		return
	}
	h.logger.Error("Failed to start task", slog.String("error", err.Error()))
	render.Render(w, r, apierrors.ErrInternalServer)
}
