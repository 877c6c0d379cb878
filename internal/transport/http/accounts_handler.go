package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	apierrors "dopagent/internal/errors"
	"dopagent/internal/ledger"
	"dopagent/internal/service"
)

// AccountsHandler serves read-only views of the ledger.
type AccountsHandler struct {
	service *service.TaskService
	logger  *slog.Logger
}

// NewAccountsHandler creates an accounts handler.
func NewAccountsHandler(svc *service.TaskService, logger *slog.Logger) *AccountsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountsHandler{
		service: svc,
		logger:  logger.With(slog.String("handler", "accounts")),
	}
}

// AccountView is one ledger row as the API renders it.
type AccountView struct {
	No           string `json:"no"`
	ID           int    `json:"id"`
	HolderName   string `json:"holder_name"`
	Denomination string `json:"denomination"`
	OpeningDate  string `json:"opening_date,omitempty"`
	Installments int    `json:"installments"`
	Status       string `json:"status"`
	CrossRef     string `json:"cross_ref,omitempty"`
}

func toView(a ledger.Account) AccountView {
	status := "Closed"
	if a.Active {
		status = "Active"
	}
	return AccountView{
		No:           a.No,
		ID:           a.ID,
		HolderName:   a.HolderName,
		Denomination: a.Denomination,
		OpeningDate:  a.OpeningDate,
		Installments: a.Installments,
		Status:       status,
		CrossRef:     a.CrossRef,
	}
}

// List handles GET /api/accounts.
func (h *AccountsHandler) List(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.Accounts()
	if err != nil {
		h.logger.Error("Failed to load ledger", slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ErrInternalServer)
		return
	}
	views := make([]AccountView, len(accounts))
	for i, a := range accounts {
		views[i] = toView(a)
	}
	render.JSON(w, r, views)
}

// Unlinked handles GET /api/accounts/unlinked: active accounts that still
// have no aslaas cross-reference.
func (h *AccountsHandler) Unlinked(w http.ResponseWriter, r *http.Request) {
	nos, err := h.service.UnlinkedAccounts()
	if err != nil {
		h.logger.Error("Failed to load ledger", slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ErrInternalServer)
		return
	}
	if nos == nil {
		nos = []string{}
	}
	render.JSON(w, r, map[string][]string{"accounts": nos})
}
