package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-bank/meridian-core/internal/ledger"
	"github.com/meridian-bank/meridian-core/internal/observability"
	"github.com/meridian-bank/meridian-core/internal/platform/httpx"
)

// Handler manages transaction endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	metrics  *observability.Metrics
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		metrics:  metrics,
	}
}

// MountRoutes registers transaction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/deposit", h.deposit)
	r.Post("/withdraw", h.withdraw)
	r.Post("/transfer", h.transfer)
}

type depositRequest struct {
	AccountID   string `json:"account_id" validate:"required,uuid4"`
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description" validate:"max=255"`
	Reference   string `json:"reference" validate:"max=64"`
}

type withdrawRequest struct {
	AccountID   string `json:"account_id" validate:"required,uuid4"`
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description" validate:"max=255"`
	Reference   string `json:"reference" validate:"max=64"`
}

type transferRequest struct {
	FromAccountID string `json:"from_account_id" validate:"required,uuid4"`
	ToAccountID   string `json:"to_account_id" validate:"required,uuid4"`
	Amount        string `json:"amount" validate:"required"`
	Description   string `json:"description" validate:"max=255"`
	// The credit leg appends "-CR", so the cap is three short of the
	// 64-char reference column.
	Reference string `json:"reference" validate:"max=61"`
}

func (h *Handler) deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	accountID, amount, ok := h.parseMoney(w, req.AccountID, req.Amount)
	if !ok {
		return
	}

	entry, err := h.service.Deposit(r.Context(), DepositInput{
		AccountID:   accountID,
		Amount:      amount,
		Description: req.Description,
		Reference:   req.Reference,
	})
	if err != nil {
		h.respondTransactionError(w, r, "deposit", entryPayload{entry: &entry}, err)
		return
	}
	h.metrics.ObserveTransaction("deposit", "completed")
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	accountID, amount, ok := h.parseMoney(w, req.AccountID, req.Amount)
	if !ok {
		return
	}

	entry, err := h.service.Withdraw(r.Context(), WithdrawInput{
		AccountID:   accountID,
		Amount:      amount,
		Description: req.Description,
		Reference:   req.Reference,
	})
	if err != nil {
		h.respondTransactionError(w, r, "withdraw", entryPayload{entry: &entry}, err)
		return
	}
	h.metrics.ObserveTransaction("withdraw", "completed")
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	fromID, amount, ok := h.parseMoney(w, req.FromAccountID, req.Amount)
	if !ok {
		return
	}
	toID, err := uuid.Parse(req.ToAccountID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "to_account_id is not a valid uuid")
		return
	}

	result, err := h.service.Transfer(r.Context(), TransferInput{
		FromAccountID: fromID,
		ToAccountID:   toID,
		Amount:        amount,
		Description:   req.Description,
		Reference:     req.Reference,
	})
	if err != nil {
		h.respondTransactionError(w, r, "transfer", entryPayload{transfer: &result}, err)
		return
	}
	h.metrics.ObserveTransaction("transfer", "completed")
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) parseMoney(w http.ResponseWriter, rawID, rawAmount string) (uuid.UUID, decimal.Decimal, bool) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "account_id is not a valid uuid")
		return uuid.Nil, decimal.Decimal{}, false
	}
	amount, err := decimal.NewFromString(rawAmount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount is not a valid decimal")
		return uuid.Nil, decimal.Decimal{}, false
	}
	return id, amount, true
}

// entryPayload carries whichever body shape the failed call produced, so a
// promotion failure can still return the PENDING record.
type entryPayload struct {
	entry    *ledger.Entry
	transfer *TransferResult
}

func (h *Handler) respondTransactionError(w http.ResponseWriter, r *http.Request, txType string, payload entryPayload, err error) {
	switch {
	case errors.Is(err, ErrStatusPromotion):
		// The money moved; only the status flip is outstanding. The caller
		// gets the PENDING record and must not retry the transaction.
		h.metrics.ObserveTransaction(txType, "pending")
		if payload.transfer != nil {
			httpx.JSON(w, http.StatusAccepted, payload.transfer)
			return
		}
		httpx.JSON(w, http.StatusAccepted, payload.entry)
	case isBusinessError(err):
		h.metrics.ObserveTransaction(txType, "rejected")
		httpx.RespondError(w, businessProblem(err))
	default:
		h.metrics.ObserveTransaction(txType, "failed")
		h.logger.Error("transaction failed",
			slog.String("type", txType), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

// businessProblem translates engine sentinels into the problem classes
// httpx.RespondError maps to status codes.
func businessProblem(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	case errors.Is(err, ErrAccountNotFound):
		return fmt.Errorf("%w: %v", httpx.ErrNotFound, err)
	case errors.Is(err, ErrAccountNotActive):
		return fmt.Errorf("%w: %v", httpx.ErrConflict, err)
	case errors.Is(err, ErrInsufficientFunds):
		return fmt.Errorf("%w: %v", httpx.ErrUnprocessable, err)
	}
	return err
}
