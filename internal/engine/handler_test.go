package engine

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/meridian-bank/meridian-core/internal/accounts"
	"github.com/meridian-bank/meridian-core/internal/ledger"
	"github.com/meridian-bank/meridian-core/internal/observability"
)

func newTestRouter(repo *memoryEngineRepo) chi.Router {
	svc := newTestService(repo, &recordingDispatcher{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, svc, observability.NewMetrics())
	r := chi.NewRouter()
	r.Route("/transactions", handler.MountRoutes)
	return r
}

func postJSON(t *testing.T, router chi.Router, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestDepositEndpoint(t *testing.T) {
	repo := newMemoryEngineRepo()
	accountID := repo.addAccount("1000", accounts.StatusActive)
	router := newTestRouter(repo)

	rec := postJSON(t, router, "/transactions/deposit",
		`{"account_id":"`+accountID.String()+`","amount":"250.50","description":"payroll"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var entry ledger.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	require.Equal(t, ledger.StatusCompleted, entry.Status)
	require.Equal(t, accountID, entry.AccountID)
	require.True(t, strings.HasPrefix(entry.Reference, "DEP"))
}

func TestDepositEndpointRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(newMemoryEngineRepo())
	rec := postJSON(t, router, "/transactions/deposit", `{"account_id":`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDepositEndpointRejectsBadAmount(t *testing.T) {
	repo := newMemoryEngineRepo()
	accountID := repo.addAccount("1000", accounts.StatusActive)
	router := newTestRouter(repo)

	rec := postJSON(t, router, "/transactions/deposit",
		`{"account_id":"`+accountID.String()+`","amount":"abc"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, router, "/transactions/deposit",
		`{"account_id":"`+accountID.String()+`","amount":"-5"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWithdrawEndpointInsufficientFunds(t *testing.T) {
	repo := newMemoryEngineRepo()
	accountID := repo.addAccount("10", accounts.StatusActive)
	router := newTestRouter(repo)

	rec := postJSON(t, router, "/transactions/withdraw",
		`{"account_id":"`+accountID.String()+`","amount":"100"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestTransferEndpointUnknownAccount(t *testing.T) {
	repo := newMemoryEngineRepo()
	fromID := repo.addAccount("1000", accounts.StatusActive)
	router := newTestRouter(repo)

	rec := postJSON(t, router, "/transactions/transfer",
		`{"from_account_id":"`+fromID.String()+`","to_account_id":"a2b02911-9a2c-4c6d-9d0e-111111111111","amount":"10"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransferEndpointInactiveAccountConflicts(t *testing.T) {
	repo := newMemoryEngineRepo()
	fromID := repo.addAccount("1000", accounts.StatusActive)
	toID := repo.addAccount("0", accounts.StatusInactive)
	router := newTestRouter(repo)

	rec := postJSON(t, router, "/transactions/transfer",
		`{"from_account_id":"`+fromID.String()+`","to_account_id":"`+toID.String()+`","amount":"10"}`)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestTransferEndpointPromotionFailureReturnsAccepted(t *testing.T) {
	repo := newMemoryEngineRepo()
	fromID := repo.addAccount("1000", accounts.StatusActive)
	toID := repo.addAccount("0", accounts.StatusActive)
	repo.failPromotion = true
	router := newTestRouter(repo)

	rec := postJSON(t, router, "/transactions/transfer",
		`{"from_account_id":"`+fromID.String()+`","to_account_id":"`+toID.String()+`","amount":"250"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var result TransferResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, ledger.StatusPending, result.Debit.Status)
	require.Equal(t, ledger.StatusPending, result.Credit.Status)
	require.True(t, repo.balance(fromID).Equal(result.Debit.BalanceAfter))
}

func TestTransferEndpointReferenceLengthBoundary(t *testing.T) {
	repo := newMemoryEngineRepo()
	fromID := repo.addAccount("1000", accounts.StatusActive)
	toID := repo.addAccount("0", accounts.StatusActive)
	router := newTestRouter(repo)

	// 61 chars is the longest caller reference whose derived credit leg
	// still fits the 64-char reference column.
	ref := strings.Repeat("A", 61)
	rec := postJSON(t, router, "/transactions/transfer",
		`{"from_account_id":"`+fromID.String()+`","to_account_id":"`+toID.String()+`","amount":"10","reference":"`+ref+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var result TransferResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, ref+"-CR", result.Credit.Reference)
	require.Len(t, result.Credit.Reference, 64)

	rec = postJSON(t, router, "/transactions/transfer",
		`{"from_account_id":"`+fromID.String()+`","to_account_id":"`+toID.String()+`","amount":"10","reference":"`+strings.Repeat("A", 62)+`"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDepositEndpointPromotionFailureReturnsAccepted(t *testing.T) {
	repo := newMemoryEngineRepo()
	accountID := repo.addAccount("1000", accounts.StatusActive)
	repo.failPromotion = true
	router := newTestRouter(repo)

	rec := postJSON(t, router, "/transactions/deposit",
		`{"account_id":"`+accountID.String()+`","amount":"500"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var entry ledger.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	require.Equal(t, ledger.StatusPending, entry.Status)
}
