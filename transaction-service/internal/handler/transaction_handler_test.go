package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eaglebank/banking/shared/cqrs"
	"github.com/eaglebank/banking/shared/models"
	"github.com/eaglebank/banking/transaction-service/internal/command"
	"github.com/eaglebank/banking/transaction-service/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ---- mock implementations ----

type mockTransferCommander struct {
	transferFn func(cqrs.TransferCommand) (*models.TransferResult, error)
	aliasFn    func(cqrs.AliasTransferCommand) (*models.TransferResult, error)
}

func (m *mockTransferCommander) Transfer(_ context.Context, cmd cqrs.TransferCommand) (*models.TransferResult, error) {
	if m.transferFn != nil {
		return m.transferFn(cmd)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockTransferCommander) TransferByAlias(_ context.Context, cmd cqrs.AliasTransferCommand) (*models.TransferResult, error) {
	if m.aliasFn != nil {
		return m.aliasFn(cmd)
	}
	return nil, fmt.Errorf("not configured")
}

type mockTransactionQuerier struct {
	getFn     func(cqrs.GetTransactionQuery) (*models.TransactionView, error)
	historyFn func(cqrs.TransactionHistoryQuery) ([]models.TransactionView, error)
}

func (m *mockTransactionQuerier) GetTransaction(_ context.Context, q cqrs.GetTransactionQuery) (*models.TransactionView, error) {
	if m.getFn != nil {
		return m.getFn(q)
	}
	return nil, fmt.Errorf("not configured")
}

func (m *mockTransactionQuerier) TransactionHistory(_ context.Context, q cqrs.TransactionHistoryQuery) ([]models.TransactionView, error) {
	if m.historyFn != nil {
		return m.historyFn(q)
	}
	return nil, fmt.Errorf("not configured")
}

// ---- helpers ----

func newTxTestRouter(cmds TransferCommander, qrys TransactionQuerier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewTransactionHandler(cmds, qrys).Register(r)
	return r
}

func txDoRequest(router *gin.Engine, method, url string, body interface{}) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, url, nil)
	if body != nil {
		var raw string
		if s, ok := body.(string); ok {
			raw = s
		} else {
			b, _ := json.Marshal(body)
			raw = string(b)
		}
		req, _ = http.NewRequest(method, url, strings.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeTransferResult(t *testing.T, w *httptest.ResponseRecorder) models.TransferResult {
	t.Helper()
	var res models.TransferResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("response is not a transfer result: %v; body: %s", err, w.Body.String())
	}
	return res
}

// ---- test data ----

var txTestView = &models.TransactionView{
	AccountNumber: "IBAN2000000000000002", Amount: decimal.NewFromInt(30), Reason: "rent",
	TimeStamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), Type: models.TransactionTypeCredit,
	TransactionID:       "tan-001",
	SenderAccountNumber: "IBAN1000000000000001", ReceiverAccountNumber: "IBAN2000000000000002",
}

func transferBody(amount any) map[string]interface{} {
	return map[string]interface{}{
		"sender_account_number":   "IBAN1000000000000001",
		"receiver_account_number": "IBAN2000000000000002",
		"amount":                  amount,
		"reason":                  "rent",
	}
}

func zelleBody(amount any) map[string]interface{} {
	return map[string]interface{}{
		"sender_email":   "jane@example.com",
		"receiver_email": "john@example.com",
		"amount":         amount,
		"reason":         "dinner",
	}
}

func approved(cmd cqrs.TransferCommand) (*models.TransferResult, error) {
	return &models.TransferResult{Approved: true, Message: command.MsgSuccess, Outcome: models.OutcomeApproved, TransactionID: "tan-001"}, nil
}

func outcome(o models.Outcome, approved bool, msg string) func(cqrs.TransferCommand) (*models.TransferResult, error) {
	return func(cqrs.TransferCommand) (*models.TransferResult, error) {
		return &models.TransferResult{Approved: approved, Message: msg, Outcome: o}, nil
	}
}

// ---- tests ----

func TestTransfer(t *testing.T) {
	tests := []struct {
		name             string
		body             interface{}
		transferFn       func(cqrs.TransferCommand) (*models.TransferResult, error)
		expectedStatus   int
		expectedApproved bool
		expectedMessage  string
	}{
		{
			name:             "success - money moved",
			body:             transferBody(30),
			transferFn:       approved,
			expectedStatus:   http.StatusOK,
			expectedApproved: true,
			expectedMessage:  command.MsgSuccess,
		},
		{
			name:             "success - amount as string",
			body:             transferBody("30.50"),
			transferFn:       approved,
			expectedStatus:   http.StatusOK,
			expectedApproved: true,
		},
		{
			name:             "success - receipt missing is still approved",
			body:             transferBody(30),
			transferFn:       outcome(models.OutcomeReceiptMissing, true, command.MsgReceiptMissing),
			expectedStatus:   http.StatusOK,
			expectedApproved: true,
			expectedMessage:  command.MsgReceiptMissing,
		},
		{
			name:            "unprocessable entity - insufficient balance",
			body:            transferBody(30),
			transferFn:      outcome(models.OutcomeApprovalFailed, false, command.MsgInsufficientBalance),
			expectedStatus:  http.StatusUnprocessableEntity,
			expectedMessage: command.MsgInsufficientBalance,
		},
		{
			name:            "unprocessable entity - compensated",
			body:            transferBody(30),
			transferFn:      outcome(models.OutcomeCompensated, false, command.MsgReceiverUpdateFailed),
			expectedStatus:  http.StatusUnprocessableEntity,
			expectedMessage: command.MsgReceiverUpdateFailed,
		},
		{
			name:            "conflict - reconciliation required",
			body:            transferBody(30),
			transferFn:      outcome(models.OutcomeReconciliationRequired, false, command.MsgReceiverUpdateFailed),
			expectedStatus:  http.StatusConflict,
			expectedMessage: command.MsgReceiverUpdateFailed,
		},
		{
			name:            "bad request - amount is zero",
			body:            transferBody(0),
			expectedStatus:  http.StatusBadRequest,
			expectedMessage: command.MsgAmountMustBePositive,
		},
		{
			name:            "bad request - amount is negative",
			body:            transferBody(-10),
			expectedStatus:  http.StatusBadRequest,
			expectedMessage: command.MsgAmountMustBePositive,
		},
		{
			name:           "bad request - amount is not numeric",
			body:           transferBody("lots"),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:            "bad request - missing sender",
			body:            map[string]interface{}{"receiver_account_number": "IBAN2", "amount": 10},
			expectedStatus:  http.StatusBadRequest,
			expectedMessage: "sender_account_number: This field is required",
		},
		{
			name:           "bad request - malformed json",
			body:           `{"amount":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "bad request - rejected by orchestrator",
			body: transferBody(30),
			transferFn: func(cqrs.TransferCommand) (*models.TransferResult, error) {
				return nil, fmt.Errorf("%w: %s", command.ErrInvalidRequest, command.MsgAmountTooPrecise)
			},
			expectedStatus:  http.StatusBadRequest,
			expectedMessage: command.MsgAmountTooPrecise,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmds := &mockTransferCommander{transferFn: func(cmd cqrs.TransferCommand) (*models.TransferResult, error) {
				if tt.transferFn == nil {
					t.Fatalf("orchestrator must not be reached")
				}
				return tt.transferFn(cmd)
			}}
			router := newTxTestRouter(cmds, &mockTransactionQuerier{})
			w := txDoRequest(router, http.MethodPost, "/transfer", tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}

			res := decodeTransferResult(t, w)
			if res.Approved != tt.expectedApproved {
				t.Errorf("[%s] expected approved=%v got %v", tt.name, tt.expectedApproved, res.Approved)
			}
			if tt.expectedMessage != "" && res.Message != tt.expectedMessage {
				t.Errorf("[%s] expected message %q got %q", tt.name, tt.expectedMessage, res.Message)
			}
			if res.Message == "" {
				t.Errorf("[%s] every answer must carry a message", tt.name)
			}
		})
	}
}

func TestTransferPassesCommand(t *testing.T) {
	var got cqrs.TransferCommand
	cmds := &mockTransferCommander{transferFn: func(cmd cqrs.TransferCommand) (*models.TransferResult, error) {
		got = cmd
		return approved(cmd)
	}}
	router := newTxTestRouter(cmds, &mockTransactionQuerier{})
	w := txDoRequest(router, http.MethodPost, "/transfer", transferBody(12.34))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if got.SenderAccountNumber != "IBAN1000000000000001" || got.ReceiverAccountNumber != "IBAN2000000000000002" {
		t.Errorf("unexpected accounts in command: %+v", got)
	}
	if !got.Amount.Equal(decimal.RequireFromString("12.34")) {
		t.Errorf("expected amount 12.34 got %s", got.Amount)
	}
	if got.Reason != "rent" {
		t.Errorf("expected reason rent got %q", got.Reason)
	}
	if res := decodeTransferResult(t, w); res.TransactionID != "tan-001" || res.Outcome != models.OutcomeApproved {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestZelle(t *testing.T) {
	tests := []struct {
		name           string
		body           interface{}
		aliasFn        func(cqrs.AliasTransferCommand) (*models.TransferResult, error)
		expectedStatus int
	}{
		{
			name: "success - transfer by email",
			body: zelleBody(15),
			aliasFn: func(cmd cqrs.AliasTransferCommand) (*models.TransferResult, error) {
				if cmd.SenderEmail != "jane@example.com" || cmd.ReceiverEmail != "john@example.com" {
					return nil, fmt.Errorf("unexpected command %+v", cmd)
				}
				return &models.TransferResult{Approved: true, Message: command.MsgSuccess, Outcome: models.OutcomeApproved}, nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "success - account types forwarded",
			body: map[string]interface{}{
				"sender_email": "jane@example.com", "receiver_email": "john@example.com", "amount": 5,
				"sender_account_type": "checking", "receiver_account_type": "savings",
			},
			aliasFn: func(cmd cqrs.AliasTransferCommand) (*models.TransferResult, error) {
				if cmd.SenderAccountType != "checking" || cmd.ReceiverAccountType != "savings" {
					return nil, fmt.Errorf("account types not forwarded: %+v", cmd)
				}
				return &models.TransferResult{Approved: true, Message: command.MsgSuccess, Outcome: models.OutcomeApproved}, nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "unprocessable entity - receiver unknown",
			body: zelleBody(15),
			aliasFn: func(cmd cqrs.AliasTransferCommand) (*models.TransferResult, error) {
				return &models.TransferResult{Message: command.MsgReceiverNotFound, Outcome: models.OutcomeApprovalFailed}, nil
			},
			expectedStatus: http.StatusUnprocessableEntity,
		},
		{
			name:           "bad request - invalid email",
			body:           map[string]interface{}{"sender_email": "jane", "receiver_email": "john@example.com", "amount": 5},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - zero amount",
			body:           zelleBody(0),
			expectedStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTxTestRouter(&mockTransferCommander{aliasFn: tt.aliasFn}, &mockTransactionQuerier{})
			w := txDoRequest(router, http.MethodPost, "/zelle", tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestGetTransaction(t *testing.T) {
	found := func(q cqrs.GetTransactionQuery) (*models.TransactionView, error) {
		if q.TransactionID != "tan-001" {
			return nil, repository.ErrTransactionNotFound
		}
		return txTestView, nil
	}

	tests := []struct {
		name           string
		method         string
		url            string
		body           interface{}
		getFn          func(cqrs.GetTransactionQuery) (*models.TransactionView, error)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "success - lookup by body", method: http.MethodPost, url: "/transaction-with-id",
			body: map[string]string{"transaction_id": "tan-001"}, getFn: found,
			expectedStatus: http.StatusOK,
		},
		{
			name: "success - lookup by path", method: http.MethodGet, url: "/v1/transactions/tan-001",
			getFn: found, expectedStatus: http.StatusOK,
		},
		{
			name: "not found - empty object", method: http.MethodPost, url: "/transaction-with-id",
			body: map[string]string{"transaction_id": "tan-999"}, getFn: found,
			expectedStatus: http.StatusNotFound, expectedBody: "{}",
		},
		{
			name: "bad request - missing id", method: http.MethodPost, url: "/transaction-with-id",
			body: map[string]string{}, getFn: found,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "service unavailable - ledger down", method: http.MethodGet, url: "/v1/transactions/tan-001",
			getFn: func(q cqrs.GetTransactionQuery) (*models.TransactionView, error) {
				return nil, repository.ErrPersistenceUnavailable
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTxTestRouter(&mockTransferCommander{}, &mockTransactionQuerier{getFn: tt.getFn})
			w := txDoRequest(router, tt.method, tt.url, tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedBody != "" && w.Body.String() != tt.expectedBody {
				t.Errorf("[%s] expected body %s got %s", tt.name, tt.expectedBody, w.Body.String())
			}
		})
	}
}

func TestGetTransactionBody(t *testing.T) {
	router := newTxTestRouter(&mockTransferCommander{}, &mockTransactionQuerier{
		getFn: func(q cqrs.GetTransactionQuery) (*models.TransactionView, error) { return txTestView, nil },
	})
	w := txDoRequest(router, http.MethodGet, "/v1/transactions/tan-001", nil)

	var got map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	for _, key := range []string{"account_number", "amount", "reason", "time_stamp", "type", "transaction_id"} {
		if _, ok := got[key]; !ok {
			t.Errorf("missing %s in %s", key, w.Body.String())
		}
	}
	if got["amount"] != float64(30) {
		t.Errorf("expected numeric amount 30, got %v", got["amount"])
	}
}

func TestTransactionHistory(t *testing.T) {
	tests := []struct {
		name           string
		method         string
		url            string
		body           interface{}
		historyFn      func(cqrs.TransactionHistoryQuery) ([]models.TransactionView, error)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "success - history by body", method: http.MethodPost, url: "/transaction-history",
			body: map[string]string{"account_number": "IBAN2000000000000002"},
			historyFn: func(q cqrs.TransactionHistoryQuery) ([]models.TransactionView, error) {
				if q.AccountNumber != "IBAN2000000000000002" {
					return nil, fmt.Errorf("unexpected account %s", q.AccountNumber)
				}
				return []models.TransactionView{*txTestView}, nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "success - empty history is an empty list", method: http.MethodGet, url: "/v1/accounts/IBAN9/transactions",
			historyFn: func(q cqrs.TransactionHistoryQuery) ([]models.TransactionView, error) {
				return nil, nil
			},
			expectedStatus: http.StatusOK,
			expectedBody:   "[]",
		},
		{
			name: "bad request - missing account number", method: http.MethodPost, url: "/transaction-history",
			body:           map[string]string{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "service unavailable - ledger down", method: http.MethodGet, url: "/v1/accounts/IBAN9/transactions",
			historyFn: func(q cqrs.TransactionHistoryQuery) ([]models.TransactionView, error) {
				return nil, repository.ErrPersistenceUnavailable
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTxTestRouter(&mockTransferCommander{}, &mockTransactionQuerier{historyFn: tt.historyFn})
			w := txDoRequest(router, tt.method, tt.url, tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedBody != "" && w.Body.String() != tt.expectedBody {
				t.Errorf("[%s] expected body %s got %s", tt.name, tt.expectedBody, w.Body.String())
			}
		})
	}
}
