package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/eaglebank/banking/shared/cqrs"
	"github.com/eaglebank/banking/shared/logging"
	"github.com/eaglebank/banking/shared/middleware"
	"github.com/eaglebank/banking/shared/models"
	"github.com/eaglebank/banking/transaction-service/internal/command"
	"github.com/eaglebank/banking/transaction-service/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// TransferCommander defines the write-side operations used by TransactionHandler.
type TransferCommander interface {
	Transfer(context.Context, cqrs.TransferCommand) (*models.TransferResult, error)
	TransferByAlias(context.Context, cqrs.AliasTransferCommand) (*models.TransferResult, error)
}

// TransactionQuerier defines the read-side operations used by TransactionHandler.
type TransactionQuerier interface {
	GetTransaction(context.Context, cqrs.GetTransactionQuery) (*models.TransactionView, error)
	TransactionHistory(context.Context, cqrs.TransactionHistoryQuery) ([]models.TransactionView, error)
}

type TransactionHandler struct {
	commands TransferCommander
	queries  TransactionQuerier
}

type TransferRequest struct {
	SenderAccountNumber   string          `json:"sender_account_number" validate:"required"`
	ReceiverAccountNumber string          `json:"receiver_account_number" validate:"required"`
	Amount                decimal.Decimal `json:"amount"`
	Reason                string          `json:"reason" validate:"max=500"`
}

type ZelleRequest struct {
	SenderEmail         string          `json:"sender_email" validate:"required,email"`
	ReceiverEmail       string          `json:"receiver_email" validate:"required,email"`
	Amount              decimal.Decimal `json:"amount"`
	Reason              string          `json:"reason" validate:"max=500"`
	SenderAccountType   string          `json:"sender_account_type"`
	ReceiverAccountType string          `json:"receiver_account_type"`
}

type TransactionLookupRequest struct {
	TransactionID string `json:"transaction_id" validate:"required"`
}

type TransactionHistoryRequest struct {
	AccountNumber string `json:"account_number" validate:"required"`
}

func NewTransactionHandler(commands TransferCommander, queries TransactionQuerier) *TransactionHandler {
	return &TransactionHandler{commands: commands, queries: queries}
}

// Register mounts the transfer routes, both the original POST endpoints and
// their REST equivalents.
func (h *TransactionHandler) Register(r gin.IRoutes) {
	r.POST("/transfer", h.Transfer)
	r.POST("/zelle", h.Zelle)
	r.POST("/transaction-with-id", h.GetTransaction)
	r.POST("/transaction-history", h.TransactionHistory)
	r.GET("/v1/transactions/:transactionId", h.GetTransaction)
	r.GET("/v1/accounts/:accountNumber/transactions", h.TransactionHistory)
}

func (h *TransactionHandler) Transfer(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidTransfer(c, "Invalid request body: "+err.Error())
		return
	}
	if msg := validateTransfer(req, req.Amount); msg != "" {
		respondInvalidTransfer(c, msg)
		return
	}

	result, err := h.commands.Transfer(c.Request.Context(), cqrs.TransferCommand{
		SenderAccountNumber:   strings.TrimSpace(req.SenderAccountNumber),
		ReceiverAccountNumber: strings.TrimSpace(req.ReceiverAccountNumber),
		Amount:                req.Amount,
		Reason:                req.Reason,
	})
	respondTransfer(c, result, err)
}

func (h *TransactionHandler) Zelle(c *gin.Context) {
	var req ZelleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalidTransfer(c, "Invalid request body: "+err.Error())
		return
	}
	if msg := validateTransfer(req, req.Amount); msg != "" {
		respondInvalidTransfer(c, msg)
		return
	}

	result, err := h.commands.TransferByAlias(c.Request.Context(), cqrs.AliasTransferCommand{
		SenderEmail:         strings.TrimSpace(req.SenderEmail),
		SenderAccountType:   req.SenderAccountType,
		ReceiverEmail:       strings.TrimSpace(req.ReceiverEmail),
		ReceiverAccountType: req.ReceiverAccountType,
		Amount:              req.Amount,
		Reason:              req.Reason,
	})
	respondTransfer(c, result, err)
}

func (h *TransactionHandler) GetTransaction(c *gin.Context) {
	transactionID := c.Param("transactionId")
	if c.Request.Method == http.MethodPost {
		var req TransactionLookupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.RespondWithBindError(c, err)
			return
		}
		if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
			middleware.RespondWithValidationError(c, validationErrors)
			return
		}
		transactionID = req.TransactionID
	}

	view, err := h.queries.GetTransaction(c.Request.Context(), cqrs.GetTransactionQuery{TransactionID: transactionID})
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTransactionNotFound):
			c.JSON(http.StatusNotFound, gin.H{})
		default:
			logging.FromContext(c.Request.Context()).WithError(err).Error("transaction lookup failed")
			middleware.RespondWithError(c, http.StatusServiceUnavailable, "Failed to get transaction")
		}
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *TransactionHandler) TransactionHistory(c *gin.Context) {
	accountNumber := c.Param("accountNumber")
	if c.Request.Method == http.MethodPost {
		var req TransactionHistoryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.RespondWithBindError(c, err)
			return
		}
		if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
			middleware.RespondWithValidationError(c, validationErrors)
			return
		}
		accountNumber = req.AccountNumber
	}

	views, err := h.queries.TransactionHistory(c.Request.Context(), cqrs.TransactionHistoryQuery{AccountNumber: accountNumber})
	if err != nil {
		logging.FromContext(c.Request.Context()).WithError(err).Error("transaction history failed")
		middleware.RespondWithError(c, http.StatusServiceUnavailable, "Failed to list transactions")
		return
	}
	if views == nil {
		views = []models.TransactionView{}
	}

	c.JSON(http.StatusOK, views)
}

// validateTransfer returns the message for the first problem found, or "".
func validateTransfer(req any, amount decimal.Decimal) string {
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		first := validationErrors[0]
		return fmt.Sprintf("%s: %s", first.Field, first.Message)
	}
	if !amount.IsPositive() {
		return command.MsgAmountMustBePositive
	}
	return ""
}

func respondInvalidTransfer(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, models.TransferResult{
		Approved: false,
		Message:  message,
		Outcome:  models.OutcomeInvalidRequest,
	})
}

func respondTransfer(c *gin.Context, result *models.TransferResult, err error) {
	if err != nil {
		if errors.Is(err, command.ErrInvalidRequest) {
			respondInvalidTransfer(c, strings.TrimPrefix(err.Error(), command.ErrInvalidRequest.Error()+": "))
			return
		}
		logging.FromContext(c.Request.Context()).WithError(err).Error("transfer failed unexpectedly")
		c.JSON(http.StatusInternalServerError, models.TransferResult{
			Approved: false,
			Message:  "Transfer failed.",
			Outcome:  models.OutcomeApprovalFailed,
		})
		return
	}

	c.JSON(transferStatus(result.Outcome), result)
}

func transferStatus(outcome models.Outcome) int {
	switch outcome {
	case models.OutcomeApproved, models.OutcomeReceiptMissing:
		return http.StatusOK
	case models.OutcomeInvalidRequest:
		return http.StatusBadRequest
	case models.OutcomeReconciliationRequired:
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}
