package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/eaglebank/banking/account-service/internal/command"
	"github.com/eaglebank/banking/account-service/internal/repository"
	"github.com/eaglebank/banking/shared/cqrs"
	"github.com/eaglebank/banking/shared/logging"
	"github.com/eaglebank/banking/shared/middleware"
	"github.com/eaglebank/banking/shared/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// AccountCommander defines the write-side operations used by AccountHandler.
type AccountCommander interface {
	CreateAccount(context.Context, cqrs.CreateAccountCommand) (*models.Account, error)
	UpdateBalance(context.Context, cqrs.UpdateBalanceCommand) (*models.Account, error)
}

// AccountQuerier defines the read-side operations used by AccountHandler.
type AccountQuerier interface {
	GetAccount(context.Context, cqrs.GetAccountQuery) (*models.AccountView, error)
	GetAccountByEmail(context.Context, cqrs.GetAccountByEmailQuery) (*models.AccountView, error)
	ListAccounts(context.Context, cqrs.ListAccountsQuery) ([]models.Account, error)
}

// AccountHandler handles account-related HTTP requests.
type AccountHandler struct {
	commands AccountCommander
	queries  AccountQuerier
}

type AccountDetailRequest struct {
	AccountNumber string `json:"account_number" validate:"required"`
}

type AccountByEmailRequest struct {
	EmailID     string `json:"email_id" validate:"required,email"`
	AccountType string `json:"account_type"`
}

type UpdateBalanceRequest struct {
	AccountNumber   string           `json:"account_number" validate:"required"`
	NewBalance      *decimal.Decimal `json:"new_balance" validate:"required"`
	ExpectedBalance *decimal.Decimal `json:"expected_balance"`
}

type CreateAccountRequest struct {
	EmailID          string `json:"email_id" validate:"required,email"`
	AccountType      string `json:"account_type" validate:"required,max=32"`
	Name             string `json:"name" validate:"required,max=200"`
	Address          string `json:"address" validate:"max=500"`
	GovtIDNumber     string `json:"govt_id_number" validate:"max=64"`
	GovernmentIDType string `json:"government_id_type" validate:"max=64"`
}

type ListAccountsRequest struct {
	EmailID       string `json:"email_id" validate:"required,email"`
	AccountNumber string `json:"account_number"`
}

// BalanceResponse answers /update-balance.
type BalanceResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type CreateAccountResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`
}

func NewAccountHandler(commands AccountCommander, queries AccountQuerier) *AccountHandler {
	return &AccountHandler{commands: commands, queries: queries}
}

// Register mounts the account routes used by the transaction service and the
// gateway.
func (h *AccountHandler) Register(r gin.IRoutes) {
	r.POST("/account-detail", h.GetAccount)
	r.POST("/get-account-by-email", h.GetAccountByEmail)
	r.POST("/update-balance", h.UpdateBalance)
	r.POST("/create-account", h.CreateAccount)
	r.POST("/get-all-accounts", h.ListAccounts)
	r.GET("/v1/accounts/:accountNumber", h.GetAccount)
}

// GetAccount answers an unknown account with an empty object and 200.
func (h *AccountHandler) GetAccount(c *gin.Context) {
	accountNumber := c.Param("accountNumber")
	if c.Request.Method == http.MethodPost {
		var req AccountDetailRequest
		if !bindAndValidate(c, &req) {
			return
		}
		accountNumber = strings.TrimSpace(req.AccountNumber)
	}

	view, err := h.queries.GetAccount(c.Request.Context(), cqrs.GetAccountQuery{AccountNumber: accountNumber})
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		logging.FromContext(c.Request.Context()).WithError(err).Error("account lookup failed")
		middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to get account")
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *AccountHandler) GetAccountByEmail(c *gin.Context) {
	var req AccountByEmailRequest
	if !bindAndValidate(c, &req) {
		return
	}

	view, err := h.queries.GetAccountByEmail(c.Request.Context(), cqrs.GetAccountByEmailQuery{
		EmailID:     strings.TrimSpace(req.EmailID),
		AccountType: req.AccountType,
	})
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{})
			return
		}
		logging.FromContext(c.Request.Context()).WithError(err).Error("account lookup by email failed")
		middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to get account")
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *AccountHandler) UpdateBalance(c *gin.Context) {
	var req UpdateBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, BalanceResponse{Message: "Invalid balance value."})
		return
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		c.JSON(http.StatusBadRequest, BalanceResponse{Message: validationErrors[0].Field + ": " + validationErrors[0].Message})
		return
	}

	_, err := h.commands.UpdateBalance(c.Request.Context(), cqrs.UpdateBalanceCommand{
		AccountNumber:   strings.TrimSpace(req.AccountNumber),
		NewBalance:      *req.NewBalance,
		ExpectedBalance: req.ExpectedBalance,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusOK, BalanceResponse{Success: true, Message: "Balance updated successfully."})
	case errors.Is(err, command.ErrNegativeBalance):
		c.JSON(http.StatusBadRequest, BalanceResponse{Message: "Invalid balance value."})
	case errors.Is(err, repository.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, BalanceResponse{Message: "Account not found."})
	case errors.Is(err, repository.ErrBalanceMismatch):
		c.JSON(http.StatusConflict, BalanceResponse{Message: "Balance changed since it was read."})
	default:
		logging.FromContext(c.Request.Context()).WithError(err).Error("balance update failed")
		c.JSON(http.StatusInternalServerError, BalanceResponse{Message: "Failed to update balance."})
	}
}

func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req CreateAccountRequest
	if !bindAndValidate(c, &req) {
		return
	}

	account, err := h.commands.CreateAccount(c.Request.Context(), cqrs.CreateAccountCommand{
		EmailID:          strings.TrimSpace(req.EmailID),
		AccountType:      strings.TrimSpace(req.AccountType),
		Name:             req.Name,
		Address:          req.Address,
		GovtIDNumber:     req.GovtIDNumber,
		GovernmentIDType: req.GovernmentIDType,
	})
	if err != nil {
		if errors.Is(err, repository.ErrAccountExists) {
			c.JSON(http.StatusConflict, CreateAccountResponse{Message: "Account already exists."})
			return
		}
		logging.FromContext(c.Request.Context()).WithError(err).Error("account creation failed")
		c.JSON(http.StatusInternalServerError, CreateAccountResponse{Message: "Failed to create account."})
		return
	}

	c.JSON(http.StatusOK, CreateAccountResponse{Success: true, AccountNumber: account.AccountNumber})
}

func (h *AccountHandler) ListAccounts(c *gin.Context) {
	var req ListAccountsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	accounts, err := h.queries.ListAccounts(c.Request.Context(), cqrs.ListAccountsQuery{
		EmailID:       strings.TrimSpace(req.EmailID),
		AccountNumber: strings.TrimSpace(req.AccountNumber),
	})
	if err != nil {
		logging.FromContext(c.Request.Context()).WithError(err).Error("account listing failed")
		middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to list accounts")
		return
	}
	if accounts == nil {
		accounts = []models.Account{}
	}

	c.JSON(http.StatusOK, accounts)
}

func bindAndValidate(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.RespondWithBindError(c, err)
		return false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return false
	}
	return true
}
