package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/eaglebank/banking/shared/logging"
	"github.com/eaglebank/banking/shared/models"
	"github.com/eaglebank/banking/shared/tracing"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/propagation"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrRemoteUnavailable = errors.New("accounts service unavailable")
	ErrBalanceRejected   = errors.New("balance update rejected")
)

const (
	accountDetailPath  = "/account-detail"
	accountByEmailPath = "/get-account-by-email"
	updateBalancePath  = "/update-balance"
)

// AccountRepository reads and updates accounts held by the account service.
// It keeps no state of its own.
type AccountRepository struct {
	baseURL     string
	client      *http.Client
	timeout     time.Duration
	readRetries uint64
}

type AccountRepositoryConfig struct {
	BaseURL string
	// Timeout bounds every single HTTP call.
	Timeout time.Duration
	// ReadRetries is how many times a lookup is retried after the account
	// service could not be reached. Balance updates are never retried.
	ReadRetries int
	// Client is optional.
	Client *http.Client
}

func NewAccountRepository(cfg AccountRepositoryConfig) *AccountRepository {
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retries := cfg.ReadRetries
	if retries < 0 {
		retries = 0
	}
	return &AccountRepository{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		client:      client,
		timeout:     timeout,
		readRetries: uint64(retries),
	}
}

type accountDetailRequest struct {
	AccountNumber string `json:"account_number"`
}

type accountByEmailRequest struct {
	EmailID     string `json:"email_id"`
	AccountType string `json:"account_type,omitempty"`
}

type updateBalanceRequest struct {
	AccountNumber   string           `json:"account_number"`
	NewBalance      decimal.Decimal  `json:"new_balance"`
	ExpectedBalance *decimal.Decimal `json:"expected_balance,omitempty"`
}

type updateBalanceResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// GetByAccountNumber returns ErrAccountNotFound when the account service
// answers with an empty account or 404.
func (r *AccountRepository) GetByAccountNumber(ctx context.Context, accountNumber string) (*models.AccountView, error) {
	return r.lookup(ctx, accountDetailPath, accountDetailRequest{AccountNumber: accountNumber})
}

// GetByEmail resolves an email alias. An empty accountType leaves the choice
// of account to the account service.
func (r *AccountRepository) GetByEmail(ctx context.Context, email, accountType string) (*models.AccountView, error) {
	return r.lookup(ctx, accountByEmailPath, accountByEmailRequest{EmailID: email, AccountType: accountType})
}

func (r *AccountRepository) lookup(ctx context.Context, path string, body any) (*models.AccountView, error) {
	var view *models.AccountView

	operation := func() error {
		v, err := r.lookupOnce(ctx, path, body)
		if err != nil {
			if errors.Is(err, ErrRemoteUnavailable) {
				return err
			}
			return backoff.Permanent(err)
		}
		view = v
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = readRetryMaxInterval
	b.Reset()

	err := backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(b, r.readRetries), ctx),
		func(err error, wait time.Duration) {
			logging.FromContext(ctx).WithError(err).WithField("path", path).Warnf("account lookup failed, retrying in %s", wait)
		})
	if err != nil {
		// A cancelled caller surfaces as an unavailable lookup, not a context error.
		if !errors.Is(err, ErrAccountNotFound) && !errors.Is(err, ErrRemoteUnavailable) {
			return nil, errors.Wrap(ErrRemoteUnavailable, err.Error())
		}
		return nil, err
	}
	return view, nil
}

func (r *AccountRepository) lookupOnce(ctx context.Context, path string, body any) (*models.AccountView, error) {
	status, payload, err := r.post(ctx, path, body)
	if err != nil {
		return nil, err
	}

	switch {
	case status == http.StatusNotFound:
		return nil, ErrAccountNotFound
	case status < 200 || status > 299:
		return nil, errors.Wrapf(ErrRemoteUnavailable, "POST %s returned %d", path, status)
	}

	var view models.AccountView
	if len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, &view); err != nil {
			return nil, errors.Wrapf(ErrRemoteUnavailable, "POST %s returned an unreadable account: %v", path, err)
		}
	}
	if view.IsZero() {
		return nil, ErrAccountNotFound
	}
	return &view, nil
}

// ApplyBalance asks the account service to set the balance to newBalance.
// With expected set, the update only applies while the stored balance still
// equals it. A nil error means the update was applied; ErrBalanceRejected
// means the account service refused it; ErrRemoteUnavailable means no answer
// was obtained.
func (r *AccountRepository) ApplyBalance(ctx context.Context, accountNumber string, newBalance decimal.Decimal, expected *decimal.Decimal) error {
	status, payload, err := r.post(ctx, updateBalancePath, updateBalanceRequest{
		AccountNumber:   accountNumber,
		NewBalance:      newBalance,
		ExpectedBalance: expected,
	})
	if err != nil {
		return err
	}

	if status >= 500 || status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return errors.Wrapf(ErrRemoteUnavailable, "POST %s returned %d", updateBalancePath, status)
	}

	var resp updateBalanceResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		if status >= 400 {
			return errors.Wrapf(ErrBalanceRejected, "status %d", status)
		}
		return errors.Wrapf(ErrRemoteUnavailable, "POST %s returned an unreadable answer: %v", updateBalancePath, err)
	}

	if status >= 400 || !resp.Success {
		return errors.Wrapf(ErrBalanceRejected, "status %d: %s", status, resp.Message)
	}
	return nil
}

func (r *AccountRepository) post(ctx context.Context, path string, body any) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if requestID := logging.RequestIDValue(ctx); requestID != "" {
		req.Header.Set(logging.RequestIDHeader, requestID)
	}
	tracing.InjectHeaders(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, errors.Wrapf(ErrRemoteUnavailable, "POST %s: %v", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Wrapf(ErrRemoteUnavailable, "POST %s: reading response: %v", path, err)
	}
	return resp.StatusCode, data, nil
}

const readRetryMaxInterval = 2 * time.Second

// LookupBudget is the longest one account lookup can take with the given
// per-request timeout and retry count, pauses included.
func LookupBudget(timeout time.Duration, retries int) time.Duration {
	pause := time.Duration(float64(readRetryMaxInterval) * (1 + backoff.DefaultRandomizationFactor))
	return timeout*time.Duration(retries+1) + pause*time.Duration(retries)
}
