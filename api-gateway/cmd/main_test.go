package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eaglebank/banking/api-gateway/internal/proxy"
	"github.com/eaglebank/banking/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "gateway-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// upstream answers with its own name and records the user it was called for.
func upstream(t *testing.T, name string, users *[]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*users = append(*users, r.Header.Get(proxy.HeaderUserID))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"service":"` + name + `","path":"` + r.URL.Path + `"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func bearer(t *testing.T) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &middleware.Claims{
		UserID: "usr-1",
		Email:  "jane@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + token
}

func TestLoadConfigRejectsBadUpstream(t *testing.T) {
	t.Setenv("TRANSACTION_SERVICE_URL", "not a url")
	_, err := loadConfig()
	assert.Error(t, err)
}

func TestGatewayRoutes(t *testing.T) {
	var accountUsers, transactionUsers []string
	accounts := upstream(t, "accounts", &accountUsers)
	transactions := upstream(t, "transactions", &transactionUsers)

	t.Setenv("ACCOUNT_SERVICE_URL", accounts.URL)
	t.Setenv("TRANSACTION_SERVICE_URL", transactions.URL)
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("RATE_LIMIT_RPS", "0")
	cfg, err := loadConfig()
	require.NoError(t, err)
	router, err := newRouter(cfg)
	require.NoError(t, err)

	tests := []struct {
		name           string
		method         string
		path           string
		auth           bool
		expectedStatus int
		expectedBody   string
	}{
		{name: "transfer goes to transactions", method: http.MethodPost, path: "/transfer", auth: true, expectedStatus: http.StatusOK, expectedBody: `"service":"transactions"`},
		{name: "zelle goes to transactions", method: http.MethodPost, path: "/zelle", auth: true, expectedStatus: http.StatusOK, expectedBody: `"service":"transactions"`},
		{name: "history goes to transactions", method: http.MethodGet, path: "/v1/accounts/IBAN1/transactions", auth: true, expectedStatus: http.StatusOK, expectedBody: `"service":"transactions"`},
		{name: "transaction by id goes to transactions", method: http.MethodGet, path: "/v1/transactions/tx-1", auth: true, expectedStatus: http.StatusOK, expectedBody: `"service":"transactions"`},
		{name: "account lookup goes to accounts", method: http.MethodGet, path: "/v1/accounts/IBAN1", auth: true, expectedStatus: http.StatusOK, expectedBody: `"service":"accounts"`},
		{name: "create account goes to accounts", method: http.MethodPost, path: "/create-account", auth: true, expectedStatus: http.StatusOK, expectedBody: `"service":"accounts"`},
		{name: "missing token", method: http.MethodPost, path: "/transfer", expectedStatus: http.StatusUnauthorized},
		{name: "balance updates stay internal", method: http.MethodPost, path: "/update-balance", auth: true, expectedStatus: http.StatusNotFound},
		{name: "health needs no token", method: http.MethodGet, path: "/health", expectedStatus: http.StatusOK, expectedBody: serviceName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{}`))
			req.Header.Set("Content-Type", "application/json")
			if tt.auth {
				req.Header.Set("Authorization", bearer(t))
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedBody != "" {
				assert.Contains(t, w.Body.String(), tt.expectedBody)
			}
		})
	}

	require.Len(t, transactionUsers, 4)
	require.Len(t, accountUsers, 2)
	for _, user := range append(transactionUsers, accountUsers...) {
		assert.Equal(t, "usr-1", user)
	}
}

func TestRootCommandHasServe(t *testing.T) {
	cmd, _, err := newRootCommand().Find([]string{"serve"})
	require.NoError(t, err)
	assert.Equal(t, "serve", cmd.Name())
}
