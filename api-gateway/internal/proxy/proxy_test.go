package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestNewRejectsBadURLs(t *testing.T) {
	for _, raw := range []string{"", "localhost", "://nope"} {
		_, err := New("accounts", raw, time.Second)
		assert.Error(t, err, raw)
	}
}

func TestHandlerForwardsRequest(t *testing.T) {
	var gotPath, gotBody, gotUser, gotEmail, gotForwarded string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.RequestURI()
		buf := new(strings.Builder)
		_, _ = io.Copy(buf, r.Body)
		gotBody = buf.String()
		gotUser = r.Header.Get(HeaderUserID)
		gotEmail = r.Header.Get(HeaderUserEmail)
		gotForwarded = r.Header.Get("X-Forwarded-Host")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	svc, err := New("accounts", upstream.URL, time.Second)
	require.NoError(t, err)

	router := gin.New()
	router.POST("/create-account", func(c *gin.Context) {
		c.Set("userId", "usr-1")
		c.Set("email", "jane@example.com")
	}, svc.Handler())

	req := httptest.NewRequest(http.MethodPost, "http://gateway.local/create-account?x=1", strings.NewReader(`{"name":"Jane"}`))
	req.Header.Set(HeaderUserID, "spoofed")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	assert.Equal(t, "/create-account?x=1", gotPath)
	assert.Equal(t, `{"name":"Jane"}`, gotBody)
	assert.Equal(t, "usr-1", gotUser)
	assert.Equal(t, "jane@example.com", gotEmail)
	assert.Equal(t, "gateway.local", gotForwarded)
}

func TestHandlerStripsClientIdentityWithoutToken(t *testing.T) {
	var gotUser string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get(HeaderUserID)
	}))
	defer upstream.Close()

	svc, err := New("transactions", upstream.URL, time.Second)
	require.NoError(t, err)
	router := gin.New()
	router.GET("/v1/transactions/:id", svc.Handler())

	req := httptest.NewRequest(http.MethodGet, "/v1/transactions/abc", nil)
	req.Header.Set(HeaderUserID, "spoofed")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, gotUser)
}

func TestHandlerReportsUnavailableUpstream(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	addr := upstream.URL
	upstream.Close()

	svc, err := New("transactions", addr, time.Second)
	require.NoError(t, err)
	router := gin.New()
	router.POST("/transfer", svc.Handler())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/transfer", strings.NewReader(`{}`)))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"message":"Service unavailable"}`, w.Body.String())
}
