// Package proxy forwards gateway requests to the backing services.
package proxy

import (
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/eaglebank/banking/shared/logging"
	"github.com/eaglebank/banking/shared/middleware"
	"github.com/eaglebank/banking/shared/tracing"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/propagation"
)

// Identity headers set from the verified token. Values sent by the client are
// dropped.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
)

// Service is one upstream the gateway routes to.
type Service struct {
	name  string
	proxy *httputil.ReverseProxy
}

// New builds a proxy for the service at rawURL. A zero timeout leaves the
// response header wait unbounded.
func New(name, rawURL string, timeout time.Duration) (*Service, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s url", name)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, errors.Errorf("invalid %s url %q", name, rawURL)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = timeout

	s := &Service{name: name}
	s.proxy = &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.SetXForwarded()
			tracing.InjectHeaders(r.Out.Context(), propagation.HeaderCarrier(r.Out.Header))
		},
		Transport:    transport,
		ErrorHandler: s.handleError,
	}
	return s, nil
}

// Handler forwards the request unchanged apart from the identity headers.
func (s *Service) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Header.Del(HeaderUserID)
		c.Request.Header.Del(HeaderUserEmail)
		if userID, ok := middleware.GetUserID(c); ok && userID != "" {
			c.Request.Header.Set(HeaderUserID, userID)
		}
		if email := c.GetString("email"); email != "" {
			c.Request.Header.Set(HeaderUserEmail, email)
		}
		s.proxy.ServeHTTP(c.Writer, c.Request)
	}
}

func (s *Service) handleError(w http.ResponseWriter, r *http.Request, err error) {
	logging.FromContext(r.Context()).WithError(err).WithField("upstream", s.name).Error("proxy request failed")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte(`{"message":"Service unavailable"}`))
}
