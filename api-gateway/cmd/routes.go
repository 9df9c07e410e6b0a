package main

import (
	"github.com/eaglebank/banking/api-gateway/internal/proxy"
	"github.com/eaglebank/banking/shared/middleware"
	"github.com/eaglebank/banking/shared/server"
	"github.com/gin-gonic/gin"
)

// newRouter exposes the public surface of both services. /update-balance sets
// an absolute balance and is reachable only on the internal network.
func newRouter(cfg *Config) (*gin.Engine, error) {
	accounts, err := proxy.New("account-service", cfg.AccountServiceURL, cfg.UpstreamTimeout)
	if err != nil {
		return nil, err
	}
	transactions, err := proxy.New("transaction-service", cfg.TransactionServiceURL, cfg.UpstreamTimeout)
	if err != nil {
		return nil, err
	}

	router := server.NewRouter(serviceName, cfg.RateLimit)
	api := router.Group("", middleware.AuthMiddleware(cfg.JWTSecret))

	// Transaction routes
	api.POST("/transfer", transactions.Handler())
	api.POST("/zelle", transactions.Handler())
	api.POST("/transaction-with-id", transactions.Handler())
	api.POST("/transaction-history", transactions.Handler())
	api.GET("/v1/transactions/:transactionId", transactions.Handler())
	api.GET("/v1/accounts/:accountNumber/transactions", transactions.Handler())

	// Account routes
	api.POST("/create-account", accounts.Handler())
	api.POST("/account-detail", accounts.Handler())
	api.POST("/get-account-by-email", accounts.Handler())
	api.POST("/get-all-accounts", accounts.Handler())
	api.GET("/v1/accounts/:accountNumber", accounts.Handler())

	return router, nil
}
