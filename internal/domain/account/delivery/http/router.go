package http

import (
	"github.com/fasthttp/router"
	"github.com/rs/zerolog"

	"github.com/Conte777/NewsFlow/services/broadcast-service/pkg/httputil"
)

// Router registers account-related HTTP routes
type Router struct {
	health  *HealthHandler
	account *AccountHandler
	logger  zerolog.Logger
}

// NewRouter creates a new account router
func NewRouter(health *HealthHandler, account *AccountHandler, logger zerolog.Logger) *Router {
	return &Router{
		health:  health,
		account: account,
		logger:  logger,
	}
}

// RegisterRoutes registers account routes on the router
func (r *Router) RegisterRoutes(rt *router.Router) {
	rt.GET("/health", r.health.Handle)

	users := httputil.NewMiddlewareGroup(rt.Group("/api/v1/users/{user_id}")).
		Use(httputil.Recover(r.logger), httputil.RequestLogger(r.logger))

	login := users.Group("/login")
	login.POST("/phone", r.account.BeginLogin)
	login.POST("/code", r.account.SubmitCode)
	login.POST("/password", r.account.SubmitPassword)
	users.GET("/login", r.account.LoginState)
	users.DELETE("/login", r.account.CancelLogin)

	users.GET("/accounts", r.account.ListAccounts)
	users.PUT("/accounts/{account_id}/active", r.account.SwitchActive)
	users.DELETE("/accounts/{account_id}", r.account.DeleteAccount)

	r.logger.Info().Msg("account routes registered")
}
