package http

import (
	"github.com/fasthttp/router"
	"github.com/rs/zerolog"

	"github.com/Conte777/NewsFlow/services/broadcast-service/pkg/httputil"
)

// Router registers broadcast HTTP routes
type Router struct {
	broadcast *BroadcastHandler
	logger    zerolog.Logger
}

// NewRouter creates a new broadcast router
func NewRouter(broadcast *BroadcastHandler, logger zerolog.Logger) *Router {
	return &Router{broadcast: broadcast, logger: logger}
}

// RegisterRoutes registers broadcast routes on the router
func (r *Router) RegisterRoutes(rt *router.Router) {
	users := httputil.NewMiddlewareGroup(rt.Group("/api/v1/users/{user_id}")).
		Use(httputil.Recover(r.logger), httputil.RequestLogger(r.logger))

	users.GET("/broadcast", r.broadcast.UserJobs)
	users.GET("/accounts/{account_id}/broadcast", r.broadcast.Status)

	account := users.Group("/accounts/{account_id}/broadcast")
	account.POST("/start", r.broadcast.Start)
	account.POST("/stop", r.broadcast.Stop)

	r.logger.Info().Msg("broadcast routes registered")
}
