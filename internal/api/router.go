package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "hookguard/internal/api/context"
	"hookguard/internal/api/handlers"
	"hookguard/internal/api/middleware"
	"hookguard/internal/pkg/errors"
	"hookguard/internal/platform/auth"
)

type Dependencies struct {
	ReceiverHandler     *handlers.ReceiverHandler
	EndpointHandler     *handlers.EndpointHandler
	EventHandler        *handlers.EventHandler
	DeliveryHandler     *handlers.DeliveryHandler
	InboundHandler      *handlers.InboundHandler
	AuditHandler        *handlers.AuditHandler
	HealthHandler       *handlers.HealthHandler
	MetricsHandler      *handlers.MetricsHandler
	AuthMiddleware      *middleware.AuthMiddleware
	SignatureMiddleware *middleware.SignatureMiddleware
	RateLimiter         *middleware.RateLimiter
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	router.GET("/health", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	// Inbound webhooks: rate limited, then verified before the handler runs
	router.POST("/webhook",
		chain(deps.ReceiverHandler.Receive, deps.RateLimiter.Handle, deps.SignatureMiddleware.Handle))

	authMid := deps.AuthMiddleware
	admin := middleware.RequireRole(auth.RoleAdmin)

	// Endpoint registry
	router.POST("/api/v1/endpoints",
		chain(deps.EndpointHandler.Create, authMid.Handle, admin))
	router.GET("/api/v1/endpoints",
		chain(deps.EndpointHandler.List, authMid.Handle, admin))
	router.GET("/api/v1/endpoints/:endpoint_id",
		chain(deps.EndpointHandler.Get, authMid.Handle, admin))
	router.PATCH("/api/v1/endpoints/:endpoint_id",
		chain(deps.EndpointHandler.Update, authMid.Handle, admin))
	router.DELETE("/api/v1/endpoints/:endpoint_id",
		chain(deps.EndpointHandler.Delete, authMid.Handle, admin))

	// Outbound events and their deliveries
	router.POST("/api/v1/events",
		chain(deps.EventHandler.Dispatch, authMid.Handle, admin))
	router.GET("/api/v1/deliveries",
		chain(deps.DeliveryHandler.List, authMid.Handle, admin))
	router.GET("/api/v1/deliveries/:delivery_id",
		chain(deps.DeliveryHandler.Get, authMid.Handle, admin))
	router.POST("/api/v1/deliveries/:delivery_id/redeliver",
		chain(deps.DeliveryHandler.Redeliver, authMid.Handle, admin))

	router.GET("/api/v1/inbound",
		chain(deps.InboundHandler.List, authMid.Handle, admin))
	router.GET("/api/v1/audit-logs",
		chain(deps.AuditHandler.List, authMid.Handle, admin))

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Route not found", nil)
	})

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		// Inject params into context
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
