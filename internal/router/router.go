package router // package router defines how HTTP routes are registered for the API

import (
	"net/http"

	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/iliyamo/limited-seats/internal/handler"    // HTTP handlers
	"github.com/iliyamo/limited-seats/internal/middleware" // JWT, rate limit and cache middleware
)

// RegisterRoutes registers the operational endpoints: liveness, readiness
// and Prometheus metrics.
func RegisterRoutes(e *echo.Echo, db handler.Pinger, metrics http.Handler) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
	if metrics != nil {
		e.GET("/metrics", echo.WrapHandler(metrics))
	}
}

// RegisterPublic registers the endpoints guests may call.  Availability
// is served through the response cache; reserving passes the rate
// limiter and accepts an optional identity token.
func RegisterPublic(e *echo.Echo, s *handler.SeatHandler, jwtSecret string, cache, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1")
	g.GET("/seats/availability", s.Availability, cache)
	g.POST("/reserve", s.Reserve, middleware.OptionalJWT(jwtSecret), limiter)
	// Status polling and payment start are keyed by the reservation's
	// unguessable id.
	g.GET("/reservations/:id", s.GetReservation)
	g.POST("/reservations/:id/pay", s.Pay, limiter)
}

// RegisterWebhook registers the gateway callback.  It carries no identity;
// the payload signature authenticates it.
func RegisterWebhook(e *echo.Echo, w *handler.WebhookHandler) {
	e.POST("/v1/payments/notify", w.Notify)
}
