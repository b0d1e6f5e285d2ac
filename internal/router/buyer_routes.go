package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/limited-seats/internal/handler"
	"github.com/iliyamo/limited-seats/internal/middleware"
)

// RegisterBuyer registers the endpoints that need a verified buyer
// identity: cancel, promo redemption and gift claiming.  Ownership of a
// reservation is checked by the service, not here.
func RegisterBuyer(e *echo.Echo, s *handler.SeatHandler, r *handler.RedeemHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
	)
	g.POST("/reservations/:id/cancel", s.Cancel)
	g.POST("/promo/redeem", r.RedeemPromo, limiter)
	g.POST("/gift/claim", r.ClaimGift, limiter)
}
