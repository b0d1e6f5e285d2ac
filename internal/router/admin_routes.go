package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/limited-seats/internal/handler"
	"github.com/iliyamo/limited-seats/internal/middleware"
)

// RegisterAdmin registers back-office endpoints under /v1/admin.  All
// routes require a valid JWT carrying the service role.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleService),
	)
	g.POST("/promo-codes", a.IssuePromo)
	g.POST("/ledger/:tier/correction", a.CorrectLedger)
	g.POST("/reservations/:id/cancel", a.CancelReservation)
	g.POST("/sweep", a.Sweep)
}
