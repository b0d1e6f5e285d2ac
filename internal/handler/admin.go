package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/limited-seats/internal/logger"
    "github.com/iliyamo/limited-seats/internal/middleware"
    "github.com/iliyamo/limited-seats/internal/model"
    "github.com/iliyamo/limited-seats/internal/service"
)

// AdminHandler groups back-office operations.  Every route runs behind
// JWTAuth and RequireRole(service_role).
type AdminHandler struct {
    Reservations Reservations
    Promos       Promos
    Sweeper      Sweeps
    Log          logger.Logger
}

func NewAdminHandler(r Reservations, p Promos, s Sweeps, l logger.Logger) *AdminHandler {
    if r == nil || p == nil || s == nil || l == nil {
        panic("nil dependency passed to NewAdminHandler")
    }
    return &AdminHandler{Reservations: r, Promos: p, Sweeper: s, Log: l}
}

// IssuePromo handles POST /v1/admin/promo-codes.
func (h *AdminHandler) IssuePromo(c echo.Context) error {
    var req issuePromoRequest
    if msg, ok := bindValid(c, &req); !ok {
        return badRequest(c, msg)
    }
    tier, ok := model.ParseTier(req.Tier)
    if !ok {
        return respondError(c, h.Log, service.ErrUnknownTier)
    }
    p, err := h.Promos.Issue(c.Request().Context(), service.IssuePromoInput{Code: req.Code, Tier: tier, Uses: req.Uses})
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, promoResponse{Code: p.Code, Tier: p.GrantedTier, UsesRemaining: p.UsesRemaining, CreatedAt: p.CreatedAt})
}

// CorrectLedger handles POST /v1/admin/ledger/:tier/correction.  A
// positive delta records seats sold outside the engine, a negative one
// takes back seats sold by mistake.
func (h *AdminHandler) CorrectLedger(c echo.Context) error {
    tier, ok := model.ParseTier(c.Param("tier"))
    if !ok {
        return respondError(c, h.Log, service.ErrUnknownTier)
    }
    var req correctionRequest
    if msg, ok := bindValid(c, &req); !ok {
        return badRequest(c, msg)
    }
    ctx := c.Request().Context()
    if err := h.Reservations.AdjustSold(ctx, tier, req.Delta, req.Reason); err != nil {
        return respondError(c, h.Log, err)
    }
    h.Log.Infof(ctx, "ledger correction by %s: tier=%s delta=%d", middleware.UserID(c), tier, req.Delta)

    tiers, err := h.Reservations.Availability(ctx)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    for _, t := range tiers {
        if t.Tier == tier {
            return c.JSON(http.StatusOK, t)
        }
    }
    return c.NoContent(http.StatusNoContent)
}

// CancelReservation handles POST /v1/admin/reservations/:id/cancel.
func (h *AdminHandler) CancelReservation(c echo.Context) error {
    res, err := h.Reservations.Cancel(c.Request().Context(), c.Param("id"), service.Requester{
        UserID: middleware.UserID(c),
        Admin:  true,
    })
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, toReservationResponse(res, 0))
}

// Sweep handles POST /v1/admin/sweep and runs one expiry sweep now.
func (h *AdminHandler) Sweep(c echo.Context) error {
    rep, err := h.Sweeper.SweepOnce(c.Request().Context())
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"report": rep, "status": h.Sweeper.Status()})
}
