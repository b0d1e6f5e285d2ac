package handler

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/limited-seats/internal/logger"
    "github.com/iliyamo/limited-seats/internal/middleware"
    "github.com/iliyamo/limited-seats/internal/model"
    "github.com/iliyamo/limited-seats/internal/service"
)

// RedeemHandler serves promo redemption and gift claiming.  Both routes
// run behind JWTAuth.
type RedeemHandler struct {
    Promos Promos
    Gifts  Gifts
    Log    logger.Logger
}

func NewRedeemHandler(p Promos, g Gifts, l logger.Logger) *RedeemHandler {
    if p == nil || g == nil || l == nil {
        panic("nil dependency passed to NewRedeemHandler")
    }
    return &RedeemHandler{Promos: p, Gifts: g, Log: l}
}

// RedeemPromo handles POST /v1/promo/redeem.  The seat is created paid.
func (h *RedeemHandler) RedeemPromo(c echo.Context) error {
    var req redeemRequest
    if msg, ok := bindValid(c, &req); !ok {
        return badRequest(c, msg)
    }
    uid := middleware.UserID(c)
    if uid == "" {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    email := middleware.Email(c)
    if email == "" {
        email = req.Email
    }
    if email == "" {
        return badRequest(c, "email is required")
    }

    res, err := h.Promos.Redeem(c.Request().Context(), req.Code, model.BuyerIdentity{Email: email, UserID: &uid})
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{"reservation": toReservationResponse(res, 0)})
}

// ClaimGift handles POST /v1/gift/claim.  It answers 200 when the caller
// holds the gift, 409 when someone else claimed it first and 404 when
// there is nothing (yet) to claim.
func (h *RedeemHandler) ClaimGift(c echo.Context) error {
    var req claimRequest
    if msg, ok := bindValid(c, &req); !ok {
        return badRequest(c, msg)
    }
    out, err := h.Gifts.Claim(c.Request().Context(), req.ReservationID, middleware.UserID(c), req.Token)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    status := http.StatusOK
    switch out {
    case service.ClaimOutcomeAlreadyClaimed:
        status = http.StatusConflict
    case service.ClaimOutcomeNotFound:
        status = http.StatusNotFound
    }
    return c.JSON(status, echo.Map{"outcome": out, "reservation_id": req.ReservationID})
}
