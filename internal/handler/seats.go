package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/limited-seats/internal/logger"
    "github.com/iliyamo/limited-seats/internal/middleware"
    "github.com/iliyamo/limited-seats/internal/model"
    "github.com/iliyamo/limited-seats/internal/service"
)

// SeatHandler serves the buyer-facing reservation flow: availability,
// reserve, status polling, payment initiation and cancel.
type SeatHandler struct {
    Reservations Reservations
    Payments     Payments
    Log          logger.Logger
}

func NewSeatHandler(r Reservations, p Payments, l logger.Logger) *SeatHandler {
    if r == nil || p == nil || l == nil {
        panic("nil dependency passed to NewSeatHandler")
    }
    return &SeatHandler{Reservations: r, Payments: p, Log: l}
}

// Availability handles GET /v1/seats/availability.
func (h *SeatHandler) Availability(c echo.Context) error {
    tiers, err := h.Reservations.Availability(c.Request().Context())
    if err != nil {
        return respondError(c, h.Log, err)
    }
    remaining := 0
    for _, t := range tiers {
        remaining += t.Remaining
    }
    return c.JSON(http.StatusOK, echo.Map{"tiers": tiers, "remaining": remaining})
}

// Reserve handles POST /v1/reserve.  An authenticated caller reserves
// under their verified user id and email; anonymous callers must give an
// email.  A sold out tier answers 409 with error "sold_out".
func (h *SeatHandler) Reserve(c echo.Context) error {
    var req reserveRequest
    if msg, ok := bindValid(c, &req); !ok {
        return badRequest(c, msg)
    }
    tier, ok := model.ParseTier(req.Tier)
    if !ok {
        return respondError(c, h.Log, service.ErrUnknownTier)
    }
    kind, _ := model.ParseKind(req.Kind)

    buyer := model.BuyerIdentity{Email: req.Email}
    if uid := middleware.UserID(c); uid != "" {
        buyer.UserID = &uid
        if email := middleware.Email(c); email != "" {
            buyer.Email = email
        }
    }
    if buyer.Email == "" {
        return badRequest(c, "email is required")
    }

    out, err := h.Reservations.Create(c.Request().Context(), service.CreateReservationInput{
        Tier:        tier,
        Quantity:    req.Quantity,
        Buyer:       buyer,
        Kind:        kind,
        AsGift:      req.AsGift,
        GiftMessage: req.GiftMessage,
    })
    if err != nil {
        return respondError(c, h.Log, err)
    }
    body := echo.Map{"reservation": toReservationResponse(out.Reservation, h.Payments.AmountDue(out.Reservation))}
    if out.GiftClaimToken != "" {
        // Shown exactly once; only its hash is stored.
        body["gift_claim_token"] = out.GiftClaimToken
    }
    return c.JSON(http.StatusCreated, body)
}

// GetReservation handles GET /v1/reservations/:id.  Clients poll it while
// a payment is processing.
func (h *SeatHandler) GetReservation(c echo.Context) error {
    res, err := h.Reservations.Get(c.Request().Context(), c.Param("id"))
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, toReservationResponse(res, h.Payments.AmountDue(res)))
}

// Pay handles POST /v1/reservations/:id/pay and returns the hosted
// payment redirect.  When the gateway times out the reservation stays
// awaiting_payment and the client is told to poll (202).
func (h *SeatHandler) Pay(c echo.Context) error {
    var req payRequest
    if msg, ok := bindValid(c, &req); !ok {
        return badRequest(c, msg)
    }
    ctx := c.Request().Context()
    id := c.Param("id")

    var amount int64
    if req.AmountCents != nil {
        amount = *req.AmountCents
    } else {
        res, err := h.Reservations.Get(ctx, id)
        if err != nil {
            return respondError(c, h.Log, err)
        }
        amount = h.Payments.AmountDue(res)
    }

    red, err := h.Payments.InitiatePayment(ctx, id, amount)
    if errors.Is(err, service.ErrGatewayTimeout) {
        return c.JSON(http.StatusAccepted, echo.Map{
            "status":         "payment_processing",
            "reservation_id": id,
            "message":        "payment is being processed, poll the reservation for the result",
        })
    }
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "redirect_url":      red.URL,
        "payment_reference": red.Reference,
        "amount_cents":      amount,
    })
}

// Cancel handles POST /v1/reservations/:id/cancel for the buyer who made
// the reservation.
func (h *SeatHandler) Cancel(c echo.Context) error {
    who := service.Requester{
        UserID: middleware.UserID(c),
        Email:  middleware.Email(c),
        Admin:  middleware.Role(c) == middleware.RoleService,
    }
    res, err := h.Reservations.Cancel(c.Request().Context(), c.Param("id"), who)
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, toReservationResponse(res, 0))
}
