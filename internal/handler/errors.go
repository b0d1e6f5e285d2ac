package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/limited-seats/internal/logger"
    "github.com/iliyamo/limited-seats/internal/service"
)

// errorMapping ties a domain error to its HTTP status and a stable,
// machine-readable code.
type errorMapping struct {
    err    error
    status int
    code   string
}

var errorMappings = []errorMapping{
    {service.ErrSoldOut, http.StatusConflict, "sold_out"},
    {service.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
    {service.ErrHoldExpired, http.StatusGone, "hold_expired"},
    {service.ErrInvalidCode, http.StatusNotFound, "invalid_code"},
    {service.ErrAlreadyUsed, http.StatusConflict, "already_used"},
    {service.ErrCodeExists, http.StatusConflict, "code_exists"},
    {service.ErrMultiUseCode, http.StatusBadRequest, "single_use"},
    {service.ErrSignatureInvalid, http.StatusUnauthorized, "signature_invalid"},
    {service.ErrGatewayTimeout, http.StatusGatewayTimeout, "gateway_timeout"},
    {service.ErrGatewayUnavailable, http.StatusBadGateway, "gateway_unavailable"},
    {service.ErrAmountMismatch, http.StatusUnprocessableEntity, "amount_mismatch"},
    {service.ErrReferenceMismatch, http.StatusConflict, "reference_mismatch"},
    {service.ErrNotFound, http.StatusNotFound, "not_found"},
    {service.ErrForbidden, http.StatusForbidden, "forbidden"},
    {service.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
    {service.ErrUnknownTier, http.StatusBadRequest, "unknown_tier"},
    {service.ErrInvalidKind, http.StatusBadRequest, "invalid_kind"},
    {service.ErrInvalidBuyer, http.StatusBadRequest, "invalid_buyer"},
    {service.ErrInvalidClaimToken, http.StatusForbidden, "invalid_claim_token"},
    {service.ErrLedgerBounds, http.StatusConflict, "ledger_bounds"},
    {service.ErrNotPayable, http.StatusConflict, "not_payable"},
}

// respondError writes err as JSON.  Unknown errors are logged and hidden
// behind a generic 500.
func respondError(c echo.Context, l logger.Logger, err error) error {
    for _, m := range errorMappings {
        if errors.Is(err, m.err) {
            return c.JSON(m.status, echo.Map{"error": m.code, "message": m.err.Error()})
        }
    }
    l.Errorf(c.Request().Context(), "%s %s: %v", c.Request().Method, c.Path(), err)
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "internal server error"})
}

func badRequest(c echo.Context, msg string) error {
    return c.JSON(http.StatusBadRequest, echo.Map{"error": "bad_request", "message": msg})
}
