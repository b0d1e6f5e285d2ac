package handler

import (
    "encoding/json"
    "errors"
    "fmt"
    "net/http"
    "net/url"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/limited-seats/internal/gateway"
    "github.com/iliyamo/limited-seats/internal/logger"
    "github.com/iliyamo/limited-seats/internal/service"
)

// WebhookHandler receives asynchronous payment results from the gateway.
type WebhookHandler struct {
    Payments Payments
    Secret   string
    Log      logger.Logger
}

func NewWebhookHandler(p Payments, secret string, l logger.Logger) *WebhookHandler {
    if p == nil || l == nil || secret == "" {
        panic("invalid dependency passed to NewWebhookHandler")
    }
    return &WebhookHandler{Payments: p, Secret: secret, Log: l}
}

// Notify handles POST /v1/payments/notify.  The body is either a form or a
// flat JSON object; both are verified with the same signature scheme.
// Deliveries that were already applied answer 200 again so the gateway
// stops retrying.
func (h *WebhookHandler) Notify(c echo.Context) error {
    values, err := resultValues(c)
    if err != nil {
        return badRequest(c, "unreadable result body")
    }

    res, perr := gateway.ParseResult(values, h.Secret)
    if perr != nil && res.SignatureValid {
        h.Log.Warnf(c.Request().Context(), "malformed gateway result: %v", perr)
        return badRequest(c, "malformed result")
    }
    disp, err := h.Payments.HandleGatewayResult(c.Request().Context(), service.GatewayResult{
        ReservationID:    res.ReservationID,
        PaymentReference: res.Reference,
        Outcome:          res.Outcome,
        AmountCents:      res.AmountCents,
        SignatureValid:   res.SignatureValid,
        RemoteAddr:       c.RealIP(),
    })
    if errors.Is(err, service.ErrSignatureInvalid) {
        // No detail for the sender; the service has logged the attempt.
        return c.NoContent(http.StatusUnauthorized)
    }
    if err != nil {
        return respondError(c, h.Log, err)
    }
    return c.JSON(http.StatusOK, echo.Map{"status": disp})
}

// resultValues flattens the request body into url.Values.
func resultValues(c echo.Context) (url.Values, error) {
    ct := c.Request().Header.Get(echo.HeaderContentType)
    if !strings.HasPrefix(ct, echo.MIMEApplicationJSON) {
        return c.FormParams()
    }
    var raw map[string]any
    dec := json.NewDecoder(c.Request().Body)
    dec.UseNumber()
    if err := dec.Decode(&raw); err != nil {
        return nil, err
    }
    values := make(url.Values, len(raw))
    for k, v := range raw {
        switch t := v.(type) {
        case nil:
        case string:
            values.Set(k, t)
        case json.Number:
            values.Set(k, t.String())
        case bool:
            values.Set(k, fmt.Sprint(t))
        default:
            return nil, fmt.Errorf("field %s: nested values are not supported", k)
        }
    }
    return values, nil
}
