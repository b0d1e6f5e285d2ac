package gateway

import (
    "errors"
    "fmt"
    "net/url"
    "strings"
)

// Outcome is the final result of a payment as reported by the provider.
type Outcome string

const (
    OutcomeSuccess Outcome = "success"
    OutcomeFailure Outcome = "failure"
)

// ErrMalformedResult is returned when a result delivery lacks a required
// field or carries an unknown status.
var ErrMalformedResult = errors.New("gateway: malformed result")

// Result is one asynchronous payment result delivery.
type Result struct {
    ReservationID  string
    Reference      string
    Outcome        Outcome
    AmountCents    int64 // zero when the provider omitted the amount
    SignatureValid bool
}

// ParseResult reads a result delivery and checks its signature against
// secret.  An invalid signature is not an error here: it is reported in
// SignatureValid so the caller can reject and log it.
func ParseResult(values url.Values, secret string) (Result, error) {
    res := Result{
        ReservationID:  strings.TrimSpace(values.Get("order_id")),
        Reference:      strings.TrimSpace(values.Get("reference")),
        SignatureValid: Verify(values, secret),
    }
    if res.ReservationID == "" || res.Reference == "" {
        return res, fmt.Errorf("%w: order_id and reference are required", ErrMalformedResult)
    }
    switch strings.ToLower(strings.TrimSpace(values.Get("status"))) {
    case "success", "paid", "completed":
        res.Outcome = OutcomeSuccess
    case "failure", "failed", "declined", "cancelled", "canceled":
        res.Outcome = OutcomeFailure
    default:
        return res, fmt.Errorf("%w: unknown status %q", ErrMalformedResult, values.Get("status"))
    }
    if amt := values.Get("amount"); amt != "" {
        cents, err := ParseAmount(amt)
        if err != nil {
            return res, fmt.Errorf("%w: %v", ErrMalformedResult, err)
        }
        res.AmountCents = cents
    }
    return res, nil
}
