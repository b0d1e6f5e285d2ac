package service

import (
    "errors"

    "github.com/iliyamo/limited-seats/internal/repository"
)

// Domain errors returned by the services.  Handlers translate them to HTTP
// status codes with errors.Is.
var (
    ErrSoldOut            = errors.New("sold out")
    ErrInvalidTransition  = errors.New("reservation state changed, please retry")
    ErrHoldExpired        = errors.New("reservation hold has expired")
    ErrInvalidCode        = errors.New("invalid promo code")
    ErrAlreadyUsed        = errors.New("promo code already used")
    ErrCodeExists         = errors.New("promo code already exists")
    ErrMultiUseCode       = errors.New("promo codes are single-use")
    ErrSignatureInvalid   = errors.New("gateway signature invalid")
    ErrGatewayTimeout     = errors.New("payment gateway timed out")
    ErrGatewayUnavailable = errors.New("payment gateway unavailable")
    ErrAmountMismatch     = errors.New("amount does not match the reservation")
    ErrReferenceMismatch  = errors.New("payment reference does not match the reservation")
    ErrNotFound           = errors.New("reservation not found")
    ErrForbidden          = errors.New("forbidden")
    ErrInvalidQuantity    = errors.New("quantity must be between 1 and 10")
    ErrUnknownTier        = errors.New("unknown seat tier")
    ErrInvalidKind        = errors.New("reservation kind must be hold_24h or deposit_secured")
    ErrInvalidBuyer       = errors.New("buyer email is required")
    ErrInvalidClaimToken  = errors.New("invalid gift claim token")
    ErrLedgerBounds       = errors.New("correction would break ledger bounds")
    ErrNotPayable         = errors.New("reservation does not take payments")
)

// storeErr maps repository guard failures to domain errors and leaves
// everything else untouched.
func storeErr(err error) error {
    switch {
    case err == nil:
        return nil
    case errors.Is(err, repository.ErrNotFound):
        return ErrNotFound
    case errors.Is(err, repository.ErrInvalidTransition):
        return ErrInvalidTransition
    }
    return err
}
