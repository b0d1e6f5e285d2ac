// Package gateway talks to the hosted payment provider.  Payments are
// started with a signed form POST that returns the URL the buyer is sent
// to; the provider later reports the outcome by posting a signed result to
// the notify URL.  Both directions are signed with HMAC-SHA256 over the
// canonical (sorted, url-encoded) form values.
package gateway

import (
    "context"
    "crypto/hmac"
    "crypto/sha256"
    "encoding/hex"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "net"
    "net/http"
    "net/url"
    "strings"
    "time"

    "github.com/shopspring/decimal"
)

var (
    // ErrTimeout is returned when the provider did not answer in time.
    ErrTimeout = errors.New("gateway: timeout")
    // ErrUnavailable is returned on transport failures and 5xx answers.
    ErrUnavailable = errors.New("gateway: unavailable")
    // ErrNotSent accompanies ErrUnavailable when the connection could not
    // be opened, so the provider never saw the request.
    ErrNotSent = errors.New("gateway: request not sent")
    // ErrRejected is returned when the provider refused the request.
    ErrRejected = errors.New("gateway: rejected")
)

// SignatureField is the form field carrying the HMAC signature.
const SignatureField = "signature"

type Config struct {
    URL        string
    MerchantID string
    Secret     string
    Timeout    time.Duration
    ReturnURL  string
    CancelURL  string
    NotifyURL  string
}

// InitiateRequest describes one payment to start.
type InitiateRequest struct {
    ReservationID string
    Reference     string
    AmountCents   int64
    Description   string
}

// Redirect tells the buyer's browser where to go to pay.
type Redirect struct {
    URL       string `json:"redirect_url"`
    Reference string `json:"payment_reference"`
}

// HostedClient is the HTTP client of the hosted payment page.
type HostedClient struct {
    cfg Config
    hc  *http.Client
}

// NewHostedClient returns a client bounded by cfg.Timeout (10s when unset).
func NewHostedClient(cfg Config) *HostedClient {
    timeout := cfg.Timeout
    if timeout <= 0 {
        timeout = 10 * time.Second
    }
    return &HostedClient{cfg: cfg, hc: &http.Client{Timeout: timeout}}
}

// Initiate registers the payment with the provider and returns the
// redirect.  Failures are reported as ErrTimeout, ErrUnavailable or
// ErrRejected (wrapped with detail).
func (c *HostedClient) Initiate(ctx context.Context, req InitiateRequest) (*Redirect, error) {
    form := url.Values{}
    form.Set("merchant_id", c.cfg.MerchantID)
    form.Set("order_id", req.ReservationID)
    form.Set("reference", req.Reference)
    form.Set("amount", FormatAmount(req.AmountCents))
    form.Set("description", req.Description)
    form.Set("return_url", c.cfg.ReturnURL)
    form.Set("cancel_url", c.cfg.CancelURL)
    form.Set("notify_url", c.cfg.NotifyURL)
    form.Set(SignatureField, Sign(form, c.cfg.Secret))

    httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, strings.NewReader(form.Encode()))
    if err != nil {
        return nil, fmt.Errorf("%w: %v", ErrRejected, err)
    }
    httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
    httpReq.Header.Set("Accept", "application/json")

    resp, err := c.hc.Do(httpReq)
    if err != nil {
        if dialFailed(err) {
            return nil, fmt.Errorf("%w: %w: %v", ErrUnavailable, ErrNotSent, err)
        }
        if isTimeout(err) {
            return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
        }
        return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
    }
    defer resp.Body.Close()

    body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
    if err != nil {
        if isTimeout(err) {
            return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
        }
        return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
    }
    switch {
    case resp.StatusCode >= 500:
        return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
    case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
        return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, strings.TrimSpace(string(body)))
    }

    var out Redirect
    if err := json.Unmarshal(body, &out); err != nil {
        return nil, fmt.Errorf("%w: decode: %v", ErrRejected, err)
    }
    if out.URL == "" {
        return nil, fmt.Errorf("%w: empty redirect url", ErrRejected)
    }
    if out.Reference == "" {
        out.Reference = req.Reference
    }
    return &out, nil
}

// dialFailed reports whether err comes from opening the connection, before
// any byte of the request was written.
func dialFailed(err error) bool {
    var op *net.OpError
    return errors.As(err, &op) && op.Op == "dial"
}

func isTimeout(err error) bool {
    if errors.Is(err, context.DeadlineExceeded) {
        return true
    }
    var ne net.Error
    return errors.As(err, &ne) && ne.Timeout()
}

// Sign returns the hex HMAC-SHA256 of the canonical encoding of values,
// ignoring any signature field already present.
func Sign(values url.Values, secret string) string {
    canonical := make(url.Values, len(values))
    for k, v := range values {
        if k == SignatureField {
            continue
        }
        canonical[k] = v
    }
    mac := hmac.New(sha256.New, []byte(secret))
    mac.Write([]byte(canonical.Encode()))
    return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether values carry a valid signature for secret.  The
// comparison runs in constant time.
func Verify(values url.Values, secret string) bool {
    got := values.Get(SignatureField)
    if got == "" || secret == "" {
        return false
    }
    return hmac.Equal([]byte(strings.ToLower(got)), []byte(Sign(values, secret)))
}

// FormatAmount renders cents in major units with two decimals ("123.45").
func FormatAmount(cents int64) string {
    return decimal.New(cents, -2).StringFixed(2)
}

// ParseAmount converts a major-unit amount ("123.45") to cents.  Amounts
// with more than two decimals are rejected.
func ParseAmount(s string) (int64, error) {
    d, err := decimal.NewFromString(strings.TrimSpace(s))
    if err != nil {
        return 0, fmt.Errorf("invalid amount %q: %w", s, err)
    }
    cents := d.Shift(2)
    if !cents.Equal(cents.Truncate(0)) {
        return 0, fmt.Errorf("invalid amount %q: sub-cent precision", s)
    }
    return cents.IntPart(), nil
}
