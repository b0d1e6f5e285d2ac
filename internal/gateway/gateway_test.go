package gateway

import (
    "context"
    "net/http"
    "net/http/httptest"
    "net/url"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func testConfig(url string) Config {
    return Config{
        URL:        url,
        MerchantID: "m-1",
        Secret:     "gw-secret",
        Timeout:    time.Second,
        ReturnURL:  "https://seats.example.test/success",
        CancelURL:  "https://seats.example.test/cancel",
        NotifyURL:  "https://seats.example.test/v1/payments/notify",
    }
}

func TestInitiateSendsSignedForm(t *testing.T) {
    var got url.Values
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        require.NoError(t, r.ParseForm())
        got = r.PostForm
        w.Header().Set("Content-Type", "application/json")
        _, _ = w.Write([]byte(`{"redirect_url":"https://pay.example.test/p/abc"}`))
    }))
    defer srv.Close()

    c := NewHostedClient(testConfig(srv.URL))
    red, err := c.Initiate(context.Background(), InitiateRequest{
        ReservationID: "r-1", Reference: "pay_1", AmountCents: 70000, Description: "2 x founder",
    })
    require.NoError(t, err)
    assert.Equal(t, "https://pay.example.test/p/abc", red.URL)
    assert.Equal(t, "pay_1", red.Reference)

    assert.Equal(t, "700.00", got.Get("amount"))
    assert.Equal(t, "r-1", got.Get("order_id"))
    assert.Equal(t, "m-1", got.Get("merchant_id"))
    assert.True(t, Verify(got, "gw-secret"), "outbound form must carry a valid signature")
}

func TestInitiateTimeout(t *testing.T) {
    release := make(chan struct{})
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        select {
        case <-release:
        case <-r.Context().Done():
        }
    }))
    defer srv.Close()
    defer close(release)

    cfg := testConfig(srv.URL)
    cfg.Timeout = 50 * time.Millisecond
    _, err := NewHostedClient(cfg).Initiate(context.Background(), InitiateRequest{ReservationID: "r-1", Reference: "pay_1", AmountCents: 100})
    assert.ErrorIs(t, err, ErrTimeout)
}

func TestInitiateStatusMapping(t *testing.T) {
    tests := []struct {
        status int
        body   string
        want   error
    }{
        {http.StatusBadGateway, "", ErrUnavailable},
        {http.StatusServiceUnavailable, "", ErrUnavailable},
        {http.StatusBadRequest, `{"error":"bad amount"}`, ErrRejected},
        {http.StatusOK, `{}`, ErrRejected},
        {http.StatusOK, `not json`, ErrRejected},
    }
    for _, tt := range tests {
        srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            w.WriteHeader(tt.status)
            _, _ = w.Write([]byte(tt.body))
        }))
        _, err := NewHostedClient(testConfig(srv.URL)).Initiate(context.Background(), InitiateRequest{ReservationID: "r", Reference: "p", AmountCents: 1})
        assert.ErrorIs(t, err, tt.want, "status %d body %q", tt.status, tt.body)
        srv.Close()
    }
}

func TestInitiateUnreachable(t *testing.T) {
    srv := httptest.NewServer(http.NotFoundHandler())
    addr := srv.URL
    srv.Close()

    _, err := NewHostedClient(testConfig(addr)).Initiate(context.Background(), InitiateRequest{ReservationID: "r", Reference: "p", AmountCents: 1})
    assert.ErrorIs(t, err, ErrUnavailable)
    assert.ErrorIs(t, err, ErrNotSent)
}

func TestInitiateServerErrorWasSent(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusInternalServerError)
    }))
    defer srv.Close()

    _, err := NewHostedClient(testConfig(srv.URL)).Initiate(context.Background(), InitiateRequest{ReservationID: "r", Reference: "p", AmountCents: 1})
    assert.ErrorIs(t, err, ErrUnavailable)
    assert.NotErrorIs(t, err, ErrNotSent)
}

func TestSignVerify(t *testing.T) {
    v := url.Values{"order_id": {"r-1"}, "reference": {"pay_1"}, "status": {"success"}}
    v.Set(SignatureField, Sign(v, "k"))

    assert.True(t, Verify(v, "k"))
    assert.False(t, Verify(v, "other"))

    tampered := url.Values{}
    for k, vals := range v {
        tampered[k] = append([]string(nil), vals...)
    }
    tampered.Set("status", "failed")
    assert.False(t, Verify(tampered, "k"))

    v.Del(SignatureField)
    assert.False(t, Verify(v, "k"), "missing signature never verifies")
}

func TestAmounts(t *testing.T) {
    assert.Equal(t, "0.05", FormatAmount(5))
    assert.Equal(t, "1234.50", FormatAmount(123450))

    cents, err := ParseAmount("1234.5")
    require.NoError(t, err)
    assert.Equal(t, int64(123450), cents)

    _, err = ParseAmount("1.001")
    assert.Error(t, err)
    _, err = ParseAmount("abc")
    assert.Error(t, err)
}

func TestParseResult(t *testing.T) {
    v := url.Values{"order_id": {"r-1"}, "reference": {"pay_1"}, "status": {"PAID"}, "amount": {"700.00"}}
    v.Set(SignatureField, Sign(v, "k"))

    res, err := ParseResult(v, "k")
    require.NoError(t, err)
    assert.Equal(t, OutcomeSuccess, res.Outcome)
    assert.Equal(t, int64(70000), res.AmountCents)
    assert.True(t, res.SignatureValid)

    res, err = ParseResult(v, "wrong")
    require.NoError(t, err)
    assert.False(t, res.SignatureValid)

    v.Set("status", "declined")
    res, err = ParseResult(v, "k")
    require.NoError(t, err)
    assert.Equal(t, OutcomeFailure, res.Outcome)

    _, err = ParseResult(url.Values{"order_id": {"r-1"}, "reference": {"p"}, "status": {"pending"}}, "k")
    assert.ErrorIs(t, err, ErrMalformedResult)
    _, err = ParseResult(url.Values{"status": {"success"}}, "k")
    assert.ErrorIs(t, err, ErrMalformedResult)
}
