package config // package config loads application configuration from environment variables

import (
    "errors"
    "fmt"
    "strings"
    "time"

    "github.com/joho/godotenv"

    "github.com/iliyamo/limited-seats/internal/model"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable; nested structs group the settings of one
// subsystem.
type Config struct {
    Env           string // application environment (e.g. "dev", "prod")
    Port          string // HTTP port to listen on
    AuthJWTSecret string // secret shared with the identity provider to verify bearer tokens
    RabbitMQURL   string // broker URL for domain events (empty disables publishing)

    DB          DBConfig
    Log         LogConfig
    Reservation ReservationConfig
    Sweep       SweepConfig
    Gateway     GatewayConfig
    Pricing     PricingConfig
}

// DBConfig describes the MySQL connection.
type DBConfig struct {
    User            string
    Pass            string
    Host            string
    Port            string
    Name            string
    MaxOpenConns    int
    ConnMaxLifetime time.Duration
}

// LogConfig selects the zap level, mode and encoding.
type LogConfig struct {
    Level    string
    Mode     string
    Encoding string
}

// ReservationConfig controls hold lifetimes and the deposit amount.
type ReservationConfig struct {
    HoldTTL      time.Duration // lifetime of a hold_24h reservation
    DepositTTL   time.Duration // lifetime of a deposit_secured reservation
    DepositCents int64         // deposit charged per seat
}

// SweepConfig controls the hold expiry sweeper.
type SweepConfig struct {
    Interval time.Duration
    Batch    int
}

// GatewayConfig describes the hosted payment gateway.
type GatewayConfig struct {
    URL        string
    MerchantID string
    Secret     string
    Timeout    time.Duration
    ReturnURL  string
    CancelURL  string
    NotifyURL  string
}

// PricingConfig holds the unit prices of both tiers.  Fire-sale prices are
// optional; zero disables the discount for that tier.
type PricingConfig struct {
    FounderBaseCents     int64
    FounderFireSaleCents int64
    PatronBaseCents      int64
    PatronFireSaleCents  int64
    FireSaleEndsAt       *time.Time
}

// Load reads a .env file when one is present, then builds the Config from
// the process environment and validates it.
func Load() (*Config, error) {
    _ = godotenv.Load()

    fireSaleEnds, err := envTime("FIRE_SALE_ENDS_AT")
    if err != nil {
        return nil, err
    }
    cfg := &Config{
        Env:           envStr("APP_ENV", "dev"),
        Port:          envStr("APP_PORT", "8080"),
        AuthJWTSecret: envStr("AUTH_JWT_SECRET", ""),
        RabbitMQURL:   envStr("RABBITMQ_URL", ""),
        DB: DBConfig{
            User:            envStr("DB_USER", ""),
            Pass:            envStr("DB_PASS", ""),
            Host:            envStr("DB_HOST", ""),
            Port:            envStr("DB_PORT", "3306"),
            Name:            envStr("DB_NAME", ""),
            MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 25),
            ConnMaxLifetime: envDur("DB_CONN_MAX_LIFETIME", 30*time.Minute),
        },
        Log: LogConfig{
            Level:    envStr("LOG_LEVEL", "info"),
            Mode:     envStr("LOG_MODE", "development"),
            Encoding: envStr("LOG_ENCODING", "console"),
        },
        Reservation: ReservationConfig{
            HoldTTL:      envDur("HOLD_TTL", 24*time.Hour),
            DepositTTL:   envDur("DEPOSIT_TTL", 48*time.Hour),
            DepositCents: envInt64("DEPOSIT_CENTS", 5000),
        },
        Sweep: SweepConfig{
            Interval: envDur("SWEEP_INTERVAL", time.Minute),
            Batch:    envInt("SWEEP_BATCH", 100),
        },
        Gateway: GatewayConfig{
            URL:        envStr("GATEWAY_URL", ""),
            MerchantID: envStr("GATEWAY_MERCHANT_ID", ""),
            Secret:     envStr("GATEWAY_SECRET", ""),
            Timeout:    envDur("GATEWAY_TIMEOUT", 10*time.Second),
            ReturnURL:  envStr("GATEWAY_RETURN_URL", ""),
            CancelURL:  envStr("GATEWAY_CANCEL_URL", ""),
            NotifyURL:  envStr("GATEWAY_NOTIFY_URL", ""),
        },
        Pricing: PricingConfig{
            FounderBaseCents:     envInt64("FOUNDER_BASE_PRICE_CENTS", 50000),
            FounderFireSaleCents: envInt64("FOUNDER_FIRE_SALE_PRICE_CENTS", 0),
            PatronBaseCents:      envInt64("PATRON_BASE_PRICE_CENTS", 20000),
            PatronFireSaleCents:  envInt64("PATRON_FIRE_SALE_PRICE_CENTS", 0),
            FireSaleEndsAt:       fireSaleEnds,
        },
    }
    if err := cfg.Validate(); err != nil {
        return nil, err
    }
    return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
    var errs []error
    required := []struct{ key, val string }{
        {"DB_USER", c.DB.User},
        {"DB_HOST", c.DB.Host},
        {"DB_NAME", c.DB.Name},
        {"AUTH_JWT_SECRET", c.AuthJWTSecret},
        {"GATEWAY_URL", c.Gateway.URL},
        {"GATEWAY_MERCHANT_ID", c.Gateway.MerchantID},
        {"GATEWAY_SECRET", c.Gateway.Secret},
        {"GATEWAY_NOTIFY_URL", c.Gateway.NotifyURL},
    }
    for _, r := range required {
        if strings.TrimSpace(r.val) == "" {
            errs = append(errs, fmt.Errorf("missing required env var: %s", r.key))
        }
    }
    if c.Reservation.HoldTTL <= 0 || c.Reservation.DepositTTL <= 0 {
        errs = append(errs, errors.New("HOLD_TTL and DEPOSIT_TTL must be positive"))
    }
    if c.Reservation.DepositCents <= 0 {
        errs = append(errs, errors.New("DEPOSIT_CENTS must be positive"))
    }
    if c.Sweep.Interval <= 0 || c.Sweep.Batch <= 0 {
        errs = append(errs, errors.New("SWEEP_INTERVAL and SWEEP_BATCH must be positive"))
    }
    if c.Pricing.FounderBaseCents <= 0 || c.Pricing.PatronBaseCents <= 0 {
        errs = append(errs, errors.New("base prices must be positive"))
    }
    return errors.Join(errs...)
}

// Tiers returns the pricing catalog of both tiers.
func (c *Config) Tiers() []model.SeatTier {
    return []model.SeatTier{
        c.Pricing.tier(model.TierFounder, c.Pricing.FounderBaseCents, c.Pricing.FounderFireSaleCents),
        c.Pricing.tier(model.TierPatron, c.Pricing.PatronBaseCents, c.Pricing.PatronFireSaleCents),
    }
}

func (p PricingConfig) tier(t model.Tier, base, fire int64) model.SeatTier {
    st := model.SeatTier{Tier: t, TotalAvailable: model.SeatsPerTier, BasePriceCents: base}
    if fire > 0 && p.FireSaleEndsAt != nil {
        price := fire
        ends := *p.FireSaleEndsAt
        st.FireSalePriceCents = &price
        st.FireSaleEndsAt = &ends
    }
    return st
}

// envTime parses an optional RFC3339 timestamp.
func envTime(k string) (*time.Time, error) {
    v := envStr(k, "")
    if v == "" {
        return nil, nil
    }
    t, err := time.Parse(time.RFC3339, v)
    if err != nil {
        return nil, fmt.Errorf("invalid %s: %w", k, err)
    }
    t = t.UTC()
    return &t, nil
}
