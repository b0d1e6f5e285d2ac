package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/limited-seats/internal/logger"
)

// AuditConsumer reads every event from AuditQueue and appends one line per
// event to a log file (logs/seats.log by default).
type AuditConsumer struct {
    url  string
    path string
    l    logger.Logger
}

// NewAuditConsumer returns a consumer writing to path.
func NewAuditConsumer(url, path string, l logger.Logger) *AuditConsumer {
    if path == "" {
        path = filepath.Join("logs", "seats.log")
    }
    return &AuditConsumer{url: url, path: path, l: l}
}

// Run connects to the broker and consumes until ctx is cancelled.  Broken
// connections are re-dialed with exponential backoff capped at 30s.  It
// returns nil once ctx is done.
func (c *AuditConsumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := dial(c.url, defaultDialTimeout)
        if err != nil {
            c.l.Warnf(ctx, "audit-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
            if !sleep(ctx, backoff) {
                return nil
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return nil
        }
        c.l.Warnf(ctx, "audit-consumer: consume loop ended: %v; reconnecting", err)
        if !sleep(ctx, 2*time.Second) {
            return nil
        }
    }
}

func (c *AuditConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(50, 0, false); err != nil {
        c.l.Warnf(ctx, "audit-consumer: set QoS failed: %v", err)
    }
    if err := declareTopology(ch); err != nil {
        return err
    }
    msgs, err := ch.Consume(AuditQueue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }

    for {
        select {
        case <-ctx.Done():
            return ctx.Err()
        case d, ok := <-msgs:
            if !ok {
                return errors.New("deliveries channel closed")
            }
            if err := c.handle(d.Body); err != nil {
                c.l.Errorf(ctx, "audit-consumer: handle message failed: %v", err)
                _ = d.Nack(false, false) // reject without requeue to avoid tight loops
                continue
            }
            _ = d.Ack(false)
        }
    }
}

func (c *AuditConsumer) handle(body []byte) error {
    var ev Event
    if err := json.Unmarshal(body, &ev); err != nil {
        return fmt.Errorf("unmarshal: %w", err)
    }
    if ev.Type == "" {
        return errors.New("event without type")
    }
    if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
        return fmt.Errorf("mkdir logs: %w", err)
    }
    f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
    if err != nil {
        return fmt.Errorf("open log file: %w", err)
    }
    defer f.Close()
    if _, err := f.WriteString(formatLine(ev)); err != nil {
        return fmt.Errorf("write log: %w", err)
    }
    return nil
}

func formatLine(ev Event) string {
    line := fmt.Sprintf("[%s] %s | reservation_id=%s | tier=%s | quantity=%d",
        ev.OccurredAt.UTC().Format(time.RFC3339), ev.Type, orDash(ev.ReservationID), ev.Tier, ev.Quantity)
    if ev.Kind != "" {
        line += " | kind=" + ev.Kind
    }
    if ev.State != "" {
        line += " | state=" + ev.State
    }
    if ev.AmountCents != 0 {
        line += fmt.Sprintf(" | amount=%d cents", ev.AmountCents)
    }
    if ev.UserID != "" {
        line += " | user_id=" + ev.UserID
    }
    if ev.Reason != "" {
        line += fmt.Sprintf(" | reason=%q", ev.Reason)
    }
    return line + "\n"
}

func orDash(s string) string {
    if s == "" {
        return "-"
    }
    return s
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
