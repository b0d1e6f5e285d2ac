package queue

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"

    "github.com/iliyamo/limited-seats/internal/logger"
)

// ErrBufferFull is returned by Publish when the outgoing buffer has no room
// left.  The event is dropped.
var ErrBufferFull = errors.New("rabbitmq: event buffer full")

var errBrokerDown = errors.New("rabbitmq: broker unreachable, backing off")

const (
    defaultBuffer      = 1024
    defaultDialTimeout = 5 * time.Second
    defaultRetryAfter  = 10 * time.Second
)

// Publisher publishes events to RabbitMQ over one long-lived connection.
// Publish only queues the event; Run delivers the queue in the background
// so a slow or dead broker never holds up the caller.  The connection is
// opened lazily and re-opened after any failure, at most once per
// retryAfter while the broker stays unreachable.
type Publisher struct {
    url         string
    l           logger.Logger
    dialTimeout time.Duration
    retryAfter  time.Duration
    events      chan Event

    mu        sync.Mutex
    conn      *amqp.Connection
    ch        *amqp.Channel
    downUntil time.Time
}

// NewPublisher returns a Publisher for the broker at url.  No connection is
// made until Run delivers the first event.
func NewPublisher(url string, l logger.Logger) *Publisher {
    return &Publisher{
        url:         url,
        l:           l,
        dialTimeout: defaultDialTimeout,
        retryAfter:  defaultRetryAfter,
        events:      make(chan Event, defaultBuffer),
    }
}

// Publish queues ev for delivery and returns at once.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
    select {
    case p.events <- ev:
        return nil
    default:
        p.l.Warnf(ctx, "rabbitmq: buffer full, dropping %s for %s", ev.Type, ev.ReservationID)
        return ErrBufferFull
    }
}

// Run delivers queued events until ctx ends, then makes one bounded pass
// over whatever is still queued and closes the connection.
func (p *Publisher) Run(ctx context.Context) error {
    for {
        select {
        case ev := <-p.events:
            p.deliver(ctx, ev)
        case <-ctx.Done():
            p.flush()
            return p.Close()
        }
    }
}

func (p *Publisher) flush() {
    fctx, cancel := context.WithTimeout(context.Background(), p.dialTimeout)
    defer cancel()
    dropped := 0
    for {
        select {
        case ev := <-p.events:
            if fctx.Err() != nil {
                dropped++
                continue
            }
            p.deliver(fctx, ev)
        default:
            if dropped > 0 {
                p.l.Warnf(fctx, "rabbitmq: %d events dropped at shutdown", dropped)
            }
            return
        }
    }
}

func (p *Publisher) deliver(ctx context.Context, ev Event) {
    sctx, cancel := context.WithTimeout(ctx, p.dialTimeout)
    defer cancel()
    if err := p.send(sctx, ev); err != nil {
        p.l.Warnf(ctx, "rabbitmq: publish %s for %s failed: %v", ev.Type, ev.ReservationID, err)
    }
}

// send publishes ev as a persistent JSON message routed by its type.
func (p *Publisher) send(ctx context.Context, ev Event) error {
    body, err := json.Marshal(ev)
    if err != nil {
        return fmt.Errorf("marshal event: %w", err)
    }

    p.mu.Lock()
    defer p.mu.Unlock()

    if time.Now().Before(p.downUntil) {
        return errBrokerDown
    }
    ch, err := p.channel(ctx)
    if err != nil {
        p.downUntil = time.Now().Add(p.retryAfter)
        return err
    }
    err = ch.PublishWithContext(ctx, Exchange, ev.Type, false, false, amqp.Publishing{
        ContentType:  "application/json",
        DeliveryMode: amqp.Persistent,
        Type:         ev.Type,
        Timestamp:    time.Now().UTC(),
        Body:         body,
    })
    if err != nil {
        p.reset()
        return err
    }
    return nil
}

// Close shuts the connection down.
func (p *Publisher) Close() error {
    p.mu.Lock()
    defer p.mu.Unlock()
    if p.conn == nil {
        return nil
    }
    err := p.conn.Close()
    p.conn, p.ch = nil, nil
    return err
}

// channel returns an open channel, dialing and declaring the topology when
// needed.  The dial and the AMQP handshake share one deadline: the dial
// timeout or what is left of ctx, whichever is shorter.  The caller holds
// p.mu.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
    if p.ch != nil && !p.ch.IsClosed() && p.conn != nil && !p.conn.IsClosed() {
        return p.ch, nil
    }
    p.reset()

    timeout := p.dialTimeout
    if dl, ok := ctx.Deadline(); ok {
        if left := time.Until(dl); left < timeout {
            timeout = left
        }
    }
    if timeout <= 0 {
        return nil, fmt.Errorf("dial: %w", context.DeadlineExceeded)
    }
    conn, err := dial(p.url, timeout)
    if err != nil {
        return nil, fmt.Errorf("dial: %w", err)
    }
    ch, err := conn.Channel()
    if err != nil {
        _ = conn.Close()
        return nil, fmt.Errorf("channel open: %w", err)
    }
    if err := declareTopology(ch); err != nil {
        _ = conn.Close()
        return nil, err
    }
    p.conn, p.ch = conn, ch
    return ch, nil
}

// dial opens a connection whose TCP connect and AMQP handshake together
// must finish within timeout.
func dial(url string, timeout time.Duration) (*amqp.Connection, error) {
    return amqp.DialConfig(url, amqp.Config{
        Heartbeat: 10 * time.Second,
        Locale:    "en_US",
        Dial:      amqp.DefaultDial(timeout),
    })
}

func (p *Publisher) reset() {
    if p.conn != nil {
        _ = p.conn.Close()
    }
    p.conn, p.ch = nil, nil
}

// declareTopology declares the exchange and the audit queue bound to every
// routing key.  All declarations are idempotent and durable.
func declareTopology(ch *amqp.Channel) error {
    if err := ch.ExchangeDeclare(Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
        return fmt.Errorf("exchange declare: %w", err)
    }
    if _, err := ch.QueueDeclare(AuditQueue, true, false, false, false, nil); err != nil {
        return fmt.Errorf("queue declare: %w", err)
    }
    if err := ch.QueueBind(AuditQueue, "#", Exchange, false, nil); err != nil {
        return fmt.Errorf("queue bind: %w", err)
    }
    return nil
}

// NopPublisher drops every event.  It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
