package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	q "github.com/gbus-app/gbus-server/internal/queue"
)

// Publisher sends domain events to the broker.  Services call it after a
// transaction commits; failures are logged and never fail the request.
type Publisher interface {
	Publish(ctx context.Context, ev q.Event) error
}

// NopPublisher drops every event.  It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, q.Event) error { return nil }

// ErrBrokerBackoff is returned without dialling while a failed dial is
// still within its backoff window.
var ErrBrokerBackoff = errors.New("rabbitmq unavailable, backing off")

const (
	publishDialTimeout = 2 * time.Second
	publishDialBackoff = 5 * time.Second
)

// AMQPPublisher publishes persistent JSON messages to the events queue.
// The connection is dialled lazily and re-dialled after a failure.  A dial
// never outlives the publish context, and after a failed dial publishes
// fail fast until the backoff window has passed.
type AMQPPublisher struct {
	url         string
	log         *slog.Logger
	dialTimeout time.Duration
	backoff     time.Duration

	mu         sync.Mutex
	conn       *amqp.Connection
	ch         *amqp.Channel
	retryAfter time.Time
}

// NewAMQPPublisher returns a publisher for url.  Nothing is dialled until
// the first Publish.
func NewAMQPPublisher(url string, logger *slog.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		url:         url,
		log:         defaultLogger(logger).With("component", "publisher"),
		dialTimeout: publishDialTimeout,
		backoff:     publishDialBackoff,
	}
}

func (p *AMQPPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()
	if time.Now().Before(p.retryAfter) {
		return nil, ErrBrokerBackoff
	}
	timeout := p.dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		p.retryAfter = time.Now().Add(p.backoff)
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(q.EventsQueue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

// Publish marshals ev and publishes it to the events queue.
func (p *AMQPPublisher) Publish(ctx context.Context, ev q.Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel(ctx)
	if err != nil {
		if !errors.Is(err, ErrBrokerBackoff) {
			p.log.Warn("rabbitmq dial failed", "error", err)
		}
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.EventID,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", q.EventsQueue, false, false, pub); err != nil {
		p.log.Warn("rabbitmq publish failed", "type", ev.Type, "error", err)
		p.closeLocked()
		return err
	}
	return nil
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *AMQPPublisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// publishAfterCommit sends events on a detached context so a cancelled
// request does not drop them.
func publishAfterCommit(ctx context.Context, pub Publisher, logger *slog.Logger, events ...q.Event) {
	if pub == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	for _, ev := range events {
		if err := pub.Publish(pctx, ev); err != nil {
			logger.Warn("event not published", "type", ev.Type, "event_id", ev.EventID, "error", err)
		}
	}
}
