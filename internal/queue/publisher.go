package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/admin-auth/internal/logging"
	"github.com/iliyamo/admin-auth/internal/model"
)

const (
	defaultBuffer         = 256
	defaultDialTimeout    = 3 * time.Second
	defaultPublishTimeout = 3 * time.Second
)

var (
	// ErrBufferFull is returned by Publish when the send buffer is full; the
	// event is dropped.
	ErrBufferFull = errors.New("event buffer full")
	// ErrPublisherClosed is returned by Publish after Close.
	ErrPublisherClosed = errors.New("publisher closed")
)

// Publisher sends auth events to a durable queue on the default exchange.
// Publish only enqueues; a single worker goroutine owns the broker
// connection, dials on demand and re-dials after a failure. Events that
// cannot be delivered are logged and dropped.
type Publisher struct {
	url   string
	queue string
	log   *slog.Logger

	dialTimeout    time.Duration
	publishTimeout time.Duration

	events  chan model.AuthEvent
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// owned by the worker
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Option tunes a Publisher.
type Option func(*Publisher)

// WithBuffer sets how many events may wait for the worker.
func WithBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.events = make(chan model.AuthEvent, n)
		}
	}
}

// WithDialTimeout bounds the TCP connect and AMQP handshake.
func WithDialTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.dialTimeout = d
		}
	}
}

// NewPublisher starts the delivery worker. It does not dial; the first event
// does.
func NewPublisher(url, queue string, logger *slog.Logger, opts ...Option) *Publisher {
	if logger == nil {
		logger = logging.Discard()
	}
	p := &Publisher{
		url:            url,
		queue:          queue,
		log:            logger.With("component", "event-publisher"),
		dialTimeout:    defaultDialTimeout,
		publishTimeout: defaultPublishTimeout,
		events:         make(chan model.AuthEvent, defaultBuffer),
		done:           make(chan struct{}),
		stopped:        make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	go p.run()
	return p
}

// Publish enqueues ev without waiting for the broker.
func (p *Publisher) Publish(_ context.Context, ev model.AuthEvent) error {
	select {
	case <-p.done:
		return ErrPublisherClosed
	default:
	}
	select {
	case p.events <- ev:
		return nil
	default:
		return fmt.Errorf("%w: dropping %s", ErrBufferFull, ev.Type)
	}
}

// Close stops the worker and releases the connection. Events still in the
// buffer are dropped.
func (p *Publisher) Close() error {
	p.once.Do(func() { close(p.done) })
	<-p.stopped
	return nil
}

func (p *Publisher) run() {
	defer close(p.stopped)
	defer p.reset()
	for {
		select {
		case <-p.done:
			return
		case ev := <-p.events:
			select {
			case <-p.done:
				return
			default:
			}
			if err := p.send(ev); err != nil {
				p.log.Warn("auth event dropped", "type", ev.Type, "error", err)
			}
		}
	}
}

func (p *Publisher) send(ev model.AuthEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	ch, err := p.channel()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.publishTimeout)
	defer cancel()
	err = ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Type:         string(ev.Type),
			Body:         body,
		})
	if err != nil {
		p.reset()
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

// channel returns an open channel, dialing if needed.
func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	conn, err := dial(p.url, p.dialTimeout)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", p.queue, err)
	}
	p.conn, p.ch = conn, ch
	p.log.Info("connected to broker", "queue", p.queue)
	return ch, nil
}

func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// dial connects with timeout covering both the TCP connect and the AMQP
// handshake, so a peer that accepts but never speaks fails fast.
func dial(url string, timeout time.Duration) (*amqp.Connection, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	return conn, nil
}
