package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ErrQueueFull is returned by Publish when the relay has no room left.
var ErrQueueFull = errors.New("event queue full")

const (
	defaultQueueSize    = 1024
	defaultWriteTimeout = 5 * time.Second
	drainTimeout        = 5 * time.Second
)

// KafkaPublisher writes one message per event to the topic named after the
// event type. Messages are keyed by provider so a provider's events stay in
// order within a partition.
//
// Publish only enqueues; a background relay does the writes, so a slow broker
// never holds up the caller.
type KafkaPublisher struct {
	writer       MessageWriter
	topicPrefix  string
	writeTimeout time.Duration
	logger       *slog.Logger

	queue     chan kafka.Message
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

type Option func(*KafkaPublisher)

func WithQueueSize(n int) Option {
	return func(p *KafkaPublisher) {
		if n > 0 {
			p.queue = make(chan kafka.Message, n)
		}
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(p *KafkaPublisher) {
		if d > 0 {
			p.writeTimeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *KafkaPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func NewKafkaPublisher(brokers []string, topicPrefix string, opts ...Option) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           10 * time.Millisecond,
		MaxAttempts:            3,
	}
	return NewPublisherWithWriter(w, topicPrefix, opts...)
}

// NewPublisherWithWriter starts a relay over w. Close stops it.
func NewPublisherWithWriter(w MessageWriter, topicPrefix string, opts ...Option) *KafkaPublisher {
	p := &KafkaPublisher{
		writer:       w,
		topicPrefix:  topicPrefix,
		writeTimeout: defaultWriteTimeout,
		logger:       slog.Default(),
		queue:        make(chan kafka.Message, defaultQueueSize),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(slog.String("component", "events.kafka"))
	go p.run()
	return p
}

// Publish hands the event to the relay. Trace context is taken from ctx now;
// ctx does not bound the write.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := NewMessage(ctx, p.topicPrefix, e)
	if err != nil {
		return err
	}
	select {
	case <-p.stop:
		return errors.New("publisher closed")
	default:
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		return fmt.Errorf("%s: %w", msg.Topic, ErrQueueFull)
	}
}

func (p *KafkaPublisher) run() {
	defer close(p.done)
	for {
		select {
		case msg := <-p.queue:
			p.write(context.Background(), msg)
		case <-p.stop:
			ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
			defer cancel()
			for {
				select {
				case msg := <-p.queue:
					p.write(ctx, msg)
				default:
					return
				}
			}
		}
	}
}

func (p *KafkaPublisher) write(parent context.Context, msg kafka.Message) {
	ctx, cancel := context.WithTimeout(parent, p.writeTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Warn("event write failed",
			slog.String("topic", msg.Topic),
			slog.String("event_id", headerValue(msg, "event_id")),
			slog.Any("err", err),
		)
	}
}

// Close flushes what is queued, within a bounded time, and closes the writer.
func (p *KafkaPublisher) Close() error {
	p.closeOnce.Do(func() { close(p.stop) })
	<-p.done
	return p.writer.Close()
}

func NewMessage(ctx context.Context, topicPrefix string, e Event) (kafka.Message, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Topic: topicPrefix + string(e.Type),
		Key:   []byte(e.ProviderID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(e.ID)},
			{Key: "event_type", Value: []byte(e.Type)},
		},
	}
	msg.Headers = injectTraceHeaders(ctx, msg.Headers)
	return msg, nil
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func headerValue(msg kafka.Message, key string) string {
	return (&headerCarrier{headers: msg.Headers}).Get(key)
}

func injectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &headerCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)
