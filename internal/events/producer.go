package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/segmentio/kafka-go"
)

var (
	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("events: producer closed")
	// ErrBufferFull is returned when the inbox cannot take another message.
	ErrBufferFull = errors.New("events: producer buffer full")
)

// Writer is the part of *kafka.Writer the producer uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config describes the Kafka target.
type Config struct {
	Brokers []string
	Topic   string
	// Service names the producer in envelopes.
	Service string
	Buffer  int
	Logger  *slog.Logger
}

// Producer hands messages to a single writer goroutine through a buffered
// inbox so request handlers never wait on the broker. A nil *Producer
// accepts and drops every event.
type Producer struct {
	w       Writer
	service string
	logger  *slog.Logger
	inbox   chan kafka.Message
	closed  chan struct{}

	mu      sync.RWMutex
	closing bool
	once    sync.Once
}

// NewProducer builds a producer for cfg, or nil when no brokers are set.
func NewProducer(cfg Config) *Producer {
	if len(cfg.Brokers) == 0 {
		return nil
	}
	return newProducer(&kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
	}, cfg)
}

func newProducer(w Writer, cfg Config) *Producer {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Service == "" {
		cfg.Service = "kasir-api"
	}
	return &Producer{
		w:       w,
		service: cfg.Service,
		logger:  cfg.Logger.With(slog.String("component", "events")),
		inbox:   make(chan kafka.Message, cfg.Buffer),
		closed:  make(chan struct{}),
	}
}

// Start runs the writer loop until Close or ctx ends. Buffered messages are
// flushed before the writer closes.
func (p *Producer) Start(ctx context.Context) {
	if p == nil {
		return
	}
	go func() {
		defer close(p.closed)
		for {
			select {
			case <-ctx.Done():
				p.shutdown()
				for m := range p.inbox {
					p.write(m)
				}
				p.closeWriter()
				return
			case m, ok := <-p.inbox:
				if !ok {
					p.closeWriter()
					return
				}
				p.write(m)
			}
		}
	}()
}

// Publish queues an event keyed by key. It never blocks.
func (p *Producer) Publish(ctx context.Context, eventType, key string, payload any) error {
	if p == nil {
		return nil
	}
	env, err := NewEnvelope(eventType, p.service, key, payload, time.Now())
	if err != nil {
		return err
	}
	env.TraceID = middleware.GetReqID(ctx)
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(eventType)},
			{Key: "x-event-version", Value: []byte(strconv.Itoa(Version))},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closing {
		return ErrClosed
	}
	select {
	case p.inbox <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting events. Call WaitClosed to wait for the flush.
func (p *Producer) Close() {
	if p == nil {
		return
	}
	p.shutdown()
}

// WaitClosed blocks until the writer loop has exited.
func (p *Producer) WaitClosed() {
	if p == nil {
		return
	}
	<-p.closed
}

func (p *Producer) shutdown() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closing = true
		close(p.inbox)
		p.mu.Unlock()
	})
}

func (p *Producer) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.logger.Error("publish event", slog.String("key", string(m.Key)), slog.Any("error", err))
	}
}

func (p *Producer) closeWriter() {
	if err := p.w.Close(); err != nil {
		p.logger.Warn("close kafka writer", slog.Any("error", err))
	}
}
