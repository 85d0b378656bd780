package analytics

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/mkalvans/facilitymap/internal/core/observability"
)

// KafkaSink publishes events to a Kafka topic through an async
// producer. A saturated queue drops events rather than blocking.
type KafkaSink struct {
	topic   string
	logger  *slog.Logger
	events  chan Event
	prod    sarama.AsyncProducer
	stopped chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewKafkaSink(brokers []string, topic string, queueSize int, logger *slog.Logger) (*KafkaSink, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("analytics: create async producer: %w", err)
	}
	return newSink(prod, topic, queueSize, logger), nil
}

func newSink(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *KafkaSink {
	if queueSize <= 0 {
		queueSize = 1024
	}
	s := &KafkaSink{
		topic:   topic,
		logger:  logger,
		events:  make(chan Event, queueSize),
		prod:    prod,
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(s.stopped)
		for ev := range s.events {
			if ev.TS.IsZero() {
				ev.TS = time.Now()
			}
			b, err := json.Marshal(ev)
			if err != nil {
				s.logger.Warn("analytics marshal failed", "event", ev.Name, "err", err)
				continue
			}
			s.prod.Input() <- &sarama.ProducerMessage{
				Topic: s.topic,
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range s.prod.Errors() {
			if err != nil {
				s.logger.Warn("analytics producer error", "err", err.Err)
			}
		}
	}()

	return s
}

// Publish enqueues an event, dropping it when the queue is full or the
// sink is already closed. The request path must never wait on
// analytics, and session engines may still settle while the process is
// shutting down.
func (s *KafkaSink) Publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		observability.IncAnalyticsDropped()
		return
	}
	select {
	case s.events <- ev:
	default:
		observability.IncAnalyticsDropped()
	}
}

// Close drains queued events into the producer and shuts it down.
// Idempotent; Publish calls racing Close are dropped, never a panic.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.events)
	s.mu.Unlock()

	<-s.stopped
	if err := s.prod.Close(); err != nil {
		return fmt.Errorf("analytics: close producer: %w", err)
	}
	return nil
}
