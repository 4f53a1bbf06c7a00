// Package pharmacyqueue turns finalized consultations consumed from Redpanda
// into pharmacy tickets. Each visit is enqueued at most once: the idempotency
// inbox is keyed by visit ID, and ticket writes run on a worker pool behind a
// circuit breaker.
package pharmacyqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/homeopms/go-smartrx/internal/domain/consultation"
	"github.com/homeopms/go-smartrx/internal/domain/dispensing"
	"github.com/homeopms/go-smartrx/internal/infrastructure/redpanda"
	"github.com/homeopms/go-smartrx/internal/observability/metrics"
	"github.com/homeopms/go-smartrx/pkg/circuitbreaker"
	"github.com/homeopms/go-smartrx/pkg/idempotency"
	"github.com/homeopms/go-smartrx/pkg/workerpool"
)

// HandlerName identifies this consumer in inbox keys and entries
const HandlerName = "pharmacy-queue"

// ErrMalformedEvent is returned for records that are not a finalized consultation
var ErrMalformedEvent = errors.New("malformed consultation event")

// Publisher sends dead-lettered records
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Config holds the service's collaborators
type Config struct {
	Queue   dispensing.Repository
	Inbox   *idempotency.Inbox
	Breaker *circuitbreaker.CircuitBreaker
	Pool    workerpool.Config
	// DeadLetter, when set, receives records the handler gave up on
	DeadLetter      Publisher
	DeadLetterTopic string
	Metrics         *metrics.Metrics
	Logger          *zap.Logger
}

// Service enqueues pharmacy tickets for finalized consultations
type Service struct {
	queue      dispensing.Repository
	inbox      *idempotency.Inbox
	breaker    *circuitbreaker.CircuitBreaker
	pool       *workerpool.Pool[*consultation.FinalizedData, *dispensing.Ticket]
	deadLetter Publisher
	dlqTopic   string
	metrics    *metrics.Metrics
	logger     *zap.Logger
	tracer     trace.Tracer
}

// New creates the service and its worker pool. Call Start before consuming.
func New(cfg Config) (*Service, error) {
	if cfg.Queue == nil || cfg.Inbox == nil || cfg.Breaker == nil {
		return nil, errors.New("queue, inbox and breaker are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DeadLetterTopic == "" {
		cfg.DeadLetterTopic = redpanda.TopicDeadLetter
	}

	s := &Service{
		queue:      cfg.Queue,
		inbox:      cfg.Inbox,
		breaker:    cfg.Breaker,
		deadLetter: cfg.DeadLetter,
		dlqTopic:   cfg.DeadLetterTopic,
		metrics:    cfg.Metrics,
		logger:     logger,
		tracer:     otel.Tracer("pharmacy-queue"),
	}

	pool, err := workerpool.New(cfg.Pool, s.enqueueTicket, logger)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	s.pool = pool
	return s, nil
}

// Start starts the worker pool
func (s *Service) Start() {
	s.pool.Start()
}

// Stop drains the worker pool
func (s *Service) Stop() error {
	return s.pool.Stop()
}

// Healthy reports whether the worker queue has room and the breaker is closed
func (s *Service) Healthy() bool {
	return s.pool.IsHealthy() && s.breaker.GetState() != circuitbreaker.StateOpen
}

// HandleMessage is the consumer's MessageHandler. Redeliveries of a visit
// already enqueued, or being enqueued elsewhere, are acknowledged without
// side effects.
func (s *Service) HandleMessage(ctx context.Context, msg *redpanda.ConsumedMessage) error {
	var evt consultation.Event
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if evt.EventType != consultation.EventConsultationFinalized {
		s.logger.Debug("ignoring event", zap.String("event_type", string(evt.EventType)))
		return nil
	}
	if evt.AggregateID == "" {
		return fmt.Errorf("%w: missing aggregate id", ErrMalformedEvent)
	}

	ctx, span := s.tracer.Start(ctx, "enqueue_visit",
		trace.WithAttributes(attribute.String("visit_id", evt.AggregateID)))
	defer span.End()

	key := idempotency.GenerateKey(HandlerName, evt.AggregateID)
	res, err := s.inbox.Process(ctx, key, HandlerName, msg.Value, func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
		data, err := consultation.DecodeFinalized(&evt)
		if err != nil {
			return nil, idempotency.Terminal(fmt.Errorf("%w: %v", ErrMalformedEvent, err))
		}
		if data.VisitID == "" {
			data.VisitID = evt.AggregateID
		}

		t, _, err := s.pool.Do(ctx, data.VisitID, data)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]interface{}{"ticket_id": t.ID, "position": t.Position})
	})

	switch {
	case errors.Is(err, idempotency.ErrMessageInProgress), errors.Is(err, idempotency.ErrDuplicateMessage):
		s.logger.Info("visit is being enqueued by another consumer", zap.String("visit_id", evt.AggregateID))
		return nil
	case errors.Is(err, idempotency.ErrPreviouslyFailed):
		s.logger.Warn("visit previously failed, skipping", zap.String("visit_id", evt.AggregateID))
		return nil
	case err != nil:
		span.RecordError(err)
		return err
	}

	if !res.IsNew && !res.WasRecovered {
		span.SetAttributes(attribute.Bool("duplicate", true))
		s.logger.Debug("duplicate visit skipped", zap.String("visit_id", evt.AggregateID))
	}
	return nil
}

// enqueueTicket is the worker function. Retrying against an open breaker
// only burns the retry budget, so that failure is permanent for the pool;
// the inbox still records it as recoverable for the next delivery.
func (s *Service) enqueueTicket(ctx context.Context, data *consultation.FinalizedData) (*dispensing.Ticket, error) {
	t := dispensing.NewTicket(data)
	err := s.breaker.Do(ctx, func(ctx context.Context) error {
		return s.queue.Enqueue(ctx, t)
	})
	if err != nil {
		if circuitbreaker.IsOpen(err) {
			return nil, workerpool.Permanent(err)
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.TicketsEnqueued.Inc()
	}
	s.logger.Info("pharmacy ticket enqueued",
		zap.String("visit_id", t.VisitID),
		zap.String("ticket_id", t.ID),
		zap.String("clinician_id", t.ClinicianID),
		zap.Int("position", t.Position),
	)
	return t, nil
}

// DeadLetter is the consumer's FailureHandler. The record is republished
// unchanged to the dead letter topic, keyed as before.
func (s *Service) DeadLetter(ctx context.Context, msg *redpanda.ConsumedMessage, cause error) {
	logger := s.logger.With(
		zap.String("topic", msg.Topic),
		zap.Int32("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
		zap.NamedError("cause", cause),
	)
	if s.deadLetter == nil {
		logger.Error("dropping failed record, no dead letter publisher")
		return
	}
	if err := s.deadLetter.Publish(ctx, s.dlqTopic, string(msg.Key), msg.Value); err != nil {
		logger.Error("failed to dead-letter record", zap.Error(err))
		return
	}
	logger.Warn("record dead-lettered", zap.String("dead_letter_topic", s.dlqTopic))
}
