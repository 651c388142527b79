// Package engine orchestrates commands end-to-end: optimistic concurrency
// check, pure domain decision, atomic append, then fan-out. One command is
// one atomic unit; on any failure no partial effect is visible.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"taskstream/internal/aggregate"
	"taskstream/internal/eventlog"
	"taskstream/internal/platform/metrics"
	id "taskstream/pkg/domain"
	dErrors "taskstream/pkg/domain-errors"
	"taskstream/pkg/platform/sentinel"
	"taskstream/pkg/requestcontext"
)

// ConflictError reports a stale expected version. It carries the current
// version so the caller can refresh and resubmit; the engine never merges.
type ConflictError struct {
	CurrentVersion uint64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("concurrency conflict: current version is %d", e.CurrentVersion)
}

// Command is the engine-level envelope around a domain command.
type Command struct {
	AggregateType   aggregate.Type
	AggregateID     uuid.UUID
	ExpectedVersion uint64
	Actor           id.UserID
	Payload         aggregate.Command
}

// Result reports a committed command.
type Result struct {
	NewVersion uint64
	Events     []aggregate.Event
}

// Publisher receives committed events. Publish must return once events are
// enqueued for fan-out, not once delivered.
type Publisher interface {
	Publish(events []aggregate.Event)
}

// OpenTaskCounter answers the advisory cross-aggregate archive rule from a
// derived view; nil disables the check.
type OpenTaskCounter interface {
	OpenTasks(projectID id.ProjectID) int
}

// Processor is the command processor. Construct with NewProcessor.
type Processor struct {
	store      eventlog.Store
	publishers []Publisher
	board      OpenTaskCounter
	log        *logrus.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer

	retries   int
	retryBase time.Duration

	guard guard
}

// Option configures a Processor.
type Option func(*Processor)

// WithRetry bounds transparent retries of transient persistence failures.
func WithRetry(attempts int, baseDelay time.Duration) Option {
	return func(p *Processor) {
		p.retries = attempts
		p.retryBase = baseDelay
	}
}

// WithOpenTaskCounter enables the project-archive pre-check.
func WithOpenTaskCounter(board OpenTaskCounter) Option {
	return func(p *Processor) { p.board = board }
}

func NewProcessor(store eventlog.Store, log *logrus.Logger, m *metrics.Metrics, publishers []Publisher, opts ...Option) *Processor {
	p := &Processor{
		store:      store,
		publishers: publishers,
		log:        log,
		metrics:    m,
		tracer:     otel.Tracer("taskstream/engine"),
		retries:    3,
		retryBase:  50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process runs one command to completion. Once accepted it is not cancelled
// by the submitter disconnecting; partial command execution is never valid.
func (p *Processor) Process(ctx context.Context, cmd Command) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "engine.Process",
		trace.WithAttributes(
			attribute.String("aggregate.type", string(cmd.AggregateType)),
			attribute.String("aggregate.id", cmd.AggregateID.String()),
			attribute.String("command.kind", string(cmd.Payload.CommandKind())),
		))
	defer span.End()

	start := time.Now()
	result, err := p.process(ctx, cmd)
	p.metrics.CommandLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		p.observeFailure(cmd, err)
		return nil, err
	}
	p.metrics.CommandsProcessed.WithLabelValues(string(cmd.AggregateType)).Inc()
	return result, nil
}

func (p *Processor) process(ctx context.Context, cmd Command) (*Result, error) {
	if err := p.preValidate(cmd); err != nil {
		return nil, err
	}

	unlock := p.guard.lock(cmd.AggregateID)
	defer unlock()

	history, err := p.readWithRetry(ctx, cmd.AggregateID)
	if err != nil {
		return nil, err
	}
	state := aggregate.Replay(cmd.AggregateType, cmd.AggregateID, history)

	if !state.Exists() && cmd.ExpectedVersion != 0 {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "%s does not exist", cmd.AggregateType)
	}
	if state.Version() != cmd.ExpectedVersion {
		return nil, &ConflictError{CurrentVersion: state.Version()}
	}

	payloads, err := aggregate.Decide(state, cmd.Payload)
	if err != nil {
		return nil, err
	}
	if len(payloads) == 0 {
		// Legal no-op; nothing committed, version unchanged.
		return &Result{NewVersion: state.Version()}, nil
	}

	now := requestcontext.Now(ctx)
	pending := make([]aggregate.Event, len(payloads))
	for i, payload := range payloads {
		pending[i] = aggregate.Event{
			AggregateType: cmd.AggregateType,
			AggregateID:   cmd.AggregateID,
			Kind:          payload.EventKind(),
			Actor:         cmd.Actor,
			OccurredAt:    now,
			Payload:       payload,
		}
	}

	committed, err := p.appendWithRetry(ctx, cmd, pending)
	if err != nil {
		return nil, err
	}

	p.metrics.EventsPublished.Add(float64(len(committed)))
	for _, pub := range p.publishers {
		pub.Publish(committed)
	}

	return &Result{
		NewVersion: committed[len(committed)-1].Seq,
		Events:     committed,
	}, nil
}

// preValidate applies cross-aggregate advisory rules that the target
// aggregate cannot see from its own fold.
func (p *Processor) preValidate(cmd Command) error {
	archive, ok := cmd.Payload.(aggregate.ArchiveProject)
	if !ok || p.board == nil {
		return nil
	}
	if open := p.board.OpenTasks(archive.ProjectID); open > 0 {
		return dErrors.Newf(dErrors.CodeInvariantViolation,
			"project has %d open tasks and cannot be archived", open)
	}
	return nil
}

func (p *Processor) readWithRetry(ctx context.Context, aggregateID uuid.UUID) ([]aggregate.Event, error) {
	var history []aggregate.Event
	err := p.withRetry(ctx, func() error {
		var readErr error
		history, readErr = p.store.ReadFrom(ctx, aggregateID, 0)
		return readErr
	})
	return history, err
}

func (p *Processor) appendWithRetry(ctx context.Context, cmd Command, pending []aggregate.Event) ([]aggregate.Event, error) {
	var committed []aggregate.Event
	err := p.withRetry(ctx, func() error {
		var appendErr error
		committed, appendErr = p.store.AppendEvents(ctx, cmd.AggregateID, cmd.ExpectedVersion, pending)
		return appendErr
	})
	if errors.Is(err, sentinel.ErrVersionConflict) {
		// Another writer (possibly another process sharing the store)
		// advanced the stream while we held only the local guard.
		current, verErr := p.store.LoadCurrentVersion(ctx, cmd.AggregateID)
		if verErr != nil {
			current = cmd.ExpectedVersion
		}
		return nil, &ConflictError{CurrentVersion: current}
	}
	return committed, err
}

// withRetry retries fn on transient store failures with bounded exponential
// backoff. Domain failures pass through untouched.
func (p *Processor) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, sentinel.ErrUnavailable) {
			return err
		}
		if attempt >= p.retries {
			break
		}
		p.metrics.AppendRetries.Inc()
		delay := p.retryBase << attempt
		p.log.WithError(err).WithField("attempt", attempt+1).Warn("event log unavailable, retrying")
		select {
		case <-ctx.Done():
			return dErrors.Wrap(ctx.Err(), dErrors.CodeUnavailable, "command cancelled while retrying")
		case <-time.After(delay):
		}
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "event log unavailable after retries")
}

func (p *Processor) observeFailure(cmd Command, err error) {
	var conflict *ConflictError
	if errors.As(err, &conflict) {
		p.metrics.ConcurrencyConflicts.Inc()
		return
	}
	code := string(dErrors.CodeOf(err))
	p.metrics.CommandsRejected.WithLabelValues(code).Inc()
	p.log.WithError(err).WithFields(logrus.Fields{
		"aggregate_type": cmd.AggregateType,
		"aggregate_id":   cmd.AggregateID,
		"command_kind":   cmd.Payload.CommandKind(),
	}).Debug("command rejected")
}
