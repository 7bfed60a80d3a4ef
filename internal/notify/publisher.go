// Package notify delivers transition events to the audit log and external notifiers.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/observability"
	"solana-autolink/internal/storage"
)

// Publisher receives committed transition events.
type Publisher interface {
	Publish(ctx context.Context, e *domain.TransitionEvent) error
}

// Named is implemented by publishers that report a metrics label.
type Named interface {
	Name() string
}

// Nop discards events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, *domain.TransitionEvent) error { return nil }

// Fanout delivers every event to all publishers. A failing publisher does not
// stop delivery to the others; errors are joined.
type Fanout struct {
	publishers []Publisher
	logger     *zap.Logger
}

// NewFanout creates a fan-out publisher. Nil publishers are dropped.
func NewFanout(logger *zap.Logger, publishers ...Publisher) *Fanout {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fanout{logger: logger}
	for _, p := range publishers {
		if p != nil {
			f.publishers = append(f.publishers, p)
		}
	}
	return f
}

// Publish implements Publisher.
func (f *Fanout) Publish(ctx context.Context, e *domain.TransitionEvent) error {
	var errs []error
	for _, p := range f.publishers {
		err := p.Publish(ctx, e)
		observability.RecordEventPublished(nameOf(p), err)
		if err != nil {
			f.logger.Warn("publish transition event",
				zap.String("publisher", nameOf(p)),
				zap.String("event_id", e.EventID),
				zap.String("observation_id", e.ObservationID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", nameOf(p), err))
		}
	}
	return errors.Join(errs...)
}

// AuditLog appends every event to a transition log store.
type AuditLog struct {
	store storage.TransitionLogStore
}

// NewAuditLog creates an audit log publisher.
func NewAuditLog(store storage.TransitionLogStore) *AuditLog {
	return &AuditLog{store: store}
}

// Name implements Named.
func (a *AuditLog) Name() string { return "audit" }

// Publish implements Publisher. Re-delivery of the same event id is ignored.
func (a *AuditLog) Publish(ctx context.Context, e *domain.TransitionEvent) error {
	err := a.store.Insert(ctx, e)
	if errors.Is(err, storage.ErrDuplicateKey) {
		return nil
	}
	return err
}

func nameOf(p Publisher) string {
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", p)
}
