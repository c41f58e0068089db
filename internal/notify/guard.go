// Package notify holds the post-commit change receivers and the wrapper
// that keeps a failing receiver from slowing every apply.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"refkb/internal/suggestion/models"
	"refkb/internal/suggestion/ports"
	"refkb/pkg/platform/circuit"
)

// ErrSkipped is returned while the breaker is open and the call never
// reached the wrapped notifier.
var ErrSkipped = errors.New("notifier circuit open")

// Guarded trips a breaker after consecutive notifier failures.
type Guarded struct {
	next    ports.Notifier
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// Guard wraps next with breaker. A nil logger discards transitions.
func Guard(next ports.Notifier, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Guarded{next: next, breaker: breaker, logger: logger}
}

func (g *Guarded) Name() string { return g.next.Name() }

func (g *Guarded) Notify(ctx context.Context, event models.ChangeEvent) error {
	if !g.breaker.Allow() {
		return ErrSkipped
	}
	if err := g.next.Notify(ctx, event); err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "notifier circuit opened",
				"notifier", g.next.Name(),
				"error", err,
			)
		}
		return err
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "notifier circuit closed", "notifier", g.next.Name())
	}
	return nil
}
