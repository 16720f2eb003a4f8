package ha

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/VectorBarks/smart-climate-sub001/internal/clock"
)

const (
	defaultWaitInitialDelay = time.Second
	defaultWaitMaxDelay     = 30 * time.Second
)

// EntityWaiter polls entity states until every required entity reports a
// usable value, doubling the delay between polls up to a cap. Used at
// startup so monitoring does not begin while sensors are still initializing
// or restoring from a Home Assistant restart.
type EntityWaiter struct {
	client       HAClient
	clk          clock.Clock
	logger       *zap.Logger
	initialDelay time.Duration
	maxDelay     time.Duration
}

// NewEntityWaiter creates a waiter with the default backoff (1s doubling up
// to 30s). A nil clock gets the real one.
func NewEntityWaiter(client HAClient, clk clock.Clock, logger *zap.Logger) *EntityWaiter {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &EntityWaiter{
		client:       client,
		clk:          clk,
		logger:       logger,
		initialDelay: defaultWaitInitialDelay,
		maxDelay:     defaultWaitMaxDelay,
	}
}

// Wait blocks until every entity is available, the timeout elapses or the
// context is cancelled. Entities that cannot be fetched at all count as
// unavailable; the timeout error names the entities still missing.
func (w *EntityWaiter) Wait(ctx context.Context, entityIDs []string, timeout time.Duration) error {
	deadline := w.clk.Now().Add(timeout)
	delay := w.initialDelay

	for {
		missing := w.missingEntities(entityIDs)
		if len(missing) == 0 {
			return nil
		}

		if !w.clk.Now().Before(deadline) {
			return fmt.Errorf("timed out waiting for entities: %s", strings.Join(missing, ", "))
		}

		w.logger.Debug("Waiting for entities to become available",
			zap.Strings("missing", missing),
			zap.Duration("retry_in", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.clk.After(delay):
		}

		delay *= 2
		if delay > w.maxDelay {
			delay = w.maxDelay
		}
	}
}

func (w *EntityWaiter) missingEntities(entityIDs []string) []string {
	var missing []string
	for _, id := range entityIDs {
		state, err := w.client.GetState(id)
		if err != nil || !state.Available() {
			missing = append(missing, id)
		}
	}
	return missing
}
