package browser

import (
	"context"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"browsermcp/internal/logging"
)

// bootstrapFunc builds a replacement session. Swappable in tests.
type bootstrapFunc func(ctx context.Context) (Session, error)

// Cache holds at most one live session process-wide. Acquire probes the
// cached session before reuse and rebuilds it at most once per call;
// concurrent rebuilds collapse into a single bootstrap.
type Cache struct {
	bootstrap bootstrapFunc
	logger    *logging.Logger
	metrics   *Metrics

	group singleflight.Group

	mu      sync.Mutex
	current Session
	// generation increments on every drop. Bootstrap flights are keyed by
	// it, so a caller that just closed a session never joins a flight that
	// started before the drop and gets handed the session it closed.
	generation uint64
}

// NewCache builds the session cache on top of a bootstrapper.
func NewCache(b *Bootstrapper, logger *logging.Logger, metrics *Metrics) *Cache {
	return newCache(b.Bootstrap, logger, metrics)
}

func newCache(bootstrap bootstrapFunc, logger *logging.Logger, metrics *Metrics) *Cache {
	return &Cache{
		bootstrap: bootstrap,
		logger:    logging.OrNop(logger),
		metrics:   metrics,
	}
}

// Acquire returns the cached session when it passes a liveness probe,
// otherwise terminates the dead process and bootstraps a replacement.
func (c *Cache) Acquire(ctx context.Context) (Session, error) {
	c.mu.Lock()
	if c.current != nil {
		if err := c.current.Probe(ctx); err == nil {
			session := c.current
			c.mu.Unlock()
			return session, nil
		}
		c.logger.Warn("liveness probe failed, replacing session",
			"session_id", c.current.ID())
		c.dropLocked("probe_failure")
	}
	gen := c.generation
	c.mu.Unlock()

	// Collapse concurrent bootstraps: the losers of the race wait for the
	// winner's session instead of launching their own browser.
	v, err, _ := c.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		c.mu.Lock()
		if c.current != nil {
			session := c.current
			c.mu.Unlock()
			return session, nil
		}
		c.mu.Unlock()

		session, err := c.bootstrap(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.current != nil {
			// A later generation already filled the slot while this flight
			// was in the air; keep the established session, terminate ours.
			established := c.current
			c.mu.Unlock()
			_ = session.Close()
			return established, nil
		}
		c.current = session
		c.mu.Unlock()
		return session, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Session), nil
}

// Invalidate proactively discards a session after an action failure so the
// next Acquire bootstraps fresh instead of re-probing a known-bad process.
// A stale handle (already replaced) is ignored.
func (c *Cache) Invalidate(session Session) {
	if session == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == session {
		c.logger.Warn("session invalidated after action failure",
			"session_id", session.ID())
		c.dropLocked("action_failure")
	}
}

// Close terminates any live session. Used on shutdown.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropLocked("shutdown")
}

// dropLocked terminates and forgets the current session. Callers hold mu.
func (c *Cache) dropLocked(reason string) {
	if c.current == nil {
		return
	}
	if err := c.current.Close(); err != nil {
		c.logger.Warn("error closing session", "error", err)
	}
	c.current = nil
	c.generation++
	c.metrics.RecordReplacement(reason)
}
