package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browsermcp/internal/logging"
)

func testCDPSession(tabCtx context.Context) *cdpSession {
	return &cdpSession{
		id:      "test",
		tabCtx:  tabCtx,
		timeout: time.Second,
		logger:  logging.Nop(),
	}
}

func TestActionExceedingBoundIsActionTimeout(t *testing.T) {
	s := testCDPSession(context.Background())

	err := s.withRunContext(context.Background(), 20*time.Millisecond, func(ctx context.Context) error {
		// A hung page load never returns on its own; only the bound ends it.
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrActionTimeout)
	assert.NotErrorIs(t, err, ErrSessionDead, "a slow page is not a dead process")
}

func TestAbandonedActionIsNotATimeout(t *testing.T) {
	s := testCDPSession(context.Background())
	callCtx, cancel := context.WithCancel(context.Background())

	err := s.withRunContext(callCtx, time.Second, func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrActionTimeout,
		"a caller hanging up must not be reported as the page timing out")
}

func TestDeadTabFailsFastAsSessionDead(t *testing.T) {
	tabCtx, cancel := context.WithCancel(context.Background())
	cancel()
	s := testCDPSession(tabCtx)

	ran := false
	err := s.withRunContext(context.Background(), time.Second, func(context.Context) error {
		ran = true
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionDead)
	assert.False(t, ran, "no action runs against a gone process")
}

func TestTabDeathMidActionIsSessionDead(t *testing.T) {
	tabCtx, cancel := context.WithCancel(context.Background())
	s := testCDPSession(tabCtx)

	err := s.withRunContext(context.Background(), time.Second, func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionDead)
	assert.NotErrorIs(t, err, ErrActionTimeout)
}
