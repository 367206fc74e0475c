package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YaganovValera/market-stream/common/logger"
)

var errFlaky = errors.New("flaky")

func TestExecute_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), Config{InitialInterval: time.Millisecond, Constant: true}, logger.NewNop(),
		func(context.Context) error {
			calls++
			if calls < 3 {
				return errFlaky
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecute_MaxRetries(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), Config{InitialInterval: time.Millisecond, Constant: true, MaxRetries: 2}, logger.NewNop(),
		func(context.Context) error {
			calls++
			return errFlaky
		})
	var maxErr *ErrMaxRetries
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 3, maxErr.Attempts)
	assert.ErrorIs(t, err, errFlaky)
}

func TestExecute_PermanentReturnsInnerError(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), Config{InitialInterval: time.Millisecond}, logger.NewNop(),
		func(context.Context) error {
			calls++
			return Permanent(errFlaky)
		})
	assert.Equal(t, errFlaky, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteNotify_ReportsDelay(t *testing.T) {
	var delays []time.Duration
	calls := 0
	err := ExecuteNotify(context.Background(), Config{InitialInterval: 2 * time.Millisecond, Constant: true}, logger.NewNop(),
		func(context.Context) error {
			calls++
			if calls == 1 {
				return errFlaky
			}
			return nil
		},
		func(_ error, d time.Duration, _ int) { delays = append(delays, d) })
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{2 * time.Millisecond}, delays)
}

func TestExecute_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Execute(ctx, Config{InitialInterval: time.Hour, Constant: true}, logger.NewNop(),
		func(context.Context) error {
			cancel()
			return errFlaky
		})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestValidate(t *testing.T) {
	cfg := Config{RandomizationFactor: 2}
	cfg.applyDefaults()
	assert.Error(t, cfg.validate())
}

func TestPolicy(t *testing.T) {
	p := Config{InitialInterval: 10 * time.Millisecond, Constant: true, MaxRetries: 2}.Policy()
	assert.Equal(t, 10*time.Millisecond, p.NextBackOff())
	assert.Equal(t, 10*time.Millisecond, p.NextBackOff())
	assert.Equal(t, Stop, p.NextBackOff())

	p.Reset()
	assert.Equal(t, 10*time.Millisecond, p.NextBackOff())
}
