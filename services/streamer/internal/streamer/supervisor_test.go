package streamer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/YaganovValera/market-stream/common/logger"
)

type scriptedSession struct {
	results []error
	calls   int
	onCall  func(n int)
}

func (s *scriptedSession) Stream(context.Context) error {
	s.calls++
	if s.onCall != nil {
		s.onCall(s.calls)
	}
	if s.calls <= len(s.results) {
		return s.results[s.calls-1]
	}
	return ErrConnectionClosed
}

func TestSupervise_RetriesOnlyConnectionClosed(t *testing.T) {
	fatal := errors.New("unexpected")
	s := &scriptedSession{results: []error{
		fmt.Errorf("%w: read: EOF", ErrConnectionClosed),
		ErrConnectionClosed,
		fatal,
	}}

	start := time.Now()
	err := Supervise(context.Background(), s, 10*time.Millisecond, logger.NewNop())
	assert.Equal(t, fatal, err)
	assert.Equal(t, 3, s.calls)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond, "waits between attempts")
}

func TestSupervise_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &scriptedSession{onCall: func(n int) {
		if n == 2 {
			cancel()
		}
	}}

	err := Supervise(ctx, s, time.Millisecond, logger.NewNop())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, s.calls)
}

func TestSupervise_CancelDuringDelay(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	s := &scriptedSession{}

	start := time.Now()
	err := Supervise(ctx, s, time.Hour, logger.NewNop())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, s.calls)
	assert.Less(t, time.Since(start), 5*time.Second)
}
