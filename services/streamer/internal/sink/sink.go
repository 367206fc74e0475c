// Package sink delivers decoded entities to the next pipeline stage.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/YaganovValera/market-stream/common/model"
)

// Emitter hands one entity to the downstream stage. Implementations
// block rather than buffer when the downstream is slow.
type Emitter interface {
	Emit(ctx context.Context, e *model.Entity) error
}

// LineEmitter writes newline-delimited JSON entities, one Write per line.
type LineEmitter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewLineEmitter wraps w (usually os.Stdout).
func NewLineEmitter(w io.Writer) *LineEmitter {
	return &LineEmitter{w: w}
}

func (l *LineEmitter) Emit(_ context.Context, e *model.Entity) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("sink: encode entity: %w", err)
	}
	b = append(b, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(b); err != nil {
		return fmt.Errorf("sink: write: %w", err)
	}
	return nil
}
