package directory

import (
	"context"
	"sync"
	"time"
)

// DefaultDebounce is the keystroke coalescing window used for search inputs.
const DefaultDebounce = 300 * time.Millisecond

// Debouncer coalesces rapid inputs into one lookup. Only the latest input
// reaches deliver: a newer Submit cancels the pending timer and the context of
// any lookup already in flight, and a superseded result is dropped.
//
// deliver runs with the debouncer locked and must not call Submit.
type Debouncer[T any] struct {
	parent  context.Context
	delay   time.Duration
	lookup  func(ctx context.Context, input string) (T, error)
	deliver func(input string, result T, err error)

	mu     sync.Mutex
	gen    uint64
	timer  *time.Timer
	cancel context.CancelFunc
}

func NewDebouncer[T any](
	ctx context.Context,
	delay time.Duration,
	lookup func(ctx context.Context, input string) (T, error),
	deliver func(input string, result T, err error),
) *Debouncer[T] {
	return &Debouncer[T]{
		parent:  ctx,
		delay:   delay,
		lookup:  lookup,
		deliver: deliver,
	}
}

func (d *Debouncer[T]) Submit(input string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.supersede()
	d.gen++
	gen := d.gen

	ctx, cancel := context.WithCancel(d.parent)
	d.cancel = cancel

	d.timer = time.AfterFunc(d.delay, func() {
		res, err := d.lookup(ctx, input)

		d.mu.Lock()
		defer d.mu.Unlock()
		if gen != d.gen || ctx.Err() != nil {
			return
		}
		d.deliver(input, res, err)
	})
}

// Stop drops the pending input and cancels any lookup in flight.
func (d *Debouncer[T]) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.supersede()
	d.gen++
}

func (d *Debouncer[T]) supersede() {
	if d.timer != nil {
		d.timer.Stop()
	}
	if d.cancel != nil {
		d.cancel()
	}
}
