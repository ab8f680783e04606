package tutor

import (
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// ErrGenerationClosed is returned to a producer whose consumer closed the generation.
var ErrGenerationClosed = errors.New("generation closed")

// Pipe hands text fragments from a producer goroutine to a single consumer.
// Emit and Finish must be called from the producing goroutine; Finish must be called exactly once
// when production ends. The hand-off is unbuffered: a fragment is only produced once the previous
// one has been taken.
type Pipe struct {
	frags    chan string
	finished chan struct{}
	closed   chan struct{}
	cancel   context.CancelFunc

	result Result
	err    error

	finishOnce sync.Once
	closeOnce  sync.Once
}

var _ Generation = (*Pipe)(nil)

// NewPipe returns a Pipe; cancel (optional) is called when the consumer closes the generation.
func NewPipe(cancel context.CancelFunc) *Pipe {
	return &Pipe{
		frags:    make(chan string),
		finished: make(chan struct{}),
		closed:   make(chan struct{}),
		cancel:   cancel,
	}
}

// Emit delivers frag to the consumer, blocking until it is taken.
func (p *Pipe) Emit(ctx context.Context, frag string) error {
	select {
	case p.frags <- frag:
		return nil
	case <-p.closed:
		return ErrGenerationClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Finish ends the generation with its final result or error.
func (p *Pipe) Finish(res Result, err error) {
	p.finishOnce.Do(func() {
		p.result, p.err = res, err
		close(p.finished)
		close(p.frags)
	})
}

func (p *Pipe) Next(ctx context.Context) (string, error) {
	select {
	case frag, ok := <-p.frags:
		if !ok {
			if p.err != nil {
				return "", p.err
			}
			return "", io.EOF
		}
		return frag, nil
	case <-p.closed:
		return "", ErrGenerationClosed
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (p *Pipe) Result(ctx context.Context) (Result, error) {
	select {
	case <-p.finished:
		return p.result, p.err
	default:
	}

	select {
	case <-p.finished:
		return p.result, p.err
	case <-p.closed:
		return Result{}, ErrGenerationClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (p *Pipe) Close() error {
	p.closeOnce.Do(func() {
		close(p.closed)
		if p.cancel != nil {
			p.cancel()
		}
	})
	return nil
}
