package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/Marwebofficial/studio-sub000/core/tutor"
)

// Step is one move of a scripted generation: a text fragment, a tool call or a stall.
type Step struct {
	Text      string
	Tool      string
	ToolInput string
	// Stall holds the generation until its context is cancelled.
	Stall bool
}

// Text returns one text step per fragment.
func Text(frags ...string) []Step {
	steps := make([]Step, 0, len(frags))
	for _, frag := range frags {
		steps = append(steps, Step{Text: frag})
	}
	return steps
}

// Stall returns a step holding the generation until it is cancelled.
func Stall() Step {
	return Step{Stall: true}
}

// SearchCall returns a step calling the search tool with query.
func SearchCall(query string) Step {
	input, _ := json.Marshal(tutor.SearchInput{Query: query})
	return Step{Tool: tutor.SearchToolName, ToolInput: string(input)}
}

// Engine is a scripted tutor.Engine. Tool calls are run against the request tools, like a real engine would.
type Engine struct {
	Steps []Step
	// Err ends the generation after every step has been played.
	Err error
	// StartErr fails Generate itself.
	StartErr error
	Usage    tutor.Usage

	mu       sync.Mutex
	requests []tutor.Request
	closed   int
	stopped  bool
}

var _ tutor.Engine = (*Engine)(nil)

func NewEngine(steps ...Step) *Engine {
	return &Engine{Steps: steps}
}

func (e *Engine) Generate(ctx context.Context, req tutor.Request) (tutor.Generation, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()
	if e.StartErr != nil {
		return nil, e.StartErr
	}

	ctx, cancel := context.WithCancel(ctx)
	pipe := tutor.NewPipe(func() {
		cancel()
		e.mu.Lock()
		e.closed++
		e.mu.Unlock()
	})
	go e.play(ctx, pipe, req)
	return pipe, nil
}

func (e *Engine) play(ctx context.Context, pipe *tutor.Pipe, req tutor.Request) {
	var res tutor.Result
	for i, step := range e.Steps {
		if step.Stall {
			<-ctx.Done()
			e.mu.Lock()
			e.stopped = true
			e.mu.Unlock()
			pipe.Finish(tutor.Result{}, ctx.Err())
			return
		}
		if step.Tool != "" {
			id := fmt.Sprintf("call_%d", i)
			res.Invocations = append(res.Invocations, tutor.InvokeTool(ctx, req.Tools, id, step.Tool, json.RawMessage(step.ToolInput)))
			continue
		}
		if err := pipe.Emit(ctx, step.Text); err != nil {
			e.mu.Lock()
			e.stopped = true
			e.mu.Unlock()
			pipe.Finish(tutor.Result{}, err)
			return
		}
	}
	res.Usage = e.Usage
	pipe.Finish(res, e.Err)
}

// Requests returns the requests the engine received.
func (e *Engine) Requests() []tutor.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]tutor.Request(nil), e.requests...)
}

// Closed returns how many generations were closed by their consumer.
func (e *Engine) Closed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Stopped reports whether a generation was stopped before playing all its steps.
func (e *Engine) Stopped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopped
}

// Search is a tutor.SearchProvider returning canned results per query.
type Search struct {
	Results map[string][]string
	Err     error

	mu      sync.Mutex
	queries []string
}

var _ tutor.SearchProvider = (*Search)(nil)

func NewSearch(results map[string][]string) *Search {
	return &Search{Results: results}
}

func (s *Search) Search(_ context.Context, query string) ([]string, error) {
	s.mu.Lock()
	s.queries = append(s.queries, query)
	s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Results[query], nil
}

func (s *Search) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// Stream is a tutor.Stream recording every call made on it.
type Stream struct {
	// FailAfter makes every Write after the first FailAfter ones fail. Negative: never fail.
	FailAfter int

	mu       sync.Mutex
	frames   [][]byte
	events   []string
	abortErr error
	closes   int
}

var (
	_ tutor.Stream = (*Stream)(nil)

	ErrStreamGone = errors.New("stream gone")
)

func NewStream() *Stream {
	return &Stream{FailAfter: -1}
}

func (s *Stream) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closes > 0 {
		return errors.New("write on closed stream")
	}
	if s.FailAfter >= 0 && len(s.frames) >= s.FailAfter {
		s.events = append(s.events, "write-failed")
		return ErrStreamGone
	}
	s.frames = append(s.frames, append([]byte(nil), p...))
	s.events = append(s.events, "write")
	return nil
}

func (s *Stream) Abort(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abortErr = err
	s.events = append(s.events, "abort")
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.events = append(s.events, "close")
	return nil
}

// Frames returns the written frames as strings.
func (s *Stream) Frames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames := make([]string, 0, len(s.frames))
	for _, f := range s.frames {
		frames = append(frames, string(f))
	}
	return frames
}

// Payload returns every written byte, in order.
func (s *Stream) Payload() string {
	return strings.Join(s.Frames(), "")
}

// Events returns the sequence of write, abort and close calls.
func (s *Stream) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

func (s *Stream) AbortErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abortErr
}

func (s *Stream) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}
