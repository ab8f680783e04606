package tutor

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"github.com/Marwebofficial/studio-sub000/core"
)

// SearchInstruction is the system instruction sent along with every web search question.
const SearchInstruction = "You are a patient tutor. Answer the student's question clearly and accurately. " +
	"When the question is about recent events, current data or anything you are not certain about, " +
	"call the search tool first and base your answer on what it finds. " +
	"Do not list the URLs in your answer, they are shown to the student separately."

var (
	ErrEmptyQuestion = errors.New("question is required")
	// ErrConsumerGone is returned when the output stream stopped accepting frames.
	ErrConsumerGone = errors.New("consumer gone")
)

// State is a step of a relay run.
type State int

const (
	StateStreaming State = iota
	StateDraining
	StateTrailer
	StateDone
	StateAborted
	StateClosed
)

var stateNames = [...]string{"STREAMING", "DRAINING", "TRAILER", "DONE", "ABORTED", "CLOSED"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Answer is what a relay run forwarded to its consumer.
type Answer struct {
	Text    string
	Sources []string
	Usage   Usage
}

// Relay streams answers to web-search-augmented questions.
type Relay struct {
	engine Engine
	search *SearchTool
	logger core.Logger

	// OnTransition, when set, observes every state change of every run.
	OnTransition func(from, to State)
}

func NewRelay(engine Engine, search SearchProvider, logger core.Logger) *Relay {
	return &Relay{engine: engine, search: NewSearchTool(search), logger: logger}
}

// AnswerFromWebSearch generates the answer to question and relays it to out as it is produced.
// Text fragments are written as they arrive. Once the text is exhausted, the sources found by the
// search tool are written as one trailer frame (Delimiter + JSON array), if there are any.
// out is closed exactly once whatever happens; on failure it is aborted first and no trailer is written.
func (r *Relay) AnswerFromWebSearch(ctx context.Context, question string, out Stream) (Answer, error) {
	run := &relayRun{relay: r, out: out}
	return run.answer(ctx, question)
}

type relayRun struct {
	relay *Relay
	out   Stream
	state State
	text  strings.Builder
}

func (run *relayRun) transition(to State) {
	from := run.state
	run.state = to
	if run.relay.OnTransition != nil {
		run.relay.OnTransition(from, to)
	}
}

func (run *relayRun) answer(ctx context.Context, question string) (Answer, error) {
	defer run.close()

	question = strings.TrimSpace(question)
	if question == "" {
		err := core.NewValidationError(ErrEmptyQuestion, core.FieldError{Field: "question", Error: ErrEmptyQuestion.Error()})
		run.abort(err)
		return Answer{}, err
	}

	gen, err := run.relay.engine.Generate(ctx, Request{
		Prompt: "Question: " + question,
		System: SearchInstruction,
		Tools:  []Tool{run.relay.search},
	})
	if err != nil {
		return run.fail(errors.Wrap(err, "starting generation"))
	}
	defer func() { _ = gen.Close() }()

	// STREAMING
	for {
		frag, err := gen.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return run.fail(errors.Wrap(err, "generating answer"))
		}
		if frag = sanitizeFragment(frag); frag == "" {
			continue
		}
		if err = run.out.Write([]byte(frag)); err != nil {
			return run.gone(err)
		}
		run.text.WriteString(frag)
	}

	// DRAINING
	run.transition(StateDraining)
	res, err := gen.Result(ctx)
	if err != nil {
		return run.fail(errors.Wrap(err, "awaiting generation result"))
	}

	ans := Answer{Text: run.text.String(), Sources: CollectSources(res.Invocations), Usage: res.Usage}
	if len(ans.Sources) == 0 {
		run.transition(StateDone)
		return ans, nil
	}

	// TRAILER
	run.transition(StateTrailer)
	frame, err := EncodeTrailer(ans.Sources)
	if err != nil {
		return run.fail(err)
	}
	if err = run.out.Write(frame); err != nil {
		return run.gone(err)
	}
	run.transition(StateDone)
	return ans, nil
}

func (run *relayRun) abort(err error) {
	run.transition(StateAborted)
	run.out.Abort(err)
}

// fail logs err and aborts the stream.
func (run *relayRun) fail(err error) (Answer, error) {
	run.relay.logger.Error(fmt.Sprintf("relaying answer: %v", err), err)
	run.abort(err)
	return Answer{Text: run.text.String()}, err
}

// gone stops relaying to a consumer that went away. There is no one left to abort.
func (run *relayRun) gone(err error) (Answer, error) {
	run.relay.logger.Warn(fmt.Sprintf("relaying answer: consumer gone: %v", err))
	run.transition(StateAborted)
	return Answer{Text: run.text.String()}, errors.Wrap(ErrConsumerGone, err.Error())
}

func (run *relayRun) close() {
	if err := run.out.Close(); err != nil {
		run.relay.logger.Warn(fmt.Sprintf("closing answer stream: %v", err))
	}
	run.transition(StateClosed)
}
