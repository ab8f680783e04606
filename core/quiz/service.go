package quiz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/tutor"
	"github.com/Marwebofficial/studio-sub000/core/usage"
	"github.com/Marwebofficial/studio-sub000/core/user"
)

const (
	instruction = "You write multiple-choice quizzes for students. " +
		"Reply with a single JSON document matching the given JSON schema and nothing else: no prose, no markdown."
	maxAttempts = 2
)

var (
	ErrInvalidQuiz = errors.New("the generated quiz is invalid")

	quizSchema = tutor.MustReflectSchema[Quiz]()
)

type (
	Service interface {
		Generate(ctx context.Context, usr user.User, req Request) (Quiz, error)
	}

	service struct {
		engine tutor.Engine
		usage  usage.Recorder
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(engine tutor.Engine, recorder usage.Recorder, logger core.Logger) Service {
	return &service{engine: engine, usage: recorder, logger: logger}
}

// Generate asks the engine for a quiz on req.Topic. Invalid quizzes are asked again once.
func (svc *service) Generate(ctx context.Context, usr user.User, req Request) (Quiz, error) {
	req.Topic = core.CleanString(req.Topic)
	if req.Questions == 0 {
		req.Questions = defaultQuestions
	}
	if req.Difficulty == "" {
		req.Difficulty = defaultDifficulty
	}

	var (
		err    error
		tokens usage.Tokens // rejected attempts count too
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var (
			qz   Quiz
			used tutor.Usage
		)
		qz, used, err = svc.generate(ctx, req)
		tokens = tokens.Add(usage.Tokens{Input: used.InputTokens, Output: used.OutputTokens})
		if err == nil {
			svc.usage.Record(ctx, usr.ID, usage.KindQuiz, tokens)
			return qz, nil
		}
		if errors.Cause(err) != ErrInvalidQuiz {
			return Quiz{}, err
		}
		svc.logger.Warn(fmt.Sprintf("quiz on %q, attempt %d: %v", req.Topic, attempt, err))
	}
	return Quiz{}, err
}

func (svc *service) generate(ctx context.Context, req Request) (Quiz, tutor.Usage, error) {
	gen, err := svc.engine.Generate(ctx, tutor.Request{
		Prompt: prompt(req),
		System: instruction,
		JSON:   true,
	})
	if err != nil {
		return Quiz{}, tutor.Usage{}, errors.Wrap(err, "starting generation")
	}
	text, res, err := tutor.Collect(ctx, gen)
	if err != nil {
		return Quiz{}, res.Usage, errors.Wrap(err, "generating quiz")
	}
	qz, err := parse(text, req)
	return qz, res.Usage, err
}

func prompt(req Request) string {
	return fmt.Sprintf(
		"Write a %s quiz of %d questions about: %s\n\nJSON schema:\n%s",
		req.Difficulty, req.Questions, req.Topic, quizSchema.JSON(),
	)
}

// parse decodes and checks the generated text.
func parse(text string, req Request) (Quiz, error) {
	raw := json.RawMessage(stripFences(text))
	if err := quizSchema.Validate(raw); err != nil {
		return Quiz{}, errors.Wrap(ErrInvalidQuiz, err.Error())
	}

	var qz Quiz
	if err := json.Unmarshal(raw, &qz); err != nil {
		return Quiz{}, errors.Wrap(ErrInvalidQuiz, err.Error())
	}
	for i, q := range qz.Questions {
		if q.Answer >= len(q.Options) {
			return Quiz{}, errors.Wrap(ErrInvalidQuiz, fmt.Sprintf("question %d: answer %d out of range", i+1, q.Answer))
		}
	}
	if len(qz.Questions) > req.Questions {
		qz.Questions = qz.Questions[:req.Questions]
	}
	qz.Topic = req.Topic
	qz.Difficulty = req.Difficulty
	return qz, nil
}

// stripFences removes the markdown code fence models like to wrap JSON in.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:] // drop the language tag
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "```"))
}
