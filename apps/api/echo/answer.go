package echoapi

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/chat"
	"github.com/Marwebofficial/studio-sub000/core/usage"
)

type answerApi struct {
	answerer chat.Answerer
	usage    usage.Recorder
	validate *validator.Validate
	logger   core.Logger
}

func registerAnswerAPI(
	g *echo.Group,
	jwt, limit echo.MiddlewareFunc,
	answerer chat.Answerer,
	recorder usage.Recorder,
	validate *validator.Validate,
	logger core.Logger,
) {
	api := answerApi{answerer: answerer, usage: recorder, validate: validate, logger: logger}
	g.POST("/answers", api.answer, jwt, limit)
}

// answer streams the answer to a standalone question, followed by its sources.
func (api *answerApi) answer(ctx echo.Context) error {
	var data chat.Question
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Question")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	out := newHTTPStream(ctx.Response())
	ans, err := api.answerer.AnswerFromWebSearch(ctx.Request().Context(), data.Question, out)
	// a completed generation counts even when it produced no text
	if err == nil || ans.Text != "" {
		tokens := usage.Tokens{Input: ans.Usage.InputTokens, Output: ans.Usage.OutputTokens}
		api.usage.Record(context.WithoutCancel(ctx.Request().Context()), claims.Subject, usage.KindAnswer, tokens)
	}
	return finishStream(out, err, api.logger)
}
