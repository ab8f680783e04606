package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Marwebofficial/studio-sub000/core/quiz"
	"github.com/Marwebofficial/studio-sub000/core/user"
)

type quizApi struct {
	svc      quiz.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerQuizAPI(
	g *echo.Group,
	jwt, limit echo.MiddlewareFunc,
	svc quiz.Service,
	usrSvc user.Service,
	validate *validator.Validate,
) {
	api := quizApi{svc: svc, usrSvc: usrSvc, validate: validate}
	g.POST("/quizzes", api.generate, jwt, limit)
}

func (api *quizApi) generate(ctx echo.Context) error {
	var data quiz.Request
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to quiz.Request")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	qz, err := api.svc.Generate(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "generating quiz")
	}
	return ctx.JSON(http.StatusOK, qz)
}
