package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/chat"
	"github.com/Marwebofficial/studio-sub000/core/user"
)

type chatApi struct {
	svc      chat.Service
	usrSvc   user.Service
	validate *validator.Validate
	logger   core.Logger
}

func registerChatAPI(
	g *echo.Group,
	jwt, limit echo.MiddlewareFunc,
	svc chat.Service,
	usrSvc user.Service,
	validate *validator.Validate,
	logger core.Logger,
) {
	api := chatApi{svc: svc, usrSvc: usrSvc, validate: validate, logger: logger}

	cg := g.Group("/conversations", jwt)
	cg.GET("", api.list)
	cg.POST("", api.start)
	cg.GET("/:id", api.retrieve)
	cg.PATCH("/:id", api.rename)
	cg.DELETE("/:id", api.destroy)
	cg.POST("/:id/ask", api.ask, limit)
}

func (api *chatApi) list(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	convs, err := api.svc.List(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing conversations")
	}
	if convs == nil {
		convs = []chat.Conversation{}
	}
	return ctx.JSON(http.StatusOK, convs)
}

func (api *chatApi) start(ctx echo.Context) error {
	var data chat.NewConversation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewConversation")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	conv, err := api.svc.Start(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "starting conversation")
	}
	return ctx.JSON(http.StatusCreated, conv)
}

func (api *chatApi) retrieve(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	conv, err := api.svc.Get(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting conversation")
	}
	return ctx.JSON(http.StatusOK, conv)
}

func (api *chatApi) rename(ctx echo.Context) error {
	var data chat.RenameConversation
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RenameConversation")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	conv, err := api.svc.Rename(ctx.Request().Context(), usr, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "renaming conversation")
	}
	return ctx.JSON(http.StatusOK, conv)
}

func (api *chatApi) destroy(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.svc.Delete(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting conversation")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ask streams the answer the same way POST /v1/answers does, and keeps it in the conversation.
func (api *chatApi) ask(ctx echo.Context) error {
	var data chat.Question
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Question")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	out := newHTTPStream(ctx.Response())
	_, err = api.svc.Ask(ctx.Request().Context(), usr, ctx.Param("id"), data.Question, out)
	return finishStream(out, err, api.logger)
}
