package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Marwebofficial/studio-sub000/core/usage"
)

func registerDashboardAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc usage.Service) {
	g.GET("/dashboard", func(ctx echo.Context) error {
		rng, err := bindRange(ctx)
		if err != nil {
			return err
		}
		dash, err := svc.Dashboard(ctx.Request().Context(), rng)
		if err != nil {
			return errors.Wrap(err, "building usage dashboard")
		}
		return ctx.JSON(http.StatusOK, dash)
	}, jwt, adminMiddleware())
}
