package echoapi

import (
	"encoding/base64"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Marwebofficial/studio-sub000/core/media"
	"github.com/Marwebofficial/studio-sub000/core/user"
)

type mediaApi struct {
	svc      media.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerMediaAPI(
	g *echo.Group,
	jwt, limit echo.MiddlewareFunc,
	svc media.Service,
	usrSvc user.Service,
	validate *validator.Validate,
) {
	api := mediaApi{svc: svc, usrSvc: usrSvc, validate: validate}

	mg := g.Group("/media", jwt, limit)
	mg.POST("/images", api.image)
	mg.POST("/speech", api.speech)
}

type ImageResponse struct {
	ContentType string `json:"content_type"`
	DataURL     string `json:"data_url"`
}

func (api *mediaApi) image(ctx echo.Context) error {
	var data media.ImageRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ImageRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	img, err := api.svc.Image(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "generating image")
	}
	return ctx.JSON(http.StatusOK, ImageResponse{
		ContentType: img.ContentType,
		DataURL:     "data:" + img.ContentType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
	})
}

func (api *mediaApi) speech(ctx echo.Context) error {
	var data media.SpeechRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SpeechRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	audio, err := api.svc.Speech(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "generating speech")
	}
	return ctx.Blob(http.StatusOK, audio.ContentType, audio.Data)
}
