// Package media generates images and speech for students.
package media

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/usage"
	"github.com/Marwebofficial/studio-sub000/core/user"
)

var ErrNotConfigured = errors.New("media generation is not configured")

type (
	// Generator is implemented by media generation providers.
	Generator interface {
		Image(ctx context.Context, prompt string) (Media, error)
		Speech(ctx context.Context, text string) (Media, error)
	}

	Media struct {
		Data        []byte
		ContentType string
	}

	ImageRequest struct {
		Prompt string `json:"prompt" validate:"required,notblank,max=1000"`
	}

	SpeechRequest struct {
		Text string `json:"text" validate:"required,notblank,max=4096"`
	}

	Service interface {
		Image(ctx context.Context, usr user.User, req ImageRequest) (Media, error)
		Speech(ctx context.Context, usr user.User, req SpeechRequest) (Media, error)
	}

	service struct {
		gen    Generator
		usage  usage.Recorder
		logger core.Logger
	}
)

var _ Service = (*service)(nil)

func (r ImageRequest) Validate(validate *validator.Validate) error  { return validate.Struct(r) }
func (r SpeechRequest) Validate(validate *validator.Validate) error { return validate.Struct(r) }

// NewService returns a media Service. gen may be nil, every call then fails with ErrNotConfigured.
func NewService(gen Generator, recorder usage.Recorder, logger core.Logger) Service {
	return &service{gen: gen, usage: recorder, logger: logger}
}

func (svc *service) Image(ctx context.Context, usr user.User, req ImageRequest) (Media, error) {
	if svc.gen == nil {
		return Media{}, ErrNotConfigured
	}
	m, err := svc.gen.Image(ctx, core.CleanString(req.Prompt))
	if err != nil {
		return Media{}, errors.Wrap(err, "generating image")
	}
	svc.usage.Record(ctx, usr.ID, usage.KindImage, usage.Tokens{})
	return m, nil
}

func (svc *service) Speech(ctx context.Context, usr user.User, req SpeechRequest) (Media, error) {
	if svc.gen == nil {
		return Media{}, ErrNotConfigured
	}
	m, err := svc.gen.Speech(ctx, core.CleanString(req.Text))
	if err != nil {
		return Media{}, errors.Wrap(err, "generating speech")
	}
	svc.usage.Record(ctx, usr.ID, usage.KindSpeech, usage.Tokens{})
	return m, nil
}
