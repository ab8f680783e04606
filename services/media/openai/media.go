package openaisvc

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/pkg/errors"

	"github.com/Marwebofficial/studio-sub000/core/media"
)

const (
	defaultImageModel  = "dall-e-3"
	defaultSpeechModel = "tts-1"
	defaultVoice       = "alloy"

	// speech is capped by the API
	maxSpeechBytes = 25 << 20
)

var errNoImage = errors.New("openai: no image in response")

type Config struct {
	APIKey      string
	ImageModel  string
	SpeechModel string
	Voice       string

	// for tests
	BaseURL    string
	HTTPClient *http.Client
}

// Generator creates images and speech with the OpenAI API.
type Generator struct {
	client      openai.Client
	imageModel  string
	speechModel string
	voice       string
}

var _ media.Generator = (*Generator)(nil)

func New(conf Config) (*Generator, error) {
	apiKey := strings.TrimSpace(conf.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai: api key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if conf.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(conf.BaseURL))
	}
	if conf.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(conf.HTTPClient))
	}

	g := &Generator{
		client:      openai.NewClient(opts...),
		imageModel:  conf.ImageModel,
		speechModel: conf.SpeechModel,
		voice:       conf.Voice,
	}
	if g.imageModel == "" {
		g.imageModel = defaultImageModel
	}
	if g.speechModel == "" {
		g.speechModel = defaultSpeechModel
	}
	if g.voice == "" {
		g.voice = defaultVoice
	}
	return g, nil
}

func (g *Generator) Image(ctx context.Context, prompt string) (media.Media, error) {
	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(g.imageModel),
		N:              openai.Int(1),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
	})
	if err != nil {
		return media.Media{}, errors.Wrap(err, "openai image")
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return media.Media{}, errNoImage
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return media.Media{}, errors.Wrap(err, "decoding image")
	}
	return media.Media{Data: data, ContentType: "image/png"}, nil
}

func (g *Generator) Speech(ctx context.Context, text string) (media.Media, error) {
	resp, err := g.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(g.speechModel),
		Voice:          openai.AudioSpeechNewParamsVoice(g.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return media.Media{}, errors.Wrap(err, "openai speech")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSpeechBytes))
	if err != nil {
		return media.Media{}, errors.Wrap(err, "reading speech")
	}
	return media.Media{Data: data, ContentType: "audio/mpeg"}, nil
}
