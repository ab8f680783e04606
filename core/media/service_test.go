package media_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marwebofficial/studio-sub000/core/media"
	"github.com/Marwebofficial/studio-sub000/core/usage"
	"github.com/Marwebofficial/studio-sub000/core/user"
	"github.com/Marwebofficial/studio-sub000/storage/database/inmem"
	"github.com/Marwebofficial/studio-sub000/tests"
)

type fakeGenerator struct {
	prompts []string
	err     error
}

func (g *fakeGenerator) Image(_ context.Context, prompt string) (media.Media, error) {
	g.prompts = append(g.prompts, prompt)
	return media.Media{Data: []byte("png"), ContentType: "image/png"}, g.err
}

func (g *fakeGenerator) Speech(_ context.Context, text string) (media.Media, error) {
	g.prompts = append(g.prompts, text)
	return media.Media{Data: []byte("mp3"), ContentType: "audio/mpeg"}, g.err
}

func TestService(t *testing.T) {
	ctx := context.Background()
	logger := testutil.NewLogger()
	usageSvc := usage.NewService(inmemdb.NewUsageRepository(inmemdb.Open()), logger)
	gen := new(fakeGenerator)
	svc := media.NewService(gen, usageSvc, logger)
	usr := user.User{ID: "u1"}

	img, err := svc.Image(ctx, usr, media.ImageRequest{Prompt: " a red cat "})
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.ContentType)

	speech, err := svc.Speech(ctx, usr, media.SpeechRequest{Text: "Hello"})
	require.NoError(t, err)
	assert.Equal(t, []byte("mp3"), speech.Data)
	assert.Equal(t, []string{"a red cat", "Hello"}, gen.prompts)

	gen.err = errors.New("content policy")
	_, err = svc.Image(ctx, usr, media.ImageRequest{Prompt: "x"})
	assert.Equal(t, gen.err, errors.Cause(err))

	dash, err := usageSvc.Dashboard(ctx, usage.Range{})
	require.NoError(t, err)
	assert.Equal(t, 1, dash.Totals[usage.KindImage])
	assert.Equal(t, 1, dash.Totals[usage.KindSpeech])
}

func TestService_NotConfigured(t *testing.T) {
	logger := testutil.NewLogger()
	svc := media.NewService(nil, usage.NewService(inmemdb.NewUsageRepository(inmemdb.Open()), logger), logger)

	_, err := svc.Image(context.Background(), user.User{}, media.ImageRequest{Prompt: "x"})
	assert.Equal(t, media.ErrNotConfigured, err)
	_, err = svc.Speech(context.Background(), user.User{}, media.SpeechRequest{Text: "x"})
	assert.Equal(t, media.ErrNotConfigured, err)
}
