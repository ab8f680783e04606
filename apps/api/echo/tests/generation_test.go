package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/Marwebofficial/studio-sub000/apps/api/echo"
	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/media"
	"github.com/Marwebofficial/studio-sub000/core/quiz"
	"github.com/Marwebofficial/studio-sub000/core/usage"
	"github.com/Marwebofficial/studio-sub000/core/user"
	"github.com/Marwebofficial/studio-sub000/tests"
)

const validQuiz = `{
  "topic": "maths",
  "difficulty": "hard",
  "questions": [
    {"question": "2+2?", "options": ["3", "4"], "answer": 1, "explanation": "Basic sum."},
    {"question": "3*3?", "options": ["6", "9", "12"], "answer": 1}
  ]
}`

func Test_quizApi(t *testing.T) {
	tests := []struct {
		httpTest
		steps []testutil.Step
		check func(t *testing.T, env *testEnv, body []byte)
	}{
		{
			httpTest: httpTest{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		},
		{
			httpTest: httpTest{
				name: "topic required", body: []byte(`{"questions":3}`), wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"topic": "this field is required"}),
			},
		},
		{
			httpTest: httpTest{name: "bad difficulty", body: []byte(`{"topic":"maths","difficulty":"insane"}`), wantCode: http.StatusBadRequest},
		},
		{
			httpTest: httpTest{name: "too many questions", body: []byte(`{"topic":"maths","questions":11}`), wantCode: http.StatusBadRequest},
		},
		{
			httpTest: httpTest{
				name: "invalid quiz", body: []byte(`{"topic":"maths"}`), wantCode: http.StatusBadGateway,
				wantData: marchallObj(t, httpErr{Error: "the generated content was invalid, please retry"}),
			},
			steps: testutil.Text("Sure! Here is your quiz."),
			check: func(t *testing.T, env *testEnv, _ []byte) {
				assert.Len(t, env.quizEngine.Requests(), 2)
				assert.Empty(t, usageEvents(t, env))
			},
		},
		{
			httpTest: httpTest{name: "success", body: []byte(`{"topic":"  arithmetic ","questions":2,"difficulty":"easy"}`), wantCode: http.StatusOK},
			steps:    testutil.Text("```json\n", validQuiz, "\n```"),
			check: func(t *testing.T, env *testEnv, body []byte) {
				var qz quiz.Quiz
				require.NoError(t, json.Unmarshal(body, &qz))
				assert.Equal(t, "arithmetic", qz.Topic)
				assert.Equal(t, quiz.DifficultyEasy, qz.Difficulty)
				require.Len(t, qz.Questions, 2)
				assert.Equal(t, []string{"3", "4"}, qz.Questions[0].Options)
				assert.Equal(t, 1, qz.Questions[0].Answer)

				requests := env.quizEngine.Requests()
				require.Len(t, requests, 1)
				assert.True(t, requests[0].JSON)
				assert.Contains(t, requests[0].Prompt, "easy quiz of 2 questions about: arithmetic")

				events := usageEvents(t, env)
				require.Len(t, events, 1)
				assert.Equal(t, usage.KindQuiz, events[0].Kind)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t)
			env.quizEngine.Steps = tt.steps
			student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
			token := ""
			if tt.wantCode != http.StatusUnauthorized {
				token = getToken(t, student)
			}

			req, rec := newAuthRequest(http.MethodPost, "/v1/quizzes", token, tt.body)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt.httpTest, rec)
			if tt.check != nil {
				tt.check(t, env, rec.Body.Bytes())
			}
		})
	}
}

func Test_mediaApi(t *testing.T) {
	withoutGenerator := func(_ *core.Config, deps *ServerDeps) {
		deps.MediaSvc = media.NewService(nil, deps.UsageSvc, deps.Logger)
	}
	unavailable := marchallObj(t, httpErr{Error: "media generation is not available"})

	tests := []struct {
		httpTest
		opts    []envOption
		genErr  error
		checkFn func(t *testing.T, env *testEnv, rec []byte, contentType string)
	}{
		{
			httpTest: httpTest{name: "image: prompt required", path: "/v1/media/images", wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"prompt": "this field is required"})},
		},
		{
			httpTest: httpTest{name: "image", path: "/v1/media/images", body: []byte(`{"prompt":"a red fox"}`), wantCode: http.StatusOK,
				wantData: marchallObj(t, ImageResponse{ContentType: "image/png", DataURL: "data:image/png;base64,cG5nOmEgcmVkIGZveA=="})},
			checkFn: func(t *testing.T, env *testEnv, _ []byte, _ string) {
				events := usageEvents(t, env)
				require.Len(t, events, 1)
				assert.Equal(t, usage.KindImage, events[0].Kind)
			},
		},
		{
			httpTest: httpTest{name: "image: not configured", path: "/v1/media/images", body: []byte(`{"prompt":"a red fox"}`),
				wantCode: http.StatusServiceUnavailable, wantData: unavailable},
			opts: []envOption{withoutGenerator},
		},
		{
			httpTest: httpTest{name: "image: provider error", path: "/v1/media/images", body: []byte(`{"prompt":"a red fox"}`),
				wantCode: http.StatusInternalServerError},
			genErr: errors.New("content policy"),
			checkFn: func(t *testing.T, env *testEnv, _ []byte, _ string) {
				assert.Empty(t, usageEvents(t, env))
			},
		},
		{
			httpTest: httpTest{name: "speech: blank text", path: "/v1/media/speech", body: []byte(`{"text":"  "}`), wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"text": "this field cannot be blank"})},
		},
		{
			httpTest: httpTest{name: "speech", path: "/v1/media/speech", body: []byte(`{"text":"Hello class"}`), wantCode: http.StatusOK},
			checkFn: func(t *testing.T, env *testEnv, body []byte, contentType string) {
				assert.Equal(t, "mp3:Hello class", string(body))
				assert.Equal(t, "audio/mpeg", contentType)
				events := usageEvents(t, env)
				require.Len(t, events, 1)
				assert.Equal(t, usage.KindSpeech, events[0].Kind)
			},
		},
		{
			httpTest: httpTest{name: "speech: not configured", path: "/v1/media/speech", body: []byte(`{"text":"Hello class"}`),
				wantCode: http.StatusServiceUnavailable, wantData: unavailable},
			opts: []envOption{withoutGenerator},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t, tt.opts...)
			env.gen.err = tt.genErr
			student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)

			req, rec := newAuthRequest(http.MethodPost, tt.path, getToken(t, student), tt.body)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt.httpTest, rec)
			if tt.checkFn != nil {
				tt.checkFn(t, env, rec.Body.Bytes(), rec.Header().Get("Content-Type"))
			}
		})
	}

	t.Run("Auth required", func(t *testing.T) {
		env := setup(t)
		req, rec := newRequest(http.MethodPost, "/v1/media/images", []byte(`{"prompt":"a red fox"}`))
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})
}
