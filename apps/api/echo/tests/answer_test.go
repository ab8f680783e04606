package tests

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/Marwebofficial/studio-sub000/apps/api/echo"
	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/tutor"
	"github.com/Marwebofficial/studio-sub000/core/usage"
	"github.com/Marwebofficial/studio-sub000/core/user"
	"github.com/Marwebofficial/studio-sub000/tests"
)

func usageEvents(t *testing.T, env *testEnv) []usage.Event {
	t.Helper()
	now := time.Now()
	events, err := env.usageRepo.QueryEvents(context.Background(), usage.Range{From: now.Add(-time.Hour), To: now.Add(time.Hour)})
	require.NoError(t, err)
	return events
}

func Test_answerApi_validation(t *testing.T) {
	env := setup(t)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	token := getToken(t, student)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "question required", token: token, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"question": "this field is required"}),
		},
		{
			name: "blank question", token: token, body: []byte(`{"question":"   "}`), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"question": "this field cannot be blank"}),
		},
		{
			name: "engine down", token: token, body: []byte(`{"question":"What is 2+2?"}`), wantCode: http.StatusInternalServerError,
			wantData: marchallObj(t, httpErr{Error: http.StatusText(http.StatusInternalServerError)}),
		},
	}
	env.engine.StartErr = errors.New("engine down")
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/answers"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
	assert.Empty(t, usageEvents(t, env))
}

func Test_answerApi_stream(t *testing.T) {
	tests := []struct {
		name     string
		steps    []testutil.Step
		err      error
		wantBody   string
		wantErr    string
		wantTokens usage.Tokens
	}{
		{
			name:     "no tool call",
			steps:      testutil.Text("4"),
			wantBody:   "4",
			wantTokens: usage.Tokens{Input: 12, Output: 5},
		},
		{
			name:     "with sources",
			steps:    append([]testutil.Step{testutil.SearchCall("mars rover")}, testutil.Text("Perseverance ", "found a rock.")...),
			wantBody:   "Perseverance found a rock." + tutor.Delimiter + `["https://a.example","https://b.example"]`,
			wantTokens: usage.Tokens{Input: 12, Output: 5},
		},
		{
			name:     "no results",
			steps:    append([]testutil.Step{testutil.SearchCall("nothing")}, testutil.Text("I found nothing.")...),
			wantBody:   "I found nothing.",
			wantTokens: usage.Tokens{Input: 12, Output: 5},
		},
		{
			name:     "engine fails mid-answer",
			steps:    append([]testutil.Step{testutil.SearchCall("mars rover")}, testutil.Text("Hello", " world")...),
			err:      errors.New("overloaded"),
			wantBody: "Hello world",
			wantErr:  "answer generation failed",
		},
		{
			name:       "empty answer",
			wantBody:   "",
			wantTokens: usage.Tokens{Input: 12, Output: 5},
		},
		{
			name:       "sources without text",
			steps:      []testutil.Step{testutil.SearchCall("mars rover")},
			wantBody:   tutor.Delimiter + `["https://a.example","https://b.example"]`,
			wantTokens: usage.Tokens{Input: 12, Output: 5},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setup(t)
			env.search.Results = map[string][]string{"mars rover": {"https://a.example", "https://b.example"}}
			env.engine.Steps = tt.steps
			env.engine.Err = tt.err
			env.engine.Usage = tutor.Usage{InputTokens: 12, OutputTokens: 5}

			student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
			req, rec := newAuthRequest(http.MethodPost, "/v1/answers", getToken(t, student), []byte(`{"question":"Latest Mars rover news"}`))
			env.app.ServeHTTP(rec, req)

			checkStream(t, rec, tt.wantBody, tt.wantErr)

			requests := env.engine.Requests()
			require.Len(t, requests, 1)
			assert.Equal(t, "Question: Latest Mars rover news", requests[0].Prompt)
			assert.Equal(t, tutor.SearchInstruction, requests[0].System)

			events := usageEvents(t, env)
			require.Len(t, events, 1)
			assert.Equal(t, usage.KindAnswer, events[0].Kind)
			assert.Equal(t, student.ID, events[0].UserID)
			assert.Equal(t, tt.wantTokens, events[0].Tokens)
		})
	}
}

func Test_answerApi_rateLimit(t *testing.T) {
	env := setup(t, func(c *core.Config, _ *ServerDeps) {
		c.Server.RateLimit = 0.001
		c.Server.RateBurst = 1
	})
	env.engine.Steps = testutil.Text("4")
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, env.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)

	ask := func(usr user.User) int {
		req, rec := newAuthRequest(http.MethodPost, "/v1/answers", getToken(t, usr), []byte(`{"question":"What is 2+2?"}`))
		env.app.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, ask(student))
	assert.Equal(t, http.StatusTooManyRequests, ask(student))
	// buckets are per user
	assert.Equal(t, http.StatusOK, ask(other))
}
