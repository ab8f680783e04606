package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marwebofficial/studio-sub000/core/chat"
	"github.com/Marwebofficial/studio-sub000/core/tutor"
	"github.com/Marwebofficial/studio-sub000/core/user"
	"github.com/Marwebofficial/studio-sub000/tests"
)

func createConversation(t *testing.T, env *testEnv, usr user.User, title string) chat.Conversation {
	t.Helper()
	now := time.Now().UTC()
	conv, err := env.convRepo.CreateConversation(context.Background(), chat.Conversation{
		UserID: usr.ID, Title: title, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	return conv
}

func Test_chatApi_conversations(t *testing.T) {
	env := setup(t)
	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, env.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)
	token := getToken(t, student)

	mine := createConversation(t, env, student, "Fractions")
	theirs := createConversation(t, env, other, "Rivers")

	tests := []httpTest{
		{name: "Auth required", method: http.MethodGet, path: "/v1/conversations", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "get", method: http.MethodGet, path: "/v1/conversations/" + mine.ID, token: token, wantCode: http.StatusOK},
		{name: "get other's", method: http.MethodGet, path: "/v1/conversations/" + theirs.ID, token: token, wantCode: http.StatusNotFound},
		{name: "get unknown", method: http.MethodGet, path: "/v1/conversations/unknown", token: token, wantCode: http.StatusNotFound},
		{
			name: "title too long", method: http.MethodPost, path: "/v1/conversations", token: token,
			body:     marchallObj(t, chat.NewConversation{Title: strings.Repeat("a", 61)}),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "rename blank", method: http.MethodPatch, path: "/v1/conversations/" + mine.ID, token: token,
			body:     []byte(`{"title":"  "}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"title": "this field cannot be blank"}),
		},
		{
			name: "rename other's", method: http.MethodPatch, path: "/v1/conversations/" + theirs.ID, token: token,
			body: []byte(`{"title":"Mine now"}`), wantCode: http.StatusNotFound,
		},
		{name: "delete other's", method: http.MethodDelete, path: "/v1/conversations/" + theirs.ID, token: token, wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			env.app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("start, list, rename & delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/conversations", token, []byte(`{"title":"  Photosynthesis "}`))
		env.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
		var started chat.Conversation
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
		assert.NotEmpty(t, started.ID)
		assert.Equal(t, "Photosynthesis", started.Title)
		assert.Equal(t, student.ID, started.UserID)

		req, rec = newAuthRequest(http.MethodGet, "/v1/conversations", token)
		env.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var convs []chat.Conversation
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &convs))
		ids := make([]string, 0, len(convs))
		for _, c := range convs {
			ids = append(ids, c.ID)
		}
		assert.ElementsMatch(t, []string{mine.ID, started.ID}, ids)

		req, rec = newAuthRequest(http.MethodPatch, "/v1/conversations/"+started.ID, token, []byte(`{"title":"Plants"}`))
		env.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		conv, err := env.convRepo.GetConversation(context.Background(), started.ID)
		require.NoError(t, err)
		assert.Equal(t, "Plants", conv.Title)

		req, rec = newAuthRequest(http.MethodDelete, "/v1/conversations/"+started.ID, token)
		env.app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
		_, err = env.convRepo.GetConversation(context.Background(), started.ID)
		assert.Equal(t, chat.ErrNotFound, errors.Cause(err))
	})

	t.Run("empty list", func(t *testing.T) {
		lonely := testutil.CreateUser(t, env.usrRepo, "Lonely", "lonely", "lonely@test.cd", "", []string{user.RoleStudent}, true)
		req, rec := newAuthRequest(http.MethodGet, "/v1/conversations", getToken(t, lonely))
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallList(t)}, rec)
	})
}

func Test_chatApi_ask(t *testing.T) {
	env := setup(t)
	env.search.Results = map[string][]string{"water cycle": {"https://water.example"}}
	env.engine.Steps = append([]testutil.Step{testutil.SearchCall("water cycle")}, testutil.Text("Water ", "evaporates.")...)

	student := testutil.CreateUser(t, env.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, env.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)
	token := getToken(t, student)
	conv := createConversation(t, env, student, "")
	theirs := createConversation(t, env, other, "Rivers")

	t.Run("not found", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/conversations/"+theirs.ID+"/ask", token, []byte(`{"question":"How does rain form?"}`))
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"})}, rec)
	})

	t.Run("blank question", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/conversations/"+conv.ID+"/ask", token, []byte(`{"question":" "}`))
		env.app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"question": "this field cannot be blank"}),
		}, rec)
	})

	t.Run("streams and keeps the answer", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/conversations/"+conv.ID+"/ask", token, []byte(`{"question":"How does rain form?"}`))
		env.app.ServeHTTP(rec, req)
		checkStream(t, rec, "Water evaporates."+tutor.Delimiter+`["https://water.example"]`, "")

		saved, err := env.convRepo.GetConversation(context.Background(), conv.ID)
		require.NoError(t, err)
		assert.Equal(t, "How does rain form?", saved.Title)
		require.Len(t, saved.Messages, 2)
		assert.Equal(t, chat.RoleUser, saved.Messages[0].Role)
		assert.Equal(t, "How does rain form?", saved.Messages[0].Content)
		assert.Equal(t, chat.RoleAssistant, saved.Messages[1].Role)
		assert.Equal(t, "Water evaporates.", saved.Messages[1].Content)
		assert.Equal(t, []string{"https://water.example"}, saved.Messages[1].Sources)
		assert.False(t, saved.Messages[1].Partial)

		assert.Len(t, usageEvents(t, env), 1)
	})
}
