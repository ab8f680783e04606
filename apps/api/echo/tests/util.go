package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/Marwebofficial/studio-sub000/apps/api/echo"
	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/chat"
	"github.com/Marwebofficial/studio-sub000/core/media"
	"github.com/Marwebofficial/studio-sub000/core/quiz"
	"github.com/Marwebofficial/studio-sub000/core/tutor"
	"github.com/Marwebofficial/studio-sub000/core/usage"
	"github.com/Marwebofficial/studio-sub000/core/user"
	"github.com/Marwebofficial/studio-sub000/services/email"
	"github.com/Marwebofficial/studio-sub000/storage/database/inmem"
	"github.com/Marwebofficial/studio-sub000/tests"
)

var (
	conf = core.NewTestConfig()

	errMissingToken = httpErr{Error: "missing or malformed jwt"}

	commonPasswordsOnce sync.Once
)

// testEnv is a server backed by the in-memory database and scripted engines.
type testEnv struct {
	app        Server
	usrRepo    user.Repository
	convRepo   chat.Repository
	usageRepo  usage.Repository
	mailSvc    *emailsvc.ConsoleService
	engine     *testutil.Engine
	quizEngine *testutil.Engine
	search     *testutil.Search
	gen        *fakeGenerator
	logger     *testutil.Logger
}

type envOption func(conf *core.Config, deps *ServerDeps)

func setup(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	logger := testutil.NewLogger()
	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, logger)
	commonPasswordsOnce.Do(func() { user.LoadCommonPasswords(logger) })

	// set up DB & repos
	db := inmemdb.Open()
	env := &testEnv{
		usrRepo:    inmemdb.NewUserRepository(db),
		convRepo:   inmemdb.NewConversationRepository(db),
		usageRepo:  inmemdb.NewUsageRepository(db),
		mailSvc:    emailsvc.NewConsoleService(conf, nil, logger),
		engine:     testutil.NewEngine(),
		quizEngine: testutil.NewEngine(),
		search:     testutil.NewSearch(nil),
		gen:        &fakeGenerator{},
		logger:     logger,
	}

	// set up services
	usageSvc := usage.NewService(env.usageRepo, logger)
	relay := tutor.NewRelay(env.engine, env.search, logger)
	deps := ServerDeps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		UserSvc:    user.NewService(env.usrRepo, env.mailSvc, conf, logger),
		ChatSvc:    chat.NewService(env.convRepo, relay, usageSvc, logger),
		Answerer:   relay,
		QuizSvc:    quiz.NewService(env.quizEngine, usageSvc, logger),
		MediaSvc:   media.NewService(env.gen, usageSvc, logger),
		UsageSvc:   usageSvc,
	}

	srvConf := *conf
	for _, opt := range opts {
		opt(&srvConf, &deps)
	}
	deps.Conf = &srvConf

	// set up server
	env.app = NewServer(deps)
	return env
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

type fakeGenerator struct {
	err error
}

func (g *fakeGenerator) Image(_ context.Context, prompt string) (media.Media, error) {
	if g.err != nil {
		return media.Media{}, g.err
	}
	return media.Media{Data: []byte("png:" + prompt), ContentType: "image/png"}, nil
}

func (g *fakeGenerator) Speech(_ context.Context, text string) (media.Media, error) {
	if g.err != nil {
		return media.Media{}, g.err
	}
	return media.Media{Data: []byte("mp3:" + text), ContentType: "audio/mpeg"}, nil
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(conf, usr)
	token, err := GenerateToken(conf, claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func checkStream(t *testing.T, rec *httptest.ResponseRecorder, wantBody, wantErr string) {
	t.Helper()
	res := rec.Result()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", res.Header.Get("Content-Type"))
	assert.Equal(t, "X-Stream-Error", res.Header.Get("Trailer"))
	assert.Equal(t, wantBody, rec.Body.String())
	assert.Equal(t, wantErr, res.Trailer.Get("X-Stream-Error"))
}
