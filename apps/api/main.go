package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	echoapi "github.com/Marwebofficial/studio-sub000/apps/api/echo"
	"github.com/Marwebofficial/studio-sub000/core"
	"github.com/Marwebofficial/studio-sub000/core/chat"
	"github.com/Marwebofficial/studio-sub000/core/media"
	"github.com/Marwebofficial/studio-sub000/core/quiz"
	"github.com/Marwebofficial/studio-sub000/core/tutor"
	"github.com/Marwebofficial/studio-sub000/core/usage"
	"github.com/Marwebofficial/studio-sub000/core/user"
	emailsvc "github.com/Marwebofficial/studio-sub000/services/email"
	anthropicsvc "github.com/Marwebofficial/studio-sub000/services/engine/anthropic"
	geminisvc "github.com/Marwebofficial/studio-sub000/services/engine/gemini"
	logsvc "github.com/Marwebofficial/studio-sub000/services/logger"
	openaisvc "github.com/Marwebofficial/studio-sub000/services/media/openai"
	cachesvc "github.com/Marwebofficial/studio-sub000/services/search/cache"
	ddgsvc "github.com/Marwebofficial/studio-sub000/services/search/duckduckgo"
	googlesvc "github.com/Marwebofficial/studio-sub000/services/search/google"
	"github.com/Marwebofficial/studio-sub000/storage/database"
	inmemdb "github.com/Marwebofficial/studio-sub000/storage/database/inmem"
	sqlxrepos "github.com/Marwebofficial/studio-sub000/storage/database/sqlx"
	mongodb "github.com/Marwebofficial/studio-sub000/storage/mongo"
)

const memoryEngine = "memory"

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()
	ctx := context.Background()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	// set up storage
	var (
		usrRepo   user.Repository
		usageRepo usage.Repository
		convRepo  chat.Repository
		memDB     *inmemdb.DB
	)
	memory := func() *inmemdb.DB {
		if memDB == nil {
			memDB = inmemdb.Open()
		}
		return memDB
	}

	if conf.Database.Engine == memoryEngine {
		logger.Warn("database engine is memory: users & usage are lost on restart")
		usrRepo = inmemdb.NewUserRepository(memory())
		usageRepo = inmemdb.NewUsageRepository(memory())
	} else {
		db, err := setUpDB(ctx, conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
		}
		defer func() {
			if err = db.Close(); err != nil {
				dbLogger.Error("Failed to close", err)
			}
		}()
		usrRepo = sqlxrepos.NewUserRepository(db)
		usageRepo = sqlxrepos.NewUsageRepository(db)
	}

	if conf.Mongo.URI == "" {
		convRepo = inmemdb.NewConversationRepository(memory())
	} else {
		client, err := mongodb.Connect(ctx, conf.Mongo)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up mongo: %v", err), err)
		}
		defer func() {
			if err = client.Disconnect(context.Background()); err != nil {
				dbLogger.Error("Failed to disconnect from mongo", err)
			}
		}()
		if convRepo, err = mongodb.NewConversationRepository(ctx, client.Database(conf.Mongo.Database)); err != nil {
			logger.Fatal(fmt.Sprintf("setting up conversations: %v", err), err)
		}
	}

	// set up providers
	engine, err := newEngine(ctx, conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up %s engine: %v", conf.Engine.Provider, err), err)
	}
	search, closeSearch, err := newSearch(ctx, conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up %s search: %v", conf.Search.Provider, err), err)
	}
	defer closeSearch()

	var gen media.Generator // stays nil without a key
	if conf.Media.OpenAIKey != "" {
		g, err := openaisvc.New(openaisvc.Config{
			APIKey:      conf.Media.OpenAIKey,
			ImageModel:  conf.Media.ImageModel,
			SpeechModel: conf.Media.SpeechModel,
			Voice:       conf.Media.SpeechVoice,
		})
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up media generator: %v", err), err)
		}
		gen = g
	} else {
		logger.Warn("media.openAIKey is not set: image & speech generation are disabled")
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, os.Stdout, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(usrRepo, mailSvc, conf, logger)
	usageSvc := usage.NewService(usageRepo, logger)
	relay := tutor.NewRelay(engine, search, logger)
	chatSvc := chat.NewService(convRepo, relay, usageSvc, logger)
	quizSvc := quiz.NewService(engine, usageSvc, logger)
	mediaSvc := media.NewService(gen, usageSvc, logger)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(conf, logger)

	user.LoadCommonPasswords(logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("engine").Set(conf.Engine.Provider)
	expvar.NewString("search").Set(conf.Search.Provider)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Validate:   validate,
			Translator: translator,
			UserSvc:    usrSvc,
			ChatSvc:    chatSvc,
			Answerer:   relay,
			QuizSvc:    quizSvc,
			MediaSvc:   mediaSvc,
			UsageSvc:   usageSvc,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpDB(ctx context.Context, conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newEngine(ctx context.Context, conf *core.Config, logger core.Logger) (tutor.Engine, error) {
	switch conf.Engine.Provider {
	case "anthropic":
		return anthropicsvc.New(anthropicsvc.Config{
			APIKey:    conf.Engine.AnthropicKey,
			Model:     conf.Engine.Model,
			MaxTokens: conf.Engine.MaxTokens,
			MaxTurns:  conf.Engine.MaxTurns,
		}, logger)
	case "gemini":
		return geminisvc.New(ctx, geminisvc.Config{
			APIKey:    conf.Engine.GeminiKey,
			Model:     conf.Engine.Model,
			MaxTokens: conf.Engine.MaxTokens,
			MaxTurns:  conf.Engine.MaxTurns,
		}, logger)
	default:
		return nil, errors.Errorf("unknown engine provider %q", conf.Engine.Provider)
	}
}

// newSearch returns the configured search provider, behind the redis cache when redis.addr is set.
func newSearch(ctx context.Context, conf *core.Config, logger core.Logger) (tutor.SearchProvider, func(), error) {
	var search tutor.SearchProvider
	switch conf.Search.Provider {
	case "google":
		p, err := googlesvc.New(ctx, googlesvc.Config{
			APIKey:     conf.Search.GoogleKey,
			CX:         conf.Search.GoogleCX,
			MaxResults: conf.Search.MaxResults,
		})
		if err != nil {
			return nil, nil, err
		}
		search = p
	case "duckduckgo":
		search = ddgsvc.New(ddgsvc.Config{MaxResults: conf.Search.MaxResults})
	default:
		return nil, nil, errors.Errorf("unknown search provider %q", conf.Search.Provider)
	}

	if conf.Redis.Addr == "" {
		return search, func() {}, nil
	}
	client, err := cachesvc.NewClient(ctx, conf.Redis)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logger.Error("closing redis client", err)
		}
	}
	return cachesvc.New(search, client, conf.Search.CacheTTL, logger), closeFn, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
