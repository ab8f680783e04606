package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		AppName          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		RollbarToken     string
		SendgridAPIKey   string

		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		Mongo    MongoConfig
		Redis    RedisConfig
		Engine   EngineConfig
		Search   SearchConfig
		Media    MediaConfig
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		CORSOrigins               []string
		RateLimit                 float64 // requests per second, per user
		RateBurst                 int
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	MongoConfig struct {
		URI      string // empty: conversations are kept in memory
		Database string
		Timeout  time.Duration
	}

	RedisConfig struct {
		Addr     string // empty: search results are not cached
		Password string
		DB       int
	}

	EngineConfig struct {
		Provider     string // anthropic | gemini
		Model        string
		AnthropicKey string
		GeminiKey    string
		MaxTokens    int
		MaxTurns     int
	}

	SearchConfig struct {
		Provider   string // google | duckduckgo
		GoogleKey  string
		GoogleCX   string
		MaxResults int
		CacheTTL   time.Duration
	}

	MediaConfig struct {
		OpenAIKey   string
		ImageModel  string
		SpeechModel string
		SpeechVoice string
	}
)

// Address returns the "host:port" of the database server.
func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port))
}

// NewConfig loads the configuration from the environment.
// Variables are prefixed with the current ENV, e.g. DEV_DATABASE_HOST.
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("build", "develop")
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", false)
	conf.SetDefault("appName", "Studio")
	conf.SetDefault("secretKey", "vq8-2ob)x#k!3h^sd0+m7zj&c9r@e=f4_lyt%u6p*wn1a5g$i")
	conf.SetDefault("frontendBaseURL", "http://localhost:9002")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("sendgridAPIKey", "")
	conf.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	conf.SetDefault("server.host", "0.0.0.0:8000")
	conf.SetDefault("server.debugHost", "0.0.0.0:4000")
	conf.SetDefault("server.readTimeout", 5*time.Second)
	conf.SetDefault("server.writeTimeout", 5*time.Minute) // answers are streamed
	conf.SetDefault("server.shutdownTimeout", 10*time.Second)
	conf.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	conf.SetDefault("server.corsOrigins", []string{"*"})
	conf.SetDefault("server.rateLimit", 1.0)
	conf.SetDefault("server.rateBurst", 10)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", 5432)
	conf.SetDefault("database.name", "studio")
	conf.SetDefault("database.user", "studio")
	conf.SetDefault("database.password", "studio")
	conf.SetDefault("database.adminUser", "postgres")
	conf.SetDefault("database.adminPassword", "postgres")
	conf.SetDefault("database.disableTLS", true)

	conf.SetDefault("mongo.uri", "")
	conf.SetDefault("mongo.database", "studio")
	conf.SetDefault("mongo.timeout", 5*time.Second)

	conf.SetDefault("redis.addr", "")
	conf.SetDefault("redis.password", "")
	conf.SetDefault("redis.db", 0)

	conf.SetDefault("engine.provider", "gemini")
	conf.SetDefault("engine.model", "")
	conf.SetDefault("engine.anthropicKey", "")
	conf.SetDefault("engine.geminiKey", "")
	conf.SetDefault("engine.maxTokens", 2048)
	conf.SetDefault("engine.maxTurns", 4)

	conf.SetDefault("search.provider", "duckduckgo")
	conf.SetDefault("search.googleKey", "")
	conf.SetDefault("search.googleCX", "")
	conf.SetDefault("search.maxResults", 5)
	conf.SetDefault("search.cacheTTL", 6*time.Hour)

	conf.SetDefault("media.openAIKey", "")
	conf.SetDefault("media.imageModel", "dall-e-3")
	conf.SetDefault("media.speechModel", "tts-1")
	conf.SetDefault("media.speechVoice", "alloy")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	from, err := mail.ParseAddress(conf.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}

	return &Config{
		Env:                       env,
		Build:                     conf.GetString("build"),
		Debug:                     conf.GetBool("debug"),
		TestMode:                  conf.GetBool("testMode"),
		AppName:                   conf.GetString("appName"),
		SecretKey:                 conf.GetString("secretKey"),
		FrontendBaseURL:           strings.TrimSuffix(conf.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail:          *from,
		RollbarToken:              conf.GetString("rollbarToken"),
		SendgridAPIKey:            conf.GetString("sendgridAPIKey"),
		PasswordResetTimeoutDelta: conf.GetDuration("passwordResetTimeoutDelta"),
		Server: ServerConfig{
			Host:                      conf.GetString("server.host"),
			DebugHost:                 conf.GetString("server.debugHost"),
			ReadTimeout:               conf.GetDuration("server.readTimeout"),
			WriteTimeout:              conf.GetDuration("server.writeTimeout"),
			ShutdownTimeout:           conf.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("server.jwtRefreshExpirationDelta"),
			CORSOrigins:               conf.GetStringSlice("server.corsOrigins"),
			RateLimit:                 conf.GetFloat64("server.rateLimit"),
			RateBurst:                 conf.GetInt("server.rateBurst"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetInt("database.port"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
		},
		Mongo: MongoConfig{
			URI:      conf.GetString("mongo.uri"),
			Database: conf.GetString("mongo.database"),
			Timeout:  conf.GetDuration("mongo.timeout"),
		},
		Redis: RedisConfig{
			Addr:     conf.GetString("redis.addr"),
			Password: conf.GetString("redis.password"),
			DB:       conf.GetInt("redis.db"),
		},
		Engine: EngineConfig{
			Provider:     strings.ToLower(conf.GetString("engine.provider")),
			Model:        conf.GetString("engine.model"),
			AnthropicKey: conf.GetString("engine.anthropicKey"),
			GeminiKey:    conf.GetString("engine.geminiKey"),
			MaxTokens:    conf.GetInt("engine.maxTokens"),
			MaxTurns:     conf.GetInt("engine.maxTurns"),
		},
		Search: SearchConfig{
			Provider:   strings.ToLower(conf.GetString("search.provider")),
			GoogleKey:  conf.GetString("search.googleKey"),
			GoogleCX:   conf.GetString("search.googleCX"),
			MaxResults: conf.GetInt("search.maxResults"),
			CacheTTL:   conf.GetDuration("search.cacheTTL"),
		},
		Media: MediaConfig{
			OpenAIKey:   conf.GetString("media.openAIKey"),
			ImageModel:  conf.GetString("media.imageModel"),
			SpeechModel: conf.GetString("media.speechModel"),
			SpeechVoice: conf.GetString("media.speechVoice"),
		},
	}
}

// NewTestConfig returns the configuration used by tests.
func NewTestConfig() *Config {
	conf := NewConfig()
	conf.Env = "TEST"
	conf.Debug = false
	conf.TestMode = true
	return conf
}
