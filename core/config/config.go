package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"basegraph.app/pagebot/core/db"
)

type Config struct {
	OTel        OTelConfig
	Pipeline    PipelineConfig
	Intake      IntakeConfig
	Graph       GraphConfig
	LLM         LLMConfig
	KillSwitch  KillSwitchConfig
	Env         string
	LogLevel    string
	Port        string
	AdminAPIKey string
	Tenants     []Tenant
	DB          db.Config
	Limits      Limits
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	Environment    string
	// SampleRatio is the share of new traces recorded. Traces continued
	// from the intake stream follow their parent.
	SampleRatio float64
}

// PipelineConfig describes the redis stream between the webhook server and
// the worker. Only used when Intake.Mode is "stream".
type PipelineConfig struct {
	RedisURL        string
	RedisStream     string
	RedisGroup      string
	RedisDLQStream  string
	RedisConsumer   string
	RedisMaxLen     int64
	TraceHeaderName string
	MaxAttempts     int
}

type IntakeMode string

const (
	// IntakeModeInline evaluates events inside the server process.
	IntakeModeInline IntakeMode = "inline"
	// IntakeModeStream hands events to the worker through redis.
	IntakeModeStream IntakeMode = "stream"
)

type IntakeConfig struct {
	Mode        IntakeMode
	VerifyToken string
	AppSecret   string
}

type GraphConfig struct {
	BaseURL           string
	Version           string
	Timeout           time.Duration
	CallBudgetPerHour int64
	RetryMax          int
}

type LLMConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	Temperature   float64
	MaxTokens     int
	MaxReplyChars int
}

type KillSwitchConfig struct {
	Disabled bool
	File     string
}

type ServiceType string

const (
	ServiceTypeServer ServiceType = "server"
	ServiceTypeWorker ServiceType = "worker"
)

// Load reads configuration from the environment. In development it first
// loads .env.<service>, falling back to .env.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("PAGEBOT_ENV", "development") == "development" {
		if err := godotenv.Load(fmt.Sprintf(".env.%s", serviceType)); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	cfg := Config{
		Env:         getEnv("PAGEBOT_ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", ""),
		Port:        getEnv("PORT", "3000"),
		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
		DB: db.Config{
			DSN:      getEnv("DATABASE_URL", ""),
			MaxConns: getEnvInt32("DB_MAX_CONNS", 5),
			MinConns: getEnvInt32("DB_MIN_CONNS", 1),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "pagebot"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    getEnv("PAGEBOT_ENV", "development"),
			SampleRatio:    getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", 1.0),
		},
		Pipeline: PipelineConfig{
			RedisURL:        getEnv("REDIS_URL", "redis://localhost:6379/0"),
			RedisStream:     getEnv("REDIS_STREAM", "pagebot_events"),
			RedisGroup:      getEnv("REDIS_CONSUMER_GROUP", "pagebot_group"),
			RedisDLQStream:  getEnv("REDIS_DLQ_STREAM", "pagebot_events_dlq"),
			RedisConsumer:   getEnv("REDIS_CONSUMER_NAME", string(serviceType)),
			RedisMaxLen:     int64(getEnvInt("REDIS_STREAM_MAXLEN", 100000)),
			TraceHeaderName: getEnv("TRACE_HEADER_NAME", "X-Trace-Id"),
			MaxAttempts:     getEnvInt("REDIS_MAX_ATTEMPTS", 3),
		},
		Intake: IntakeConfig{
			Mode:        IntakeMode(getEnv("INTAKE_MODE", string(IntakeModeInline))),
			VerifyToken: getEnv("FB_VERIFY_TOKEN", ""),
			AppSecret:   getEnv("FB_APP_SECRET", ""),
		},
		Graph: GraphConfig{
			BaseURL:           getEnv("GRAPH_API_BASE_URL", "https://graph.facebook.com"),
			Version:           getEnv("GRAPH_API_VERSION", "v19.0"),
			Timeout:           getEnvDuration("GRAPH_API_TIMEOUT", 15*time.Second),
			CallBudgetPerHour: int64(getEnvInt("GRAPH_CALL_BUDGET_PER_HOUR", 180)),
			RetryMax:          getEnvInt("GRAPH_RETRY_MAX", 3),
		},
		LLM: LLMConfig{
			APIKey:        getEnv("OPENAI_API_KEY", ""),
			BaseURL:       getEnv("OPENAI_BASE_URL", ""),
			Model:         getEnv("OPENAI_MODEL", "gpt-4.1-mini"),
			Temperature:   getEnvFloat("OPENAI_TEMPERATURE", 0.7),
			MaxTokens:     getEnvInt("OPENAI_MAX_TOKENS", 300),
			MaxReplyChars: getEnvInt("REPLY_MAX_CHARS", 400),
		},
		KillSwitch: KillSwitchConfig{
			Disabled: getEnvBool("BOT_DISABLED", false),
			File:     getEnv("KILL_SWITCH_FILE", ""),
		},
	}

	limits, err := LoadLimits()
	if err != nil {
		return Config{}, err
	}
	cfg.Limits = limits

	tenants, err := loadTenants(getEnv("TENANTS_FILE", ""))
	if err != nil {
		return Config{}, err
	}
	cfg.Tenants = tenants

	if err := cfg.validate(serviceType); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate(serviceType ServiceType) error {
	if len(c.Tenants) == 0 {
		return fmt.Errorf("no tenants configured: set TENANTS_FILE or FB_PAGE_ID and FB_PAGE_TOKEN")
	}

	switch c.Intake.Mode {
	case IntakeModeInline, IntakeModeStream:
	default:
		return fmt.Errorf("INTAKE_MODE must be %q or %q, got %q", IntakeModeInline, IntakeModeStream, c.Intake.Mode)
	}

	if serviceType == ServiceTypeServer && c.Intake.VerifyToken == "" {
		return fmt.Errorf("FB_VERIFY_TOKEN is required")
	}

	if c.RunsEngine(serviceType) && !c.LLM.Enabled() {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	return nil
}

// RunsEngine reports whether this process owns tenant state and schedulers.
func (c Config) RunsEngine(serviceType ServiceType) bool {
	if serviceType == ServiceTypeWorker {
		return true
	}
	return c.Intake.Mode == IntakeModeInline
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c LLMConfig) Enabled() bool {
	return c.APIKey != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt32(key string, fallback int32) int32 {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(i)
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
