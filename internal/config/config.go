package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Inference InferenceConfig
	Pipeline  PipelineConfig
	Email     EmailConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type InferenceConfig struct {
	Enabled         bool
	APIKey          string
	BaseURL         string
	Model           string
	FallbackModel   string
	MaxOutputTokens int
	ThinkingEnabled bool
	ThinkingBudget  int
}

type PipelineConfig struct {
	MaxAnalyzeJobs     int
	MaxStructureStarts int
	MaxIngestJobs      int
	ActiveTokenCeiling int64
	TickInterval       time.Duration
	DefaultHidden      bool
	InternalToken      string
	SubmitsPerHour     int
}

type EmailConfig struct {
	SendGridAPIKey string
	Sender         string
	SenderName     string
	TeamAddress    string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("POSTGRES_PASSWORD")
	readSecret("REDIS_PASSWORD")
	readSecret("INFERENCE_API_KEY")
	readSecret("SENDGRID_API_KEY")
	readSecret("PIPELINE_INTERNAL_TOKEN")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "PORT")
	_ = viper.BindEnv("server.env", "ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("postgres.host", "POSTGRES_HOST")
	_ = viper.BindEnv("postgres.port", "POSTGRES_PORT")
	_ = viper.BindEnv("postgres.user", "POSTGRES_USER")
	_ = viper.BindEnv("postgres.password", "POSTGRES_PASSWORD")
	_ = viper.BindEnv("postgres.db", "POSTGRES_DB")
	_ = viper.BindEnv("postgres.sslmode", "POSTGRES_SSLMODE")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("inference.enabled", "INFERENCE_ENABLED")
	_ = viper.BindEnv("inference.api_key", "INFERENCE_API_KEY")
	_ = viper.BindEnv("inference.base_url", "INFERENCE_BASE_URL")
	_ = viper.BindEnv("inference.model", "INFERENCE_MODEL")
	_ = viper.BindEnv("inference.fallback_model", "INFERENCE_FALLBACK_MODEL")
	_ = viper.BindEnv("inference.max_output_tokens", "INFERENCE_MAX_OUTPUT_TOKENS")
	_ = viper.BindEnv("inference.thinking_enabled", "INFERENCE_THINKING_ENABLED")
	_ = viper.BindEnv("inference.thinking_budget", "INFERENCE_THINKING_BUDGET")
	_ = viper.BindEnv("pipeline.max_analyze_jobs", "PIPELINE_MAX_ANALYZE_JOBS")
	_ = viper.BindEnv("pipeline.max_structure_starts", "PIPELINE_MAX_STRUCTURE_STARTS")
	_ = viper.BindEnv("pipeline.max_ingest_jobs", "PIPELINE_MAX_INGEST_JOBS")
	_ = viper.BindEnv("pipeline.active_token_ceiling", "PIPELINE_ACTIVE_TOKEN_CEILING")
	_ = viper.BindEnv("pipeline.tick_interval", "PIPELINE_TICK_INTERVAL")
	_ = viper.BindEnv("pipeline.default_hidden", "PIPELINE_DEFAULT_HIDDEN")
	_ = viper.BindEnv("pipeline.internal_token", "PIPELINE_INTERNAL_TOKEN")
	_ = viper.BindEnv("pipeline.submits_per_hour", "PIPELINE_SUBMITS_PER_HOUR")
	_ = viper.BindEnv("email.sendgrid_api_key", "SENDGRID_API_KEY")
	_ = viper.BindEnv("email.sender", "EMAIL_SENDER")
	_ = viper.BindEnv("email.sender_name", "EMAIL_SENDER_NAME")
	_ = viper.BindEnv("email.team_address", "EMAIL_TEAM_ADDRESS")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("postgres.host", "localhost")
	viper.SetDefault("postgres.port", "5432")
	viper.SetDefault("postgres.user", "ballotbase")
	viper.SetDefault("postgres.db", "ballotbase")
	viper.SetDefault("postgres.sslmode", "disable")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Inference defaults
	viper.SetDefault("inference.base_url", "https://generativelanguage.googleapis.com")
	viper.SetDefault("inference.model", "gemini-2.5-pro")
	viper.SetDefault("inference.fallback_model", "gemini-2.5-flash")
	viper.SetDefault("inference.max_output_tokens", 65536)
	viper.SetDefault("inference.thinking_enabled", false)
	viper.SetDefault("inference.thinking_budget", 4096)

	// Pipeline defaults
	viper.SetDefault("pipeline.max_analyze_jobs", 3)
	viper.SetDefault("pipeline.max_structure_starts", 3)
	viper.SetDefault("pipeline.max_ingest_jobs", 3)
	viper.SetDefault("pipeline.active_token_ceiling", 5000000)
	viper.SetDefault("pipeline.tick_interval", "2m")
	viper.SetDefault("pipeline.default_hidden", true)
	viper.SetDefault("pipeline.submits_per_hour", 10)

	// Email defaults
	viper.SetDefault("email.sender", "pipeline@ballotbase.org")
	viper.SetDefault("email.sender_name", "BallotBase Pipeline")
	viper.SetDefault("email.team_address", "data-team@ballotbase.org")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("postgres.host"),
			Port:     viper.GetString("postgres.port"),
			User:     viper.GetString("postgres.user"),
			Password: viper.GetString("postgres.password"),
			DBName:   viper.GetString("postgres.db"),
			SSLMode:  viper.GetString("postgres.sslmode"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Inference: InferenceConfig{
			Enabled:         viper.GetBool("inference.enabled"),
			APIKey:          viper.GetString("inference.api_key"),
			BaseURL:         viper.GetString("inference.base_url"),
			Model:           viper.GetString("inference.model"),
			FallbackModel:   viper.GetString("inference.fallback_model"),
			MaxOutputTokens: viper.GetInt("inference.max_output_tokens"),
			ThinkingEnabled: viper.GetBool("inference.thinking_enabled"),
			ThinkingBudget:  viper.GetInt("inference.thinking_budget"),
		},
		Pipeline: PipelineConfig{
			MaxAnalyzeJobs:     viper.GetInt("pipeline.max_analyze_jobs"),
			MaxStructureStarts: viper.GetInt("pipeline.max_structure_starts"),
			MaxIngestJobs:      viper.GetInt("pipeline.max_ingest_jobs"),
			ActiveTokenCeiling: viper.GetInt64("pipeline.active_token_ceiling"),
			TickInterval:       viper.GetDuration("pipeline.tick_interval"),
			DefaultHidden:      viper.GetBool("pipeline.default_hidden"),
			InternalToken:      viper.GetString("pipeline.internal_token"),
			SubmitsPerHour:     viper.GetInt("pipeline.submits_per_hour"),
		},
		Email: EmailConfig{
			SendGridAPIKey: viper.GetString("email.sendgrid_api_key"),
			Sender:         viper.GetString("email.sender"),
			SenderName:     viper.GetString("email.sender_name"),
			TeamAddress:    viper.GetString("email.team_address"),
		},
	}

	// In production-like environments the pipeline runs unless disabled
	// explicitly; elsewhere it must be opted into.
	if cfg.Server.Env == "production" && !viper.IsSet("inference.enabled") {
		cfg.Inference.Enabled = cfg.Inference.APIKey != ""
	}

	return cfg, nil
}

// InferenceReady reports whether the pipeline may run at all.
func (c *Config) InferenceReady() (bool, string) {
	if !c.Inference.Enabled {
		return false, "inference pipeline is disabled"
	}
	if c.Inference.APIKey == "" {
		return false, "inference API key is not configured"
	}
	return true, ""
}
