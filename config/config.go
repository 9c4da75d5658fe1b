package config

import (
	"os"
	"strconv"
	"time"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type Config struct {
	HTTPAddr     string
	WriteTimeout time.Duration

	PostgresDSN string
	Neo4jURI    string
	Neo4jUser   string
	Neo4jPass   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret    string
	JWTExpiresIn time.Duration

	LLM           LLMConfig
	OllamaHost    string
	OpenAIAPIKey  string
	OpenAIBaseURL string

	Chat ChatConfig
	Log  LogConfig

	UploadMaxBytes int64
}

type LLMConfig struct {
	Provider string
	Model    string
}

// ChatConfig bounds what a single turn may send to the model.
type ChatConfig struct {
	HistoryWindow int
	ContextBudget int
	TitleLength   int
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() Config {
	return Config{
		HTTPAddr:     getEnv("HTTP_ADDR", ":8080"),
		WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 2*time.Minute),

		PostgresDSN: getEnv("POSTGRES_DSN", "postgres://localhost:5432/querry?sslmode=disable"),
		Neo4jURI:    os.Getenv("NEO4J_URI"),
		Neo4jUser:   getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass:   getEnv("NEO4J_PASSWORD", "password"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:    getEnv("JWT_SECRET", "change-me"),
		JWTExpiresIn: getEnvDuration("JWT_EXPIRES_IN", 24*time.Hour),

		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", ProviderOpenAI),
			Model:    getEnv("LLM_MODEL", "gpt-4o-mini"),
		},
		OllamaHost:    getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:  os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),

		Chat: ChatConfig{
			HistoryWindow: getEnvInt("CHAT_HISTORY_WINDOW", 3),
			ContextBudget: getEnvInt("CHAT_CONTEXT_BUDGET", 120000),
			TitleLength:   getEnvInt("CHAT_TITLE_LENGTH", 30),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},

		UploadMaxBytes: int64(getEnvInt("UPLOAD_MAX_BYTES", 20<<20)),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
