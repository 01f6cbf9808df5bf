package config

import (
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	LINEChannelSecret string
	LINEChannelToken  string
	LLMProvider       string // gemini, openai, ollama
	GeminiAPIKey      string
	OpenAIKey         string
	LLMModel          string
	OllamaBaseURL     string
	DatabasePath      string
	Port              string
	Timezone          string // IANA name of the operating timezone
	DailySweepCron    string // cron expression for the daily proactive sweep
}

func Load() *Config {
	_ = godotenv.Load() // ignore error if no .env

	return &Config{
		LINEChannelSecret: os.Getenv("LINE_CHANNEL_SECRET"),
		LINEChannelToken:  os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
		LLMProvider:       envOr("LLM_PROVIDER", "gemini"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		LLMModel:          os.Getenv("LLM_MODEL"),
		OllamaBaseURL:     envOr("OLLAMA_BASE_URL", "http://localhost:11434/v1"),
		DatabasePath:      envOr("DATABASE_PATH", "./mali.db"),
		Port:              envOr("PORT", "8080"),
		Timezone:          envOr("BOT_TIMEZONE", "Asia/Bangkok"),
		DailySweepCron:    envOr("DAILY_SWEEP_CRON", "0 7 * * *"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
