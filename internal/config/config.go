package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds the settings shared by every function, read once per cold start
type Config struct {
	AWSRegion string

	SpotsTable      string
	FacilitiesTable string
	BucketName      string

	TaskQueueURL          string
	CollectorFunctionName string

	OpenAIAPIKey        string
	OpenAIModel         string
	MaxLLMTokens        int
	EnableSelectionMode bool

	LineChannelToken string
	LineNotifyToken  string

	ScraperConcurrency int
	ScraperRatePerSec  float64
	ArchiveRawHTML     bool
}

// Defaults
const (
	DefaultRegion             = "ap-northeast-1"
	DefaultSpotsTable         = "pfc-ParkingSpots-table"
	DefaultFacilitiesTable    = "pfc-Facilities-table"
	DefaultOpenAIModel        = "gpt-4o-mini"
	DefaultMaxLLMTokens       = 150
	DefaultScraperConcurrency = 3
	DefaultScraperRatePerSec  = 1.0
)

// Load reads a .env file when present, then the environment
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	return &Config{
		AWSRegion: getEnv("AWS_REGION", DefaultRegion),

		SpotsTable:      getEnv("DYNAMODB_TABLE_NAME", DefaultSpotsTable),
		FacilitiesTable: getEnv("FACILITIES_TABLE_NAME", DefaultFacilitiesTable),
		BucketName:      getEnv("S3_BUCKET_NAME", ""),

		TaskQueueURL:          getEnv("TASK_QUEUE_URL", ""),
		CollectorFunctionName: getEnv("COLLECTOR_FUNCTION_NAME", ""),

		OpenAIAPIKey:        getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:         getEnv("OPENAI_MODEL", DefaultOpenAIModel),
		MaxLLMTokens:        getEnvInt("MAX_LLM_TOKENS", DefaultMaxLLMTokens),
		EnableSelectionMode: getEnvBool("ENABLE_SELECTION_MODE", true),

		LineChannelToken: getEnv("LINE_CHANNEL_TOKEN", ""),
		LineNotifyToken:  getEnv("LINE_NOTIFY_TOKEN", ""),

		ScraperConcurrency: getEnvInt("SCRAPER_CONCURRENCY", DefaultScraperConcurrency),
		ScraperRatePerSec:  getEnvFloat("SCRAPER_RATE_PER_SEC", DefaultScraperRatePerSec),
		ArchiveRawHTML:     getEnvBool("ARCHIVE_RAW_HTML", false),
	}
}

// HasNotifications reports whether any LINE channel is configured
func (c *Config) HasNotifications() bool {
	return c.LineChannelToken != "" || c.LineNotifyToken != ""
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("Invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f <= 0 {
		log.Printf("Invalid %s=%q, using %v", key, raw, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
