package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr       string
	Env        string
	CORSOrigin string
	// Notion API
	NotionToken      string
	NotionDatabaseID string
	NotionBaseURL    string
	// Redis - optional, cache disabled if not configured
	RedisURL string
	CacheTTL time.Duration
	// Meilisearch - optional, memory fallback used if not configured
	MeiliURL       string
	MeiliMasterKey string
	// Blob storage - optional, images pass through untouched if not configured
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool
	// Shared secret guarding the status webhook
	HookToken string
}

func Load() Config {
	return Config{
		Addr:       getenv("API_ADDR", ":8686"),
		Env:        getenv("PRISM_ENV", "development"),
		CORSOrigin: getenv("PRISM_CORS_ORIGIN", "*"),

		NotionToken:      getenv("NOTION_API_KEY", ""),
		NotionDatabaseID: getenv("NOTION_DATABASE_ID", ""),
		NotionBaseURL:    getenv("NOTION_BASE_URL", "https://api.notion.com"),

		RedisURL: getenv("REDIS_URL", ""),
		CacheTTL: time.Duration(getenvInt("PRISM_CACHE_TTL_SECONDS", 3600)) * time.Second,

		MeiliURL:       getenv("MEILI_URL", ""),
		MeiliMasterKey: getenv("MEILI_MASTER_KEY", ""),

		StorageEndpoint:  getenv("STORAGE_ENDPOINT", ""),
		StorageAccessKey: getenv("STORAGE_ACCESS_KEY", ""),
		StorageSecretKey: getenv("STORAGE_SECRET_KEY", ""),
		StorageBucket:    getenv("STORAGE_BUCKET", "prism-images"),
		StorageUseSSL:    getenvBool("STORAGE_USE_SSL", true),

		HookToken: getenv("PRISM_HOOK_TOKEN", ""),
	}
}

// Production reports whether the service runs with production behavior, such
// as hiding unsupported block placeholders.
func (c Config) Production() bool {
	return c.Env == "production"
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
