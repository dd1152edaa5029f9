package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultStoreBaseURL is the hosted tabular store's REST endpoint.
const DefaultStoreBaseURL = "https://api.airtable.com/v0"

type Config struct {
	Port               string
	CorsAllowedOrigins []string

	StoreBaseURL string
	StoreBaseID  string
	StoreAPIKey  string

	ListingsTable string
	ArticlesTable string
	CommentsTable string
	RatingsTable  string

	TurnstileSecret string

	AdminPassword string
	JWTSecret     string
}

func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		CorsAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		StoreBaseURL: getEnv("STORE_BASE_URL", DefaultStoreBaseURL),
		StoreBaseID:  getEnv("STORE_BASE_ID", ""),
		StoreAPIKey:  getEnv("STORE_API_KEY", ""),

		ListingsTable: getEnv("LISTINGS_TABLE", "Contacts"),
		ArticlesTable: getEnv("ARTICLES_TABLE", "Articles"),
		CommentsTable: getEnv("COMMENTS_TABLE", "Comments"),
		RatingsTable:  getEnv("RATINGS_TABLE", "Ratings"),

		TurnstileSecret: getEnv("TURNSTILE_SECRET", ""),

		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),
	}

	// Store calls fail at request time instead of blocking startup.
	if cfg.StoreBaseID == "" || cfg.StoreAPIKey == "" {
		log.Println("warning: STORE_BASE_ID or STORE_API_KEY not set, store calls will fail")
	}
	if cfg.TurnstileSecret == "" {
		log.Println("warning: TURNSTILE_SECRET not set, bot verification is bypassed")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}
