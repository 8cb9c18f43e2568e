package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	// Hub (Google Chat) settings
	HubSpaceID         string
	HubCredentialsJSON string
	HubPollEnabled     bool
	HubPollInterval    time.Duration

	// Optional per-department spaces; departments without one fall back to
	// HubSpaceID.
	DepartmentSpaces map[string]string

	// Channel credentials (Meta Graph API)
	WhatsAppAccessToken   string
	WhatsAppPhoneNumberID string
	InstagramAccessToken  string
	WebhookVerifyToken    string
	MetaAppSecret         string

	// LLM backends
	GeminiAPIKey       string
	GeminiModelID      string
	BedrockModelID     string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// Translation
	TargetLanguage                string
	TranslationCacheSize          int
	TranslationCacheTTL           time.Duration
	TranslationMinCacheConfidence float64

	// Routing
	RouteAcceptThreshold     float64
	ClarifyAcceptThreshold   float64
	MaxClarificationAttempts int

	// Customer intake
	UrgencyBypassKeywords []string
	InfoGatherMaxMessages int

	// Escalation
	EscalationTimeout     time.Duration
	EscalationNotifyEmail string

	// Store expiry
	ConversationTTL    time.Duration
	StoreSweepInterval time.Duration

	// Delivery retries
	SendMaxAttempts int
	SendBaseDelay   time.Duration

	// Optional Redis-backed message history
	RedisAddr     string
	RedisPassword string

	// SendGrid staff notifications
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// HTTP surface
	CORSAllowedOrigins []string
	WebhookRateLimit   float64
	WebhookRateBurst   int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		HubSpaceID:         getEnv("HUB_SPACE_ID", ""),
		HubCredentialsJSON: getEnv("HUB_CREDENTIALS_JSON", ""),
		HubPollEnabled:     getEnvAsBool("HUB_POLL_ENABLED", false),
		HubPollInterval:    getEnvAsDuration("HUB_POLL_INTERVAL", 30*time.Second),
		DepartmentSpaces:   departmentSpaces(),

		WhatsAppAccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		InstagramAccessToken:  getEnv("INSTAGRAM_ACCESS_TOKEN", ""),
		WebhookVerifyToken:    getEnv("WEBHOOK_VERIFY_TOKEN", ""),
		MetaAppSecret:         getEnv("META_APP_SECRET", ""),

		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:      getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		BedrockModelID:     getEnv("BEDROCK_MODEL_ID", ""),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),

		TargetLanguage:                getEnv("TARGET_LANGUAGE", "en"),
		TranslationCacheSize:          getEnvAsInt("TRANSLATION_CACHE_SIZE", 1000),
		TranslationCacheTTL:           getEnvAsDuration("TRANSLATION_CACHE_TTL", 24*time.Hour),
		TranslationMinCacheConfidence: getEnvAsFloat("TRANSLATION_MIN_CACHE_CONFIDENCE", 0.8),

		RouteAcceptThreshold:     getEnvAsFloat("ROUTE_ACCEPT_THRESHOLD", 0.6),
		ClarifyAcceptThreshold:   getEnvAsFloat("CLARIFY_ACCEPT_THRESHOLD", 0.5),
		MaxClarificationAttempts: getEnvAsInt("MAX_CLARIFICATION_ATTEMPTS", 2),

		UrgencyBypassKeywords: getEnvAsList("URGENCY_BYPASS_KEYWORDS", []string{"urgent", "emergency", "asap", "urgente", "emergencia", "dringend", "notfall"}),
		InfoGatherMaxMessages: getEnvAsInt("INFO_GATHER_MAX_MESSAGES", 5),

		EscalationTimeout:     getEnvAsDuration("ESCALATION_TIMEOUT", 0),
		EscalationNotifyEmail: getEnv("ESCALATION_NOTIFY_EMAIL", ""),

		ConversationTTL:    getEnvAsDuration("CONVERSATION_TTL", 24*time.Hour),
		StoreSweepInterval: getEnvAsDuration("STORE_SWEEP_INTERVAL", 5*time.Minute),

		SendMaxAttempts: getEnvAsInt("SEND_MAX_ATTEMPTS", 3),
		SendBaseDelay:   getEnvAsDuration("SEND_BASE_DELAY", 500*time.Millisecond),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "Relay Desk"),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", nil),
		WebhookRateLimit:   getEnvAsFloat("WEBHOOK_RATE_LIMIT", 0),
		WebhookRateBurst:   getEnvAsInt("WEBHOOK_RATE_BURST", 20),
	}
}

// departmentSpaces reads SPACE_<DEPARTMENT> variables, e.g. SPACE_SALES.
func departmentSpaces() map[string]string {
	spaces := make(map[string]string)
	for _, dept := range []string{"sales", "design", "technical", "general"} {
		if space := getEnv("SPACE_"+strings.ToUpper(dept), ""); space != "" {
			spaces[dept] = space
		}
	}
	return spaces
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
