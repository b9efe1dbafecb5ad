package config

import (
	"fmt"
	"os"
	"strings"
)

// Config carries every setting the Lambdas need. It is loaded once in main
// and passed by pointer into constructors; nothing reads the environment
// after startup.
type Config struct {
	// Shopify app credentials
	ShopifyAPIKey     string
	ShopifyAPISecret  string
	ShopifyScopes     string
	ShopifyAPIVersion string
	RedirectBase      string
	FrontendBaseURL   string

	// Outbound identity for source-image fetches. Some CDNs reject the
	// Go default client string.
	HTTPUserAgent string

	// Token sealing + admin auth
	TokenEncKeyB64 string
	AdminJWTSecret string

	// DynamoDB tables
	StoresTable     string
	ImagesTable     string
	CommentsTable   string
	AdminUsersTable string
	OAuthStateTable string

	// Optional: original-image archive bucket
	ArchiveBucket string
	ArchivePrefix string

	// Optional: EventBridge partner source for lifecycle webhooks
	EventBridgeSourceArn string

	// Optional: SNS alerting
	AlertsStage string

	// Content suggestion
	BedrockModelID string
}

// Load reads the environment into a Config and applies defaults.
func Load() *Config {
	cfg := &Config{
		ShopifyAPIKey:     getenv("SHOPIFY_API_KEY"),
		ShopifyAPISecret:  getenv("SHOPIFY_API_SECRET"),
		ShopifyScopes:     getenv("SHOPIFY_SCOPES"),
		ShopifyAPIVersion: getenv("SHOPIFY_API_VERSION"),
		RedirectBase:      strings.TrimRight(getenv("SHOPIFY_REDIRECT_BASE"), "/"),
		FrontendBaseURL:   strings.TrimRight(getenv("FRONTEND_BASE_URL"), "/"),

		HTTPUserAgent: getenv("HTTP_USER_AGENT"),

		TokenEncKeyB64: getenv("TOKEN_ENC_KEY_B64"),
		AdminJWTSecret: getenv("ADMIN_JWT_SECRET"),

		StoresTable:     getenv("STORES_TABLE"),
		ImagesTable:     getenv("IMAGES_TABLE"),
		CommentsTable:   getenv("COMMENTS_TABLE"),
		AdminUsersTable: getenv("ADMIN_USERS_TABLE"),
		OAuthStateTable: getenv("OAUTH_STATE_TABLE"),

		ArchiveBucket: getenv("ORIGINALS_BUCKET"),
		ArchivePrefix: getenv("ORIGINALS_PREFIX"),

		EventBridgeSourceArn: getenv("SHOPIFY_EVENTBRIDGE_SOURCE_ARN"),

		AlertsStage: getenv("ALERTS_STAGE"),

		BedrockModelID: getenv("BEDROCK_MODEL_ID"),
	}

	if cfg.ShopifyAPIVersion == "" {
		cfg.ShopifyAPIVersion = "2026-01"
	}
	if cfg.HTTPUserAgent == "" {
		cfg.HTTPUserAgent = "tapita-admin/1.0"
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "originals/"
	}
	if cfg.AlertsStage == "" {
		cfg.AlertsStage = "dev"
	}
	return cfg
}

// Validate checks the settings a given binary cannot run without. Tables
// and credentials differ per Lambda, so callers pass the field names they
// require.
func (c *Config) Validate(required ...string) error {
	vals := map[string]string{
		"SHOPIFY_API_KEY":       c.ShopifyAPIKey,
		"SHOPIFY_API_SECRET":    c.ShopifyAPISecret,
		"SHOPIFY_SCOPES":        c.ShopifyScopes,
		"TOKEN_ENC_KEY_B64":     c.TokenEncKeyB64,
		"ADMIN_JWT_SECRET":      c.AdminJWTSecret,
		"STORES_TABLE":          c.StoresTable,
		"IMAGES_TABLE":          c.ImagesTable,
		"COMMENTS_TABLE":        c.CommentsTable,
		"ADMIN_USERS_TABLE":     c.AdminUsersTable,
		"OAUTH_STATE_TABLE":     c.OAuthStateTable,
		"SHOPIFY_REDIRECT_BASE": c.RedirectBase,
		"FRONTEND_BASE_URL":     c.FrontendBaseURL,
		"BEDROCK_MODEL_ID":      c.BedrockModelID,
	}
	var missing []string
	for _, name := range required {
		v, ok := vals[name]
		if !ok {
			return fmt.Errorf("config: unknown required setting %q", name)
		}
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

func getenv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}
