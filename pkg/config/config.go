package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for epicdraft-engine.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// Authentication configuration
	Auth AuthConfig `yaml:"auth"`

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Redis cache (optional)
	Redis RedisConfig `yaml:"redis"`

	// Object storage for uploaded screenshots and narration audio
	Storage StorageConfig `yaml:"storage"`

	// Generation backends
	AI AIConfig `yaml:"ai"`

	// Notion integration
	Notion NotionConfig `yaml:"notion"`

	// SessionSecret signs the OAuth state cookie used during the Notion
	// connect flow. Generate with: openssl rand -base64 32
	SessionSecret string `yaml:"-" env:"SESSION_SECRET"` // Secret - not in YAML

	// CredentialsKey encrypts stored workspace tokens at rest. Leave
	// empty in local development to store them in plaintext.
	CredentialsKey string `yaml:"-" env:"PROJECT_CREDENTIALS_KEY"` // Secret - not in YAML
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	// EnableVerification controls whether JWT tokens are validated.
	// Set to false for local development without an auth server.
	EnableVerification bool `yaml:"enable_verification" env:"AUTH_ENABLE_VERIFICATION" env-default:"true"`

	// JWKSEndpointsStr is a comma-separated list of issuer=jwks_url pairs.
	// Format: "issuer1=url1,issuer2=url2"
	JWKSEndpointsStr string `yaml:"jwks_endpoints" env:"JWKS_ENDPOINTS" env-default:""`

	// JWKSEndpoints is the parsed map from JWKSEndpointsStr (not from config file).
	JWKSEndpoints map[string]string `yaml:"-"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"epicdraft"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"epicdraft_engine"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"PGMIGRATIONS_PATH" env-default:"migrations"`
}

// RedisConfig holds Redis connection configuration.
// Redis is optional; it caches Notion database discovery results.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

// StorageConfig holds object storage configuration.
// Uploaded objects are keyed org/project/epic/role (see storage.ObjectKey).
type StorageConfig struct {
	Bucket    string `yaml:"bucket" env:"STORAGE_BUCKET"`
	CDNDomain string `yaml:"cdn_domain" env:"STORAGE_CDN_DOMAIN" env-default:""`
}

// AIConfig holds generation backend configuration.
type AIConfig struct {
	// Anthropic is the multimodal (text+image) streaming backend.
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"` // Secret - not in YAML
	AnthropicModel  string `yaml:"anthropic_model" env:"ANTHROPIC_MODEL" env-default:"claude-sonnet-4-5-20250929"`

	// Text is the OpenAI-compatible long-context streaming backend.
	TextBaseURL string `yaml:"text_base_url" env:"TEXT_AI_BASE_URL" env-default:"https://api.openai.com/v1"`
	TextAPIKey  string `yaml:"-" env:"TEXT_AI_API_KEY"` // Secret - not in YAML
	TextModel   string `yaml:"text_model" env:"TEXT_AI_MODEL" env-default:"gpt-4o"`

	// Whisper transcribes backend-logic narration audio.
	WhisperModel string `yaml:"whisper_model" env:"WHISPER_MODEL" env-default:"whisper-1"`
}

// NotionConfig holds the OAuth client registered with Notion.
type NotionConfig struct {
	ClientID     string `yaml:"client_id" env:"NOTION_CLIENT_ID" env-default:""`
	ClientSecret string `yaml:"-" env:"NOTION_CLIENT_SECRET"` // Secret - not in YAML
	RedirectURI  string `yaml:"redirect_uri" env:"NOTION_REDIRECT_URI" env-default:""`
}

// IsConfigured returns true if the Notion OAuth client is set up.
func (c *NotionConfig) IsConfigured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
		return nil, fmt.Errorf("failed to read config.yaml: %w", err)
	}

	cfg.Auth.JWKSEndpoints = parseJWKSEndpoints(cfg.Auth.JWKSEndpointsStr)

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// parseJWKSEndpoints parses the JWKS endpoints string into a map.
// Format: "issuer1=url1,issuer2=url2"
func parseJWKSEndpoints(value string) map[string]string {
	endpoints := make(map[string]string)
	if value == "" {
		return endpoints
	}

	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.Split(pair, "=")
		if len(parts) == 2 {
			endpoints[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		}
	}
	return endpoints
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
