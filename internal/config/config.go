package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env             string
	DefaultProvider string

	// EnabledProviders restricts which catalog entries are registered. Empty means all.
	EnabledProviders []string

	Server   ServerConfig
	Database DatabaseConfig
	Log      LogConfig
	Admin    AdminConfig
	Google   GoogleConfig
	Export   ExportConfig
}

type ServerConfig struct {
	Host          string
	Port          string
	PublicBaseURL string
}

type DatabaseConfig struct {
	Path string
}

type LogConfig struct {
	Level  string
	Format string
}

// AdminConfig holds the single admin credential pair and session settings.
// Password may be plain text or a bcrypt hash.
type AdminConfig struct {
	Username      string
	Password      string
	SessionSecret string
	SessionMaxAge time.Duration
	HomeURL       string
}

// GoogleConfig holds OAuth client settings shared by Drive and Photos.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	DeveloperKey string
}

type ExportConfig struct {
	ItemTimeout      time.Duration
	ThumbnailTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}
	cfg.Env = v.GetString("ENV")
	cfg.DefaultProvider = strings.ToLower(strings.TrimSpace(v.GetString("DEFAULT_PROVIDER")))
	for _, id := range SplitAndTrim(v.GetString("ENABLED_PROVIDERS")) {
		cfg.EnabledProviders = append(cfg.EnabledProviders, strings.ToLower(id))
	}

	cfg.Server = ServerConfig{
		Host:          v.GetString("HOST"),
		Port:          v.GetString("PORT"),
		PublicBaseURL: strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
	}

	cfg.Database = DatabaseConfig{Path: v.GetString("DATABASE_PATH")}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Admin = AdminConfig{
		Username:      v.GetString("ADMIN_USERNAME"),
		Password:      v.GetString("ADMIN_PASSWORD"),
		SessionSecret: v.GetString("SESSION_SECRET"),
		SessionMaxAge: parseDuration(v.GetString("SESSION_MAX_AGE"), 24*time.Hour),
		HomeURL:       v.GetString("ADMIN_HOME_URL"),
	}

	cfg.Google = GoogleConfig{
		ClientID:     v.GetString("GOOGLE_CLIENT_ID"),
		ClientSecret: v.GetString("GOOGLE_CLIENT_SECRET"),
		AuthURL:      v.GetString("GOOGLE_AUTH_URL"),
		TokenURL:     v.GetString("GOOGLE_TOKEN_URL"),
		DeveloperKey: v.GetString("GOOGLE_DEVELOPER_KEY"),
	}

	cfg.Export = ExportConfig{
		ItemTimeout:      parseDuration(v.GetString("EXPORT_ITEM_TIMEOUT"), 30*time.Second),
		ThumbnailTimeout: parseDuration(v.GetString("THUMBNAIL_TIMEOUT"), 8*time.Second),
	}

	return cfg, nil
}

// ProviderAllowed reports whether id passes the ENABLED_PROVIDERS filter.
func (c *Config) ProviderAllowed(id string) bool {
	if len(c.EnabledProviders) == 0 {
		return true
	}
	for _, allowed := range c.EnabledProviders {
		if allowed == id {
			return true
		}
	}
	return false
}

// Validate reports settings the server cannot start without.
func (c *Config) Validate() error {
	var problems []string
	if c.Env == EnvProduction && len(c.Admin.SessionSecret) < 32 {
		problems = append(problems, "SESSION_SECRET must be at least 32 characters in production")
	}
	if c.Admin.Password == "" {
		problems = append(problems, "ADMIN_PASSWORD is required")
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("HOST", "127.0.0.1")
	v.SetDefault("PORT", "8080")
	v.SetDefault("PUBLIC_BASE_URL", "")
	v.SetDefault("DEFAULT_PROVIDER", "googledrive")
	v.SetDefault("ENABLED_PROVIDERS", "")

	v.SetDefault("DATABASE_PATH", "photopick.db")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ADMIN_USERNAME", "admin")
	v.SetDefault("ADMIN_PASSWORD", "")
	v.SetDefault("SESSION_SECRET", "dev_session_secret_change_me_please")
	v.SetDefault("SESSION_MAX_AGE", "24h")
	v.SetDefault("ADMIN_HOME_URL", "/admin")

	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("GOOGLE_CLIENT_SECRET", "")
	v.SetDefault("GOOGLE_AUTH_URL", "")
	v.SetDefault("GOOGLE_TOKEN_URL", "")
	v.SetDefault("GOOGLE_DEVELOPER_KEY", "")

	v.SetDefault("EXPORT_ITEM_TIMEOUT", "30s")
	v.SetDefault("THUMBNAIL_TIMEOUT", "8s")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}

	return d
}

// SplitAndTrim splits a comma separated value and drops empty entries.
func SplitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
