package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix               = "PORTFOLIO"
	defaultHTTPAddress      = "0.0.0.0:8080"
	defaultDatabasePath     = "portfolio.db"
	defaultLogLevel         = "info"
	defaultCookieName       = "portfolio_session"
	defaultSessionTTL       = 24 * 60
	defaultUploadsBackend   = UploadsBackendLocal
	defaultUploadsDir       = "uploads/resumes"
	defaultUploadsPrefix    = "/resumes/files"
	defaultUploadsMaxBytes  = 10 << 20
	defaultAdminDisplayName = "Administrator"

	UploadsBackendLocal = "local"
	UploadsBackendS3    = "s3"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
	AllowedOrigins []string

	SigningSecret string
	CookieName    string
	SessionTTL    time.Duration
	CookieSecure  bool

	Uploads UploadsConfig
	S3      S3Config
	Admin   AdminConfig
}

// UploadsConfig selects and configures the blob backend for resume PDFs.
type UploadsConfig struct {
	Backend      string
	Dir          string
	PublicPrefix string
	MaxBytes     int64
}

// S3Config is read when Uploads.Backend is "s3".
type S3Config struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string
	PublicBaseURL   string
	AccessKeyID     string
	SecretAccessKey string
}

// AdminConfig holds the credentials used by the seed-admin command.
type AdminConfig struct {
	Email       string
	Password    string
	DisplayName string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("cors.allowed_origins", []string{})
	configViper.SetDefault("auth.cookie_name", defaultCookieName)
	configViper.SetDefault("auth.session_ttl_minutes", defaultSessionTTL)
	configViper.SetDefault("auth.cookie_secure", false)
	configViper.SetDefault("uploads.backend", defaultUploadsBackend)
	configViper.SetDefault("uploads.dir", defaultUploadsDir)
	configViper.SetDefault("uploads.public_prefix", defaultUploadsPrefix)
	configViper.SetDefault("uploads.max_bytes", defaultUploadsMaxBytes)
	configViper.SetDefault("admin.display_name", defaultAdminDisplayName)

	// AutomaticEnv only resolves keys viper already knows about.
	for _, key := range []string{
		"auth.signing_secret",
		"s3.bucket",
		"s3.region",
		"s3.prefix",
		"s3.endpoint",
		"s3.public_base_url",
		"s3.access_key_id",
		"s3.secret_access_key",
		"admin.email",
		"admin.password",
	} {
		_ = configViper.BindEnv(key)
	}
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		AllowedOrigins: splitList(configViper.GetStringSlice("cors.allowed_origins")),
		SigningSecret:  configViper.GetString("auth.signing_secret"),
		CookieName:     configViper.GetString("auth.cookie_name"),
		SessionTTL:     time.Duration(configViper.GetInt("auth.session_ttl_minutes")) * time.Minute,
		CookieSecure:   configViper.GetBool("auth.cookie_secure"),
		Uploads: UploadsConfig{
			Backend:      strings.ToLower(strings.TrimSpace(configViper.GetString("uploads.backend"))),
			Dir:          configViper.GetString("uploads.dir"),
			PublicPrefix: configViper.GetString("uploads.public_prefix"),
			MaxBytes:     configViper.GetInt64("uploads.max_bytes"),
		},
		S3: S3Config{
			Bucket:          configViper.GetString("s3.bucket"),
			Region:          configViper.GetString("s3.region"),
			Prefix:          configViper.GetString("s3.prefix"),
			Endpoint:        configViper.GetString("s3.endpoint"),
			PublicBaseURL:   configViper.GetString("s3.public_base_url"),
			AccessKeyID:     configViper.GetString("s3.access_key_id"),
			SecretAccessKey: configViper.GetString("s3.secret_access_key"),
		},
		Admin: AdminConfig{
			Email:       configViper.GetString("admin.email"),
			Password:    configViper.GetString("admin.password"),
			DisplayName: configViper.GetString("admin.display_name"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadDatabase reads only the settings needed by maintenance commands.
func LoadDatabase(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabasePath: configViper.GetString("database.path"),
		LogLevel:     configViper.GetString("log.level"),
		Admin: AdminConfig{
			Email:       configViper.GetString("admin.email"),
			Password:    configViper.GetString("admin.password"),
			DisplayName: configViper.GetString("admin.display_name"),
		},
	}
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return AppConfig{}, fmt.Errorf("database.path is required")
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("auth.session_ttl_minutes must be positive")
	}
	if c.Uploads.MaxBytes <= 0 {
		return fmt.Errorf("uploads.max_bytes must be positive")
	}
	switch c.Uploads.Backend {
	case UploadsBackendLocal:
		if strings.TrimSpace(c.Uploads.Dir) == "" {
			return fmt.Errorf("uploads.dir is required for the local backend")
		}
	case UploadsBackendS3:
		if strings.TrimSpace(c.S3.Bucket) == "" {
			return fmt.Errorf("s3.bucket is required for the s3 backend")
		}
	default:
		return fmt.Errorf("uploads.backend %q is not supported", c.Uploads.Backend)
	}
	return nil
}

// splitList accepts both repeated values and a single comma separated value,
// which is how list settings arrive from the environment.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
