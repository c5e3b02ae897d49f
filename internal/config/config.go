// Package config loads and validates prospector configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Store     StoreConfig     `mapstructure:"store"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Lookup    LookupConfig    `mapstructure:"lookup"`
	Enrich    EnrichConfig    `mapstructure:"enrich"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Send      SendConfig      `mapstructure:"send"`
	Server    ServerConfig    `mapstructure:"server"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// StoreConfig selects and tunes the relational store.
type StoreConfig struct {
	Driver                 string `mapstructure:"driver"`
	Path                   string `mapstructure:"path"`
	BusyTimeoutMs          int    `mapstructure:"busy_timeout_ms"`
	DSN                    string `mapstructure:"dsn"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	MaxConnLifetimeSeconds int    `mapstructure:"max_conn_lifetime_seconds"`
}

// DiscoveryConfig governs source fetching.
type DiscoveryConfig struct {
	SourcesFile          string  `mapstructure:"sources_file"`
	BaseDir              string  `mapstructure:"base_dir"`
	UserAgent            string  `mapstructure:"user_agent"`
	DelaySeconds         float64 `mapstructure:"delay_seconds"`
	JitterSeconds        float64 `mapstructure:"jitter_seconds"`
	TimeoutSeconds       int     `mapstructure:"timeout_seconds"`
	SourceTimeoutSeconds int     `mapstructure:"source_timeout_seconds"`
	RequestsPerSecond    float64 `mapstructure:"requests_per_second"`
	MaxBodyBytes         int     `mapstructure:"max_body_bytes"`
	LocalOnly            bool    `mapstructure:"local_only"`
}

// LookupConfig configures the domain-search API client.
type LookupConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	APIKey            string  `mapstructure:"api_key"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"`
}

// EnrichConfig bounds an enrichment run.
type EnrichConfig struct {
	MaxCompanies      int     `mapstructure:"max_companies"`
	DelaySeconds      float64 `mapstructure:"delay_seconds"`
	JitterSeconds     float64 `mapstructure:"jitter_seconds"`
	ExportDir         string  `mapstructure:"export_dir"`
	Category          string  `mapstructure:"category"`
	RecheckAfterHours int     `mapstructure:"recheck_after_hours"`
	ImportLatest      bool    `mapstructure:"import_latest"`
}

// SMTPConfig describes the outbound relay.
type SMTPConfig struct {
	Host                  string `mapstructure:"host"`
	Port                  int    `mapstructure:"port"`
	Username              string `mapstructure:"username"`
	Password              string `mapstructure:"password"`
	AuthMode              string `mapstructure:"auth_mode"`
	AddressFamily         string `mapstructure:"address_family"`
	HeloIdentity          string `mapstructure:"helo_identity"`
	TLSMode               string `mapstructure:"tls_mode"`
	InsecureSkipVerify    bool   `mapstructure:"insecure_skip_verify"`
	DialTimeoutSeconds    int    `mapstructure:"dial_timeout_seconds"`
	CommandTimeoutSeconds int    `mapstructure:"command_timeout_seconds"`
	IdleProbeSeconds      int    `mapstructure:"idle_probe_seconds"`
}

// SendConfig controls the send queue.
type SendConfig struct {
	Limit                 int     `mapstructure:"limit"`
	DelaySeconds          float64 `mapstructure:"delay_seconds"`
	JitterSeconds         float64 `mapstructure:"jitter_seconds"`
	DryRun                bool    `mapstructure:"dry_run"`
	From                  string  `mapstructure:"from"`
	AttachmentPath        string  `mapstructure:"attachment_path"`
	AttachmentName        string  `mapstructure:"attachment_name"`
	AttachmentContentType string  `mapstructure:"attachment_content_type"`
	Signature             string  `mapstructure:"signature"`
	TestRecipient         string  `mapstructure:"test_recipient"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// legacyEnv maps keys to the environment names used by earlier versions of
// the tool, so existing .env files keep working.
var legacyEnv = map[string]string{
	"store.path":              "DB_PATH",
	"discovery.sources_file":  "DATABASE_SOURCES_FILE",
	"discovery.delay_seconds": "CRAWL_DELAY_SECONDS",
	"lookup.api_key":          "HUNTER_API_KEY",
	"smtp.host":               "SMTP_HOST",
	"smtp.port":               "SMTP_PORT",
	"smtp.username":           "SMTP_USER",
	"smtp.password":           "SMTP_PASS",
	"send.from":               "FROM_EMAIL",
	"send.attachment_path":    "RESUME_PATH",
	"send.delay_seconds":      "SEND_DELAY_SECONDS",
	"send.limit":              "MAX_EMAILS_PER_RUN",
	"send.dry_run":            "DRY_RUN",
	"send.test_recipient":     "TEST_EMAIL",
}

// searchPaths are tried in order for prospector.{yaml,json,toml} when no
// config file is given.
var searchPaths = []string{".", "$HOME/.prospector", "/etc/prospector"}

// Load builds a Config from an optional .env file in the working
// directory, the config file at path (if any) and the environment.
func Load(path string) (Config, error) {
	return LoadWithEnvFile(path, ".env")
}

// LoadWithEnvFile is Load with an explicit dotenv path. Variables already
// present in the environment win over the dotenv file.
func LoadWithEnvFile(path, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load env file: %w", err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("PROSPECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		envKey := "PROSPECTOR_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, envKey, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("prospector")
		for _, dir := range searchPaths {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.path", "prospector.db")
	v.SetDefault("store.busy_timeout_ms", 5000)
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("store.max_conn_lifetime_seconds", 1800)
	v.SetDefault("discovery.sources_file", "sources.yaml")
	v.SetDefault("discovery.base_dir", ".")
	v.SetDefault("discovery.user_agent", "MetaCrawler/1.0 (+polite; research)")
	v.SetDefault("discovery.delay_seconds", 2.0)
	v.SetDefault("discovery.jitter_seconds", 1.0)
	v.SetDefault("discovery.timeout_seconds", 30)
	v.SetDefault("discovery.source_timeout_seconds", 60)
	v.SetDefault("discovery.requests_per_second", 1.0)
	v.SetDefault("discovery.max_body_bytes", 20<<20)
	v.SetDefault("discovery.local_only", false)
	v.SetDefault("lookup.base_url", "https://api.hunter.io/v2")
	v.SetDefault("lookup.requests_per_second", 0.5)
	v.SetDefault("lookup.timeout_seconds", 30)
	v.SetDefault("enrich.max_companies", 50)
	v.SetDefault("enrich.delay_seconds", 2.0)
	v.SetDefault("enrich.jitter_seconds", 0.0)
	v.SetDefault("enrich.export_dir", ".")
	v.SetDefault("enrich.category", "engineering")
	v.SetDefault("enrich.recheck_after_hours", 24*30)
	v.SetDefault("enrich.import_latest", true)
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.auth_mode", "authenticated")
	v.SetDefault("smtp.address_family", "any")
	v.SetDefault("smtp.tls_mode", "starttls")
	v.SetDefault("smtp.dial_timeout_seconds", 30)
	v.SetDefault("smtp.command_timeout_seconds", 60)
	v.SetDefault("smtp.idle_probe_seconds", 30)
	v.SetDefault("send.limit", 20)
	v.SetDefault("send.delay_seconds", 45.0)
	v.SetDefault("send.jitter_seconds", 0.0)
	v.SetDefault("send.dry_run", false)
	v.SetDefault("send.attachment_path", "resume.pdf")
	v.SetDefault("send.attachment_content_type", "application/pdf")
	v.SetDefault("send.signature", "Best,")
	v.SetDefault("server.port", 8080)
}

// Validate enforces required values and reasonable limits. Credentials are
// checked where they are used so that commands which never send mail do not
// require them.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if strings.TrimSpace(c.Store.Path) == "" {
			return fmt.Errorf("store.path must be set for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("store.dsn must be set for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver must be %q or %q, got %q", DriverSQLite, DriverPostgres, c.Store.Driver)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Send.Limit <= 0 {
		return fmt.Errorf("send.limit must be > 0")
	}
	if c.Send.DelaySeconds < 0 || c.Send.JitterSeconds < 0 {
		return fmt.Errorf("send delays must be >= 0")
	}
	if c.Discovery.DelaySeconds < 0 || c.Discovery.JitterSeconds < 0 {
		return fmt.Errorf("discovery delays must be >= 0")
	}
	if c.Enrich.DelaySeconds < 0 || c.Enrich.JitterSeconds < 0 {
		return fmt.Errorf("enrich delays must be >= 0")
	}
	if c.Enrich.MaxCompanies < 0 {
		return fmt.Errorf("enrich.max_companies must be >= 0")
	}
	switch c.SMTP.AuthMode {
	case "authenticated", "allow_listed":
	default:
		return fmt.Errorf("smtp.auth_mode must be authenticated or allow_listed, got %q", c.SMTP.AuthMode)
	}
	switch c.SMTP.AddressFamily {
	case "any", "ipv4":
	default:
		return fmt.Errorf("smtp.address_family must be any or ipv4, got %q", c.SMTP.AddressFamily)
	}
	switch c.SMTP.TLSMode {
	case "starttls", "implicit", "none":
	default:
		return fmt.Errorf("smtp.tls_mode must be starttls, implicit or none, got %q", c.SMTP.TLSMode)
	}
	return nil
}

// Seconds converts fractional seconds to a duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// RecheckAfter returns the enrichment recheck window.
func (e EnrichConfig) RecheckAfter() time.Duration {
	return time.Duration(e.RecheckAfterHours) * time.Hour
}

// Sender returns the From address, falling back to the SMTP username.
func (c Config) Sender() string {
	if c.Send.From != "" {
		return c.Send.From
	}
	return c.SMTP.Username
}
