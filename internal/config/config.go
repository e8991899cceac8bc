package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Backup       BackupConfig       `yaml:"backup"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Logging      LoggingConfig      `yaml:"logging"`
	API          APIConfig          `yaml:"api"`
	Admin        AdminConfig        `yaml:"admin"`
	Availability AvailabilityConfig `yaml:"availability"`
	Contact      ContactConfig      `yaml:"contact"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	Google       GoogleConfig       `yaml:"google"`
	AMQP         AMQPConfig         `yaml:"amqp"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// TrustedProxies lists proxy addresses or CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

// APIAuthConfig guards the gRPC API used by internal tools.
type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AdminConfig struct {
	JWTSecret string      `yaml:"jwt_secret"`
	TokenTTL  string      `yaml:"token_ttl"`
	Users     []AdminUser `yaml:"users"`
}

// AdminUser holds a bcrypt password hash, never a plain password.
type AdminUser struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// TokenDuration parses TokenTTL, falling back to 12h.
func (a AdminConfig) TokenDuration() time.Duration {
	if d, err := time.ParseDuration(a.TokenTTL); err == nil && d > 0 {
		return d
	}
	return 12 * time.Hour
}

type AvailabilityConfig struct {
	MatchMode      string `yaml:"match_mode"` // exact | window
	SlotMinutes    int    `yaml:"slot_minutes"`
	MaxBookingDays int    `yaml:"max_booking_days"`
	CacheTTL       string `yaml:"cache_ttl"`
}

// CacheDuration parses CacheTTL; zero disables the day cache.
func (a AvailabilityConfig) CacheDuration() time.Duration {
	d, err := time.ParseDuration(a.CacheTTL)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

type ContactConfig struct {
	RateLimitMessages int `yaml:"rate_limit_messages"`
	RateLimitWindow   int `yaml:"rate_limit_window"` // seconds
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	Timezone    string `yaml:"timezone"`
}

type TelegramConfig struct {
	BotToken     string  `yaml:"bot_token"`
	AdminChatIDs []int64 `yaml:"admin_chat_ids"`
	Debug        bool    `yaml:"debug"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	BookingSpreadSheetID  string `yaml:"bookings_spreadsheet_id"`
	ContactSpreadSheetID  string `yaml:"contacts_spreadsheet_id"`
}

type AMQPConfig struct {
	URL      string   `yaml:"url"`
	Exchange string   `yaml:"exchange"`
	Events   []string `yaml:"events"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; real deployments pass the environment directly.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	switch c.Availability.MatchMode {
	case "exact", "window":
	default:
		return fmt.Errorf("availability.match_mode must be exact or window, got %q", c.Availability.MatchMode)
	}
	if c.Availability.SlotMinutes <= 0 {
		return errors.New("availability.slot_minutes must be positive")
	}

	if len(c.Admin.Users) > 0 && len(c.Admin.JWTSecret) < 16 {
		return errors.New("admin.jwt_secret must be at least 16 characters when admin users are configured")
	}
	seen := make(map[string]bool, len(c.Admin.Users))
	for _, u := range c.Admin.Users {
		name := strings.ToLower(strings.TrimSpace(u.Username))
		if name == "" || u.PasswordHash == "" {
			return errors.New("admin users need username and password_hash")
		}
		if seen[name] {
			return fmt.Errorf("duplicate admin user: %s", u.Username)
		}
		seen[name] = true
	}

	for _, p := range c.API.HTTP.TrustedProxies {
		if !validProxyEntry(p) {
			return fmt.Errorf("invalid api.http.trusted_proxies entry %q", p)
		}
	}

	if c.App.Timezone != "" {
		if _, err := time.LoadLocation(c.App.Timezone); err != nil {
			return fmt.Errorf("invalid app.timezone: %w", err)
		}
	}

	return nil
}

func validProxyEntry(raw string) bool {
	raw = strings.TrimSpace(raw)
	if _, err := netip.ParsePrefix(raw); err == nil {
		return true
	}
	_, err := netip.ParseAddr(raw)
	return err == nil
}

// Location returns the business timezone, UTC when unset.
func (c *Config) Location() *time.Location {
	if c.App.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) applyDefaults() {
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Availability.MatchMode == "" {
		c.Availability.MatchMode = "exact"
	}
	if c.Availability.SlotMinutes == 0 {
		c.Availability.SlotMinutes = 120
	}
	if c.Availability.MaxBookingDays == 0 {
		c.Availability.MaxBookingDays = 180
	}

	if c.Contact.RateLimitMessages == 0 {
		c.Contact.RateLimitMessages = 5
	}
	if c.Contact.RateLimitWindow == 0 {
		c.Contact.RateLimitWindow = 3600
	}

	if c.AMQP.Exchange == "" {
		c.AMQP.Exchange = "gprbooking.events"
	}
}
