package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "CALTASK"

type ServerConfig struct {
	Port            int           `yaml:"port"`
	Mode            string        `yaml:"mode"` // gin mode: debug|release|test
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // postgres|sqlite
	DSN    string `yaml:"url"`
	Path   string `yaml:"path"` // sqlite file
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	AccessTTL  time.Duration `yaml:"access_ttl"`
	RefreshTTL time.Duration `yaml:"refresh_ttl"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
}

type TelegramConfig struct {
	BotToken       string        `yaml:"bot_token"`
	ReminderWindow time.Duration `yaml:"reminder_window"`
	PollInterval   time.Duration `yaml:"poll_interval"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

type GoogleConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	CalendarID      string `yaml:"calendar_id"`
}

type PDFConfig struct {
	// FontPath is a TTF used for non-Latin titles; empty uses the core font.
	FontPath string `yaml:"font_path"`
	Timezone string `yaml:"timezone"`
}

type RecurrenceConfig struct {
	// ExpandOnCreate expands recurring tasks on create even without ?expand=true.
	ExpandOnCreate bool `yaml:"expand_on_create"`
}

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Auth       AuthConfig       `yaml:"auth"`
	Log        LogConfig        `yaml:"log"`
	Email      EmailConfig      `yaml:"email"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Redis      RedisConfig      `yaml:"redis"`
	Google     GoogleConfig     `yaml:"google"`
	Recurrence RecurrenceConfig `yaml:"recurrence"`
	PDF        PDFConfig        `yaml:"pdf"`
}

// LoadConfig reads the YAML file at path. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		f, err := os.Open(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		default:
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/calendar.db"
	}
	if cfg.Auth.JWTSecret == "" {
		cfg.Auth.JWTSecret = "change-me"
	}
	if cfg.Auth.AccessTTL == 0 {
		cfg.Auth.AccessTTL = 15 * time.Minute
	}
	if cfg.Auth.RefreshTTL == 0 {
		cfg.Auth.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 30
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 90
	}
	if cfg.Email.SMTPPort == 0 {
		cfg.Email.SMTPPort = 587
	}
	if cfg.Telegram.ReminderWindow == 0 {
		cfg.Telegram.ReminderWindow = 15 * time.Minute
	}
	if cfg.Telegram.PollInterval == 0 {
		cfg.Telegram.PollInterval = time.Minute
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = 30 * time.Second
	}
	if cfg.Google.CalendarID == "" {
		cfg.Google.CalendarID = "primary"
	}
	if cfg.PDF.Timezone == "" {
		cfg.PDF.Timezone = "UTC"
	}
}

// DatabaseURL is the DSN for postgres or the file path for sqlite.
func (cfg *Config) DatabaseURL() string {
	if cfg.Database.Driver == "sqlite" && cfg.Database.DSN == "" {
		return cfg.Database.Path
	}
	return cfg.Database.DSN
}

// NewViper returns a viper instance reading CALTASK_* environment variables,
// e.g. CALTASK_DATABASE_URL for the key "database.url".
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// ApplyOverrides copies every key set in v (env or bound flag) over the file values.
func ApplyOverrides(cfg *Config, v *viper.Viper) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v.IsSet(key) {
			*dst = v.GetDuration(key)
		}
	}

	num("server.port", &cfg.Server.Port)
	str("server.mode", &cfg.Server.Mode)
	str("database.driver", &cfg.Database.Driver)
	str("database.url", &cfg.Database.DSN)
	str("database.path", &cfg.Database.Path)
	str("auth.jwt_secret", &cfg.Auth.JWTSecret)
	dur("auth.access_ttl", &cfg.Auth.AccessTTL)
	dur("auth.refresh_ttl", &cfg.Auth.RefreshTTL)
	str("log.level", &cfg.Log.Level)
	str("log.file", &cfg.Log.File)
	str("email.smtp_host", &cfg.Email.SMTPHost)
	num("email.smtp_port", &cfg.Email.SMTPPort)
	str("email.smtp_user", &cfg.Email.SMTPUser)
	str("email.smtp_password", &cfg.Email.SMTPPassword)
	str("email.from_email", &cfg.Email.FromEmail)
	str("telegram.bot_token", &cfg.Telegram.BotToken)
	str("redis.addr", &cfg.Redis.Addr)
	str("redis.password", &cfg.Redis.Password)
	num("redis.db", &cfg.Redis.DB)
	str("google.credentials_file", &cfg.Google.CredentialsFile)
	str("google.calendar_id", &cfg.Google.CalendarID)
	str("pdf.font_path", &cfg.PDF.FontPath)
	str("pdf.timezone", &cfg.PDF.Timezone)
	if v.IsSet("recurrence.expand_on_create") {
		cfg.Recurrence.ExpandOnCreate = v.GetBool("recurrence.expand_on_create")
	}
}
