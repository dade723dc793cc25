package server

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"yamdb/internal/domain/errors"
	"yamdb/internal/mail"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Duration reads "24h"-style strings from JSON and YAML config files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrConfigInvalidFormat, string(b))
	}
	return d.set(s)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.set(node.Value)
}

func (d *Duration) set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%w: %s", errors.ErrConfigInvalidFormat, s)
	}
	d.Duration = v
	return nil
}

type Config struct {
	Addr        string      `json:"addr" yaml:"addr"`
	Port        int         `json:"port" yaml:"port"`
	Storage     string      `json:"storage" yaml:"storage"`
	DBStr       string      `json:"db_str" yaml:"db_str"`
	MigratePath string      `json:"migrate_path" yaml:"migrate_path"`
	JWTSecret   string      `json:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL    Duration    `json:"token_ttl" yaml:"token_ttl"`
	LogLevel    string      `json:"log_level" yaml:"log_level"`
	Mail        mail.Config `json:"mail" yaml:"mail"`

	RedisAddr     string   `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string   `json:"redis_password" yaml:"redis_password"`
	RateLimit     int      `json:"rate_limit" yaml:"rate_limit"`
	RateWindow    Duration `json:"rate_window" yaml:"rate_window"`
}

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

const (
	defaultAddr        = "0.0.0.0"
	defaultPort        = 8080
	defaultDBStr       = "postgresql://shouldbeinVaultuser:shouldbeinVaultpassword@db:5432/yamdb?sslmode=disable"
	defaultMigratePath = "migrations"
	defaultJWTSecret   = "shouldbeinVaultsecret"
	defaultTokenTTL    = 24 * time.Hour
	defaultLogLevel    = "info"
	defaultRateLimit   = 20
	defaultRateWindow  = time.Minute
	defaultEnvFile     = ".env"
)

func DefaultConfig() *Config {
	return &Config{
		Addr:        defaultAddr,
		Port:        defaultPort,
		Storage:     StoragePostgres,
		DBStr:       defaultDBStr,
		MigratePath: defaultMigratePath,
		JWTSecret:   defaultJWTSecret,
		TokenTTL:    Duration{defaultTokenTTL},
		LogLevel:    defaultLogLevel,
		Mail:        mail.Config{Port: 25, FromAddress: "noreply@yamdb.local", FromName: "YaMDb"},
		RateLimit:   defaultRateLimit,
		RateWindow:  Duration{defaultRateWindow},
	}
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Addr, c.Port)
}

// ReadConfig layers defaults, the config file, .env, the environment and
// finally the flags that were set explicitly on the command line.
func ReadConfig() (*Config, error) {
	return Load(os.Args[1:])
}

func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("yamdb", flag.ContinueOnError)
	var (
		addr        = fs.String("addr", defaultAddr, "адрес сервера (по умолчанию 0.0.0.0)")
		port        = fs.Int("port", defaultPort, "порт сервера (по умолчанию 8080)")
		storage     = fs.String("storage", StoragePostgres, "хранилище: postgres или memory")
		dbstr       = fs.String("dbstr", defaultDBStr, "строка подключения к БД")
		dbDsn       = fs.String("dbdsn", "", "DSN для подключения к базе данных (приоритетнее dbstr)")
		migratePath = fs.String("migratepath", defaultMigratePath, "путь к папке с миграциями")
		logLevel    = fs.String("loglevel", defaultLogLevel, "уровень логирования: debug, info, warn, error")
		redisAddr   = fs.String("redis", "", "адрес Redis для ограничения частоты запросов")
		configFile  = fs.String("c", "", "путь к файлу конфигурации (JSON или YAML)")
		envFile     = fs.String("env", defaultEnvFile, "путь к .env файлу")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	path := *configFile
	if path == "" {
		path = os.Getenv("CONFIG")
	}
	if path != "" {
		if err := loadConfigFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		slog.Warn("не удалось загрузить .env", "path", *envFile, "error", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "port":
			cfg.Port = *port
		case "storage":
			cfg.Storage = *storage
		case "dbstr":
			cfg.DBStr = *dbstr
		case "migratepath":
			cfg.MigratePath = *migratePath
		case "loglevel":
			cfg.LogLevel = *logLevel
		case "redis":
			cfg.RedisAddr = *redisAddr
		}
	})
	if *dbDsn != "" {
		cfg.DBStr = *dbDsn
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w %s: %v", errors.ErrConfigFileReadFailed, path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrConfigParseFailed, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	str := map[string]*string{
		"ADDR":           &cfg.Addr,
		"STORAGE":        &cfg.Storage,
		"DB_STR":         &cfg.DBStr,
		"MIGRATE_PATH":   &cfg.MigratePath,
		"JWT_SECRET":     &cfg.JWTSecret,
		"LOG_LEVEL":      &cfg.LogLevel,
		"SMTP_HOST":      &cfg.Mail.Host,
		"SMTP_USERNAME":  &cfg.Mail.Username,
		"SMTP_PASSWORD":  &cfg.Mail.Password,
		"MAIL_FROM":      &cfg.Mail.FromAddress,
		"MAIL_FROM_NAME": &cfg.Mail.FromName,
		"REDIS_ADDR":     &cfg.RedisAddr,
		"REDIS_PASSWORD": &cfg.RedisPassword,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"PORT":       &cfg.Port,
		"SMTP_PORT":  &cfg.Mail.Port,
		"RATE_LIMIT": &cfg.RateLimit,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w в переменной окружения %s: %s", errors.ErrConfigInvalidFormat, key, v)
		}
		*dst = n
	}

	durations := map[string]*Duration{
		"TOKEN_TTL":   &cfg.TokenTTL,
		"RATE_WINDOW": &cfg.RateWindow,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		if err := dst.set(v); err != nil {
			return fmt.Errorf("переменная окружения %s: %w", key, err)
		}
	}

	if v := os.Getenv("SMTP_TLS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w в переменной окружения SMTP_TLS: %s", errors.ErrConfigInvalidFormat, v)
		}
		cfg.Mail.UseTLS = b
	}

	if cfg.DBStr == defaultDBStr {
		dbUser := os.Getenv("DB_USER")
		dbPassword := os.Getenv("DB_PASSWORD")
		dbName := os.Getenv("DB_NAME")
		dbHost := os.Getenv("DB_HOST")
		dbPort := os.Getenv("DB_PORT")
		if dbUser != "" && dbPassword != "" && dbName != "" && dbHost != "" && dbPort != "" {
			cfg.DBStr = fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable", dbUser, dbPassword, dbHost, dbPort, dbName)
		}
	}
	return nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w - порт должен быть от 1 до 65535: %d", errors.ErrConfigInvalidFormat, c.Port)
	}
	if c.Storage != StoragePostgres && c.Storage != StorageMemory {
		return fmt.Errorf("%w - неизвестное хранилище: %s", errors.ErrConfigInvalidFormat, c.Storage)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("%w - пустой JWT секрет", errors.ErrConfigInvalidFormat)
	}
	if c.TokenTTL.Duration <= 0 {
		return fmt.Errorf("%w - время жизни токена должно быть положительным", errors.ErrConfigInvalidFormat)
	}
	return nil
}

// NewLogger builds the JSON slog logger used by the service and installs it
// as the default. Unknown levels fall back to info.
func NewLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
	slog.SetDefault(logger)
	return logger
}
