// Package config загружает конфигурацию сервиса из флагов и переменных окружения.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Ключи конфигурации. Совпадают с именами переменных окружения.
const (
	KeyDatabaseURL     = "DATABASE_URL"
	KeyDBSSLMode       = "DB_SSLMODE"
	KeyServerPort      = "SERVER_PORT"
	KeyTLSCertFile     = "TLS_CERT_FILE"
	KeyTLSKeyFile      = "TLS_KEY_FILE"
	KeyLogLevel        = "LOG_LEVEL"
	KeyCronSecret      = "CRON_SECRET"
	KeyTrustCronHeader = "TRUST_CRON_HEADER"
	KeyJWKSURL         = "CLERK_JWKS_URL"
	KeyIssuer          = "CLERK_ISSUER"
	KeyAudience        = "CLERK_AUDIENCE"
	KeyJWKSTTL         = "JWKS_TTL"
	KeyQuoteCacheTTL   = "QUOTE_CACHE_TTL"
	KeyUpstreamTimeout = "UPSTREAM_TIMEOUT"
	KeyMinioEndpoint   = "MINIO_ENDPOINT"
	KeyMinioUser       = "MINIO_USER"
	KeyMinioPassword   = "MINIO_PASSWORD" //nolint:gosec // имя переменной окружения
	KeyMinioBucket     = "MINIO_BUCKET"
	KeyMinioUseSSL     = "MINIO_USE_SSL"
	KeyRabbitURL       = "RABBITMQ_URL"
	KeyRabbitExchange  = "RABBITMQ_EXCHANGE"
	KeyAutoMigrate     = "AUTO_MIGRATE"

	// Устаревшее имя переменной с DSN.
	envDatabaseDSN = "DATABASE_DSN"
)

// Значения по умолчанию.
const (
	DefaultServerPort      = "8080"
	DefaultLogLevel        = "info"
	DefaultJWKSTTL         = time.Hour
	DefaultQuoteCacheTTL   = 30 * time.Second
	DefaultUpstreamTimeout = 12 * time.Second
	DefaultMinioBucket     = "metalmetric-archive"
	DefaultRabbitExchange  = "metalmetric.events"
)

// ErrMissingDSN - не задана строка подключения к БД.
var ErrMissingDSN = errors.New("database DSN is not set (--database-url or " + KeyDatabaseURL + ")")

// MinioConfig - параметры объектного хранилища. Пустой Endpoint отключает архив.
type MinioConfig struct {
	Endpoint string
	User     string
	Password string
	Bucket   string
	UseSSL   bool
}

// AuthConfig - параметры проверки токенов провайдера идентичности.
type AuthConfig struct {
	JWKSURL  string
	Issuer   string
	Audience string
	JWKSTTL  time.Duration
}

// RabbitConfig - параметры публикации событий. Пустой URL отключает публикацию.
type RabbitConfig struct {
	URL      string
	Exchange string
}

// Config - конфигурация сервиса.
type Config struct {
	DatabaseDSN     string
	DBSSLMode       string
	ServerPort      string
	TLSCertFile     string
	TLSKeyFile      string
	LogLevel        string
	CronSecret      string
	TrustCronHeader bool
	QuoteCacheTTL   time.Duration
	UpstreamTimeout time.Duration
	AutoMigrate     bool

	Auth   AuthConfig
	Minio  MinioConfig
	Rabbit RabbitConfig
}

// flagSpec описывает флаг командной строки и связанный ключ.
type flagSpec struct {
	name  string
	key   string
	usage string
}

var flagSpecs = []flagSpec{
	{"database-url", KeyDatabaseURL, "Строка подключения к PostgreSQL"},
	{"db-sslmode", KeyDBSSLMode, "Режим TLS для PostgreSQL (disable, require, verify-full)"},
	{"port", KeyServerPort, "Порт HTTP-сервера"},
	{"cert-file", KeyTLSCertFile, "Путь к файлу TLS-сертификата"},
	{"key-file", KeyTLSKeyFile, "Путь к файлу TLS-ключа"},
	{"log-level", KeyLogLevel, "Уровень логирования"},
}

// SetDefaults задает значения по умолчанию и привязку к переменным окружения.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyServerPort, DefaultServerPort)
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeyJWKSTTL, DefaultJWKSTTL)
	v.SetDefault(KeyQuoteCacheTTL, DefaultQuoteCacheTTL)
	v.SetDefault(KeyUpstreamTimeout, DefaultUpstreamTimeout)
	v.SetDefault(KeyMinioBucket, DefaultMinioBucket)
	v.SetDefault(KeyMinioUseSSL, false)
	v.SetDefault(KeyRabbitExchange, DefaultRabbitExchange)
	v.SetDefault(KeyAutoMigrate, false)
	v.SetDefault(KeyTrustCronHeader, false)

	v.AutomaticEnv()
	_ = v.BindEnv(KeyDatabaseURL, KeyDatabaseURL, envDatabaseDSN)
}

// BindFlags регистрирует флаги и привязывает их к viper.
// Флаги имеют приоритет над переменными окружения.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	for _, f := range flagSpecs {
		if fs.Lookup(f.name) == nil {
			fs.String(f.name, "", fmt.Sprintf("%s (env: %s)", f.usage, f.key))
		}
		if err := v.BindPFlag(f.key, fs.Lookup(f.name)); err != nil {
			return fmt.Errorf("bind flag %s: %w", f.name, err)
		}
	}
	return nil
}

// Load собирает Config из viper.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DatabaseDSN:     strings.TrimSpace(v.GetString(KeyDatabaseURL)),
		DBSSLMode:       strings.TrimSpace(v.GetString(KeyDBSSLMode)),
		ServerPort:      stringOr(v.GetString(KeyServerPort), DefaultServerPort),
		TLSCertFile:     v.GetString(KeyTLSCertFile),
		TLSKeyFile:      v.GetString(KeyTLSKeyFile),
		LogLevel:        stringOr(v.GetString(KeyLogLevel), DefaultLogLevel),
		CronSecret:      strings.TrimSpace(v.GetString(KeyCronSecret)),
		TrustCronHeader: v.GetBool(KeyTrustCronHeader),
		QuoteCacheTTL:   v.GetDuration(KeyQuoteCacheTTL),
		UpstreamTimeout: v.GetDuration(KeyUpstreamTimeout),
		AutoMigrate:     v.GetBool(KeyAutoMigrate),
		Auth: AuthConfig{
			JWKSURL:  strings.TrimSpace(v.GetString(KeyJWKSURL)),
			Issuer:   strings.TrimSpace(v.GetString(KeyIssuer)),
			Audience: strings.TrimSpace(v.GetString(KeyAudience)),
			JWKSTTL:  v.GetDuration(KeyJWKSTTL),
		},
		Minio: MinioConfig{
			Endpoint: strings.TrimSpace(v.GetString(KeyMinioEndpoint)),
			User:     v.GetString(KeyMinioUser),
			Password: v.GetString(KeyMinioPassword),
			Bucket:   stringOr(v.GetString(KeyMinioBucket), DefaultMinioBucket),
			UseSSL:   v.GetBool(KeyMinioUseSSL),
		},
		Rabbit: RabbitConfig{
			URL:      strings.TrimSpace(v.GetString(KeyRabbitURL)),
			Exchange: stringOr(v.GetString(KeyRabbitExchange), DefaultRabbitExchange),
		},
	}

	if cfg.QuoteCacheTTL <= 0 {
		cfg.QuoteCacheTTL = DefaultQuoteCacheTTL
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if cfg.Auth.JWKSTTL <= 0 {
		cfg.Auth.JWKSTTL = DefaultJWKSTTL
	}
	return cfg, nil
}

// Validate проверяет обязательные параметры.
func (c *Config) Validate() error {
	if c.DatabaseDSN == "" {
		return ErrMissingDSN
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("TLS requires both " + KeyTLSCertFile + " and " + KeyTLSKeyFile)
	}
	if _, err := NormalizeDSN(c.DatabaseDSN, c.DBSSLMode); err != nil {
		return err
	}
	return nil
}

// TLSEnabled сообщает, что сервер нужно запускать по HTTPS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// NormalizeDSN проверяет URL-форму DSN и выставляет sslmode, если он не задан:
// явный режим из конфигурации, иначе disable для локальных хостов и require
// для всех остальных. DSN в форме "key=value" дополняется только явным режимом.
func NormalizeDSN(dsn, sslmode string) (string, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return "", ErrMissingDSN
	}

	if !strings.Contains(dsn, "://") {
		if sslmode != "" && !strings.Contains(dsn, "sslmode=") {
			dsn += " sslmode=" + sslmode
		}
		return dsn, nil
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("database url must start with postgres:// or postgresql://, got %q", u.Scheme+"://")
	}
	if u.Hostname() == "" || len(strings.TrimPrefix(u.Path, "/")) == 0 {
		return "", errors.New("database url is missing host or database name")
	}

	q := u.Query()
	if q.Get("sslmode") == "" {
		switch {
		case sslmode != "":
			q.Set("sslmode", sslmode)
		case isLocalHost(u.Hostname()):
			q.Set("sslmode", "disable")
		default:
			q.Set("sslmode", "require")
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func isLocalHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func stringOr(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
