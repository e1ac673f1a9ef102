package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dtroode/apiauth-server/internal/codec"
	"github.com/dtroode/apiauth-server/internal/opaque"
)

// Config contains server configuration parameters.
type Config struct {
	LogLevel        int           `env:"LOG_LEVEL" envDefault:"0"`
	LogFormat       string        `env:"LOG_FORMAT" envDefault:"text"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"10m"`
	HTTP            HTTP          `envPrefix:"HTTP_"`
	GRPC            GRPC          `envPrefix:"GRPC_"`
	Database        Database      `envPrefix:"DATABASE_"`
	Auth            Auth          `envPrefix:"AUTH_"`
	JWT             JWT           `envPrefix:"JWT_"`
	Audit           Audit         `envPrefix:"AUDIT_"`
	Storage         Storage       `envPrefix:"MINIO_"`
}

// HTTP contains REST server parameters.
type HTTP struct {
	Port               string `env:"PORT" envDefault:"8080"`
	EnableHTTPS        bool   `env:"ENABLE_HTTPS" envDefault:"false"`
	CertFileName       string `env:"CERT_FILE_NAME" envDefault:"cert.pem"`
	PrivateKeyFileName string `env:"PRIVATE_KEY_FILE_NAME" envDefault:"key.pem"`
}

// GRPC contains gRPC server parameters.
type GRPC struct {
	Port               string `env:"PORT" envDefault:"50051"`
	EnableHTTPS        bool   `env:"ENABLE_HTTPS" envDefault:"false"`
	CertFileName       string `env:"CERT_FILE_NAME" envDefault:"cert.pem"`
	PrivateKeyFileName string `env:"PRIVATE_KEY_FILE_NAME" envDefault:"key.pem"`
}

// Database contains database connection parameters. An empty DSN selects
// the in-memory token store.
type Database struct {
	DSN string `env:"DSN"`
}

// Auth contains opaque token parameters.
type Auth struct {
	// MasterKey is the Safe64 encoded key opaque tokens are sealed with.
	MasterKey string `env:"MASTER_KEY,notEmpty"`
	// EnableLogin exposes password login backed by the users table.
	EnableLogin bool `env:"ENABLE_LOGIN" envDefault:"false"`
	// BootstrapLogin and BootstrapPassword create a user at startup when
	// both are set.
	BootstrapLogin    string `env:"BOOTSTRAP_LOGIN"`
	BootstrapPassword string `env:"BOOTSTRAP_PASSWORD"`
}

// ErrMissingMasterKey is returned when no master key is configured.
var ErrMissingMasterKey = errors.New("master key is not set")

// EncryptionKey decodes MasterKey. A missing or unusable key is a configuration
// error.
func (a Auth) EncryptionKey() ([]byte, error) {
	if strings.TrimSpace(a.MasterKey) == "" {
		return nil, ErrMissingMasterKey
	}
	key, err := codec.Safe64.DecodeString(a.MasterKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode master key: %w", err)
	}
	if len(key) < opaque.MinKeyLength {
		return nil, fmt.Errorf("master key is %d bytes: %w", len(key), opaque.ErrKeyTooShort)
	}
	return key, nil
}

// JWT contains JWT-related parameters.
type JWT struct {
	Secret          string        `env:"SECRET,notEmpty"`
	Issuer          string        `env:"ISSUER" envDefault:"apiauth"`
	Audience        string        `env:"AUDIENCE" envDefault:"apiauth-clients"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
}

// Audit contains authentication audit trail parameters.
type Audit struct {
	Enabled       bool          `env:"ENABLED" envDefault:"false"`
	FlushInterval time.Duration `env:"FLUSH_INTERVAL" envDefault:"1m"`
	BatchSize     int           `env:"BATCH_SIZE" envDefault:"500"`
}

// Storage contains object storage parameters.
type Storage struct {
	Endpoint  string `env:"ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"ACCESS_KEY" envDefault:"apiauth-access-key"`
	SecretKey string `env:"SECRET_KEY" envDefault:"apiauth-secret-key"`
	Bucket    string `env:"BUCKET_NAME" envDefault:"apiauth-audit"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}
