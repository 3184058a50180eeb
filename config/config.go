package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends for authorization codes, clients and users.
const (
	BackendMemory = "memory"
	BackendMongo  = "mongo"
	BackendRedis  = "redis" // codes in redis, clients and users in mongo
)

// KeyPairFiles names the PEM files of one signing key. Paths are relative to
// Config.KeysRoot unless absolute.
type KeyPairFiles struct {
	KeyID          string `mapstructure:"key_id"`
	PublicKeyFile  string `mapstructure:"public_key_file"`
	PrivateKeyFile string `mapstructure:"private_key_file"`
}

// Config holds all configuration for the service. It is built once by Load and
// passed explicitly to every component; nothing mutates it afterwards.
type Config struct {
	HTTPPort        string `mapstructure:"HTTP_PORT"`
	ApplicationRoot string `mapstructure:"APPLICATION_ROOT"`
	Issuer          string `mapstructure:"ISSUER"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	StoreBackend  string `mapstructure:"STORE_BACKEND"`
	MongoURI      string `mapstructure:"MONGO_URI"`
	MongoDBName   string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`
	RedisPrefix   string `mapstructure:"REDIS_PREFIX"`

	// ClientsFile is an optional YAML file of clients registered at startup.
	ClientsFile string `mapstructure:"CLIENTS_FILE"`

	AccessTokenLifetime  time.Duration `mapstructure:"ACCESS_TOKEN_LIFETIME"`
	AuthCodeLifetime     time.Duration `mapstructure:"AUTH_CODE_LIFETIME"`
	AuthCodeReapInterval time.Duration `mapstructure:"AUTH_CODE_REAP_INTERVAL"`

	// UserIdentityHeader is set by the upstream SSO proxy on authorization requests.
	UserIdentityHeader string `mapstructure:"USER_IDENTITY_HEADER"`

	KeysRoot        string         `mapstructure:"KEYS_ROOT"`
	JWTKeyPairFiles []KeyPairFiles `mapstructure:"JWT_KEYPAIR_FILES"`

	// TokenRateLimit is requests per second per client on the token endpoint; 0 disables.
	TokenRateLimit float64 `mapstructure:"TOKEN_RATE_LIMIT"`
	TokenRateBurst int     `mapstructure:"TOKEN_RATE_BURST"`

	// AuditLog writes one JSON line per code issuance and redemption to stdout.
	AuditLog bool `mapstructure:"AUDIT_LOG"`

	OtelEnabled     bool   `mapstructure:"OTEL_ENABLED"`
	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads configuration from file, environment variables, and defaults.
// configFile may be empty, in which case config.yaml is searched in the usual places.
// Environment variables carry the FENCE_ prefix, e.g. FENCE_HTTP_PORT.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/fence/")
		v.AddConfigPath("$HOME/.fence")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("APPLICATION_ROOT", "/user")
	v.SetDefault("ISSUER", "http://localhost:8080/user")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", false)

	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DB_NAME", "fence")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_PREFIX", "fence")
	v.SetDefault("CLIENTS_FILE", "")

	v.SetDefault("ACCESS_TOKEN_LIFETIME", 600*time.Second)
	v.SetDefault("AUTH_CODE_LIFETIME", 600*time.Second)
	v.SetDefault("AUTH_CODE_REAP_INTERVAL", time.Minute)

	v.SetDefault("USER_IDENTITY_HEADER", "persistent_id")

	v.SetDefault("KEYS_ROOT", ".")
	v.SetDefault("JWT_KEYPAIR_FILES", []map[string]any{
		{
			"key_id":           "key-01",
			"public_key_file":  "keys/jwt_public_key.pem",
			"private_key_file": "keys/jwt_private_key.pem",
		},
	})

	v.SetDefault("TOKEN_RATE_LIMIT", 0.0)
	v.SetDefault("TOKEN_RATE_BURST", 10)

	v.SetDefault("AUDIT_LOG", true)

	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "fence")
}

// Validate checks the invariants the rest of the service relies on.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendMongo, BackendRedis:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	if c.AccessTokenLifetime <= 0 {
		return errors.New("ACCESS_TOKEN_LIFETIME must be positive")
	}
	if c.AuthCodeLifetime <= 0 {
		return errors.New("AUTH_CODE_LIFETIME must be positive")
	}
	if c.UserIdentityHeader == "" {
		return errors.New("USER_IDENTITY_HEADER must be set")
	}
	if len(c.JWTKeyPairFiles) == 0 {
		return errors.New("JWT_KEYPAIR_FILES must contain at least one key pair")
	}

	seen := make(map[string]struct{}, len(c.JWTKeyPairFiles))
	for _, kp := range c.JWTKeyPairFiles {
		if kp.KeyID == "" || kp.PublicKeyFile == "" || kp.PrivateKeyFile == "" {
			return fmt.Errorf("incomplete key pair entry %+v", kp)
		}
		if _, dup := seen[kp.KeyID]; dup {
			return fmt.Errorf("duplicate key id %q in JWT_KEYPAIR_FILES", kp.KeyID)
		}
		seen[kp.KeyID] = struct{}{}
	}

	if c.TokenRateLimit < 0 {
		return errors.New("TOKEN_RATE_LIMIT must not be negative")
	}

	return nil
}

// KeyPairPaths returns the configured key pairs with paths resolved against KeysRoot.
func (c *Config) KeyPairPaths() []KeyPairFiles {
	out := make([]KeyPairFiles, 0, len(c.JWTKeyPairFiles))
	for _, kp := range c.JWTKeyPairFiles {
		out = append(out, KeyPairFiles{
			KeyID:          kp.KeyID,
			PublicKeyFile:  c.ResolveKeyPath(kp.PublicKeyFile),
			PrivateKeyFile: c.ResolveKeyPath(kp.PrivateKeyFile),
		})
	}
	return out
}

// ResolveKeyPath resolves a key file path against KeysRoot unless it is absolute.
func (c *Config) ResolveKeyPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.KeysRoot, path)
}
