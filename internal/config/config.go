package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/qmdoc/doccontrol/pkg/logger"
)

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Documents DocumentsConfig
	Policy    PolicyConfig
	Renderer  RendererConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Identity  IdentityConfig
	MinIO     MinIOConfig
	CORS      CORSConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StorageConfig locates the sqlite database and the artifact tree.
type StorageConfig struct {
	Root         string
	DatabasePath string
}

type DocumentsConfig struct {
	IDPrefix     string
	ReviewMonths int
	LockTTL      time.Duration
}

// PolicyConfig points at an optional YAML/JSON file overriding the built-in
// permission and workflow rules.
type PolicyConfig struct {
	File string
}

// RendererConfig configures the external converter, watermark and signer
// commands. The renderer receives the output directory and the input path as
// its last two arguments.
type RendererConfig struct {
	Command       string
	Args          []string
	Timeout       time.Duration
	WatermarkCmd  string
	WatermarkArgs []string
	SignerCmd     string
	SignerArgs    []string
}

type MongoDBConfig struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port, or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

type IdentityConfig struct {
	JWTSecret     string
	TokenTTL      time.Duration
	OIDCIssuer    string
	OIDCClientID  string
	AllowInsecure bool
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

// Enabled reports whether replication is configured.
func (m MinIOConfig) Enabled() bool { return m.Endpoint != "" }

type CORSConfig struct {
	AllowedOrigins []string
}

// LoadConfig loads configuration from environment variables and an optional
// .env file in the working directory.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("SERVER_READ_TIMEOUT", 30)
	viper.SetDefault("SERVER_WRITE_TIMEOUT", 60)
	viper.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 10)
	viper.SetDefault("STORAGE_ROOT", "data/documents")
	viper.SetDefault("DOCUMENTS_ID_PREFIX", "DOC")
	viper.SetDefault("DOCUMENTS_REVIEW_MONTHS", 12)
	viper.SetDefault("DOCUMENTS_LOCK_TTL", 300)
	viper.SetDefault("RENDERER_TIMEOUT", 120)
	viper.SetDefault("MONGODB_DATABASE", "qmdoc")
	viper.SetDefault("MONGODB_COLLECTION", "actors")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("RATE_LIMIT_ENABLED", false)
	viper.SetDefault("RATE_LIMIT_RPS", 10.0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	viper.SetDefault("JWT_TOKEN_TTL", 480)
	viper.SetDefault("MINIO_BUCKET", "qmdoc")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")

	root := viper.GetString("STORAGE_ROOT")
	dbPath := viper.GetString("STORAGE_DATABASE_PATH")
	if dbPath == "" {
		dbPath = filepath.Join(root, "qmdoc.sqlite")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            viper.GetString("SERVER_PORT"),
			Host:            viper.GetString("SERVER_HOST"),
			Environment:     viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:     time.Duration(viper.GetInt("SERVER_READ_TIMEOUT")) * time.Second,
			WriteTimeout:    time.Duration(viper.GetInt("SERVER_WRITE_TIMEOUT")) * time.Second,
			ShutdownTimeout: time.Duration(viper.GetInt("SERVER_SHUTDOWN_TIMEOUT")) * time.Second,
		},
		Storage: StorageConfig{
			Root:         root,
			DatabasePath: dbPath,
		},
		Documents: DocumentsConfig{
			IDPrefix:     viper.GetString("DOCUMENTS_ID_PREFIX"),
			ReviewMonths: viper.GetInt("DOCUMENTS_REVIEW_MONTHS"),
			LockTTL:      time.Duration(viper.GetInt("DOCUMENTS_LOCK_TTL")) * time.Second,
		},
		Policy: PolicyConfig{
			File: viper.GetString("POLICY_FILE"),
		},
		Renderer: RendererConfig{
			Command:       viper.GetString("RENDERER_COMMAND"),
			Args:          splitList(viper.GetString("RENDERER_ARGS"), " "),
			Timeout:       time.Duration(viper.GetInt("RENDERER_TIMEOUT")) * time.Second,
			WatermarkCmd:  viper.GetString("WATERMARK_COMMAND"),
			WatermarkArgs: splitList(viper.GetString("WATERMARK_ARGS"), " "),
			SignerCmd:     viper.GetString("SIGNER_COMMAND"),
			SignerArgs:    splitList(viper.GetString("SIGNER_ARGS"), " "),
		},
		MongoDB: MongoDBConfig{
			URI:        viper.GetString("MONGODB_URI"),
			Database:   viper.GetString("MONGODB_DATABASE"),
			Collection: viper.GetString("MONGODB_COLLECTION"),
			Timeout:    time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Identity: IdentityConfig{
			JWTSecret:     viper.GetString("JWT_SECRET"),
			TokenTTL:      time.Duration(viper.GetInt("JWT_TOKEN_TTL")) * time.Minute,
			OIDCIssuer:    viper.GetString("OIDC_ISSUER"),
			OIDCClientID:  viper.GetString("OIDC_CLIENT_ID"),
			AllowInsecure: viper.GetBool("ALLOW_INSECURE_TOKEN"),
		},
		MinIO: MinIOConfig{
			Endpoint:  viper.GetString("MINIO_ENDPOINT"),
			AccessKey: viper.GetString("MINIO_ACCESS_KEY"),
			SecretKey: viper.GetString("MINIO_SECRET_KEY"),
			UseSSL:    viper.GetBool("MINIO_USE_SSL"),
			Bucket:    viper.GetString("MINIO_BUCKET"),
		},
		CORS: CORSConfig{
			AllowedOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS"), ","),
		},
	}

	if cfg.Identity.JWTSecret == "" && cfg.Identity.OIDCIssuer == "" && !cfg.Identity.AllowInsecure {
		logger.Warnf("config: neither JWT_SECRET nor OIDC_ISSUER is set; every API call will be rejected")
	}
	if cfg.Documents.ReviewMonths <= 0 {
		cfg.Documents.ReviewMonths = 12
	}

	return cfg, nil
}

func splitList(raw, sep string) []string {
	var out []string
	for _, part := range strings.Split(raw, sep) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
