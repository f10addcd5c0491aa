package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Batch    BatchConfig    `mapstructure:"batch"`
	Render   RenderConfig   `mapstructure:"render"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORS            CORSConfig    `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	URL             string        `mapstructure:"url"` // full DSN, overrides the discrete fields
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		if c.URL != "" {
			return c.URL
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	if c.URL != "" {
		return c.URL
	}
	return c.Path
}

// StorageConfig configures publishing of generated documents to object storage.
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"` // r2, s3, s3compatible; detected from endpoint when empty
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
	Prefix    string `mapstructure:"prefix"`
}

type CacheConfig struct {
	Dir              string        `mapstructure:"dir"`
	MaxMemoryEntries int           `mapstructure:"max_memory_entries"`
	MaxDiskMB        int64         `mapstructure:"max_disk_mb"`
	TTL              time.Duration `mapstructure:"ttl"`
	CleanupInterval  time.Duration `mapstructure:"cleanup_interval"`
}

// MaxDiskBytes converts MaxDiskMB to bytes.
func (c *CacheConfig) MaxDiskBytes() int64 {
	return c.MaxDiskMB << 20
}

type BatchConfig struct {
	DefaultParallelism int           `mapstructure:"default_parallelism"`
	MaxParallelism     int           `mapstructure:"max_parallelism"`
	MaxCount           int           `mapstructure:"max_count"`
	DefaultPageSize    int           `mapstructure:"default_page_size"`
	MaxPageSize        int           `mapstructure:"max_page_size"`
	RetentionDays      int           `mapstructure:"retention_days"`
	CleanupInterval    time.Duration `mapstructure:"cleanup_interval"`
	FilePrefix         string        `mapstructure:"file_prefix"`
}

type RenderConfig struct {
	DefaultFormat   string       `mapstructure:"default_format"`
	DefaultTemplate string       `mapstructure:"default_template"`
	Remote          RemoteConfig `mapstructure:"remote"`
}

// RemoteConfig configures the PDF compile service.
type RemoteConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Engine   string        `mapstructure:"engine"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type NotifyConfig struct {
	SMTP    SMTPConfig    `mapstructure:"smtp"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	AMQP    AMQPConfig    `mapstructure:"amqp"`
}

type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type WebhookConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

type AMQPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Queue   string `mapstructure:"queue"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	v.BindEnv("storage.bucket", "S3_BUCKET")
	v.BindEnv("storage.public_url", "S3_PUBLIC_URL")
	v.BindEnv("render.remote.endpoint", "RENDER_ENDPOINT")
	v.BindEnv("render.remote.api_key", "RENDER_API_KEY")
	v.BindEnv("notify.smtp.password", "SMTP_PASSWORD")
	v.BindEnv("notify.webhook.secret", "WEBHOOK_SECRET")
	v.BindEnv("notify.amqp.url", "AMQP_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/examforge.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "exams")
	v.SetDefault("storage.prefix", "exams")

	v.SetDefault("cache.dir", "./data/cache")
	v.SetDefault("cache.max_memory_entries", 10)
	v.SetDefault("cache.max_disk_mb", 512)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_interval", "1h")

	v.SetDefault("batch.default_parallelism", 4)
	v.SetDefault("batch.max_parallelism", 32)
	v.SetDefault("batch.max_count", 10000)
	v.SetDefault("batch.default_page_size", 20)
	v.SetDefault("batch.max_page_size", 100)
	v.SetDefault("batch.retention_days", 7)
	v.SetDefault("batch.cleanup_interval", "6h")
	v.SetDefault("batch.file_prefix", "exam")

	v.SetDefault("render.default_format", "md")
	v.SetDefault("render.default_template", "default")
	v.SetDefault("render.remote.enabled", false)
	v.SetDefault("render.remote.engine", "xelatex")
	v.SetDefault("render.remote.timeout", "2m")

	v.SetDefault("notify.smtp.enabled", false)
	v.SetDefault("notify.smtp.port", 587)
	v.SetDefault("notify.webhook.enabled", true)
	v.SetDefault("notify.webhook.timeout", "10s")
	v.SetDefault("notify.webhook.retries", 2)
	v.SetDefault("notify.amqp.enabled", false)
	v.SetDefault("notify.amqp.queue", "examforge.batches")
}
