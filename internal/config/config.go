// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Source   SourceConfig
	Storage  StorageConfig
	Archive  ArchiveConfig
	Report   ReportConfig
	Cache    CacheConfig
	Database DatabaseConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

// SourceConfig selects and configures the remote asset tree provider.
type SourceConfig struct {
	Provider             string // frameio or drive
	FrameioToken         string
	FrameioBaseURL       string
	WebhookSecret        string
	RequestsPerSecond    float64
	DriveCredentialsJSON string
	HTTPTimeout          time.Duration
}

// StorageConfig describes the S3-compatible destination.
type StorageConfig struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Region         string
	UseSSL         bool
	Bucket         string
	Destinations   map[string]string // alias -> bucket
	UploadPath     string            // key prefix for every archived object
	PartSizeBytes  int64
	MaxConcurrency int
}

type ArchiveConfig struct {
	WorkerCount   int
	MaxTransfers  int
	RetryAttempts int
	RetryBackoff  time.Duration
	VersionPolicy string // first or latest
	PathPolicy    string // safe or verbatim
	MaxDepth      int
	SkipExisting  bool
	JobTimeout    time.Duration
	// ImportFolder receives assets imported back from storage.
	ImportFolder     string
	ImportLinkExpiry time.Duration
}

type ReportConfig struct {
	Store      string // memory, redis or postgres
	TTLSeconds int
}

type CacheConfig struct {
	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
}

type DatabaseConfig struct {
	Driver   string // postgres (lib/pq) or pgx
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type LogConfig struct {
	Level  string
	Format string
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		setDefaults(viper.GetViper())

		// Read from environment variables
		viper.AutomaticEnv()

		instance = fromViper(viper.GetViper())
	})

	return instance
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "release")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 30)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})

	v.SetDefault("SOURCE_PROVIDER", "frameio")
	v.SetDefault("FRAMEIO_TOKEN", "")
	v.SetDefault("FRAMEIO_BASE_URL", "https://api.frame.io")
	v.SetDefault("FRAMEIO_WEBHOOK_SECRET", "")
	v.SetDefault("FRAMEIO_REQUESTS_PER_SECOND", 5.0)
	v.SetDefault("GOOGLE_DRIVE_CREDENTIALS_JSON", "")
	v.SetDefault("SOURCE_HTTP_TIMEOUT", "60s")

	v.SetDefault("STORAGE_ENDPOINT", "")
	v.SetDefault("STORAGE_ACCESS_KEY", "")
	v.SetDefault("STORAGE_SECRET_KEY", "")
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("STORAGE_USE_SSL", true)
	v.SetDefault("STORAGE_BUCKET", "")
	v.SetDefault("STORAGE_DESTINATIONS", "")
	v.SetDefault("STORAGE_UPLOAD_PATH", "")
	v.SetDefault("STORAGE_PART_SIZE_BYTES", 16*1024*1024)
	v.SetDefault("STORAGE_MAX_CONCURRENCY", 5)

	v.SetDefault("ARCHIVE_WORKER_COUNT", 4)
	v.SetDefault("ARCHIVE_MAX_TRANSFERS", 16)
	v.SetDefault("ARCHIVE_RETRY_ATTEMPTS", 3)
	v.SetDefault("ARCHIVE_RETRY_BACKOFF", "2s")
	v.SetDefault("ARCHIVE_VERSION_POLICY", "first")
	v.SetDefault("ARCHIVE_PATH_POLICY", "safe")
	v.SetDefault("ARCHIVE_MAX_DEPTH", 64)
	v.SetDefault("ARCHIVE_SKIP_EXISTING", false)
	v.SetDefault("ARCHIVE_JOB_TIMEOUT", "0s")
	v.SetDefault("ARCHIVE_IMPORT_FOLDER", "Imports")
	v.SetDefault("ARCHIVE_IMPORT_LINK_EXPIRY", "15m")

	v.SetDefault("REPORT_STORE", "memory")
	v.SetDefault("REPORT_TTL_SECONDS", 7*24*3600)

	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "archiver")
	v.SetDefault("DB_SSLMODE", "disable")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Source: SourceConfig{
			Provider:             strings.ToLower(v.GetString("SOURCE_PROVIDER")),
			FrameioToken:         v.GetString("FRAMEIO_TOKEN"),
			FrameioBaseURL:       v.GetString("FRAMEIO_BASE_URL"),
			WebhookSecret:        v.GetString("FRAMEIO_WEBHOOK_SECRET"),
			RequestsPerSecond:    v.GetFloat64("FRAMEIO_REQUESTS_PER_SECOND"),
			DriveCredentialsJSON: v.GetString("GOOGLE_DRIVE_CREDENTIALS_JSON"),
			HTTPTimeout:          v.GetDuration("SOURCE_HTTP_TIMEOUT"),
		},
		Storage: StorageConfig{
			Endpoint:       v.GetString("STORAGE_ENDPOINT"),
			AccessKey:      v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey:      v.GetString("STORAGE_SECRET_KEY"),
			Region:         v.GetString("STORAGE_REGION"),
			UseSSL:         v.GetBool("STORAGE_USE_SSL"),
			Bucket:         v.GetString("STORAGE_BUCKET"),
			Destinations:   ParseDestinations(v.GetString("STORAGE_DESTINATIONS")),
			UploadPath:     v.GetString("STORAGE_UPLOAD_PATH"),
			PartSizeBytes:  v.GetInt64("STORAGE_PART_SIZE_BYTES"),
			MaxConcurrency: v.GetInt("STORAGE_MAX_CONCURRENCY"),
		},
		Archive: ArchiveConfig{
			WorkerCount:   v.GetInt("ARCHIVE_WORKER_COUNT"),
			MaxTransfers:  v.GetInt("ARCHIVE_MAX_TRANSFERS"),
			RetryAttempts: v.GetInt("ARCHIVE_RETRY_ATTEMPTS"),
			RetryBackoff:  v.GetDuration("ARCHIVE_RETRY_BACKOFF"),
			VersionPolicy: strings.ToLower(v.GetString("ARCHIVE_VERSION_POLICY")),
			PathPolicy:    strings.ToLower(v.GetString("ARCHIVE_PATH_POLICY")),
			MaxDepth:      v.GetInt("ARCHIVE_MAX_DEPTH"),
			SkipExisting:  v.GetBool("ARCHIVE_SKIP_EXISTING"),
			JobTimeout:    v.GetDuration("ARCHIVE_JOB_TIMEOUT"),

			ImportFolder:     v.GetString("ARCHIVE_IMPORT_FOLDER"),
			ImportLinkExpiry: v.GetDuration("ARCHIVE_IMPORT_LINK_EXPIRY"),
		},
		Report: ReportConfig{
			Store:      strings.ToLower(v.GetString("REPORT_STORE")),
			TTLSeconds: v.GetInt("REPORT_TTL_SECONDS"),
		},
		Cache: CacheConfig{
			RedisURL:      v.GetString("REDIS_URL"),
			RedisHost:     v.GetString("REDIS_HOST"),
			RedisPort:     v.GetString("REDIS_PORT"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
		},
		Database: DatabaseConfig{
			Driver:   strings.ToLower(v.GetString("DB_DRIVER")),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}
}

// ParseDestinations parses "alias:bucket,alias2:bucket2". An entry without an
// alias maps the bucket name to itself.
func ParseDestinations(raw string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		alias, bucket, found := strings.Cut(part, ":")
		if !found {
			out[part] = part
			continue
		}
		alias = strings.TrimSpace(alias)
		bucket = strings.TrimSpace(bucket)
		if alias == "" || bucket == "" {
			continue
		}
		out[alias] = bucket
	}
	return out
}

// Validate checks the settings required by the selected provider and report store.
func (c *Config) Validate() error {
	switch c.Source.Provider {
	case "frameio":
		if c.Source.FrameioToken == "" {
			return fmt.Errorf("FRAMEIO_TOKEN must be set for the frameio provider")
		}
	case "drive":
		if c.Source.DriveCredentialsJSON == "" {
			return fmt.Errorf("GOOGLE_DRIVE_CREDENTIALS_JSON must be set for the drive provider")
		}
	default:
		return fmt.Errorf("unknown SOURCE_PROVIDER %q", c.Source.Provider)
	}

	if c.Storage.Endpoint == "" {
		return fmt.Errorf("STORAGE_ENDPOINT must be set")
	}
	if c.Storage.Bucket == "" && len(c.Storage.Destinations) == 0 {
		return fmt.Errorf("STORAGE_BUCKET or STORAGE_DESTINATIONS must be set")
	}

	switch c.Archive.VersionPolicy {
	case "first", "latest":
	default:
		return fmt.Errorf("unknown ARCHIVE_VERSION_POLICY %q", c.Archive.VersionPolicy)
	}
	switch c.Archive.PathPolicy {
	case "safe", "verbatim":
	default:
		return fmt.Errorf("unknown ARCHIVE_PATH_POLICY %q", c.Archive.PathPolicy)
	}

	// presigned links are limited to seven days
	if c.Archive.ImportLinkExpiry < time.Second || c.Archive.ImportLinkExpiry > 7*24*time.Hour {
		return fmt.Errorf("ARCHIVE_IMPORT_LINK_EXPIRY must be between 1s and 168h, got %s", c.Archive.ImportLinkExpiry)
	}

	switch c.Report.Store {
	case "memory", "redis", "postgres":
	default:
		return fmt.Errorf("unknown REPORT_STORE %q", c.Report.Store)
	}
	return nil
}
