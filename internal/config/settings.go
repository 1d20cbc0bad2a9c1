package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Settings holds process settings read from the environment
type Settings struct {
	HTTPAddr       string
	MetricsEnabled bool
	LogLevel       string
	LogJSON        bool
	WorkspaceRoot  string
	Storage        StorageSettings
}

// StorageSettings selects and configures the object store backend
type StorageSettings struct {
	Backend           string // "s3" or "filesystem"
	FilesystemRoot    string
	Endpoint          string
	Region            string
	AccessKey         string
	SecretKey         string
	UseSSL            bool
	PathStyle         bool
	UploadConcurrency int
}

// Storage backends
const (
	BackendS3         = "s3"
	BackendFilesystem = "filesystem"
)

// Load reads settings from the environment, after loading .env if it exists
func Load() Settings {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("PIPELINE_HTTP_ADDR", ":8081")
	v.SetDefault("PIPELINE_METRICS_ENABLED", true)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_JSON", false)
	v.SetDefault("WORKSPACE_ROOT", "")
	v.SetDefault("STORAGE_BACKEND", BackendS3)
	v.SetDefault("STORAGE_DIR", "./dev-data")
	v.SetDefault("S3_ENDPOINT", "s3.amazonaws.com")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")
	v.SetDefault("S3_USE_SSL", true)
	v.SetDefault("S3_PATH_STYLE", false)
	v.SetDefault("S3_UPLOAD_CONCURRENCY", 4)

	v.AutomaticEnv()

	return Settings{
		HTTPAddr:       v.GetString("PIPELINE_HTTP_ADDR"),
		MetricsEnabled: v.GetBool("PIPELINE_METRICS_ENABLED"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		LogJSON:        v.GetBool("LOG_JSON"),
		WorkspaceRoot:  strings.TrimSpace(v.GetString("WORKSPACE_ROOT")),
		Storage: StorageSettings{
			Backend:           strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_BACKEND"))),
			FilesystemRoot:    v.GetString("STORAGE_DIR"),
			Endpoint:          v.GetString("S3_ENDPOINT"),
			Region:            v.GetString("S3_REGION"),
			AccessKey:         v.GetString("S3_ACCESS_KEY"),
			SecretKey:         v.GetString("S3_SECRET_KEY"),
			UseSSL:            v.GetBool("S3_USE_SSL"),
			PathStyle:         v.GetBool("S3_PATH_STYLE"),
			UploadConcurrency: v.GetInt("S3_UPLOAD_CONCURRENCY"),
		},
	}
}
