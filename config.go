package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v6"
	"golang.org/x/exp/slog"
)

const (
	RecordsBackendCSV      = "csv"
	RecordsBackendPostgres = "postgres"
	ImagesBackendDisk      = "disk"
	ImagesBackendMinio     = "minio"
)

type (
	Config struct {
		Host     string `env:"APP_HOST" envDefault:"localhost"`
		Port     string `env:"APP_PORT" envDefault:"8080"`
		LogLevel string `env:"LOG_LEVEL" envDefault:"DEBUG"`

		DataDir    string `env:"DATA_DIR" envDefault:"."`
		UsersFile  string `env:"USERS_FILE" envDefault:"users.csv"`
		PhotosFile string `env:"PHOTOS_FILE" envDefault:"photos.csv"`
		UploadsDir string `env:"UPLOADS_DIR" envDefault:"uploads"`

		RecordsBackend string `env:"RECORDS_BACKEND" envDefault:"csv"`
		ImagesBackend  string `env:"IMAGES_BACKEND" envDefault:"disk"`

		JWTSecret    string `env:"JWT_SECRET_KEY"`
		MaxImageSize int64  `env:"MAX_IMAGE_SIZE" envDefault:"52428800"`

		Postgres PostgresConfig `envPrefix:"POSTGRES_"`
		S3       S3Config       `envPrefix:"S3_"`
	}

	PostgresConfig struct {
		Host     string `env:"HOST" envDefault:"localhost"`
		Port     string `env:"PORT" envDefault:"5432"`
		User     string `env:"USER" envDefault:"postgres"`
		Password string `env:"PASSWORD"`
		DBName   string `env:"DB" envDefault:"photos"`
		SSLMode  string `env:"SSLMODE" envDefault:"disable"`
	}

	S3Config struct {
		Endpoint  string `env:"ENDPOINT" envDefault:"localhost:9000"`
		AccessKey string `env:"ACCESS_KEY"`
		SecretKey string `env:"SECRET_KEY"`
		Bucket    string `env:"BUCKET" envDefault:"photos"`
		UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
	}
)

func ReadConfig() (*Config, error) {
	config := &Config{}
	if err := env.Parse(config); err != nil {
		return nil, fmt.Errorf("read config error: %w", err)
	}

	config.RecordsBackend = strings.ToLower(config.RecordsBackend)
	config.ImagesBackend = strings.ToLower(config.ImagesBackend)

	switch config.RecordsBackend {
	case RecordsBackendCSV, RecordsBackendPostgres:
	default:
		return nil, fmt.Errorf("unknown records backend %q", config.RecordsBackend)
	}

	switch config.ImagesBackend {
	case ImagesBackendDisk, ImagesBackendMinio:
	default:
		return nil, fmt.Errorf("unknown images backend %q", config.ImagesBackend)
	}

	if config.JWTSecret == "" {
		secret, err := randString(32)
		if err != nil {
			return nil, err
		}
		slog.Warn("JWT_SECRET_KEY is not set, sessions will not survive a restart")
		config.JWTSecret = secret
	}

	return config, nil
}

func (c *Config) ListenAddr() string {
	return c.Host + ":" + c.Port
}

func (c *Config) UsersPath() string {
	return filepath.Join(c.DataDir, c.UsersFile)
}

func (c *Config) PhotosPath() string {
	return filepath.Join(c.DataDir, c.PhotosFile)
}

func (c *Config) UploadsPath() string {
	return filepath.Join(c.DataDir, c.UploadsDir)
}

func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}

	return level
}

func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

func randString(nByte int) (string, error) {
	b := make([]byte, nByte)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
