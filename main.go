package main

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"golang.org/x/exp/slog"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("Failed to load environment", "error", err)
		os.Exit(1)
	}

	config, err := ReadConfig()
	if err != nil {
		slog.Error("Failed to read the configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: false,
		Level:     config.SlogLevel(),
	}))

	slog.SetDefault(logger)

	ctx := context.Background()

	records, err := newRecordStore(ctx, config)
	if err != nil {
		slog.Error("Failed to init the record store", "backend", config.RecordsBackend, "error", err)
		os.Exit(1)
	}

	images, err := newImageStore(ctx, config)
	if err != nil {
		slog.Error("Failed to init the image store", "backend", config.ImagesBackend, "error", err)
		os.Exit(1)
	}

	svc := NewService(records, images)

	server := NewAPIServer(svc, config.ListenAddr(), []byte(config.JWTSecret), config.MaxImageSize)
	if err := server.Run(); err != nil {
		slog.Error("Server run error", "error", err)
		os.Exit(1)
	}
}

func newRecordStore(ctx context.Context, config *Config) (RecordStore, error) {
	if config.RecordsBackend == RecordsBackendPostgres {
		return NewPostgreSQLDatabase(ctx, config.Postgres.ConnString())
	}

	return NewCSVStore(config.UsersPath(), config.PhotosPath())
}

func newImageStore(ctx context.Context, config *Config) (ImageStore, error) {
	if config.ImagesBackend == ImagesBackendMinio {
		return NewMinioImageStore(ctx, config.S3)
	}

	return NewDiskImageStore(config.UploadsPath())
}
