package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Read when the key does not exist.
var ErrNotFound = errors.New("object not found")

// Object is a stored blob opened for reading.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// Storage defines the blob operations used for message attachments.
type Storage interface {
	// Write stores content from the reader with the given key.
	// The size parameter is the expected content size (-1 if unknown).
	Write(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Read opens the content for the given key. The caller closes Body.
	Read(ctx context.Context, key string) (*Object, error)

	// Delete removes the content with the given key. Missing keys are not an error.
	Delete(ctx context.Context, key string) error
}

// Config selects and configures a Storage driver.
type Config struct {
	Driver string      `mapstructure:"driver"` // "local", "s3"
	Local  LocalConfig `mapstructure:"local"`
	S3     S3Config    `mapstructure:"s3"`
}

// New creates the Storage selected by cfg.Driver.
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Driver {
	case "s3":
		return NewS3Storage(ctx, cfg.S3)
	case "", "local":
		return NewLocalStorage(cfg.Local)
	default:
		return nil, errors.New("unsupported storage driver: " + cfg.Driver)
	}
}
