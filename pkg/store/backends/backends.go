// Package backends builds the configured store.Store.
package backends

import (
	"context"
	"fmt"
	"os"

	"github.com/marmos91/stowd/internal/logger"
	"github.com/marmos91/stowd/pkg/store"
	badgerstore "github.com/marmos91/stowd/pkg/store/badger"
	fsstore "github.com/marmos91/stowd/pkg/store/fs"
	s3store "github.com/marmos91/stowd/pkg/store/s3"
)

// Backend types.
const (
	TypeFS     = "fs"
	TypeMemory = "memory"
	TypeBadger = "badger"
	TypeS3     = "s3"
)

// Config selects and configures one backend.
type Config struct {
	// Type is one of fs, memory, badger, s3.
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=fs memory badger s3" json:"type"`

	FS     FSConfig     `mapstructure:"fs" yaml:"fs" json:"fs"`
	Badger BadgerConfig `mapstructure:"badger" yaml:"badger" json:"badger"`
	S3     S3Config     `mapstructure:"s3" yaml:"s3" json:"s3"`
}

// FSConfig configures the fs backend.
type FSConfig struct {
	// Path is the storage root. Empty means a fresh temporary directory
	// that is removed when the store is closed.
	Path string `mapstructure:"path" yaml:"path" json:"path,omitempty"`
}

// BadgerConfig configures the badger backend.
type BadgerConfig struct {
	Path     string `mapstructure:"path" yaml:"path" json:"path,omitempty"`
	InMemory bool   `mapstructure:"in_memory" yaml:"in_memory" json:"in_memory,omitempty"`
}

// S3Config configures the s3 backend.
type S3Config struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket" json:"bucket,omitempty"`
	Region          string `mapstructure:"region" yaml:"region" json:"region,omitempty"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint" json:"endpoint,omitempty"`
	KeyPrefix       string `mapstructure:"key_prefix" yaml:"key_prefix" json:"key_prefix,omitempty"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style" json:"force_path_style,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id" json:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key" json:"secret_access_key,omitempty"`
}

// New builds the backend described by cfg.
func New(ctx context.Context, cfg Config) (store.Store, error) {
	var (
		s   store.Store
		err error
	)

	switch cfg.Type {
	case TypeFS, "":
		s, err = newFS(cfg.FS)
	case TypeMemory:
		s = fsstore.NewMemory()
	case TypeBadger:
		s, err = badgerstore.New(badgerstore.Config{
			Path:     cfg.Badger.Path,
			InMemory: cfg.Badger.InMemory,
		})
	case TypeS3:
		s, err = s3store.NewFromConfig(ctx, s3store.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			KeyPrefix:       cfg.S3.KeyPrefix,
			ForcePathStyle:  cfg.S3.ForcePathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s store: %w", cfg.Type, err)
	}

	logger.Info("Store ready", logger.StoreType(typeName(cfg.Type)))
	return s, nil
}

func typeName(t string) string {
	if t == "" {
		return TypeFS
	}
	return t
}

// newFS opens the fs backend, creating an ephemeral root when no path is set.
func newFS(cfg FSConfig) (store.Store, error) {
	if cfg.Path != "" {
		return fsstore.New(fsstore.DefaultConfig(cfg.Path))
	}

	dir, err := os.MkdirTemp("", "stowd-")
	if err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	s, err := fsstore.New(fsstore.DefaultConfig(dir))
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	logger.Info("Using ephemeral storage root", logger.KeyPath, dir)
	return &ephemeral{Store: s, dir: dir}, nil
}

// ephemeral removes its storage root on Close.
type ephemeral struct {
	*fsstore.Store
	dir string
}

func (e *ephemeral) Close() error {
	err := e.Store.Close()
	if rmErr := os.RemoveAll(e.dir); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

// Dir returns the temporary storage root.
func (e *ephemeral) Dir() string {
	return e.dir
}
