// Package s3 provides an S3-backed file store.
//
// Each file is one object under KeyPrefix. Uploads are spooled to a local
// temporary file and sent with a single PutObject on commit, so the object
// only changes when the upload is complete. GetObject streams the object
// version that was current when the read started.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/spf13/afero"

	"github.com/marmos91/stowd/internal/logger"
	"github.com/marmos91/stowd/pkg/store"
)

// Config holds configuration for the S3 store.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string

	// KeyPrefix is prepended to every object key (e.g., "files/").
	KeyPrefix string

	// ForcePathStyle forces path-style addressing (required for Localstack/MinIO).
	ForcePathStyle bool

	// AccessKeyID and SecretAccessKey select static credentials. When empty
	// the SDK default credential chain is used.
	AccessKeyID     string
	SecretAccessKey string

	// SpoolDir is where uploads are staged before PutObject. Defaults to the
	// OS temporary directory.
	SpoolDir string
}

// Store is an S3-backed implementation of store.Store.
type Store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	spool     afero.Fs
	spoolDir  string

	mu     sync.RWMutex
	closed bool
}

// New creates a store around an existing client.
func New(client *s3.Client, cfg Config) *Store {
	return &Store{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		spool:     afero.NewOsFs(),
		spoolDir:  cfg.SpoolDir,
	}
}

// NewFromConfig builds the S3 client from cfg and returns the store.
func NewFromConfig(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return New(client, cfg), nil
}

func (s *Store) objectKey(name string) string {
	return s.keyPrefix + name
}

func (s *Store) check(name string) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return store.ErrClosed
	}
	if name == "" || strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: %q", store.ErrInvalidName, name)
	}
	return nil
}

// Create starts a spooled upload.
func (s *Store) Create(ctx context.Context, name string) (store.Writer, error) {
	if err := s.check(name); err != nil {
		return nil, err
	}

	f, err := afero.TempFile(s.spool, s.spoolDir, "stowd-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create spool file: %w", err)
	}

	return &writer{s: s, ctx: ctx, key: s.objectKey(name), f: f}, nil
}

// Open streams the object for name.
func (s *Store) Open(ctx context.Context, name string) (store.Reader, error) {
	if err := s.check(name); err != nil {
		return nil, err
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(name)),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}

	return &reader{ReadCloser: resp.Body, size: uint64(aws.ToInt64(resp.ContentLength))}, nil
}

// Remove deletes the object for name. DeleteObject succeeds on missing
// keys, so existence is checked first to report ErrNotFound.
func (s *Store) Remove(ctx context.Context, name string) error {
	if err := s.check(name); err != nil {
		return err
	}

	key := s.objectKey(name)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return store.ErrNotFound
		}
		return fmt.Errorf("s3 head object: %w", err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

// HealthCheck verifies the bucket is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.check("probe"); err != nil {
		return err
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 head bucket: %w", err)
	}
	return nil
}

// Close marks the store closed. The SDK client holds no resources to release.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type writer struct {
	s      *Store
	ctx    context.Context
	key    string
	f      afero.File
	closed bool
}

func (w *writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, store.ErrFinished
	}
	return w.f.Write(p)
}

func (w *writer) discard() {
	name := w.f.Name()
	_ = w.f.Close()
	if err := w.s.spool.Remove(name); err != nil && !os.IsNotExist(err) {
		logger.Warn("s3: failed to remove spool file", logger.KeyPath, name, logger.KeyError, err)
	}
}

func (w *writer) Commit() error {
	if w.closed {
		return store.ErrFinished
	}
	w.closed = true
	defer w.discard()

	if err := w.s.check("commit"); err != nil {
		return err
	}

	size, err := w.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("spool size: %w", err)
	}
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind spool: %w", err)
	}

	_, err = w.s.client.PutObject(w.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(w.s.bucket),
		Key:           aws.String(w.key),
		Body:          w.f,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

func (w *writer) Abort() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.discard()
	return nil
}

type reader struct {
	io.ReadCloser
	size uint64
}

func (r *reader) Size() uint64 {
	return r.size
}

// isNotFoundError reports whether err is a missing key or bucket. HeadObject
// returns a bare 404 without a typed error body.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "NoSuchKey") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "StatusCode: 404")
}

var _ store.Store = (*Store)(nil)
