package gcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/yungbote/neurobridge-graphload/internal/platform/logger"
)

// ObjectURI is a parsed gs://bucket/key location.
type ObjectURI struct {
	Bucket string
	Key    string
}

func (u ObjectURI) String() string { return "gs://" + u.Bucket + "/" + u.Key }

func IsObjectURI(s string) bool { return strings.HasPrefix(strings.TrimSpace(s), "gs://") }

func ParseObjectURI(raw string) (ObjectURI, error) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "gs://") {
		return ObjectURI{}, fmt.Errorf("not a gs:// uri: %q", raw)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(s, "gs://"), "/")
	key = strings.TrimLeft(key, "/")
	if !ok || bucket == "" || key == "" {
		return ObjectURI{}, fmt.Errorf("gs uri needs a bucket and an object key: %q", raw)
	}
	return ObjectURI{Bucket: bucket, Key: key}, nil
}

// Join appends name to a gs:// prefix.
func (u ObjectURI) Join(name string) ObjectURI {
	return ObjectURI{Bucket: u.Bucket, Key: strings.TrimRight(u.Key, "/") + "/" + strings.TrimLeft(name, "/")}
}

type ObjectStore struct {
	log    *logger.Logger
	client *storage.Client
	mode   StorageMode
}

func NewObjectStore(ctx context.Context, cfg StorageConfig, log *logger.Logger) (*ObjectStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate object storage config: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}
	client, err := newStorageClientForMode(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	serviceLog := log.With("service", "ObjectStore")
	serviceLog.Info("Object storage initialized", "mode", cfg.Mode, "emulator_host", cfg.EmulatorHost)
	return &ObjectStore{log: serviceLog, client: client, mode: cfg.Mode}, nil
}

func newStorageClientForMode(ctx context.Context, cfg StorageConfig) (*storage.Client, error) {
	switch cfg.Mode {
	case StorageModeGCS:
		opts := ClientOptionsFromEnv()
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
		return storage.NewClient(ctx, opts...)
	case StorageModeGCSEmulator:
		_ = os.Setenv("STORAGE_EMULATOR_HOST", cfg.EmulatorHost)
		return storage.NewClient(ctx, option.WithoutAuthentication())
	default:
		return nil, &StorageConfigError{Code: StorageConfigErrorInvalidMode, Mode: string(cfg.Mode)}
	}
}

// Put writes body to uri, replacing any existing object.
func (s *ObjectStore) Put(ctx context.Context, uri ObjectURI, body []byte, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(uri.Bucket).Object(uri.Key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, bytes.NewReader(body)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	s.log.Debug("Object written", "uri", uri.String(), "bytes", len(body))
	return nil
}

func (s *ObjectStore) Get(ctx context.Context, uri ObjectURI) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	r, err := s.client.Bucket(uri.Bucket).Object(uri.Key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", uri, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (s *ObjectStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}
