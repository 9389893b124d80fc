package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig configures durable storage in a Cloud Storage bucket.
type GCSConfig struct {
	Bucket          string
	Prefix          string
	CredentialsFile string
	// PublicBaseURL overrides https://storage.googleapis.com/<bucket>, for
	// example with a CDN host.
	PublicBaseURL string
}

// GCS stores media as objects in a bucket.
type GCS struct {
	client *storage.Client
	cfg    GCSConfig
}

func NewGCS(ctx context.Context, cfg GCSConfig) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}

	return &GCS{client: client, cfg: cfg}, nil
}

func (g *GCS) key(category Category, name string) string {
	return path.Join(g.cfg.Prefix, string(category), name)
}

// Save uploads the object and returns its public URL.
func (g *GCS) Save(ctx context.Context, category Category, name string, data []byte) (string, error) {
	if err := SafeName(name); err != nil {
		return "", err
	}

	key := g.key(category, name)
	w := g.client.Bucket(g.cfg.Bucket).Object(key).NewWriter(ctx)
	w.ContentType = ContentType(name)

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		w.Close()
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", key, err)
	}

	return g.PublicURL(category, name), nil
}

// PublicURL returns the URL an object is served from.
func (g *GCS) PublicURL(category Category, name string) string {
	base := strings.TrimRight(g.cfg.PublicBaseURL, "/")
	if base == "" {
		base = "https://storage.googleapis.com/" + g.cfg.Bucket
	}
	return base + "/" + g.key(category, name)
}

// Close releases the storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}
