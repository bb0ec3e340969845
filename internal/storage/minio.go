// Package storage provides the blob backend permanent image URLs point at.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Minio is an S3-compatible blob store. Objects are uploaded world-readable
// under deterministic keys, so the public URL is just endpoint/bucket/key.
type Minio struct {
	client  *minio.Client
	bucket  string
	baseURL string
}

// Config carries the connection settings for the blob store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinio connects to the store and makes sure the bucket exists.
func NewMinio(ctx context.Context, cfg Config) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	return &Minio{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: fmt.Sprintf("%s://%s/%s/", scheme, cfg.Endpoint, cfg.Bucket),
	}, nil
}

// URL returns the public URL an object key resolves to, whether or not the
// object exists yet.
func (m *Minio) URL(key string) string {
	return m.baseURL + key
}

func (m *Minio) keyFromURL(url string) (string, error) {
	if !strings.HasPrefix(url, m.baseURL) {
		return "", fmt.Errorf("url %s is not served by this bucket", url)
	}
	return strings.TrimPrefix(url, m.baseURL), nil
}

// Upload stores an object and returns its public URL. Re-uploading the same
// key overwrites in place, which is what the deterministic key scheme
// relies on.
func (m *Minio) Upload(ctx context.Context, data []byte, key, contentType string) (string, error) {
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return m.URL(key), nil
}

// Exists reports whether the object behind a public URL is present. A
// missing object is not an error.
func (m *Minio) Exists(ctx context.Context, url string) (bool, error) {
	key, err := m.keyFromURL(url)
	if err != nil {
		return false, err
	}
	_, err = m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket" {
			return false, nil
		}
		return false, fmt.Errorf("stat %s: %w", key, err)
	}
	return true, nil
}

// Delete removes the object behind a public URL.
func (m *Minio) Delete(ctx context.Context, url string) error {
	key, err := m.keyFromURL(url)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
