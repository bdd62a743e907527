package blobstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// Config holds blob storage configuration
type Config struct {
	// BucketURL is a gocloud.dev bucket URL, e.g.
	// "file:///var/lib/photolog/blobs" or "s3://photolog-blobs?region=us-east-1"
	BucketURL string
	// URLExpiry is how long signed download URLs remain valid
	URLExpiry time.Duration
}

// Client wraps a gocloud.dev bucket for photo and export artifact storage
type Client struct {
	bucket    *blob.Bucket
	urlExpiry time.Duration
	logger    *slog.Logger
}

// NewClient opens a bucket from the configured URL
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	bucket, err := blob.OpenBucket(ctx, config.BucketURL)
	if err != nil {
		logger.Error("Failed to open blob bucket",
			slog.String("bucket_url", config.BucketURL),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to open blob bucket: %w", err)
	}

	logger.Info("Blob bucket opened",
		slog.String("bucket_url", config.BucketURL),
	)

	return &Client{
		bucket:    bucket,
		urlExpiry: config.URLExpiry,
		logger:    logger,
	}, nil
}

// NewClientWithBucket wraps an already opened bucket. Used by tests with
// memblob/fileblob buckets.
func NewClientWithBucket(bucket *blob.Bucket, urlExpiry time.Duration, logger *slog.Logger) *Client {
	return &Client{
		bucket:    bucket,
		urlExpiry: urlExpiry,
		logger:    logger,
	}
}

// Get reads the full contents of a stored object
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := c.bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %q: %w", key, err)
	}
	return data, nil
}

// Put writes an object under the given key with the given content type
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	opts := &blob.WriterOptions{
		ContentType: contentType,
	}

	if err := c.bucket.WriteAll(ctx, key, data, opts); err != nil {
		c.logger.Error("Failed to write blob",
			slog.String("key", key),
			slog.Any("error", err),
		)
		return fmt.Errorf("failed to write blob %q: %w", key, err)
	}

	c.logger.Debug("Blob written",
		slog.String("key", key),
		slog.Int("size", len(data)),
		slog.String("content_type", contentType),
	)

	return nil
}

// Delete removes an object. Deleting a missing key is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	err := c.bucket.Delete(ctx, key)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil
		}
		return fmt.Errorf("failed to delete blob %q: %w", key, err)
	}
	return nil
}

// Exists reports whether an object is stored under the given key
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := c.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to stat blob %q: %w", key, err)
	}
	return ok, nil
}

// SignedURL returns a time-limited download URL for the object. Buckets that
// cannot sign URLs (memblob, plain fileblob) return an error; callers fall
// back to streaming the object themselves.
func (c *Client) SignedURL(ctx context.Context, key string) (string, error) {
	opts := &blob.SignedURLOptions{
		Expiry: c.urlExpiry,
	}

	url, err := c.bucket.SignedURL(ctx, key, opts)
	if err != nil {
		return "", fmt.Errorf("failed to sign URL for blob %q: %w", key, err)
	}
	return url, nil
}

// Close releases the underlying bucket
func (c *Client) Close() error {
	c.logger.Info("Closing blob bucket")
	if err := c.bucket.Close(); err != nil {
		return fmt.Errorf("failed to close blob bucket: %w", err)
	}
	return nil
}
