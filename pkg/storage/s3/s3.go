// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sharemac.
//
// go-sharemac is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package s3 stores objects in an S3 bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/jeremyhahn/go-sharemac/pkg/storage"
)

const (
	// DefaultBucket is the bucket shares and tags are uploaded to.
	DefaultBucket = "secret-share-bucket"

	// DefaultRegion is the bucket's region.
	DefaultRegion = "eu-central-1"

	// DefaultTimeout bounds every request.
	DefaultTimeout = 30 * time.Second
)

// ErrBucketRequired is returned when no bucket is configured.
var ErrBucketRequired = errors.New("s3: bucket required")

// Client is the subset of the S3 API used by the backend.
type Client interface {
	PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *awss3.HeadObjectInput, optFns ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, optFns ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, optFns ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
}

// Config configures the S3 client.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// UsePathStyle is required by most S3-compatible servers.
	UsePathStyle bool
	Timeout      time.Duration
}

// DefaultConfig returns the default bucket and region.
func DefaultConfig() Config {
	return Config{
		Bucket:  DefaultBucket,
		Region:  DefaultRegion,
		Timeout: DefaultTimeout,
	}
}

// Backend is an S3-backed storage.Backend.
type Backend struct {
	client  Client
	bucket  string
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
}

// New builds a backend from the default AWS credential chain, overridden
// by static credentials and endpoint when configured.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketRequired
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			cfg.SessionToken,
		)
		opts = append(opts, awsconfig.WithCredentialsProvider(creds))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	b, err := NewWithClient(client, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		b.timeout = cfg.Timeout
	}
	return b, nil
}

// NewWithClient builds a backend around an existing client.
func NewWithClient(client Client, bucket string) (*Backend, error) {
	if bucket == "" {
		return nil, ErrBucketRequired
	}
	return &Backend{client: client, bucket: bucket, timeout: DefaultTimeout}, nil
}

// Bucket returns the bucket name.
func (b *Backend) Bucket() string {
	return b.bucket
}

func (b *Backend) begin() (context.Context, context.CancelFunc, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, nil, storage.ErrClosed
	}
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	return ctx, cancel, nil
}

func (b *Backend) Get(key string) ([]byte, error) {
	ctx, cancel, err := b.begin()
	if err != nil {
		return nil, err
	}
	defer cancel()

	out, err := b.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapError(key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3: read %q: %w", key, err)
	}
	return data, nil
}

func (b *Backend) Put(key string, value []byte, opts *storage.Options) error {
	if key == "" {
		return storage.ErrInvalidID
	}
	ctx, cancel, err := b.begin()
	if err != nil {
		return err
	}
	defer cancel()

	input := &awss3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(value),
		ContentLength: aws.Int64(int64(len(value))),
		ContentType:   aws.String("application/octet-stream"),
	}
	if opts != nil && len(opts.Metadata) > 0 {
		input.Metadata = opts.Metadata
	}
	if _, err := b.client.PutObject(ctx, input); err != nil {
		return mapError(key, err)
	}
	return nil
}

// Delete removes key. S3 deletes are idempotent, so existence is checked
// first to report ErrNotFound.
func (b *Backend) Delete(key string) error {
	ok, err := b.Exists(key)
	if err != nil {
		return err
	}
	if !ok {
		return storage.ErrNotFound
	}

	ctx, cancel, err := b.begin()
	if err != nil {
		return err
	}
	defer cancel()

	if _, err := b.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return mapError(key, err)
	}
	return nil
}

// List pages through every key under prefix.
func (b *Backend) List(prefix string) ([]string, error) {
	ctx, cancel, err := b.begin()
	if err != nil {
		return nil, err
	}
	defer cancel()

	keys := make([]string, 0)
	p := awss3.NewListObjectsV2Paginator(b.client, &awss3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, mapError(prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

func (b *Backend) Exists(key string) (bool, error) {
	ctx, cancel, err := b.begin()
	if err != nil {
		return false, err
	}
	defer cancel()

	_, err = b.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if err = mapError(key, err); errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Close marks the backend closed.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func mapError(key string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return storage.ErrNotFound
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return storage.ErrNotFound
		}
	}
	return fmt.Errorf("s3: %q: %w", key, err)
}
