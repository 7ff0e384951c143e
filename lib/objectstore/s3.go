// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// S3API is the subset of *s3.Client the S3 backend calls.
type S3API interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, input *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// Object metadata keys. S3 lowercases user metadata names, so these
// are lowercase already.
const (
	metaCompression = "blob-compression"
	metaSize        = "blob-size"
	metaDigest      = "blob-digest"
	metaCreatedAt   = "blob-created-at"
)

// S3Options configures OpenS3Backend.
type S3Options struct {
	Bucket string
	Prefix string
	Region string

	// Endpoint overrides the service endpoint, for S3-compatible
	// stores such as MinIO. Setting it also enables path-style
	// addressing.
	Endpoint string
}

// S3Backend stores each object as one S3 object under Prefix+key.
// S3 PUTs are atomic per object and reads are strongly consistent, so
// a reader sees either the previous or the new payload. Keys lists the
// prefix page by page; pages are not one atomic snapshot, but each key
// is reported once.
type S3Backend struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Backend wraps an existing client.
func NewS3Backend(client S3API, bucket, prefix string) *S3Backend {
	return &S3Backend{client: client, bucket: bucket, prefix: prefix}
}

// OpenS3Backend loads the default AWS credential chain and returns a
// backend for the configured bucket.
func OpenS3Backend(ctx context.Context, options S3Options) (*S3Backend, error) {
	if options.Bucket == "" {
		return nil, fmt.Errorf("s3 backend: bucket is required")
	}

	var loadOptions []func(*awsconfig.LoadOptions) error
	if options.Region != "" {
		loadOptions = append(loadOptions, awsconfig.WithRegion(options.Region))
	}
	awsConfig, err := awsconfig.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("s3 backend: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if options.Endpoint != "" {
			o.BaseEndpoint = aws.String(options.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Backend(client, options.Bucket, options.Prefix), nil
}

func (b *S3Backend) objectKey(key string) string {
	return b.prefix + key
}

func (b *S3Backend) Put(ctx context.Context, object Object) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.objectKey(object.Key)),
		Body:          bytes.NewReader(object.Data),
		ContentLength: aws.Int64(int64(len(object.Data))),
		ContentType:   aws.String("application/octet-stream"),
		Metadata: map[string]string{
			metaCompression: object.Compression.String(),
			metaSize:        strconv.FormatInt(object.Size, 10),
			metaDigest:      object.Digest.String(),
			metaCreatedAt:   object.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return fmt.Errorf("s3 backend: put %s: %w", object.Key, err)
	}
	return nil
}

func (b *S3Backend) Get(ctx context.Context, key string) (Object, error) {
	output, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return Object{}, ErrNotFound
		}
		return Object{}, fmt.Errorf("s3 backend: get %s: %w", key, err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return Object{}, fmt.Errorf("s3 backend: read %s: %w", key, err)
	}

	info, err := infoFromMetadata(key, output.Metadata)
	if err != nil {
		return Object{}, fmt.Errorf("s3 backend: %s: %w", key, err)
	}
	info.StoredSize = int64(len(data))
	return Object{Info: info, Data: data}, nil
}

// Delete checks existence with HeadObject first because DeleteObject
// succeeds for absent keys and does not say whether anything existed.
func (b *S3Backend) Delete(ctx context.Context, key string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3 backend: head %s: %w", key, err)
	}

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		return false, fmt.Errorf("s3 backend: delete %s: %w", key, err)
	}
	return true, nil
}

func (b *S3Backend) Keys(ctx context.Context) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.prefix),
	})

	keys := []string{}
	seen := make(map[string]struct{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 backend: list %s: %w", b.prefix, err)
		}
		for _, item := range page.Contents {
			key := strings.TrimPrefix(aws.ToString(item.Key), b.prefix)
			if _, duplicate := seen[key]; duplicate || key == "" {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys, nil
}

func (b *S3Backend) Close() error { return nil }

func infoFromMetadata(key string, metadata map[string]string) (Info, error) {
	info := Info{Key: key}

	compression, err := ParseCompression(metadata[metaCompression])
	if err != nil {
		return Info{}, err
	}
	info.Compression = compression

	info.Size, err = strconv.ParseInt(metadata[metaSize], 10, 64)
	if err != nil {
		return Info{}, fmt.Errorf("parsing %s metadata: %w", metaSize, err)
	}

	info.Digest, err = ParseDigest(metadata[metaDigest])
	if err != nil {
		return Info{}, err
	}

	if created := metadata[metaCreatedAt]; created != "" {
		info.CreatedAt, err = time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return Info{}, fmt.Errorf("parsing %s metadata: %w", metaCreatedAt, err)
		}
	}
	return info, nil
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
