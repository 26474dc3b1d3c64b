// Package storage uploads export files to S3-compatible object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ledger-integrity-pipeline/internal/config"
)

// putObjectAPI is the part of *s3.Client the sink uses
type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink writes export files to a bucket under "<prefix>/<tenant>/<filename>".
type S3Sink struct {
	client putObjectAPI
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Sink builds the sink from configuration. Static credentials are used
// when both keys are set, otherwise the default AWS credential chain applies.
func NewS3Sink(ctx context.Context, logger *slog.Logger, cfg *config.StorageConfig) (*S3Sink, error) {
	if !cfg.Enabled() {
		return nil, errors.New("storage bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	logger.Info("Export storage configured", "bucket", cfg.Bucket, "prefix", cfg.Prefix)
	return newS3Sink(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func newS3Sink(client putObjectAPI, bucket, prefix string, logger *slog.Logger) *S3Sink {
	return &S3Sink{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Key returns the object key for a tenant's export file
func (s *S3Sink) Key(tenantID, filename string) string {
	return path.Join(s.prefix, tenantID, filename)
}

// Put uploads content and returns its s3:// location
func (s *S3Sink) Put(ctx context.Context, tenantID, filename string, content []byte, contentType string) (string, error) {
	key := s.Key(tenantID, filename)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		s.logger.Error("Failed to upload export file",
			"bucket", s.bucket,
			"key", key,
			"error", err)
		return "", fmt.Errorf("failed to upload export file %s: %w", filename, err)
	}

	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
