// Package archive keeps a copy of every uploaded customer file in S3 so
// batches can be audited or re-imported later.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Options configures the S3 archive
type Options struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Object is one file to archive
type Object struct {
	UserID      string
	BatchID     string
	FileName    string
	ContentType string
	Data        []byte
}

// Archiver stores uploaded files
type Archiver interface {
	Put(ctx context.Context, obj Object) (key string, err error)
}

type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive stores files in an S3 bucket
type S3Archive struct {
	client s3API
	bucket string
	prefix string
	logger *slog.Logger
}

// NewS3Archive creates an archive using the default AWS credential chain,
// or static credentials when both keys are set. Endpoint allows
// S3-compatible stores such as MinIO.
func NewS3Archive(ctx context.Context, opts Options, logger *slog.Logger) (*S3Archive, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	region := opts.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})

	return newS3Archive(client, opts.Bucket, opts.Prefix, logger), nil
}

func newS3Archive(client s3API, bucket, prefix string, logger *slog.Logger) *S3Archive {
	return &S3Archive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.With("component", "archive"),
	}
}

// Key returns the object key {prefix}/{user}/{batch}/{file}
func (a *S3Archive) Key(obj Object) string {
	name := path.Base(strings.ReplaceAll(obj.FileName, "\\", "/"))
	if name == "." || name == "/" {
		name = "upload"
	}
	parts := []string{obj.UserID, obj.BatchID, name}
	if a.prefix != "" {
		parts = append([]string{a.prefix}, parts...)
	}
	return strings.Join(parts, "/")
}

// Put uploads obj and returns its key
func (a *S3Archive) Put(ctx context.Context, obj Object) (string, error) {
	key := a.Key(obj)
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(obj.Data),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"user_id":     obj.UserID,
			"batch_id":    obj.BatchID,
			"uploaded_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	a.logger.Info("archived upload", "bucket", a.bucket, "key", key, "bytes", len(obj.Data))
	return key, nil
}
