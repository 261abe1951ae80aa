package billing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// Archive stores raw verified payloads for audit and manual replay.
type Archive interface {
	Store(ctx context.Context, ev Event) error
}

// S3Client is the subset of *s3.Client used by S3Archive.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive writes each payload to
// <prefix>/<provider>/<yyyy>/<mm>/<dd>/<event id>.json. Redeliveries overwrite
// the same object.
type S3Archive struct {
	client S3Client
	bucket string
	prefix string
}

// S3ArchiveOption configures NewS3Archive.
type S3ArchiveOption func(*s3ArchiveOptions)

type s3ArchiveOptions struct {
	client        S3Client
	configOptions []func(*config.LoadOptions) error
}

// WithArchiveClient uses a pre-built client instead of loading AWS config.
func WithArchiveClient(c S3Client) S3ArchiveOption {
	return func(o *s3ArchiveOptions) { o.client = c }
}

// WithArchiveConfigOption adds an AWS config load option.
func WithArchiveConfigOption(opt func(*config.LoadOptions) error) S3ArchiveOption {
	return func(o *s3ArchiveOptions) { o.configOptions = append(o.configOptions, opt) }
}

func NewS3Archive(ctx context.Context, cfg S3ArchiveConfig, opts ...S3ArchiveOption) (*S3Archive, error) {
	if cfg.Bucket == "" || cfg.Region == "" {
		return nil, ErrInvalidArchiveConfig
	}

	o := &s3ArchiveOptions{}
	for _, opt := range opts {
		opt(o)
	}

	client := o.client
	if client == nil {
		awsOptions := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
		if cfg.AccessKeyID != "" && cfg.SecretKey != "" {
			awsOptions = append(awsOptions, config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretKey, ""),
			))
		}
		awsOptions = append(awsOptions, o.configOptions...)

		awsCfg, err := config.LoadDefaultConfig(ctx, awsOptions...)
		if err != nil {
			return nil, errors.Join(ErrInvalidArchiveConfig, err)
		}
		client = s3.NewFromConfig(awsCfg, func(so *s3.Options) {
			if cfg.Endpoint != "" {
				so.BaseEndpoint = aws.String(cfg.Endpoint)
			}
			so.UsePathStyle = cfg.ForcePathStyle
		})
	}

	return &S3Archive{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Key returns the object key for ev.
func (a *S3Archive) Key(ev Event) string {
	day := ev.OccurredAt.UTC().Format("2006/01/02")
	return path.Join(a.prefix, ev.Provider, day, ev.ID+".json")
}

func (a *S3Archive) Store(ctx context.Context, ev Event) error {
	if len(ev.Raw) == 0 {
		return nil
	}
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(a.Key(ev)),
		Body:        bytes.NewReader(ev.Raw),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"event-type": ev.ProviderType,
			"provider":   ev.Provider,
		},
	})
	if err != nil {
		return classifyS3Error(err)
	}
	return nil
}

func classifyS3Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: %s: %w", ErrArchiveFailed, apiErr.ErrorCode(), err)
	}
	return errors.Join(ErrArchiveFailed, err)
}
