package filestore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/beatok/backend/internal/config"
)

// NewFromConfig creates a FileStore based on the storage config type.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (FileStore, error) {
	switch cfg.Type {
	case "local", "":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("local storage requires dir to be set")
		}
		return NewLocal(cfg.Dir)
	case "s3":
		return NewS3FromConfig(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

// NewS3FromConfig builds an S3 client from the default AWS credential
// chain, overridden by any static keys, region or endpoint in cfg.
func NewS3FromConfig(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 storage requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})
	return NewS3(client, cfg.S3Bucket, cfg.S3Prefix), nil
}
