package datastore

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"docstore-go/internal/blob"
	"docstore-go/internal/config"
	"docstore-go/internal/ds"
)

// NewDatastoreFromConfig creates a Datastore based on the datastore config
// type. Directories not set in cfg are laid out under baseDir. The returned
// datastore is not started; call Init.
func NewDatastoreFromConfig(ctx context.Context, cfg config.DatastoreConfig, baseDir string, opts Options) (ds.Datastore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Directories == (ds.Directories{}) && (cfg.Type != "memory" || baseDir != "") {
		opts.Directories = cfg.Directories(baseDir)
	}

	switch cfg.Type {
	case "memory":
		return NewMemory(opts), nil
	case "disk":
		return NewDisk(opts), nil
	case "badger":
		return NewBadger(opts), nil
	case "sqlite":
		return NewSQLite(opts), nil
	case "cloud":
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewCloud(blob.NewS3(client, cfg.S3Bucket, cfg.S3Prefix), cfg.Encrypt, opts)
	default:
		return nil, fmt.Errorf("unknown datastore type: %s", cfg.Type)
	}
}

// newS3Client builds an S3 client from the default AWS credential chain,
// overridden by any region, endpoint or static keys set in cfg. A custom
// endpoint switches to path-style addressing for S3-compatible servers.
func newS3Client(ctx context.Context, cfg config.DatastoreConfig) (*s3.Client, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKeyID, cfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
