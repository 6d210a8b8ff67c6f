package main

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	goredis "github.com/redis/go-redis/v9"

	"github.com/hupe1980/worklist"
	"github.com/hupe1980/worklist/blobstore"
	"github.com/hupe1980/worklist/blobstore/minio"
	"github.com/hupe1980/worklist/blobstore/s3"
	"github.com/hupe1980/worklist/codec"
	"github.com/hupe1980/worklist/config"
	"github.com/hupe1980/worklist/gdb/sqlstore"
	"github.com/hupe1980/worklist/snapshot"
	"github.com/hupe1980/worklist/statestore"
	"github.com/hupe1980/worklist/statestore/dynamodb"
	"github.com/hupe1980/worklist/statestore/redis"
)

func newLogger(cfg config.LogConfig) *worklist.Logger {
	if cfg.Format == "json" {
		return worklist.NewJSONLogger(cfg.SlogLevel())
	}
	return worklist.NewTextLogger(cfg.SlogLevel())
}

func loadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var optFns []func(*awsconfig.LoadOptions) error
	if region != "" {
		optFns = append(optFns, awsconfig.WithRegion(region))
	}
	return awsconfig.LoadDefaultConfig(ctx, optFns...)
}

func newBlobStore(ctx context.Context, cfg config.SnapshotsConfig) (blobstore.Store, error) {
	switch cfg.Backend {
	case "local":
		return blobstore.NewLocalStore(cfg.Dir), nil
	case "memory":
		return blobstore.NewMemoryStore(), nil
	case "minio":
		client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
			Secure: cfg.UseSSL,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, err
		}
		return withCache(minio.NewStore(client, cfg.Bucket, cfg.Prefix), cfg.CacheBytes), nil
	case "s3":
		awsCfg, err := loadAWSConfig(ctx, cfg.Region)
		if err != nil {
			return nil, err
		}
		client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
			if cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.Endpoint)
				o.UsePathStyle = true
			}
		})
		return withCache(s3.NewStore(client, cfg.Bucket, cfg.Prefix), cfg.CacheBytes), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func withCache(store blobstore.Store, capacity int64) blobstore.Store {
	if capacity <= 0 {
		return store
	}
	return blobstore.NewCachingStore(store, capacity)
}

func newSnapshotLoader(ctx context.Context, cfg config.SnapshotsConfig) (*snapshot.BlobLoader, error) {
	store, err := newBlobStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	c, ok := codec.ByName(cfg.Codec)
	if !ok {
		return nil, fmt.Errorf("unknown codec %q", cfg.Codec)
	}
	compression, err := snapshot.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	return snapshot.NewBlobLoader(store, func(o *snapshot.Options) {
		o.Codec = c
		o.Compression = compression
	}), nil
}

// newStateStore returns a nil store for the none backend.
func newStateStore(ctx context.Context, cfg config.StateConfig) (statestore.Store, func(), error) {
	noop := func() {}

	switch cfg.Backend {
	case "", "none":
		return nil, noop, nil
	case "file":
		return statestore.NewFileStore(cfg.Dir), noop, nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, noop, err
		}
		return redis.New(client, cfg.Redis.Prefix), func() { _ = client.Close() }, nil
	case "dynamodb":
		awsCfg, err := loadAWSConfig(ctx, cfg.DynamoDB.Region)
		if err != nil {
			return nil, noop, err
		}
		return dynamodb.New(awsdynamodb.NewFromConfig(awsCfg), cfg.DynamoDB.Table), noop, nil
	default:
		return nil, noop, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// newGeometryStore returns nil when no driver is configured.
func newGeometryStore(cfg config.StoreConfig, logger *worklist.Logger) (*sqlstore.Store, error) {
	if cfg.Driver == "" {
		return nil, nil
	}
	return sqlstore.Open(cfg.Driver, cfg.DSN, func(o *sqlstore.Options) {
		o.BufferDistance = cfg.BufferDistance
		o.Logger = logger.Logger
	})
}
