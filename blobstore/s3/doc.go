// Package s3 provides an Amazon S3 implementation of blobstore.Store.
//
// # Usage
//
//	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion("eu-central-1"))
//	store := s3.NewStore(awss3.NewFromConfig(cfg), "my-bucket", "worklists/")
//
// # Features
//
//   - Uploads go through the SDK upload manager (multipart for large blobs)
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
