// Package s3 provides Amazon S3 implementations of blobstore.BlobStore.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("matrices/"),
//	    s3.WithRegion("eu-central-1"),
//	)
//	err = persistence.SaveMatrix(ctx, store, "graph", m)
//
// # Features
//
//   - Range reads for partial fetches
//   - Multipart uploads with CRC32C checksums for large arrays
//   - Automatic pagination for listing
//   - DynamoDB conditional writes for CURRENT pointers (DDBCommitStore)
package s3
