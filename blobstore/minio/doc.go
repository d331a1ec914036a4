// Package minio provides a blobstore.BlobStore backed by MinIO or any other
// S3-compatible object store (Ceph, Garage, SeaweedFS).
//
//	client, err := minio.New("localhost:9000", &minio.Options{
//	    Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
//	    Secure: false,
//	})
//	store := minioblob.NewStore(client, "my-bucket", minioblob.WithPrefix("matrices/"))
//
// Unlike the s3 package it pulls in no AWS SDK dependencies.
package minio
