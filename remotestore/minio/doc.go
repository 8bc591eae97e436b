// Package minio implements a remote directory over MinIO and other
// S3-compatible object stores.
package minio
