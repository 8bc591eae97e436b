// Package remotestore provides remote directory implementations over
// blob stores. The in-memory directory here serves tests and embedded
// use; the s3 and minio subpackages talk to real object storage.
package remotestore
