// Package s3 implements a remote directory over Amazon S3. Block
// fetches map to ranged GetObject calls; uploads stream through the
// SDK's multipart upload manager.
package s3
