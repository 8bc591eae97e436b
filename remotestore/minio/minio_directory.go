package minio

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/hupe1980/filecache"
	"github.com/minio/minio-go/v7"
)

// Directory implements filecache.RemoteDirectory over a MinIO bucket.
type Directory struct {
	client *minio.Client
	bucket string
	prefix string
}

var _ filecache.RemoteDirectory = (*Directory)(nil)

// New creates a MinIO-backed remote directory. rootPrefix is prepended
// to all keys.
func New(client *minio.Client, bucket, rootPrefix string) *Directory {
	return &Directory{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

func (d *Directory) key(name string) string {
	return path.Join(d.prefix, name)
}

func (d *Directory) ListAll(ctx context.Context) ([]string, error) {
	var names []string
	for obj := range d.client.ListObjects(ctx, d.bucket, minio.ListObjectsOptions{
		Prefix:    d.prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, d.prefix)
		name = strings.TrimPrefix(name, "/")
		if name != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (d *Directory) FileLength(ctx context.Context, name string) (int64, error) {
	meta, err := d.Metadata(ctx, name)
	if err != nil {
		return 0, err
	}
	return meta.Length, nil
}

func (d *Directory) Metadata(ctx context.Context, name string) (filecache.FileMetadata, error) {
	info, err := d.client.StatObject(ctx, d.bucket, d.key(name), minio.StatObjectOptions{})
	if err != nil {
		return filecache.FileMetadata{}, mapNotFound(name, err)
	}
	return filecache.FileMetadata{
		Name:     name,
		Length:   info.Size,
		Checksum: strings.Trim(info.ETag, `"`),
	}, nil
}

func (d *Directory) DeleteFile(ctx context.Context, name string) error {
	err := d.client.RemoveObject(ctx, d.bucket, d.key(name), minio.RemoveObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil
		}
		return err
	}
	return nil
}

func (d *Directory) ReadRange(ctx context.Context, name string, offset, length int64) (io.ReadCloser, error) {
	if length <= 0 {
		return io.NopCloser(strings.NewReader("")), nil
	}
	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, offset+length-1); err != nil {
		return nil, err
	}
	obj, err := d.client.GetObject(ctx, d.bucket, d.key(name), opts)
	if err != nil {
		return nil, mapNotFound(name, err)
	}
	return obj, nil
}

// Upload streams body of the given length to the bucket under name.
// Pass length -1 when the size is unknown.
func (d *Directory) Upload(ctx context.Context, name string, body io.Reader, length int64) error {
	_, err := d.client.PutObject(ctx, d.bucket, d.key(name), body, length, minio.PutObjectOptions{})
	return err
}

func mapNotFound(name string, err error) error {
	errResp := minio.ToErrorResponse(err)
	if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
		return fmt.Errorf("remote file %s: %w", name, filecache.ErrNotFound)
	}
	return err
}
