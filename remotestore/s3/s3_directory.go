package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hupe1980/filecache"
)

// Directory implements filecache.RemoteDirectory over an S3 bucket.
type Directory struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

var _ filecache.RemoteDirectory = (*Directory)(nil)

// New creates an S3-backed remote directory. rootPrefix is prepended to
// all keys (e.g. "indexes/shard-0/").
func New(client *s3.Client, bucket, rootPrefix string) *Directory {
	return &Directory{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   rootPrefix,
	}
}

// NewFromDefaultConfig builds the S3 client from the ambient AWS
// configuration (environment, shared config, instance role).
func NewFromDefaultConfig(ctx context.Context, bucket, rootPrefix string) (*Directory, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(s3.NewFromConfig(cfg), bucket, rootPrefix), nil
}

func (d *Directory) key(name string) string {
	return path.Join(d.prefix, name)
}

func (d *Directory) ListAll(ctx context.Context) ([]string, error) {
	var names []string

	paginator := s3.NewListObjectsV2Paginator(d.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(d.bucket),
		Prefix: aws.String(d.prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), d.prefix)
			name = strings.TrimPrefix(name, "/")
			if name != "" {
				names = append(names, name)
			}
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
	head, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(name)),
	})
	if err != nil {
		return filecache.FileMetadata{}, mapNotFound(name, err)
	}
	checksum := aws.ToString(head.ChecksumCRC32C)
	if checksum == "" {
		checksum = strings.Trim(aws.ToString(head.ETag), `"`)
	}
	return filecache.FileMetadata{
		Name:     name,
		Length:   aws.ToInt64(head.ContentLength),
		Checksum: checksum,
	}, nil
}

func (d *Directory) DeleteFile(ctx context.Context, name string) error {
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(name)),
	})
	return err
}

func (d *Directory) ReadRange(ctx context.Context, name string, offset, length int64) (io.ReadCloser, error) {
	if length <= 0 {
		return io.NopCloser(strings.NewReader("")), nil
	}
	resp, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(name)),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1)),
	})
	if err != nil {
		return nil, mapNotFound(name, err)
	}
	return resp.Body, nil
}

// Upload streams body to the bucket under name, using multipart upload
// for large files.
func (d *Directory) Upload(ctx context.Context, name string, body io.Reader) error {
	_, err := d.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(name)),
		Body:   body,
	})
	return err
}

func mapNotFound(name string, err error) error {
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	if errors.As(err, &nf) || errors.As(err, &nsk) {
		return fmt.Errorf("remote file %s: %w", name, filecache.ErrNotFound)
	}
	return err
}
