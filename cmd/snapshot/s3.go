package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/airframesio/table-reconciler/cmd/reconcile"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

// S3Config holds S3-compatible storage settings.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Region    string
}

// S3Clients bundles the API client with transfer managers built on it.
type S3Clients struct {
	API        s3iface.S3API
	Downloader s3manageriface.DownloaderAPI
	Uploader   s3manageriface.UploaderAPI
}

// ConnectS3 creates a session with static credentials and path-style
// addressing, which works for AWS and S3-compatible stores alike.
func ConnectS3(cfg S3Config) (*S3Clients, error) {
	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(cfg.Endpoint),
		Region:           aws.String(cfg.Region),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 session: %w", err)
	}

	return &S3Clients{
		API:        s3.New(sess),
		Downloader: s3manager.NewDownloader(sess),
		Uploader:   s3manager.NewUploader(sess),
	}, nil
}

// PrefixFunc returns the key prefix under which a table's snapshot lives.
type PrefixFunc func(table string) string

// S3Fetcher reads snapshot files from a bucket.
type S3Fetcher struct {
	clients *S3Clients
	bucket  string
	prefix  PrefixFunc
	ignore  []string
}

// NewS3Fetcher creates a fetcher over bucket.
func NewS3Fetcher(clients *S3Clients, bucket string, prefix PrefixFunc, ignore []string) *S3Fetcher {
	return &S3Fetcher{clients: clients, bucket: bucket, prefix: prefix, ignore: ignore}
}

// Fetch lists the table's prefix, picks the object named after the table
// and decodes it.
func (f *S3Fetcher) Fetch(ctx context.Context, table string) (reconcile.Table, error) {
	prefix := normalizePrefix(f.prefix(table))

	candidates := make(map[string]string)
	err := f.clients.API.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(f.bucket),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			key := aws.StringValue(obj.Key)
			// only direct children of the prefix
			if rest := strings.TrimPrefix(key, prefix); !strings.Contains(rest, "/") {
				candidates[path.Base(key)] = key
			}
		}
		return true
	})
	if err != nil {
		return reconcile.Table{}, fmt.Errorf("failed to list s3://%s/%s: %w", f.bucket, prefix, err)
	}

	key, err := pickFile(table, candidates)
	if err != nil {
		return reconcile.Table{}, err
	}
	codec, err := DetectCodec(path.Base(key), "", "")
	if err != nil {
		return reconcile.Table{}, err
	}

	buf := aws.NewWriteAtBuffer(nil)
	if _, err := f.clients.Downloader.DownloadWithContext(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return reconcile.Table{}, fmt.Errorf("failed to download %s: %w", key, err)
	}

	t, err := Decode(table, bytes.NewReader(buf.Bytes()), codec)
	if err != nil {
		return reconcile.Table{}, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return t.Without(f.ignore...), nil
}

// S3Sink uploads one snapshot file per table.
type S3Sink struct {
	clients *S3Clients
	bucket  string
	prefix  PrefixFunc
	codec   Codec
}

// NewS3Sink creates a sink writing into bucket.
func NewS3Sink(clients *S3Clients, bucket string, prefix PrefixFunc, codec Codec) *S3Sink {
	return &S3Sink{clients: clients, bucket: bucket, prefix: prefix, codec: codec}
}

// Key returns the object key a table is written to.
func (s *S3Sink) Key(table string) (string, error) {
	name, err := s.codec.Filename(table)
	if err != nil {
		return "", err
	}
	return normalizePrefix(s.prefix(table)) + name, nil
}

// Put encodes the table and uploads it, overwriting any previous object.
func (s *S3Sink) Put(ctx context.Context, t reconcile.Table) error {
	key, err := s.Key(t.Name)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := Encode(&buf, t, s.codec); err != nil {
		return fmt.Errorf("failed to encode %s: %w", t.Name, err)
	}

	if _, err := s.clients.Uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
	}); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// normalizePrefix ensures a non-empty prefix ends with a slash.
func normalizePrefix(p string) string {
	p = strings.TrimPrefix(p, "/")
	if p != "" && !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}
