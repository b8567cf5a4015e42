package s3

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"jobbot/internal/shared/storage/object"
	"jobbot/internal/shared/telemetry"
	"jobbot/internal/shared/util"
)

type api interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options selects the bucket exports land in. Keys are written under Prefix.
type Options struct {
	Region string
	Bucket string
	Prefix string
}

// Store writes export files to S3 with server-side encryption.
type Store struct {
	client api
	bucket string
	prefix string
}

// New loads credentials from the default AWS chain.
func New(ctx context.Context, opts Options) (*Store, error) {
	if strings.TrimSpace(opts.Bucket) == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return newStore(s3.NewFromConfig(cfg), opts), nil
}

func newStore(client api, opts Options) *Store {
	return &Store{
		client: client,
		bucket: strings.TrimSpace(opts.Bucket),
		prefix: strings.Trim(strings.TrimSpace(opts.Prefix), "/"),
	}
}

// SaveWithKey uploads r and reports the bytes sent.
func (s *Store) SaveWithKey(ctx context.Context, storageKey string, contentType string, r io.Reader) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key, err := s.objectKey(storageKey)
	if err != nil {
		return 0, err
	}

	body := &countingReader{r: r}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(key),
		Body:                 body,
		ContentType:          aws.String(contentType),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return 0, fmt.Errorf("upload s3://%s/%s: %w", s.bucket, key, err)
	}
	telemetry.Info("export.uploaded", map[string]any{
		"bucket": s.bucket,
		"key":    key,
		"bytes":  body.n,
	})
	return body.n, nil
}

// Open streams a previously uploaded export back.
func (s *Store) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	key, err := s.objectKey(storageKey)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download s3://%s/%s: %w", s.bucket, key, err)
	}
	return out.Body, nil
}

func (s *Store) objectKey(storageKey string) (string, error) {
	clean, err := util.CleanKey(storageKey)
	if err != nil {
		return "", err
	}
	if s.prefix == "" {
		return clean, nil
	}
	return path.Join(s.prefix, clean), nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

var _ object.Store = (*Store)(nil)
