package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/dmitrymomot/notifykit/pkg/awsutil"
)

// Source yields the raw bytes of a configuration document.
type Source interface {
	Fetch(ctx context.Context) ([]byte, Format, error)
	String() string
}

// FileSource reads a local JSON or YAML file.
type FileSource string

func (f FileSource) Fetch(ctx context.Context) ([]byte, Format, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, "", err
	}
	return data, FormatFromPath(string(f)), nil
}

func (f FileSource) String() string { return "file:" + string(f) }

// BytesSource serves an in-memory document.
type BytesSource struct {
	Data   []byte
	Format Format
}

func (b BytesSource) Fetch(context.Context) ([]byte, Format, error) {
	return b.Data, b.Format, nil
}

func (b BytesSource) String() string { return "bytes" }

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var (
	ErrObjectNotFound = errors.New("configuration object not found")
	ErrAccessDenied   = errors.New("access denied to configuration object")
)

// S3Source reads a document from an S3 object, optionally pinned to an
// object version.
type S3Source struct {
	client    S3API
	bucket    string
	key       string
	versionID string
}

type S3Option func(*S3Source)

// WithVersionID pins the object version to read.
func WithVersionID(id string) S3Option {
	return func(s *S3Source) {
		s.versionID = id
	}
}

func NewS3Source(client S3API, bucket, key string, opts ...S3Option) *S3Source {
	s := &S3Source{client: client, bucket: bucket, key: key}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewS3SourceFromConfig builds the S3 client from awsutil settings.
// Path-style addressing is enabled when a custom endpoint is set.
func NewS3SourceFromConfig(ctx context.Context, cfg awsutil.Config, bucket, key string, opts ...S3Option) (*S3Source, error) {
	awsCfg, err := awsutil.Load(ctx, cfg)
	if err != nil {
		return nil, err
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.Endpoint != ""
	})
	return NewS3Source(client, bucket, key, opts...), nil
}

func (s *S3Source) Fetch(ctx context.Context) ([]byte, Format, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	}
	if s.versionID != "" {
		in.VersionId = aws.String(s.versionID)
	}
	out, err := s.client.GetObject(ctx, in)
	if err != nil {
		return nil, "", classifyS3Error(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read s3 object: %w", err)
	}
	return data, FormatFromPath(s.key), nil
}

func (s *S3Source) String() string {
	if s.versionID != "" {
		return fmt.Sprintf("s3://%s/%s?versionId=%s", s.bucket, s.key, s.versionID)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.key)
}

func classifyS3Error(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NoSuchVersion", "NotFound":
			return fmt.Errorf("%w: %w", ErrObjectNotFound, err)
		case "AccessDenied", "Forbidden":
			return fmt.Errorf("%w: %w", ErrAccessDenied, err)
		}
	}
	return err
}
