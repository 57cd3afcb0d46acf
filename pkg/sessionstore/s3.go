package sessionstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	json "github.com/goccy/go-json"
)

// DefaultAWSRegion is the fallback region for AWS S3 when none resolves.
const DefaultAWSRegion = "us-east-1"

// S3Config configures an S3Store.
//
// Credentials follow the AWS SDK v2 default chain unless AccessKeyID and
// SecretAccessKey are both set. For S3-compatible stores (MinIO and the
// like) set Endpoint and usually ForcePathStyle.
type S3Config struct {
	Bucket string

	// Prefix is prepended to every key, e.g. "mesosproxy/sessions/".
	Prefix string

	Region          string
	Endpoint        string
	Profile         string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// Validate checks that required configuration is present.
func (c *S3Config) Validate() error {
	if strings.TrimSpace(c.Bucket) == "" {
		return fmt.Errorf("s3 session store: bucket is required")
	}
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return fmt.Errorf("s3 session store: access key ID and secret access key must be provided together")
	}
	return nil
}

// s3API is the subset of *s3.Client the store uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps records as <prefix><kernel_id>.json objects.
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

var _ Store = (*S3Store)(nil)

// NewS3Store builds an S3 client from cfg.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("s3 session store: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newS3Store(client, cfg), nil
}

func newS3Store(client s3API, cfg S3Config) *S3Store {
	return &S3Store{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}
}

func loadAWSConfig(ctx context.Context, cfg S3Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}
	if awsCfg.Region == "" && cfg.Endpoint == "" {
		awsCfg.Region = DefaultAWSRegion
	}
	return awsCfg, nil
}

func (s *S3Store) key(kernelID string) string {
	return s.prefix + kernelID + ".json"
}

func (s *S3Store) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record is nil")
	}
	id, err := validateKernelID(rec.KernelID)
	if err != nil {
		return err
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(id)),
		Body:          bytes.NewReader(b),
		ContentLength: aws.Int64(int64(len(b))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return s.wrapError("Save", id, err)
	}
	return nil
}

func (s *S3Store) Load(ctx context.Context, kernelID string) (*Record, error) {
	id, err := validateKernelID(kernelID)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return nil, s.wrapError("Load", id, err)
	}
	defer func() { _ = out.Body.Close() }()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, s.wrapError("Load", id, err)
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("parse record %s: %w", s.key(id), err)
	}
	return &rec, nil
}

func (s *S3Store) Delete(ctx context.Context, kernelID string) error {
	id, err := validateKernelID(kernelID)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		wrapped := s.wrapError("Delete", id, err)
		if IsNotFound(wrapped) {
			return nil
		}
		return wrapped
	}
	return nil
}

// List loads every record under the prefix, newest first. Objects that fail
// to load are skipped.
func (s *S3Store) List(ctx context.Context) ([]Record, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var out []Record
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, s.wrapError("List", "", err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			id, ok := strings.CutSuffix(name, ".json")
			if !ok || strings.Contains(id, "/") {
				continue
			}
			rec, err := s.Load(ctx, id)
			if err != nil {
				continue
			}
			out = append(out, *rec)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

// S3Error carries the operation context of a failed S3 call.
type S3Error struct {
	Op     string
	Bucket string
	Key    string
	Err    error
}

func (e *S3Error) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("s3 %s: %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	return fmt.Sprintf("s3 %s: %s: %v", e.Op, e.Bucket, e.Err)
}

func (e *S3Error) Unwrap() error {
	return e.Err
}

func (s *S3Store) wrapError(op, kernelID string, err error) error {
	wrapped := &S3Error{Op: op, Bucket: s.bucket, Err: err}
	if kernelID != "" {
		wrapped.Key = s.key(kernelID)
	}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		wrapped.Err = fmt.Errorf("%w: %v", ErrNotFound, err)
		return wrapped
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			wrapped.Err = fmt.Errorf("%w: %v", ErrNotFound, err)
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Err = fmt.Errorf("%w: %v", ErrAccessDenied, err)
		case "ServiceUnavailable", "InternalError", "SlowDown":
			wrapped.Err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	return wrapped
}
