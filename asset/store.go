package asset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// objectScheme prefixes texture paths served from an object store.
const objectScheme = "s3://"

// MaxObjectSize bounds a texture fetched from an object store.
const MaxObjectSize = 256 * 1024 * 1024

// ObjectInfo is the metadata used to key an object in the cache.
type ObjectInfo struct {
	Size    int64
	ModTime time.Time
}

// ObjectStore serves texture bytes by bucket and key.
type ObjectStore interface {
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

// ParseObjectURI splits "s3://bucket/key". ok is false for other paths or
// when the bucket or key is empty.
func ParseObjectURI(uri string) (bucket, key string, ok bool) {
	if !strings.HasPrefix(uri, objectScheme) {
		return "", "", false
	}
	rest := uri[len(objectScheme):]
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// S3Config holds configuration for the S3 texture store.
type S3Config struct {
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom S3 endpoint URL for S3-compatible providers
	// (e.g. MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing.
	UsePathStyle bool
}

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store is an ObjectStore backed by S3.
type S3Store struct {
	client S3API
}

// NewS3Store creates an S3 store using the AWS SDK default credential
// chain (env vars, shared config, IAM role).
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	return NewS3StoreFromClient(s3.NewFromConfig(awsConfig, s3Opts...)), nil
}

// NewS3StoreFromClient wraps an existing client.
func NewS3StoreFromClient(client S3API) *S3Store {
	return &S3Store{client: client}
}

// Stat returns the object's size and last-modified time.
func (s *S3Store) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectInfo{}, mapS3Error(err)
	}
	return ObjectInfo{
		Size:    aws.ToInt64(out.ContentLength),
		ModTime: aws.ToTime(out.LastModified),
	}, nil
}

// Get reads the whole object.
func (s *S3Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, mapS3Error(err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(out.Body, MaxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", bucket, key, err)
	}
	if len(data) > MaxObjectSize {
		return nil, fmt.Errorf("object s3://%s/%s exceeds %d bytes", bucket, key, MaxObjectSize)
	}
	return data, nil
}

func mapS3Error(err error) error {
	var notFound *s3types.NotFound
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: %v", ErrObjectNotFound, err)
	}
	return err
}
