// S3-compatible remote backend for filedepot.
//
// Object data is stored under the configured bucket with the storage key as
// the object key, ACL public-read, so returned URLs are directly fetchable.
// The bucket is probed lazily on first write and created on demand; applying
// the public-read bucket policy is best-effort and never fails an upload.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	deperr "github.com/filedepot/filedepot/internal/errors"
)

// S3API is the subset of the AWS S3 client the remote backend uses.
// It allows mocking in tests.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutBucketPolicy(ctx context.Context, params *s3.PutBucketPolicyInput, optFns ...func(*s3.Options)) (*s3.PutBucketPolicyOutput, error)
}

// S3Options configures an S3Backend.
type S3Options struct {
	Endpoint     string
	Region       string
	AccessKey    string
	SecretKey    string
	Bucket       string
	PublicDomain string
	UsePathStyle bool
	// RequestTimeout bounds each write call at the adapter boundary.
	// Zero disables the explicit timeout.
	RequestTimeout time.Duration
}

// S3Backend implements Backend against an S3-compatible object store.
type S3Backend struct {
	opts   S3Options
	client S3API

	// mu guards bucketReady. Bucket creation races between concurrent first
	// writes are tolerated: "already exists" from the provider counts as
	// success.
	mu          sync.Mutex
	bucketReady bool
}

// NewS3Backend creates an S3Backend from the given options, resolving
// credentials via static keys when provided or the standard AWS chain
// otherwise.
func NewS3Backend(ctx context.Context, opts S3Options) (*S3Backend, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if opts.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		})
	}
	if opts.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	b := &S3Backend{
		opts:   opts,
		client: s3.NewFromConfig(cfg, s3Opts...),
	}
	slog.Info("S3 backend initialized", "endpoint", opts.Endpoint, "bucket", opts.Bucket, "region", opts.Region)
	return b, nil
}

// NewS3BackendWithClient creates an S3Backend with a pre-built client,
// primarily for tests.
func NewS3BackendWithClient(opts S3Options, client S3API) *S3Backend {
	return &S3Backend{opts: opts, client: client}
}

// publicReadPolicy is the bucket policy applied so objects are directly
// fetchable at their URL.
const publicReadPolicy = `{
  "Version": "2012-10-17",
  "Statement": [{
    "Sid": "PublicRead",
    "Effect": "Allow",
    "Principal": "*",
    "Action": ["s3:GetObject"],
    "Resource": ["arn:aws:s3:::%s/*"]
  }]
}`

// ensureBucket probes the bucket, creating it if missing and applying the
// public-read policy. Policy failures surface as a Warning, not an error:
// the bucket may already carry an adequate policy.
func (b *S3Backend) ensureBucket(ctx context.Context) (*Warning, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bucketReady {
		return nil, nil
	}

	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.opts.Bucket)})
	if err != nil {
		if !isS3NotFound(err) {
			return nil, deperr.BackendUnavailable("probing bucket", err)
		}
		_, err = b.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(b.opts.Bucket)})
		if err != nil && !isBucketAlreadyExists(err) {
			return nil, deperr.BackendUnavailable("creating bucket", err)
		}
		slog.Info("created bucket", "bucket", b.opts.Bucket)
	}

	var warn *Warning
	policy := fmt.Sprintf(publicReadPolicy, b.opts.Bucket)
	if _, err := b.client.PutBucketPolicy(ctx, &s3.PutBucketPolicyInput{
		Bucket: aws.String(b.opts.Bucket),
		Policy: aws.String(policy),
	}); err != nil {
		slog.Warn("applying public-read bucket policy failed", "bucket", b.opts.Bucket, "error", err)
		warn = &Warning{Op: "put-bucket-policy", Err: err}
	}

	b.bucketReady = true
	return warn, nil
}

// writeCtx applies the configured request timeout for a single write call.
func (b *S3Backend) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.opts.RequestTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.opts.RequestTimeout)
}

// Put uploads the object in a single request, regardless of how the caller's
// upload arrived. Multi-part-ness is a client-facing upload concern, not a
// storage concern.
func (b *S3Backend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (*StoredObject, error) {
	ctx, cancel := b.writeCtx(ctx)
	defer cancel()

	warn, err := b.ensureBucket(ctx)
	if err != nil {
		return nil, err
	}

	// The SDK needs a seekable body for signing and retries.
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, deperr.BackendUnavailable("reading object data", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.opts.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
		ACL:           types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return nil, deperr.BackendUnavailable("uploading object", err)
	}

	return &StoredObject{
		URL:     b.objectURL(key),
		Key:     key,
		Size:    int64(len(data)),
		Warning: warn,
	}, nil
}

// Open streams the object body from the remote store. No explicit timeout is
// applied here: the returned reader outlives the call and is paced by the
// consumer.
func (b *S3Backend) Open(ctx context.Context, key string) (io.ReadCloser, int64, error) {
	resp, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.opts.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, 0, deperr.NotFound(key)
		}
		return nil, 0, deperr.BackendUnavailable("getting object", err)
	}

	var size int64
	if resp.ContentLength != nil {
		size = *resp.ContentLength
	}
	return resp.Body, size, nil
}

// HealthCheck verifies the bucket is reachable.
func (b *S3Backend) HealthCheck(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(b.opts.Bucket)})
	if err != nil && !isS3NotFound(err) {
		return deperr.BackendUnavailable("probing bucket", err)
	}
	return nil
}

// objectURL builds the public URL for a key: the configured public domain
// when set, else {endpoint}/{bucket}/{key}.
func (b *S3Backend) objectURL(key string) string {
	if b.opts.PublicDomain != "" {
		return strings.TrimRight(b.opts.PublicDomain, "/") + "/" + key
	}
	return strings.TrimRight(b.opts.Endpoint, "/") + "/" + b.opts.Bucket + "/" + key
}

// isS3NotFound reports whether an S3 error means the key or bucket is absent.
func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound", "404":
			return true
		}
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return true
	}
	return false
}

// isBucketAlreadyExists reports whether a CreateBucket error just means a
// concurrent writer won the race.
func isBucketAlreadyExists(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
			return true
		}
	}
	var owned *types.BucketAlreadyOwnedByYou
	if errors.As(err, &owned) {
		return true
	}
	var exists *types.BucketAlreadyExists
	return errors.As(err, &exists)
}

var _ Backend = (*S3Backend)(nil)
