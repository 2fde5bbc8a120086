package objectstore

import (
	"bytes"
	"context"
	stderr "errors"
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
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	cargoshipconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/galleryfs/galleryfs/pkg/errors"
	"github.com/galleryfs/galleryfs/pkg/types"
)

// BackendConfig represents S3 backend configuration.
type BackendConfig struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`

	// ForcePathStyle is required for MinIO and other S3-compatible services.
	ForcePathStyle bool `yaml:"force_path_style"`

	MaxRetries int `yaml:"max_retries"`

	// EnableUploadOptimization routes binary uploads through the CargoShip
	// transporter.
	EnableUploadOptimization bool `yaml:"enable_upload_optimization"`
}

// S3Backend implements types.Backend and types.URLSigner over an
// S3-compatible object store.
type S3Backend struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string

	transporter *cargoships3.Transporter
	logger      *slog.Logger
	metrics     types.MetricsCollector

	mu              sync.Mutex
	bytesUploaded   int64
	bytesDownloaded int64
}

// NewS3Backend creates a new S3 backend. It supports both AWS S3 and
// S3-compatible services reachable through a custom endpoint.
func NewS3Backend(ctx context.Context, cfg *BackendConfig, logger *slog.Logger, collector types.MetricsCollector) (*S3Backend, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, errors.NewError(errors.ErrCodeValidationFailed, "bucket name cannot be empty").
			WithComponent("objectstore")
	}
	if logger == nil {
		logger = slog.Default()
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithRetryMaxAttempts(maxRetries),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	b := &S3Backend{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		logger:  logger,
		metrics: collector,
	}

	if cfg.EnableUploadOptimization {
		cargoCfg := cargoshipconfig.S3Config{
			Bucket:             cfg.Bucket,
			StorageClass:       cargoshipconfig.StorageClassStandard,
			MultipartThreshold: 32 * 1024 * 1024,
			MultipartChunkSize: 16 * 1024 * 1024,
			Concurrency:        4,
		}
		b.transporter = cargoships3.NewTransporter(client, cargoCfg)
		logger.Info("CargoShip upload optimization enabled", "bucket", cfg.Bucket)
	}

	return b, nil
}

// GetObject retrieves an object from the store.
func (b *S3Backend) GetObject(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()

	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		b.record("GetObject", start, 0, err)
		return nil, b.translateError(err, "GetObject", key)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		b.record("GetObject", start, 0, err)
		return nil, errors.Wrap(errors.ErrCodeStorageRead, "failed to read object body", err).WithTarget(key)
	}

	b.mu.Lock()
	b.bytesDownloaded += int64(len(data))
	b.mu.Unlock()

	b.record("GetObject", start, int64(len(data)), nil)
	return data, nil
}

// PutObject stores an object. Binary uploads go through the CargoShip
// transporter when optimization is enabled; metadata documents always use
// the plain client.
func (b *S3Backend) PutObject(ctx context.Context, key string, data []byte) error {
	start := time.Now()

	if b.transporter != nil && !strings.HasSuffix(key, ".json") {
		archive := cargoships3.Archive{
			Key:    key,
			Reader: bytes.NewReader(data),
			Size:   int64(len(data)),
			Metadata: map[string]string{
				"content-type": detectContentType(key),
			},
		}
		if result, uploadErr := b.transporter.Upload(ctx, archive); uploadErr == nil {
			b.logger.Debug("optimized upload completed",
				"key", key, "size", len(data), "duration", result.Duration)
			b.record("PutObject", start, int64(len(data)), nil)
			return nil
		} else {
			b.logger.Warn("optimized upload failed, falling back to standard client",
				"key", key, "error", uploadErr)
		}
	}

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(detectContentType(key)),
	})
	if err != nil {
		b.record("PutObject", start, 0, err)
		return b.translateError(err, "PutObject", key)
	}

	b.mu.Lock()
	b.bytesUploaded += int64(len(data))
	b.mu.Unlock()

	b.record("PutObject", start, int64(len(data)), nil)
	return nil
}

// DeleteObject removes an object. Deleting a missing key is not an error.
func (b *S3Backend) DeleteObject(ctx context.Context, key string) error {
	start := time.Now()

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isErrorType[*s3types.NoSuchKey](err) {
			return nil
		}
		b.record("DeleteObject", start, 0, err)
		return b.translateError(err, "DeleteObject", key)
	}

	b.record("DeleteObject", start, 0, nil)
	return nil
}

// CopyObject copies srcKey to dstKey within the bucket.
func (b *S3Backend) CopyObject(ctx context.Context, srcKey, dstKey string) error {
	start := time.Now()

	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		CopySource: aws.String(b.bucket + "/" + srcKey),
		Key:        aws.String(dstKey),
	})
	if err != nil {
		b.record("CopyObject", start, 0, err)
		return b.translateError(err, "CopyObject", srcKey)
	}

	b.record("CopyObject", start, 0, nil)
	return nil
}

// HeadObject returns object metadata without the body.
func (b *S3Backend) HeadObject(ctx context.Context, key string) (*types.ObjectInfo, error) {
	start := time.Now()

	result, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		b.record("HeadObject", start, 0, err)
		return nil, b.translateError(err, "HeadObject", key)
	}

	info := &types.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(result.ContentLength),
		LastModified: aws.ToTime(result.LastModified),
		ETag:         aws.ToString(result.ETag),
		ContentType:  aws.ToString(result.ContentType),
		Metadata:     result.Metadata,
	}

	b.record("HeadObject", start, 0, nil)
	return info, nil
}

// GetObjects fetches multiple objects concurrently (fan-out/fan-in). Missing
// keys are omitted from the result; any other error fails the batch.
func (b *S3Backend) GetObjects(ctx context.Context, keys []string) (map[string][]byte, error) {
	type result struct {
		key  string
		data []byte
		err  error
	}

	resultCh := make(chan result, len(keys))
	for _, key := range keys {
		go func(key string) {
			data, err := b.GetObject(ctx, key)
			resultCh <- result{key: key, data: data, err: err}
		}(key)
	}

	objects := make(map[string][]byte, len(keys))
	var failures []string
	for range keys {
		res := <-resultCh
		switch {
		case res.err == nil:
			objects[res.key] = res.data
		case errors.IsNotFound(res.err):
			// omitted
		default:
			failures = append(failures, fmt.Sprintf("%s: %v", res.key, res.err))
		}
	}

	if len(failures) > 0 {
		return nil, errors.NewError(errors.ErrCodePartialFailure,
			fmt.Sprintf("batch get failed for %d objects: %s", len(failures), strings.Join(failures, "; ")))
	}
	return objects, nil
}

// PutObjects stores multiple objects concurrently.
func (b *S3Backend) PutObjects(ctx context.Context, objects map[string][]byte) error {
	type result struct {
		key string
		err error
	}

	resultCh := make(chan result, len(objects))
	for key, data := range objects {
		go func(key string, data []byte) {
			resultCh <- result{key: key, err: b.PutObject(ctx, key, data)}
		}(key, data)
	}

	var failures []string
	for range objects {
		res := <-resultCh
		if res.err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", res.key, res.err))
		}
	}

	if len(failures) > 0 {
		return errors.NewError(errors.ErrCodePartialFailure,
			fmt.Sprintf("batch put failed for %d objects: %s", len(failures), strings.Join(failures, "; ")))
	}
	return nil
}

// ListObjects lists objects with the given prefix, following continuation
// tokens until limit is reached (0 means no limit).
func (b *S3Backend) ListObjects(ctx context.Context, prefix string, limit int) ([]types.ObjectInfo, error) {
	start := time.Now()

	var objects []types.ObjectInfo
	var continuation *string

	for {
		input := &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		}
		if limit > 0 {
			remaining := limit - len(objects)
			if remaining <= 0 {
				break
			}
			if remaining > 1000 {
				remaining = 1000
			}
			input.MaxKeys = aws.Int32(int32(remaining))
		}

		result, err := b.client.ListObjectsV2(ctx, input)
		if err != nil {
			b.record("ListObjects", start, 0, err)
			return nil, b.translateError(err, "ListObjects", prefix)
		}

		for _, obj := range result.Contents {
			objects = append(objects, types.ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				ETag:         aws.ToString(obj.ETag),
			})
		}

		if !aws.ToBool(result.IsTruncated) {
			break
		}
		continuation = result.NextContinuationToken
	}

	b.record("ListObjects", start, 0, nil)
	return objects, nil
}

// SignGetURL generates a presigned GET URL for temporary read access to a
// private object.
func (b *S3Backend) SignGetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	result, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})
	if err != nil {
		return "", b.translateError(err, "PresignGetObject", key)
	}
	return result.URL, nil
}

// HealthCheck verifies the backend connection.
func (b *S3Backend) HealthCheck(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeNetworkError, "object store health check failed", err).
			WithComponent("objectstore")
	}
	return nil
}

func (b *S3Backend) record(operation string, start time.Time, size int64, err error) {
	if b.metrics == nil {
		return
	}
	b.metrics.RecordOperation(operation, time.Since(start), size, err == nil)
	if err != nil {
		b.metrics.RecordError(operation, err)
	}
}

func (b *S3Backend) translateError(err error, operation, key string) error {
	switch {
	case isErrorType[*s3types.NoSuchKey](err), isErrorType[*s3types.NotFound](err):
		return errors.Wrap(errors.ErrCodeObjectNotFound, "object not found", err).
			WithComponent("objectstore").WithOperation(operation).WithTarget(key)
	case isErrorType[*s3types.NoSuchBucket](err):
		return errors.Wrap(errors.ErrCodeBucketNotFound, "bucket not found", err).
			WithComponent("objectstore").WithOperation(operation)
	default:
		code := errors.ErrCodeStorageRead
		switch operation {
		case "PutObject", "CopyObject", "DeleteObject":
			code = errors.ErrCodeStorageWrite
		}
		return errors.Wrap(code, fmt.Sprintf("%s failed", operation), err).
			WithComponent("objectstore").WithOperation(operation).WithTarget(key)
	}
}

// detectContentType maps an object key to its MIME type.
func detectContentType(key string) string {
	switch extOf(key) {
	case ".json":
		return "application/json"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	case ".bmp":
		return "image/bmp"
	case ".avif":
		return "image/avif"
	default:
		return "application/octet-stream"
	}
}

// isErrorType checks if an error is of a specific type.
func isErrorType[T error](err error) bool {
	var target T
	return stderr.As(err, &target)
}
