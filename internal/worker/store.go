package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectStore moves job sources and outputs between the bucket and local disk.
type ObjectStore interface {
	Download(ctx context.Context, key, dst string) error
	Upload(ctx context.Context, key, src string) error
	Presign(ctx context.Context, key string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

const (
	s3Attempts = 3
	s3Backoff  = 2 * time.Second
)

type s3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

type presignAPI interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Store is an ObjectStore backed by one S3 bucket. Every call is retried
// up to three times, two seconds apart, unless the object does not exist.
type S3Store struct {
	api       s3API
	presigner presignAPI
	bucket    string
	backoff   time.Duration
	logger    *slog.Logger
}

// NewS3Store returns a store for bucket using client.
func NewS3Store(client *s3.Client, bucket string, logger *slog.Logger) *S3Store {
	return newS3Store(client, s3.NewPresignClient(client), bucket, logger)
}

func newS3Store(api s3API, presigner presignAPI, bucket string, logger *slog.Logger) *S3Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &S3Store{
		api:       api,
		presigner: presigner,
		bucket:    bucket,
		backoff:   s3Backoff,
		logger:    logger,
	}
}

// Download writes the object at key to the file dst.
func (s *S3Store) Download(ctx context.Context, key, dst string) error {
	return s.retry(ctx, "download", key, func(ctx context.Context) error {
		resp, err := s.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		f, err := os.Create(dst)
		if err != nil {
			return fmt.Errorf("create %s: %w", dst, err)
		}
		if _, err := io.Copy(f, resp.Body); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", dst, err)
		}
		return f.Close()
	})
}

// Upload stores the file src at key with a SHA-256 checksum.
func (s *S3Store) Upload(ctx context.Context, key, src string) error {
	return s.retry(ctx, "upload", key, func(ctx context.Context) error {
		f, err := os.Open(src)
		if err != nil {
			return fmt.Errorf("open %s: %w", src, err)
		}
		defer f.Close()

		input := &s3.PutObjectInput{
			Bucket:            aws.String(s.bucket),
			Key:               aws.String(key),
			Body:              f,
			ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		}
		if ct := mime.TypeByExtension(path.Ext(key)); ct != "" {
			input.ContentType = aws.String(ct)
		}
		_, err = s.api.PutObject(ctx, input)
		return err
	})
}

// Presign returns a GET URL for key that stays valid for ttl.
func (s *S3Store) Presign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	var url string
	err := s.retry(ctx, "presign", key, func(ctx context.Context) error {
		req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		}, s3.WithPresignExpires(ttl))
		if err != nil {
			return err
		}
		url = req.URL
		return nil
	})
	return url, err
}

// Delete removes key from the bucket.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return &StorageError{Op: "delete", Err: errors.New("key cannot be empty")}
	}
	return s.retry(ctx, "delete", key, func(ctx context.Context) error {
		_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return err
	})
}

func (s *S3Store) retry(ctx context.Context, op, key string, fn func(context.Context) error) error {
	var err error
	for attempt := 1; attempt <= s3Attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return &StorageError{Op: op, Key: key, Err: fmt.Errorf("%w: %v", ErrObjectNotFound, err)}
		}
		s.logger.Warn("s3 call failed", "op", op, "key", key, "attempt", attempt, "error", err)
		if attempt == s3Attempts {
			break
		}
		select {
		case <-ctx.Done():
			return &StorageError{Op: op, Key: key, Err: ctx.Err()}
		case <-time.After(s.backoff):
		}
	}
	return &StorageError{Op: op, Key: key, Err: err}
}
