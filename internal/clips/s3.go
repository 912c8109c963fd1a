package clips

import (
	"bytes"
	"context"
	"errors"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	apperrors "github.com/GriffinCanCode/soundwatch/internal/errors"
)

// S3Client is the subset of the S3 API used by S3Store. *s3.Client
// satisfies it.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config describes an S3 or S3-compatible bucket.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // empty uses AWS
	PathStyle       bool   // MinIO and friends
	AccessKeyID     string
	SecretAccessKey string
}

// NewS3Client builds an S3 client from static settings. Without keys the
// client signs nothing and only works against public or local endpoints.
func NewS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.PathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		creds := aws.Credentials{
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			Source:          "soundwatch",
		}
		opts.Credentials = aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		})
	}
	return s3.New(opts)
}

// S3Store stores clips as objects under an optional key prefix.
type S3Store struct {
	client S3Client
	bucket string
	prefix string
}

// NewS3 creates an S3-backed clip store.
func NewS3(client S3Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(p string) string {
	if s.prefix == "" {
		return p
	}
	return s.prefix + "/" + p
}

// Put uploads data as a WAV object.
func (s *S3Store) Put(ctx context.Context, p string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(p)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("audio/wav"),
	})
	if err != nil {
		return wrapS3(err, "upload clip", s.key(p))
	}
	return nil
}

// Get downloads an object.
func (s *S3Store) Get(ctx context.Context, p string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(p)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, apperrors.Newf(apperrors.CodeNotFound, "clip %s not found", p)
		}
		return nil, wrapS3(err, "download clip", s.key(p))
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeArchiveFailed, "read clip body").WithMetadata("key", s.key(p))
	}
	return data, nil
}

// wrapS3 reports server faults and throttling as CodeUnavailable so callers
// may retry them; everything else is CodeArchiveFailed.
func wrapS3(err error, msg, key string) error {
	code := apperrors.CodeArchiveFailed
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && transientS3(apiErr) {
		code = apperrors.CodeUnavailable
	}
	e := apperrors.Wrap(err, code, msg).WithMetadata("key", key)
	if apiErr != nil {
		e = e.WithMetadata("s3_code", apiErr.ErrorCode())
	}
	return e
}

func transientS3(err smithy.APIError) bool {
	switch err.ErrorCode() {
	case "SlowDown", "Throttling", "ThrottlingException", "RequestTimeout", "ServiceUnavailable", "InternalError":
		return true
	}
	return err.ErrorFault() == smithy.FaultServer
}

func isS3NotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

var (
	_ Store = (*S3Store)(nil)
	_ Store = (*Local)(nil)
)
