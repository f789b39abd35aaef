// Package artifacts issues time-boxed presigned URLs for session bundles in an
// S3-compatible object store. It performs no object I/O itself.
package artifacts

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/tmssession/internal/common"
)

// Store signs upload and download requests for bundle keys.
type Store interface {
	PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type Config struct {
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// Validate reports which required settings are missing.
func (c Config) Validate() error {
	var missing []string
	if c.AccessKey == "" || c.SecretKey == "" {
		missing = append(missing, "credentials")
	}
	if c.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if c.Region == "" && c.Endpoint == "" {
		missing = append(missing, "region or endpoint")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: object storage is missing %s", common.ErrConfiguration, strings.Join(missing, ", "))
	}
	return nil
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

// S3Store is the aws-sdk-go-v2 backed Store. The presign client is built on
// first use; a misconfigured store fails every call with
// common.ErrConfiguration.
type S3Store struct {
	cfg Config

	once sync.Once
	pc   *s3.PresignClient
	err  error
}

func NewS3Store(cfg Config) *S3Store {
	return &S3Store{cfg: cfg}
}

func (s *S3Store) presignClient(ctx context.Context) (*s3.PresignClient, error) {
	s.once.Do(func() {
		if err := s.cfg.Validate(); err != nil {
			s.err = err
			return
		}

		region := s.cfg.Region
		if region == "" {
			region = "us-east-1"
		}

		cfg, err := loadDefaultAWSConfig(ctx,
			config.WithRegion(region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				s.cfg.AccessKey,
				s.cfg.SecretKey,
				"",
			)))
		if err != nil {
			s.err = fmt.Errorf("%w: load aws config: %v", common.ErrConfiguration, err)
			return
		}

		client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
			if s.cfg.Endpoint != "" {
				o.BaseEndpoint = aws.String(s.cfg.Endpoint)
			}
			o.UsePathStyle = s.cfg.UsePathStyle
		})
		s.pc = newS3PresignClient(client)
	})
	return s.pc, s.err
}

func (s *S3Store) PresignUpload(ctx context.Context, key, contentType string, ttl time.Duration) (string, error) {
	if err := CheckTTL(ttl); err != nil {
		return "", err
	}
	pc, err := s.presignClient(ctx)
	if err != nil {
		return "", err
	}

	req, err := presignPutObject(pc, ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign put: %w", err)
	}
	return req.URL, nil
}

func (s *S3Store) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if err := CheckTTL(ttl); err != nil {
		return "", err
	}
	pc, err := s.presignClient(ctx)
	if err != nil {
		return "", err
	}

	req, err := presignGetObject(pc, ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}
