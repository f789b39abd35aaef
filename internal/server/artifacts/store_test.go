package artifacts

import (
	"context"
	"errors"
	"math"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/tmssession/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minioConfig() Config {
	return Config{
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		Bucket:       "tms-bundles",
		Region:       "us-east-1",
		Endpoint:     "http://127.0.0.1:9000",
		UsePathStyle: true,
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, minioConfig().Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		missing string
	}{
		{"no credentials", func(c *Config) { c.SecretKey = "" }, "credentials"},
		{"no bucket", func(c *Config) { c.Bucket = "" }, "bucket"},
		{"no region nor endpoint", func(c *Config) { c.Region, c.Endpoint = "", "" }, "region or endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := minioConfig()
			tt.mutate(&c)
			err := c.Validate()
			require.ErrorIs(t, err, common.ErrConfiguration)
			assert.Contains(t, err.Error(), tt.missing)
		})
	}
}

func TestS3Store_PresignUpload_RealSigner(t *testing.T) {
	st := NewS3Store(minioConfig())

	raw, err := st.PresignUpload(context.Background(), "sessions/s-1/1-a.zip", "application/zip", DefaultTTL)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", u.Host)
	assert.Equal(t, "/tms-bundles/sessions/s-1/1-a.zip", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.Contains(t, u.Query().Get("X-Amz-SignedHeaders"), "content-type")
}

func TestS3Store_PresignDownload_RealSigner(t *testing.T) {
	st := NewS3Store(minioConfig())

	raw, err := st.PresignDownload(context.Background(), "sessions/s-1/1-a.zip", 2*time.Minute)
	require.NoError(t, err)
	assert.Contains(t, raw, "X-Amz-Expires=120")
}

func TestS3Store_MisconfiguredFailsOnUse(t *testing.T) {
	cfg := minioConfig()
	cfg.AccessKey = ""
	st := NewS3Store(cfg)

	_, err := st.PresignUpload(context.Background(), "k", "application/zip", DefaultTTL)
	require.ErrorIs(t, err, common.ErrConfiguration)

	_, err = st.PresignDownload(context.Background(), "k", DefaultTTL)
	require.ErrorIs(t, err, common.ErrConfiguration)
}

func TestS3Store_TTLBounds(t *testing.T) {
	st := NewS3Store(minioConfig())

	_, err := st.PresignUpload(context.Background(), "k", "application/zip", 59*time.Second)
	require.ErrorIs(t, err, common.ErrValidation)

	_, err = st.PresignDownload(context.Background(), "k", 3601*time.Second)
	require.ErrorIs(t, err, common.ErrValidation)
}

func TestS3Store_Seams(t *testing.T) {
	origLoad, origNewS3, origNewPre := loadDefaultAWSConfig, newS3ClientFromConfig, newS3PresignClient
	origPut, origGet := presignPutObject, presignGetObject
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNewS3
		newS3PresignClient = origNewPre
		presignPutObject = origPut
		presignGetObject = origGet
	})

	var capturedEndpoint string
	var pathStyle bool
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "us-east-1", lo.Region)
		return aws.Config{}, nil
	}
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		var opts s3.Options
		for _, fn := range optFns {
			fn(&opts)
		}
		capturedEndpoint = aws.ToString(opts.BaseEndpoint)
		pathStyle = opts.UsePathStyle
		return &s3.Client{}
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient { return &s3.PresignClient{} }

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		var po s3.PresignOptions
		for _, fn := range optFns {
			fn(&po)
		}
		assert.Equal(t, 5*time.Minute, po.Expires)
		assert.Equal(t, "application/zip", aws.ToString(in.ContentType))
		return &v4.PresignedHTTPRequest{URL: "https://signed/put"}, nil
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("sign-fail")
	}

	st := NewS3Store(minioConfig())
	u, err := st.PresignUpload(context.Background(), "k", "application/zip", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://signed/put", u)
	assert.Equal(t, "http://127.0.0.1:9000", capturedEndpoint)
	assert.True(t, pathStyle)

	_, err = st.PresignDownload(context.Background(), "k", 5*time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sign-fail")
}

func TestS3Store_LoadConfigError(t *testing.T) {
	orig := loadDefaultAWSConfig
	t.Cleanup(func() { loadDefaultAWSConfig = orig })
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}

	_, err := NewS3Store(minioConfig()).PresignUpload(context.Background(), "k", "application/zip", DefaultTTL)
	require.ErrorIs(t, err, common.ErrConfiguration)
	assert.Contains(t, err.Error(), "load-fail")
}

func TestResolveTTL(t *testing.T) {
	ttl, err := ResolveTTL(nil, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTTL, ttl)

	s := 120
	ttl, err = ResolveTTL(&s, DefaultTTL)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, ttl)

	// 18446744674s wraps to roughly 600s when multiplied into a Duration.
	for _, bad := range []int{0, 59, 3601, -1, 18446744674, math.MaxInt} {
		b := bad
		_, err := ResolveTTL(&b, DefaultTTL)
		require.ErrorIs(t, err, common.ErrValidation, "ttl %d", bad)
	}
}

func TestNewBundleKey(t *testing.T) {
	now := time.UnixMilli(1760000000123)

	zipKey := NewBundleKey("s-1", "application/zip", now)
	assert.Regexp(t, regexp.MustCompile(`^sessions/s-1/1760000000123-[0-9a-f-]{36}\.zip$`), zipKey)

	assert.True(t, strings.HasSuffix(NewBundleKey("s-1", "", now), ".zip"))
	assert.True(t, strings.HasSuffix(NewBundleKey("s-1", "Application/Zip; charset=binary", now), ".zip"))
	assert.True(t, strings.HasSuffix(NewBundleKey("s-1", "application/octet-stream", now), ".bin"))

	assert.NotEqual(t, zipKey, NewBundleKey("s-1", "application/zip", now), "random suffix must differ")
}
