package source

import (
	"context"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/icefield/velocube/internal/errors"
	"github.com/icefield/velocube/internal/granule"
	"github.com/icefield/velocube/internal/search"
)

const (
	httpPrefix  = "http://"
	httpsPrefix = "https://"

	// Search results address granules through the bucket website endpoint;
	// stripping this suffix from the host yields the bucket name.
	s3HostSuffix = ".s3.amazonaws.com"
)

// S3 discovers granules through the search API and downloads them from the
// public bucket with anonymous credentials.
type S3 struct {
	client *search.Client
	params search.Params

	downloader *manager.Downloader
}

// NewS3 returns a source backed by the search client and an anonymous
// S3 session.
func NewS3(ctx context.Context, client *search.Client, params search.Params) (*S3, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(aws.AnonymousCredentials{}))
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	return &S3{
		client:     client,
		params:     params,
		downloader: manager.NewDownloader(s3.NewFromConfig(cfg)),
	}, nil
}

// List queries the search API for candidate granule URLs.
func (s *S3) List(ctx context.Context) ([]string, error) {
	return s.client.Find(ctx, s.params)
}

// Load downloads the granule to a temporary file and decodes it. The
// temporary copy is removed before returning.
func (s *S3) Load(ctx context.Context, url string) (*granule.Dataset, error) {
	bucket, key, err := splitObjectURL(url)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp("", "granule-*.nc")
	if err != nil {
		return nil, errors.Wrap(err, "create granule tempfile")
	}
	defer os.Remove(f.Name())
	defer f.Close()

	log.Debug("downloading granule", "bucket", bucket, "key", key)

	if _, err := s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, errors.Wrapf(err, "download s3://%s/%s", bucket, key)
	}

	return granule.Read(f.Name(), url)
}

// splitObjectURL converts a bucket website URL of the form
// http://bucket.s3.amazonaws.com/path/file.nc into its bucket and key.
func splitObjectURL(url string) (bucket, key string, err error) {
	path := strings.TrimPrefix(url, httpPrefix)
	path = strings.TrimPrefix(path, httpsPrefix)
	path = strings.Replace(path, s3HostSuffix, "", 1)

	bucket, key, ok := strings.Cut(path, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", errors.Wrapf(errors.ErrMalformedIdentifier,
			"not an s3 object url: %s", url)
	}
	return bucket, key, nil
}
