package source

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/icefield/velocube/internal/errors"
)

// Archiver copies a finished store directory to an S3 bucket, preserving
// the directory layout under a prefix named after the store.
type Archiver struct {
	uploader *manager.Uploader
	bucket   string
}

// NewArchiver returns an archiver for the given bucket using ambient
// credentials.
func NewArchiver(ctx context.Context, bucket string) (*Archiver, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	return &Archiver{
		uploader: manager.NewUploader(s3.NewFromConfig(cfg)),
		bucket:   bucket,
	}, nil
}

// Upload walks dir and uploads every regular file to
// s3://bucket/<basename(dir)>/<relative path>.
func (a *Archiver) Upload(ctx context.Context, dir string) error {
	prefix := filepath.Base(dir)

	uploaded := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}

		f, err := os.Open(p)
		if err != nil {
			return errors.Wrapf(err, "open %s", p)
		}
		defer f.Close()

		key := path.Join(prefix, filepath.ToSlash(rel))
		if _, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
			Body:   f,
		}); err != nil {
			return errors.Wrapf(err, "upload s3://%s/%s", a.bucket, key)
		}

		uploaded++
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("archived store", "dir", dir, "bucket", a.bucket, "files", uploaded)
	return nil
}
