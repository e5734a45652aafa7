package publish

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/errgroup"

	"github.com/roamjs/roamjs-scripts/internal/artifacts"
	"github.com/roamjs/roamjs-scripts/internal/logging"
)

const (
	DefaultBucket = "roamjs.com"
	Region        = "us-east-1"

	defaultUploadConcurrency = 16
)

// ObjectPutter is the subset of the S3 API used for uploads.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Uploader writes artifacts to the bucket.
type Uploader struct {
	Client      ObjectPutter
	Bucket      string
	Concurrency int
	Logger      *slog.Logger
}

func (u *Uploader) logger() *slog.Logger {
	return logging.Ensure(u.Logger)
}

// VersionedKey and CurrentKey are the two keys every file is written to.
func VersionedKey(dest, version, name string) string {
	return dest + "/" + version + "/" + name
}

func CurrentKey(dest, name string) string {
	return dest + "/" + name
}

// ArchiveKey is where depot builds publish their zip.
func ArchiveKey(dest string) string {
	return "downloads/" + dest + ".zip"
}

// Upload puts every file under its versioned and current key concurrently
// and returns the written keys. Order between uploads is unspecified.
func (u *Uploader) Upload(ctx context.Context, dest, version string, files []artifacts.Artifact) ([]string, error) {
	group, ctx := errgroup.WithContext(ctx)
	limit := u.Concurrency
	if limit <= 0 {
		limit = defaultUploadConcurrency
	}
	group.SetLimit(limit)

	var mu sync.Mutex
	var keys []string
	record := func(key string) {
		mu.Lock()
		keys = append(keys, key)
		mu.Unlock()
	}

	contents := make([][]byte, len(files))
	for i, file := range files {
		data, err := os.ReadFile(file.Path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file.Name, err)
		}
		contents[i] = data
	}

	for i, file := range files {
		data := contents[i]
		current := CurrentKey(dest, file.Name)
		u.logger().Info(fmt.Sprintf("Uploading version %s of %s to %s...", version, file.Name, current))

		for _, key := range []string{VersionedKey(dest, version, file.Name), current} {
			group.Go(func() error {
				if err := u.put(ctx, key, file.ContentType, data); err != nil {
					return err
				}
				record(key)
				return nil
			})
		}
	}

	if err := group.Wait(); err != nil {
		return keys, err
	}
	return keys, nil
}

// UploadArchive zips the depot files with a fixed timestamp and puts the
// archive under ArchiveKey.
func (u *Uploader) UploadArchive(ctx context.Context, dest string, files []artifacts.Artifact) (string, error) {
	for _, file := range files {
		u.logger().Debug("zipping", "file", file.Name)
	}
	archive, err := artifacts.ZipArtifacts(files)
	if err != nil {
		return "", fmt.Errorf("zip depot files: %w", err)
	}
	key := ArchiveKey(dest)
	if err := u.put(ctx, key, "application/zip", archive); err != nil {
		return "", err
	}
	return key, nil
}

func (u *Uploader) put(ctx context.Context, key, contentType string, data []byte) error {
	bucket := u.Bucket
	if bucket == "" {
		bucket = DefaultBucket
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := u.Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
