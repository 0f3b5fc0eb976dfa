package pagecache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store persists entries in an S3 bucket so cached output is shared across
// instances and survives deploys. Intended for serverless-style deployments
// where local disk is ephemeral.
//
// Example usage:
//
//	cfg, _ := config.LoadDefaultConfig(context.Background())
//	store := pagecache.NewS3Store(s3.NewFromConfig(cfg), "my-bucket", "cache/")
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Store creates a durable store on the given bucket. prefix namespaces
// the object keys (e.g. "cache/").
func NewS3Store(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// objectKey maps a cache key to an object key under the prefix.
func (s *S3Store) objectKey(key string) string {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		key = "index"
	}
	return s.prefix + url.PathEscape(key)
}

// Get implements Store.
func (s *S3Store) Get(ctx context.Context, key string) (*Entry, bool, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, err
	}
	entry, err := DecodeEntry(data)
	if err != nil {
		return nil, false, err
	}
	return entry, true, nil
}

// Set implements Store.
func (s *S3Store) Set(ctx context.Context, key string, entry *Entry) error {
	data, err := EncodeEntry(entry)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	return err
}

// Delete implements Store.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	return err
}
