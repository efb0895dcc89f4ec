// Package mirror copies backup files to an S3-compatible bucket so they
// survive loss of the local disk.
package mirror

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Mirror receives a copy of every backup or archive file written locally.
// doc names the configuration document the file belongs to.
type Mirror interface {
	Put(ctx context.Context, doc, filename string, data []byte) error
}

// NoopMirror discards everything (used when no bucket is configured).
type NoopMirror struct{}

func (NoopMirror) Put(ctx context.Context, doc, filename string, data []byte) error {
	return nil
}

type putObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror uploads backups as "<prefix><doc>/<filename>" objects.
type S3Mirror struct {
	client putObjectAPI
	bucket string
	prefix string
}

// NewS3Mirror creates an S3 mirror. If endpoint is non-empty, path-style
// addressing is enabled (for MinIO and similar).
func NewS3Mirror(ctx context.Context, bucket, prefix, region, endpoint string) (*S3Mirror, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 mirror: bucket is required")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Mirror{
		client: s3.NewFromConfig(cfg, s3opts...),
		bucket: bucket,
		prefix: prefix,
	}, nil
}

// Key returns the object key used for filename of doc.
func (m *S3Mirror) Key(doc, filename string) string {
	return m.prefix + path.Base(doc) + "/" + path.Base(filename)
}

func (m *S3Mirror) Put(ctx context.Context, doc, filename string, data []byte) error {
	key := m.Key(doc, filename)
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put object %s: %w", key, err)
	}
	return nil
}
