// Package docstore checks application document references against the asset
// bucket before an application is accepted.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// HeadObjectAPI is the slice of the S3 client the verifier needs.
type HeadObjectAPI interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// NewS3Client builds an S3 client. A non-empty endpoint targets an
// S3-compatible store such as MinIO, addressed path-style.
func NewS3Client(ctx context.Context, region, endpoint string) (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Verifier reports whether a document URL points at an existing object.
type Verifier struct {
	client HeadObjectAPI
	bucket string
}

// NewVerifier returns a Verifier for objects in bucket.
func NewVerifier(client HeadObjectAPI, bucket string) *Verifier {
	return &Verifier{client: client, bucket: bucket}
}

// Exists accepts s3://<bucket>/<key> references and bare keys. References to
// other buckets or schemes cannot be verified and report false.
func (v *Verifier) Exists(ctx context.Context, url string) (bool, error) {
	key, ok := v.keyFor(url)
	if !ok {
		return false, nil
	}
	_, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return false, nil
	}
	return false, fmt.Errorf("head object %s: %w", key, err)
}

func (v *Verifier) keyFor(url string) (string, bool) {
	url = strings.TrimSpace(url)
	if rest, ok := strings.CutPrefix(url, "s3://"); ok {
		bucket, key, found := strings.Cut(rest, "/")
		if !found || bucket != v.bucket || key == "" {
			return "", false
		}
		return key, true
	}
	if strings.Contains(url, "://") || url == "" {
		return "", false
	}
	return strings.TrimPrefix(url, "/"), true
}
