package archival

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"datanode/internal/chunkid"
)

// NewS3Client builds the AWS config for an archival mirror and returns
// an *s3.Client bound to it. An empty region defers to the SDK's usual
// resolution chain (env, shared config, IMDS); static credentials are
// only installed when both accessKeyID and secretAccessKey are set,
// otherwise the default credential chain (env vars, shared credentials
// file, instance role) applies.
func NewS3Client(ctx context.Context, region, accessKeyID, secretAccessKey string) (*s3.Client, error) {
	var opts []func(*config.LoadOptions) error
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if accessKeyID != "" && secretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("archival(s3): load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// S3Mirror uploads trashed chunk parts to an AWS S3 bucket.
type S3Mirror struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Mirror creates a mirror backed by the given bucket.
func NewS3Mirror(client *s3.Client, bucket, prefix string) *S3Mirror {
	return &S3Mirror{client: client, bucket: bucket, prefix: prefix}
}

// Upload writes each named part under <prefix>/<chunkId>/<part>.
func (m *S3Mirror) Upload(ctx context.Context, id chunkid.ID, parts map[string][]byte) error {
	for name, data := range parts {
		key := fmt.Sprintf("%s/%s/%s", m.prefix, id.String(), name)
		_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: &m.bucket,
			Key:    &key,
			Body:   bytes.NewReader(data),
		})
		if err != nil {
			return fmt.Errorf("archival(s3): put %s: %w", name, err)
		}
	}
	return nil
}
