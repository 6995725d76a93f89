// Package archival implements the archival-mirror backends wired into
// the location manager's trash lifecycle (spec DOMAIN STACK, §11):
// Google Cloud Storage, Azure Blob and AWS S3 mirrors receive trashed
// chunk parts for cold recovery before the TTL sweep finally purges
// them. The node config's archival Provider selects only the S3 mirror;
// the GCS and Azure mirrors are used only when constructed directly.
package archival

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"

	"datanode/internal/chunkid"
)

// GCSMirror uploads trashed chunk parts to a Google Cloud Storage
// bucket.
type GCSMirror struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSMirror creates a mirror backed by the given bucket.
func NewGCSMirror(client *storage.Client, bucket, prefix string) *GCSMirror {
	return &GCSMirror{client: client, bucket: bucket, prefix: prefix}
}

// Upload writes each named part under <prefix>/<chunkId>/<part>.
func (m *GCSMirror) Upload(ctx context.Context, id chunkid.ID, parts map[string][]byte) error {
	bucket := m.client.Bucket(m.bucket)
	for name, data := range parts {
		obj := bucket.Object(fmt.Sprintf("%s/%s/%s", m.prefix, id.String(), name))
		w := obj.NewWriter(ctx)
		if _, err := w.Write(data); err != nil {
			w.Close()
			return fmt.Errorf("archival(gcs): write %s: %w", name, err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("archival(gcs): close %s: %w", name, err)
		}
	}
	return nil
}
