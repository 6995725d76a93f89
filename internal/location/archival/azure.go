package archival

import (
	"context"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"datanode/internal/chunkid"
)

// AzureMirror uploads trashed chunk parts to an Azure Blob container.
type AzureMirror struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzureMirror creates a mirror backed by the given container.
func NewAzureMirror(client *azblob.Client, container, prefix string) *AzureMirror {
	return &AzureMirror{client: client, container: container, prefix: prefix}
}

// Upload writes each named part as a blob under <prefix>/<chunkId>/<part>.
func (m *AzureMirror) Upload(ctx context.Context, id chunkid.ID, parts map[string][]byte) error {
	for name, data := range parts {
		blobName := fmt.Sprintf("%s/%s/%s", m.prefix, id.String(), name)
		if _, err := m.client.UploadBuffer(ctx, m.container, blobName, data, nil); err != nil {
			return fmt.Errorf("archival(azure): upload %s: %w", name, err)
		}
	}
	return nil
}
