package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/polyreputation/internal/domain"
)

// multipartThreshold matches the S3 minimum part size (5 MiB); payloads at
// or above it go through the multipart upload manager.
const multipartThreshold = 5 * 1024 * 1024

// ChunkArchiver implements domain.ChunkArchiver, writing each fetched
// window's raw logs as one JSON object.
//
// Key schema:
//
//	chunks/{address}/{fromBlock}-{toBlock}.json
type ChunkArchiver struct {
	client *s3.Client
	bucket string
}

// NewChunkArchiver creates a ChunkArchiver writing to the client's bucket.
func NewChunkArchiver(c *Client) *ChunkArchiver {
	return &ChunkArchiver{
		client: c.S3(),
		bucket: c.Bucket(),
	}
}

func chunkKey(address string, fromBlock, toBlock int64) string {
	return fmt.Sprintf("chunks/%s/%012d-%012d.json", strings.ToLower(address), fromBlock, toBlock)
}

// ArchiveChunk uploads one window's raw log payload. The key is derived
// from the address and block range, so re-archiving the same window simply
// overwrites the object with identical content.
func (a *ChunkArchiver) ArchiveChunk(ctx context.Context, address string, fromBlock, toBlock int64, rawJSON []byte) error {
	key := chunkKey(address, fromBlock, toBlock)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(rawJSON),
		ContentType: aws.String("application/json"),
	}

	if len(rawJSON) >= multipartThreshold {
		uploader := manager.NewUploader(a.client)
		if _, err := uploader.Upload(ctx, input); err != nil {
			return fmt.Errorf("s3blob: multipart upload %s: %w", key, err)
		}
		return nil
	}

	if _, err := a.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", key, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.ChunkArchiver = (*ChunkArchiver)(nil)
