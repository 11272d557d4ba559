// Package objectstore archives poison-pill messages to S3-compatible
// object storage for the Executor's Archive handler.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dlqrecover/pipeline/internal/model"
)

// ArchiveEntry is the object written for one poison-pill message
// (spec.md §4.3 "Archive handler").
type ArchiveEntry struct {
	Message        model.EnrichedMessage   `json:"message"`
	Classification model.Classification    `json:"classification"`
	ArchivedAt     time.Time               `json:"archived_at"`
	Reasoning      string                  `json:"reasoning"`
}

// s3API is the subset of the S3 client this package depends on.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store writes archive objects to a single S3 bucket.
type Store struct {
	api    s3API
	bucket string
}

// NewStore builds a Store for the given bucket.
func NewStore(api s3API, bucket string) *Store {
	return &Store{api: api, bucket: bucket}
}

// Key builds the archive object key:
// poison-pills/YYYY-MM-DD/<source_queue>/<message_id>.json.
func Key(archivedAt time.Time, sourceQueue, messageID string) string {
	return fmt.Sprintf("poison-pills/%s/%s/%s.json", archivedAt.Format("2006-01-02"), sourceQueue, messageID)
}

// Put writes one archive entry. This write must succeed before the
// Archive handler publishes its alert; it's idempotent under retry since
// S3 PutObject with a fixed key simply overwrites.
func (s *Store) Put(ctx context.Context, entry ArchiveEntry, body []byte) (string, error) {
	key := Key(entry.ArchivedAt, entry.Message.SourceQueue, entry.Message.MessageID)

	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		Metadata: map[string]string{
			"message-id":   entry.Message.MessageID,
			"source-queue": entry.Message.SourceQueue,
			"category":     string(entry.Classification.Category),
			"confidence":   fmt.Sprintf("%.2f", entry.Classification.Confidence),
		},
	})
	if err != nil {
		return "", fmt.Errorf("objectstore: put %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}
