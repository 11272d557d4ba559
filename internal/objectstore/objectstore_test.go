package objectstore

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlqrecover/pipeline/internal/model"
)

type fakeS3 struct {
	lastInput *s3.PutObjectInput
	err       error
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.lastInput = params
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestKey_FormatsByDateQueueAndID(t *testing.T) {
	at := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	got := Key(at, "orders-dlq", "m-123")
	assert.Equal(t, "poison-pills/2026-03-05/orders-dlq/m-123.json", got)
}

func TestStore_Put_Success(t *testing.T) {
	fake := &fakeS3{}
	s := NewStore(fake, "my-bucket")

	entry := ArchiveEntry{
		Message:        model.EnrichedMessage{MessageID: "m-1", SourceQueue: "orders-dlq"},
		Classification: model.Classification{Category: model.CategoryPoisonPill, Confidence: 0.95},
		ArchivedAt:     time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC),
	}

	loc, err := s.Put(context.Background(), entry, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "s3://my-bucket/poison-pills/2026-03-05/orders-dlq/m-1.json", loc)
	require.NotNil(t, fake.lastInput)
	assert.Equal(t, "m-1", fake.lastInput.Metadata["message-id"])
}

func TestStore_Put_PropagatesError(t *testing.T) {
	fake := &fakeS3{err: assert.AnError}
	s := NewStore(fake, "my-bucket")

	_, err := s.Put(context.Background(), ArchiveEntry{Message: model.EnrichedMessage{MessageID: "m-1", SourceQueue: "q"}}, []byte(`{}`))
	require.Error(t, err)
}
