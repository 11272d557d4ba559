package bus

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/dlqrecover/pipeline/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEventBridge struct {
	failedCount int32
	errorCode   string
	errorMsg    string
	putErr      error
	lastInput   *eventbridge.PutEventsInput
}

func (f *fakeEventBridge) PutEvents(ctx context.Context, input *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.lastInput = input
	if f.putErr != nil {
		return nil, f.putErr
	}
	out := &eventbridge.PutEventsOutput{FailedEntryCount: f.failedCount}
	if f.failedCount > 0 {
		out.Entries = []types.PutEventsResultEntry{{
			ErrorCode:    aws.String(f.errorCode),
			ErrorMessage: aws.String(f.errorMsg),
		}}
	} else {
		out.Entries = []types.PutEventsResultEntry{{EventId: aws.String("evt-1")}}
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEventBridgePublisher_PublishMessageEnriched_Success(t *testing.T) {
	fake := &fakeEventBridge{}
	pub := NewEventBridgePublisher(fake, "pipeline-bus", testLogger())

	err := pub.PublishMessageEnriched(context.Background(), model.EnrichedMessage{MessageID: "m-1"})
	require.NoError(t, err)
	assert.Equal(t, "pipeline-bus", aws.ToString(fake.lastInput.Entries[0].EventBusName))
	assert.Equal(t, "monitor", aws.ToString(fake.lastInput.Entries[0].Source))
}

func TestEventBridgePublisher_PublishMessageClassified_RejectedEntry(t *testing.T) {
	fake := &fakeEventBridge{failedCount: 1, errorCode: "InternalFailure", errorMsg: "boom"}
	pub := NewEventBridgePublisher(fake, "pipeline-bus", testLogger())

	err := pub.PublishMessageClassified(context.Background(), ClassifiedDetail{
		Classification: model.Classification{Category: model.CategoryTransient},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InternalFailure")
}

func TestEventBridgePublisher_PublishMessageEnriched_ClientError(t *testing.T) {
	fake := &fakeEventBridge{putErr: assert.AnError}
	pub := NewEventBridgePublisher(fake, "pipeline-bus", testLogger())

	err := pub.PublishMessageEnriched(context.Background(), model.EnrichedMessage{MessageID: "m-1"})
	require.Error(t, err)
}
