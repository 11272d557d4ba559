package queue

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	queueUrls      []string
	receiveOut     *sqs.ReceiveMessageOutput
	receiveErr     error
	deleteErr      error
	sendErr        error
	lastSendInput  *sqs.SendMessageInput
	lastDeleteInput *sqs.DeleteMessageInput
}

func (f *fakeSQS) ListQueues(ctx context.Context, input *sqs.ListQueuesInput, optFns ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error) {
	return &sqs.ListQueuesOutput{QueueUrls: f.queueUrls}, nil
}

func (f *fakeSQS) GetQueueUrl(ctx context.Context, input *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	name := aws.ToString(input.QueueName)
	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String("https://sqs.example/queues/" + name)}, nil
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, input *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if f.receiveErr != nil {
		return nil, f.receiveErr
	}
	return f.receiveOut, nil
}

func (f *fakeSQS) DeleteMessage(ctx context.Context, input *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.lastDeleteInput = input
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) SendMessage(ctx context.Context, input *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.lastSendInput = input
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("sent-1")}, nil
}

func TestSQSClient_Discover_MatchesPatternAndResolvesSource(t *testing.T) {
	fake := &fakeSQS{
		queueUrls: []string{
			"https://sqs.example/queues/orders-dlq",
			"https://sqs.example/queues/orders",
			"https://sqs.example/queues/unrelated-queue",
		},
	}
	client := NewSQSClient(fake)

	handles, err := client.Discover(context.Background(), "-dlq")
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, "orders-dlq", handles[0].Name)
	assert.Equal(t, "orders", handles[0].SourceName)
	assert.Contains(t, handles[0].SourceURL, "orders")
}

func TestSQSClient_Receive_ParsesReceiveCount(t *testing.T) {
	fake := &fakeSQS{
		receiveOut: &sqs.ReceiveMessageOutput{
			Messages: []types.Message{
				{
					MessageId:     aws.String("m-1"),
					ReceiptHandle: aws.String("rh-1"),
					Body:          aws.String(`{"error":"boom"}`),
					Attributes: map[string]string{
						string(types.MessageSystemAttributeNameApproximateReceiveCount): "4",
					},
				},
			},
		},
	}
	client := NewSQSClient(fake)

	msgs, err := client.Receive(context.Background(), "https://sqs.example/queues/orders-dlq", 10, 10, 300)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m-1", msgs[0].MessageID)
	assert.Equal(t, 4, msgs[0].ReceiveCount)
}

func TestSQSClient_Receive_DefaultsReceiveCountWhenMissing(t *testing.T) {
	fake := &fakeSQS{
		receiveOut: &sqs.ReceiveMessageOutput{
			Messages: []types.Message{
				{MessageId: aws.String("m-1"), ReceiptHandle: aws.String("rh-1"), Body: aws.String("x")},
			},
		},
	}
	client := NewSQSClient(fake)

	msgs, err := client.Receive(context.Background(), "url", 10, 10, 300)
	require.NoError(t, err)
	assert.Equal(t, 1, msgs[0].ReceiveCount)
}

func TestSQSClient_Delete_PropagatesError(t *testing.T) {
	fake := &fakeSQS{deleteErr: assert.AnError}
	client := NewSQSClient(fake)

	err := client.Delete(context.Background(), "url", "rh-1")
	require.Error(t, err)
}

func TestSQSClient_SendWithDelay_CapsAt900Seconds(t *testing.T) {
	fake := &fakeSQS{}
	client := NewSQSClient(fake)

	err := client.SendWithDelay(context.Background(), "url", []byte("body"), map[string]string{"retryCount": "1"}, 2000*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int32(900), fake.lastSendInput.DelaySeconds)
	assert.Equal(t, "1", *fake.lastSendInput.MessageAttributes["retryCount"].StringValue)
}
