package queue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// sqsAPI is the subset of the SQS client this package depends on.
type sqsAPI interface {
	ListQueues(ctx context.Context, input *sqs.ListQueuesInput, optFns ...func(*sqs.Options)) (*sqs.ListQueuesOutput, error)
	ReceiveMessage(ctx context.Context, input *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, input *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, input *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	GetQueueUrl(ctx context.Context, input *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
}

// SQSClient implements Client against real SQS queues.
type SQSClient struct {
	api sqsAPI
}

// NewSQSClient builds a Client backed by the given SQS API surface.
func NewSQSClient(api sqsAPI) *SQSClient {
	return &SQSClient{api: api}
}

// Discover lists every queue whose name contains namePattern and resolves
// its source queue by stripping the pattern as a suffix.
func (c *SQSClient) Discover(ctx context.Context, namePattern string) ([]Handle, error) {
	out, err := c.api.ListQueues(ctx, &sqs.ListQueuesInput{
		QueueNamePrefix: nil,
	})
	if err != nil {
		return nil, fmt.Errorf("sqs list queues: %w", err)
	}

	var handles []Handle
	for _, url := range out.QueueUrls {
		name := queueNameFromURL(url)
		if !strings.Contains(name, namePattern) {
			continue
		}
		sourceName := strings.TrimSuffix(name, namePattern)
		sourceURL, err := c.resolveQueueURL(ctx, sourceName)
		if err != nil {
			continue
		}
		handles = append(handles, Handle{
			Name:       name,
			URL:        url,
			SourceName: sourceName,
			SourceURL:  sourceURL,
		})
	}
	return handles, nil
}

func (c *SQSClient) resolveQueueURL(ctx context.Context, name string) (string, error) {
	out, err := c.api.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.QueueUrl), nil
}

func queueNameFromURL(url string) string {
	idx := strings.LastIndex(url, "/")
	if idx < 0 {
		return url
	}
	return url[idx+1:]
}

// Receive long-polls the queue, requesting message-system attributes so the
// Monitor can read SQS's own ApproximateReceiveCount.
func (c *SQSClient) Receive(ctx context.Context, url string, maxMessages int, waitSeconds int, visibilityTimeoutS int) ([]Message, error) {
	out, err := c.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:              aws.String(url),
		MaxNumberOfMessages:   int32(maxMessages),
		WaitTimeSeconds:       int32(waitSeconds),
		VisibilityTimeout:     int32(visibilityTimeoutS),
		MessageSystemAttributeNames: []types.MessageSystemAttributeName{
			types.MessageSystemAttributeNameApproximateReceiveCount,
		},
		MessageAttributeNames: []string{"All"},
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive message: %w", err)
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		receiveCount := 1
		if raw, ok := m.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]; ok {
			if n, err := strconv.Atoi(raw); err == nil {
				receiveCount = n
			}
		}

		attrs := make(map[string]string, len(m.MessageAttributes))
		for k, v := range m.MessageAttributes {
			attrs[k] = aws.ToString(v.StringValue)
		}

		msgs = append(msgs, Message{
			MessageID:     aws.ToString(m.MessageId),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			Body:          []byte(aws.ToString(m.Body)),
			ReceiveCount:  receiveCount,
			Attributes:    attrs,
		})
	}
	return msgs, nil
}

// Delete removes a message from the queue after it has been durably
// published to the bus.
func (c *SQSClient) Delete(ctx context.Context, url string, receiptHandle string) error {
	_, err := c.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("sqs delete message: %w", err)
	}
	return nil
}

// SendWithDelay re-enqueues body onto the queue at url with the given
// metadata attributes, honoring the Executor's computed retry delay. SQS
// caps DelaySeconds at 900, matching the spec's backoff ceiling.
func (c *SQSClient) SendWithDelay(ctx context.Context, url string, body []byte, attributes map[string]string, delay time.Duration) error {
	delaySeconds := int32(delay / time.Second)
	if delaySeconds > 900 {
		delaySeconds = 900
	}

	msgAttrs := make(map[string]types.MessageAttributeValue, len(attributes))
	for k, v := range attributes {
		msgAttrs[k] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(v),
		}
	}

	_, err := c.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(url),
		MessageBody:       aws.String(string(body)),
		DelaySeconds:      delaySeconds,
		MessageAttributes: msgAttrs,
	})
	if err != nil {
		return fmt.Errorf("sqs send message: %w", err)
	}
	return nil
}

var _ Client = (*SQSClient)(nil)
