package alert

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSNS struct {
	lastInput *sns.PublishInput
	err       error
}

func (f *fakeSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.lastInput = params
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{}, nil
}

func TestPublisher_Publish_Success(t *testing.T) {
	fake := &fakeSNS{}
	p := NewPublisher(fake, "arn:aws:sns:us-east-1:1:topic", nil, "", testLogger())

	err := p.Publish(context.Background(), "orders-dlq", "s3://bucket/key.json", "some very short error")
	require.NoError(t, err)
	require.NotNil(t, fake.lastInput)
	assert.Contains(t, *fake.lastInput.Subject, "orders-dlq")
	assert.Contains(t, *fake.lastInput.Message, "s3://bucket/key.json")
}

func TestPublisher_Publish_TruncatesExcerptAt200(t *testing.T) {
	fake := &fakeSNS{}
	p := NewPublisher(fake, "arn", nil, "", testLogger())

	longMsg := strings.Repeat("x", 500)
	err := p.Publish(context.Background(), "q", "loc", longMsg)
	require.NoError(t, err)

	body := *fake.lastInput.Message
	excerptPart := body[strings.Index(body, "\n\n")+2:]
	assert.LessOrEqual(t, len(excerptPart), maxExcerptLen+3)
}

func TestPublisher_Publish_SNSFailurePropagates(t *testing.T) {
	fake := &fakeSNS{err: assert.AnError}
	p := NewPublisher(fake, "arn", nil, "", testLogger())

	err := p.Publish(context.Background(), "q", "loc", "msg")
	require.Error(t, err)
}

func TestPublisher_Publish_NoSlackConfiguredSkipsSupplement(t *testing.T) {
	fake := &fakeSNS{}
	p := NewPublisher(fake, "arn", nil, "", testLogger())
	err := p.Publish(context.Background(), "q", "loc", "msg")
	require.NoError(t, err)
}
