package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"github.com/dlqrecover/pipeline/internal/model"
)

// eventBridgeAPI is the subset of the EventBridge client this package
// depends on, narrowed for testability.
type eventBridgeAPI interface {
	PutEvents(ctx context.Context, input *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgePublisher publishes pipeline events to an EventBridge bus.
type EventBridgePublisher struct {
	client   eventBridgeAPI
	busName  string
	log      *slog.Logger
}

// NewEventBridgePublisher builds a Publisher backed by the given
// EventBridge client and target bus name.
func NewEventBridgePublisher(client eventBridgeAPI, busName string, log *slog.Logger) *EventBridgePublisher {
	return &EventBridgePublisher{client: client, busName: busName, log: log}
}

func (p *EventBridgePublisher) put(ctx context.Context, ev Event) error {
	entry := types.PutEventsRequestEntry{
		EventBusName: aws.String(p.busName),
		Source:       aws.String(ev.Source),
		DetailType:   aws.String(string(ev.DetailType)),
		Detail:       aws.String(string(ev.Detail)),
	}

	out, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{entry},
	})
	if err != nil {
		return fmt.Errorf("eventbridge put events: %w", err)
	}
	if out.FailedEntryCount > 0 && len(out.Entries) > 0 {
		resultEntry := out.Entries[0]
		code := aws.ToString(resultEntry.ErrorCode)
		msg := aws.ToString(resultEntry.ErrorMessage)
		return fmt.Errorf("eventbridge rejected entry: %s: %s", code, msg)
	}
	return nil
}

// PublishMessageEnriched implements Publisher.
func (p *EventBridgePublisher) PublishMessageEnriched(ctx context.Context, msg model.EnrichedMessage) error {
	ev, err := newEnrichedEvent(msg)
	if err != nil {
		return fmt.Errorf("encode enriched event: %w", err)
	}
	return p.put(ctx, ev)
}

// PublishMessageClassified implements Publisher.
func (p *EventBridgePublisher) PublishMessageClassified(ctx context.Context, detail ClassifiedDetail) error {
	ev, err := newClassifiedEvent(detail)
	if err != nil {
		return fmt.Errorf("encode classified event: %w", err)
	}
	return p.put(ctx, ev)
}

var _ Publisher = (*EventBridgePublisher)(nil)
