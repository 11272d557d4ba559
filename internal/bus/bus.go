// Package bus publishes the two pipeline events — MessageEnriched and
// MessageClassified — onto an event bus, decoupling the Monitor, Analyzer,
// and Executor so each can scale and fail independently.
package bus

import (
	"context"
	"encoding/json"

	"github.com/dlqrecover/pipeline/internal/model"
)

// DetailType identifies the routing key of a published event.
type DetailType string

const (
	DetailTypeMessageEnriched    DetailType = "MessageEnriched"
	DetailTypeTransientFailure   DetailType = "TransientFailure"
	DetailTypePoisonPillFailure  DetailType = "PoisonPillFailure"
	DetailTypeSystemicFailure    DetailType = "SystemicFailure"
)

// DetailTypeForAction picks the MessageClassified detail_type from a
// classification's category, for coarse routing by downstream rules.
func DetailTypeForAction(category model.Category) DetailType {
	switch category {
	case model.CategoryTransient:
		return DetailTypeTransientFailure
	case model.CategoryPoisonPill:
		return DetailTypePoisonPillFailure
	case model.CategorySystemic:
		return DetailTypeSystemicFailure
	default:
		return DetailTypeSystemicFailure
	}
}

// ClassifiedDetail is the envelope published for MessageClassified.
type ClassifiedDetail struct {
	Message        model.EnrichedMessage   `json:"message"`
	Classification model.Classification    `json:"classification"`
	Recommended    model.RecommendedAction `json:"recommended_action"`
}

// Publisher publishes domain events to the bus. Implementations must
// acknowledge only once the event is durably accepted — the Monitor relies
// on that acknowledgment to decide whether the source message may be
// deleted.
type Publisher interface {
	PublishMessageEnriched(ctx context.Context, msg model.EnrichedMessage) error
	PublishMessageClassified(ctx context.Context, detail ClassifiedDetail) error
}

// Event is the source-agnostic shape handed to an underlying bus client.
type Event struct {
	Source     string
	DetailType DetailType
	Detail     []byte
}

func newEnrichedEvent(msg model.EnrichedMessage) (Event, error) {
	detail, err := json.Marshal(msg)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Source:     "monitor",
		DetailType: DetailTypeMessageEnriched,
		Detail:     detail,
	}, nil
}

func newClassifiedEvent(detail ClassifiedDetail) (Event, error) {
	body, err := json.Marshal(detail)
	if err != nil {
		return Event{}, err
	}
	return Event{
		Source:     "analyzer",
		DetailType: DetailTypeForAction(detail.Classification.Category),
		Detail:     body,
	}, nil
}
