// Package queue discovers dead-letter queues by name pattern and provides
// long-poll receive/delete/send operations against them and their
// corresponding source queues.
package queue

import (
	"context"
	"time"
)

// Message is one raw message received from a queue.
type Message struct {
	MessageID     string
	ReceiptHandle string
	Body          []byte
	ReceiveCount  int
	Attributes    map[string]string
}

// Handle identifies a discovered queue: its DLQ URL plus the source queue
// URL it drains from (by convention, the DLQ name minus its suffix).
type Handle struct {
	Name        string
	URL         string
	SourceName  string
	SourceURL   string
}

// Client is the DLQ-facing queue contract the Monitor depends on.
type Client interface {
	// Discover lists queues whose name contains namePattern, pairing each
	// with its inferred source queue.
	Discover(ctx context.Context, namePattern string) ([]Handle, error)

	// Receive long-polls up to maxMessages from the queue at url, waiting
	// up to waitSeconds for at least one message.
	Receive(ctx context.Context, url string, maxMessages int, waitSeconds int, visibilityTimeoutS int) ([]Message, error)

	// Delete removes a message from the queue at url after it has been
	// durably handed off.
	Delete(ctx context.Context, url string, receiptHandle string) error

	// SendWithDelay re-enqueues body onto the queue at url, with an
	// optional set of metadata attributes and a send delay.
	SendWithDelay(ctx context.Context, url string, body []byte, attributes map[string]string, delay time.Duration) error
}
