package monitor

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dlqrecover/pipeline/internal/bus"
	"github.com/dlqrecover/pipeline/internal/ledger"
	"github.com/dlqrecover/pipeline/internal/metrics"
	"github.com/dlqrecover/pipeline/internal/model"
	"github.com/dlqrecover/pipeline/internal/queue"
	"github.com/dlqrecover/pipeline/internal/store"
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeQueue struct {
	handles      []queue.Handle
	discoverErr  error
	messages     map[string][]queue.Message
	receiveErr   error
	deleted      []string
	deleteErr    error
	sent         []sentMessage
}

type sentMessage struct {
	url        string
	body       []byte
	attributes map[string]string
	delay      time.Duration
}

func (f *fakeQueue) Discover(ctx context.Context, namePattern string) ([]queue.Handle, error) {
	return f.handles, f.discoverErr
}

func (f *fakeQueue) Receive(ctx context.Context, url string, maxMessages, waitSeconds, visibilityTimeoutS int) ([]queue.Message, error) {
	if f.receiveErr != nil {
		return nil, f.receiveErr
	}
	return f.messages[url], nil
}

func (f *fakeQueue) Delete(ctx context.Context, url string, receiptHandle string) error {
	f.deleted = append(f.deleted, receiptHandle)
	return f.deleteErr
}

func (f *fakeQueue) SendWithDelay(ctx context.Context, url string, body []byte, attributes map[string]string, delay time.Duration) error {
	f.sent = append(f.sent, sentMessage{url: url, body: body, attributes: attributes, delay: delay})
	return nil
}

type fakeLedger struct {
	result ledger.CheckResult
	err    error
}

func (f *fakeLedger) CheckAndRecord(ctx context.Context, messageID, sourceQueue string, hardCap int, now time.Time) (ledger.CheckResult, error) {
	return f.result, f.err
}

type fakeRecordStore struct {
	count    int
	countErr error
}

func (f *fakeRecordStore) Put(ctx context.Context, r model.ClassificationRecord) error { return nil }
func (f *fakeRecordStore) Get(ctx context.Context, id string) (model.ClassificationRecord, error) {
	return model.ClassificationRecord{}, nil
}
func (f *fakeRecordStore) UpdateOutcome(ctx context.Context, id string, outcome model.Outcome, fields store.OutcomeFields) error {
	return nil
}
func (f *fakeRecordStore) CountByQueueSince(ctx context.Context, queue string, since time.Time) (int, error) {
	return f.count, f.countErr
}
func (f *fakeRecordStore) ListByCategorySince(ctx context.Context, category model.Category, since time.Time) ([]model.ClassificationRecord, error) {
	return nil, nil
}
func (f *fakeRecordStore) ListBySemanticHash(ctx context.Context, hash string) ([]model.ClassificationRecord, error) {
	return nil, nil
}
func (f *fakeRecordStore) ListByDeploymentSince(ctx context.Context, deploymentID string, since time.Time) ([]model.ClassificationRecord, error) {
	return nil, nil
}

type fakePublisher struct {
	enrichedMsgs []model.EnrichedMessage
	publishErr   error
}

func (f *fakePublisher) PublishMessageEnriched(ctx context.Context, msg model.EnrichedMessage) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.enrichedMsgs = append(f.enrichedMsgs, msg)
	return nil
}

func (f *fakePublisher) PublishMessageClassified(ctx context.Context, detail bus.ClassifiedDetail) error {
	return nil
}

func TestMonitor_Run_EmptyDiscoveryIsNoOp(t *testing.T) {
	q := &fakeQueue{}
	m := New(Config{}, q, &fakeLedger{}, &fakeRecordStore{}, nil, &fakePublisher{}, metrics.New(false), testLogger())
	err := m.Run(context.Background())
	require.NoError(t, err)
}

func TestMonitor_Run_DiscoveryFailureYieldsNilError(t *testing.T) {
	q := &fakeQueue{discoverErr: assert.AnError}
	m := New(Config{}, q, &fakeLedger{}, &fakeRecordStore{}, nil, &fakePublisher{}, metrics.New(false), testLogger())
	err := m.Run(context.Background())
	require.NoError(t, err)
}

func TestMonitor_ProcessMessage_PublishesAndDeletesOnSuccess(t *testing.T) {
	handle := queue.Handle{Name: "orders-dlq", URL: "https://sqs/orders-dlq", SourceName: "orders", SourceURL: "https://sqs/orders"}
	msg := queue.Message{MessageID: "m-1", ReceiptHandle: "rh-1", Body: []byte(`{"error":{"name":"NetworkError","message":"ETIMEDOUT"}}`)}

	q := &fakeQueue{handles: []queue.Handle{handle}, messages: map[string][]queue.Message{handle.URL: {msg}}}
	pub := &fakePublisher{}
	m := New(Config{}, q, &fakeLedger{result: ledger.CheckResult{Entry: model.LedgerEntry{RetryCount: 0}}}, &fakeRecordStore{}, nil, pub, metrics.New(false), testLogger())

	err := m.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, pub.enrichedMsgs, 1)
	assert.Equal(t, "m-1", pub.enrichedMsgs[0].MessageID)
	assert.Contains(t, q.deleted, "rh-1")
}

func TestMonitor_ProcessMessage_HardCapDeletesWithoutPublish(t *testing.T) {
	handle := queue.Handle{Name: "orders-dlq", URL: "https://sqs/orders-dlq", SourceName: "orders"}
	msg := queue.Message{MessageID: "m-1", ReceiptHandle: "rh-1", Body: []byte(`{}`)}

	q := &fakeQueue{handles: []queue.Handle{handle}, messages: map[string][]queue.Message{handle.URL: {msg}}}
	pub := &fakePublisher{}
	m := New(Config{}, q, &fakeLedger{result: ledger.CheckResult{HardCapHit: true}}, &fakeRecordStore{}, nil, pub, metrics.New(false), testLogger())

	err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pub.enrichedMsgs)
	assert.Contains(t, q.deleted, "rh-1")
}

func TestMonitor_ProcessMessage_PublishFailureSkipsDelete(t *testing.T) {
	handle := queue.Handle{Name: "orders-dlq", URL: "https://sqs/orders-dlq", SourceName: "orders"}
	msg := queue.Message{MessageID: "m-1", ReceiptHandle: "rh-1", Body: []byte(`{}`)}

	q := &fakeQueue{handles: []queue.Handle{handle}, messages: map[string][]queue.Message{handle.URL: {msg}}}
	pub := &fakePublisher{publishErr: assert.AnError}
	m := New(Config{}, q, &fakeLedger{result: ledger.CheckResult{}}, &fakeRecordStore{}, nil, pub, metrics.New(false), testLogger())

	err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, q.deleted)
}
