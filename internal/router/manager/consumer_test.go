package manager

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.relaypoint.io/internal/queue"
	"go.relaypoint.io/internal/router/configsource"
	routermetrics "go.relaypoint.io/internal/router/metrics"
	"go.relaypoint.io/internal/router/model"
	"go.relaypoint.io/internal/router/warning"
)

// fakeMessage implements queue.Message for testing
type fakeMessage struct {
	id       string
	data     []byte
	group    string
	metadata map[string]string
	acked    atomic.Bool
	naked    atomic.Bool
}

func (f *fakeMessage) ID() string           { return f.id }
func (f *fakeMessage) Data() []byte         { return f.data }
func (f *fakeMessage) Subject() string      { return "test" }
func (f *fakeMessage) MessageGroup() string { return f.group }
func (f *fakeMessage) Ack() error           { f.acked.Store(true); return nil }
func (f *fakeMessage) Nak() error           { f.naked.Store(true); return nil }
func (f *fakeMessage) NakWithDelay(time.Duration) error {
	f.naked.Store(true)
	return nil
}
func (f *fakeMessage) InProgress() error { return nil }
func (f *fakeMessage) Metadata() map[string]string {
	if f.metadata == nil {
		return map[string]string{}
	}
	return f.metadata
}

// fakeQueueConsumer delivers a fixed set of messages then blocks until cancelled
type fakeQueueConsumer struct {
	messages []queue.Message
	closed   atomic.Bool
}

func (f *fakeQueueConsumer) Consume(ctx context.Context, handler func(queue.Message) error) error {
	for _, msg := range f.messages {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = handler(msg)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeQueueConsumer) Close() error {
	f.closed.Store(true)
	return nil
}

func TestParseMessagePointer(t *testing.T) {
	msg := &fakeMessage{
		id:   "broker-123",
		data: []byte(`{"id":"app-1","poolCode":"alpha","mediationType":"HTTP","mediationTarget":"http://example.com/process","messageGroupId":"group-7","authToken":"tok","timeoutSeconds":120}`),
	}

	pointer, err := parseMessagePointer(msg)
	if err != nil {
		t.Fatalf("parseMessagePointer failed: %v", err)
	}
	if pointer.ID != "app-1" {
		t.Errorf("ID = %q", pointer.ID)
	}
	if pointer.PoolCode != "alpha" {
		t.Errorf("PoolCode = %q", pointer.PoolCode)
	}
	if pointer.BrokerMessageID != "broker-123" {
		t.Errorf("BrokerMessageID should come from the broker, got %q", pointer.BrokerMessageID)
	}
	if pointer.MessageGroupID != "group-7" {
		t.Errorf("MessageGroupID = %q", pointer.MessageGroupID)
	}
	if pointer.AuthToken != "tok" {
		t.Errorf("AuthToken = %q", pointer.AuthToken)
	}
	if pointer.TimeoutSeconds != 120 {
		t.Errorf("TimeoutSeconds = %d", pointer.TimeoutSeconds)
	}
}

func TestParseMessagePointerFallbacks(t *testing.T) {
	msg := &fakeMessage{
		id:       "broker-9",
		group:    "fifo-group",
		metadata: map[string]string{"batchId": "batch-42"},
		data:     []byte(`{"id":"app-2","poolCode":"alpha","mediationTarget":"http://example.com"}`),
	}

	pointer, err := parseMessagePointer(msg)
	if err != nil {
		t.Fatalf("parseMessagePointer failed: %v", err)
	}
	if pointer.MediationType != model.MediationTypeHTTP {
		t.Errorf("Empty mediation type should default to HTTP, got %q", pointer.MediationType)
	}
	if pointer.MessageGroupID != "fifo-group" {
		t.Errorf("Empty group should fall back to the broker attribute, got %q", pointer.MessageGroupID)
	}
	if pointer.BatchID != "batch-42" {
		t.Errorf("Empty batch should fall back to metadata, got %q", pointer.BatchID)
	}
}

func TestParseMessagePointerInvalid(t *testing.T) {
	if _, err := parseMessagePointer(&fakeMessage{id: "b-1", data: []byte("not json")}); err == nil {
		t.Error("Expected error for malformed payload")
	}
	if _, err := parseMessagePointer(&fakeMessage{id: "b-2", data: []byte(`{"poolCode":"alpha"}`)}); err == nil {
		t.Error("Expected error for missing id")
	}
}

func TestConsumerRoutesMessages(t *testing.T) {
	m := NewRouterManager(&MockMediator{})
	m.Start()
	defer m.Stop()

	if _, err := m.SyncPools([]configsource.PoolDefinition{poolDef("alpha", 2)}); err != nil {
		t.Fatalf("SyncPools failed: %v", err)
	}

	msg1 := &fakeMessage{
		id:   "broker-1",
		data: []byte(`{"id":"app-1","poolCode":"alpha","mediationTarget":"http://example.com"}`),
	}
	msg2 := &fakeMessage{
		id:   "broker-2",
		data: []byte(`{"id":"app-2","poolCode":"alpha","mediationTarget":"http://example.com"}`),
	}

	qm := routermetrics.NewInMemoryQueueMetricsService()
	fake := &fakeQueueConsumer{messages: []queue.Message{msg1, msg2}}
	c := NewConsumer(m, fake, "orders-queue").WithQueueMetrics(qm)
	c.Start()
	defer c.Stop()

	waitFor(t, 2*time.Second, func() bool { return msg1.acked.Load() && msg2.acked.Load() },
		"messages were never processed and acked")

	stats := qm.GetQueueStats("orders-queue")
	if stats.TotalMessages != 2 {
		t.Errorf("Expected 2 received messages recorded, got %d", stats.TotalMessages)
	}
	if stats.TotalConsumed != 2 {
		t.Errorf("Expected 2 consumed messages recorded, got %d", stats.TotalConsumed)
	}
}

func TestConsumerNacksUnparseable(t *testing.T) {
	ws := warning.NewInMemoryService()
	m := NewRouterManager(&MockMediator{}).WithWarnings(ws)
	m.Start()
	defer m.Stop()

	bad := &fakeMessage{id: "broker-bad", data: []byte("garbage")}
	qm := routermetrics.NewInMemoryQueueMetricsService()
	fake := &fakeQueueConsumer{messages: []queue.Message{bad}}
	c := NewConsumer(m, fake, "orders-queue").WithQueueMetrics(qm)
	c.Start()
	defer c.Stop()

	waitFor(t, 2*time.Second, func() bool { return bad.naked.Load() },
		"unparseable message was never nacked")
	if bad.acked.Load() {
		t.Error("Unparseable message must not be acked")
	}

	found := false
	for _, w := range ws.GetAllWarnings() {
		if w.Kind == warning.KindParseError {
			found = true
		}
	}
	if !found {
		t.Error("Unparseable message should raise a parse error warning")
	}

	stats := qm.GetQueueStats("orders-queue")
	if stats.TotalFailed != 1 {
		t.Errorf("Expected 1 failed message recorded, got %d", stats.TotalFailed)
	}
}

func TestConsumerActivityTracking(t *testing.T) {
	m := NewRouterManager(&MockMediator{})
	m.Start()
	defer m.Stop()

	if _, err := m.SyncPools([]configsource.PoolDefinition{poolDef("alpha", 2)}); err != nil {
		t.Fatalf("SyncPools failed: %v", err)
	}

	msg := &fakeMessage{
		id:   "broker-1",
		data: []byte(`{"id":"app-1","poolCode":"alpha","mediationTarget":"http://example.com"}`),
	}
	fake := &fakeQueueConsumer{messages: []queue.Message{msg}}
	c := NewConsumer(m, fake, "orders-queue")

	before := c.GetLastActivity()
	time.Sleep(5 * time.Millisecond)
	c.Start()

	waitFor(t, 2*time.Second, func() bool { return c.GetLastActivity() > before },
		"delivery never updated the activity timestamp")
	if c.IsStalled() {
		t.Error("Consumer with fresh activity should not be stalled")
	}

	c.Stop()
	if !fake.closed.Load() {
		t.Error("Stop should close the underlying queue consumer")
	}
}

func TestConsumerRestartCounters(t *testing.T) {
	c := NewConsumer(NewRouterManager(&MockMediator{}), &fakeQueueConsumer{}, "q")

	if c.GetRestartCount() != 0 {
		t.Errorf("Fresh consumer restart count = %d", c.GetRestartCount())
	}
	if got := c.incrementRestartCount(); got != 1 {
		t.Errorf("incrementRestartCount = %d", got)
	}
	c.resetRestartCount()
	if c.GetRestartCount() != 0 {
		t.Errorf("Reset restart count = %d", c.GetRestartCount())
	}
}
