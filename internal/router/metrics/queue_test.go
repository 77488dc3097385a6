package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestQueueMetricsService_UnknownQueue(t *testing.T) {
	svc := NewInMemoryQueueMetricsService()

	stats := svc.GetQueueStats("route.orders")

	if stats == nil {
		t.Fatal("Expected empty stats for unknown queue, got nil")
	}
	if stats.Name != "route.orders" {
		t.Errorf("Expected name 'route.orders', got %s", stats.Name)
	}
	if stats.TotalMessages != 0 {
		t.Errorf("Expected 0 messages for unknown queue, got %d", stats.TotalMessages)
	}
	if stats.SuccessRate != 1.0 || stats.SuccessRate5min != 1.0 || stats.SuccessRate30min != 1.0 {
		t.Errorf("Expected all success rates to default to 1.0, got %f/%f/%f",
			stats.SuccessRate, stats.SuccessRate5min, stats.SuccessRate30min)
	}
}

func TestQueueMetricsService_CountsByOutcome(t *testing.T) {
	svc := NewInMemoryQueueMetricsService()

	for i := 0; i < 5; i++ {
		svc.RecordMessageReceived("route.orders")
	}
	svc.RecordMessageProcessed("route.orders", true)
	svc.RecordMessageProcessed("route.orders", true)
	svc.RecordMessageProcessed("route.orders", true)
	svc.RecordMessageProcessed("route.orders", false)
	svc.RecordMessageProcessed("route.orders", false)

	stats := svc.GetQueueStats("route.orders")

	if stats.TotalMessages != 5 {
		t.Errorf("Expected 5 total messages, got %d", stats.TotalMessages)
	}
	if stats.TotalConsumed != 3 {
		t.Errorf("Expected 3 consumed, got %d", stats.TotalConsumed)
	}
	if stats.TotalFailed != 2 {
		t.Errorf("Expected 2 failed, got %d", stats.TotalFailed)
	}
	if stats.SuccessRate != 0.6 {
		t.Errorf("Expected success rate 0.6, got %f", stats.SuccessRate)
	}
}

func TestQueueMetricsService_RollingWindows(t *testing.T) {
	svc := NewInMemoryQueueMetricsService()

	svc.RecordMessageProcessed("route.billing", true)
	svc.RecordMessageProcessed("route.billing", true)
	svc.RecordMessageProcessed("route.billing", false)

	stats := svc.GetQueueStats("route.billing")

	// All outcomes are fresh, so both windows see the same counts
	if stats.TotalMessages5min != 3 || stats.Consumed5min != 2 || stats.Failed5min != 1 {
		t.Errorf("Expected 5min window 3/2/1, got %d/%d/%d",
			stats.TotalMessages5min, stats.Consumed5min, stats.Failed5min)
	}
	if stats.TotalMessages30min != 3 || stats.Consumed30min != 2 || stats.Failed30min != 1 {
		t.Errorf("Expected 30min window 3/2/1, got %d/%d/%d",
			stats.TotalMessages30min, stats.Consumed30min, stats.Failed30min)
	}

	expectedRate := 2.0 / 3.0
	if stats.SuccessRate5min < expectedRate-0.01 || stats.SuccessRate5min > expectedRate+0.01 {
		t.Errorf("Expected 5min success rate ~0.67, got %f", stats.SuccessRate5min)
	}
	if stats.SuccessRate30min < expectedRate-0.01 || stats.SuccessRate30min > expectedRate+0.01 {
		t.Errorf("Expected 30min success rate ~0.67, got %f", stats.SuccessRate30min)
	}
}

func TestQueueMetricsService_DepthAndBrokerCounts(t *testing.T) {
	svc := NewInMemoryQueueMetricsService()

	svc.RecordQueueDepth("route.orders", 120)
	svc.RecordQueueMetrics("route.orders", 100, 20)

	stats := svc.GetQueueStats("route.orders")
	if stats.CurrentSize != 120 {
		t.Errorf("Expected current size 120, got %d", stats.CurrentSize)
	}
	if stats.PendingMessages != 100 {
		t.Errorf("Expected 100 pending, got %d", stats.PendingMessages)
	}
	if stats.MessagesNotVisible != 20 {
		t.Errorf("Expected 20 not visible, got %d", stats.MessagesNotVisible)
	}

	// Later polls overwrite, never accumulate
	svc.RecordQueueDepth("route.orders", 35)
	svc.RecordQueueMetrics("route.orders", 30, 5)

	stats = svc.GetQueueStats("route.orders")
	if stats.CurrentSize != 35 {
		t.Errorf("Expected current size 35 after update, got %d", stats.CurrentSize)
	}
	if stats.PendingMessages != 30 || stats.MessagesNotVisible != 5 {
		t.Errorf("Expected 30/5 after update, got %d/%d", stats.PendingMessages, stats.MessagesNotVisible)
	}
}

func TestQueueMetricsService_Throughput(t *testing.T) {
	svc := NewInMemoryQueueMetricsService()

	svc.RecordMessageProcessed("route.orders", true)
	svc.RecordMessageProcessed("route.orders", true)

	time.Sleep(50 * time.Millisecond)

	stats := svc.GetQueueStats("route.orders")
	if stats.Throughput <= 0 {
		t.Errorf("Expected positive throughput, got %f", stats.Throughput)
	}
}

func TestQueueMetricsService_PerQueueIsolation(t *testing.T) {
	svc := NewInMemoryQueueMetricsService()

	svc.RecordMessageReceived("route.orders")
	svc.RecordMessageReceived("route.orders")
	svc.RecordMessageReceived("route.billing")
	svc.RecordMessageProcessed("route.billing", false)

	orders := svc.GetQueueStats("route.orders")
	billing := svc.GetQueueStats("route.billing")

	if orders.TotalMessages != 2 || orders.TotalFailed != 0 {
		t.Errorf("Expected orders queue 2 messages and 0 failed, got %d/%d",
			orders.TotalMessages, orders.TotalFailed)
	}
	if billing.TotalMessages != 1 || billing.TotalFailed != 1 {
		t.Errorf("Expected billing queue 1 message and 1 failed, got %d/%d",
			billing.TotalMessages, billing.TotalFailed)
	}

	all := svc.GetAllQueueStats()
	if len(all) != 2 {
		t.Errorf("Expected stats for 2 queues, got %d", len(all))
	}
	if _, ok := all["route.orders"]; !ok {
		t.Error("Should have stats for route.orders")
	}
	if _, ok := all["route.billing"]; !ok {
		t.Error("Should have stats for route.billing")
	}
}

func TestQueueMetricsService_OutcomePruningKeepsRecentCounts(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping pruning test in short mode")
	}

	svc := NewInMemoryQueueMetricsService()

	// Cross the prune threshold. Everything is recent, so the windows
	// must still see every outcome.
	const n = 10500
	for i := 0; i < n; i++ {
		svc.RecordMessageProcessed("route.orders", i%2 == 0)
	}

	stats := svc.GetQueueStats("route.orders")
	if stats.TotalMessages30min != n {
		t.Errorf("Expected %d outcomes in 30min window after pruning, got %d", n, stats.TotalMessages30min)
	}
	if stats.TotalConsumed+stats.TotalFailed != n {
		t.Errorf("Expected %d total outcomes, got %d", n, stats.TotalConsumed+stats.TotalFailed)
	}
}

func TestQueueMetricsService_ConcurrentRecording(t *testing.T) {
	svc := NewInMemoryQueueMetricsService()

	var wg sync.WaitGroup
	queues := []string{"route.orders", "route.billing"}

	for _, queueID := range queues {
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				for j := 0; j < 200; j++ {
					svc.RecordMessageReceived(id)
					svc.RecordMessageProcessed(id, true)
				}
			}(queueID)
		}
	}
	wg.Wait()

	for _, queueID := range queues {
		stats := svc.GetQueueStats(queueID)
		if stats.TotalMessages != 1000 {
			t.Errorf("Expected 1000 messages for %s, got %d", queueID, stats.TotalMessages)
		}
		if stats.TotalConsumed != 1000 {
			t.Errorf("Expected 1000 consumed for %s, got %d", queueID, stats.TotalConsumed)
		}
	}
}
