package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// BatchingConfig holds batching configuration
type BatchingConfig struct {
	MinSeverity string
	BatchWindow time.Duration
}

// DefaultBatchingConfig returns default batching configuration
func DefaultBatchingConfig() *BatchingConfig {
	return &BatchingConfig{
		MinSeverity: "WARN",
		BatchWindow: 5 * time.Minute,
	}
}

// BatchingService collects warnings over the batch window and sends one
// summary notification per window to all registered delegates. Warnings
// below the configured minimum severity are dropped. It runs as a
// lifecycle service: Start drives the flush ticker, Stop flushes whatever
// is still pending.
type BatchingService struct {
	mu sync.Mutex

	delegates      []Service
	config         *BatchingConfig
	warningBatch   []*Warning
	categoryCount  map[string]int
	batchStartTime time.Time
}

// NewBatchingService creates a new batching notification service
func NewBatchingService(delegates []Service, config *BatchingConfig) *BatchingService {
	if config == nil {
		config = DefaultBatchingConfig()
	}

	slog.Info("Notification batching initialized",
		"delegates", len(delegates),
		"minSeverity", config.MinSeverity,
		"batchWindow", config.BatchWindow)

	return &BatchingService{
		delegates:      delegates,
		config:         config,
		warningBatch:   make([]*Warning, 0),
		categoryCount:  make(map[string]int),
		batchStartTime: time.Now(),
	}
}

// Name implements lifecycle.Service
func (s *BatchingService) Name() string {
	return "notification-batcher"
}

// Start flushes the batch on every window tick until ctx is cancelled
func (s *BatchingService) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.config.BatchWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SendBatch()
		}
	}
}

// Stop flushes any warnings still pending so shutdown does not drop them
func (s *BatchingService) Stop(ctx context.Context) error {
	s.SendBatch()
	return nil
}

// Health implements lifecycle.Service
func (s *BatchingService) Health() error {
	return nil
}

// NotifyWarning adds a warning to the batch
func (s *BatchingService) NotifyWarning(warning *Warning) {
	if !MeetsMinSeverity(warning.Severity, s.config.MinSeverity) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.warningBatch = append(s.warningBatch, warning)
	s.categoryCount[warning.Category]++
}

// NotifyCriticalError adds a critical error to the batch
func (s *BatchingService) NotifyCriticalError(message, source string) {
	warning := &Warning{
		ID:        uuid.New().String(),
		Category:  "CRITICAL_ERROR",
		Severity:  "CRITICAL",
		Message:   message,
		Timestamp: time.Now(),
		Source:    source,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.warningBatch = append(s.warningBatch, warning)
	s.categoryCount["CRITICAL_ERROR"]++
}

// NotifySystemEvent adds a system event to the batch if it meets severity
func (s *BatchingService) NotifySystemEvent(eventType, message string) {
	if !MeetsMinSeverity("INFO", s.config.MinSeverity) {
		return
	}

	category := "SYSTEM_EVENT_" + eventType
	warning := &Warning{
		ID:        uuid.New().String(),
		Category:  category,
		Severity:  "INFO",
		Message:   message,
		Timestamp: time.Now(),
		Source:    "System",
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.warningBatch = append(s.warningBatch, warning)
	s.categoryCount[category]++
}

// IsEnabled returns true if any delegate is enabled
func (s *BatchingService) IsEnabled() bool {
	for _, delegate := range s.delegates {
		if delegate.IsEnabled() {
			return true
		}
	}
	return len(s.delegates) > 0
}

// PendingCount returns the number of warnings waiting in the batch
func (s *BatchingService) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.warningBatch)
}

// SendBatch drains the batch and sends a summary to every delegate
func (s *BatchingService) SendBatch() {
	s.mu.Lock()
	if len(s.warningBatch) == 0 {
		s.mu.Unlock()
		slog.Debug("No warnings to send in this batch period")
		return
	}

	warnings := make([]*Warning, len(s.warningBatch))
	copy(warnings, s.warningBatch)
	batchEndTime := time.Now()
	batchStartTime := s.batchStartTime

	s.warningBatch = make([]*Warning, 0)
	s.categoryCount = make(map[string]int)
	s.batchStartTime = time.Now()
	s.mu.Unlock()

	slog.Info("Sending batched notification",
		"count", len(warnings),
		"startTime", batchStartTime,
		"endTime", batchEndTime)

	warningsBySeverity := make(map[string][]*Warning)
	for _, w := range warnings {
		warningsBySeverity[w.Severity] = append(warningsBySeverity[w.Severity], w)
	}

	for _, delegate := range s.delegates {
		if err := s.sendSummaryToDelegate(delegate, warnings, warningsBySeverity, batchStartTime, batchEndTime); err != nil {
			slog.Error("Failed to send notification via delegate", "error", err)
		}
	}
}

// sendSummaryToDelegate builds the summary text and delivers it as a
// single synthetic warning
func (s *BatchingService) sendSummaryToDelegate(
	delegate Service,
	allWarnings []*Warning,
	warningsBySeverity map[string][]*Warning,
	startTime, endTime time.Time,
) error {
	var summary strings.Builder
	summary.WriteString(fmt.Sprintf("RelayPoint Warning Summary (%s to %s)\n\n",
		startTime.Format(time.RFC3339), endTime.Format(time.RFC3339)))

	// Most severe first
	for i := len(SeverityOrder) - 1; i >= 0; i-- {
		severity := SeverityOrder[i]
		warningsForSeverity := warningsBySeverity[severity]
		if len(warningsForSeverity) == 0 {
			continue
		}

		summary.WriteString(fmt.Sprintf("%s Issues (%d):\n", severity, len(warningsForSeverity)))

		byCategory := make(map[string][]*Warning)
		for _, w := range warningsForSeverity {
			byCategory[w.Category] = append(byCategory[w.Category], w)
		}

		for category, categoryWarnings := range byCategory {
			if len(categoryWarnings) == 1 {
				summary.WriteString(fmt.Sprintf("  - %s: %s\n", category, categoryWarnings[0].Message))
			} else {
				summary.WriteString(fmt.Sprintf("  - %s: %d occurrences\n", category, len(categoryWarnings)))
				summary.WriteString(fmt.Sprintf("    Example: %s\n", categoryWarnings[0].Message))
			}
		}
		summary.WriteString("\n")
	}

	summary.WriteString(fmt.Sprintf("Total Warnings: %d\n", len(allWarnings)))

	summaryWarning := &Warning{
		ID:        uuid.New().String(),
		Category:  "BATCH_SUMMARY",
		Severity:  getHighestSeverity(warningsBySeverity),
		Message:   summary.String(),
		Timestamp: time.Now(),
		Source:    "BatchingNotificationService",
	}

	delegate.NotifyWarning(summaryWarning)
	return nil
}

// getHighestSeverity returns the highest severity present in the map
func getHighestSeverity(warningsBySeverity map[string][]*Warning) string {
	for i := len(SeverityOrder) - 1; i >= 0; i-- {
		if len(warningsBySeverity[SeverityOrder[i]]) > 0 {
			return SeverityOrder[i]
		}
	}
	return "INFO"
}
