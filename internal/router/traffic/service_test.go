package traffic

import (
	"errors"
	"strings"
	"testing"
)

// fakeStrategy records calls and can fail on demand
type fakeStrategy struct {
	registered    bool
	registerErr   error
	deregisterErr error
	registerCalls int
}

func (f *fakeStrategy) RegisterAsActive() error {
	f.registerCalls++
	if f.registerErr != nil {
		return f.registerErr
	}
	f.registered = true
	return nil
}

func (f *fakeStrategy) DeregisterFromActive() error {
	if f.deregisterErr != nil {
		return f.deregisterErr
	}
	f.registered = false
	return nil
}

func (f *fakeStrategy) IsRegistered() bool {
	return f.registered
}

func (f *fakeStrategy) GetStatus() *TrafficStatus {
	return &TrafficStatus{
		StrategyType:  "fake",
		Registered:    f.registered,
		TargetInfo:    "fake target",
		LastOperation: "none",
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Enabled {
		t.Error("Default config should have Enabled=false")
	}

	if config.Strategy != "noop" {
		t.Errorf("Expected default strategy 'noop', got %s", config.Strategy)
	}
}

func TestNewService_NilConfig(t *testing.T) {
	svc := NewService(nil)

	if svc == nil {
		t.Fatal("NewService returned nil with nil config")
	}

	if svc.IsEnabled() {
		t.Error("Nil config should default to disabled")
	}
}

func TestDisabledUsesNoOp(t *testing.T) {
	svc := NewService(&Config{Enabled: false})

	status := svc.GetStatus()
	if status.StrategyType != "noop" {
		t.Errorf("Expected noop strategy when disabled, got %s", status.StrategyType)
	}

	if !svc.IsRegistered() {
		t.Error("NoOp strategy should always report registered")
	}
}

func TestUnknownStrategyFallsBackToNoOp(t *testing.T) {
	svc := NewService(&Config{Enabled: true, Strategy: "aws-alb"})

	status := svc.GetStatus()
	if status.StrategyType != "noop" {
		t.Errorf("Expected fallback to noop, got %s", status.StrategyType)
	}
}

func TestRegisterDeregisterCycle(t *testing.T) {
	svc := NewService(&Config{Enabled: true, Strategy: "noop"})
	fake := &fakeStrategy{}
	svc.SetStrategy(fake)

	svc.RegisterAsActive()
	if !svc.IsRegistered() {
		t.Error("Expected instance registered after RegisterAsActive")
	}

	status := svc.GetStatus()
	if !strings.HasPrefix(status.LastOperation, "register at ") {
		t.Errorf("Expected last operation to record registration, got %q", status.LastOperation)
	}
	if status.LastError != "" {
		t.Errorf("Expected no error, got %q", status.LastError)
	}

	svc.DeregisterFromActive()
	if svc.IsRegistered() {
		t.Error("Expected instance deregistered after DeregisterFromActive")
	}

	status = svc.GetStatus()
	if !strings.HasPrefix(status.LastOperation, "deregister at ") {
		t.Errorf("Expected last operation to record deregistration, got %q", status.LastOperation)
	}
}

func TestRegisterFailureDoesNotPanic(t *testing.T) {
	svc := NewService(&Config{Enabled: true, Strategy: "noop"})
	fake := &fakeStrategy{registerErr: errors.New("target group unreachable")}
	svc.SetStrategy(fake)

	svc.RegisterAsActive()

	status := svc.GetStatus()
	if status.LastError != "target group unreachable" {
		t.Errorf("Expected failure recorded in status, got %q", status.LastError)
	}
}

func TestRegisterIsIdempotent(t *testing.T) {
	svc := NewService(&Config{Enabled: true, Strategy: "noop"})
	fake := &fakeStrategy{}
	svc.SetStrategy(fake)

	svc.RegisterAsActive()
	svc.RegisterAsActive()

	if fake.registerCalls != 2 {
		t.Errorf("Expected register delegated on every call, got %d calls", fake.registerCalls)
	}
	if !svc.IsRegistered() {
		t.Error("Repeated registration should leave instance registered")
	}
}

func TestErrorClearedAfterSuccess(t *testing.T) {
	svc := NewService(&Config{Enabled: true, Strategy: "noop"})
	fake := &fakeStrategy{registerErr: errors.New("transient failure")}
	svc.SetStrategy(fake)

	svc.RegisterAsActive()
	if svc.GetStatus().LastError == "" {
		t.Fatal("Expected failure recorded")
	}

	fake.registerErr = nil
	svc.RegisterAsActive()

	if got := svc.GetStatus().LastError; got != "" {
		t.Errorf("Expected error cleared after successful retry, got %q", got)
	}
}

func TestNoOpStrategyStatus(t *testing.T) {
	strategy := NewNoOpStrategy()

	if err := strategy.RegisterAsActive(); err != nil {
		t.Errorf("NoOp register should not fail: %v", err)
	}
	if err := strategy.DeregisterFromActive(); err != nil {
		t.Errorf("NoOp deregister should not fail: %v", err)
	}

	status := strategy.GetStatus()
	if status.StrategyType != "noop" {
		t.Errorf("Expected strategy type 'noop', got %s", status.StrategyType)
	}
	if !status.Registered {
		t.Error("NoOp strategy should always report registered")
	}
}
