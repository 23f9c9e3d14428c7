package payment

import (
	"context"
	"sync"
	"time"

	"github.com/suiftly/sealctl/internal/enum"
)

// MockScenario names a deterministic fault to inject on the next charge.
type MockScenario string

const (
	ScenarioNone                  MockScenario = ""
	ScenarioForceFail             MockScenario = "force_fail"
	ScenarioForceRequiresAction   MockScenario = "force_requires_action"
	ScenarioInsufficientBalance   MockScenario = "insufficient_balance"
	ScenarioSpendingLimitExceeded MockScenario = "spending_limit_exceeded"
	ScenarioAccountNotFound       MockScenario = "account_not_found"
)

// MockMode is a process-wide fault-injection setting shared by the
// providers built against it. It is checked on every charge, not fixed
// at provider construction: Enable may be called at any time, and
// nothing disables the mode again once enabled. Production configuration
// never calls Enable (§4.4).
type MockMode struct {
	mu       sync.Mutex
	enabled  bool
	scenario MockScenario
	latency  time.Duration
}

// NewMockMode constructs a disabled-by-default mode. Call Enable to turn
// it on; production configuration simply never calls Enable.
func NewMockMode() *MockMode {
	return &MockMode{}
}

func (m *MockMode) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = true
}

// SetScenario arms scenario for the next charge attempt across all
// providers built against this mode. Scenario resets to ScenarioNone
// each time take is called, so tests must re-arm per attempt.
func (m *MockMode) SetScenario(scenario MockScenario) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenario = scenario
}

func (m *MockMode) SetLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

func (m *MockMode) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled
}

// take returns and clears the armed scenario plus configured latency.
func (m *MockMode) take() (MockScenario, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.scenario
	m.scenario = ScenarioNone
	return s, m.latency
}

// applyFaultInjection sleeps for the configured latency and, if a
// scenario is armed, returns a ChargeResult reflecting it. ok is false
// when no scenario applied and the caller should proceed with its own
// real (or simulated-real) charge logic.
func applyFaultInjection(ctx context.Context, mode *MockMode) (result ChargeResult, ok bool) {
	if mode == nil || !mode.Enabled() {
		return ChargeResult{}, false
	}
	scenario, latency := mode.take()
	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ChargeResult{Success: false, ErrorCode: enum.ErrTransientProvider, Retryable: true}, true
		}
	}
	switch scenario {
	case ScenarioNone:
		return ChargeResult{}, false
	case ScenarioForceFail:
		return ChargeResult{Success: false, ErrorCode: enum.ErrCardDeclined, Retryable: false}, true
	case ScenarioForceRequiresAction:
		return ChargeResult{Success: false, ErrorCode: enum.ErrRequiresAction, HostedInvoiceURL: "https://mock.invalid/3ds", Retryable: false}, true
	case ScenarioInsufficientBalance:
		return ChargeResult{Success: false, ErrorCode: enum.ErrInsufficientEscrow, Retryable: true}, true
	case ScenarioSpendingLimitExceeded:
		return ChargeResult{Success: false, ErrorCode: enum.ErrSpendingLimitReached, Retryable: true}, true
	case ScenarioAccountNotFound:
		return ChargeResult{Success: false, ErrorCode: enum.ErrAccountNotConfigured, Retryable: false}, true
	default:
		return ChargeResult{}, false
	}
}
