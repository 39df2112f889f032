// Package relaytest provides mock Initiator and Target driver
// implementations for exercising the relay package's state machine
// without physical hardware, in the style of the project's broader
// mock-object test doubles: configurable function overrides, static
// fallback values, and a call log for assertions.
package relaytest

import (
	"sync"

	"github.com/dotside-studios/nfcrelay/relay"
)

// MockInitiator is a test double for relay.Initiator.
type MockInitiator struct {
	Name string

	TransceiveFunc func(tx []byte, timeoutMs int) ([]byte, int, error)
	TransceiveData []byte
	TransceiveResult int
	TransceiveErr  error

	ListTargetsFunc func(mod relay.Modulation, max int) ([]relay.PassiveTarget, error)
	Targets         []relay.PassiveTarget
	ListTargetsErr  error

	SelectTargetFunc func(mod relay.Modulation, uid []byte) (relay.PassiveTarget, error)
	SelectedTarget   relay.PassiveTarget
	SelectErr        error

	LastErrorValue int
	CloseErr       error

	CallLog []string

	mu sync.Mutex
}

// NewMockInitiator returns a MockInitiator with sensible defaults.
func NewMockInitiator() *MockInitiator {
	return &MockInitiator{Name: "mock-initiator"}
}

func (m *MockInitiator) log(entry string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = append(m.CallLog, entry)
}

// GetCallLog returns a copy of the recorded call log.
func (m *MockInitiator) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.CallLog))
	copy(out, m.CallLog)
	return out
}

func (m *MockInitiator) Close() error                       { m.log("Close"); return m.CloseErr }
func (m *MockInitiator) String() string                     { return m.Name }
func (m *MockInitiator) SetPropertyBool(relay.PropertyOption, bool) error { m.log("SetPropertyBool"); return nil }
func (m *MockInitiator) SetPropertyInt(relay.PropertyOption, int) error   { m.log("SetPropertyInt"); return nil }
func (m *MockInitiator) Abort() error                        { m.log("Abort"); return nil }
func (m *MockInitiator) LastError() int                       { return m.LastErrorValue }
func (m *MockInitiator) Init() error                          { m.log("Init"); return nil }

func (m *MockInitiator) ListPassiveTargets(mod relay.Modulation, max int) ([]relay.PassiveTarget, error) {
	m.log("ListPassiveTargets")
	if m.ListTargetsFunc != nil {
		return m.ListTargetsFunc(mod, max)
	}
	if m.ListTargetsErr != nil {
		return nil, m.ListTargetsErr
	}
	return m.Targets, nil
}

func (m *MockInitiator) SelectPassiveTarget(mod relay.Modulation, uid []byte) (relay.PassiveTarget, error) {
	m.log("SelectPassiveTarget")
	if m.SelectTargetFunc != nil {
		return m.SelectTargetFunc(mod, uid)
	}
	if m.SelectErr != nil {
		return relay.PassiveTarget{}, m.SelectErr
	}
	return m.SelectedTarget, nil
}

func (m *MockInitiator) Transceive(tx []byte, timeoutMs int) ([]byte, int, error) {
	m.log("Transceive")
	if m.TransceiveFunc != nil {
		return m.TransceiveFunc(tx, timeoutMs)
	}
	if m.TransceiveErr != nil {
		return nil, 0, m.TransceiveErr
	}
	return m.TransceiveData, m.TransceiveResult, nil
}

var _ relay.Initiator = (*MockInitiator)(nil)

// MockTarget is a test double for relay.Target.
type MockTarget struct {
	Name string

	ReceiveFunc   func(timeoutMs int) ([]byte, int, error)
	ReceiveQueue  [][]byte
	ReceiveResult int
	ReceiveErr    error

	SendFunc   func(data []byte, timeoutMs int) (int, error)
	SendResult int
	SendErr    error
	SentFrames [][]byte

	InitTargetFunc func(desc relay.EmulatedTarget, timeoutMs int) (relay.EmulatedTarget, error)
	InitTargetErr  error

	LastErrorValue int
	CloseErr       error

	CallLog []string

	mu sync.Mutex
}

// NewMockTarget returns a MockTarget with sensible defaults.
func NewMockTarget() *MockTarget {
	return &MockTarget{Name: "mock-target"}
}

func (m *MockTarget) log(entry string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = append(m.CallLog, entry)
}

// GetCallLog returns a copy of the recorded call log.
func (m *MockTarget) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.CallLog))
	copy(out, m.CallLog)
	return out
}

func (m *MockTarget) Close() error                       { m.log("Close"); return m.CloseErr }
func (m *MockTarget) String() string                     { return m.Name }
func (m *MockTarget) SetPropertyBool(relay.PropertyOption, bool) error { m.log("SetPropertyBool"); return nil }
func (m *MockTarget) SetPropertyInt(relay.PropertyOption, int) error   { m.log("SetPropertyInt"); return nil }
func (m *MockTarget) Abort() error                        { m.log("Abort"); return nil }
func (m *MockTarget) LastError() int                       { return m.LastErrorValue }

func (m *MockTarget) InitTarget(desc relay.EmulatedTarget, timeoutMs int) (relay.EmulatedTarget, error) {
	m.log("InitTarget")
	if m.InitTargetFunc != nil {
		return m.InitTargetFunc(desc, timeoutMs)
	}
	if m.InitTargetErr != nil {
		return relay.EmulatedTarget{}, m.InitTargetErr
	}
	return desc, nil
}

// Receive pops the next queued response, in the style of the dummy
// command-driver test doubles elsewhere in the pack: callers preload
// ReceiveQueue and each call returns the next entry.
func (m *MockTarget) Receive(timeoutMs int) ([]byte, int, error) {
	m.log("Receive")
	if m.ReceiveFunc != nil {
		return m.ReceiveFunc(timeoutMs)
	}
	if m.ReceiveErr != nil {
		return nil, 0, m.ReceiveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ReceiveQueue) == 0 {
		return nil, m.ReceiveResult, nil
	}
	next := m.ReceiveQueue[0]
	m.ReceiveQueue = m.ReceiveQueue[1:]
	result := m.ReceiveResult
	if result == 0 {
		result = len(next)
	}
	return next, result, nil
}

func (m *MockTarget) Send(data []byte, timeoutMs int) (int, error) {
	m.log("Send")
	m.mu.Lock()
	m.SentFrames = append(m.SentFrames, data)
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(data, timeoutMs)
	}
	if m.SendErr != nil {
		return 0, m.SendErr
	}
	result := m.SendResult
	if result == 0 {
		result = len(data)
	}
	return result, nil
}

var _ relay.Target = (*MockTarget)(nil)
