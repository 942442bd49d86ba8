package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MockConnector implements WSConnector for testing. Messages injected
// through Inject are routed to the subscribed topic handlers the same
// way the real connector dispatches frames.
type MockConnector struct {
	mu sync.RWMutex

	connected bool
	handlers  map[string]MessageHandler

	// For verifying test expectations
	ConnectCalls     int
	SubscribeCalls   map[string]int
	UnsubscribeCalls map[string]int
	SendCalls        int
	CloseCalls       int
	SentMessages     []interface{}

	// For simulating errors
	ConnectError     error
	SubscribeError   error
	UnsubscribeError error
	SendError        error
	CloseError       error
}

// NewMockConnector creates a new mock connector for testing
func NewMockConnector() *MockConnector {
	return &MockConnector{
		handlers:         make(map[string]MessageHandler),
		SubscribeCalls:   make(map[string]int),
		UnsubscribeCalls: make(map[string]int),
	}
}

func (m *MockConnector) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ConnectCalls++
	if m.ConnectError != nil {
		return m.ConnectError
	}
	m.connected = true
	return nil
}

func (m *MockConnector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CloseCalls++
	if m.CloseError != nil {
		return m.CloseError
	}
	m.connected = false
	return nil
}

func (m *MockConnector) Subscribe(topic string, handler MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SubscribeCalls[topic]++
	if m.SubscribeError != nil {
		return m.SubscribeError
	}
	m.handlers[topic] = handler
	return nil
}

func (m *MockConnector) Unsubscribe(topic string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UnsubscribeCalls[topic]++
	if m.UnsubscribeError != nil {
		return m.UnsubscribeError
	}
	delete(m.handlers, topic)
	return nil
}

func (m *MockConnector) Send(message interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SendCalls++
	if m.SendError != nil {
		return m.SendError
	}
	m.SentMessages = append(m.SentMessages, message)
	return nil
}

func (m *MockConnector) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Inject delivers a raw message to the handler subscribed for topic,
// synchronously, from the caller's goroutine.
func (m *MockConnector) Inject(topic string, message []byte) {
	m.mu.RLock()
	handler, ok := m.handlers[topic]
	m.mu.RUnlock()
	if ok {
		handler(message)
	}
}

// InjectJSON marshals v and delivers it to the handler for topic.
func (m *MockConnector) InjectJSON(topic string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.Inject(topic, data)
	return nil
}

// WaitConnected polls until the connector reports connected or the
// timeout elapses. Handy for tests coordinating with goroutines.
func (m *MockConnector) WaitConnected(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.IsConnected() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return m.IsConnected()
}
