package websocket

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(url string) Config {
	return Config{
		URL:               url,
		HeartbeatInterval: 100 * time.Millisecond,
		ReconnectInterval: 50 * time.Millisecond,
		MaxRetries:        3,
	}
}

func TestConnector_ConnectAndClose(t *testing.T) {
	server := NewMockServer()
	defer server.Close()

	c := NewConnector(testConfig(server.URL()), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	assert.True(t, c.IsConnected())

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())

	// Closing twice is a no-op
	require.NoError(t, c.Close())
}

func TestConnector_StatusReadsDuringClose(t *testing.T) {
	server := NewMockServer()
	defer server.Close()

	c := NewConnector(testConfig(server.URL()), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	// Status polls race the teardown; run with -race to verify the
	// status flag is safe to read from other goroutines.
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.IsConnected()
			}
		}()
	}
	require.NoError(t, c.Close())
	wg.Wait()

	assert.False(t, c.IsConnected())
}

func TestConnector_ConnectFailure(t *testing.T) {
	c := NewConnector(testConfig("ws://127.0.0.1:1"), nil)

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.False(t, c.IsConnected())
}

func TestConnector_SubscribeDispatch(t *testing.T) {
	server := NewMockServer()
	defer server.Close()

	c := NewConnector(testConfig(server.URL()), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	var mu sync.Mutex
	var received [][]byte
	require.NoError(t, c.Subscribe("order", func(message []byte) {
		mu.Lock()
		received = append(received, message)
		mu.Unlock()
	}))

	server.Push([]byte(`{"topic":"order","data":[{"id":"1"}]}`))
	server.Push([]byte(`{"topic":"ignored","data":[]}`))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestConnector_SubscribeNotConnected(t *testing.T) {
	c := NewConnector(testConfig("ws://unused"), nil)

	err := c.Subscribe("order", func([]byte) {})
	require.Error(t, err)
}

func TestConnector_Send(t *testing.T) {
	server := NewMockServer()
	defer server.Close()

	var mu sync.Mutex
	var frames [][]byte
	server.OnFrame = func(message []byte) {
		mu.Lock()
		frames = append(frames, message)
		mu.Unlock()
	}

	c := NewConnector(testConfig(server.URL()), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	defer c.Close()

	require.NoError(t, c.Send(map[string]string{"op": "subscribe"}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.JSONEq(t, `{"op":"subscribe"}`, string(frames[0]))
	mu.Unlock()
}

func TestMockConnector_InjectRoutesToHandler(t *testing.T) {
	m := NewMockConnector()
	require.NoError(t, m.Connect(context.Background()))

	var got []byte
	require.NoError(t, m.Subscribe("position", func(message []byte) { got = message }))

	m.Inject("position", []byte(`{"topic":"position"}`))
	assert.NotNil(t, got)
	assert.Equal(t, 1, m.SubscribeCalls["position"])
}
