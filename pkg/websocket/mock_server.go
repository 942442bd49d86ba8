package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// MockServer is an in-process WebSocket server for connector tests. It
// accepts a single upgrade at a time and lets tests push frames to the
// connected client.
type MockServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conns   []*websocket.Conn
	closed  bool
	OnFrame func(message []byte) // invoked for every frame received from clients
}

// NewMockServer starts a mock WebSocket server.
func NewMockServer() *MockServer {
	ms := &MockServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	ms.server = httptest.NewServer(http.HandlerFunc(ms.handle))
	return ms
}

// URL returns the ws:// address of the server.
func (ms *MockServer) URL() string {
	return "ws" + strings.TrimPrefix(ms.server.URL, "http")
}

func (ms *MockServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := ms.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	ms.mu.Lock()
	ms.conns = append(ms.conns, conn)
	ms.mu.Unlock()

	// Reply to pings and surface frames to the test.
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteMessage(websocket.PongMessage, []byte(appData))
	})
	go func() {
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ms.mu.Lock()
			onFrame := ms.OnFrame
			ms.mu.Unlock()
			if onFrame != nil {
				onFrame(message)
			}
		}
	}()
}

// Push sends a text frame to every connected client.
func (ms *MockServer) Push(message []byte) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, conn := range ms.conns {
		_ = conn.WriteMessage(websocket.TextMessage, message)
	}
}

// Close shuts the server and all client connections down.
func (ms *MockServer) Close() {
	ms.mu.Lock()
	if ms.closed {
		ms.mu.Unlock()
		return
	}
	ms.closed = true
	conns := ms.conns
	ms.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	ms.server.Close()
}
