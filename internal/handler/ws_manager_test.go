package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// serverConn возвращает серверную сторону реального WebSocket соединения.
func serverConn(t *testing.T) *websocket.Conn {
	t.Helper()
	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		connCh <- conn
	}))
	t.Cleanup(srv.Close)

	clientConn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientConn.Close() })

	select {
	case conn := <-connCh:
		t.Cleanup(func() { _ = conn.Close() })
		return conn
	case <-time.After(time.Second):
		t.Fatal("не дождались серверной стороны соединения")
		return nil
	}
}

func testClient(t *testing.T, userID string) *Client {
	t.Helper()
	return &Client{
		UserID: userID,
		Conn:   serverConn(t),
		send:   make(chan []byte, 4),
	}
}

// waitRegistered ждет, пока run() обработает регистрацию.
func waitRegistered(t *testing.T, m *ConnectionManager, want *Client) {
	t.Helper()
	require.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.clients[want.UserID] == want
	}, time.Second, 5*time.Millisecond)
}

func TestConnectionManager(t *testing.T) {
	t.Run("Reconnect survives old pump unregistering", func(t *testing.T) {
		m := NewConnectionManager(zap.NewNop())

		oldClient := testClient(t, "player-1")
		newClient := testClient(t, "player-1")

		m.RegisterClient(oldClient)
		waitRegistered(t, m, oldClient)

		// Повторное подключение того же игрока вытесняет старое.
		m.RegisterClient(newClient)
		waitRegistered(t, m, newClient)

		// readPump вытесненного соединения просыпается с ошибкой чтения
		// и снимает СВОЮ регистрацию; замена должна остаться в карте.
		m.UnregisterClient(oldClient)

		// Операции run() сериализованы: после обработки регистрации
		// другого игрока unregister выше гарантированно применен.
		other := testClient(t, "player-2")
		m.RegisterClient(other)
		waitRegistered(t, m, other)

		require.True(t, m.SendToUser("player-1", []byte(`{"type":"scene_ready"}`)))

		select {
		case msg := <-newClient.send:
			assert.JSONEq(t, `{"type":"scene_ready"}`, string(msg))
		case <-time.After(time.Second):
			t.Fatal("обновление не дошло до нового соединения")
		}

		// Канал вытесненного клиента закрыт менеджером при замене.
		select {
		case _, open := <-oldClient.send:
			assert.False(t, open)
		case <-time.After(time.Second):
			t.Fatal("канал старого клиента не закрыт")
		}
	})

	t.Run("Unregister removes the matching client", func(t *testing.T) {
		m := NewConnectionManager(zap.NewNop())

		client := testClient(t, "player-1")
		m.RegisterClient(client)
		waitRegistered(t, m, client)

		m.UnregisterClient(client)

		require.Eventually(t, func() bool {
			return !m.SendToUser("player-1", []byte("x"))
		}, time.Second, 5*time.Millisecond)

		select {
		case _, open := <-client.send:
			assert.False(t, open)
		case <-time.After(time.Second):
			t.Fatal("канал клиента не закрыт после unregister")
		}
	})
}
