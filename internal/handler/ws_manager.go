package handler

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client представляет одно WebSocket соединение игрока.
type Client struct {
	UserID string
	Conn   *websocket.Conn
	send   chan []byte
}

// ConnectionManager управляет активными WebSocket соединениями.
// Реализует messaging.UpdateForwarder: обновления из очереди client_updates
// доставляются подключенным игрокам.
//
// Каналами send владеет только run(): закрытие происходит под mu.Lock(),
// отправка в SendToUser - под mu.RLock(), поэтому отправка в закрытый
// канал невозможна.
type ConnectionManager struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewConnectionManager создает и запускает менеджер соединений.
func NewConnectionManager(logger *zap.Logger) *ConnectionManager {
	m := &ConnectionManager{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger.Named("ConnectionManager"),
	}
	go m.run()
	return m
}

func (m *ConnectionManager) run() {
	m.logger.Info("ConnectionManager started")
	for {
		select {
		case client := <-m.register:
			m.mu.Lock()
			// Одно соединение на игрока: новое вытесняет старое.
			if oldClient, ok := m.clients[client.UserID]; ok {
				m.logger.Info("Replacing existing connection", zap.String("userID", client.UserID))
				close(oldClient.send)
				_ = oldClient.Conn.Close()
			}
			m.clients[client.UserID] = client
			m.mu.Unlock()
			m.logger.Debug("Client registered", zap.String("userID", client.UserID))

		case client := <-m.unregister:
			m.mu.Lock()
			// Снимаем регистрацию только если в карте все еще ЭТОТ клиент:
			// readPump вытесненного соединения не должен удалить замену.
			if current, ok := m.clients[client.UserID]; ok && current == client {
				delete(m.clients, client.UserID)
				close(client.send)
				m.logger.Debug("Client unregistered", zap.String("userID", client.UserID))
			}
			m.mu.Unlock()
		}
	}
}

// RegisterClient регистрирует нового клиента.
func (m *ConnectionManager) RegisterClient(client *Client) {
	m.register <- client
}

// UnregisterClient снимает регистрацию конкретного соединения.
func (m *ConnectionManager) UnregisterClient(client *Client) {
	m.unregister <- client
}

// SendToUser отправляет сообщение конкретному игроку.
// Возвращает false, если игрок оффлайн или его очередь переполнена:
// доставка push best-effort, актуальное состояние клиент доберет по HTTP.
func (m *ConnectionManager) SendToUser(userID string, message []byte) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	client, ok := m.clients[userID]
	if !ok {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		m.logger.Warn("Client send queue full, dropping update", zap.String("userID", userID))
		return false
	}
}
