package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"tta-server/internal/authutils"
)

const (
	// Время, разрешенное для записи сообщения клиенту.
	writeWait = 10 * time.Second
	// Время, разрешенное для чтения следующего pong от клиента.
	pongWait = 60 * time.Second
	// Период отправки пингов. Должен быть меньше pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Максимальный размер сообщения от клиента.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Ограничение Origin выполняется на API gateway.
		return true
	},
}

// WebSocketHandler обрабатывает апгрейд соединения для push-обновлений.
type WebSocketHandler struct {
	manager  *ConnectionManager
	verifier *authutils.JWTVerifier
	logger   *zap.Logger
}

// NewWebSocketHandler создает обработчик WebSocket.
func NewWebSocketHandler(manager *ConnectionManager, verifier *authutils.JWTVerifier, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		manager:  manager,
		verifier: verifier,
		logger:   logger.Named("WebSocketHandler"),
	}
}

// HandleWS обрабатывает GET /ws.
func (h *WebSocketHandler) HandleWS(c echo.Context) error {
	tokenString := c.QueryParam("token")
	if tokenString == "" {
		h.logger.Warn("Missing 'token' query parameter")
		return c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized: Missing token"})
	}

	claims, err := h.verifier.VerifyToken(c.Request().Context(), tokenString)
	if err != nil {
		h.logger.Warn("WebSocket token verification failed", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, APIError{Message: "Unauthorized: Invalid token"})
	}
	userID := claims.UserID.String()

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// upgrader уже ответил клиенту сам.
		h.logger.Error("Failed to upgrade connection", zap.String("userID", userID), zap.Error(err))
		return nil
	}

	h.logger.Info("WebSocket connection established", zap.String("userID", userID))

	client := &Client{
		UserID: userID,
		Conn:   conn,
		send:   make(chan []byte, 256),
	}
	h.manager.RegisterClient(client)

	go client.writePump(h.logger.With(zap.String("userID", userID)))
	go client.readPump(h.manager, h.logger.With(zap.String("userID", userID)))

	return nil
}

// readPump читает из соединения. Входящие сообщения от клиента не
// ожидаются (канал односторонний), чтение нужно для pong и закрытия.
func (c *Client) readPump(manager *ConnectionManager, logger *zap.Logger) {
	defer func() {
		manager.UnregisterClient(c)
		_ = c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		logger.Warn("Unexpected message from client (ignored)", zap.ByteString("message", message))
	}
}

// writePump пишет сообщения из канала send в соединение и шлет пинги.
func (c *Client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Warn("WebSocket write error", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug("Ping failed, closing connection", zap.Error(err))
				return
			}
		}
	}
}
