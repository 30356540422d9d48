package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/questarena/tournament-finance/middleware"
	"github.com/questarena/tournament-finance/notify"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// В продакшене здесь должна быть проверка Origin,
		// чтобы разрешать подключения только с доверенных доменов.
		return true
	},
}

type WebSocketHandler struct {
	hub *notify.Hub
}

func NewWebSocketHandler(hub *notify.Hub) *WebSocketHandler {
	return &WebSocketHandler{hub: hub}
}

// ServeWs подключает пользователя к его персональному потоку событий
// (registration_confirmed, prize_awarded и т.д.). Комната — userID из токена.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader.Upgrade сам отправляет HTTP-ошибку клиенту.
		slog.Warn("websocket upgrade failed", slog.Int("user_id", userID), slog.Any("error", err))
		return
	}

	client := &notify.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		Room: strconv.Itoa(userID),
	}
	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
