package handlers

import (
	"fmt"

	websocketcontrib "github.com/gofiber/contrib/websocket"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/anjiri1684/mentor_payouts/websocket"
)

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// ServeAdminWs streams audit events to an admin dashboard. The first message
// on the socket must be {"type":"auth","token":"<jwt>"}.
func (h *Handler) ServeAdminWs(c *websocketcontrib.Conn) {
	var authMsg wsAuthMessage
	if err := c.ReadJSON(&authMsg); err != nil || authMsg.Type != "auth" {
		_ = c.WriteJSON(map[string]string{"error": "Invalid or missing auth message"})
		c.Close()
		return
	}

	claims, err := h.parseToken(authMsg.Token)
	if err != nil {
		h.Logger.WithError(err).Warn("WebSocket auth failed")
		_ = c.WriteJSON(map[string]string{"error": "Invalid token"})
		c.Close()
		return
	}
	if role, _ := claims["role"].(string); role != "admin" {
		_ = c.WriteJSON(map[string]string{"error": "Forbidden: Admin access required"})
		c.Close()
		return
	}

	userID, _ := claims["user_id"].(string)
	client := &websocket.Client{ID: uuid.New(), UserID: userID, Conn: c}
	h.Hub.Register(client)
	defer h.Hub.Unregister(client)

	// The dashboard only listens; reading drains control frames and detects close.
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(h.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
