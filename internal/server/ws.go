package server

import (
	"encoding/json"
	"net/http"
	"time"

	"tradewind/config"
	"tradewind/internal/auth"
	"tradewind/internal/domain"
	"tradewind/internal/push"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	pushWriteWait  = 10 * time.Second
	pushPongWait   = 60 * time.Second
	pushPingPeriod = (pushPongWait * 9) / 10
)

var pushUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// UpgradePushWS upgrades to the push channel. The first frame must be an
// authenticate envelope carrying a valid identity token; the server acks with
// authenticated and registers the connection in the hub.
func UpgradePushWS(cfg *config.JWTConfig, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := pushUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(pushWriteWait))
		var env push.Envelope
		if err := conn.ReadJSON(&env); err != nil || env.Event != domain.EventAuthenticate {
			conn.WriteJSON(push.Envelope{Event: "error"})
			return
		}
		var creds struct {
			Token string `json:"token"`
		}
		if json.Unmarshal(env.Data, &creds) != nil {
			conn.WriteJSON(push.Envelope{Event: "error"})
			return
		}
		claims, err := auth.ParseIdentityToken(cfg, creds.Token)
		if err != nil {
			conn.WriteJSON(push.Envelope{Event: "error"})
			return
		}
		conn.SetWriteDeadline(time.Now().Add(pushWriteWait))
		if err := conn.WriteJSON(push.Envelope{Event: domain.EventAuthenticated}); err != nil {
			return
		}

		client := &Client{
			UserID: claims.UserID,
			Send:   make(chan []byte, 256),
		}
		hub.Register(client)
		defer client.Close()

		conn.SetReadDeadline(time.Now().Add(pushPongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pushPongWait))
			return nil
		})
		go func() {
			ticker := time.NewTicker(pushPingPeriod)
			defer ticker.Stop()
			for {
				select {
				case msg, ok := <-client.Send:
					if !ok {
						return
					}
					conn.SetWriteDeadline(time.Now().Add(pushWriteWait))
					if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				case <-ticker.C:
					conn.SetWriteDeadline(time.Now().Add(pushWriteWait))
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						return
					}
				}
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
			conn.SetReadDeadline(time.Now().Add(pushPongWait))
		}
	}
}
