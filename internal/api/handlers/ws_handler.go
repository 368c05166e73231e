package handlers

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/heliolab/labassist/internal/services"
)

// WSHandler streams preprocessing completion events to the client so the UI
// can unblock the send button per attachment instead of polling.
type WSHandler struct {
	pre      services.Preprocessor
	upgrader websocket.Upgrader
}

func NewWSHandler(pre services.Preprocessor) *WSHandler {
	return &WSHandler{
		pre: pre,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true }, // TODO: restrict origin in prod
		},
	}
}

type wsServerMsg struct {
	Type    string          `json:"type"` // "processed"
	AssetID string          `json:"asset_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.c.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return w.c.WriteJSON(v)
}

func (h *WSHandler) PreprocessWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote response in most cases
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	events, cancel := h.pre.Subscribe()
	defer cancel()

	// reader: only keeps the connection's read side draining and detects
	// the peer going away; clients send nothing meaningful here.
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, rerr := conn.ReadMessage(); rerr != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-readDone:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			wc.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			perr := conn.WriteMessage(websocket.PingMessage, nil)
			wc.mu.Unlock()
			if perr != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, merr := json.Marshal(ev.Result)
			if merr != nil {
				continue
			}
			if werr := wc.writeJSON(wsServerMsg{
				Type:    "processed",
				AssetID: ev.AssetID,
				Payload: payload,
			}); werr != nil {
				return
			}
		}
	}
}
