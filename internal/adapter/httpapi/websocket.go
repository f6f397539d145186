package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Nyukimin/toolrouter/internal/application/orchestrator"
	"github.com/Nyukimin/toolrouter/internal/domain/request"
	"github.com/Nyukimin/toolrouter/internal/domain/tool"
	"github.com/Nyukimin/toolrouter/pkg/logger"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 64 << 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// wsMessage は受信フレーム（Command が Query より優先）
type wsMessage struct {
	Query   string                 `json:"query"`
	Context map[string]interface{} `json:"context,omitempty"`
	Command string                 `json:"command,omitempty"`
}

type wsNotice struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	Tools   []string `json:"tools,omitempty"`
}

// handleWebSocket は接続ごとにチャットセッションを実行（会話は接続ごとに独立）
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnCF("httpapi", "ws.upgrade_failed", map[string]interface{}{"error": err.Error()})
		return
	}
	defer conn.Close()

	sessionID := "ws-" + request.NewID().String()
	sess := s.opts.Sessions.Get(sessionID)
	defer s.opts.Sessions.Drop(sessionID)

	logger.InfoCF("httpapi", "ws.connected", map[string]interface{}{"session_id": sessionID})

	conn.SetReadLimit(wsMaxMessage)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.WarnCF("httpapi", "ws.read_failed", map[string]interface{}{"error": err.Error()})
			}
			break
		}

		var reply interface{}
		if cmd := strings.ToLower(strings.TrimSpace(msg.Command)); cmd != "" {
			reply = s.wsCommand(sess, cmd)
		} else if strings.TrimSpace(msg.Query) == "" {
			reply = wsNotice{Status: string(tool.StatusError), Message: "Query is required"}
		} else {
			resp, err := sess.ProcessQuery(r.Context(), orchestrator.QueryRequest{Query: msg.Query, Context: msg.Context})
			if err != nil {
				reply = wsNotice{Status: string(tool.StatusError), Message: err.Error()}
			} else {
				reply = resp
			}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(reply); err != nil {
			logger.WarnCF("httpapi", "ws.write_failed", map[string]interface{}{"error": err.Error()})
			break
		}
	}

	logger.InfoCF("httpapi", "ws.closed", map[string]interface{}{"session_id": sessionID})
}

func (s *Server) wsCommand(sess Session, cmd string) wsNotice {
	switch cmd {
	case "tools":
		return wsNotice{Status: string(tool.StatusSuccess), Message: "Available tools", Tools: s.opts.Catalog.List()}
	case "toggle enhanced", "toggle responses":
		on := !sess.Narration()
		sess.SetNarration(on)
		state := "disabled"
		if on {
			state = "enabled"
		}
		return wsNotice{Status: string(tool.StatusSuccess), Message: "Enhanced responses " + state}
	default:
		return wsNotice{Status: string(tool.StatusError), Message: "Unknown command: " + cmd}
	}
}
