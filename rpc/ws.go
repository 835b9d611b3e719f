package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"promoledger/core"
)

const (
	wsWriteTimeout = 10 * time.Second
)

// handleEventsWS streams committed ledger events. Clients resume with
// ?cursor=<sequence> and may narrow the stream with ?type=<event type>.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.node == nil {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}
	cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))
	eventType := strings.TrimSpace(r.URL.Query().Get("type"))
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	// Clients only listen; CloseRead handles their close frames.
	ctx := conn.CloseRead(r.Context())
	if err := s.streamEvents(ctx, conn, cursor, eventType); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, cursor, eventType string) error {
	updates, cancel, backlog, err := s.node.SubscribeEvents(ctx, cursor)
	if err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, err.Error())
		return nil
	}
	defer cancel()

	for _, update := range backlog {
		if err := writeStreamEvent(ctx, conn, update, eventType); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if err := writeStreamEvent(ctx, conn, update, eventType); err != nil {
				return err
			}
		}
	}
}

func writeStreamEvent(ctx context.Context, conn *websocket.Conn, update core.StreamEvent, eventType string) error {
	if eventType != "" && update.Event.Type != eventType {
		return nil
	}
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
