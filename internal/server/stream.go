package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/raphaelgruber/podsearch/internal/models"
	"github.com/raphaelgruber/podsearch/internal/service"
)

// Stream frame types.
const (
	frameToken = "token"
	frameDone  = "done"
	frameError = "error"
)

// streamFrame is one websocket message sent to the client.
type streamFrame struct {
	Type    string        `json:"type"`
	Content string        `json:"content,omitempty"`
	Result  *chatResponse `json:"result,omitempty"`
	Error   *errorDetail  `json:"error,omitempty"`
}

// handleChatStream upgrades to a websocket and answers each chat request the
// client sends, streaming tokens as they are generated. A failed turn sends
// an error frame and the connection stays open for the next request.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("websocket closed unexpectedly", "error", err)
			}
			return
		}

		var req service.ChatRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			detail := &errorDetail{Kind: models.KindInvalidQuery, Message: "malformed chat request: " + err.Error()}
			if err := conn.WriteJSON(streamFrame{Type: frameError, Error: detail}); err != nil {
				return
			}
			continue
		}

		resp, err := s.deps.Chat.AskStream(ctx, req, func(token string) error {
			return conn.WriteJSON(streamFrame{Type: frameToken, Content: token})
		})
		if err != nil {
			kind := models.ErrorKind(err)
			s.logger.Warn("stream chat failed", "episode", req.EpisodeID, "kind", kind, "error", err)
			if werr := conn.WriteJSON(streamFrame{Type: frameError, Error: &errorDetail{Kind: kind, Message: err.Error()}}); werr != nil {
				return
			}
			continue
		}

		done := chatResponse{ChatResponse: *resp, ResponseTimeMS: resp.Duration.Milliseconds()}
		if err := conn.WriteJSON(streamFrame{Type: frameDone, Result: &done}); err != nil {
			return
		}
	}
}
