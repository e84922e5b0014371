package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/castmind/castmind/internal/pipeline"
)

// StreamHandler runs the pipeline over a websocket, pushing one event per
// stage transition before the final chat response. The browser UI uses it
// to animate the collaboration flow live.
type StreamHandler struct {
	chat     *ChatHandler
	logger   *zap.SugaredLogger
	upgrader websocket.Upgrader
}

func NewStreamHandler(chat *ChatHandler, logger *zap.SugaredLogger) *StreamHandler {
	return &StreamHandler{
		chat:   chat,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

type streamEnvelope struct {
	Type   string               `json:"type"`
	Event  *pipeline.StageEvent `json:"event,omitempty"`
	Result *chatResponse        `json:"result,omitempty"`
	Error  string               `json:"error,omitempty"`
}

// HandleStream is GET /ws/chat. The client sends one chatRequest JSON
// frame per exchange and receives stage events followed by a result (or
// error) frame.
func (h *StreamHandler) HandleStream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		var payload chatRequest
		if err := conn.ReadJSON(&payload); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warnw("websocket read failed", "error", err)
			}
			return
		}

		if strings.TrimSpace(payload.Message) == "" {
			h.send(conn, streamEnvelope{Type: "error", Error: "message cannot be empty"})
			continue
		}

		conversationID := strings.TrimSpace(payload.ConversationID)
		if conversationID == "" {
			conversationID = uuid.NewString()
		}

		ctx := c.Request.Context()
		initial := h.chat.prepareState(ctx, payload.Message, conversationID)

		final, err := h.chat.orchestrator.Observe(ctx, initial, func(event pipeline.StageEvent) {
			h.send(conn, streamEnvelope{Type: "stage", Event: &event})
		})
		if err != nil {
			h.logger.Errorw("pipeline run failed", "conversation_id", conversationID, "error", err)
			h.send(conn, streamEnvelope{Type: "error", Error: "agent system failed to process the request"})
			continue
		}

		h.chat.persistRun(ctx, conversationID, payload.Message, final)

		result := buildChatResponse(h.chat.roster, final, conversationID)
		h.send(conn, streamEnvelope{Type: "result", Result: &result})
	}
}

func (h *StreamHandler) send(conn *websocket.Conn, envelope streamEnvelope) {
	if err := conn.WriteJSON(envelope); err != nil {
		h.logger.Warnw("websocket write failed", "error", err)
	}
}
