package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sagara-io/crflow/internal/cr/sse"
)

// SSEHandler SSE 推送处理器
type SSEHandler struct {
	logger *zap.Logger
}

func NewSSEHandler(logger *zap.Logger) *SSEHandler {
	return &SSEHandler{logger: logger}
}

// Stream GET /sse/stream
func (h *SSEHandler) Stream(c *gin.Context) {
	userID := GetUserID(c)
	if userID == "" {
		Unauthorized(c, "Authorization is required")
		return
	}

	clientID := fmt.Sprintf("%s_%d", userID, time.Now().UnixNano())
	client := &sse.Client{
		ID:     clientID,
		UserID: userID,
		Events: make(chan sse.Event, 16),
	}

	sse.GlobalHub.Register(client)
	defer sse.GlobalHub.Unregister(clientID)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		InternalError(c, "streaming unsupported")
		return
	}

	// 连接确认事件
	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"clientId\":%q}\n\n", clientID)
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			flusher.Flush()
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			data, err := json.Marshal(event.Data)
			if err != nil {
				h.logger.Warn("marshal sse event", zap.Error(err))
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.EventType, data)
			flusher.Flush()
		}
	}
}
