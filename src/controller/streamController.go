package controller

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"compliance-stream/src/middleware"
	"compliance-stream/src/service"
	"compliance-stream/src/utils"

	"github.com/gin-gonic/gin"
)

// eventID numbers frames across all stream connections so clients get a
// usable Last-Event-ID. There is no replay buffer; a reconnecting client is
// expected to re-fetch authoritative task state.
var eventID atomic.Int64

type StreamController struct {
	Hub               *service.Hub
	KeepaliveInterval time.Duration
}

func NewStreamController(hub *service.Hub, keepaliveInterval time.Duration) *StreamController {
	return &StreamController{
		Hub:               hub,
		KeepaliveInterval: keepaliveInterval,
	}
}

// Stream godoc
// @Summary task update stream
// @Param token query string true "Bearer token"
// @Schemes
// @Description long-lived text/event-stream pushing connected, task_update and keepalive frames
// @Tags stream
// @Produce text/event-stream
// @Success 200
// @Failure 401 {object} schemas.ErrorResponse
// @Router /task-stream/ [get]
func (sc *StreamController) Stream(ctx *gin.Context) {
	flusher, ok := ctx.Writer.(http.Flusher)
	if !ok {
		utils.SendError(ctx, http.StatusInternalServerError, "Internal Error", "Streaming not supported", "/task-stream/")
		return
	}

	user := middleware.UserFromContext(ctx)
	if user == nil {
		utils.SendError(ctx, http.StatusUnauthorized, "Unauthorized", "No authenticated user", "/task-stream/")
		return
	}

	// Subscribe before the response goes out so no update broadcast after
	// the client sees the open can be missed.
	subscriberID, updates := sc.Hub.Subscribe()
	defer sc.Hub.Unsubscribe(subscriberID)

	ctx.Writer.Header().Set("Content-Type", "text/event-stream")
	ctx.Writer.Header().Set("Cache-Control", "no-cache")
	ctx.Writer.Header().Set("Connection", "keep-alive")
	ctx.Writer.WriteHeader(http.StatusOK)

	slog.Info("Task stream opened", "user_id", user.ID, "subscriber_id", subscriberID)

	// Handshake confirmation frame. Informational for the client, it keys
	// its connection state off the transport open, not off this frame.
	handshake, _ := json.Marshal(gin.H{"user_id": user.ID, "username": user.Username})
	writeFrame(ctx.Writer, flusher, "connected", string(handshake))

	keepalive := time.NewTicker(sc.KeepaliveInterval)
	defer keepalive.Stop()

	clientGone := ctx.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			slog.Info("Task stream closed by client", "subscriber_id", subscriberID)
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(update)
			if err != nil {
				slog.Error("Failed to marshal task update", "error", err)
				continue
			}
			writeFrame(ctx.Writer, flusher, "task_update", string(data))
		case <-keepalive.C:
			writeFrame(ctx.Writer, flusher, "keepalive", "{}")
		}
	}
}

func writeFrame(w gin.ResponseWriter, flusher http.Flusher, event, data string) {
	fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", event, eventID.Add(1), data)
	flusher.Flush()
}
