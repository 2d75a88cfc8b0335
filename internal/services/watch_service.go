package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
)

// pendingChannel is the Redis pub/sub channel carrying pending-queue changes.
const pendingChannel = "pending_transactions"

// PendingEvent is one change to the pending queue, broadcast to admin
// dashboards so they can refresh without polling.
type PendingEvent struct {
	Event         string `json:"event"`
	TransactionID string `json:"transactionId,omitempty"`
	MemberID      string `json:"memberId,omitempty"`
	Type          string `json:"type,omitempty"`
	Amount        int64  `json:"amount,omitempty"`
}

// WatchService streams pending-queue changes to connected admins over
// server-sent events, fanned out through Redis pub/sub so every server
// instance sees every event.
type WatchService struct {
	redis *redis.Client
}

func NewWatchService(redisClient *redis.Client) *WatchService {
	return &WatchService{redis: redisClient}
}

// PublishPendingEvent broadcasts one event. Best effort: without Redis the
// dashboards fall back to manual refresh.
func (s *WatchService) PublishPendingEvent(ctx context.Context, event PendingEvent) {
	if s.redis == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("[WATCH] Failed to marshal event: %v", err)
		return
	}

	if err := s.redis.Publish(ctx, pendingChannel, data).Err(); err != nil {
		log.Printf("[WATCH] Failed to publish event: %v", err)
	}
}

// StreamPending streams pending-queue events
// @Summary Watch the pending queue
// @Description Server-sent event stream of pending transaction changes
// @Tags admin
// @Produce text/event-stream
// @Security BearerAuth
// @Success 200 {string} string "SSE stream"
// @Router /admin/pending/watch [get]
func (s *WatchService) StreamPending(w http.ResponseWriter, r *http.Request) {
	if s.redis == nil {
		SendErrorResponse(w, "Live updates are unavailable", http.StatusServiceUnavailable, nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		SendErrorResponse(w, "Streaming is not supported", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := s.redis.Subscribe(r.Context(), pendingChannel)
	defer sub.Close()

	log.Printf("[WATCH] Admin connected to pending stream from %s", r.RemoteAddr)

	// Heartbeat keeps intermediaries from closing an idle stream.
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	ch := sub.Channel()
	for {
		select {
		case <-r.Context().Done():
			log.Printf("[WATCH] Admin disconnected from pending stream")
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case msg, open := <-ch:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg.Payload)
			flusher.Flush()
		}
	}
}
