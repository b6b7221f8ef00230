package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"variantforge/internal/domain"
)

const (
	watchWSWriteWait = 10 * time.Second
	watchWSPongWait  = 60 * time.Second
	watchWSPingEvery = (watchWSPongWait * 9) / 10
	watchPollEvery   = 1 * time.Second
)

var watchWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

// handleWatchWS pushes session snapshots over a websocket until the session
// completes or the client goes away. The aggregator keeps the store
// authoritative, so polling it is enough for a consistent progress view.
func (h *Handler) handleWatchWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		http.Error(w, "session id required", http.StatusBadRequest)
		return
	}
	if _, err := h.svc.Snapshot(r.Context(), sessionID); err != nil {
		h.writeError(w, err)
		return
	}

	conn, err := watchWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(watchWSPongWait)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(watchWSPongWait))
	})

	// Reader exists only to surface close frames and keep pong handling alive.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	pings := time.NewTicker(watchWSPingEvery)
	defer pings.Stop()
	polls := time.NewTicker(watchPollEvery)
	defer polls.Stop()

	push := func() (done bool) {
		snap, err := h.svc.Snapshot(ctx, sessionID)
		if err != nil {
			h.logger.Warn("watch snapshot failed",
				zap.String("session_id", sessionID), zap.Error(err))
			return true
		}
		if err := conn.SetWriteDeadline(time.Now().Add(watchWSWriteWait)); err != nil {
			return true
		}
		if err := conn.WriteJSON(snap); err != nil {
			return true
		}
		return snap.Session.Status == domain.SessionComplete
	}

	if push() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-polls.C:
			if push() {
				return
			}
		case <-pings.C:
			if err := conn.SetWriteDeadline(time.Now().Add(watchWSWriteWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
