package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"field-sync-service/internal/logger"
	"field-sync-service/internal/sync"
)

const eventWriteTimeout = 5 * time.Second

// SyncEvents streams the engine state over a websocket: the current state
// on connect, then every change. A slow client only sees the latest state.
func (h *Handler) SyncEvents(w http.ResponseWriter, r *http.Request) {
	patterns := h.cfg.CorsOrigins
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}

	// The server's write timeout must not cut a long-lived stream.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: patterns,
	})
	if err != nil {
		logger.Log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	updates := make(chan sync.State, 1)
	unsubscribe := h.syncManager.Subscribe(func(s sync.State) {
		for {
			select {
			case updates <- s:
				return
			default:
			}
			// Drop the stale state and retry with the newer one.
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	// We never read client messages; CloseRead handles control frames and
	// cancels ctx when the client goes away.
	ctx := conn.CloseRead(r.Context())

	logger.Log.Debug("Sync event client connected")

	if err := writeState(ctx, conn, h.syncManager.State()); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			logger.Log.Debug("Sync event client disconnected")
			return
		case s := <-updates:
			if err := writeState(ctx, conn, s); err != nil {
				logger.Log.Debug("Sync event write failed", zap.Error(err))
				return
			}
		}
	}
}

func writeState(ctx context.Context, conn *websocket.Conn, s sync.State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
