package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/juju/collections/set"
	"go.uber.org/zap"

	"adminhub/internal/auth"
	"adminhub/internal/ws"
)

// upgrader admits the configured portal origins, or any origin when none
// are configured.
func (d Dependencies) upgrader() websocket.Upgrader {
	allowed := set.NewStrings()
	for _, o := range d.AllowedOrigins {
		allowed.Add(strings.TrimSuffix(o, "/"))
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowed.IsEmpty() || origin == "" || allowed.Contains(origin)
		},
	}
}

func (d Dependencies) wsHandler(w http.ResponseWriter, r *http.Request) {
	if d.Hub == nil {
		d.Log.Error("WebSocket hub not initialized")
		http.Error(w, "WebSocket hub not initialized", http.StatusInternalServerError)
		return
	}

	userID := auth.GetUserID(r.Context())
	upgrader := d.upgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.Log.Warn("Failed to upgrade connection", zap.String("user", userID), zap.Error(err))
		return
	}
	d.Log.Info("WebSocket connected", zap.String("user", userID), zap.String("remote", r.RemoteAddr))

	wsConn := ws.NewConn(conn, d.Hub, userID)
	d.Hub.Register(wsConn)

	// the request context ends when this handler returns
	ctx := context.WithoutCancel(r.Context())
	go wsConn.WritePump()
	go wsConn.ReadPump(ctx)
}
