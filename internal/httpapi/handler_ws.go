package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"pbxbridge/internal/hub"
	"pbxbridge/internal/router"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The fronting admin application terminates user auth; the bridge
	// is not exposed directly.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SupervisorSocketHandler upgrades a dashboard connection and joins it
// to the supervisor broadcast room.
func SupervisorSocketHandler(h *hub.Hub, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("Websocket upgrade failed")
			return
		}

		h.Join(router.SupervisorRoom, conn)
	}
}
