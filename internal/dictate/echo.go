package dictate

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

// EchoHandler answers every frame with the same text followed by "!". It is
// a connectivity probe for clients.
func EchoHandler(allowedOrigins []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns:     allowedOrigins,
			InsecureSkipVerify: len(allowedOrigins) == 0,
		})
		if err != nil {
			slog.Warn("echo: websocket accept failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		defer func() { _ = ws.CloseNow() }()

		ctx := r.Context()
		for {
			typ, msg, err := ws.Read(ctx)
			if err != nil {
				slog.Debug("echo: client disconnected", "err", err)
				return
			}
			if err := ws.Write(ctx, typ, append(msg, '!')); err != nil {
				slog.Debug("echo: write failed", "err", err)
				return
			}
		}
	})
}
