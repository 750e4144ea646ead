package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/web3-frozen/chain-efficiency/internal/efficiency"
	"github.com/web3-frozen/chain-efficiency/internal/metrics"
	"github.com/web3-frozen/chain-efficiency/internal/monitor"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

// OriginPatterns converts a FRONTEND_ORIGIN value into websocket host patterns.
func OriginPatterns(origins string) []string {
	var out []string
	for _, o := range strings.Split(origins, ",") {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		out = append(out, strings.TrimRight(o, "/"))
	}
	return out
}

// Stream pushes the full state, in the /api/chains shape, on connect and
// after every change.
func Stream(engine *monitor.Engine, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// The server's request timeouts must not apply to a long-lived stream.
		rc := http.NewResponseController(w)
		_ = rc.SetReadDeadline(time.Time{})
		_ = rc.SetWriteDeadline(time.Time{})

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			logger.Warn("stream accept failed", "error", err)
			return
		}
		defer conn.CloseNow() //nolint:errcheck

		metrics.StreamClients.Inc()
		defer metrics.StreamClients.Dec()

		updates, unsubscribe := engine.Subscribe()
		defer unsubscribe()

		// Client messages are ignored; the returned ctx ends when the client goes away.
		ctx := conn.CloseRead(r.Context())

		if err := push(ctx, conn, engine.State()); err != nil {
			return
		}

		ping := time.NewTicker(streamPingInterval)
		defer ping.Stop()

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "") //nolint:errcheck
				return
			case s := <-updates:
				if err := push(ctx, conn, s); err != nil {
					logger.Debug("stream write failed", "error", err)
					return
				}
			case <-ping.C:
				pctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
				err := conn.Ping(pctx)
				cancel()
				if err != nil {
					return
				}
			}
		}
	}
}

func push(ctx context.Context, conn *websocket.Conn, s monitor.State) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, newChainsResponse(s, efficiency.ViewAll, s.Chains))
}
