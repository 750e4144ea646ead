package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func TestOriginPatterns(t *testing.T) {
	got := OriginPatterns("*")
	if !reflect.DeepEqual(got, []string{"*"}) {
		t.Errorf("OriginPatterns(*) = %v", got)
	}
	got = OriginPatterns("https://dash.example/, https://*.vercel.app")
	if !reflect.DeepEqual(got, []string{"dash.example", "*.vercel.app"}) {
		t.Errorf("OriginPatterns(list) = %v", got)
	}
}

func TestStream(t *testing.T) {
	engine := newTestEngine(&mockUpstream{})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(Stream(engine, []string{"*"}, logger))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow() //nolint:errcheck

	var first decodedChains
	if err := wsjson.Read(ctx, conn, &first); err != nil {
		t.Fatalf("read initial state: %v", err)
	}
	if len(first.Chains) != 0 || first.View != "all" {
		t.Errorf("initial state = %+v", first)
	}

	if err := engine.Refresh(ctx); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	for {
		var msg decodedChains
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			t.Fatalf("read update: %v", err)
		}
		if msg.Loading {
			continue
		}
		if len(msg.Chains) != 3 || msg.RunID == "" || msg.Chains[0].Tier == "" {
			t.Errorf("pushed state = %+v", msg)
		}
		break
	}

	conn.Close(websocket.StatusNormalClosure, "") //nolint:errcheck
}
