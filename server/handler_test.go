package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nathoo/parley/engine/codec"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, f codec.Frame) {
	t.Helper()
	data, err := codec.EncodeFrame(f)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func recv(t *testing.T, conn *websocket.Conn) codec.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if kind != websocket.BinaryMessage {
		t.Fatalf("message type = %d, want binary", kind)
	}
	f, err := codec.DecodeFrame(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return f
}

func startServer(t *testing.T, assetPath string) *httptest.Server {
	t.Helper()
	h := testHub(t)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	srv := httptest.NewServer(NewMux(h, assetPath, nil))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

func TestHandler_Conversation(t *testing.T) {
	srv := startServer(t, "")
	conn := dial(t, srv, "id=player")

	send(t, conn, codec.Start{NPC: "guard"})
	pe, ok := recv(t, conn).(codec.PageEntered)
	if !ok || pe.Text != "Hello" || len(pe.Responses) != 2 {
		t.Fatalf("frame = %#v, want greeting page", pe)
	}

	send(t, conn, codec.Select{Session: pe.Session, Index: 1})
	f := recv(t, conn)
	if ce, ok := f.(codec.ConversationEnded); !ok || ce.Session != pe.Session {
		t.Errorf("frame = %#v, want ConversationEnded", f)
	}
}

func TestHandler_AssetMode(t *testing.T) {
	srv := startServer(t, "")
	conn := dial(t, srv, "id=player&asset=1")

	send(t, conn, codec.Start{NPC: "guard"})
	pe, ok := recv(t, conn).(codec.PageEntered)
	if !ok || pe.HasText || pe.Text != "" {
		t.Errorf("frame = %#v, want page without text", pe)
	}
}

func TestHandler_BadInput(t *testing.T) {
	srv := startServer(t, "")
	conn := dial(t, srv, "id=player")

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatal(err)
	}
	if f, ok := recv(t, conn).(codec.Error); !ok || f.Message != "binary frames only" {
		t.Errorf("frame = %#v, want binary frames error", f)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{codec.Protocol, 0x7F}); err != nil {
		t.Fatal(err)
	}
	if f, ok := recv(t, conn).(codec.Error); !ok || !strings.Contains(f.Message, "unknown op") {
		t.Errorf("frame = %#v, want unknown op error", f)
	}

	send(t, conn, codec.Error{Message: "from client"})
	if f, ok := recv(t, conn).(codec.Error); !ok || !strings.Contains(f.Message, "unexpected") {
		t.Errorf("frame = %#v, want unexpected op error", f)
	}
}

func TestHandler_OversizedFrame(t *testing.T) {
	srv := startServer(t, "")
	conn := dial(t, srv, "id=player")

	big := make([]byte, 2*maxFrameSize)
	big[0] = codec.Protocol
	if err := conn.WriteMessage(websocket.BinaryMessage, big); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseMessageTooBig) {
		t.Errorf("err = %v, want close %d", err, websocket.CloseMessageTooBig)
	}
}

func TestHandler_MissingID(t *testing.T) {
	srv := startServer(t, "")
	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestMux_HealthAndAsset(t *testing.T) {
	path := writeAsset(t, t.TempDir(), "Hello")
	srv := startServer(t, path)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("health = %q, want ok", body)
	}

	resp, err = http.Get(srv.URL + "/asset")
	if err != nil {
		t.Fatal(err)
	}
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.HasPrefix(string(body), codec.Magic) {
		t.Errorf("asset does not start with %q", codec.Magic)
	}
}
