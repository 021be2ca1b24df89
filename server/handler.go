package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nathoo/parley/engine/codec"
	"github.com/nathoo/parley/types"
)

const (
	writeWait = 10 * time.Second
	// maxFrameSize bounds one inbound client frame. Client frames carry at
	// most an NPC ref or a session id.
	maxFrameSize = 4096
)

// Handler upgrades /ws?id=<player>[&asset=1] requests and pumps frames
// between the connection and the hub. With asset=1 the client holds the
// dialogue asset and receives pages without text.
type Handler struct {
	hub      *Hub
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler returns a websocket handler for hub.
func NewHandler(hub *Hub, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		hub: hub,
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// NewMux serves the websocket endpoint, a health check and, when assetPath
// is set, the dialogue asset for clients that render text themselves.
func NewMux(hub *Hub, assetPath string, log *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", NewHandler(hub, log))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})
	if assetPath != "" {
		mux.HandleFunc("/asset", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/octet-stream")
			http.ServeFile(w, r, assetPath)
		})
	}
	return mux
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	player := types.EntityRef(r.URL.Query().Get("id"))
	if player == "" {
		http.Error(w, "missing id", http.StatusBadRequest)
		return
	}
	withText := r.URL.Query().Get("asset") != "1"

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.String("player", string(player)), zap.Error(err))
		return
	}

	sub := h.hub.Subscribe(player, withText)
	h.log.Info("player connected", zap.String("player", string(player)), zap.Bool("text", withText))

	go h.writeLoop(conn, sub)
	h.readLoop(conn, sub)

	h.hub.Unsubscribe(sub)
	h.log.Info("player disconnected", zap.String("player", string(player)))
}

func (h *Handler) readLoop(conn *websocket.Conn, sub *Subscriber) {
	conn.SetReadLimit(maxFrameSize)
	for {
		kind, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.BinaryMessage {
			h.reply(sub, "binary frames only")
			continue
		}
		f, err := codec.DecodeFrame(payload)
		if err != nil {
			h.log.Debug("discarding malformed frame", zap.String("player", string(sub.player)), zap.Error(err))
			h.reply(sub, err.Error())
			continue
		}

		switch f := f.(type) {
		case codec.Start:
			err = h.hub.Start(sub.player, f.NPC)
		case codec.Select:
			err = h.hub.Select(sub.player, f.Session, int(f.Index))
		case codec.End:
			err = h.hub.End(sub.player, f.Session)
		default:
			h.reply(sub, "unexpected "+f.Op().String()+" from client")
			continue
		}
		if err != nil {
			h.reply(sub, err.Error())
		}
	}
}

func (h *Handler) reply(sub *Subscriber, msg string) {
	h.hub.deliver(sub, codec.Error{Message: msg})
}

func (h *Handler) writeLoop(conn *websocket.Conn, sub *Subscriber) {
	defer conn.Close()
	for {
		select {
		case <-sub.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case f := <-sub.Frames():
			data, err := codec.EncodeFrame(f)
			if err != nil {
				h.log.Warn("failed to encode frame", zap.String("op", f.Op().String()), zap.Error(err))
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
				h.log.Debug("write failed", zap.String("player", string(sub.player)), zap.Error(err))
				return
			}
		}
	}
}
