// Package relaymonitor implements the optional live-tap surface
// (spec.md SPEC_FULL.md §6.8): a relay.FrameSink that fans every logged
// frame out to connected websocket clients, and an mDNS advertisement so
// a LAN-local viewer can find the session without being told its address.
package relaymonitor

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"

	"github.com/dotside-studios/nfcrelay/relay"
)

// serviceType is the mDNS service type advertised for a running hub.
const serviceType = "_nfcrelay._tcp"

// Hub is a relay.FrameSink that broadcasts frames to any number of
// websocket subscribers. Emit never blocks on a slow subscriber: each
// subscriber has a bounded outbox, and a full outbox drops the frame
// rather than stalling the relay loop, per FrameSink's contract.
type Hub struct {
	Logger   *log.Logger
	upgrader websocket.Upgrader

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

type subscriber struct {
	outbox chan []byte
	done   chan struct{}
}

// NewHub returns an empty Hub ready to be handed to http.Handle as a
// websocket endpoint and to relay.RelayEngine.Sink.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		Logger: logger,
		subs:   make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// frameMessage is the JSON shape pushed to subscribers: the same field
// names FrameLog persists, plus a session field. Emit does not fill the
// session field, so it is always sent as an empty string.
type frameMessage struct {
	Session     string `json:"session"`
	Index       int    `json:"index"`
	Time        float64 `json:"time"`
	Data        string `json:"data"`
	Result      int    `json:"result"`
	Direction   string `json:"direction"`
	EasyFraming bool   `json:"easy_framing"`
}

// Emit implements relay.FrameSink. Called synchronously from the relay
// loop; it must return immediately.
func (h *Hub) Emit(f relay.Frame) {
	msg := frameMessage{
		Index:       f.Index,
		Time:        f.Time,
		Data:        hexEncode(f.Data),
		Result:      f.Result,
		Direction:   string(f.Direction),
		EasyFraming: f.EasyFraming,
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.Logger.Printf("relaymonitor: marshal frame: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		select {
		case s.outbox <- payload:
		default:
			// outbox full: drop this frame for this subscriber rather
			// than block the relay loop.
		}
	}
}

// ServeHTTP upgrades the request to a websocket and streams frames to it
// until the client disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Printf("relaymonitor: upgrade failed: %v", err)
		return
	}

	sub := &subscriber{outbox: make(chan []byte, 64), done: make(chan struct{})}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.subs, sub)
		h.mu.Unlock()
		_ = conn.Close()
	}()

	go h.drainClientReads(conn, sub)

	for {
		select {
		case payload := <-sub.outbox:
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-sub.done:
			return
		}
	}
}

// drainClientReads discards inbound client messages (this is a one-way
// broadcast) and closes sub.done once the client disconnects, so
// ServeHTTP's write loop can return.
func (h *Hub) drainClientReads(conn *websocket.Conn, sub *subscriber) {
	defer close(sub.done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Advertise registers the hub's websocket endpoint on the LAN via mDNS so
// a viewer on the same network segment can discover it without a
// pre-shared address. The returned zeroconf.Server must be Shutdown by
// the caller when the session ends.
func Advertise(instance string, port int) (*zeroconf.Server, error) {
	return zeroconf.Register(instance, serviceType, "local.", port, []string{"path=/frames"}, nil)
}

func hexEncode(b []byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hextable[c>>4]
		out[i*2+1] = hextable[c&0x0f]
	}
	return string(out)
}

var _ relay.FrameSink = (*Hub)(nil)
