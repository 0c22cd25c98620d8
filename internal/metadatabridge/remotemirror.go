package metadatabridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

// remoteMsg is the wire shape the remote mirror exchanges: a PipeWire
// default-node change pushed as JSON over a persistent connection,
// structurally the same small-JSON-record-per-event traffic the teacher's
// control-plane channel carries (client/transport.go's ControlMsg).
type remoteMsg struct {
	Kind     string `json:"kind"` // "default_sink" or "default_source"
	NodeName string `json:"node_name"`
}

// RemoteMirror listens for default-node change notifications pushed by a
// remote PipeWire session manager over a WebSocket connection and applies
// them to a Bridge. Stands in for the real client-node protocol's metadata
// event stream in contexts where the shim runs detached from the local
// PipeWire daemon (e.g. a jackshim-demo instance mirroring a remote rig).
type RemoteMirror struct {
	bridge   *Bridge
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// NewRemoteMirror returns a mirror that writes into bridge.
func NewRemoteMirror(bridge *Bridge, logger *slog.Logger) *RemoteMirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteMirror{
		bridge: bridge,
		log:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(_ *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and applies every remoteMsg it receives
// until the peer disconnects or ctx is canceled.
func (m *RemoteMirror) ServeHTTP(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("remotemirror: upgrade: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var msg remoteMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return nil
		}
		if err := m.apply(msg); err != nil {
			m.log.Warn("remote mirror: dropping malformed message", "error", err)
			continue
		}
	}
}

func (m *RemoteMirror) apply(msg remoteMsg) error {
	switch msg.Kind {
	case "default_sink":
		return m.bridge.SetDefaultSink(msg.NodeName)
	case "default_source":
		return m.bridge.SetDefaultSource(msg.NodeName)
	default:
		return fmt.Errorf("unknown remote mirror message kind %q", msg.Kind)
	}
}

// PushDefaultSink is the client-side half: dial addr and send one
// default-sink change as a remoteMsg. Used by tests and by out-of-process
// session managers that want to push a single update without holding a
// long-lived connection open.
func PushDefaultSink(ctx context.Context, addr, nodeName string) error {
	return pushOne(ctx, addr, remoteMsg{Kind: "default_sink", NodeName: nodeName})
}

// PushDefaultSource mirrors PushDefaultSink for the default-source key.
func PushDefaultSource(ctx context.Context, addr, nodeName string) error {
	return pushOne(ctx, addr, remoteMsg{Kind: "default_source", NodeName: nodeName})
}

func pushOne(ctx context.Context, addr string, msg remoteMsg) error {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("remotemirror: dial: %w", err)
	}
	defer conn.Close()

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("remotemirror: encode: %w", err)
	}
	return conn.WriteMessage(websocket.TextMessage, body)
}
