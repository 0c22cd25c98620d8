// Package metadatabridge mirrors PipeWire default-node metadata into the
// JACK property namespace (spec.md §4.9): the well-known
// "http://jackaudio.org/metadata/default-audio-sink" and "...-source"
// keys whose value is a JSON object of the shape {"name": "<node name>"}.
//
// Grounded on proptable.Table for storage, and on the teacher's
// protocol.go pattern of small explicit structs decoded with
// encoding/json rather than a generic map[string]any walk.
package metadatabridge

import (
	"encoding/json"
	"fmt"

	"jackshim/internal/proptable"
)

// DefaultSinkKey and DefaultSourceKey are the well-known metadata keys
// (spec.md §6).
const (
	DefaultSinkKey   = "http://jackaudio.org/metadata/default-audio-sink"
	DefaultSourceKey = "http://jackaudio.org/metadata/default-audio-source"

	// GlobalSubject is the UUID jack_get_property uses for metadata that
	// is not attached to any specific client or port.
	GlobalSubject uint64 = 0
)

// defaultNodePayload is the JSON body PipeWire publishes for a default
// sink/source change.
type defaultNodePayload struct {
	Name string `json:"name"`
}

// Bridge mirrors PipeWire default-node metadata changes into a
// proptable.Table.
type Bridge struct {
	table *proptable.Table
}

// New returns a Bridge writing into table.
func New(table *proptable.Table) *Bridge {
	return &Bridge{table: table}
}

// SetDefaultSink records a new default audio sink node name.
func (b *Bridge) SetDefaultSink(nodeName string) error {
	return b.setDefaultNode(DefaultSinkKey, nodeName)
}

// SetDefaultSource records a new default audio source node name.
func (b *Bridge) SetDefaultSource(nodeName string) error {
	return b.setDefaultNode(DefaultSourceKey, nodeName)
}

func (b *Bridge) setDefaultNode(key, nodeName string) error {
	payload, err := json.Marshal(defaultNodePayload{Name: nodeName})
	if err != nil {
		return fmt.Errorf("encode default node payload: %w", err)
	}
	return b.table.Set(GlobalSubject, proptable.Property{
		Key:   key,
		Value: string(payload),
		Type:  "application/json",
	}, false)
}

// DefaultSink returns the currently recorded default sink node name, if
// any metadata has been published for it.
func (b *Bridge) DefaultSink() (string, bool) {
	return b.defaultNode(DefaultSinkKey)
}

// DefaultSource returns the currently recorded default source node name.
func (b *Bridge) DefaultSource() (string, bool) {
	return b.defaultNode(DefaultSourceKey)
}

func (b *Bridge) defaultNode(key string) (string, bool) {
	p, ok := b.table.Get(GlobalSubject, key)
	if !ok {
		return "", false
	}
	var payload defaultNodePayload
	if err := json.Unmarshal([]byte(p.Value), &payload); err != nil {
		return "", false
	}
	return payload.Name, true
}
