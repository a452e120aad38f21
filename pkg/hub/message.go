// Package hub fans published overlay snapshots out to render clients over
// websockets, using a channel-based broadcast loop.
package hub

// Message is one pre-encoded JSON text frame for clients.
type Message struct {
	Data []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}
