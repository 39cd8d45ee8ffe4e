package types

import "time"

// Change operations carried in ChangeEvent.Op.
const (
	OpWrite = "write"
)

// Feed message kinds carried in Message.Event.
const (
	EventHello  = "hello"
	EventChange = "change"
)

// WriteResult is the body returned by a successful POST /data/<path>.
type WriteResult struct {
	Success bool `json:"success"`
}

// ChangeEvent describes one successful document write.
type ChangeEvent struct {
	Op string `json:"op"`

	// Path is the document path relative to the data root, slash-separated
	// (e.g. "orders/2024.json").
	Path string `json:"path"`

	// Size is the number of bytes written to disk.
	Size int `json:"size"`

	At time.Time `json:"at"`
}

// Hello is the first payload sent to a feed client after it connects.
type Hello struct {
	Time  time.Time `json:"time"`
	Match string    `json:"match,omitempty"`
}

// Message is the JSON envelope for every WebSocket feed frame. Data holds a
// Hello for EventHello and a ChangeEvent for EventChange.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}
