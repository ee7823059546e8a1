package ws

// server - client
const (
	MsgReady = "ready"
	MsgError = "error"
)

// Message is the envelope every push is wrapped in.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}
