// File: internal/runner/messages.go
package runner

// MessageKind tags the three outcomes a controller can report.
type MessageKind int

const (
	// MessageStatus is a progress notification with human-readable text.
	MessageStatus MessageKind = iota
	// MessageSuccess carries the extracted citation content.
	MessageSuccess
	// MessageFailure carries the terminal error text.
	MessageFailure
)

func (k MessageKind) String() string {
	switch k {
	case MessageStatus:
		return "status"
	case MessageSuccess:
		return "success"
	case MessageFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Message is one tagged payload delivered to the message sink.
type Message struct {
	Kind MessageKind `json:"kind"`
	Text string      `json:"text"`
}

// MessageSink receives controller progress and outcome messages.
// Delivery is fire-and-forget; the controller never waits on it.
type MessageSink interface {
	Deliver(Message)
}

// SinkFunc adapts a function to the MessageSink interface.
type SinkFunc func(Message)

// Deliver implements MessageSink.
func (f SinkFunc) Deliver(m Message) { f(m) }
