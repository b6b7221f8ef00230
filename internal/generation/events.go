package generation

// EventType labels one record in a variant's generation stream.
type EventType string

const (
	EventChunk    EventType = "chunk"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one element of the live generation stream for a single variant.
// Exactly one terminal event (complete or error) ends every stream.
type Event struct {
	Type       EventType `json:"type"`
	Content    string    `json:"content,omitempty"`
	HTMLURL    string    `json:"htmlUrl,omitempty"`
	HTMLPath   string    `json:"htmlPath,omitempty"`
	HTMLLength int       `json:"htmlLength,omitempty"`
	DurationMs int64     `json:"durationMs,omitempty"`
	Model      string    `json:"model,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	Error      string    `json:"error,omitempty"`
}

func chunkEvent(content string) Event {
	return Event{Type: EventChunk, Content: content}
}

func errorEvent(message string) Event {
	return Event{Type: EventError, Error: message}
}
