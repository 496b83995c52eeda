package gateway

// ChatRequest is the JSON body of a chat call, blocking or streamed.
type ChatRequest struct {
	RequestID      string `json:"request_id,omitempty"`
	Input          string `json:"input"`
	ConversationID string `json:"conversation_id,omitempty"`
	FocusMessageID string `json:"focus_message_id,omitempty"`
	Provider       string `json:"provider,omitempty"`
	Model          string `json:"model,omitempty"`

	// StreamGranularity controls delta sizing on the streaming path:
	// "chunk" (default) passes provider chunks through, "char" re-splits
	// them into single runes.
	StreamGranularity string `json:"stream_granularity,omitempty"`
}

// ErrorResponse is the JSON error body for REST endpoints and the terminal
// frame of a failed stream.
type ErrorResponse struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

// EventMessage wraps a broadcast notification to /ws/events subscribers.
type EventMessage struct {
	Type      string                 `json:"type"`
	Event     string                 `json:"event"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp int64                  `json:"timestamp"`
	Seq       int64                  `json:"seq"`
}
