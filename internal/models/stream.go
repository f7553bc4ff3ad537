package models

// StreamEvent is the payload of a single push-stream event. A stream carries any number of text fragments
// and ends with either an error or a done marker, or simply by the server closing the connection.
type StreamEvent struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
	Done  bool   `json:"done,omitempty"`
}

// Terminal reports whether the event ends the stream.
func (e StreamEvent) Terminal() bool {
	return e.Error != "" || e.Done
}
