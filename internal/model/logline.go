// Package model defines the core domain types shared across the backend.
package model

// Source identifies which output stream of the game server a line came from.
type Source string

const (
	SourceStdout Source = "stdout"
	SourceStderr Source = "stderr"
)

// LogLine is a single line of console output captured from the game server.
// It is produced by a line reader, fanned out once by the hub, and not retained.
type LogLine struct {
	Source Source `json:"source"`
	Text   string `json:"text"`
}

// Render returns the line as it is presented to console subscribers.
// Stderr lines carry an "ERROR: " prefix so clients can tell them apart.
func (l LogLine) Render() string {
	if l.Source == SourceStderr {
		return "ERROR: " + l.Text
	}
	return l.Text
}
