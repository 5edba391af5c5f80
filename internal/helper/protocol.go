// protocol.go defines the messages a root script exchanges with the daemon.
// Requests travel as command files on the directory channel and responses come
// back as response files. Both are single JSON objects, which keeps them
// inside the channel's "starts with { and ends with }" completeness check.
package helper

import "encoding/json"

// RequestType identifies what the privileged side is asking for.
type RequestType string

const (
	// RequestTypePing checks that the daemon is consuming commands.
	RequestTypePing RequestType = "ping"

	// RequestTypeEcho returns the payload unchanged.
	RequestTypeEcho RequestType = "echo"

	// RequestTypeStatus returns daemon status.
	RequestTypeStatus RequestType = "status"

	// RequestTypeNotify delivers a one-way message to the daemon's log.
	RequestTypeNotify RequestType = "notify"

	// RequestTypeHost returns the daemon's host, kernel and process identity.
	RequestTypeHost RequestType = "host"
)

// Request is written by the privileged side.
type Request struct {
	Type    RequestType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is written back by the daemon.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Output  json.RawMessage `json:"output,omitempty"`
}
