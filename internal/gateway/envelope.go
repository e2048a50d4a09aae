package gateway

import (
	"time"
)

// Envelope is the uniform response shape every tool operation returns,
// regardless of transport.
type Envelope struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
	Details   any       `json:"details,omitempty"`
}

func ok(message string, data any) Envelope {
	return Envelope{
		Success:   true,
		Message:   message,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

func fail(err error, details any) Envelope {
	return Envelope{
		Success:   false,
		Error:     err.Error(),
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
}
