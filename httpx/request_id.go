package httpx

import "github.com/google/uuid"

type RequestIDFunc func() string

type RequestIDConfig struct {
	// Header carries the request id, e.g. "X-Request-ID".
	// If empty, request id injection is disabled.
	Header string

	// New generates an id when the request does not carry one already.
	// DefaultRequestID is used when nil.
	New RequestIDFunc
}

func DefaultRequestIDConfig() RequestIDConfig {
	return RequestIDConfig{
		Header: "X-Request-ID",
		New:    DefaultRequestID,
	}
}

// DefaultRequestID returns a random (version 4) UUID.
func DefaultRequestID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return ""
	}
	return id.String()
}
