package utils

import (
	"fmt"

	"github.com/google/uuid"
)

// GenerateSessionID generates a unique session ID.
func GenerateSessionID() string {
	return fmt.Sprintf("session_%s", uuid.NewString())
}

// GeneratePeerID generates a unique peer ID.
func GeneratePeerID() string {
	return fmt.Sprintf("peer_%s", uuid.NewString())
}

// GenerateTraceID generates a unique trace ID.
func GenerateTraceID() string {
	return uuid.NewString()
}
