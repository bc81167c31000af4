package uuid

import (
	google_uuid "github.com/google/uuid"
)

// MustUUID returns a random UUID string. It is used
// for temp store names and request ids.
func MustUUID() string {
	return google_uuid.New().String()
}

// RequestID returns a new id to correlate the log lines
// of one request, or the given id if it is already a valid UUID
func RequestID(given string) string {
	if _, err := google_uuid.Parse(given); err == nil {
		return given
	}

	return MustUUID()
}
