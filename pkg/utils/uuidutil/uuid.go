package uuidutil

import (
	"encoding/base64"
	"encoding/hex"
	"github.com/google/uuid"
)

// UUID returns a random v4 uuid as 32 hex digits.
func UUID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// ShortUUID returns a random v4 uuid in 22 url safe characters, short enough
// for MQTT 3.1 client ids.
func ShortUUID() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}
