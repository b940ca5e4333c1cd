package store

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// Pagination cursors are opaque to callers: base64url over
// "v1|<RFC3339Nano timestamp>|<log_id>", the position of the last record the
// caller has seen. The version prefix lets the encoding change without
// breaking tokens already handed out.

const cursorVersion = "v1"

// EncodeCursor packs a scan position into an opaque token.
func EncodeCursor(ts time.Time, logID string) string {
	raw := cursorVersion + "|" + ts.UTC().Format(time.RFC3339Nano) + "|" + logID
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor unpacks a token produced by EncodeCursor. Anything else yields
// ErrInvalidCursor.
func DecodeCursor(token string) (time.Time, string, error) {
	decoded, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	parts := strings.SplitN(string(decoded), "|", 3)
	if len(parts) != 3 || parts[0] != cursorVersion || parts[2] == "" {
		return time.Time{}, "", fmt.Errorf("%w: malformed token", ErrInvalidCursor)
	}
	ts, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: bad timestamp: %v", ErrInvalidCursor, err)
	}
	return ts, parts[2], nil
}
