package consent

import (
	"strings"

	"github.com/google/uuid"
)

// syntheticPrefix marks client ids already replaced by the user-data
// policy, which keeps repeated application from re-deriving new ids.
const syntheticPrefix = "anon-"

// pseudonymSpace is the UUIDv5 namespace for session-scoped synthetic
// client ids. Fixed so the same session always maps to the same
// pseudonym within its lifetime.
var pseudonymSpace = uuid.MustParse("8c6f5a1e-2b34-4d8a-9c41-77e0c2d4f9b3")

// SyntheticClientID derives a session-scoped replacement for a
// persistent client id. Deterministic in the seed.
func SyntheticClientID(seed string) string {
	return syntheticPrefix + uuid.NewSHA1(pseudonymSpace, []byte(seed)).String()
}

// IsSynthetic reports whether a client id was produced by
// SyntheticClientID.
func IsSynthetic(clientID string) bool {
	return strings.HasPrefix(clientID, syntheticPrefix)
}
