package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashSessionKey derives the stable pseudonymous identifier used to group
// snapshots of one transcript session. The raw session key never appears in
// filenames or the manifest.
func HashSessionKey(sessionKey string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sessionKey)))
	return hex.EncodeToString(sum[:8])
}
