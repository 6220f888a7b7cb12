package worker

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint computes the content digest of the raw input bytes,
// uppercase hex SHA-256. It is computed locally so integrity reporting
// does not depend on the provider.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
