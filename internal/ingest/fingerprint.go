package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint computes the content fingerprint for dedup: a sha256 over the
// normalized title, body, and source. Two entries with the same normalized
// identity fields collapse to one article regardless of which feed carried
// them.
func Fingerprint(title, body, source string) string {
	h := sha256.New()
	h.Write([]byte(normalize(title)))
	h.Write([]byte{'|'})
	h.Write([]byte(normalize(body)))
	h.Write([]byte{'|'})
	h.Write([]byte(normalize(source)))
	return hex.EncodeToString(h.Sum(nil))
}

// normalize lowercases and collapses whitespace so cosmetic differences
// between feeds do not defeat dedup.
func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
