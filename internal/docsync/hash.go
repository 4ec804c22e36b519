package docsync

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// NormalizeSource strips a UTF-8 byte order mark and converts CRLF and lone
// CR line endings to LF, so the same document hashes identically regardless
// of the checkout platform.
func NormalizeSource(data []byte) []byte {
	data = bytes.TrimPrefix(data, utf8BOM)
	if bytes.IndexByte(data, '\r') < 0 {
		return data
	}
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	return bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))
}

// SourceHash is the hex SHA-256 of the normalized source bytes.
func SourceHash(data []byte) string {
	sum := sha256.Sum256(NormalizeSource(data))
	return hex.EncodeToString(sum[:])
}

// hashBase64 returns an URL-safe, unpadded base64 SHA-256 of s.
func hashBase64(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// CacheTags returns the tags whose cached renderings depend on rec.
func (rec *ContentRecord) CacheTags() []string {
	tags := []string{
		"content:" + rec.Locale + ":" + rec.ExternalID,
		"content:relative_pathname:" + hashBase64(rec.RelativePathname),
	}
	if rec.Category != nil && rec.Category.Area != "" {
		tags = append(tags, "content_category:"+hashBase64(rec.Category.Area))
	}
	return tags
}
