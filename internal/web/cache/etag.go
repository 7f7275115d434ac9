package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

// ETag returns a strong validator for content
func ETag(content []byte) string {
	sum := sha256.Sum256(content)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// ETagFromParts returns a strong validator derived from metadata, e.g. a blob
// key, size and modification time, without hashing the content
func ETagFromParts(parts ...string) string {
	return `"` + HashKey(parts...) + `"`
}

// matchesETag reports whether an If-None-Match header matches etag using weak
// comparison
func matchesETag(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "*" {
		return true
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == want {
			return true
		}
	}
	return false
}

// NotModified sets validators on w and writes 304 when the request's
// conditional headers match. It returns true when the response is complete.
func NotModified(w http.ResponseWriter, r *http.Request, etag string, lastModified time.Time) bool {
	if etag != "" {
		w.Header().Set("ETag", etag)
	}
	if !lastModified.IsZero() {
		w.Header().Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}

	if inm := r.Header.Get("If-None-Match"); inm != "" {
		if etag != "" && matchesETag(inm, etag) {
			w.WriteHeader(http.StatusNotModified)
			return true
		}
		return false
	}

	if ims := r.Header.Get("If-Modified-Since"); ims != "" && !lastModified.IsZero() {
		since, err := http.ParseTime(ims)
		if err == nil && !lastModified.Truncate(time.Second).After(since) {
			w.WriteHeader(http.StatusNotModified)
			return true
		}
	}
	return false
}
