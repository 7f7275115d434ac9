package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// Supported content codings, in order of preference
const (
	EncodingBrotli = "br"
	EncodingGzip   = "gzip"
)

// CompressionConfig holds configuration for the compression middleware
type CompressionConfig struct {
	// GzipLevel is the gzip compression level (1-9)
	GzipLevel int
	// BrotliLevel is the brotli compression level (0-11)
	BrotliLevel int
	// MinSize is the minimum response size to compress (in bytes)
	MinSize int
	// ExcludedContentTypes are content type prefixes that are never compressed
	ExcludedContentTypes []string
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		GzipLevel:   gzip.DefaultCompression,
		BrotliLevel: 5,
		MinSize:     1024,
		ExcludedContentTypes: []string{
			"image/",
			"video/",
			"audio/",
			"application/zip",
			"application/gzip",
		},
	}
}

// encoder is the subset shared by gzip.Writer and brotli.Writer
type encoder interface {
	io.WriteCloser
	Flush() error
	Reset(io.Writer)
}

// Compression creates a compression middleware with default configuration
func Compression() Middleware {
	return CompressionWithConfig(DefaultCompressionConfig())
}

// CompressionWithConfig creates a middleware that compresses responses with
// brotli or gzip, whichever the client prefers (brotli on ties).
func CompressionWithConfig(config CompressionConfig) Middleware {
	pools := map[string]*sync.Pool{
		EncodingGzip: {New: func() any {
			w, err := gzip.NewWriterLevel(io.Discard, config.GzipLevel)
			if err != nil {
				w = gzip.NewWriter(io.Discard)
			}
			return w
		}},
		EncodingBrotli: {New: func() any {
			return brotli.NewWriterLevel(io.Discard, config.BrotliLevel)
		}},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Accept-Encoding")

			encoding := NegotiateEncoding(r.Header.Get("Accept-Encoding"))
			if encoding == "" || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			cw := &compressWriter{
				ResponseWriter: w,
				config:         config,
				encoding:       encoding,
				pool:           pools[encoding],
				status:         http.StatusOK,
			}
			defer cw.Close()

			next.ServeHTTP(cw, r)
		})
	}
}

// NegotiateEncoding picks a supported coding from an Accept-Encoding header.
// It returns "" when the client accepts neither.
func NegotiateEncoding(header string) string {
	best, bestQ := "", 0.0
	for _, part := range strings.Split(header, ",") {
		name, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		name = strings.ToLower(strings.TrimSpace(name))

		q := 1.0
		if v, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			parsed, err := strconv.ParseFloat(v, 64)
			if err != nil {
				continue
			}
			q = parsed
		}
		if q <= 0 {
			continue
		}

		candidates := []string{name}
		if name == "*" {
			candidates = []string{EncodingBrotli, EncodingGzip}
		}
		for _, c := range candidates {
			if c != EncodingBrotli && c != EncodingGzip {
				continue
			}
			if q > bestQ || (q == bestQ && c == EncodingBrotli) {
				best, bestQ = c, q
			}
		}
	}
	return best
}

// compressWriter buffers the first MinSize bytes so small responses go out
// uncompressed
type compressWriter struct {
	http.ResponseWriter
	config   CompressionConfig
	encoding string
	pool     *sync.Pool

	status      int
	buf         []byte
	decided     bool
	passthrough bool
	enc         encoder
}

// WriteHeader records the status; it is sent once the coding is decided
func (cw *compressWriter) WriteHeader(status int) {
	if cw.decided {
		return
	}
	cw.status = status
	if status < http.StatusOK || status == http.StatusNoContent || status == http.StatusNotModified {
		cw.startPassthrough()
	}
}

// Write buffers until MinSize bytes are seen, then commits to compressing
func (cw *compressWriter) Write(b []byte) (int, error) {
	if !cw.decided {
		if cw.excluded() {
			cw.startPassthrough()
		} else {
			cw.buf = append(cw.buf, b...)
			if len(cw.buf) < cw.config.MinSize {
				return len(b), nil
			}
			if err := cw.startCompression(); err != nil {
				return 0, err
			}
			return len(b), nil
		}
	}

	if cw.passthrough {
		return cw.ResponseWriter.Write(b)
	}
	return cw.enc.Write(b)
}

// Flush commits to compression and flushes whatever is buffered
func (cw *compressWriter) Flush() {
	if !cw.decided {
		if cw.excluded() {
			cw.startPassthrough()
		} else if err := cw.startCompression(); err != nil {
			return
		}
	}
	if cw.enc != nil {
		_ = cw.enc.Flush()
	}
	if f, ok := cw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Close writes out small buffered responses or finishes the compressed stream
func (cw *compressWriter) Close() error {
	if !cw.decided {
		cw.startPassthrough()
	}
	if cw.enc == nil {
		return nil
	}
	err := cw.enc.Close()
	cw.enc.Reset(io.Discard)
	cw.pool.Put(cw.enc)
	cw.enc = nil
	return err
}

// Unwrap exposes the underlying writer to http.ResponseController
func (cw *compressWriter) Unwrap() http.ResponseWriter {
	return cw.ResponseWriter
}

func (cw *compressWriter) excluded() bool {
	h := cw.Header()
	if h.Get("Content-Encoding") != "" {
		return true
	}
	contentType := h.Get("Content-Type")
	if contentType == "" && len(cw.buf) > 0 {
		contentType = http.DetectContentType(cw.buf)
		h.Set("Content-Type", contentType)
	}
	for _, prefix := range cw.config.ExcludedContentTypes {
		if strings.HasPrefix(contentType, prefix) {
			return true
		}
	}
	return false
}

func (cw *compressWriter) startPassthrough() {
	cw.decided = true
	cw.passthrough = true
	cw.ResponseWriter.WriteHeader(cw.status)
	if len(cw.buf) > 0 {
		_, _ = cw.ResponseWriter.Write(cw.buf)
		cw.buf = nil
	}
}

func (cw *compressWriter) startCompression() error {
	if cw.excluded() {
		cw.startPassthrough()
		return nil
	}
	cw.decided = true

	h := cw.Header()
	h.Set("Content-Encoding", cw.encoding)
	h.Del("Content-Length")
	if etag := h.Get("ETag"); etag != "" && !strings.HasPrefix(etag, "W/") {
		h.Set("ETag", "W/"+etag)
	}
	cw.ResponseWriter.WriteHeader(cw.status)

	cw.enc = cw.pool.Get().(encoder)
	cw.enc.Reset(cw.ResponseWriter)

	buf := cw.buf
	cw.buf = nil
	if len(buf) == 0 {
		return nil
	}
	_, err := cw.enc.Write(buf)
	return err
}
