// Package static serves embedded assets with validators and long-lived cache
// headers for fingerprinted URLs.
package static

import (
	"bytes"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/showroom-auto/showroom/internal/web/cache"
)

// FileServerConfig holds configuration for the static file server
type FileServerConfig struct {
	// Prefix is the URL prefix to strip (e.g., "/static")
	Prefix string

	// MaxAge applies to URLs without a matching version parameter
	MaxAge time.Duration

	// ImmutableMaxAge applies to URLs whose "v" parameter matches the asset hash
	ImmutableMaxAge time.Duration
}

// DefaultFileServerConfig returns default static file server configuration
func DefaultFileServerConfig() FileServerConfig {
	return FileServerConfig{
		Prefix:          "/static",
		MaxAge:          time.Hour,
		ImmutableMaxAge: 365 * 24 * time.Hour,
	}
}

type asset struct {
	content     []byte
	contentType string
	etag        string
	version     string
}

// FileServer serves every file of an fs.FS from memory
type FileServer struct {
	config   FileServerConfig
	assets   map[string]*asset
	modified time.Time
}

// NewFileServer loads every file under fsys. Embedded files carry no
// modification time, so the load time is used for Last-Modified.
func NewFileServer(fsys fs.FS, config FileServerConfig) (*FileServer, error) {
	s := &FileServer{
		config:   config,
		assets:   make(map[string]*asset),
		modified: time.Now().UTC().Truncate(time.Second),
	}

	err := fs.WalkDir(fsys, ".", func(name string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading asset %s: %w", name, err)
		}
		etag := cache.ETag(content)
		s.assets[name] = &asset{
			content:     content,
			contentType: detectContentType(name, content),
			etag:        etag,
			version:     strings.Trim(etag, `"`)[:12],
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// URL returns the fingerprinted URL of name, or the plain URL if the asset
// is unknown
func (s *FileServer) URL(name string) string {
	name = strings.TrimPrefix(name, "/")
	u := s.config.Prefix + "/" + name
	if a, ok := s.assets[name]; ok {
		u += "?v=" + a.version
	}
	return u
}

// Len returns the number of loaded assets
func (s *FileServer) Len() int {
	return len(s.assets)
}

// ServeHTTP serves GET and HEAD requests for known assets
func (s *FileServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(path.Clean("/"+strings.TrimPrefix(r.URL.Path, s.config.Prefix)), "/")
	a, ok := s.assets[name]
	if !ok {
		http.NotFound(w, r)
		return
	}

	maxAge := s.config.MaxAge
	cacheControl := "public, max-age=%d"
	if v := r.URL.Query().Get("v"); v != "" && v == a.version {
		maxAge = s.config.ImmutableMaxAge
		cacheControl += ", immutable"
	}
	w.Header().Set("Cache-Control", fmt.Sprintf(cacheControl, int(maxAge.Seconds())))
	w.Header().Set("Content-Type", a.contentType)

	if cache.NotModified(w, r, a.etag, s.modified) {
		return
	}
	http.ServeContent(w, r, name, s.modified, bytes.NewReader(a.content))
}

// detectContentType prefers the registered extension type and falls back to
// content sniffing
func detectContentType(name string, content []byte) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return mimetype.Detect(content).String()
}
