package site

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/go-chi/chi/v5"

	"github.com/showroom-auto/showroom/internal/blob"
	"github.com/showroom-auto/showroom/internal/domain"
	"github.com/showroom-auto/showroom/internal/inventory"
	"github.com/showroom-auto/showroom/internal/web/cache"
)

// media streams a stored photo. Keys embed the image id, so a key never
// changes content and the response may be cached for a year.
func (s *Site) media(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if !strings.HasPrefix(key, blob.CarsPrefix) {
		s.notFound(w, r)
		return
	}

	rc, info, err := s.Inventory.OpenImage(r.Context(), key)
	if err != nil {
		if inventory.IsNotFound(err) || errors.Is(err, blob.ErrInvalidKey) {
			s.notFound(w, r)
			return
		}
		s.serverError(w, r, err)
		return
	}
	defer rc.Close()

	h := w.Header()
	h.Set("Cache-Control", "public, max-age=31536000, immutable")
	if info.ContentType != "" {
		h.Set("Content-Type", info.ContentType)
	}
	etag := cache.ETagFromParts(info.Key, strconv.FormatInt(info.Size, 10), info.ModTime.UTC().Format(time.RFC3339Nano))
	if cache.NotModified(w, r, etag, info.ModTime) {
		return
	}

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, "", info.ModTime, rs)
		return
	}
	h.Set("Content-Length", strconv.FormatInt(info.Size, 10))
	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Debug("streaming media interrupted")
	}
}

const sitemapNS = "http://www.sitemaps.org/schemas/sitemap/0.9"

// sitemap lists the static pages and every public car
func (s *Site) sitemap(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	base := strings.TrimRight(s.config.BaseURL, "/")

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	urlset := doc.CreateElement("urlset")
	urlset.CreateAttr("xmlns", sitemapNS)

	addURL := func(loc string, modified time.Time, priority string) {
		u := urlset.CreateElement("url")
		u.CreateElement("loc").SetText(base + loc)
		if !modified.IsZero() {
			u.CreateElement("lastmod").SetText(modified.UTC().Format("2006-01-02"))
		}
		u.CreateElement("priority").SetText(priority)
	}

	addURL("/", time.Time{}, "1.0")
	addURL("/cars", time.Time{}, "0.9")
	addURL("/about", time.Time{}, "0.5")
	addURL("/contact", time.Time{}, "0.5")

	q := inventory.ListQuery{
		Filter: domain.CarFilter{Statuses: domain.PublicStatuses},
		Sort:   domain.SortNewest,
		Limit:  s.config.Listing.MaxLimit,
	}
	for {
		result, err := s.Inventory.ListCars(ctx, q)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		for _, car := range result.Items {
			addURL("/cars/"+car.ID.String(), car.UpdatedAt, "0.8")
		}
		if !result.HasMore {
			break
		}
		q.Cursor, err = domain.DecodeCursor(result.NextCursor, q.Sort)
		if err != nil {
			s.serverError(w, r, err)
			return
		}
		q.Token = result.NextCursor
	}

	doc.Indent(2)
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	if _, err := doc.WriteTo(w); err != nil {
		s.logger.Debug("writing sitemap interrupted")
	}
}
