package site

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/yosssi/gohtml"
	"go.uber.org/zap"

	"github.com/showroom-auto/showroom/internal/domain"
	"github.com/showroom-auto/showroom/internal/web/auth"
	"github.com/showroom-auto/showroom/internal/web/middleware"
	"github.com/showroom-auto/showroom/internal/web/response"
	"github.com/showroom-auto/showroom/internal/web/session"
)

//go:embed templates assets
var content embed.FS

func assetFS() fs.FS {
	sub, err := fs.Sub(content, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

// views holds one template set per page, each parsed together with the layouts
type views struct {
	pages  map[string]*template.Template
	pretty bool
}

func parseViews(funcs template.FuncMap, pretty bool) (*views, error) {
	v := &views{pages: make(map[string]*template.Template), pretty: pretty}

	for _, dir := range []string{"public", "admin"} {
		files, err := fs.Glob(content, "templates/"+dir+"/*.html")
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			name := dir + "/" + strings.TrimSuffix(path.Base(file), ".html")
			t, err := template.New(path.Base(file)).Funcs(funcs).ParseFS(content, "templates/layouts/*.html", file)
			if err != nil {
				return nil, fmt.Errorf("parsing template %s: %w", name, err)
			}
			v.pages[name] = t
		}
	}
	return v, nil
}

func (v *views) render(w http.ResponseWriter, status int, name string, data any) error {
	t, ok := v.pages[name]
	if !ok {
		return fmt.Errorf("unknown template %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("rendering %s: %w", name, err)
	}

	out := buf.Bytes()
	if v.pretty {
		out = gohtml.FormatBytes(out)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := w.Write(out)
	return err
}

// page is the data passed to every template
type page struct {
	Title     string
	Admin     bool
	Path      string
	Settings  domain.Settings
	Principal *auth.Principal
	CSRFToken string
	Flashes   []session.Flash
	Errors    *domain.ValidationErrors
	Data      any
}

// render executes a page template. Flashes are consumed here, so a redirect
// after queuing one shows it on the next page.
func (s *Site) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any, errs *domain.ValidationErrors) {
	ctx := r.Context()

	settings, err := s.Inventory.Settings(ctx)
	if err != nil {
		s.logger.Warn("loading settings for page", zap.Error(err))
		settings = domain.DefaultSettings()
	}

	p := page{
		Title:     title,
		Admin:     strings.HasPrefix(name, "admin/"),
		Path:      r.URL.Path,
		Settings:  settings,
		CSRFToken: session.CSRFToken(ctx),
		Errors:    errs,
		Data:      data,
	}
	if principal, ok := auth.CurrentPrincipal(ctx); ok {
		p.Principal = &principal
	}
	if sess := session.FromContext(ctx); sess != nil {
		p.Flashes = sess.PopFlashes()
	}

	if err := s.views.render(w, status, name, p); err != nil {
		s.logger.Error("rendering page", zap.String("template", name), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (s *Site) renderError(w http.ResponseWriter, r *http.Request, status int, message string) {
	if strings.HasPrefix(r.URL.Path, "/api/") || middleware.WantsJSON(r) {
		response.RenderError(w, status, fmt.Errorf("%s", message))
		return
	}
	s.render(w, r, status, "public/error", http.StatusText(status), map[string]any{
		"Status":  status,
		"Message": message,
	}, nil)
}

func (s *Site) serverError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	if strings.HasPrefix(r.URL.Path, "/api/") {
		response.RenderInternalError(w)
		return
	}
	s.renderError(w, r, http.StatusInternalServerError, "Something went wrong on our side. Please try again.")
}

func (s *Site) notFound(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		response.RenderNotFound(w, "")
		return
	}
	s.renderError(w, r, http.StatusNotFound, "We couldn't find that page.")
}

func (s *Site) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		response.RenderMethodNotAllowed(w)
		return
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

// renderPanic runs outside the session middleware, so it avoids the layout
func (s *Site) renderPanic(w http.ResponseWriter, r *http.Request, _ any) {
	if strings.HasPrefix(r.URL.Path, "/api/") || middleware.WantsJSON(r) {
		response.RenderInternalError(w)
		return
	}
	http.Error(w, "Something went wrong on our side. Please try again.", http.StatusInternalServerError)
}

func (s *Site) csrfFailed(w http.ResponseWriter, r *http.Request, err error) {
	s.renderError(w, r, http.StatusForbidden, "This form has expired. Please go back, reload the page and try again.")
}

// redirect sends a 303 so a refresh after a POST does not resubmit
func redirect(w http.ResponseWriter, r *http.Request, to string) {
	http.Redirect(w, r, to, http.StatusSeeOther)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Site) funcs() template.FuncMap {
	return template.FuncMap{
		"asset": func(name string) string {
			return s.assets.URL(name)
		},
		"media": func(key string) string {
			return "/media/" + key
		},
		"money": formatMoney,
		"number": func(v any) string {
			switch n := v.(type) {
			case int:
				return formatNumber(int64(n))
			case int64:
				return formatNumber(n)
			}
			return fmt.Sprint(v)
		},
		"date":     func(t time.Time) string { return t.Format("2 Jan 2006") },
		"datetime": func(t time.Time) string { return t.UTC().Format("2 Jan 2006 15:04 UTC") },
		"isoTime":  func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
		"title":    titleCase,
		"lower":    strings.ToLower,
		"safeHTML": func(s string) template.HTML {
			// descriptions are sanitized with bluemonday before they are stored
			return template.HTML(s)
		},
		"fieldError": func(errs *domain.ValidationErrors, field string) string {
			return errs.First(field)
		},
		"selected": func(current, option any) template.HTMLAttr {
			if fmt.Sprint(current) == fmt.Sprint(option) {
				return "selected"
			}
			return ""
		},
		"checked": func(on bool) template.HTMLAttr {
			if on {
				return "checked"
			}
			return ""
		},
		"bodyTypes":     func() []string { return domain.BodyTypes },
		"fuelTypes":     func() []string { return domain.FuelTypes },
		"transmissions": func() []string { return domain.Transmissions },
		"statuses":      func() []domain.CarStatus { return domain.CarStatuses },
		"sorts":         func() []domain.Sort { return domain.Sorts },
		"cards":         carCards,
		"first": func(values []string) string {
			if len(values) == 0 {
				return ""
			}
			return values[0]
		},
		"statusCount": func(stats domain.Stats, status string) int {
			return stats.CarsByStatus[domain.CarStatus(status)]
		},
		"cover": func(c *domain.Car) *domain.Image {
			if img, ok := c.Cover(); ok {
				return &img
			}
			return nil
		},
		"jsonAttr": func(v any) (string, error) {
			b, err := json.Marshal(v)
			return string(b), err
		},
	}
}

// carCard pairs a car with the display currency for the card partial
type carCard struct {
	Car      *domain.Car
	Currency string
}

func carCards(cars []domain.Car, currency string) []carCard {
	out := make([]carCard, len(cars))
	for i := range cars {
		out[i] = carCard{Car: &cars[i], Currency: currency}
	}
	return out
}

func formatNumber(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

var currencySymbols = map[string]string{"USD": "$", "EUR": "€", "GBP": "£"}

func formatMoney(amount int64, currency string) string {
	if symbol, ok := currencySymbols[currency]; ok {
		return symbol + formatNumber(amount)
	}
	return formatNumber(amount) + " " + currency
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
