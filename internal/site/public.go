package site

import (
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/showroom-auto/showroom/internal/domain"
	"github.com/showroom-auto/showroom/internal/inventory"
	"github.com/showroom-auto/showroom/internal/web/query"
	"github.com/showroom-auto/showroom/internal/web/session"
)

const (
	homeSectionSize = 6
	relatedSize     = 4
)

func (s *Site) home(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	public := domain.CarFilter{Statuses: domain.PublicStatuses}

	featuredFilter := public
	featuredFilter.FeaturedOnly = true
	featured, err := s.Inventory.ListCars(ctx, inventory.ListQuery{Filter: featuredFilter, Sort: domain.SortNewest, Limit: homeSectionSize})
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	newest, err := s.Inventory.ListCars(ctx, inventory.ListQuery{Filter: public, Sort: domain.SortNewest, Limit: homeSectionSize})
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	s.render(w, r, http.StatusOK, "public/home", "", map[string]any{
		"Featured": featured.Items,
		"Newest":   newest.Items,
	}, nil)
}

type exploreData struct {
	Listing  query.Listing
	Cars     []domain.Car
	Makes    []string
	NextURL  string
	Filtered bool
}

func (s *Site) explore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	listing, errs := query.ParseListing(r.URL.Query(), s.config.Listing)

	q := listQuery(listing)
	q.Filter.Statuses = publicStatuses(listing.Filter.Statuses)

	result, err := s.Inventory.ListCars(ctx, q)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	makes, err := s.Inventory.Makes(ctx, domain.PublicStatuses)
	if err != nil {
		s.logger.Warn("loading makes", zap.Error(err))
	}

	data := exploreData{
		Listing:  listing,
		Cars:     result.Items,
		Makes:    makes,
		Filtered: !listing.Filter.IsZero(),
	}
	if result.HasMore {
		data.NextURL = "/cars?" + listing.NextValues(result.NextCursor, s.config.Listing).Encode()
	}
	s.render(w, r, http.StatusOK, "public/cars", "Explore our cars", data, errs)
}

// publicStatuses keeps only the requested statuses the public may see,
// defaulting to all of them
func publicStatuses(requested []string) []string {
	var out []string
	for _, status := range requested {
		if slices.Contains(domain.PublicStatuses, status) {
			out = append(out, status)
		}
	}
	if len(out) == 0 {
		return slices.Clone(domain.PublicStatuses)
	}
	return out
}

func listQuery(l query.Listing) inventory.ListQuery {
	return inventory.ListQuery{
		Filter: l.Filter,
		Sort:   l.Sort,
		Cursor: l.Cursor,
		Limit:  l.Limit,
		Token:  l.Token,
	}
}

func (s *Site) carDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	car, ok := s.loadCar(w, r, chi.URLParam(r, "id"), false)
	if !ok {
		return
	}

	related, err := s.Inventory.ListCars(ctx, inventory.ListQuery{
		Filter: domain.CarFilter{Statuses: domain.PublicStatuses, BodyType: car.BodyType},
		Sort:   domain.SortNewest,
		Limit:  relatedSize + 1,
	})
	if err != nil {
		s.logger.Warn("loading related cars", zap.Error(err))
	}
	others := make([]domain.Car, 0, relatedSize)
	for _, c := range related.Items {
		if c.ID != car.ID && len(others) < relatedSize {
			others = append(others, c)
		}
	}

	s.render(w, r, http.StatusOK, "public/car", car.Title(), map[string]any{
		"Car":     car,
		"Related": others,
		"Inquiry": domain.InquiryInput{CarID: &car.ID},
	}, nil)
}

// loadCar resolves a car id from the URL and renders 404 when it is unknown.
// Cars hidden from the public site are only returned when includeHidden is set.
func (s *Site) loadCar(w http.ResponseWriter, r *http.Request, rawID string, includeHidden bool) (*domain.Car, bool) {
	id, err := uuid.Parse(rawID)
	if err != nil {
		s.notFound(w, r)
		return nil, false
	}
	car, err := s.Inventory.GetCar(r.Context(), id)
	if inventory.IsNotFound(err) || (err == nil && !includeHidden && !car.IsPublic()) {
		s.notFound(w, r)
		return nil, false
	}
	if err != nil {
		s.serverError(w, r, err)
		return nil, false
	}
	return car, true
}

func (s *Site) about(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Inventory.Stats(r.Context())
	if err != nil {
		s.logger.Warn("loading stats for about page", zap.Error(err))
	}
	s.render(w, r, http.StatusOK, "public/about", "About us", map[string]any{"Stats": stats}, nil)
}

type contactData struct {
	Inquiry domain.InquiryInput
	Car     *domain.Car
}

func (s *Site) contact(w http.ResponseWriter, r *http.Request) {
	data := contactData{}
	if id, err := uuid.Parse(r.URL.Query().Get("car")); err == nil {
		if car, err := s.Inventory.GetCar(r.Context(), id); err == nil && car.IsPublic() {
			data.Car = car
			data.Inquiry.CarID = &car.ID
			data.Inquiry.Message = "I'm interested in the " + car.Title() + "."
		}
	}
	s.render(w, r, http.StatusOK, "public/contact", "Contact us", data, nil)
}

func (s *Site) submitContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	values, err := s.parser.ParseForm(w, r)
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, "We couldn't read that form. Please try again.")
		return
	}

	in := domain.InquiryInput{
		Name:    values.Get("name"),
		Email:   values.Get("email"),
		Phone:   values.Get("phone"),
		Message: values.Get("message"),
	}
	if raw := strings.TrimSpace(values.Get("car_id")); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			in.CarID = &id
		}
	}

	back := contactReturn(in.CarID)

	// bots fill every field, people never see this one
	if values.Get("website") != "" {
		session.Success(ctx, "Thanks! We'll get back to you shortly.")
		redirect(w, r, back)
		return
	}

	if _, err := s.Inventory.SubmitInquiry(ctx, in); err != nil {
		if errs, ok := inventory.IsValidation(err); ok {
			data := contactData{Inquiry: in}
			if in.CarID != nil {
				data.Car, _ = s.Inventory.GetCar(ctx, *in.CarID)
			}
			s.render(w, r, http.StatusUnprocessableEntity, "public/contact", "Contact us", data, errs)
			return
		}
		s.serverError(w, r, err)
		return
	}

	session.Success(ctx, "Thanks! We'll get back to you shortly.")
	redirect(w, r, back)
}

func contactReturn(carID *uuid.UUID) string {
	if carID == nil {
		return "/contact"
	}
	return "/cars/" + url.PathEscape(carID.String())
}
