package site

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/showroom-auto/showroom/internal/blob"
	"github.com/showroom-auto/showroom/internal/domain"
	"github.com/showroom-auto/showroom/internal/inventory"
	"github.com/showroom-auto/showroom/internal/web/auth"
	"github.com/showroom-auto/showroom/internal/web/middleware"
	"github.com/showroom-auto/showroom/internal/web/query"
	"github.com/showroom-auto/showroom/internal/web/request"
	"github.com/showroom-auto/showroom/internal/web/response"
	"github.com/showroom-auto/showroom/internal/web/session"
)

// requireAdminPage sends anonymous visitors to the login form and shows
// signed-in users without back-office rights a 403 page
func (s *Site) requireAdminPage(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.CurrentPrincipal(r.Context())
		if !ok {
			if middleware.IsWebSocket(r) {
				response.RenderUnauthorized(w, "")
				return
			}
			target := "/admin/login"
			if r.Method == http.MethodGet {
				target += "?" + url.Values{"next": {r.URL.RequestURI()}}.Encode()
			}
			redirect(w, r, target)
			return
		}
		if !principal.Admin {
			s.renderError(w, r, http.StatusForbidden, "Your account does not have access to the back office.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitBody caps request bodies before the CSRF check parses them
func (s *Site) limitBody(next http.Handler) http.Handler {
	limit := int64(1 << 20)
	if s.Uploader != nil {
		limit += s.Uploader.MaxFileSize()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > limit {
			s.renderError(w, r, http.StatusRequestEntityTooLarge, "That upload is too large.")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

// safeNext only follows redirects back into the back office
func safeNext(next string) string {
	if next == "/admin" || strings.HasPrefix(next, "/admin/") && !strings.HasPrefix(next, "/admin/login") {
		return next
	}
	return "/admin"
}

func (s *Site) loginForm(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"))
	if auth.IsAdmin(r.Context()) {
		redirect(w, r, next)
		return
	}
	s.render(w, r, http.StatusOK, "admin/login", "Sign in", map[string]any{"Next": next, "Email": ""}, nil)
}

func (s *Site) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	values, err := s.parser.ParseForm(w, r)
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, "We couldn't read that form. Please try again.")
		return
	}
	email := domain.NormalizeEmail(values.Get("email"))
	next := safeNext(values.Get("next"))

	_, principal, err := s.Authenticator.Login(ctx, email, values.Get("password"))
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			s.serverError(w, r, err)
			return
		}
		errs := domain.NewValidationErrors()
		errs.Add("email", "Incorrect email or password")
		s.render(w, r, http.StatusUnauthorized, "admin/login", "Sign in", map[string]any{
			"Next":  next,
			"Email": email,
		}, errs)
		return
	}

	if err := s.Sessions.Renew(ctx); err != nil {
		s.serverError(w, r, err)
		return
	}
	session.FromContext(ctx).SignIn(principal)
	s.logger.Info("signed in", zap.String("user", principal.Email), zap.Bool("admin", principal.Admin))

	redirect(w, r, next)
}

func (s *Site) logout(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Destroy(r.Context()); err != nil {
		s.logger.Warn("destroying session", zap.Error(err))
	}
	redirect(w, r, "/admin/login")
}

func (s *Site) dashboard(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.Inventory.Snapshot(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "admin/dashboard", "Dashboard", snapshot, nil)
}

func (s *Site) adminCars(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	config := query.Config{DefaultLimit: s.config.AdminPageSize, MaxLimit: s.config.Listing.MaxLimit}
	listing, errs := query.ParseListing(r.URL.Query(), config)

	result, err := s.Inventory.ListCars(ctx, listQuery(listing))
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	makes, err := s.Inventory.Makes(ctx, nil)
	if err != nil {
		s.logger.Warn("loading makes", zap.Error(err))
	}

	data := exploreData{
		Listing:  listing,
		Cars:     result.Items,
		Makes:    makes,
		Filtered: !listing.Filter.IsZero() || len(listing.Filter.Statuses) > 0,
	}
	if result.HasMore {
		data.NextURL = "/admin/cars?" + listing.NextValues(result.NextCursor, config).Encode()
	}
	s.render(w, r, http.StatusOK, "admin/cars", "Listings", data, errs)
}

type carFormData struct {
	Car   *domain.Car
	Input domain.CarInput
}

func (s *Site) newCar(w http.ResponseWriter, r *http.Request) {
	in := domain.CarInput{Status: domain.StatusAvailable}
	s.render(w, r, http.StatusOK, "admin/car_form", "Add a car", carFormData{Input: in}, nil)
}

// carInputFromForm reads the listing form. Malformed numbers are returned as
// field errors alongside the partially filled input.
func carInputFromForm(values url.Values) (domain.CarInput, *domain.ValidationErrors) {
	errs := domain.NewValidationErrors()
	in := domain.CarInput{
		Make:         values.Get("make"),
		Model:        values.Get("model"),
		Year:         request.FormInt(values, "year", errs),
		Price:        request.FormInt64(values, "price", errs),
		Mileage:      request.FormInt(values, "mileage", errs),
		BodyType:     values.Get("body_type"),
		FuelType:     values.Get("fuel_type"),
		Transmission: values.Get("transmission"),
		Color:        values.Get("color"),
		Description:  values.Get("description"),
		Featured:     request.FormBool(values, "featured"),
		Status:       domain.CarStatus(values.Get("status")),
	}
	return in, errs
}

func (s *Site) createCar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	values, err := s.parser.ParseForm(w, r)
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, "We couldn't read that form. Please try again.")
		return
	}

	in, errs := carInputFromForm(values)
	if errs.HasErrors() {
		s.render(w, r, http.StatusUnprocessableEntity, "admin/car_form", "Add a car", carFormData{Input: in}, errs)
		return
	}

	car, err := s.Inventory.CreateCar(ctx, auth.Actor(ctx), in)
	if err != nil {
		if errs, ok := inventory.IsValidation(err); ok {
			s.render(w, r, http.StatusUnprocessableEntity, "admin/car_form", "Add a car", carFormData{Input: in}, errs)
			return
		}
		s.serverError(w, r, err)
		return
	}

	session.Success(ctx, car.Title()+" was added. You can upload photos now.")
	redirect(w, r, editPath(car.ID))
}

func (s *Site) editCar(w http.ResponseWriter, r *http.Request) {
	car, ok := s.loadCar(w, r, chi.URLParam(r, "id"), true)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "admin/car_form", "Edit "+car.Title(), carFormData{Car: car, Input: domain.InputFromCar(car)}, nil)
}

func (s *Site) updateCar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	car, ok := s.loadCar(w, r, chi.URLParam(r, "id"), true)
	if !ok {
		return
	}
	values, err := s.parser.ParseForm(w, r)
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, "We couldn't read that form. Please try again.")
		return
	}

	in, errs := carInputFromForm(values)
	title := "Edit " + car.Title()
	if errs.HasErrors() {
		s.render(w, r, http.StatusUnprocessableEntity, "admin/car_form", title, carFormData{Car: car, Input: in}, errs)
		return
	}

	updated, changed, err := s.Inventory.UpdateCar(ctx, auth.Actor(ctx), car.ID, in)
	switch {
	case inventory.IsNotFound(err):
		s.notFound(w, r)
		return
	case err != nil:
		if errs, ok := inventory.IsValidation(err); ok {
			s.render(w, r, http.StatusUnprocessableEntity, "admin/car_form", title, carFormData{Car: car, Input: in}, errs)
			return
		}
		s.serverError(w, r, err)
		return
	}

	if changed {
		session.Success(ctx, updated.Title()+" was saved.")
	} else {
		session.AddFlash(ctx, session.FlashInfo, "Nothing to save, no fields changed.")
	}
	redirect(w, r, editPath(car.ID))
}

func (s *Site) deleteCar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.notFound(w, r)
		return
	}

	if err := s.Inventory.DeleteCar(ctx, auth.Actor(ctx), id); err != nil {
		if inventory.IsNotFound(err) {
			s.notFound(w, r)
			return
		}
		s.serverError(w, r, err)
		return
	}
	session.Success(ctx, "The listing was deleted.")
	redirect(w, r, "/admin/cars")
}

func (s *Site) uploadImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.notFound(w, r)
		return
	}

	upload, err := s.Uploader.FromRequest(r, "image")
	if err != nil {
		if message, ok := uploadMessage(err); ok {
			session.Error(ctx, message)
			redirect(w, r, editPath(id))
			return
		}
		s.serverError(w, r, err)
		return
	}

	if _, err := s.Inventory.AttachImage(ctx, auth.Actor(ctx), id, upload); err != nil {
		if inventory.IsNotFound(err) {
			s.notFound(w, r)
			return
		}
		s.serverError(w, r, err)
		return
	}
	session.Success(ctx, "Photo uploaded.")
	redirect(w, r, editPath(id))
}

// uploadMessage maps upload validation errors to user-facing text
func uploadMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, blob.ErrMissingFile):
		return "Choose a photo to upload.", true
	case errors.Is(err, blob.ErrEmpty):
		return "That file is empty.", true
	case errors.Is(err, blob.ErrTooLarge):
		return "That photo is too large.", true
	case errors.Is(err, blob.ErrUnsupportedType):
		return "Photos must be JPEG, PNG, WebP or GIF images.", true
	}
	return "", false
}

func (s *Site) deleteImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	carID, err1 := uuid.Parse(chi.URLParam(r, "id"))
	imageID, err2 := uuid.Parse(chi.URLParam(r, "imageID"))
	if err1 != nil || err2 != nil {
		s.notFound(w, r)
		return
	}

	if err := s.Inventory.RemoveImage(ctx, auth.Actor(ctx), carID, imageID); err != nil {
		if inventory.IsNotFound(err) {
			s.notFound(w, r)
			return
		}
		s.serverError(w, r, err)
		return
	}
	session.Success(ctx, "Photo removed.")
	redirect(w, r, editPath(carID))
}

func editPath(id uuid.UUID) string {
	return "/admin/cars/" + id.String() + "/edit"
}

func (s *Site) activityLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cursor, err := domain.DecodeCursor(r.URL.Query().Get("cursor"), domain.SortNewest)
	if err != nil {
		session.Error(ctx, "That page link has expired, showing the latest activity.")
		redirect(w, r, "/admin/activity")
		return
	}

	result, err := s.Inventory.Activities(ctx, cursor, s.config.AdminPageSize)
	if err != nil {
		s.serverError(w, r, err)
		return
	}

	data := map[string]any{"Activities": result.Items, "NextURL": ""}
	if result.HasMore {
		data["NextURL"] = "/admin/activity?" + url.Values{"cursor": {result.NextCursor}}.Encode()
	}
	s.render(w, r, http.StatusOK, "admin/activity", "Activity", data, nil)
}

func (s *Site) settingsForm(w http.ResponseWriter, r *http.Request) {
	settings, err := s.Inventory.Settings(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "admin/settings", "Settings", settings, nil)
}

func (s *Site) saveSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	values, err := s.parser.ParseForm(w, r)
	if err != nil {
		s.renderError(w, r, http.StatusBadRequest, "We couldn't read that form. Please try again.")
		return
	}

	settings := domain.Settings{
		DealershipName: values.Get("dealership_name"),
		Tagline:        values.Get("tagline"),
		Phone:          values.Get("phone"),
		Email:          values.Get("email"),
		Address:        values.Get("address"),
		OpeningHours:   values.Get("opening_hours"),
		About:          values.Get("about"),
		Currency:       values.Get("currency"),
	}
	if _, err := s.Inventory.UpdateSettings(ctx, auth.Actor(ctx), settings); err != nil {
		if errs, ok := inventory.IsValidation(err); ok {
			s.render(w, r, http.StatusUnprocessableEntity, "admin/settings", "Settings", settings, errs)
			return
		}
		s.serverError(w, r, err)
		return
	}
	session.Success(ctx, "Settings saved.")
	redirect(w, r, "/admin/settings")
}

func (s *Site) inquiries(w http.ResponseWriter, r *http.Request) {
	onlyOpen := r.URL.Query().Get("show") != "all"
	list, err := s.Inventory.ListInquiries(r.Context(), onlyOpen)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "admin/inquiries", "Inquiries", map[string]any{
		"Inquiries": list,
		"OnlyOpen":  onlyOpen,
	}, nil)
}

func (s *Site) markInquiryHandled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.notFound(w, r)
		return
	}
	if err := s.Inventory.MarkInquiryHandled(ctx, auth.Actor(ctx), id); err != nil {
		if inventory.IsNotFound(err) {
			s.notFound(w, r)
			return
		}
		s.serverError(w, r, err)
		return
	}
	session.Success(ctx, "Inquiry marked as handled.")
	redirect(w, r, "/admin/inquiries")
}
