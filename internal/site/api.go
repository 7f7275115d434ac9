package site

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/showroom-auto/showroom/internal/blob"
	"github.com/showroom-auto/showroom/internal/domain"
	"github.com/showroom-auto/showroom/internal/inventory"
	"github.com/showroom-auto/showroom/internal/web/auth"
	"github.com/showroom-auto/showroom/internal/web/middleware"
	"github.com/showroom-auto/showroom/internal/web/query"
	"github.com/showroom-auto/showroom/internal/web/request"
	"github.com/showroom-auto/showroom/internal/web/response"
)

func (s *Site) apiRoutes(r chi.Router) {
	cors := middleware.DefaultCORSConfig()
	if len(s.config.AllowedOrigins) > 0 {
		cors.AllowedOrigins = s.config.AllowedOrigins
	}
	r.Use(middleware.CORSWithConfig(cors))

	r.With(s.rateLimit("token")).Post("/auth/token", s.apiToken)

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuthWithConfig(middleware.AuthConfig{Tokens: s.Tokens, Optional: true}))
		r.Get("/cars", s.apiListCars)
		r.Get("/cars/{id}", s.apiGetCar)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(s.Tokens), middleware.RequireAdmin())
		r.Post("/cars", s.apiCreateCar)
		r.Put("/cars/{id}", s.apiUpdateCar)
		r.Delete("/cars/{id}", s.apiDeleteCar)
		r.Post("/cars/{id}/images", s.apiUploadImage)
		r.Delete("/cars/{id}/images/{imageID}", s.apiDeleteImage)
		r.Get("/activities", s.apiActivities)
		r.Get("/stats", s.apiStats)
	})
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Admin     bool      `json:"admin"`
}

func (s *Site) apiToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := s.parser.ParseJSON(w, r, &req); err != nil {
		renderDecodeError(w, err)
		return
	}

	user, principal, err := s.Authenticator.Login(r.Context(), domain.NormalizeEmail(req.Email), req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			response.RenderUnauthorized(w, "Invalid email or password")
			return
		}
		s.serverError(w, r, err)
		return
	}

	token, expires, err := s.Tokens.GenerateToken(user, principal.Admin)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	response.OK(w, tokenResponse{Token: token, ExpiresAt: expires, Admin: principal.Admin})
}

func renderDecodeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, request.ErrBodyTooLarge):
		response.RenderTooLarge(w, "Request body too large")
	case errors.Is(err, request.ErrUnsupportedContent):
		response.RenderUnsupportedMediaType(w, "Send application/json")
	default:
		response.RenderBadRequest(w, err.Error())
	}
}

func (s *Site) apiListCars(w http.ResponseWriter, r *http.Request) {
	listing, errs := query.ParseListing(r.URL.Query(), s.config.Listing)
	if errs.HasErrors() {
		response.RenderValidationError(w, errs)
		return
	}

	q := listQuery(listing)
	if !auth.IsAdmin(r.Context()) {
		q.Filter.Statuses = publicStatuses(listing.Filter.Statuses)
	}

	result, err := s.Inventory.ListCars(r.Context(), q)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	response.Page(w, result)
}

// apiCarID parses the id URL parameter, rendering 404 when it is malformed
func apiCarID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		response.RenderNotFound(w, "")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Site) apiGetCar(w http.ResponseWriter, r *http.Request) {
	id, ok := apiCarID(w, r, "id")
	if !ok {
		return
	}
	car, err := s.Inventory.GetCar(r.Context(), id)
	if inventory.IsNotFound(err) || (err == nil && !car.IsPublic() && !auth.IsAdmin(r.Context())) {
		response.RenderNotFound(w, "Car not found")
		return
	}
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	response.OK(w, car)
}

// renderMutationError writes the API response for a failed inventory call
func (s *Site) renderMutationError(w http.ResponseWriter, r *http.Request, err error) {
	if errs, ok := inventory.IsValidation(err); ok {
		response.RenderValidationError(w, errs)
		return
	}
	if inventory.IsNotFound(err) {
		response.RenderNotFound(w, "")
		return
	}
	s.serverError(w, r, err)
}

func (s *Site) apiCreateCar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var in domain.CarInput
	if err := s.parser.ParseJSON(w, r, &in); err != nil {
		renderDecodeError(w, err)
		return
	}

	car, err := s.Inventory.CreateCar(ctx, auth.Actor(ctx), in)
	if err != nil {
		s.renderMutationError(w, r, err)
		return
	}
	response.Created(w, "/api/v1/cars/"+car.ID.String(), car)
}

func (s *Site) apiUpdateCar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := apiCarID(w, r, "id")
	if !ok {
		return
	}
	var in domain.CarInput
	if err := s.parser.ParseJSON(w, r, &in); err != nil {
		renderDecodeError(w, err)
		return
	}

	car, changed, err := s.Inventory.UpdateCar(ctx, auth.Actor(ctx), id, in)
	if err != nil {
		s.renderMutationError(w, r, err)
		return
	}
	w.Header().Set("X-Changed", strconv.FormatBool(changed))
	response.OK(w, car)
}

func (s *Site) apiDeleteCar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := apiCarID(w, r, "id")
	if !ok {
		return
	}
	if err := s.Inventory.DeleteCar(ctx, auth.Actor(ctx), id); err != nil {
		s.renderMutationError(w, r, err)
		return
	}
	response.NoContent(w)
}

func (s *Site) apiUploadImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := apiCarID(w, r, "id")
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.Uploader.MaxFileSize()+1<<20)
	upload, err := s.Uploader.FromRequest(r, "image")
	if err != nil {
		if message, ok := uploadMessage(err); ok {
			status := http.StatusBadRequest
			switch {
			case errors.Is(err, blob.ErrTooLarge):
				status = http.StatusRequestEntityTooLarge
			case errors.Is(err, blob.ErrUnsupportedType):
				status = http.StatusUnsupportedMediaType
			}
			response.RenderError(w, status, errors.New(message))
			return
		}
		s.serverError(w, r, err)
		return
	}

	img, err := s.Inventory.AttachImage(ctx, auth.Actor(ctx), id, upload)
	if err != nil {
		s.renderMutationError(w, r, err)
		return
	}
	response.Created(w, "/media/"+img.Key, img)
}

func (s *Site) apiDeleteImage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	carID, ok := apiCarID(w, r, "id")
	if !ok {
		return
	}
	imageID, ok := apiCarID(w, r, "imageID")
	if !ok {
		return
	}
	if err := s.Inventory.RemoveImage(ctx, auth.Actor(ctx), carID, imageID); err != nil {
		s.renderMutationError(w, r, err)
		return
	}
	response.NoContent(w)
}

func (s *Site) apiActivities(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	cursor, err := domain.DecodeCursor(values.Get("cursor"), domain.SortNewest)
	if err != nil {
		errs := domain.NewValidationErrors()
		errs.Add("cursor", "is invalid or expired")
		response.RenderValidationError(w, errs)
		return
	}

	limit := s.config.AdminPageSize
	if raw := values.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			errs := domain.NewValidationErrors()
			errs.Add("limit", "must be a positive number")
			response.RenderValidationError(w, errs)
			return
		}
		limit = min(n, s.config.Listing.MaxLimit)
	}

	result, err := s.Inventory.Activities(r.Context(), cursor, limit)
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	response.Page(w, result)
}

func (s *Site) apiStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.Inventory.Stats(r.Context())
	if err != nil {
		s.serverError(w, r, err)
		return
	}
	response.OK(w, stats)
}
