package cameraman

import (
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/TECXBOY/SnapMe/internal/apperr"
	"github.com/TECXBOY/SnapMe/internal/http/respond"
	"github.com/TECXBOY/SnapMe/internal/profile"
)

type Handler struct {
	svc *profile.Service
}

func NewHandler(svc *profile.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.search)
	r.Get("/{id}", h.get)
}

type cameramanResponse struct {
	ID                uuid.UUID            `json:"id"`
	Name              string               `json:"name"`
	BrandName         string               `json:"brand_name,omitempty"`
	ProfileImage      string               `json:"profile_image,omitempty"`
	ServiceCategories []string             `json:"service_categories"`
	Location          profile.Location     `json:"location"`
	Availability      profile.Availability `json:"availability"`
	Rating            float64              `json:"rating"`
	ReviewCount       int                  `json:"review_count"`
	CompletedJobs     int                  `json:"completed_jobs"`
	PricePerHour      *int64               `json:"price_per_hour,omitempty"`
	Packages          []profile.Package    `json:"packages"`
	DistanceKm        *float64             `json:"distance_km,omitempty"`
}

func toResponse(c *profile.Cameraman) cameramanResponse {
	packages := c.Packages
	if packages == nil {
		packages = []profile.Package{}
	}

	return cameramanResponse{
		ID:                c.ID,
		Name:              c.Name,
		BrandName:         c.BrandName,
		ProfileImage:      c.ProfileImage,
		ServiceCategories: c.ServiceCategories,
		Location:          c.Location,
		Availability:      c.Availability,
		Rating:            c.Rating,
		ReviewCount:       c.ReviewCount,
		CompletedJobs:     c.CompletedJobs,
		PricePerHour:      c.PricePerHour,
		Packages:          packages,
	}
}

func floatParam(r *http.Request, name string) (float64, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, apperr.Invalid(name, "not a number")
	}

	return v, nil
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("lat") == "" || q.Get("lng") == "" {
		respond.Error(w, r, apperr.Invalid("lat", "lat and lng are required"))
		return
	}

	filters := profile.SearchFilters{
		SortBy:   profile.SortBy(q.Get("sort_by")),
		Category: q.Get("category"),
	}

	for name, dst := range map[string]*float64{
		"lat":        &filters.Latitude,
		"lng":        &filters.Longitude,
		"radius":     &filters.RadiusKm,
		"min_rating": &filters.MinRating,
	} {
		v, err := floatParam(r, name)
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		*dst = v
	}

	found, err := h.svc.Nearby(r.Context(), filters)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	out := make([]cameramanResponse, 0, len(found))
	for _, n := range found {
		resp := toResponse(n.Cameraman)
		resp.DistanceKm = new(math.Round(n.DistanceKm*100) / 100)
		out = append(out, resp)
	}

	respond.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := respond.ID(r)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	c, err := h.svc.Cameraman(r.Context(), id)
	if err != nil {
		respond.Error(w, r, err)
		return
	}

	if c.ApprovalStatus != profile.ApprovalApproved {
		http.Error(w, "cameraman not found", http.StatusNotFound)
		return
	}

	respond.JSON(w, http.StatusOK, toResponse(c))
}
