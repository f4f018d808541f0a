package handler

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"foodlink/internal/attributes"
	"foodlink/internal/donation/models"
	"foodlink/internal/search/service"
	dErrors "foodlink/pkg/domain-errors"
	"foodlink/pkg/platform/httputil"
	request "foodlink/pkg/platform/middleware/request"
	strutil "foodlink/pkg/platform/strings"
	"foodlink/pkg/requestcontext"
)

// pageSizeCap bounds pageSize before the service validates it.
const pageSizeCap = 50

type Service interface {
	Search(ctx context.Context, q service.Query) (*service.Result, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{service: svc, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/food-donations", h.HandleSearch)
}

type SearchResponse struct {
	Items      []models.DonationResponse `json:"items"`
	Pagination service.Pagination        `json:"pagination"`
}

// HandleSearch serves one ranked page. Only the first 100 matches are
// ranked, so pages past that depth come back empty; pagination.hasNextPage
// is a hint and stays true on a full page while the store may hold more.
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := parseQuery(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	q.Caller = requestcontext.Actor(ctx)

	res, err := h.service.Search(ctx, q)
	if err != nil {
		if de, ok := dErrors.As(err); ok && de.Code == dErrors.CodeValidation {
			h.logger.WarnContext(ctx, "search rejected", "request_id", request.GetRequestID(ctx), "error", err)
		} else {
			h.logger.ErrorContext(ctx, "search failed", "request_id", request.GetRequestID(ctx), "error", err)
		}
		httputil.WriteError(w, err)
		return
	}

	out := SearchResponse{Items: make([]models.DonationResponse, 0, len(res.Items)), Pagination: res.Pagination}
	for _, it := range res.Items {
		resp := models.ToResponse(it.Donation)
		resp.DistanceKm = it.DistanceKm
		out.Items = append(out.Items, resp)
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func parseQuery(v url.Values) (service.Query, error) {
	var q service.Query

	lat, hasLat := v["lat"]
	long, hasLong := v["long"]
	if hasLat != hasLong {
		return q, dErrors.New(dErrors.CodeValidation, "lat and long must be given together")
	}
	if hasLat {
		la, err := parseFloat("lat", lat[0])
		if err != nil {
			return q, err
		}
		lo, err := parseFloat("long", long[0])
		if err != nil {
			return q, err
		}
		q.Origin = &attributes.GeoPoint{Latitude: la, Longitude: lo}
	}
	if raw := v.Get("distance"); raw != "" {
		d, err := parseFloat("distance", raw)
		if err != nil {
			return q, err
		}
		if d <= 0 {
			return q, dErrors.New(dErrors.CodeValidation, "distance must be positive")
		}
		q.MaxDistanceKm = d
	}

	for _, raw := range splitRaw(v["status"]) {
		st, err := models.ParseStatus(raw)
		if err != nil {
			return q, err
		}
		q.Statuses = append(q.Statuses, st)
	}
	for _, raw := range splitRaw(v["priority"]) {
		p, err := models.ParsePriority(raw)
		if err != nil {
			return q, err
		}
		q.Priorities = append(q.Priorities, p)
	}
	q.PreferredTypes = strutil.SplitList(v["prefersFoodType"])
	q.RejectedTypes = strutil.SplitList(v["rejectsFoodType"])
	q.AvoidedAllergens = strutil.SplitList(v["avoidsAllergens"])

	var err error
	if q.Page, err = parseInt("page", v.Get("page")); err != nil {
		return q, err
	}
	if q.PageSize, err = parseInt("pageSize", v.Get("pageSize")); err != nil {
		return q, err
	}
	if q.PageSize > pageSizeCap {
		q.PageSize = pageSizeCap
	}
	return q, nil
}

func splitRaw(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func parseFloat(name, raw string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be a number")
	}
	return f, nil
}

func parseInt(name, raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be a positive integer")
	}
	return n, nil
}
