package service

import (
	"math"

	"foodlink/internal/attributes"
	"foodlink/internal/donation/models"
	"foodlink/pkg/domain"
	dErrors "foodlink/pkg/domain-errors"
	strutil "foodlink/pkg/platform/strings"
)

const (
	DefaultMaxDistanceKm = 10.0
	DefaultPageSize      = 10
	MaxPageSize          = 20
	maxWindow            = 100
)

// Query is a ranked donation search. Zero values take the documented
// defaults when Normalize runs.
type Query struct {
	Caller           domain.Actor
	Origin           *attributes.GeoPoint
	MaxDistanceKm    float64
	Statuses         []models.Status
	Priorities       []models.Priority
	PreferredTypes   []string
	RejectedTypes    []string
	AvoidedAllergens []string
	Page             int
	PageSize         int
}

func (q *Query) Normalize() {
	if q.MaxDistanceKm == 0 {
		q.MaxDistanceKm = DefaultMaxDistanceKm
	}
	if len(q.Statuses) == 0 {
		q.Statuses = []models.Status{models.StatusAvailable}
	}
	if len(q.Priorities) == 0 {
		q.Priorities = append([]models.Priority(nil), models.AllPriorities...)
	}
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = DefaultPageSize
	}
	q.PreferredTypes = strutil.CanonicalTags(q.PreferredTypes)
	q.RejectedTypes = strutil.CanonicalTags(q.RejectedTypes)
	q.AvoidedAllergens = strutil.CanonicalTags(q.AvoidedAllergens)
}

func (q *Query) Validate() error {
	if q.Page < 1 {
		return dErrors.New(dErrors.CodeValidation, "page must be at least 1")
	}
	if q.PageSize < 1 || q.PageSize > MaxPageSize {
		return dErrors.New(dErrors.CodeValidation, "pageSize must be between 1 and 20")
	}
	if !finite(q.MaxDistanceKm) || q.MaxDistanceKm < 0 {
		return dErrors.New(dErrors.CodeValidation, "distance must be a non-negative number")
	}
	if q.Origin != nil {
		if !finite(q.Origin.Latitude) || q.Origin.Latitude < -90 || q.Origin.Latitude > 90 {
			return dErrors.New(dErrors.CodeValidation, "lat must be between -90 and 90")
		}
		if !finite(q.Origin.Longitude) || q.Origin.Longitude < -180 || q.Origin.Longitude > 180 {
			return dErrors.New(dErrors.CodeValidation, "long must be between -180 and 180")
		}
	}
	for _, s := range q.Statuses {
		if !s.IsValid() {
			return dErrors.New(dErrors.CodeValidation, "invalid status: "+string(s))
		}
	}
	for _, p := range q.Priorities {
		if !p.IsValid() {
			return dErrors.New(dErrors.CodeValidation, "invalid priority: "+string(p))
		}
	}
	for _, list := range [][]string{q.PreferredTypes, q.RejectedTypes, q.AvoidedAllergens} {
		if bad := attributes.InvalidTags(list); len(bad) > 0 {
			return dErrors.New(dErrors.CodeValidation, "invalid tag: "+bad[0])
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// hasOwnPreferences reports whether the caller supplied any ranking or
// exclusion input of their own.
func (q *Query) hasOwnPreferences() bool {
	return q.Origin != nil || len(q.PreferredTypes) > 0 || len(q.RejectedTypes) > 0 || len(q.AvoidedAllergens) > 0
}

// window is how many candidates to request so the requested page can be
// ranked over a superset.
func (q *Query) window() int {
	w := 3 * q.PageSize
	if need := q.Page*q.PageSize + 1; need > w {
		w = need
	}
	if w > maxWindow {
		w = maxWindow
	}
	return w
}

// truncated reports whether the attribute store filled the whole window, so
// more matches may follow a full page even though none were hydrated here.
// Pages starting past maxWindow cannot be served and are never hinted.
func truncated(q Query, candidates int, p Pagination) bool {
	return !p.HasNextPage &&
		p.Count == q.PageSize &&
		candidates >= q.window() &&
		q.Page*q.PageSize < maxWindow
}

type Item struct {
	Donation   *models.Donation
	DistanceKm *float64
}

type Pagination struct {
	Page        int  `json:"page"`
	PageSize    int  `json:"pageSize"`
	Count       int  `json:"count"`
	HasPrevPage bool `json:"hasPrevPage"`
	HasNextPage bool `json:"hasNextPage"`
}

type Result struct {
	Items      []Item
	Pagination Pagination
}
