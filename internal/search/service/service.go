//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Attributes,Records
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"foodlink/internal/attributes"
	"foodlink/internal/donation/models"
	"foodlink/pkg/domain"
	dErrors "foodlink/pkg/domain-errors"
)

// Attributes is the query side of the attribute store.
type Attributes interface {
	SearchCandidates(ctx context.Context, q attributes.CandidateQuery) ([]attributes.Candidate, error)
	OrganizationPreferences(ctx context.Context, org domain.OrganizationID) (*attributes.Preferences, error)
}

// Records hydrates candidates from the authoritative record store.
type Records interface {
	FindByIDs(ctx context.Context, ids []domain.DonationID) ([]*models.Donation, error)
}

var tracer = otel.Tracer("foodlink/search")

// Service federates a search across the attribute store, which narrows the
// candidate set, and the record store, which supplies the truth that is
// ranked and returned.
type Service struct {
	attributes Attributes
	records    Records
	logger     *slog.Logger
	metrics    *Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(attrs Attributes, records Records, opts ...Option) (*Service, error) {
	if attrs == nil {
		return nil, errors.New("attribute store is required")
	}
	if records == nil {
		return nil, errors.New("record store is required")
	}
	svc := &Service{attributes: attrs, records: records, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *Service) Search(ctx context.Context, q Query) (*Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "search.Search")
	defer span.End()

	q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.applySavedPreferences(ctx, &q); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load preferences")
		return nil, err
	}

	candidates, err := s.attributes.SearchCandidates(ctx, attributes.CandidateQuery{
		Statuses:         q.Statuses,
		Priorities:       q.Priorities,
		PreferredTypes:   q.PreferredTypes,
		RejectedTypes:    q.RejectedTypes,
		AvoidedAllergens: q.AvoidedAllergens,
		Origin:           q.Origin,
		MaxDistanceKm:    q.MaxDistanceKm,
		Limit:            q.window(),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "attribute query")
		s.logger.ErrorContext(ctx, "attribute store query failed", "error", err)
		return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "donation search is temporarily unavailable")
	}
	candidates = dedupe(candidates)

	items, err := s.hydrate(ctx, q, candidates)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "hydrate")
		s.logger.ErrorContext(ctx, "record store hydration failed", "error", err, "candidates", len(candidates))
		return nil, dErrors.Wrap(err, dErrors.CodeUpstream, "donation search is temporarily unavailable")
	}

	rank(items, tagSet(q.PreferredTypes))
	page, pagination := paginate(items, q.Page, q.PageSize)
	if truncated(q, len(candidates), pagination) {
		pagination.HasNextPage = true
	}

	span.SetAttributes(
		attribute.Int("search.candidates", len(candidates)),
		attribute.Int("search.hydrated", len(items)),
		attribute.Int("search.returned", len(page)),
	)
	s.metrics.observe(start, len(candidates))
	return &Result{Items: page, Pagination: pagination}, nil
}

// applySavedPreferences fills an organization's saved profile into a query
// that brought none of its own.
func (s *Service) applySavedPreferences(ctx context.Context, q *Query) error {
	if !q.Caller.Roles.Can(domain.CapabilityClaim) || q.hasOwnPreferences() {
		return nil
	}
	prefs, err := s.attributes.OrganizationPreferences(ctx, q.Caller.UserID.AsOrganization())
	if err != nil {
		s.logger.ErrorContext(ctx, "loading saved preferences failed", "error", err)
		return dErrors.Wrap(err, dErrors.CodeUpstream, "donation search is temporarily unavailable")
	}
	if prefs.IsEmpty() {
		return nil
	}
	q.PreferredTypes = prefs.PreferredTypes
	q.RejectedTypes = prefs.RejectedTypes
	q.AvoidedAllergens = prefs.AvoidedAllergens
	q.Origin = prefs.Location
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("search.saved_preferences", true))
	return nil
}

// hydrate loads the candidate records and re-checks them against the query,
// since the attribute store may lag the records.
func (s *Service) hydrate(ctx context.Context, q Query, candidates []attributes.Candidate) ([]Item, error) {
	if len(candidates) == 0 {
		return []Item{}, nil
	}
	ids := make([]domain.DonationID, len(candidates))
	for i, c := range candidates {
		ids[i] = c.DonationID
	}
	records, err := s.records.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[domain.DonationID]*models.Donation, len(records))
	for _, d := range records {
		byID[d.ID] = d
	}

	statuses := make(map[models.Status]struct{}, len(q.Statuses))
	for _, st := range q.Statuses {
		statuses[st] = struct{}{}
	}
	priorities := make(map[models.Priority]struct{}, len(q.Priorities))
	for _, p := range q.Priorities {
		priorities[p] = struct{}{}
	}
	rejected := tagSet(q.RejectedTypes)
	avoided := tagSet(q.AvoidedAllergens)

	items := make([]Item, 0, len(candidates))
	var missing, stale int
	for _, c := range candidates {
		d, ok := byID[c.DonationID]
		if !ok {
			missing++
			continue
		}
		if _, ok := statuses[d.Status]; !ok {
			stale++
			continue
		}
		if _, ok := priorities[d.Priority]; !ok {
			stale++
			continue
		}
		if d.HasAnyFoodType(rejected) || d.HasAnyAllergen(avoided) {
			stale++
			continue
		}
		item := Item{Donation: d}
		if q.Origin != nil {
			dist := attributes.HaversineKm(*q.Origin, attributes.GeoPoint{Latitude: d.Latitude, Longitude: d.Longitude})
			if dist > q.MaxDistanceKm {
				stale++
				continue
			}
			item.DistanceKm = &dist
		}
		items = append(items, item)
	}
	if missing > 0 || stale > 0 {
		s.logger.WarnContext(ctx, "attribute store diverged from records",
			"missing", missing,
			"stale", stale,
		)
	}
	s.metrics.diverged("missing", missing)
	s.metrics.diverged("stale", stale)
	return items, nil
}

// dedupe keeps one candidate per donation, preferring the smallest distance.
func dedupe(candidates []attributes.Candidate) []attributes.Candidate {
	index := make(map[domain.DonationID]int, len(candidates))
	out := make([]attributes.Candidate, 0, len(candidates))
	for _, c := range candidates {
		i, seen := index[c.DonationID]
		if !seen {
			index[c.DonationID] = len(out)
			out = append(out, c)
			continue
		}
		if c.DistanceKm != nil && (out[i].DistanceKm == nil || *c.DistanceKm < *out[i].DistanceKm) {
			out[i].DistanceKm = c.DistanceKm
		}
	}
	return out
}
