package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"foodlink/internal/donation/models"
	"foodlink/internal/outbox"
	"foodlink/pkg/domain"
	dErrors "foodlink/pkg/domain-errors"
	"foodlink/pkg/platform/sentinel"
	"foodlink/pkg/platform/tx"
	"foodlink/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, d *models.Donation) error
	Update(ctx context.Context, d *models.Donation) error
	DeleteAvailable(ctx context.Context, id domain.DonationID) (bool, error)
	FindByID(ctx context.Context, id domain.DonationID) (*models.Donation, error)
}

// ClaimHistory tells whether a donation was ever claimed. Claims are kept
// forever, so their donation is too.
type ClaimHistory interface {
	HasClaims(ctx context.Context, id domain.DonationID) (bool, error)
}

// Outbox receives follow-up entries inside the caller's unit.
type Outbox interface {
	Append(ctx context.Context, e *outbox.Entry) error
}

// Service owns donation records. Status changes happen elsewhere; this
// service only creates, edits and removes donations.
type Service struct {
	store  Store
	claims ClaimHistory
	outbox Outbox
	tx     tx.Runner
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, claims ClaimHistory, ob Outbox, runner tx.Runner, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("donation store is required")
	}
	if claims == nil {
		return nil, errors.New("claim history is required")
	}
	if ob == nil {
		return nil, errors.New("outbox is required")
	}
	if runner == nil {
		return nil, errors.New("tx runner is required")
	}
	svc := &Service{store: store, claims: claims, outbox: ob, tx: runner, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*models.Donation, error) {
	actor := requestcontext.Actor(ctx)
	if err := actor.Require(domain.CapabilityDonate, "only donors can create donations"); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	cmd.Normalize()
	if err := cmd.Validate(now); err != nil {
		return nil, err
	}

	priority := models.DerivePriority(now, cmd.ExpiresAt)
	if cmd.Priority != nil {
		priority = *cmd.Priority
	}
	d := &models.Donation{
		ID:          domain.NewDonationID(),
		OwnerID:     actor.UserID,
		Status:      models.StatusAvailable,
		Title:       cmd.Title,
		Description: cmd.Description,
		FoodTypes:   cmd.FoodTypes,
		Allergens:   cmd.Allergens,
		Quantity:    cmd.Quantity,
		Address:     cmd.Address,
		City:        cmd.City,
		State:       cmd.State,
		Latitude:    cmd.Latitude,
		Longitude:   cmd.Longitude,
		ExpiresAt:   cmd.ExpiresAt.UTC(),
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, d); err != nil {
			return err
		}
		return s.enqueueUpsert(ctx, d, now)
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create donation")
	}
	s.logger.InfoContext(ctx, "donation created",
		"donation_id", d.ID,
		"owner_id", d.OwnerID,
		"priority", d.Priority,
		"expires_at", d.ExpiresAt,
	)
	return d, nil
}

func (s *Service) Get(ctx context.Context, id domain.DonationID) (*models.Donation, error) {
	d, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, translateLookup(err)
	}
	return d, nil
}

// Update rewrites a donation's descriptive fields. Only the owner may edit,
// and terminal donations are frozen.
func (s *Service) Update(ctx context.Context, cmd UpdateCommand) (*models.Donation, error) {
	actor := requestcontext.Actor(ctx)
	if actor.UserID.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	now := requestcontext.Now(ctx)
	cmd.Normalize()
	if err := cmd.Validate(now); err != nil {
		return nil, err
	}

	var updated *models.Donation
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.store.FindByID(ctx, cmd.ID)
		if err != nil {
			return translateLookup(err)
		}
		if current.OwnerID != actor.UserID {
			return dErrors.New(dErrors.CodeForbidden, "only the owner can edit this donation")
		}
		if current.Status.IsTerminal() {
			return dErrors.New(dErrors.CodeConflict, "donation is "+string(current.Status)+" and can no longer be edited")
		}

		next := *current
		next.Title = cmd.Title
		next.Description = cmd.Description
		next.FoodTypes = cmd.FoodTypes
		next.Allergens = cmd.Allergens
		next.Quantity = cmd.Quantity
		next.Address = cmd.Address
		next.City = cmd.City
		next.State = cmd.State
		next.Latitude = cmd.Latitude
		next.Longitude = cmd.Longitude
		next.ExpiresAt = cmd.ExpiresAt.UTC()
		next.UpdatedAt = now
		if err := s.store.Update(ctx, &next); err != nil {
			return translateLookup(err)
		}
		updated = &next
		return s.enqueueUpsert(ctx, &next, now)
	})
	if err != nil {
		return nil, wrapInternal(err, "failed to update donation")
	}
	return updated, nil
}

// Delete removes a donation. The owner or an admin may delete, but never
// while a claim holds it.
func (s *Service) Delete(ctx context.Context, id domain.DonationID) error {
	actor := requestcontext.Actor(ctx)
	if actor.UserID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	now := requestcontext.Now(ctx)

	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.store.FindByID(ctx, id)
		if err != nil {
			return translateLookup(err)
		}
		if current.OwnerID != actor.UserID && !actor.Roles.Can(domain.CapabilityAdminister) {
			return dErrors.New(dErrors.CodeForbidden, "only the owner or an admin can delete this donation")
		}
		if current.Status != models.StatusAvailable {
			return dErrors.New(dErrors.CodeConflict, "only available donations can be deleted")
		}
		claimed, err := s.claims.HasClaims(ctx, id)
		if err != nil {
			return err
		}
		if claimed {
			return dErrors.New(dErrors.CodeConflict, "donation has claim history and cannot be deleted")
		}
		applied, err := s.store.DeleteAvailable(ctx, id)
		if errors.Is(err, sentinel.ErrConflict) || (err == nil && !applied) {
			return dErrors.New(dErrors.CodeConflict, "donation is no longer available and cannot be deleted")
		}
		if err != nil {
			return translateLookup(err)
		}
		entry, err := outbox.NewEntry(outbox.KindDonationDeleted, uuid.UUID(id),
			outbox.DonationDeleted{DonationID: uuid.UUID(id)}, now)
		if err != nil {
			return err
		}
		return s.outbox.Append(ctx, entry)
	})
	if err != nil {
		return wrapInternal(err, "failed to delete donation")
	}
	s.logger.InfoContext(ctx, "donation deleted", "donation_id", id, "actor_id", actor.UserID)
	return nil
}

func (s *Service) enqueueUpsert(ctx context.Context, d *models.Donation, now time.Time) error {
	entry, err := outbox.NewEntry(outbox.KindDonationUpserted, uuid.UUID(d.ID), UpsertPayload(d), now)
	if err != nil {
		return err
	}
	return s.outbox.Append(ctx, entry)
}

// UpsertPayload describes a donation for the mirror.
func UpsertPayload(d *models.Donation) outbox.DonationUpserted {
	return outbox.DonationUpserted{
		DonationID: uuid.UUID(d.ID),
		Status:     string(d.Status),
		Priority:   string(d.Priority),
		FoodTypes:  d.FoodTypes,
		Allergens:  d.Allergens,
		Latitude:   d.Latitude,
		Longitude:  d.Longitude,
		ExpiresAt:  d.ExpiresAt,
		CreatedAt:  d.CreatedAt,
	}
}

func translateLookup(err error) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "donation not found")
	}
	return err
}

// wrapInternal passes coded errors through and wraps anything else.
func wrapInternal(err error, msg string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
