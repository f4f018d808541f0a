//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks ClaimStore,DonationStore,Outbox,AttemptLimiter
package service

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"foodlink/internal/claim/models"
	donationmodels "foodlink/internal/donation/models"
	"foodlink/internal/outbox"
	ratelimitmodels "foodlink/internal/ratelimit/models"
	"foodlink/pkg/domain"
	dErrors "foodlink/pkg/domain-errors"
	"foodlink/pkg/platform/sentinel"
	"foodlink/pkg/platform/tx"
	"foodlink/pkg/requestcontext"
)

type ClaimStore interface {
	Create(ctx context.Context, c *models.Claim) error
	FindByID(ctx context.Context, id domain.ClaimID) (*models.Claim, error)
	FindPendingByDonation(ctx context.Context, donationID domain.DonationID) (*models.Claim, error)
	ListByOrganization(ctx context.Context, org domain.OrganizationID, status *models.Status) ([]*models.Claim, error)
	TransitionStatus(ctx context.Context, id domain.ClaimID, from, to models.Status, now time.Time) (bool, error)
	ListTimedOut(ctx context.Context, now time.Time, limit int) ([]*models.Claim, error)
	ExpirePendingForDonation(ctx context.Context, donationID domain.DonationID, now time.Time) ([]*models.Claim, error)
}

// DonationStore is the slice of the donation record store the claim
// lifecycle needs. Every status change goes through TransitionStatus.
type DonationStore interface {
	FindByID(ctx context.Context, id domain.DonationID) (*donationmodels.Donation, error)
	TransitionStatus(ctx context.Context, id domain.DonationID, from, to donationmodels.Status, now time.Time) (bool, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]*donationmodels.Donation, error)
}

type Outbox interface {
	Append(ctx context.Context, e *outbox.Entry) error
}

var tracer = otel.Tracer("foodlink/claim")

// errLostRace aborts a unit whose conditional write found the record
// already moved by someone else.
var errLostRace = errors.New("conditional write lost")

// AttemptLimiter refuses code verification for a key that failed too often.
type AttemptLimiter interface {
	Check(ctx context.Context, key string) error
	RecordFailure(ctx context.Context, key string)
	Clear(ctx context.Context, key string)
}

// Service runs the claim state machine. It is the only writer of donation
// status outside donation creation.
type Service struct {
	claims    ClaimStore
	donations DonationStore
	outbox    Outbox
	tx        tx.Runner
	logger    *slog.Logger
	metrics   *Metrics
	random    io.Reader
	hashCost  int
	attempts  AttemptLimiter
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

// WithHashCost sets the bcrypt cost for claim codes.
func WithHashCost(cost int) Option {
	return func(s *Service) {
		s.hashCost = cost
	}
}

// WithRandom replaces the entropy source used for claim codes.
func WithRandom(r io.Reader) Option {
	return func(s *Service) {
		s.random = r
	}
}

// WithAttemptLimiter bounds wrong codes per organization and donation.
func WithAttemptLimiter(l AttemptLimiter) Option {
	return func(s *Service) {
		s.attempts = l
	}
}

func New(claims ClaimStore, donations DonationStore, ob Outbox, runner tx.Runner, opts ...Option) (*Service, error) {
	if claims == nil {
		return nil, errors.New("claim store is required")
	}
	if donations == nil {
		return nil, errors.New("donation store is required")
	}
	if ob == nil {
		return nil, errors.New("outbox is required")
	}
	if runner == nil {
		return nil, errors.New("tx runner is required")
	}
	svc := &Service{
		claims:    claims,
		donations: donations,
		outbox:    ob,
		tx:        runner,
		logger:    slog.Default(),
		random:    rand.Reader,
		hashCost:  bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create reserves an available donation for the calling organization and
// returns the one-time code the organization must present at handover.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*CreateResult, error) {
	ctx, span := tracer.Start(ctx, "claim.Create",
		trace.WithAttributes(attribute.String("donation_id", cmd.DonationID.String())))
	defer span.End()

	res, err := s.create(ctx, cmd)
	endSpan(span, err)
	return res, err
}

func (s *Service) create(ctx context.Context, cmd CreateCommand) (*CreateResult, error) {
	if err := cmd.Caller.Require(domain.CapabilityClaim, "only organizations can claim donations"); err != nil {
		return nil, err
	}
	mode, err := models.ParseDeliveryMode(cmd.DeliveryMode)
	if err != nil {
		return nil, err
	}
	buffer, err := ParseBuffer(cmd.PickupBuffer)
	if err != nil {
		return nil, err
	}
	code, err := generateCode(s.random)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create claim")
	}
	hash, err := hashCode(code, s.hashCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create claim")
	}

	now := requestcontext.Now(ctx)
	claim := &models.Claim{
		ID:              domain.NewClaimID(),
		OrganizationID:  cmd.Caller.UserID.AsOrganization(),
		DonationID:      cmd.DonationID,
		DeliveryMode:    mode,
		CodeHash:        hash,
		BufferExpiresAt: now.Add(buffer),
		Status:          models.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	unavailable := dErrors.New(dErrors.CodeUnavailable, "donation is not available to claim")

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		d, err := s.donations.FindByID(ctx, cmd.DonationID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return unavailable
			}
			return err
		}
		if d.Status != donationmodels.StatusAvailable || d.IsOverdue(now) {
			return unavailable
		}
		applied, err := s.donations.TransitionStatus(ctx, d.ID, donationmodels.StatusAvailable, donationmodels.StatusClaimed, now)
		if err != nil {
			return err
		}
		if !applied {
			s.metrics.lostRace("create")
			return unavailable
		}
		if err := s.claims.Create(ctx, claim); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				s.metrics.lostRace("create")
				return unavailable
			}
			return err
		}
		if err := s.appendStatusChanged(ctx, d.ID, donationmodels.StatusClaimed, now); err != nil {
			return err
		}
		return s.appendClaimEvent(ctx, outbox.KindClaimCreated, claim, code, now)
	})
	if err != nil {
		return nil, wrapInternal(err, "failed to create claim")
	}

	s.metrics.transition(models.StatusPending, "create")
	s.logger.InfoContext(ctx, "donation claimed",
		"claim_id", claim.ID,
		"donation_id", claim.DonationID,
		"organization_id", claim.OrganizationID,
		"delivery_mode", claim.DeliveryMode,
		"buffer_expires_at", claim.BufferExpiresAt,
	)
	return &CreateResult{Claim: claim, Code: code}, nil
}

// Verify completes a pickup when the calling organization presents the code
// of the donation's pending claim.
func (s *Service) Verify(ctx context.Context, cmd VerifyCommand) (*models.Claim, error) {
	ctx, span := tracer.Start(ctx, "claim.Verify",
		trace.WithAttributes(attribute.String("donation_id", cmd.DonationID.String())))
	defer span.End()

	c, err := s.verify(ctx, cmd)
	endSpan(span, err)
	return c, err
}

func (s *Service) verify(ctx context.Context, cmd VerifyCommand) (*models.Claim, error) {
	if err := cmd.Caller.Require(domain.CapabilityClaim, "only organizations can verify pickups"); err != nil {
		return nil, err
	}
	key := ratelimitmodels.VerifyKey(cmd.Caller.UserID.AsOrganization(), cmd.DonationID)
	if s.attempts != nil {
		if err := s.attempts.Check(ctx, key); err != nil {
			return nil, err
		}
	}
	if !wellFormedCode(cmd.Code) {
		return nil, s.rejectCode(ctx, key)
	}
	claim, err := s.claims.FindPendingByDonation(ctx, cmd.DonationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, s.rejectCode(ctx, key)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to verify claim")
	}
	if claim.OrganizationID != cmd.Caller.UserID.AsOrganization() || !codeMatches(claim.CodeHash, cmd.Code) {
		return nil, s.rejectCode(ctx, key)
	}
	if s.attempts != nil {
		s.attempts.Clear(ctx, key)
	}

	now := requestcontext.Now(ctx)
	if claim.IsBufferExpired(now) {
		applied, err := s.expireClaim(ctx, claim, "verify")
		if err != nil {
			return nil, err
		}
		if !applied {
			return nil, s.currentState(ctx, claim.ID)
		}
		return nil, dErrors.New(dErrors.CodeClaimExpired, "claim has expired")
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		applied, err := s.claims.TransitionStatus(ctx, claim.ID, models.StatusPending, models.StatusDelivered, now)
		if err != nil {
			return err
		}
		if !applied {
			return errLostRace
		}
		applied, err = s.donations.TransitionStatus(ctx, claim.DonationID, donationmodels.StatusClaimed, donationmodels.StatusDelivered, now)
		if err != nil {
			return err
		}
		if !applied {
			return errLostRace
		}
		claim.Status = models.StatusDelivered
		claim.UpdatedAt = now
		if err := s.appendStatusChanged(ctx, claim.DonationID, donationmodels.StatusDelivered, now); err != nil {
			return err
		}
		return s.appendClaimEvent(ctx, outbox.KindClaimDelivered, claim, "", now)
	})
	if errors.Is(err, errLostRace) {
		s.metrics.lostRace("verify")
		return nil, s.currentState(ctx, claim.ID)
	}
	if err != nil {
		return nil, wrapInternal(err, "failed to verify claim")
	}

	s.metrics.transition(models.StatusDelivered, "verify")
	s.logger.InfoContext(ctx, "pickup verified",
		"claim_id", claim.ID,
		"donation_id", claim.DonationID,
		"organization_id", claim.OrganizationID,
	)
	return claim, nil
}

func (s *Service) rejectCode(ctx context.Context, key string) error {
	s.metrics.codeRejected()
	if s.attempts != nil {
		s.attempts.RecordFailure(ctx, key)
	}
	return dErrors.New(dErrors.CodeInvalidCode, "invalid or unknown code")
}

// currentState re-reads a claim after a lost race and reports why the
// caller's operation no longer applies.
func (s *Service) currentState(ctx context.Context, id domain.ClaimID) error {
	c, err := s.claims.FindByID(ctx, id)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read claim")
	}
	switch c.Status {
	case models.StatusExpired:
		return dErrors.New(dErrors.CodeClaimExpired, "claim has expired")
	case models.StatusDelivered:
		return dErrors.New(dErrors.CodeConflict, "claim was already delivered")
	case models.StatusCancelled:
		return dErrors.New(dErrors.CodeInvalidCode, "claim was cancelled")
	}
	return dErrors.New(dErrors.CodeConflict, "donation changed concurrently, retry")
}

// Cancel releases the calling organization's pending claim and makes the
// donation available again.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*models.Claim, error) {
	ctx, span := tracer.Start(ctx, "claim.Cancel",
		trace.WithAttributes(attribute.String("claim_id", cmd.ClaimID.String())))
	defer span.End()

	c, err := s.cancel(ctx, cmd)
	endSpan(span, err)
	return c, err
}

func (s *Service) cancel(ctx context.Context, cmd CancelCommand) (*models.Claim, error) {
	if err := cmd.Caller.Require(domain.CapabilityClaim, "only organizations can cancel claims"); err != nil {
		return nil, err
	}
	claim, err := s.claims.FindByID(ctx, cmd.ClaimID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "claim not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to cancel claim")
	}
	if claim.OrganizationID != cmd.Caller.UserID.AsOrganization() {
		return nil, dErrors.New(dErrors.CodeForbidden, "claim belongs to another organization")
	}
	notCancellable := dErrors.New(dErrors.CodeNotCancellable, "only pending claims can be cancelled")
	if claim.Status != models.StatusPending {
		return nil, notCancellable
	}

	now := requestcontext.Now(ctx)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		applied, err := s.claims.TransitionStatus(ctx, claim.ID, models.StatusPending, models.StatusCancelled, now)
		if err != nil {
			return err
		}
		if !applied {
			return errLostRace
		}
		claim.Status = models.StatusCancelled
		claim.UpdatedAt = now
		if err := s.releaseDonation(ctx, claim.DonationID, now); err != nil {
			return err
		}
		return s.appendClaimEvent(ctx, outbox.KindClaimCancelled, claim, "", now)
	})
	if errors.Is(err, errLostRace) {
		s.metrics.lostRace("cancel")
		return nil, notCancellable
	}
	if err != nil {
		return nil, wrapInternal(err, "failed to cancel claim")
	}

	s.metrics.transition(models.StatusCancelled, "cancel")
	s.logger.InfoContext(ctx, "claim cancelled",
		"claim_id", claim.ID,
		"donation_id", claim.DonationID,
		"organization_id", claim.OrganizationID,
	)
	return claim, nil
}

// List returns an organization's claims newest first.
func (s *Service) List(ctx context.Context, org domain.OrganizationID, status *models.Status) ([]*models.Claim, error) {
	claims, err := s.claims.ListByOrganization(ctx, org, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list claims")
	}
	return claims, nil
}

// releaseDonation moves a claimed donation back to available. A donation
// that already left claimed is left alone.
func (s *Service) releaseDonation(ctx context.Context, id domain.DonationID, now time.Time) error {
	applied, err := s.donations.TransitionStatus(ctx, id, donationmodels.StatusClaimed, donationmodels.StatusAvailable, now)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return err
	}
	if !applied {
		s.logger.WarnContext(ctx, "donation was not claimed when its claim ended", "donation_id", id)
		return nil
	}
	return s.appendStatusChanged(ctx, id, donationmodels.StatusAvailable, now)
}

func (s *Service) appendStatusChanged(ctx context.Context, id domain.DonationID, status donationmodels.Status, now time.Time) error {
	entry, err := outbox.NewEntry(outbox.KindDonationStatusChanged, uuid.UUID(id),
		outbox.DonationStatusChanged{DonationID: uuid.UUID(id), Status: string(status)}, now)
	if err != nil {
		return err
	}
	return s.outbox.Append(ctx, entry)
}

func (s *Service) appendClaimEvent(ctx context.Context, kind outbox.Kind, c *models.Claim, code string, now time.Time) error {
	entry, err := outbox.NewEntry(kind, uuid.UUID(c.ID), outbox.ClaimEvent{
		ClaimID:         uuid.UUID(c.ID),
		DonationID:      uuid.UUID(c.DonationID),
		OrganizationID:  uuid.UUID(c.OrganizationID),
		DeliveryMode:    string(c.DeliveryMode),
		Status:          string(c.Status),
		Code:            code,
		BufferExpiresAt: c.BufferExpiresAt,
		OccurredAt:      now,
	}, now)
	if err != nil {
		return err
	}
	return s.outbox.Append(ctx, entry)
}

func endSpan(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	if de, ok := dErrors.As(err); ok && de.Code != dErrors.CodeInternal {
		span.SetAttributes(attribute.String("error.code", string(de.Code)))
		return
	}
	span.SetStatus(codes.Error, err.Error())
}

// wrapInternal passes coded errors through and wraps anything else.
func wrapInternal(err error, msg string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
