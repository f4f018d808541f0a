package service

import (
	"context"
	"errors"

	"foodlink/internal/claim/models"
	donationmodels "foodlink/internal/donation/models"
	"foodlink/internal/outbox"
	"foodlink/pkg/platform/sentinel"
	"foodlink/pkg/requestcontext"
)

// ExpireClaim ends a pending claim whose pickup window has closed and
// releases its donation. It reports false when the claim had already left
// pending.
func (s *Service) ExpireClaim(ctx context.Context, c *models.Claim) (bool, error) {
	return s.expireClaim(ctx, c, "reaper")
}

func (s *Service) expireClaim(ctx context.Context, c *models.Claim, source string) (bool, error) {
	now := requestcontext.Now(ctx)
	expired := *c
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		applied, err := s.claims.TransitionStatus(ctx, c.ID, models.StatusPending, models.StatusExpired, now)
		if err != nil {
			return err
		}
		if !applied {
			return errLostRace
		}
		expired.Status = models.StatusExpired
		expired.UpdatedAt = now
		if err := s.releaseDonation(ctx, c.DonationID, now); err != nil {
			return err
		}
		return s.appendClaimEvent(ctx, outbox.KindClaimExpired, &expired, "", now)
	})
	if errors.Is(err, errLostRace) {
		s.metrics.lostRace("expire_claim")
		return false, nil
	}
	if err != nil {
		return false, wrapInternal(err, "failed to expire claim")
	}
	s.metrics.transition(models.StatusExpired, source)
	s.logger.InfoContext(ctx, "claim expired",
		"claim_id", c.ID,
		"donation_id", c.DonationID,
		"source", source,
	)
	return true, nil
}

// ExpireDonation marks an overdue donation expired and expires its pending
// claim with it. Delivered claims are never touched.
func (s *Service) ExpireDonation(ctx context.Context, d *donationmodels.Donation) (bool, error) {
	now := requestcontext.Now(ctx)
	var cascaded []*models.Claim
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.donations.FindByID(ctx, d.ID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return errLostRace
			}
			return err
		}
		if !current.IsOverdue(now) {
			return errLostRace
		}
		cascaded, err = s.claims.ExpirePendingForDonation(ctx, current.ID, now)
		if err != nil {
			return err
		}
		applied, err := s.donations.TransitionStatus(ctx, current.ID, current.Status, donationmodels.StatusExpired, now)
		if err != nil {
			return err
		}
		if !applied {
			return errLostRace
		}
		if err := s.appendStatusChanged(ctx, current.ID, donationmodels.StatusExpired, now); err != nil {
			return err
		}
		for _, c := range cascaded {
			if err := s.appendClaimEvent(ctx, outbox.KindClaimExpired, c, "", now); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errLostRace) {
		s.metrics.lostRace("expire_donation")
		return false, nil
	}
	if err != nil {
		return false, wrapInternal(err, "failed to expire donation")
	}
	for range cascaded {
		s.metrics.transition(models.StatusExpired, "donation_expiry")
	}
	s.logger.InfoContext(ctx, "donation expired",
		"donation_id", d.ID,
		"expired_claims", len(cascaded),
	)
	return true, nil
}

// TimedOutClaims lists pending claims whose window closed before now.
func (s *Service) TimedOutClaims(ctx context.Context, limit int) ([]*models.Claim, error) {
	return s.claims.ListTimedOut(ctx, requestcontext.Now(ctx), limit)
}

// OverdueDonations lists available or claimed donations past their expiry.
func (s *Service) OverdueDonations(ctx context.Context, limit int) ([]*donationmodels.Donation, error) {
	return s.donations.ListOverdue(ctx, requestcontext.Now(ctx), limit)
}
