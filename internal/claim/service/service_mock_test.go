package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"foodlink/internal/claim/models"
	"foodlink/internal/claim/service/mocks"
	donationmodels "foodlink/internal/donation/models"
	"foodlink/pkg/domain"
	dErrors "foodlink/pkg/domain-errors"
	"foodlink/pkg/platform/tx"
	"foodlink/pkg/requestcontext"
)

// RaceSuite drives the service against mocked stores to reproduce
// interleavings the in-memory stores cannot produce on demand.
type RaceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	claims    *mocks.MockClaimStore
	donations *mocks.MockDonationStore
	outbox    *mocks.MockOutbox
	service   *Service
	now       time.Time
	org       domain.Actor
}

func TestRaceSuite(t *testing.T) {
	suite.Run(t, new(RaceSuite))
}

func (s *RaceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.claims = mocks.NewMockClaimStore(s.ctrl)
	s.donations = mocks.NewMockDonationStore(s.ctrl)
	s.outbox = mocks.NewMockOutbox(s.ctrl)
	svc, err := New(s.claims, s.donations, s.outbox, tx.NewLockRunner(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithHashCost(bcrypt.MinCost))
	s.Require().NoError(err)
	s.service = svc
	s.now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s.org = domain.Actor{UserID: domain.UserID(uuid.New()), Roles: domain.NewRoleSet(domain.RoleOrganization)}
}

func (s *RaceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *RaceSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *RaceSuite) pendingClaim(code string) *models.Claim {
	hash, err := hashCode(code, bcrypt.MinCost)
	s.Require().NoError(err)
	return &models.Claim{
		ID:              domain.NewClaimID(),
		OrganizationID:  s.org.UserID.AsOrganization(),
		DonationID:      domain.NewDonationID(),
		DeliveryMode:    models.DeliverySelfPickup,
		CodeHash:        hash,
		BufferExpiresAt: s.now.Add(time.Hour),
		Status:          models.StatusPending,
		CreatedAt:       s.now,
		UpdatedAt:       s.now,
	}
}

func (s *RaceSuite) TestVerifyLosingToTheReaperReportsExpiry() {
	c := s.pendingClaim("424242")
	expired := *c
	expired.Status = models.StatusExpired

	s.claims.EXPECT().FindPendingByDonation(gomock.Any(), c.DonationID).Return(c, nil)
	s.claims.EXPECT().TransitionStatus(gomock.Any(), c.ID, models.StatusPending, models.StatusDelivered, s.now).Return(false, nil)
	s.claims.EXPECT().FindByID(gomock.Any(), c.ID).Return(&expired, nil)

	_, err := s.service.Verify(s.ctx(), VerifyCommand{DonationID: c.DonationID, Caller: s.org, Code: "424242"})
	s.True(dErrors.HasCode(err, dErrors.CodeClaimExpired))
}

func (s *RaceSuite) TestVerifyRollsBackWhenDonationMoved() {
	c := s.pendingClaim("424242")

	s.claims.EXPECT().FindPendingByDonation(gomock.Any(), c.DonationID).Return(c, nil)
	s.claims.EXPECT().TransitionStatus(gomock.Any(), c.ID, models.StatusPending, models.StatusDelivered, s.now).Return(true, nil)
	s.donations.EXPECT().TransitionStatus(gomock.Any(), c.DonationID, donationmodels.StatusClaimed, donationmodels.StatusDelivered, s.now).Return(false, nil)
	s.claims.EXPECT().FindByID(gomock.Any(), c.ID).Return(c, nil)

	_, err := s.service.Verify(s.ctx(), VerifyCommand{DonationID: c.DonationID, Caller: s.org, Code: "424242"})
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *RaceSuite) TestCancelLosingRaceIsNotCancellable() {
	c := s.pendingClaim("111111")

	s.claims.EXPECT().FindByID(gomock.Any(), c.ID).Return(c, nil)
	s.claims.EXPECT().TransitionStatus(gomock.Any(), c.ID, models.StatusPending, models.StatusCancelled, s.now).Return(false, nil)

	_, err := s.service.Cancel(s.ctx(), CancelCommand{ClaimID: c.ID, Caller: s.org})
	s.True(dErrors.HasCode(err, dErrors.CodeNotCancellable))
}

func (s *RaceSuite) TestCreateStoreFailureIsInternal() {
	d := &donationmodels.Donation{
		ID:        domain.NewDonationID(),
		Status:    donationmodels.StatusAvailable,
		ExpiresAt: s.now.Add(time.Hour),
	}
	s.donations.EXPECT().FindByID(gomock.Any(), d.ID).Return(d, nil)
	s.donations.EXPECT().TransitionStatus(gomock.Any(), d.ID, donationmodels.StatusAvailable, donationmodels.StatusClaimed, s.now).Return(true, nil)
	s.claims.EXPECT().Create(gomock.Any(), gomock.Any()).Return(errors.New("connection reset"))

	_, err := s.service.Create(s.ctx(), CreateCommand{DonationID: d.ID, Caller: s.org, DeliveryMode: "delivery", PickupBuffer: "1h"})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *RaceSuite) TestListFailureIsInternal() {
	s.claims.EXPECT().ListByOrganization(gomock.Any(), s.org.UserID.AsOrganization(), nil).Return(nil, errors.New("timeout"))

	_, err := s.service.List(s.ctx(), s.org.UserID.AsOrganization(), nil)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *RaceSuite) TestLockedVerifyNeverReadsTheClaim() {
	limiter := mocks.NewMockAttemptLimiter(s.ctrl)
	WithAttemptLimiter(limiter)(s.service)
	donationID := domain.NewDonationID()
	key := "verify:" + s.org.UserID.String() + ":" + donationID.String()

	limiter.EXPECT().Check(gomock.Any(), key).Return(dErrors.New(dErrors.CodeTooMany, "locked"))

	_, err := s.service.Verify(s.ctx(), VerifyCommand{DonationID: donationID, Caller: s.org, Code: "123456"})
	s.True(dErrors.HasCode(err, dErrors.CodeTooMany))
}

func (s *RaceSuite) TestLookupFailureIsNotCountedAsWrongCode() {
	limiter := mocks.NewMockAttemptLimiter(s.ctrl)
	WithAttemptLimiter(limiter)(s.service)
	donationID := domain.NewDonationID()

	limiter.EXPECT().Check(gomock.Any(), gomock.Any()).Return(nil)
	s.claims.EXPECT().FindPendingByDonation(gomock.Any(), donationID).Return(nil, errors.New("connection reset"))

	_, err := s.service.Verify(s.ctx(), VerifyCommand{DonationID: donationID, Caller: s.org, Code: "123456"})
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *RaceSuite) TestCorrectCodeClearsFailures() {
	limiter := mocks.NewMockAttemptLimiter(s.ctrl)
	WithAttemptLimiter(limiter)(s.service)
	c := s.pendingClaim("424242")

	limiter.EXPECT().Check(gomock.Any(), gomock.Any()).Return(nil)
	s.claims.EXPECT().FindPendingByDonation(gomock.Any(), c.DonationID).Return(c, nil)
	limiter.EXPECT().Clear(gomock.Any(), gomock.Any())
	s.claims.EXPECT().TransitionStatus(gomock.Any(), c.ID, models.StatusPending, models.StatusDelivered, s.now).Return(true, nil)
	s.donations.EXPECT().TransitionStatus(gomock.Any(), c.DonationID, donationmodels.StatusClaimed, donationmodels.StatusDelivered, s.now).Return(true, nil)
	s.outbox.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	_, err := s.service.Verify(s.ctx(), VerifyCommand{DonationID: c.DonationID, Caller: s.org, Code: "424242"})
	s.NoError(err)
}
