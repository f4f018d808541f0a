package service

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"foodlink/internal/claim/models"
	"foodlink/internal/claim/store"
	donationmodels "foodlink/internal/donation/models"
	donationstore "foodlink/internal/donation/store"
	"foodlink/internal/outbox"
	outboxstore "foodlink/internal/outbox/store"
	lockoutservice "foodlink/internal/ratelimit/service"
	lockoutstore "foodlink/internal/ratelimit/store"
	"foodlink/pkg/domain"
	dErrors "foodlink/pkg/domain-errors"
	"foodlink/pkg/platform/tx"
	"foodlink/pkg/requestcontext"
)

type ServiceSuite struct {
	suite.Suite
	claims    *store.InMemoryStore
	donations *donationstore.InMemoryStore
	outbox    *outboxstore.InMemoryStore
	service   *Service
	now       time.Time
	org       domain.Actor
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.claims = store.NewInMemory()
	s.donations = donationstore.NewInMemory()
	s.outbox = outboxstore.NewInMemory()
	svc, err := New(s.claims, s.donations, s.outbox, tx.NewLockRunner(),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithHashCost(bcrypt.MinCost))
	s.Require().NoError(err)
	s.service = svc
	s.now = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	s.org = organization()
}

func organization() domain.Actor {
	return domain.Actor{UserID: domain.UserID(uuid.New()), Roles: domain.NewRoleSet(domain.RoleOrganization)}
}

func (s *ServiceSuite) ctx() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func (s *ServiceSuite) ctxAt(t time.Time) context.Context {
	return requestcontext.WithTime(context.Background(), t)
}

func (s *ServiceSuite) seedDonation(status donationmodels.Status, expiresIn time.Duration) *donationmodels.Donation {
	d := &donationmodels.Donation{
		ID:        domain.NewDonationID(),
		OwnerID:   domain.UserID(uuid.New()),
		Status:    status,
		Title:     "Vegetable crate",
		FoodTypes: []string{"Produce"},
		Allergens: []string{},
		Quantity:  3,
		Latitude:  52.52,
		Longitude: 13.40,
		ExpiresAt: s.now.Add(expiresIn),
		Priority:  donationmodels.PriorityMedium,
		CreatedAt: s.now.Add(-time.Hour),
		UpdatedAt: s.now.Add(-time.Hour),
	}
	s.Require().NoError(s.donations.Create(context.Background(), d))
	return d
}

func (s *ServiceSuite) claim(d *donationmodels.Donation, org domain.Actor, buffer string) *CreateResult {
	res, err := s.service.Create(s.ctx(), CreateCommand{
		DonationID:   d.ID,
		Caller:       org,
		DeliveryMode: "self_pickup",
		PickupBuffer: buffer,
	})
	s.Require().NoError(err)
	return res
}

func (s *ServiceSuite) donationStatus(id domain.DonationID) donationmodels.Status {
	d, err := s.donations.FindByID(context.Background(), id)
	s.Require().NoError(err)
	return d.Status
}

func (s *ServiceSuite) claimStatus(id domain.ClaimID) models.Status {
	c, err := s.claims.FindByID(context.Background(), id)
	s.Require().NoError(err)
	return c.Status
}

func (s *ServiceSuite) kinds() []outbox.Kind {
	var out []outbox.Kind
	for _, e := range s.outbox.Entries() {
		out = append(out, e.Kind)
	}
	return out
}

func (s *ServiceSuite) entry(kind outbox.Kind) *outbox.Entry {
	for _, e := range s.outbox.Entries() {
		if e.Kind == kind {
			return e
		}
	}
	s.FailNow("no outbox entry", "kind %s", kind)
	return nil
}

func (s *ServiceSuite) TestCreate() {
	s.Run("claims an available donation", func() {
		d := s.seedDonation(donationmodels.StatusAvailable, 24*time.Hour)
		res := s.claim(d, s.org, "2h")

		s.Len(res.Code, 6)
		s.NotEqual(res.Code, res.Claim.CodeHash)
		s.Equal(models.StatusPending, res.Claim.Status)
		s.Equal(s.now.Add(2*time.Hour), res.Claim.BufferExpiresAt)
		s.Equal(s.org.UserID.AsOrganization(), res.Claim.OrganizationID)
		s.Equal(donationmodels.StatusClaimed, s.donationStatus(d.ID))

		s.ElementsMatch([]outbox.Kind{outbox.KindDonationStatusChanged, outbox.KindClaimCreated}, s.kinds())
		created := s.entry(outbox.KindClaimCreated)
		event, err := outbox.Decode[outbox.ClaimEvent](created)
		s.Require().NoError(err)
		s.Equal(res.Code, event.Code)
	})

	s.Run("donors cannot claim", func() {
		d := s.seedDonation(donationmodels.StatusAvailable, 24*time.Hour)
		donor := domain.Actor{UserID: domain.UserID(uuid.New()), Roles: domain.NewRoleSet(domain.RoleDonor)}
		_, err := s.service.Create(s.ctx(), CreateCommand{DonationID: d.ID, Caller: donor, DeliveryMode: "delivery", PickupBuffer: "1h"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal(donationmodels.StatusAvailable, s.donationStatus(d.ID))
	})

	s.Run("rejects malformed input", func() {
		d := s.seedDonation(donationmodels.StatusAvailable, 24*time.Hour)
		_, err := s.service.Create(s.ctx(), CreateCommand{DonationID: d.ID, Caller: s.org, DeliveryMode: "drone", PickupBuffer: "1h"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		_, err = s.service.Create(s.ctx(), CreateCommand{DonationID: d.ID, Caller: s.org, DeliveryMode: "delivery", PickupBuffer: "2 days"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(donationmodels.StatusAvailable, s.donationStatus(d.ID))
	})

	s.Run("unavailable donations", func() {
		claimed := s.seedDonation(donationmodels.StatusClaimed, 24*time.Hour)
		overdue := s.seedDonation(donationmodels.StatusAvailable, -time.Minute)
		for _, id := range []domain.DonationID{claimed.ID, overdue.ID, domain.NewDonationID()} {
			_, err := s.service.Create(s.ctx(), CreateCommand{DonationID: id, Caller: s.org, DeliveryMode: "delivery", PickupBuffer: "1h"})
			s.True(dErrors.HasCode(err, dErrors.CodeUnavailable), "donation %s", id)
		}
	})
}

func (s *ServiceSuite) TestConcurrentClaimsHaveOneWinner() {
	d := s.seedDonation(donationmodels.StatusAvailable, 24*time.Hour)

	const contenders = 12
	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.service.Create(s.ctx(), CreateCommand{
				DonationID:   d.ID,
				Caller:       organization(),
				DeliveryMode: "self_pickup",
				PickupBuffer: "30m",
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeUnavailable), "unexpected error: %v", err)
	}
	s.Equal(1, wins)
	s.Equal(donationmodels.StatusClaimed, s.donationStatus(d.ID))
}

func (s *ServiceSuite) TestVerify() {
	s.Run("correct code delivers the donation", func() {
		d := s.seedDonation(donationmodels.StatusAvailable, 24*time.Hour)
		res := s.claim(d, s.org, "2h")

		c, err := s.service.Verify(s.ctxAt(s.now.Add(time.Hour)), VerifyCommand{DonationID: d.ID, Caller: s.org, Code: res.Code})
		s.Require().NoError(err)
		s.Equal(models.StatusDelivered, c.Status)
		s.Equal(models.StatusDelivered, s.claimStatus(res.Claim.ID))
		s.Equal(donationmodels.StatusDelivered, s.donationStatus(d.ID))
		s.Contains(s.kinds(), outbox.KindClaimDelivered)

		_, err = s.service.Verify(s.ctx(), VerifyCommand{DonationID: d.ID, Caller: s.org, Code: res.Code})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCode), "no pending claim remains")
	})

	s.Run("wrong code changes nothing", func() {
		d := s.seedDonation(donationmodels.StatusAvailable, 24*time.Hour)
		res := s.claim(d, s.org, "2h")
		wrong := "000000"
		if res.Code == wrong {
			wrong = "111111"
		}
		for _, code := range []string{wrong, "12345", "abcdef", ""} {
			_, err := s.service.Verify(s.ctx(), VerifyCommand{DonationID: d.ID, Caller: s.org, Code: code})
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidCode), "code %q", code)
		}
		s.Equal(models.StatusPending, s.claimStatus(res.Claim.ID))
		s.Equal(donationmodels.StatusClaimed, s.donationStatus(d.ID))
	})

	s.Run("another organization cannot use the code", func() {
		d := s.seedDonation(donationmodels.StatusAvailable, 24*time.Hour)
		res := s.claim(d, s.org, "2h")
		_, err := s.service.Verify(s.ctx(), VerifyCommand{DonationID: d.ID, Caller: organization(), Code: res.Code})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCode))
		s.Equal(models.StatusPending, s.claimStatus(res.Claim.ID))
	})

	s.Run("past the buffer expires the claim", func() {
		d := s.seedDonation(donationmodels.StatusAvailable, 24*time.Hour)
		res := s.claim(d, s.org, "30m")

		_, err := s.service.Verify(s.ctxAt(s.now.Add(31*time.Minute)), VerifyCommand{DonationID: d.ID, Caller: s.org, Code: res.Code})
		s.True(dErrors.HasCode(err, dErrors.CodeClaimExpired))
		s.Equal(models.StatusExpired, s.claimStatus(res.Claim.ID))
		s.Equal(donationmodels.StatusAvailable, s.donationStatus(d.ID))
	})
}

func (s *ServiceSuite) TestVerifyLocksAfterRepeatedWrongCodes() {
	limiter, err := lockoutservice.New(lockoutstore.NewInMemory(),
		lockoutservice.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		lockoutservice.WithConfig(lockoutservice.Config{MaxAttempts: 3, Window: time.Hour, LockDuration: 15 * time.Minute}))
	s.Require().NoError(err)
	WithAttemptLimiter(limiter)(s.service)

	d := s.seedDonation(donationmodels.StatusAvailable, 24*time.Hour)
	res := s.claim(d, s.org, "2h")
	wrong := "000000"
	if res.Code == wrong {
		wrong = "111111"
	}

	for i := 0; i < 3; i++ {
		_, err := s.service.Verify(s.ctx(), VerifyCommand{DonationID: d.ID, Caller: s.org, Code: wrong})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCode))
	}

	_, err = s.service.Verify(s.ctx(), VerifyCommand{DonationID: d.ID, Caller: s.org, Code: res.Code})
	s.True(dErrors.HasCode(err, dErrors.CodeTooMany), "the right code is refused while locked")
	s.Equal(models.StatusPending, s.claimStatus(res.Claim.ID))

	other := s.seedDonation(donationmodels.StatusAvailable, 24*time.Hour)
	otherRes := s.claim(other, s.org, "2h")
	_, err = s.service.Verify(s.ctx(), VerifyCommand{DonationID: other.ID, Caller: s.org, Code: otherRes.Code})
	s.NoError(err, "the lock is scoped to one donation")

	c, err := s.service.Verify(s.ctxAt(s.now.Add(16*time.Minute)), VerifyCommand{DonationID: d.ID, Caller: s.org, Code: res.Code})
	s.Require().NoError(err)
	s.Equal(models.StatusDelivered, c.Status)
}

func (s *ServiceSuite) TestCancel() {
	s.Run("releases the donation", func() {
		d := s.seedDonation(donationmodels.StatusAvailable, 24*time.Hour)
		res := s.claim(d, s.org, "2h")

		c, err := s.service.Cancel(s.ctx(), CancelCommand{ClaimID: res.Claim.ID, Caller: s.org})
		s.Require().NoError(err)
		s.Equal(models.StatusCancelled, c.Status)
		s.Equal(donationmodels.StatusAvailable, s.donationStatus(d.ID))
		s.Contains(s.kinds(), outbox.KindClaimCancelled)

		again := s.claim(d, organization(), "1h")
		s.Equal(models.StatusPending, again.Claim.Status, "a released donation can be claimed again")
	})

	s.Run("rules", func() {
		d := s.seedDonation(donationmodels.StatusAvailable, 24*time.Hour)
		res := s.claim(d, s.org, "2h")

		_, err := s.service.Cancel(s.ctx(), CancelCommand{ClaimID: res.Claim.ID, Caller: organization()})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		_, err = s.service.Cancel(s.ctx(), CancelCommand{ClaimID: domain.NewClaimID(), Caller: s.org})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

		_, err = s.service.Verify(s.ctx(), VerifyCommand{DonationID: d.ID, Caller: s.org, Code: res.Code})
		s.Require().NoError(err)
		_, err = s.service.Cancel(s.ctx(), CancelCommand{ClaimID: res.Claim.ID, Caller: s.org})
		s.True(dErrors.HasCode(err, dErrors.CodeNotCancellable))
		s.Equal(donationmodels.StatusDelivered, s.donationStatus(d.ID))
	})
}

func (s *ServiceSuite) TestList() {
	first := s.claim(s.seedDonation(donationmodels.StatusAvailable, 24*time.Hour), s.org, "1h")
	s.now = s.now.Add(time.Minute)
	second := s.claim(s.seedDonation(donationmodels.StatusAvailable, 24*time.Hour), s.org, "1h")
	_, err := s.service.Cancel(s.ctx(), CancelCommand{ClaimID: first.Claim.ID, Caller: s.org})
	s.Require().NoError(err)

	all, err := s.service.List(s.ctx(), s.org.UserID.AsOrganization(), nil)
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(second.Claim.ID, all[0].ID)

	pending := models.StatusPending
	filtered, err := s.service.List(s.ctx(), s.org.UserID.AsOrganization(), &pending)
	s.Require().NoError(err)
	s.Require().Len(filtered, 1)
	s.Equal(second.Claim.ID, filtered[0].ID)
}

func (s *ServiceSuite) TestExpireClaim() {
	d := s.seedDonation(donationmodels.StatusAvailable, 24*time.Hour)
	res := s.claim(d, s.org, "1h")
	later := s.ctxAt(s.now.Add(2 * time.Hour))

	due, err := s.service.TimedOutClaims(later, 10)
	s.Require().NoError(err)
	s.Require().Len(due, 1)

	applied, err := s.service.ExpireClaim(later, due[0])
	s.Require().NoError(err)
	s.True(applied)
	s.Equal(models.StatusExpired, s.claimStatus(res.Claim.ID))
	s.Equal(donationmodels.StatusAvailable, s.donationStatus(d.ID))

	applied, err = s.service.ExpireClaim(later, due[0])
	s.Require().NoError(err)
	s.False(applied, "second expiry is a no-op")
}

func (s *ServiceSuite) TestExpireDonation() {
	s.Run("cascades to the pending claim", func() {
		d := s.seedDonation(donationmodels.StatusAvailable, time.Hour)
		res := s.claim(d, s.org, "72h")
		later := s.ctxAt(s.now.Add(2 * time.Hour))

		overdue, err := s.service.OverdueDonations(later, 10)
		s.Require().NoError(err)
		s.Require().Len(overdue, 1)

		applied, err := s.service.ExpireDonation(later, overdue[0])
		s.Require().NoError(err)
		s.True(applied)
		s.Equal(donationmodels.StatusExpired, s.donationStatus(d.ID))
		s.Equal(models.StatusExpired, s.claimStatus(res.Claim.ID))

		applied, err = s.service.ExpireDonation(later, overdue[0])
		s.Require().NoError(err)
		s.False(applied)
	})

	s.Run("delivered donations stay delivered", func() {
		d := s.seedDonation(donationmodels.StatusAvailable, time.Hour)
		res := s.claim(d, s.org, "30m")
		_, err := s.service.Verify(s.ctx(), VerifyCommand{DonationID: d.ID, Caller: s.org, Code: res.Code})
		s.Require().NoError(err)

		later := s.ctxAt(s.now.Add(2 * time.Hour))
		applied, err := s.service.ExpireDonation(later, d)
		s.Require().NoError(err)
		s.False(applied)
		s.Equal(donationmodels.StatusDelivered, s.donationStatus(d.ID))
		s.Equal(models.StatusDelivered, s.claimStatus(res.Claim.ID))
	})

	s.Run("not yet overdue is left alone", func() {
		d := s.seedDonation(donationmodels.StatusAvailable, time.Hour)
		applied, err := s.service.ExpireDonation(s.ctx(), d)
		s.Require().NoError(err)
		s.False(applied)
		s.Equal(donationmodels.StatusAvailable, s.donationStatus(d.ID))
	})
}

func TestParseBuffer(t *testing.T) {
	valid := map[string]time.Duration{
		"2h":    2 * time.Hour,
		"30m":   30 * time.Minute,
		" 1H ":  time.Hour,
		"72h":   72 * time.Hour,
		"4320m": 72 * time.Hour,
	}
	for in, want := range valid {
		got, err := ParseBuffer(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"", "h", "0h", "0m", "-1h", "73h", "4321m", "2d", "1.5h", "2h30m", "999999h"} {
		_, err := ParseBuffer(in)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation), "input %q", in)
	}
}

func TestGenerateCode(t *testing.T) {
	code, err := generateCode(bytes.NewReader([]byte{0, 0, 0}))
	require.NoError(t, err)
	assert.Equal(t, "000000", code, "codes are zero padded")

	_, err = generateCode(bytes.NewReader(nil))
	assert.Error(t, err)

	for i := 0; i < 50; i++ {
		code, err := generateCode(rand.Reader)
		require.NoError(t, err)
		assert.True(t, wellFormedCode(code), code)
	}
}

func TestCodeHashing(t *testing.T) {
	hash, err := hashCode("123456", bcrypt.MinCost)
	require.NoError(t, err)
	assert.True(t, codeMatches(hash, "123456"))
	assert.False(t, codeMatches(hash, "123457"))
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(nil, donationstore.NewInMemory(), outboxstore.NewInMemory(), tx.NewLockRunner())
	assert.Error(t, err)
	_, err = New(store.NewInMemory(), donationstore.NewInMemory(), outboxstore.NewInMemory(), nil)
	assert.Error(t, err)
}
