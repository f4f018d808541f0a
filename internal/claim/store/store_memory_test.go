package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodlink/internal/claim/models"
	"foodlink/pkg/domain"
	"foodlink/pkg/platform/sentinel"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newClaim(org domain.OrganizationID, donation domain.DonationID, created time.Time) *models.Claim {
	return &models.Claim{
		ID:              domain.NewClaimID(),
		OrganizationID:  org,
		DonationID:      donation,
		DeliveryMode:    models.DeliverySelfPickup,
		CodeHash:        "hash",
		BufferExpiresAt: created.Add(2 * time.Hour),
		Status:          models.StatusPending,
		CreatedAt:       created,
		UpdatedAt:       created,
	}
}

func TestInMemoryCreateRejectsSecondActiveClaim(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	donation := domain.NewDonationID()

	require.NoError(t, s.Create(ctx, newClaim(domain.OrganizationID(uuid.New()), donation, baseTime)))
	err := s.Create(ctx, newClaim(domain.OrganizationID(uuid.New()), donation, baseTime))
	assert.ErrorIs(t, err, sentinel.ErrConflict)
}

func TestInMemoryCreateAllowsNewClaimAfterExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	donation := domain.NewDonationID()
	first := newClaim(domain.OrganizationID(uuid.New()), donation, baseTime)
	require.NoError(t, s.Create(ctx, first))

	applied, err := s.TransitionStatus(ctx, first.ID, models.StatusPending, models.StatusExpired, baseTime)
	require.NoError(t, err)
	require.True(t, applied)

	assert.NoError(t, s.Create(ctx, newClaim(domain.OrganizationID(uuid.New()), donation, baseTime)))
}

func TestInMemoryConcurrentCreateHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	donation := domain.NewDonationID()

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Create(ctx, newClaim(domain.OrganizationID(uuid.New()), donation, baseTime)) == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestInMemoryTransitionStatus(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	c := newClaim(domain.OrganizationID(uuid.New()), domain.NewDonationID(), baseTime)
	require.NoError(t, s.Create(ctx, c))

	later := baseTime.Add(time.Minute)
	applied, err := s.TransitionStatus(ctx, c.ID, models.StatusPending, models.StatusDelivered, later)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.TransitionStatus(ctx, c.ID, models.StatusPending, models.StatusCancelled, later)
	require.NoError(t, err)
	assert.False(t, applied, "second transition from pending must not apply")

	got, err := s.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDelivered, got.Status)
	assert.Equal(t, later, got.UpdatedAt)

	_, err = s.TransitionStatus(ctx, domain.NewClaimID(), models.StatusPending, models.StatusExpired, later)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryFindPendingByDonation(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	donation := domain.NewDonationID()

	_, err := s.FindPendingByDonation(ctx, donation)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	c := newClaim(domain.OrganizationID(uuid.New()), donation, baseTime)
	require.NoError(t, s.Create(ctx, c))
	got, err := s.FindPendingByDonation(ctx, donation)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
}

func TestInMemoryListByOrganization(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	org := domain.OrganizationID(uuid.New())

	older := newClaim(org, domain.NewDonationID(), baseTime)
	newer := newClaim(org, domain.NewDonationID(), baseTime.Add(time.Hour))
	other := newClaim(domain.OrganizationID(uuid.New()), domain.NewDonationID(), baseTime)
	for _, c := range []*models.Claim{older, newer, other} {
		require.NoError(t, s.Create(ctx, c))
	}
	_, err := s.TransitionStatus(ctx, older.ID, models.StatusPending, models.StatusCancelled, baseTime)
	require.NoError(t, err)

	all, err := s.ListByOrganization(ctx, org, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, newer.ID, all[0].ID, "newest first")
	assert.Equal(t, older.ID, all[1].ID)

	cancelled := models.StatusCancelled
	filtered, err := s.ListByOrganization(ctx, org, &cancelled)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, older.ID, filtered[0].ID)

	none, err := s.ListByOrganization(ctx, domain.OrganizationID(uuid.New()), nil)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestInMemoryListTimedOut(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	org := domain.OrganizationID(uuid.New())

	late := newClaim(org, domain.NewDonationID(), baseTime)
	late.BufferExpiresAt = baseTime.Add(-time.Minute)
	later := newClaim(org, domain.NewDonationID(), baseTime)
	later.BufferExpiresAt = baseTime.Add(-time.Hour)
	fresh := newClaim(org, domain.NewDonationID(), baseTime)
	for _, c := range []*models.Claim{late, later, fresh} {
		require.NoError(t, s.Create(ctx, c))
	}

	got, err := s.ListTimedOut(ctx, baseTime, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, later.ID, got[0].ID, "oldest deadline first")

	got, err = s.ListTimedOut(ctx, baseTime, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestInMemoryExpirePendingForDonation(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	donation := domain.NewDonationID()
	c := newClaim(domain.OrganizationID(uuid.New()), donation, baseTime)
	require.NoError(t, s.Create(ctx, c))

	expired, err := s.ExpirePendingForDonation(ctx, donation, baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, models.StatusExpired, expired[0].Status)

	again, err := s.ExpirePendingForDonation(ctx, donation, baseTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestInMemoryHasClaimsCountsTerminalClaims(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	donation := domain.NewDonationID()

	has, err := s.HasClaims(ctx, donation)
	require.NoError(t, err)
	assert.False(t, has)

	c := newClaim(domain.OrganizationID(uuid.New()), donation, baseTime)
	c.Status = models.StatusCancelled
	require.NoError(t, s.Create(ctx, c))

	has, err = s.HasClaims(ctx, donation)
	require.NoError(t, err)
	assert.True(t, has)
}
