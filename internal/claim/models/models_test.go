package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Pending ")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, s)

	_, err = ParseStatus("active")
	assert.Error(t, err)
}

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	for _, s := range []Status{StatusDelivered, StatusExpired, StatusCancelled} {
		assert.True(t, s.IsTerminal(), s)
	}
}

func TestParseDeliveryMode(t *testing.T) {
	m, err := ParseDeliveryMode("DELIVERY")
	require.NoError(t, err)
	assert.Equal(t, DeliveryDelivery, m)

	_, err = ParseDeliveryMode("drone")
	assert.Error(t, err)
}

func TestIsBufferExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := &Claim{BufferExpiresAt: now}
	assert.False(t, c.IsBufferExpired(now), "the deadline instant itself is still inside the window")
	assert.True(t, c.IsBufferExpired(now.Add(time.Nanosecond)))
}
