package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeExpiry_Offer(t *testing.T) {
	expiry, err := ComputeExpiry(RequestTypeOffer, ExpiryBasis{ShippingDate: "2024-03-15"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), expiry)
}

func TestComputeExpiry_OfferWithTimestampDate(t *testing.T) {
	// Some historical records store full timestamps; the day after the
	// shipping day still wins, at midnight.
	expiry, err := ComputeExpiry(RequestTypeOffer, ExpiryBasis{ShippingDate: "2024-03-15T14:30:00Z"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC), expiry)
}

func TestComputeExpiry_SearchWithPeriodEnd(t *testing.T) {
	testCases := []struct {
		name      string
		periodEnd string
		expected  time.Time
	}{
		{"mid-month", "2024-03-20", time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)},
		{"first of month", "2024-03-01", time.Date(2024, 4, 2, 0, 0, 0, 0, time.UTC)},
		{"december rolls into january", "2024-12-15", time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"last of month", "2024-01-31", time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			expiry, err := ComputeExpiry(RequestTypeSearch, ExpiryBasis{ShippingPeriodEnd: tc.periodEnd})
			require.NoError(t, err)
			assert.Equal(t, tc.expected, expiry)
		})
	}
}

func TestComputeExpiry_SearchFallback(t *testing.T) {
	// Legacy searches without a period end live 60 days from creation.
	expiry, err := ComputeExpiry(RequestTypeSearch, ExpiryBasis{CreatedAt: "2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), expiry)
}

func TestComputeExpiry_SearchMalformedPeriodEndUsesFallback(t *testing.T) {
	expiry, err := ComputeExpiry(RequestTypeSearch, ExpiryBasis{
		ShippingPeriodEnd: "sometime next spring",
		CreatedAt:         "2024-01-01T08:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), expiry)
}

func TestComputeExpiry_NoDateBasis(t *testing.T) {
	testCases := []struct {
		name  string
		rt    RequestType
		basis ExpiryBasis
	}{
		{"offer without shipping date", RequestTypeOffer, ExpiryBasis{}},
		{"offer with malformed shipping date", RequestTypeOffer, ExpiryBasis{ShippingDate: "15/03/2024"}},
		{"search with nothing", RequestTypeSearch, ExpiryBasis{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ComputeExpiry(tc.rt, tc.basis)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrNoDateBasis)
		})
	}
}

func TestComputeExpiry_UnknownType(t *testing.T) {
	_, err := ComputeExpiry(RequestTypeUnknown, ExpiryBasis{ShippingDate: "2024-03-15"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoDateBasis)
}

func TestComputeExpiry_Deterministic(t *testing.T) {
	basis := ExpiryBasis{ShippingPeriodEnd: "2024-06-10"}

	first, err := ComputeExpiry(RequestTypeSearch, basis)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := ComputeExpiry(RequestTypeSearch, basis)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
