package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/willmadison/givehub-tools/givehub"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func TestNewRejectsUnknownDSN(t *testing.T) {
	_, err := New("postgres://somewhere")
	assert.Error(t, err)
}

func TestDonationRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)

	created, err := store.CreateDonation(ctx, givehub.Donation{
		OrderID:       "order-1",
		CampaignID:    "campaign-1",
		DonorID:       "donor-1",
		AmountInCents: 10_000,
		Currency:      "USD",
		Status:        givehub.DonationPending,
		PaymentMethod: "card",
		MetaData:      map[string]any{"source": "web"},
		Created:       now,
		Updated:       now,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.Version)
	assert.NotZero(t, created.InternalID)

	found, err := store.FindDonationByOrderID(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, created.OrderID, found.OrderID)
	assert.Equal(t, givehub.DonationPending, found.Status)
	assert.Equal(t, int64(10_000), found.AmountInCents)
	assert.Equal(t, "web", found.MetaData["source"])
	assert.Nil(t, found.PaidAt)
}

func TestDonationOrderIDUnique(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	donation := givehub.Donation{OrderID: "order-1", CampaignID: "campaign-1", AmountInCents: 1_000, Status: givehub.DonationPending, Created: time.Now(), Updated: time.Now()}

	_, err := store.CreateDonation(ctx, donation)
	require.NoError(t, err)

	_, err = store.CreateDonation(ctx, donation)
	assert.ErrorIs(t, err, givehub.ErrDuplicateOrderID)
}

func TestUpdateDonationVersionFence(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.CreateDonation(ctx, givehub.Donation{
		OrderID: "order-1", CampaignID: "campaign-1", AmountInCents: 1_000,
		Status: givehub.DonationPending, Created: time.Now(), Updated: time.Now(),
	})
	require.NoError(t, err)

	stale := created

	created.Status = givehub.DonationCompleted
	updated, err := store.UpdateDonation(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)

	stale.Status = givehub.DonationFailed
	_, err = store.UpdateDonation(ctx, stale)
	assert.ErrorIs(t, err, givehub.ErrConcurrencyConflict)
}

func TestCampaignRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	endDate := now.Add(30 * 24 * time.Hour)

	_, err := store.CreateCampaign(ctx, givehub.Campaign{
		ID:          "campaign-1",
		Title:       "Well Fund",
		Status:      givehub.CampaignActive,
		GoalInCents: 500_000,
		Milestones:  []givehub.Milestone{{Label: "Half", AmountInCents: 250_000}},
		EndDate:     &endDate,
		Created:     now,
		Updated:     now,
	})
	require.NoError(t, err)

	found, err := store.FindCampaign(ctx, "campaign-1")
	require.NoError(t, err)
	assert.Equal(t, givehub.CampaignActive, found.Status)
	require.Len(t, found.Milestones, 1)
	assert.Equal(t, int64(250_000), found.Milestones[0].AmountInCents)
	require.NotNil(t, found.EndDate)

	found.AmountRaisedInCents = 100_000
	saved, err := store.SaveCampaign(ctx, found)
	require.NoError(t, err)
	assert.Equal(t, found.Version+1, saved.Version)

	campaigns, err := store.ListCampaigns(ctx)
	require.NoError(t, err)
	assert.Len(t, campaigns, 1)
}

func TestDonorProfileRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.FindDonorProfile(ctx, "donor-1")
	var notFound *givehub.NotFoundError
	require.ErrorAs(t, err, &notFound)

	saved, err := store.SaveDonorProfile(ctx, givehub.DonorProfile{
		DonorID:             "donor-1",
		TotalDonatedInCents: 1_000,
		DonationsCount:      1,
		Badges:              []givehub.Badge{{Name: "Supporter", EarnedAt: time.Now()}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), saved.Version)

	found, err := store.FindDonorProfile(ctx, "donor-1")
	require.NoError(t, err)
	require.Len(t, found.Badges, 1)
	assert.Equal(t, "Supporter", found.Badges[0].Name)

	// stale insert for an existing donor loses
	_, err = store.SaveDonorProfile(ctx, givehub.DonorProfile{DonorID: "donor-1"})
	assert.ErrorIs(t, err, givehub.ErrConcurrencyConflict)
}
