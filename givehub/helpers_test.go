package givehub_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/willmadison/givehub-tools/givehub"
	"github.com/willmadison/givehub-tools/givehub/inmemory"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func seedActiveCampaign(t *testing.T, store *inmemory.Store, id string, goalInCents int64, milestones ...givehub.Milestone) givehub.Campaign {
	t.Helper()

	now := time.Now()

	campaign, err := store.CreateCampaign(context.Background(), givehub.Campaign{
		ID:          id,
		Title:       "Test Campaign",
		Status:      givehub.CampaignActive,
		GoalInCents: goalInCents,
		Milestones:  milestones,
		Created:     now,
		Updated:     now,
	})
	require.NoError(t, err)

	return campaign
}

// settleDonation initiates and settles a donation in one go, returning the
// completed record.
func settleDonation(t *testing.T, store *inmemory.Store, service *givehub.Service, campaignID, donorID string, amountInCents int64) givehub.Donation {
	t.Helper()

	ctx := context.Background()

	donation, err := service.Initiate(ctx, givehub.InitiateDonationCommand{
		CampaignID:    campaignID,
		DonorID:       donorID,
		AmountInCents: amountInCents,
		Currency:      "USD",
		PaymentMethod: "card",
	})
	require.NoError(t, err)

	settled, err := service.MarkSettled(ctx, donation.OrderID, "txn-"+donation.OrderID, nil)
	require.NoError(t, err)

	return settled
}
