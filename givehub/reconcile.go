package givehub

import (
	"context"
	"fmt"
)

// ReconcileReport compares a campaign's stored aggregates against the
// values recomputed from its donation rows.
type ReconcileReport struct {
	CampaignID            string `json:"campaign_id"`
	StoredRaisedInCents   int64  `json:"stored_raised_in_cents"`
	ComputedRaisedInCents int64  `json:"computed_raised_in_cents"`
	StoredDonorsCount     int    `json:"stored_donors_count"`
	ComputedDonorsCount   int    `json:"computed_donors_count"`
}

func (r ReconcileReport) Consistent() bool {
	return r.StoredRaisedInCents == r.ComputedRaisedInCents && r.StoredDonorsCount == r.ComputedDonorsCount
}

// ReconcileCampaign recomputes a campaign's raised amount and donor count
// from its donation records. A settled donation contributes its full
// amount; a refunded one contributes what remained after the refund. Both
// count as a donor, refunded or not, matching how the aggregator counts.
func ReconcileCampaign(ctx context.Context, donations DonationStore, campaigns CampaignStore, campaignID string) (ReconcileReport, error) {
	campaign, err := campaigns.FindCampaign(ctx, campaignID)
	if err != nil {
		return ReconcileReport{}, err
	}

	records, err := donations.ListDonationsByCampaign(ctx, campaignID)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("encountered an error listing donations for campaign %s: %w", campaignID, err)
	}

	report := ReconcileReport{
		CampaignID:          campaignID,
		StoredRaisedInCents: campaign.AmountRaisedInCents,
		StoredDonorsCount:   campaign.DonorsCount,
	}

	for _, donation := range records {
		switch donation.Status {
		case DonationCompleted:
			report.ComputedRaisedInCents += donation.AmountInCents
			report.ComputedDonorsCount++
		case DonationRefunded:
			report.ComputedRaisedInCents += donation.AmountInCents - donation.RefundAmountInCents
			report.ComputedDonorsCount++
		}
	}

	return report, nil
}
