package givehub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const defaultAggregateMaxTries = 10

// CampaignAggregator applies settled-donation and refund effects to a
// campaign's financial aggregates. Every mutation goes through a
// read-modify-save loop fenced on the campaign version; a plain read then
// write would lose updates under concurrent settlements.
type CampaignAggregator struct {
	campaigns CampaignStore
	maxTries  uint
	now       func() time.Time
}

func NewCampaignAggregator(campaigns CampaignStore) *CampaignAggregator {
	return &CampaignAggregator{
		campaigns: campaigns,
		maxTries:  defaultAggregateMaxTries,
		now:       time.Now,
	}
}

// WithClock replaces the time source, primarily for tests that pin
// milestone timestamps.
func (a *CampaignAggregator) WithClock(now func() time.Time) *CampaignAggregator {
	a.now = now
	return a
}

// Apply credits a newly settled donation to the campaign: raised amount and
// donor count go up, newly crossed milestones are stamped, and an active
// campaign that meets its goal transitions to completed. Called exactly once
// per donation, on its first settlement.
func (a *CampaignAggregator) Apply(ctx context.Context, campaignID string, amountInCents int64) (Campaign, error) {
	return a.mutate(ctx, campaignID, func(campaign *Campaign) {
		campaign.AmountRaisedInCents += amountInCents
		campaign.DonorsCount++

		now := a.now()

		for i := range campaign.Milestones {
			milestone := &campaign.Milestones[i]

			if !milestone.Achieved && campaign.AmountRaisedInCents >= milestone.AmountInCents {
				milestone.Achieved = true
				achievedAt := now
				milestone.AchievedAt = &achievedAt
			}
		}

		if campaign.Status == CampaignActive && campaign.GoalInCents > 0 && campaign.AmountRaisedInCents >= campaign.GoalInCents {
			campaign.Status = CampaignCompleted
		}
	})
}

// Reverse debits a refund from the campaign's raised amount. The donor count
// stays put (a refunded donor still donated once) and neither a completed
// status nor an achieved milestone ever reverts.
func (a *CampaignAggregator) Reverse(ctx context.Context, campaignID string, refundAmountInCents int64) (Campaign, error) {
	return a.mutate(ctx, campaignID, func(campaign *Campaign) {
		campaign.AmountRaisedInCents -= refundAmountInCents
	})
}

// CloseExpired transitions active campaigns whose end date has passed to
// completed, and reports how many it closed. Intended for a periodic caller.
func (a *CampaignAggregator) CloseExpired(ctx context.Context, now time.Time) (int, error) {
	campaigns, err := a.campaigns.ListCampaigns(ctx)
	if err != nil {
		return 0, fmt.Errorf("encountered an error listing campaigns: %w", err)
	}

	var closed int

	for _, campaign := range campaigns {
		if campaign.Status != CampaignActive || campaign.EndDate == nil || now.Before(*campaign.EndDate) {
			continue
		}

		_, err := a.mutate(ctx, campaign.ID, func(c *Campaign) {
			if c.Status == CampaignActive && c.EndDate != nil && !now.Before(*c.EndDate) {
				c.Status = CampaignCompleted
			}
		})
		if err != nil {
			return closed, err
		}

		closed++
	}

	return closed, nil
}

func (a *CampaignAggregator) mutate(ctx context.Context, campaignID string, apply func(*Campaign)) (Campaign, error) {
	operation := func() (Campaign, error) {
		campaign, err := a.campaigns.FindCampaign(ctx, campaignID)
		if err != nil {
			return Campaign{}, backoff.Permanent(err)
		}

		apply(&campaign)

		saved, err := a.campaigns.SaveCampaign(ctx, campaign)
		if err != nil {
			if errors.Is(err, ErrConcurrencyConflict) {
				return Campaign{}, err
			}

			return Campaign{}, backoff.Permanent(err)
		}

		return saved, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(contentionBackOff()),
		backoff.WithMaxTries(a.maxTries),
	)
}

// contentionBackOff is tuned for in-process write contention rather than
// network flakiness: short initial wait, capped quickly.
func contentionBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond

	return b
}
