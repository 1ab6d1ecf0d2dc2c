package givehub

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// DonorStatsAccumulator folds settled donations into a donor's lifetime
// statistics and awards badges as giving thresholds are crossed. Saves are
// version-fenced and retried on conflict, like campaign aggregates.
type DonorStatsAccumulator struct {
	donors   DonorStore
	maxTries uint
	now      func() time.Time
}

func NewDonorStatsAccumulator(donors DonorStore) *DonorStatsAccumulator {
	return &DonorStatsAccumulator{
		donors:   donors,
		maxTries: defaultAggregateMaxTries,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (a *DonorStatsAccumulator) WithClock(now func() time.Time) *DonorStatsAccumulator {
	a.now = now
	return a
}

// Apply records one settled donation against the donor's lifetime stats.
// Callers skip it entirely for anonymous donations; an empty donor id here
// is a no-op rather than an error so a missing check upstream cannot
// fabricate a profile keyed on "".
func (a *DonorStatsAccumulator) Apply(ctx context.Context, donorID string, amountInCents int64) (DonorProfile, error) {
	if donorID == "" {
		return DonorProfile{}, nil
	}

	operation := func() (DonorProfile, error) {
		profile, err := a.donors.FindDonorProfile(ctx, donorID)
		if err != nil {
			var notFound *NotFoundError
			if !errors.As(err, &notFound) {
				return DonorProfile{}, backoff.Permanent(err)
			}

			profile = DonorProfile{DonorID: donorID}
		}

		now := a.now()

		profile.TotalDonatedInCents += amountInCents
		profile.DonationsCount++
		profile.AverageDonationInCents = profile.TotalDonatedInCents / int64(profile.DonationsCount)
		lastDonation := now
		profile.LastDonationDate = &lastDonation

		for _, level := range badgeLevels {
			if profile.TotalDonatedInCents < level.threshold {
				break
			}

			if profile.HasBadge(level.name) {
				continue
			}

			profile.Badges = append(profile.Badges, Badge{
				Name:        level.name,
				Description: level.description,
				EarnedAt:    now,
			})
		}

		saved, err := a.donors.SaveDonorProfile(ctx, profile)
		if err != nil {
			if errors.Is(err, ErrConcurrencyConflict) {
				return DonorProfile{}, err
			}

			return DonorProfile{}, backoff.Permanent(err)
		}

		return saved, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(contentionBackOff()),
		backoff.WithMaxTries(a.maxTries),
	)
}
