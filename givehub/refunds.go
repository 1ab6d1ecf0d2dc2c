package givehub

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RefundWindow is how long after settlement a donation stays refundable.
// Day 30 exactly is still inside the window; day 31 is not.
const RefundWindow = 30 * 24 * time.Hour

// RefundProcessor validates and applies admin-initiated refunds against
// settled donations. Every failure it returns is terminal; callers must not
// retry a rejected refund.
type RefundProcessor struct {
	donations  DonationStore
	aggregator *CampaignAggregator
	window     time.Duration
	now        func() time.Time
}

func NewRefundProcessor(donations DonationStore, aggregator *CampaignAggregator) *RefundProcessor {
	return &RefundProcessor{
		donations:  donations,
		aggregator: aggregator,
		window:     RefundWindow,
		now:        time.Now,
	}
}

// WithClock replaces the time source, which pins the refund window in
// tests.
func (p *RefundProcessor) WithClock(now func() time.Time) *RefundProcessor {
	p.now = now
	return p
}

// Refund refunds a completed donation, in full when amountInCents is 0 or
// partially otherwise, and reverses the refunded amount out of the
// campaign's raised total. The donor count and any achieved milestones are
// deliberately left alone.
func (p *RefundProcessor) Refund(ctx context.Context, orderID string, amountInCents int64, reason string) (Donation, error) {
	donation, err := p.donations.FindDonationByOrderID(ctx, orderID)
	if err != nil {
		return Donation{}, err
	}

	if donation.Status == DonationRefunded || donation.RefundAmountInCents > 0 {
		return Donation{}, &AlreadyRefundedError{OrderID: orderID}
	}

	if donation.Status != DonationCompleted {
		return Donation{}, &InvalidStateError{OrderID: orderID, Status: donation.Status, Operation: "refund"}
	}

	if donation.PaidAt == nil {
		return Donation{}, fmt.Errorf("donation %s is completed but has no settlement timestamp", orderID)
	}

	now := p.now()

	if now.Sub(*donation.PaidAt) > p.window {
		return Donation{}, &RefundWindowExpiredError{OrderID: orderID, PaidAt: *donation.PaidAt}
	}

	if amountInCents == 0 {
		amountInCents = donation.AmountInCents
	}

	if amountInCents < 0 {
		return Donation{}, &ValidationError{Field: "amount_in_cents", Reason: "must be positive"}
	}

	if amountInCents > donation.AmountInCents {
		return Donation{}, &ValidationError{
			Field:  "amount_in_cents",
			Reason: fmt.Sprintf("refund of %d exceeds the donated %d", amountInCents, donation.AmountInCents),
		}
	}

	donation.Status = DonationRefunded
	donation.RefundAmountInCents = amountInCents
	refundedAt := now
	donation.RefundedAt = &refundedAt
	donation.RefundReason = reason
	donation.Updated = now

	refunded, err := p.donations.UpdateDonation(ctx, donation)
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			// Another operation on this order landed first. Refunds are
			// terminal either way; report the conflict instead of guessing.
			return Donation{}, fmt.Errorf("refund of order %s lost a concurrent update: %w", orderID, err)
		}

		return Donation{}, err
	}

	if _, err := p.aggregator.Reverse(ctx, refunded.CampaignID, refunded.RefundAmountInCents); err != nil {
		return Donation{}, fmt.Errorf("encountered an error reversing campaign aggregates for order %s: %w", orderID, err)
	}

	return refunded, nil
}
