package givehub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultMaxDonationInCents bounds a single donation at 10,000,000.00 in
// base-currency units unless the service is configured otherwise.
const DefaultMaxDonationInCents = 1_000_000_000

// InitiateDonationCommand is the validated-at-the-boundary input for
// starting a donation. The HTTP layer builds it from an already
// authenticated request; the core trusts actor identity but re-checks the
// business fields.
type InitiateDonationCommand struct {
	CampaignID      string          `json:"campaign_id"`
	DonorID         string          `json:"donor_id"`
	DonorName       string          `json:"donor_name"`
	DonorEmail      string          `json:"donor_email"`
	Anonymous       bool            `json:"anonymous"`
	AmountInCents   int64           `json:"amount_in_cents"`
	Currency        string          `json:"currency"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate"`
	PaymentMethod   string          `json:"payment_method"`
	IsTaxDeductible bool            `json:"is_tax_deductible"`
	MetaData        map[string]any  `json:"meta_data"`
}

// Service is the donation-lifecycle core: it owns the donation state
// machine and drives the campaign and donor aggregates on settlement. All
// collaborators are injected; there is no ambient global state.
type Service struct {
	donations  DonationStore
	campaigns  CampaignStore
	aggregator *CampaignAggregator
	stats      *DonorStatsAccumulator

	maxDonationInCents int64
	now                func() time.Time
}

func NewService(store Store) *Service {
	return &Service{
		donations:          store,
		campaigns:          store,
		aggregator:         NewCampaignAggregator(store),
		stats:              NewDonorStatsAccumulator(store),
		maxDonationInCents: DefaultMaxDonationInCents,
		now:                time.Now,
	}
}

// WithMaxDonation overrides the per-donation amount ceiling.
func (s *Service) WithMaxDonation(maxInCents int64) *Service {
	s.maxDonationInCents = maxInCents
	return s
}

// WithClock replaces the time source for the service and its aggregators.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	s.aggregator.WithClock(now)
	s.stats.WithClock(now)

	return s
}

// Initiate creates a pending donation with a freshly generated order id.
// The order id is the idempotency key the payment gateway echoes back on
// settlement.
func (s *Service) Initiate(ctx context.Context, cmd InitiateDonationCommand) (Donation, error) {
	if cmd.AmountInCents <= 0 {
		return Donation{}, &ValidationError{Field: "amount_in_cents", Reason: "must be positive"}
	}

	if cmd.AmountInCents > s.maxDonationInCents {
		return Donation{}, &ValidationError{
			Field:  "amount_in_cents",
			Reason: fmt.Sprintf("exceeds the maximum of %d", s.maxDonationInCents),
		}
	}

	if cmd.CampaignID == "" {
		return Donation{}, &ValidationError{Field: "campaign_id", Reason: "is required"}
	}

	campaign, err := s.campaigns.FindCampaign(ctx, cmd.CampaignID)
	if err != nil {
		return Donation{}, err
	}

	if !campaign.AcceptingDonations() {
		return Donation{}, &ValidationError{
			Field:  "campaign_id",
			Reason: fmt.Sprintf("campaign %s is %s and not accepting donations", campaign.ID, campaign.Status),
		}
	}

	now := s.now()

	donation := Donation{
		OrderID:         uuid.NewString(),
		CampaignID:      cmd.CampaignID,
		DonorID:         cmd.DonorID,
		DonorName:       cmd.DonorName,
		DonorEmail:      cmd.DonorEmail,
		Anonymous:       cmd.Anonymous,
		AmountInCents:   cmd.AmountInCents,
		Currency:        cmd.Currency,
		ExchangeRate:    cmd.ExchangeRate,
		Status:          DonationPending,
		PaymentMethod:   cmd.PaymentMethod,
		IsTaxDeductible: cmd.IsTaxDeductible,
		MetaData:        cmd.MetaData,
		Created:         now,
		Updated:         now,
	}

	NormalizeBaseAmount(&donation)
	RecomputeNetAmount(&donation)

	saved, err := s.donations.CreateDonation(ctx, donation)
	if err != nil {
		return Donation{}, fmt.Errorf("encountered an error persisting the donation: %w", err)
	}

	return saved, nil
}

// MarkSettled transitions a donation to completed on the gateway's success
// callback and applies the campaign and donor aggregates as part of the
// same transition. It is idempotent: a donation that is already completed
// is returned unchanged and the aggregates are not touched again. Gateways
// redeliver callbacks, so losing the version race to another settlement of
// the same order is also treated as success.
func (s *Service) MarkSettled(ctx context.Context, orderID, gatewayReference string, gatewayPayload map[string]any) (Donation, error) {
	donation, err := s.donations.FindDonationByOrderID(ctx, orderID)
	if err != nil {
		return Donation{}, err
	}

	if donation.Status == DonationCompleted {
		return donation, nil
	}

	if !donation.settleable() {
		return Donation{}, &InvalidStateError{OrderID: orderID, Status: donation.Status, Operation: "settle"}
	}

	now := s.now()

	donation.Status = DonationCompleted
	paidAt := now
	donation.PaidAt = &paidAt
	donation.GatewayReference = gatewayReference
	donation.Updated = now

	if donation.MetaData == nil && gatewayPayload != nil {
		donation.MetaData = map[string]any{}
	}
	for key, value := range gatewayPayload {
		donation.MetaData[key] = value
	}

	RecomputeNetAmount(&donation)

	settled, err := s.donations.UpdateDonation(ctx, donation)
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			return s.resolveSettlementRace(ctx, orderID)
		}

		return Donation{}, err
	}

	// This writer won the pending -> completed transition, so the
	// aggregates fire exactly once.
	if _, err := s.aggregator.Apply(ctx, settled.CampaignID, settled.AmountInCents); err != nil {
		return Donation{}, fmt.Errorf("encountered an error applying campaign aggregates for order %s: %w", orderID, err)
	}

	if !settled.Anonymous {
		if _, err := s.stats.Apply(ctx, settled.DonorID, settled.AmountInCents); err != nil {
			return Donation{}, fmt.Errorf("encountered an error applying donor stats for order %s: %w", orderID, err)
		}
	}

	return settled, nil
}

func (s *Service) resolveSettlementRace(ctx context.Context, orderID string) (Donation, error) {
	current, err := s.donations.FindDonationByOrderID(ctx, orderID)
	if err != nil {
		return Donation{}, err
	}

	if current.Status == DonationCompleted {
		return current, nil
	}

	return Donation{}, &InvalidStateError{OrderID: orderID, Status: current.Status, Operation: "settle"}
}

// MarkFailed records the gateway's failure outcome on the donation. A
// failed settlement is an expected result, not an error; repeated failure
// callbacks are acknowledged without effect.
func (s *Service) MarkFailed(ctx context.Context, orderID, reason string) (Donation, error) {
	donation, err := s.donations.FindDonationByOrderID(ctx, orderID)
	if err != nil {
		return Donation{}, err
	}

	if donation.Status == DonationFailed {
		return donation, nil
	}

	if !donation.settleable() {
		return Donation{}, &InvalidStateError{OrderID: orderID, Status: donation.Status, Operation: "fail"}
	}

	donation.Status = DonationFailed
	donation.FailureReason = reason
	donation.Updated = s.now()

	return s.donations.UpdateDonation(ctx, donation)
}

// Cancel abandons a donation that never settled. Only pending or processing
// donations may be cancelled; repeat cancellations are acknowledged.
func (s *Service) Cancel(ctx context.Context, orderID string) (Donation, error) {
	donation, err := s.donations.FindDonationByOrderID(ctx, orderID)
	if err != nil {
		return Donation{}, err
	}

	if donation.Status == DonationCancelled {
		return donation, nil
	}

	if !donation.settleable() {
		return Donation{}, &InvalidStateError{OrderID: orderID, Status: donation.Status, Operation: "cancel"}
	}

	donation.Status = DonationCancelled
	donation.Updated = s.now()

	return s.donations.UpdateDonation(ctx, donation)
}

// Aggregator exposes the campaign aggregator for callers that run the
// periodic end-date sweep.
func (s *Service) Aggregator() *CampaignAggregator {
	return s.aggregator
}
