package givehub

import "context"

// DonationStore persists donation records. CreateDonation enforces order id
// uniqueness at the storage level (ErrDuplicateOrderID); UpdateDonation is
// fenced on Version and returns ErrConcurrencyConflict when the stored row
// moved underneath the caller.
type DonationStore interface {
	CreateDonation(context.Context, Donation) (Donation, error)
	FindDonationByOrderID(context.Context, string) (Donation, error)
	UpdateDonation(context.Context, Donation) (Donation, error)
	ListDonationsByCampaign(context.Context, string) ([]Donation, error)
}

// CampaignStore persists campaign aggregates. SaveCampaign is fenced on
// Version like UpdateDonation.
type CampaignStore interface {
	CreateCampaign(context.Context, Campaign) (Campaign, error)
	FindCampaign(context.Context, string) (Campaign, error)
	SaveCampaign(context.Context, Campaign) (Campaign, error)
	ListCampaigns(context.Context) ([]Campaign, error)
}

// DonorStore persists per-donor giving statistics. SaveDonorProfile with
// Version 0 inserts; any other version updates with a version fence.
type DonorStore interface {
	FindDonorProfile(context.Context, string) (DonorProfile, error)
	SaveDonorProfile(context.Context, DonorProfile) (DonorProfile, error)
}

// Store bundles the three persistence ports the core reads and writes
// through. Implementations live in givehub/sqlite and givehub/inmemory.
type Store interface {
	DonationStore
	CampaignStore
	DonorStore
}
