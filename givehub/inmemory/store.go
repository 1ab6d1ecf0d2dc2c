package inmemory

import (
	"context"
	"sync"

	"github.com/willmadison/givehub-tools/givehub"
)

// Store is an in-memory implementation of givehub.Store. It is safe for
// concurrent use and enforces the same version fencing as the durable
// store, which makes it a faithful double in concurrency tests. Data is
// lost on restart; use givehub/sqlite for persistence.
type Store struct {
	mu        sync.RWMutex
	sequence  int64
	donations map[string]givehub.Donation // keyed by order id
	campaigns map[string]givehub.Campaign
	donors    map[string]givehub.DonorProfile
}

func NewStore() *Store {
	return &Store{
		donations: make(map[string]givehub.Donation),
		campaigns: make(map[string]givehub.Campaign),
		donors:    make(map[string]givehub.DonorProfile),
	}
}

func (s *Store) CreateDonation(ctx context.Context, donation givehub.Donation) (givehub.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.donations[donation.OrderID]; exists {
		return givehub.Donation{}, givehub.ErrDuplicateOrderID
	}

	s.sequence++
	donation.InternalID = s.sequence
	donation.Version = 1
	s.donations[donation.OrderID] = donation

	return donation, nil
}

func (s *Store) FindDonationByOrderID(ctx context.Context, orderID string) (givehub.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	donation, exists := s.donations[orderID]
	if !exists {
		return givehub.Donation{}, &givehub.NotFoundError{Resource: "donation", ID: orderID}
	}

	return donation, nil
}

func (s *Store) UpdateDonation(ctx context.Context, donation givehub.Donation) (givehub.Donation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.donations[donation.OrderID]
	if !exists {
		return givehub.Donation{}, &givehub.NotFoundError{Resource: "donation", ID: donation.OrderID}
	}

	if current.Version != donation.Version {
		return givehub.Donation{}, givehub.ErrConcurrencyConflict
	}

	donation.Version++
	s.donations[donation.OrderID] = donation

	return donation, nil
}

func (s *Store) ListDonationsByCampaign(ctx context.Context, campaignID string) ([]givehub.Donation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var donations []givehub.Donation

	for _, donation := range s.donations {
		if donation.CampaignID == campaignID {
			donations = append(donations, donation)
		}
	}

	return donations, nil
}

func (s *Store) CreateCampaign(ctx context.Context, campaign givehub.Campaign) (givehub.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.campaigns[campaign.ID]; exists {
		return givehub.Campaign{}, givehub.ErrConcurrencyConflict
	}

	campaign.Version = 1
	s.campaigns[campaign.ID] = campaign

	return campaign, nil
}

func (s *Store) FindCampaign(ctx context.Context, id string) (givehub.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	campaign, exists := s.campaigns[id]
	if !exists {
		return givehub.Campaign{}, &givehub.NotFoundError{Resource: "campaign", ID: id}
	}

	return copyCampaign(campaign), nil
}

func (s *Store) SaveCampaign(ctx context.Context, campaign givehub.Campaign) (givehub.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.campaigns[campaign.ID]
	if !exists {
		return givehub.Campaign{}, &givehub.NotFoundError{Resource: "campaign", ID: campaign.ID}
	}

	if current.Version != campaign.Version {
		return givehub.Campaign{}, givehub.ErrConcurrencyConflict
	}

	campaign.Version++
	s.campaigns[campaign.ID] = copyCampaign(campaign)

	return copyCampaign(campaign), nil
}

func (s *Store) ListCampaigns(ctx context.Context) ([]givehub.Campaign, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var campaigns []givehub.Campaign

	for _, campaign := range s.campaigns {
		campaigns = append(campaigns, copyCampaign(campaign))
	}

	return campaigns, nil
}

func (s *Store) FindDonorProfile(ctx context.Context, donorID string) (givehub.DonorProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, exists := s.donors[donorID]
	if !exists {
		return givehub.DonorProfile{}, &givehub.NotFoundError{Resource: "donor", ID: donorID}
	}

	return copyProfile(profile), nil
}

func (s *Store) SaveDonorProfile(ctx context.Context, profile givehub.DonorProfile) (givehub.DonorProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.donors[profile.DonorID]

	if profile.Version == 0 {
		if exists {
			return givehub.DonorProfile{}, givehub.ErrConcurrencyConflict
		}
	} else if !exists || current.Version != profile.Version {
		return givehub.DonorProfile{}, givehub.ErrConcurrencyConflict
	}

	profile.Version++
	s.donors[profile.DonorID] = copyProfile(profile)

	return copyProfile(profile), nil
}

// copies keep callers from mutating shared slices in place.

func copyCampaign(campaign givehub.Campaign) givehub.Campaign {
	milestones := make([]givehub.Milestone, len(campaign.Milestones))
	copy(milestones, campaign.Milestones)
	campaign.Milestones = milestones

	return campaign
}

func copyProfile(profile givehub.DonorProfile) givehub.DonorProfile {
	badges := make([]givehub.Badge, len(profile.Badges))
	copy(badges, profile.Badges)
	profile.Badges = badges

	return profile
}
