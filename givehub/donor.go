package givehub

import "time"

// DonorProfile holds a donor's cumulative giving statistics and earned
// badges. It is keyed by the donor's identity in the surrounding user
// system; this core owns only the stats subset.
type DonorProfile struct {
	DonorID                string     `json:"donor_id"`
	TotalDonatedInCents    int64      `json:"total_donated_in_cents"`
	DonationsCount         int        `json:"donations_count"`
	AverageDonationInCents int64      `json:"average_donation_in_cents"`
	LastDonationDate       *time.Time `json:"last_donation_date"`
	Badges                 []Badge    `json:"badges"`
	Version                int64      `json:"version"`
}

type Badge struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	EarnedAt    time.Time `json:"earned_at"`
}

type badgeLevel struct {
	name        string
	description string
	threshold   int64 // lifetime total, in cents
}

// badgeLevels must stay in ascending threshold order; awards are evaluated
// lowest first so a single large donation earns every level it crosses.
var badgeLevels = []badgeLevel{
	{name: "Supporter", description: "Lifetime giving crossed 1,000", threshold: 100_000},
	{name: "Champion", description: "Lifetime giving crossed 10,000", threshold: 1_000_000},
	{name: "Guardian", description: "Lifetime giving crossed 100,000", threshold: 10_000_000},
}

// HasBadge reports whether the donor already earned the named badge.
func (p DonorProfile) HasBadge(name string) bool {
	for _, badge := range p.Badges {
		if badge.Name == name {
			return true
		}
	}

	return false
}
