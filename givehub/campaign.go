package givehub

import "time"

type CampaignStatus string

const (
	CampaignActive    CampaignStatus = "active"
	CampaignInactive  CampaignStatus = "inactive"
	CampaignCompleted CampaignStatus = "completed"
	CampaignSuspended CampaignStatus = "suspended"
)

// Campaign carries the slice of a fundraising campaign this core is allowed
// to mutate: its financial aggregates, milestone flags, and the
// active -> completed transition. Titles, media, and the rest live with the
// campaign-management collaborator.
type Campaign struct {
	ID                  string         `json:"id"`
	Title               string         `json:"title"`
	Status              CampaignStatus `json:"status"`
	GoalInCents         int64          `json:"goal_in_cents"`
	AmountRaisedInCents int64          `json:"amount_raised_in_cents"`
	DonorsCount         int            `json:"donors_count"`
	Milestones          []Milestone    `json:"milestones"`
	StartDate           *time.Time     `json:"start_date"`
	EndDate             *time.Time     `json:"end_date"`
	Created             time.Time      `json:"created"`
	Updated             time.Time      `json:"updated"`
	Version             int64          `json:"version"`
}

// Milestone is a funding threshold that stays flagged once reached,
// even if a later refund drops the raised amount back below it.
type Milestone struct {
	Label         string     `json:"label"`
	AmountInCents int64      `json:"amount_in_cents"`
	Achieved      bool       `json:"achieved"`
	AchievedAt    *time.Time `json:"achieved_at"`
}

// PercentFunded reports funding progress. A campaign with no goal set is
// treated as open-ended and always reports 0 rather than dividing by zero.
func (c Campaign) PercentFunded() float64 {
	if c.GoalInCents <= 0 {
		return 0
	}

	return float64(c.AmountRaisedInCents) / float64(c.GoalInCents) * 100
}

// AcceptingDonations reports whether new donations may be initiated
// against this campaign.
func (c Campaign) AcceptingDonations() bool {
	return c.Status == CampaignActive
}
