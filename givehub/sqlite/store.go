package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	"github.com/shopspring/decimal"
	"github.com/willmadison/givehub-tools/givehub"
)

// Store is the durable givehub.Store on SQLite, reachable either as a local
// file (sqlite3 driver) or a Turso database (libsql driver). Milestones,
// badges, and donation metadata are stored as JSON columns; everything the
// core filters or fences on is a plain column.
type Store struct {
	db *sql.DB
}

// New connects using the same DSN convention the rest of our tooling uses:
// libsql:// URLs go through the libsql driver, file: URLs through sqlite3.
func New(databaseURL string) (*Store, error) {
	var driver string

	switch {
	case strings.HasPrefix(databaseURL, "libsql://"):
		driver = "libsql"
	case strings.HasPrefix(databaseURL, "file:"), databaseURL == ":memory:":
		driver = "sqlite3"
	default:
		return nil, fmt.Errorf("unsupported DATABASE_URL: %s", databaseURL)
	}

	db, err := sql.Open(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("encountered an error connecting to the database: %w", err)
	}

	if driver == "sqlite3" {
		if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
			return nil, fmt.Errorf("encountered an error configuring the database: %w", err)
		}
	}

	store := &Store{db: db}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS donations (
			internal_id INTEGER PRIMARY KEY AUTOINCREMENT,
			order_id TEXT NOT NULL UNIQUE,
			campaign_id TEXT NOT NULL,
			donor_id TEXT NOT NULL DEFAULT '',
			donor_name TEXT NOT NULL DEFAULT '',
			donor_email TEXT NOT NULL DEFAULT '',
			anonymous INTEGER NOT NULL DEFAULT 0,
			amount_in_cents INTEGER NOT NULL,
			currency TEXT NOT NULL DEFAULT '',
			exchange_rate TEXT NOT NULL DEFAULT '1',
			base_amount_in_cents INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			payment_method TEXT NOT NULL DEFAULT '',
			processing_fee_in_cents INTEGER NOT NULL DEFAULT 0,
			tax_amount_in_cents INTEGER NOT NULL DEFAULT 0,
			net_amount_in_cents INTEGER NOT NULL DEFAULT 0,
			paid_at TIMESTAMP,
			refund_amount_in_cents INTEGER NOT NULL DEFAULT 0,
			refunded_at TIMESTAMP,
			refund_reason TEXT NOT NULL DEFAULT '',
			failure_reason TEXT NOT NULL DEFAULT '',
			is_tax_deductible INTEGER NOT NULL DEFAULT 0,
			certificate_issued INTEGER NOT NULL DEFAULT 0,
			certificate_number TEXT NOT NULL DEFAULT '',
			certificate_url TEXT NOT NULL DEFAULT '',
			certificate_issued_at TIMESTAMP,
			gateway_reference TEXT NOT NULL DEFAULT '',
			meta_data TEXT NOT NULL DEFAULT '{}',
			created TIMESTAMP NOT NULL,
			updated TIMESTAMP NOT NULL,
			version INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE INDEX IF NOT EXISTS idx_donations_campaign ON donations(campaign_id)`,
		`CREATE TABLE IF NOT EXISTS campaigns (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			goal_in_cents INTEGER NOT NULL DEFAULT 0,
			amount_raised_in_cents INTEGER NOT NULL DEFAULT 0,
			donors_count INTEGER NOT NULL DEFAULT 0,
			milestones TEXT NOT NULL DEFAULT '[]',
			start_date TIMESTAMP,
			end_date TIMESTAMP,
			created TIMESTAMP NOT NULL,
			updated TIMESTAMP NOT NULL,
			version INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS donor_profiles (
			donor_id TEXT PRIMARY KEY,
			total_donated_in_cents INTEGER NOT NULL DEFAULT 0,
			donations_count INTEGER NOT NULL DEFAULT 0,
			average_donation_in_cents INTEGER NOT NULL DEFAULT 0,
			last_donation_date TIMESTAMP,
			badges TEXT NOT NULL DEFAULT '[]',
			version INTEGER NOT NULL DEFAULT 1
		)`,
	}

	for _, statement := range schema {
		if _, err := s.db.Exec(statement); err != nil {
			return fmt.Errorf("encountered an error initializing the schema: %w", err)
		}
	}

	return nil
}

const donationColumns = `internal_id, order_id, campaign_id, donor_id, donor_name, donor_email,
	anonymous, amount_in_cents, currency, exchange_rate, base_amount_in_cents, status,
	payment_method, processing_fee_in_cents, tax_amount_in_cents, net_amount_in_cents,
	paid_at, refund_amount_in_cents, refunded_at, refund_reason, failure_reason,
	is_tax_deductible, certificate_issued, certificate_number, certificate_url,
	certificate_issued_at, gateway_reference, meta_data, created, updated, version`

func (s *Store) CreateDonation(ctx context.Context, donation givehub.Donation) (givehub.Donation, error) {
	metaData, err := json.Marshal(donation.MetaData)
	if err != nil {
		return givehub.Donation{}, fmt.Errorf("encountered an error encoding donation metadata: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO donations (order_id, campaign_id, donor_id, donor_name, donor_email,
			anonymous, amount_in_cents, currency, exchange_rate, base_amount_in_cents, status,
			payment_method, processing_fee_in_cents, tax_amount_in_cents, net_amount_in_cents,
			paid_at, refund_amount_in_cents, refunded_at, refund_reason, failure_reason,
			is_tax_deductible, certificate_issued, certificate_number, certificate_url,
			certificate_issued_at, gateway_reference, meta_data, created, updated, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		donation.OrderID, donation.CampaignID, donation.DonorID, donation.DonorName, donation.DonorEmail,
		donation.Anonymous, donation.AmountInCents, donation.Currency, donation.ExchangeRate.String(),
		donation.BaseAmountInCents, string(donation.Status),
		donation.PaymentMethod, donation.ProcessingFeeInCents, donation.TaxAmountInCents, donation.NetAmountInCents,
		donation.PaidAt, donation.RefundAmountInCents, donation.RefundedAt, donation.RefundReason, donation.FailureReason,
		donation.IsTaxDeductible, donation.Certificate.Issued, donation.Certificate.Number, donation.Certificate.DownloadURL,
		donation.Certificate.IssuedAt, donation.GatewayReference, string(metaData), donation.Created, donation.Updated,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return givehub.Donation{}, givehub.ErrDuplicateOrderID
		}

		return givehub.Donation{}, fmt.Errorf("encountered an error persisting a donation: %w", err)
	}

	donation.InternalID, _ = result.LastInsertId()
	donation.Version = 1

	return donation, nil
}

func (s *Store) FindDonationByOrderID(ctx context.Context, orderID string) (givehub.Donation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+donationColumns+` FROM donations WHERE order_id = ?`, orderID)

	donation, err := scanDonation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return givehub.Donation{}, &givehub.NotFoundError{Resource: "donation", ID: orderID}
	}

	return donation, err
}

func (s *Store) UpdateDonation(ctx context.Context, donation givehub.Donation) (givehub.Donation, error) {
	metaData, err := json.Marshal(donation.MetaData)
	if err != nil {
		return givehub.Donation{}, fmt.Errorf("encountered an error encoding donation metadata: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE donations SET status = ?, processing_fee_in_cents = ?, tax_amount_in_cents = ?,
			net_amount_in_cents = ?, paid_at = ?, refund_amount_in_cents = ?, refunded_at = ?,
			refund_reason = ?, failure_reason = ?, certificate_issued = ?, certificate_number = ?,
			certificate_url = ?, certificate_issued_at = ?, gateway_reference = ?, meta_data = ?,
			updated = ?, version = version + 1
		WHERE order_id = ? AND version = ?`,
		string(donation.Status), donation.ProcessingFeeInCents, donation.TaxAmountInCents,
		donation.NetAmountInCents, donation.PaidAt, donation.RefundAmountInCents, donation.RefundedAt,
		donation.RefundReason, donation.FailureReason, donation.Certificate.Issued, donation.Certificate.Number,
		donation.Certificate.DownloadURL, donation.Certificate.IssuedAt, donation.GatewayReference, string(metaData),
		donation.Updated, donation.OrderID, donation.Version,
	)
	if err != nil {
		return givehub.Donation{}, fmt.Errorf("encountered an error updating a donation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return givehub.Donation{}, err
	}

	if affected == 0 {
		if _, ferr := s.FindDonationByOrderID(ctx, donation.OrderID); ferr != nil {
			return givehub.Donation{}, ferr
		}

		return givehub.Donation{}, givehub.ErrConcurrencyConflict
	}

	donation.Version++

	return donation, nil
}

func (s *Store) ListDonationsByCampaign(ctx context.Context, campaignID string) ([]givehub.Donation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+donationColumns+` FROM donations WHERE campaign_id = ? ORDER BY internal_id`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("encountered an error listing donations: %w", err)
	}
	defer rows.Close()

	var donations []givehub.Donation

	for rows.Next() {
		donation, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}

		donations = append(donations, donation)
	}

	return donations, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDonation(row scanner) (givehub.Donation, error) {
	var (
		donation            givehub.Donation
		rate, metaData      string
		paidAt, refundedAt  sql.NullTime
		certificateIssuedAt sql.NullTime
	)

	err := row.Scan(
		&donation.InternalID, &donation.OrderID, &donation.CampaignID, &donation.DonorID,
		&donation.DonorName, &donation.DonorEmail, &donation.Anonymous, &donation.AmountInCents,
		&donation.Currency, &rate, &donation.BaseAmountInCents, &donation.Status,
		&donation.PaymentMethod, &donation.ProcessingFeeInCents, &donation.TaxAmountInCents,
		&donation.NetAmountInCents, &paidAt, &donation.RefundAmountInCents, &refundedAt,
		&donation.RefundReason, &donation.FailureReason, &donation.IsTaxDeductible,
		&donation.Certificate.Issued, &donation.Certificate.Number, &donation.Certificate.DownloadURL,
		&certificateIssuedAt, &donation.GatewayReference, &metaData, &donation.Created,
		&donation.Updated, &donation.Version,
	)
	if err != nil {
		return givehub.Donation{}, err
	}

	donation.ExchangeRate, err = decimal.NewFromString(rate)
	if err != nil {
		return givehub.Donation{}, fmt.Errorf("encountered an error decoding an exchange rate: %w", err)
	}

	if err := json.Unmarshal([]byte(metaData), &donation.MetaData); err != nil {
		return givehub.Donation{}, fmt.Errorf("encountered an error decoding donation metadata: %w", err)
	}

	if paidAt.Valid {
		donation.PaidAt = &paidAt.Time
	}
	if refundedAt.Valid {
		donation.RefundedAt = &refundedAt.Time
	}
	if certificateIssuedAt.Valid {
		donation.Certificate.IssuedAt = &certificateIssuedAt.Time
	}

	return donation, nil
}

func (s *Store) CreateCampaign(ctx context.Context, campaign givehub.Campaign) (givehub.Campaign, error) {
	milestones, err := json.Marshal(campaign.Milestones)
	if err != nil {
		return givehub.Campaign{}, fmt.Errorf("encountered an error encoding milestones: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO campaigns (id, title, status, goal_in_cents, amount_raised_in_cents,
			donors_count, milestones, start_date, end_date, created, updated, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		campaign.ID, campaign.Title, string(campaign.Status), campaign.GoalInCents,
		campaign.AmountRaisedInCents, campaign.DonorsCount, string(milestones),
		campaign.StartDate, campaign.EndDate, campaign.Created, campaign.Updated,
	)
	if err != nil {
		return givehub.Campaign{}, fmt.Errorf("encountered an error persisting a campaign: %w", err)
	}

	campaign.Version = 1

	return campaign, nil
}

func (s *Store) FindCampaign(ctx context.Context, id string) (givehub.Campaign, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, status, goal_in_cents, amount_raised_in_cents, donors_count,
			milestones, start_date, end_date, created, updated, version
		FROM campaigns WHERE id = ?`, id)

	campaign, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return givehub.Campaign{}, &givehub.NotFoundError{Resource: "campaign", ID: id}
	}

	return campaign, err
}

func (s *Store) SaveCampaign(ctx context.Context, campaign givehub.Campaign) (givehub.Campaign, error) {
	milestones, err := json.Marshal(campaign.Milestones)
	if err != nil {
		return givehub.Campaign{}, fmt.Errorf("encountered an error encoding milestones: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE campaigns SET status = ?, goal_in_cents = ?, amount_raised_in_cents = ?,
			donors_count = ?, milestones = ?, end_date = ?, updated = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(campaign.Status), campaign.GoalInCents, campaign.AmountRaisedInCents,
		campaign.DonorsCount, string(milestones), campaign.EndDate, time.Now(),
		campaign.ID, campaign.Version,
	)
	if err != nil {
		return givehub.Campaign{}, fmt.Errorf("encountered an error updating a campaign: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return givehub.Campaign{}, err
	}

	if affected == 0 {
		if _, ferr := s.FindCampaign(ctx, campaign.ID); ferr != nil {
			return givehub.Campaign{}, ferr
		}

		return givehub.Campaign{}, givehub.ErrConcurrencyConflict
	}

	campaign.Version++

	return campaign, nil
}

func (s *Store) ListCampaigns(ctx context.Context) ([]givehub.Campaign, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, status, goal_in_cents, amount_raised_in_cents, donors_count,
			milestones, start_date, end_date, created, updated, version
		FROM campaigns ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("encountered an error listing campaigns: %w", err)
	}
	defer rows.Close()

	var campaigns []givehub.Campaign

	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}

		campaigns = append(campaigns, campaign)
	}

	return campaigns, rows.Err()
}

func scanCampaign(row scanner) (givehub.Campaign, error) {
	var (
		campaign           givehub.Campaign
		milestones         string
		startDate, endDate sql.NullTime
	)

	err := row.Scan(
		&campaign.ID, &campaign.Title, &campaign.Status, &campaign.GoalInCents,
		&campaign.AmountRaisedInCents, &campaign.DonorsCount, &milestones,
		&startDate, &endDate, &campaign.Created, &campaign.Updated, &campaign.Version,
	)
	if err != nil {
		return givehub.Campaign{}, err
	}

	if err := json.Unmarshal([]byte(milestones), &campaign.Milestones); err != nil {
		return givehub.Campaign{}, fmt.Errorf("encountered an error decoding milestones: %w", err)
	}

	if startDate.Valid {
		campaign.StartDate = &startDate.Time
	}
	if endDate.Valid {
		campaign.EndDate = &endDate.Time
	}

	return campaign, nil
}

func (s *Store) FindDonorProfile(ctx context.Context, donorID string) (givehub.DonorProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT donor_id, total_donated_in_cents, donations_count, average_donation_in_cents,
			last_donation_date, badges, version
		FROM donor_profiles WHERE donor_id = ?`, donorID)

	var (
		profile          givehub.DonorProfile
		badges           string
		lastDonationDate sql.NullTime
	)

	err := row.Scan(
		&profile.DonorID, &profile.TotalDonatedInCents, &profile.DonationsCount,
		&profile.AverageDonationInCents, &lastDonationDate, &badges, &profile.Version,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return givehub.DonorProfile{}, &givehub.NotFoundError{Resource: "donor", ID: donorID}
	}
	if err != nil {
		return givehub.DonorProfile{}, err
	}

	if err := json.Unmarshal([]byte(badges), &profile.Badges); err != nil {
		return givehub.DonorProfile{}, fmt.Errorf("encountered an error decoding badges: %w", err)
	}

	if lastDonationDate.Valid {
		profile.LastDonationDate = &lastDonationDate.Time
	}

	return profile, nil
}

func (s *Store) SaveDonorProfile(ctx context.Context, profile givehub.DonorProfile) (givehub.DonorProfile, error) {
	badges, err := json.Marshal(profile.Badges)
	if err != nil {
		return givehub.DonorProfile{}, fmt.Errorf("encountered an error encoding badges: %w", err)
	}

	if profile.Version == 0 {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO donor_profiles (donor_id, total_donated_in_cents, donations_count,
				average_donation_in_cents, last_donation_date, badges, version)
			VALUES (?, ?, ?, ?, ?, ?, 1)`,
			profile.DonorID, profile.TotalDonatedInCents, profile.DonationsCount,
			profile.AverageDonationInCents, profile.LastDonationDate, string(badges),
		)
		if err != nil {
			var sqliteErr sqlite3.Error
			if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
				return givehub.DonorProfile{}, givehub.ErrConcurrencyConflict
			}

			return givehub.DonorProfile{}, fmt.Errorf("encountered an error persisting a donor profile: %w", err)
		}

		profile.Version = 1

		return profile, nil
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE donor_profiles SET total_donated_in_cents = ?, donations_count = ?,
			average_donation_in_cents = ?, last_donation_date = ?, badges = ?, version = version + 1
		WHERE donor_id = ? AND version = ?`,
		profile.TotalDonatedInCents, profile.DonationsCount, profile.AverageDonationInCents,
		profile.LastDonationDate, string(badges), profile.DonorID, profile.Version,
	)
	if err != nil {
		return givehub.DonorProfile{}, fmt.Errorf("encountered an error updating a donor profile: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return givehub.DonorProfile{}, err
	}

	if affected == 0 {
		return givehub.DonorProfile{}, givehub.ErrConcurrencyConflict
	}

	profile.Version++

	return profile, nil
}
