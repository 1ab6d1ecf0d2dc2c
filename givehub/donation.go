package givehub

import (
	"time"

	"github.com/shopspring/decimal"
)

type DonationStatus string

const (
	DonationPending    DonationStatus = "pending"
	DonationProcessing DonationStatus = "processing"
	DonationCompleted  DonationStatus = "completed"
	DonationFailed     DonationStatus = "failed"
	DonationRefunded   DonationStatus = "refunded"
	DonationCancelled  DonationStatus = "cancelled"
)

// Donation is the durable record of a single contribution against a
// campaign. It is never deleted; only the status, refund, and certificate
// fields mutate after creation.
type Donation struct {
	InternalID           int64           `json:"internal_id"`
	OrderID              string          `json:"order_id"`
	CampaignID           string          `json:"campaign_id"`
	DonorID              string          `json:"donor_id"`
	DonorName            string          `json:"donor_name"`
	DonorEmail           string          `json:"donor_email"`
	Anonymous            bool            `json:"anonymous"`
	AmountInCents        int64           `json:"amount_in_cents"`
	Currency             string          `json:"currency"`
	ExchangeRate         decimal.Decimal `json:"exchange_rate"`
	BaseAmountInCents    int64           `json:"base_amount_in_cents"`
	Status               DonationStatus  `json:"status"`
	PaymentMethod        string          `json:"payment_method"`
	ProcessingFeeInCents int64           `json:"processing_fee_in_cents"`
	TaxAmountInCents     int64           `json:"tax_amount_in_cents"`
	NetAmountInCents     int64           `json:"net_amount_in_cents"`
	PaidAt               *time.Time      `json:"paid_at"`
	RefundAmountInCents  int64           `json:"refund_amount_in_cents"`
	RefundedAt           *time.Time      `json:"refunded_at"`
	RefundReason         string          `json:"refund_reason"`
	FailureReason        string          `json:"failure_reason"`
	IsTaxDeductible      bool            `json:"is_tax_deductible"`
	Certificate          TaxCertificate  `json:"tax_certificate"`
	GatewayReference     string          `json:"gateway_reference"`
	MetaData             map[string]any  `json:"meta_data"`
	Created              time.Time       `json:"created"`
	Updated              time.Time       `json:"updated"`

	// Version fences concurrent writers; stores reject a save whose
	// version no longer matches the stored row.
	Version int64 `json:"version"`
}

type TaxCertificate struct {
	Issued      bool       `json:"issued"`
	Number      string     `json:"number"`
	DownloadURL string     `json:"download_url"`
	IssuedAt    *time.Time `json:"issued_at"`
}

// RecomputeNetAmount rederives the net amount from the gross amount, the
// processing fee, and the tax amount. Callers invoke it whenever any of the
// three inputs changes, before handing the donation to a store.
func RecomputeNetAmount(d *Donation) {
	d.NetAmountInCents = d.AmountInCents - d.ProcessingFeeInCents - d.TaxAmountInCents
}

// NormalizeBaseAmount applies the donation's exchange rate to its amount,
// producing the equivalent in base-currency cents, rounded half up.
func NormalizeBaseAmount(d *Donation) {
	rate := d.ExchangeRate
	if rate.IsZero() {
		rate = decimal.NewFromInt(1)
	}

	d.BaseAmountInCents = decimal.NewFromInt(d.AmountInCents).Mul(rate).Round(0).IntPart()
}

// settleable reports whether a donation may still transition to
// completed or failed.
func (d Donation) settleable() bool {
	return d.Status == DonationPending || d.Status == DonationProcessing
}
