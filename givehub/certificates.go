package givehub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// TaxCertificateIssuer issues 80G tax-deduction certificates for eligible
// settled donations. Issuance only records the certificate number and
// download URL on the donation; rendering the document itself is an
// external collaborator's job and happens out of band.
type TaxCertificateIssuer struct {
	donations DonationStore
	baseURL   string
	now       func() time.Time
}

func NewTaxCertificateIssuer(donations DonationStore, baseURL string) *TaxCertificateIssuer {
	return &TaxCertificateIssuer{
		donations: donations,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		now:       time.Now,
	}
}

// WithClock replaces the time source, which pins the issuance year in
// tests.
func (t *TaxCertificateIssuer) WithClock(now func() time.Time) *TaxCertificateIssuer {
	t.now = now
	return t
}

// Issue issues a certificate for the order, or returns the one already
// issued. The certificate number is deterministic from the issuance year
// and the order id, so a re-issued certificate is byte-identical.
func (t *TaxCertificateIssuer) Issue(ctx context.Context, orderID string) (TaxCertificate, error) {
	donation, err := t.donations.FindDonationByOrderID(ctx, orderID)
	if err != nil {
		return TaxCertificate{}, err
	}

	if donation.Certificate.Issued {
		return donation.Certificate, nil
	}

	if !donation.IsTaxDeductible {
		return TaxCertificate{}, &NotEligibleError{OrderID: orderID, Reason: "donation is not tax deductible"}
	}

	if donation.Status != DonationCompleted {
		return TaxCertificate{}, &NotEligibleError{
			OrderID: orderID,
			Reason:  fmt.Sprintf("donation is %s, certificates require a completed donation", donation.Status),
		}
	}

	now := t.now()
	number := fmt.Sprintf("80G-%d-%s", now.Year(), donation.OrderID)
	issuedAt := now

	donation.Certificate = TaxCertificate{
		Issued:      true,
		Number:      number,
		DownloadURL: fmt.Sprintf("%s/certificates/%s.pdf", t.baseURL, number),
		IssuedAt:    &issuedAt,
	}
	donation.Updated = now

	saved, err := t.donations.UpdateDonation(ctx, donation)
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			// A concurrent request issued it first; both callers get the
			// same certificate.
			current, ferr := t.donations.FindDonationByOrderID(ctx, orderID)
			if ferr == nil && current.Certificate.Issued {
				return current.Certificate, nil
			}
		}

		return TaxCertificate{}, err
	}

	return saved.Certificate, nil
}
