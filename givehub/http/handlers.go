package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/willmadison/givehub-tools/givehub"
)

// InitiateDonationRequest is the wire shape of a donation initiation. The
// caller is already authenticated; this layer only translates and
// validates shape, the core validates the business rules.
type InitiateDonationRequest struct {
	CampaignID      string          `json:"campaign_id" binding:"required"`
	DonorID         string          `json:"donor_id"`
	DonorName       string          `json:"donor_name"`
	DonorEmail      string          `json:"donor_email"`
	IsAnonymous     bool            `json:"is_anonymous"`
	AmountInCents   int64           `json:"amount_in_cents" binding:"required"`
	Currency        string          `json:"currency"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate"`
	PaymentMethod   string          `json:"payment_method"`
	IsTaxDeductible bool            `json:"is_tax_deductible"`
	MetaData        map[string]any  `json:"meta_data"`
}

// SettlementRequest is the payment gateway's callback payload.
type SettlementRequest struct {
	OrderID              string         `json:"order_id" binding:"required"`
	GatewayTransactionID string         `json:"gateway_transaction_id"`
	GatewayResponse      map[string]any `json:"gateway_response"`
	Outcome              string         `json:"outcome" binding:"required"`
	FailureReason        string         `json:"failure_reason"`
}

type RefundRequest struct {
	AmountInCents int64  `json:"amount_in_cents"`
	Reason        string `json:"reason"`
}

func InitiateDonationHandler(service *givehub.Service, logger *zap.Logger) func(*gin.Context) {
	return func(c *gin.Context) {
		var request InitiateDonationRequest

		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
			return
		}

		donation, err := service.Initiate(c.Request.Context(), givehub.InitiateDonationCommand{
			CampaignID:      request.CampaignID,
			DonorID:         request.DonorID,
			DonorName:       request.DonorName,
			DonorEmail:      request.DonorEmail,
			Anonymous:       request.IsAnonymous,
			AmountInCents:   request.AmountInCents,
			Currency:        request.Currency,
			ExchangeRate:    request.ExchangeRate,
			PaymentMethod:   request.PaymentMethod,
			IsTaxDeductible: request.IsTaxDeductible,
			MetaData:        request.MetaData,
		})
		if err != nil {
			respondWithError(c, err)
			return
		}

		logger.Info("donation initiated",
			zap.String("order_id", donation.OrderID),
			zap.String("campaign_id", donation.CampaignID),
			zap.Int64("amount_in_cents", donation.AmountInCents),
		)

		c.JSON(http.StatusCreated, gin.H{
			"order_id": donation.OrderID,
			"status":   donation.Status,
		})
	}
}

// SettlementHandler receives the gateway's settlement callback. A gateway
// "failure" outcome is an expected result recorded on the donation, so both
// outcomes acknowledge with 200 once the record reflects them.
func SettlementHandler(service *givehub.Service, logger *zap.Logger) func(*gin.Context) {
	return func(c *gin.Context) {
		var request SettlementRequest

		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
			return
		}

		switch request.Outcome {
		case "success":
			donation, err := service.MarkSettled(c.Request.Context(), request.OrderID, request.GatewayTransactionID, request.GatewayResponse)
			if err != nil {
				respondWithError(c, err)
				return
			}

			logger.Info("donation settled",
				zap.String("order_id", donation.OrderID),
				zap.String("campaign_id", donation.CampaignID),
			)

			c.JSON(http.StatusOK, gin.H{"order_id": donation.OrderID, "status": donation.Status})
		case "failure":
			donation, err := service.MarkFailed(c.Request.Context(), request.OrderID, request.FailureReason)
			if err != nil {
				respondWithError(c, err)
				return
			}

			logger.Info("donation settlement failed",
				zap.String("order_id", donation.OrderID),
				zap.String("reason", request.FailureReason),
			)

			c.JSON(http.StatusOK, gin.H{"order_id": donation.OrderID, "status": donation.Status})
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid outcome", "details": "outcome must be success or failure"})
		}
	}
}

func RefundHandler(refunds *givehub.RefundProcessor, logger *zap.Logger) func(*gin.Context) {
	return func(c *gin.Context) {
		var request RefundRequest

		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
			return
		}

		orderID := c.Param("orderId")

		donation, err := refunds.Refund(c.Request.Context(), orderID, request.AmountInCents, request.Reason)
		if err != nil {
			respondWithError(c, err)
			return
		}

		logger.Info("donation refunded",
			zap.String("order_id", donation.OrderID),
			zap.Int64("refund_amount_in_cents", donation.RefundAmountInCents),
		)

		c.JSON(http.StatusOK, gin.H{
			"order_id":               donation.OrderID,
			"status":                 donation.Status,
			"amount_in_cents":        donation.AmountInCents,
			"refund_amount_in_cents": donation.RefundAmountInCents,
			"refunded_at":            donation.RefundedAt,
		})
	}
}

func IssueCertificateHandler(issuer *givehub.TaxCertificateIssuer, logger *zap.Logger) func(*gin.Context) {
	return func(c *gin.Context) {
		orderID := c.Param("orderId")

		certificate, err := issuer.Issue(c.Request.Context(), orderID)
		if err != nil {
			respondWithError(c, err)
			return
		}

		logger.Info("certificate issued",
			zap.String("order_id", orderID),
			zap.String("certificate_number", certificate.Number),
		)

		c.JSON(http.StatusOK, gin.H{
			"certificate_number": certificate.Number,
			"download_url":       certificate.DownloadURL,
		})
	}
}

// CampaignOverviewHandler reports a campaign's funding progress, milestone
// state, and settled-donation count.
func CampaignOverviewHandler(campaigns givehub.CampaignStore, donations givehub.DonationStore) func(*gin.Context) {
	return func(c *gin.Context) {
		campaignID := c.Param("id")

		campaign, err := campaigns.FindCampaign(c.Request.Context(), campaignID)
		if err != nil {
			respondWithError(c, err)
			return
		}

		records, err := donations.ListDonationsByCampaign(c.Request.Context(), campaignID)
		if err != nil {
			respondWithError(c, err)
			return
		}

		var settled int
		for _, donation := range records {
			if donation.Status == givehub.DonationCompleted || donation.Status == givehub.DonationRefunded {
				settled++
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"id":                     campaign.ID,
			"title":                  campaign.Title,
			"status":                 campaign.Status,
			"goal_in_cents":          campaign.GoalInCents,
			"amount_raised_in_cents": campaign.AmountRaisedInCents,
			"donors_count":           campaign.DonorsCount,
			"percent_funded":         campaign.PercentFunded(),
			"milestones":             campaign.Milestones,
			"settled_donations":      settled,
		})
	}
}

// respondWithError maps core errors onto status codes: bad input is 400,
// missing resources 404, wrong-state operations 409, an expired refund
// window 422, and an aggregate update that exhausted its retries 503.
func respondWithError(c *gin.Context, err error) {
	var (
		validation    *givehub.ValidationError
		notFound      *givehub.NotFoundError
		invalidState  *givehub.InvalidStateError
		refunded      *givehub.AlreadyRefundedError
		windowExpired *givehub.RefundWindowExpiredError
		notEligible   *givehub.NotEligibleError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": err.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found", "details": err.Error()})
	case errors.As(err, &invalidState), errors.As(err, &refunded), errors.As(err, &notEligible):
		c.JSON(http.StatusConflict, gin.H{"error": "conflicting state", "details": err.Error()})
	case errors.As(err, &windowExpired):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "refund window expired", "details": err.Error()})
	case errors.Is(err, givehub.ErrConcurrencyConflict):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "temporarily unavailable, retry later", "details": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "details": err.Error()})
	}
}
