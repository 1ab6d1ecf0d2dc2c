package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/willmadison/givehub-tools/givehub"
	"github.com/willmadison/givehub-tools/givehub/inmemory"
)

func newTestRouter(t *testing.T) (*gin.Engine, *inmemory.Store, *givehub.Service) {
	t.Helper()

	gin.SetMode(gin.TestMode)

	store := inmemory.NewStore()
	service := givehub.NewService(store)
	refunds := givehub.NewRefundProcessor(store, service.Aggregator())
	issuer := givehub.NewTaxCertificateIssuer(store, "https://donations.example.org")
	logger := zap.NewNop()

	r := gin.New()
	r.POST("/api/donations", InitiateDonationHandler(service, logger))
	r.POST("/api/donations/settlement", SettlementHandler(service, logger))
	r.POST("/api/donations/:orderId/refund", RefundHandler(refunds, logger))
	r.POST("/api/donations/:orderId/certificate", IssueCertificateHandler(issuer, logger))
	r.GET("/api/campaigns/:id/overview", CampaignOverviewHandler(store, store))

	now := time.Now()
	_, err := store.CreateCampaign(context.Background(), givehub.Campaign{
		ID:          "campaign-1",
		Title:       "Test Campaign",
		Status:      givehub.CampaignActive,
		GoalInCents: 1_000_000,
		Milestones:  []givehub.Milestone{{Label: "First", AmountInCents: 5_000}},
		Created:     now,
		Updated:     now,
	})
	require.NoError(t, err)

	return r, store, service
}

func postJSON(t *testing.T, r *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	return body
}

func TestInitiateDonationEndpoint(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := postJSON(t, r, "/api/donations", map[string]any{
		"campaign_id":     "campaign-1",
		"donor_id":        "donor-1",
		"amount_in_cents": 10_000,
		"currency":        "USD",
		"payment_method":  "card",
	})

	require.Equal(t, http.StatusCreated, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "pending", body["status"])
	assert.NotEmpty(t, body["order_id"])
}

func TestInitiateDonationEndpointValidation(t *testing.T) {
	r, _, _ := newTestRouter(t)

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/donations", bytes.NewReader([]byte("{")))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown campaign", func(t *testing.T) {
		w := postJSON(t, r, "/api/donations", map[string]any{
			"campaign_id":     "missing",
			"amount_in_cents": 10_000,
		})

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("negative amount", func(t *testing.T) {
		w := postJSON(t, r, "/api/donations", map[string]any{
			"campaign_id":     "campaign-1",
			"amount_in_cents": -5,
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSettlementEndpoint(t *testing.T) {
	r, store, _ := newTestRouter(t)

	w := postJSON(t, r, "/api/donations", map[string]any{
		"campaign_id":     "campaign-1",
		"donor_id":        "donor-1",
		"amount_in_cents": 10_000,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decodeBody(t, w)["order_id"].(string)

	t.Run("success outcome settles the donation", func(t *testing.T) {
		w := postJSON(t, r, "/api/donations/settlement", map[string]any{
			"order_id":               orderID,
			"gateway_transaction_id": "txn-1",
			"outcome":                "success",
		})

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "completed", decodeBody(t, w)["status"])

		campaign, err := store.FindCampaign(context.Background(), "campaign-1")
		require.NoError(t, err)
		assert.Equal(t, int64(10_000), campaign.AmountRaisedInCents)
	})

	t.Run("redelivered callback is acknowledged without double counting", func(t *testing.T) {
		w := postJSON(t, r, "/api/donations/settlement", map[string]any{
			"order_id": orderID,
			"outcome":  "success",
		})

		require.Equal(t, http.StatusOK, w.Code)

		campaign, err := store.FindCampaign(context.Background(), "campaign-1")
		require.NoError(t, err)
		assert.Equal(t, int64(10_000), campaign.AmountRaisedInCents)
	})

	t.Run("unknown outcome", func(t *testing.T) {
		w := postJSON(t, r, "/api/donations/settlement", map[string]any{
			"order_id": orderID,
			"outcome":  "maybe",
		})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown order", func(t *testing.T) {
		w := postJSON(t, r, "/api/donations/settlement", map[string]any{
			"order_id": "missing",
			"outcome":  "success",
		})

		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestFailureOutcomeIsRecordedNotErrored(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := postJSON(t, r, "/api/donations", map[string]any{
		"campaign_id":     "campaign-1",
		"amount_in_cents": 10_000,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decodeBody(t, w)["order_id"].(string)

	w = postJSON(t, r, "/api/donations/settlement", map[string]any{
		"order_id":       orderID,
		"outcome":        "failure",
		"failure_reason": "card declined",
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "failed", decodeBody(t, w)["status"])
}

func TestRefundEndpoint(t *testing.T) {
	r, _, service := newTestRouter(t)

	w := postJSON(t, r, "/api/donations", map[string]any{
		"campaign_id":     "campaign-1",
		"donor_id":        "donor-1",
		"amount_in_cents": 10_000,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decodeBody(t, w)["order_id"].(string)

	t.Run("refunding a pending donation conflicts", func(t *testing.T) {
		w := postJSON(t, r, fmt.Sprintf("/api/donations/%s/refund", orderID), map[string]any{"reason": "early"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	_, err := service.MarkSettled(context.Background(), orderID, "txn-1", nil)
	require.NoError(t, err)

	t.Run("partial refund", func(t *testing.T) {
		w := postJSON(t, r, fmt.Sprintf("/api/donations/%s/refund", orderID), map[string]any{
			"amount_in_cents": 4_000,
			"reason":          "dispute",
		})

		require.Equal(t, http.StatusOK, w.Code)

		body := decodeBody(t, w)
		assert.Equal(t, "refunded", body["status"])
		assert.Equal(t, float64(4_000), body["refund_amount_in_cents"])
	})

	t.Run("second refund conflicts", func(t *testing.T) {
		w := postJSON(t, r, fmt.Sprintf("/api/donations/%s/refund", orderID), map[string]any{"reason": "again"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestCertificateEndpoint(t *testing.T) {
	r, _, service := newTestRouter(t)

	w := postJSON(t, r, "/api/donations", map[string]any{
		"campaign_id":       "campaign-1",
		"donor_id":          "donor-1",
		"amount_in_cents":   10_000,
		"is_tax_deductible": true,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decodeBody(t, w)["order_id"].(string)

	t.Run("not eligible before settlement", func(t *testing.T) {
		w := postJSON(t, r, fmt.Sprintf("/api/donations/%s/certificate", orderID), nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	_, err := service.MarkSettled(context.Background(), orderID, "txn-1", nil)
	require.NoError(t, err)

	w = postJSON(t, r, fmt.Sprintf("/api/donations/%s/certificate", orderID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	firstNumber := body["certificate_number"].(string)
	assert.Contains(t, firstNumber, orderID)
	assert.NotEmpty(t, body["download_url"])

	t.Run("re-issuance returns the identical number", func(t *testing.T) {
		w := postJSON(t, r, fmt.Sprintf("/api/donations/%s/certificate", orderID), nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, firstNumber, decodeBody(t, w)["certificate_number"])
	})
}

func TestCampaignOverviewEndpoint(t *testing.T) {
	r, _, service := newTestRouter(t)

	w := postJSON(t, r, "/api/donations", map[string]any{
		"campaign_id":     "campaign-1",
		"donor_id":        "donor-1",
		"amount_in_cents": 10_000,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decodeBody(t, w)["order_id"].(string)

	_, err := service.MarkSettled(context.Background(), orderID, "txn-1", nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/campaigns/campaign-1/overview", nil)
	recorder := httptest.NewRecorder()
	r.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)

	body := decodeBody(t, recorder)
	assert.Equal(t, float64(10_000), body["amount_raised_in_cents"])
	assert.Equal(t, float64(1), body["donors_count"])
	assert.Equal(t, float64(1), body["settled_donations"])
	assert.Equal(t, 1.0, body["percent_funded"])

	t.Run("unknown campaign", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/campaigns/missing/overview", nil)
		recorder := httptest.NewRecorder()
		r.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})
}
