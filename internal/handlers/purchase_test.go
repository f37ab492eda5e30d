package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localhost-events/internal/handlers"
	"localhost-events/internal/logger"
	"localhost-events/internal/models"
	"localhost-events/internal/services"
	"localhost-events/internal/storage"
)

// fakeCheckout stands in for the Stripe-backed checkout service: sessions
// are registered by tests and looked up by id.
type fakeCheckout struct {
	sessions  map[string]*models.SettlementRequest
	createErr error
}

func (f *fakeCheckout) CreateSession(ctx context.Context, req *models.CheckoutRequest) (*models.CheckoutResponse, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &models.CheckoutResponse{
		SessionID:   "cs_test_session",
		CheckoutURL: "https://checkout.stripe.com/pay/cs_test_session",
	}, nil
}

func (f *fakeCheckout) LookupConfirmation(ctx context.Context, sessionID string) (*models.SettlementRequest, error) {
	if req, ok := f.sessions[sessionID]; ok {
		return req, nil
	}
	return nil, services.ErrStripeAPIError
}

func newPurchaseRouter(t *testing.T, capacity int64) (*gin.Engine, *fakeCheckout, *storage.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.CreateEvent(ctx, &models.Event{
		EventID: "evt_1", Title: "Go Conference", Date: time.Now().Add(24 * time.Hour),
	}))
	require.NoError(t, store.CreateInventoryUnit(ctx, &models.InventoryUnit{
		UnitID: "unit_1", EventID: "evt_1", Name: "GA", UnitPriceMinor: 5000, RemainingCapacity: capacity,
	}))

	settlement := services.NewSettlementService(store, nil, nil, nil, logger.NewLogger())
	checkout := &fakeCheckout{sessions: make(map[string]*models.SettlementRequest)}
	handler := handlers.NewPurchaseHandler(checkout, settlement)

	router := gin.New()
	router.POST("/api/v1/checkout", handler.CreateCheckout)
	router.POST("/api/v1/purchases/verify", handler.VerifyPurchase)
	router.POST("/api/v1/settlements", handler.SettleDirect)
	return router, checkout, store
}

func postJSON(router *gin.Engine, path string, body interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func paidSession(ref string) *models.SettlementRequest {
	return &models.SettlementRequest{
		PaymentRef:      ref,
		ConfirmedPaid:   true,
		BuyerID:         "user_1",
		BuyerEmail:      "buyer@example.com",
		InventoryUnitID: "unit_1",
		EventID:         "evt_1",
		AmountPaidMinor: 5000,
	}
}

func TestVerifyPurchaseSettles(t *testing.T) {
	router, checkout, store := newPurchaseRouter(t, 2)
	checkout.sessions["cs_ok"] = paidSession("cs_ok")

	w := postJSON(router, "/api/v1/purchases/verify", models.VerifyPurchaseRequest{SessionID: "cs_ok"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Purchase settled")

	order, err := store.GetOrderByPaymentRef(context.Background(), "cs_ok")
	require.NoError(t, err)
	require.NotNil(t, order)
}

func TestVerifyPurchaseReplayReturnsAlreadyProcessed(t *testing.T) {
	router, checkout, _ := newPurchaseRouter(t, 2)
	checkout.sessions["cs_replay"] = paidSession("cs_replay")

	first := postJSON(router, "/api/v1/purchases/verify", models.VerifyPurchaseRequest{SessionID: "cs_replay"})
	assert.Equal(t, http.StatusOK, first.Code)

	// A buyer refreshing the success page hits the same endpoint again.
	second := postJSON(router, "/api/v1/purchases/verify", models.VerifyPurchaseRequest{SessionID: "cs_replay"})
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), "already processed")
}

func TestVerifyPurchaseUnpaid(t *testing.T) {
	router, checkout, store := newPurchaseRouter(t, 2)
	session := paidSession("cs_unpaid")
	session.ConfirmedPaid = false
	checkout.sessions["cs_unpaid"] = session

	w := postJSON(router, "/api/v1/purchases/verify", models.VerifyPurchaseRequest{SessionID: "cs_unpaid"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	order, err := store.GetOrderByPaymentRef(context.Background(), "cs_unpaid")
	require.NoError(t, err)
	assert.Nil(t, order)
}

func TestVerifyPurchaseSoldOut(t *testing.T) {
	router, checkout, _ := newPurchaseRouter(t, 0)
	checkout.sessions["cs_full"] = paidSession("cs_full")

	w := postJSON(router, "/api/v1/purchases/verify", models.VerifyPurchaseRequest{SessionID: "cs_full"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Sold out")
}

func TestVerifyPurchaseInvalidMetadata(t *testing.T) {
	router, checkout, _ := newPurchaseRouter(t, 2)
	session := paidSession("cs_bad_meta")
	session.InventoryUnitID = "unit_missing"
	checkout.sessions["cs_bad_meta"] = session

	w := postJSON(router, "/api/v1/purchases/verify", models.VerifyPurchaseRequest{SessionID: "cs_bad_meta"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestVerifyPurchaseUnknownSession(t *testing.T) {
	router, _, _ := newPurchaseRouter(t, 2)

	w := postJSON(router, "/api/v1/purchases/verify", models.VerifyPurchaseRequest{SessionID: "cs_missing"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestVerifyPurchaseRejectsMissingSessionID(t *testing.T) {
	router, _, _ := newPurchaseRouter(t, 2)

	w := postJSON(router, "/api/v1/purchases/verify", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettleDirectAcceptsConfirmation(t *testing.T) {
	router, _, store := newPurchaseRouter(t, 1)

	w := postJSON(router, "/api/v1/settlements", paidSession("cs_direct"))
	assert.Equal(t, http.StatusOK, w.Code)

	order, err := store.GetOrderByPaymentRef(context.Background(), "cs_direct")
	require.NoError(t, err)
	require.NotNil(t, order)
}

func TestCreateCheckout(t *testing.T) {
	router, _, _ := newPurchaseRouter(t, 2)

	w := postJSON(router, "/api/v1/checkout", models.CheckoutRequest{
		InventoryUnitID: "unit_1",
		BuyerID:         "user_1",
		BuyerEmail:      "buyer@example.com",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cs_test_session")
}

func TestCreateCheckoutUnknownUnit(t *testing.T) {
	router, checkout, _ := newPurchaseRouter(t, 2)
	checkout.createErr = services.ErrUnitNotFound

	w := postJSON(router, "/api/v1/checkout", models.CheckoutRequest{
		InventoryUnitID: "unit_missing",
		BuyerID:         "user_1",
		BuyerEmail:      "buyer@example.com",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}
