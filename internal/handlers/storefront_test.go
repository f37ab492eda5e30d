package handlers_test

import (
	"context"
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

func newStorefrontRouter(t *testing.T) (*gin.Engine, *storage.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.CreateEvent(ctx, &models.Event{
		EventID: "evt_conf", Title: "Go Conference", Location: "Berlin", Date: time.Now().Add(24 * time.Hour),
	}))
	require.NoError(t, store.CreateEvent(ctx, &models.Event{
		EventID: "evt_meetup", Title: "Rust Meetup", Location: "Munich", Date: time.Now().Add(48 * time.Hour),
	}))

	storefront := services.NewStorefrontService(store, logger.NewLogger())
	handler := handlers.NewStorefrontHandler(storefront)

	router := gin.New()
	router.GET("/api/v1/events", handler.ListEvents)
	router.GET("/api/v1/events/:id", handler.GetEvent)
	router.GET("/api/v1/tickets", handler.ListTickets)
	router.GET("/api/v1/tickets/:id", handler.GetTicket)
	return router, store
}

func getAs(router *gin.Engine, path, userID string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// seedTicket wires up the order chain so ownership checks have something
// to look at.
func seedTicket(t *testing.T, store *storage.MemoryStore, ticketID, buyerID string) {
	t.Helper()
	ctx := context.Background()
	orderID := "ord_for_" + ticketID
	require.NoError(t, store.CreateOrder(ctx, &models.Order{
		OrderID:            orderID,
		BuyerID:            buyerID,
		Status:             models.OrderStatusPaid,
		TotalAmountMinor:   5000,
		ExternalPaymentRef: "cs_" + ticketID,
		CreatedAt:          time.Now(),
	}))
	require.NoError(t, store.CreateTicket(ctx, &models.Ticket{
		TicketID:        ticketID,
		OrderID:         orderID,
		EventID:         "evt_conf",
		Status:          models.TicketStatusValid,
		RedemptionToken: "token_" + ticketID,
		CreatedAt:       time.Now(),
	}))
}

func TestListEvents(t *testing.T) {
	router, _ := newStorefrontRouter(t)

	w := getAs(router, "/api/v1/events", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Go Conference")
	assert.Contains(t, w.Body.String(), "Rust Meetup")
}

func TestListEventsFiltered(t *testing.T) {
	router, _ := newStorefrontRouter(t)

	w := getAs(router, "/api/v1/events?q=berlin", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Go Conference")
	assert.NotContains(t, w.Body.String(), "Rust Meetup")
}

func TestGetEventNotFound(t *testing.T) {
	router, _ := newStorefrontRouter(t)

	w := getAs(router, "/api/v1/events/evt_missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListTicketsRequiresIdentity(t *testing.T) {
	router, _ := newStorefrontRouter(t)

	w := getAs(router, "/api/v1/tickets", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListTicketsHidesRedemptionToken(t *testing.T) {
	router, store := newStorefrontRouter(t)
	seedTicket(t, store, "tkt_1", "user_1")

	w := getAs(router, "/api/v1/tickets", "user_1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tkt_1")
	assert.NotContains(t, w.Body.String(), "token_tkt_1")
}

func TestGetTicketReturnsRedemptionToken(t *testing.T) {
	router, store := newStorefrontRouter(t)
	seedTicket(t, store, "tkt_2", "user_1")

	w := getAs(router, "/api/v1/tickets/tkt_2", "user_1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "token_tkt_2")
}

func TestGetTicketDeniesOtherBuyer(t *testing.T) {
	router, store := newStorefrontRouter(t)
	seedTicket(t, store, "tkt_3", "user_1")

	// The other buyer sees not-found, not forbidden, so ticket ids do
	// not leak.
	w := getAs(router, "/api/v1/tickets/tkt_3", "user_2")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
