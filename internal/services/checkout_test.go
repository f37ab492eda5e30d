package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"localhost-events/internal/config"
	"localhost-events/internal/logger"
	"localhost-events/internal/models"
	"localhost-events/internal/services"
	"localhost-events/internal/storage"
)

func newCheckoutService(t *testing.T) (*services.CheckoutService, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	svc, err := services.NewCheckoutService(store, config.StripeConfig{
		SecretKey:  "sk_test_fake",
		SuccessURL: "http://localhost:3000/success",
		CancelURL:  "http://localhost:3000/cancel",
	}, logger.NewLogger())
	require.NoError(t, err)
	return svc, store
}

func TestNewCheckoutServiceRequiresSecretKey(t *testing.T) {
	_, err := services.NewCheckoutService(storage.NewMemoryStore(), config.StripeConfig{}, logger.NewLogger())
	assert.ErrorIs(t, err, services.ErrStripeClientInitFailed)
}

func TestCreateSessionUnknownUnit(t *testing.T) {
	svc, _ := newCheckoutService(t)

	_, err := svc.CreateSession(context.Background(), &models.CheckoutRequest{
		InventoryUnitID: "unit_missing",
		BuyerID:         "user_1",
		BuyerEmail:      "buyer@example.com",
	})
	assert.ErrorIs(t, err, services.ErrUnitNotFound)
}

func TestCreateSessionSoldOutUnit(t *testing.T) {
	svc, store := newCheckoutService(t)
	ctx := context.Background()
	require.NoError(t, store.CreateInventoryUnit(ctx, &models.InventoryUnit{
		UnitID: "unit_empty", EventID: "evt_1", Name: "GA", UnitPriceMinor: 5000, RemainingCapacity: 0,
	}))

	_, err := svc.CreateSession(ctx, &models.CheckoutRequest{
		InventoryUnitID: "unit_empty",
		BuyerID:         "user_1",
		BuyerEmail:      "buyer@example.com",
	})
	assert.ErrorIs(t, err, services.ErrUnitUnavailable)
}

func TestCreateSessionRetiredUnit(t *testing.T) {
	svc, store := newCheckoutService(t)
	ctx := context.Background()
	require.NoError(t, store.CreateInventoryUnit(ctx, &models.InventoryUnit{
		UnitID: "unit_retired", EventID: "evt_1", Name: "Early Bird", UnitPriceMinor: 3000,
		RemainingCapacity: 10, Retired: true,
	}))

	_, err := svc.CreateSession(ctx, &models.CheckoutRequest{
		InventoryUnitID: "unit_retired",
		BuyerID:         "user_1",
		BuyerEmail:      "buyer@example.com",
	})
	assert.ErrorIs(t, err, services.ErrUnitUnavailable)
}
