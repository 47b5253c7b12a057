package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderTransitions(t *testing.T) {
	allowed := map[OrderStatus][]OrderStatus{
		OrderStatusPending:        {OrderStatusConfirmed, OrderStatusCancelled, OrderStatusFailed},
		OrderStatusConfirmed:      {OrderStatusPreparing, OrderStatusCancelled},
		OrderStatusPreparing:      {OrderStatusReadyForPickup, OrderStatusCancelled},
		OrderStatusReadyForPickup: {OrderStatusOutForDelivery, OrderStatusCancelled},
		OrderStatusOutForDelivery: {OrderStatusDelivered},
	}
	for _, from := range AllOrderStatuses() {
		for _, to := range AllOrderStatuses() {
			want := false
			for _, a := range allowed[from] {
				want = want || a == to
			}
			assert.Equal(t, want, from.CanTransitionTo(to), "%s -> %s", from, to)
		}
	}
}

func TestOrderTerminalAndCancellable(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusDelivered, OrderStatusCancelled, OrderStatusFailed} {
		assert.True(t, s.Terminal(), s)
		assert.False(t, s.Cancellable(), s)
	}
	assert.False(t, OrderStatusOutForDelivery.Cancellable())
	assert.True(t, OrderStatusReadyForPickup.Cancellable())
	assert.True(t, Order{Status: OrderStatusPending}.CanTransitionTo(OrderStatusConfirmed))
}

func TestDeliveryTransitions(t *testing.T) {
	chain := []DeliveryStatus{
		DeliveryStatusAwaitingPrep, DeliveryStatusPendingAcceptance, DeliveryStatusAccepted,
		DeliveryStatusAtStore, DeliveryStatusPickedUp, DeliveryStatusDelivered,
	}
	for i := 0; i+1 < len(chain); i++ {
		assert.True(t, chain[i].CanTransitionTo(chain[i+1]), "%s -> %s", chain[i], chain[i+1])
		assert.True(t, chain[i].CanTransitionTo(DeliveryStatusCancelled), chain[i])
		if i+2 < len(chain) {
			assert.False(t, chain[i].CanTransitionTo(chain[i+2]), "skip %s -> %s", chain[i], chain[i+2])
		}
		assert.False(t, chain[i+1].CanTransitionTo(chain[i]), "back %s -> %s", chain[i+1], chain[i])
	}
	assert.True(t, DeliveryStatusDelivered.Terminal())
	assert.True(t, DeliveryStatusCancelled.Terminal())
	assert.False(t, Delivery{Status: DeliveryStatusDelivered}.CanTransitionTo(DeliveryStatusCancelled))
}

func TestAllocatableFree(t *testing.T) {
	assert.EqualValues(t, 3, AllocatableRecord{Quantity: 5, Reserved: 2}.Free())
	assert.EqualValues(t, 0, AllocatableRecord{Quantity: 2, Reserved: 5}.Free())
}
