package models

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusConfirmed, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusConfirmed:      {OrderStatusPreparing, OrderStatusCancelled},
	OrderStatusPreparing:      {OrderStatusReadyForPickup, OrderStatusCancelled},
	OrderStatusReadyForPickup: {OrderStatusOutForDelivery, OrderStatusCancelled},
	OrderStatusOutForDelivery: {OrderStatusDelivered},
}

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryStatusAwaitingPrep:      {DeliveryStatusPendingAcceptance, DeliveryStatusCancelled},
	DeliveryStatusPendingAcceptance: {DeliveryStatusAccepted, DeliveryStatusCancelled},
	DeliveryStatusAccepted:          {DeliveryStatusAtStore, DeliveryStatusCancelled},
	DeliveryStatusAtStore:           {DeliveryStatusPickedUp, DeliveryStatusCancelled},
	DeliveryStatusPickedUp:          {DeliveryStatusDelivered, DeliveryStatusCancelled},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, n := range orderTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// Cancellable is true before the order leaves the store.
func (s OrderStatus) Cancellable() bool {
	return s.CanTransitionTo(OrderStatusCancelled)
}

func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	for _, n := range deliveryTransitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

func (s DeliveryStatus) Terminal() bool {
	return len(deliveryTransitions[s]) == 0
}

func (o Order) CanTransitionTo(next OrderStatus) bool { return o.Status.CanTransitionTo(next) }

func (d Delivery) CanTransitionTo(next DeliveryStatus) bool { return d.Status.CanTransitionTo(next) }

func AllOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending, OrderStatusConfirmed, OrderStatusPreparing, OrderStatusReadyForPickup,
		OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled, OrderStatusFailed,
	}
}

func AllDeliveryStatuses() []DeliveryStatus {
	return []DeliveryStatus{
		DeliveryStatusAwaitingPrep, DeliveryStatusPendingAcceptance, DeliveryStatusAccepted,
		DeliveryStatusAtStore, DeliveryStatusPickedUp, DeliveryStatusDelivered, DeliveryStatusCancelled,
	}
}
