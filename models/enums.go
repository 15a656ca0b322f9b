package models

type PurchaseOrderStatus string

const (
	PurchaseOrderStatusPending   PurchaseOrderStatus = "Pending"
	PurchaseOrderStatusPartial   PurchaseOrderStatus = "Partial"
	PurchaseOrderStatusReceived  PurchaseOrderStatus = "Received"
	PurchaseOrderStatusCancelled PurchaseOrderStatus = "Cancelled"
)

// IsFrozen reports whether reconciliation may still move the status.
func (s PurchaseOrderStatus) IsFrozen() bool {
	return s == PurchaseOrderStatusReceived || s == PurchaseOrderStatusCancelled
}

type PresenceStatus string

const (
	PresenceStatusIn  PresenceStatus = "in"
	PresenceStatusOut PresenceStatus = "out"
)

func (s PresenceStatus) Opposite() PresenceStatus {
	if s == PresenceStatusIn {
		return PresenceStatusOut
	}
	return PresenceStatusIn
}
