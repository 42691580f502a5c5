package models

import "gorm.io/datatypes"

// Payment status values.
const (
	PaymentStatusSuccess = "SUCCESS"
	PaymentStatusFailed  = "FAILED"
)

// Payment is 1:1 with a PAID order. Its existence is the idempotency witness
// for webhook settlement: a present row means the order has been settled. The
// raw confirmation payload is retained for forensic replay.
type Payment struct {
	BaseModel

	OrderID string `gorm:"type:uuid;not null;uniqueIndex" json:"order_id"`
	Order   *Order `gorm:"foreignKey:OrderID" json:"-"`

	GatewayPaymentID string         `gorm:"uniqueIndex;not null" json:"gateway_payment_id"`
	Status           string         `gorm:"not null;type:varchar(20)" json:"status"`
	RawPayload       datatypes.JSON `json:"-"`
}
