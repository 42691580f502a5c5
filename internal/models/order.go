package models

// Order status values. An order transitions to PAID exactly once.
const (
	OrderStatusCreated = "CREATED"
	OrderStatusPaid    = "PAID"
	OrderStatusFailed  = "FAILED"
)

// Order identifies a purchase intent against the payment gateway. The row is
// the single serialization point for webhook settlement.
type Order struct {
	BaseModel

	UserID   string  `gorm:"type:uuid;not null;index" json:"user_id"`
	User     *User   `gorm:"foreignKey:UserID" json:"-"`
	CourseID string  `gorm:"type:uuid;not null;index" json:"course_id"`
	Course   *Course `gorm:"foreignKey:CourseID" json:"-"`

	GatewayOrderID string `gorm:"uniqueIndex;not null" json:"gateway_order_id"`
	Amount         int64  `gorm:"not null" json:"amount"`
	Status         string `gorm:"not null;type:varchar(20)" json:"status"`

	Payment *Payment `gorm:"foreignKey:OrderID" json:"payment,omitempty"`
}
