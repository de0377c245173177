package models

import "time"

type OrderStatus string

const (
	// Order lifecycle: pending -> paid -> inShipment -> delivered, or cancelled.
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusInShipment OrderStatus = "inShipment"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

type Order struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	MerchantOID string `gorm:"column:merchant_oid;uniqueIndex" json:"merchant_oid"`
	UserID      string `gorm:"index;not null" json:"user_id"`
	User        User   `gorm:"foreignKey:UserID" json:"user"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`

	// PaymentAmount is the captured amount in minor currency units (kurus).
	// Once the gateway callback confirms it, it is the single source of truth
	// for what was actually collected.
	PaymentAmount  int64   `json:"payment_amount"`
	TotalAmount    float64 `json:"total_amount"`
	ShippingCost   float64 `json:"shipping_cost"`
	DiscountAmount float64 `json:"discount_amount"`
	CouponCode     string  `json:"coupon_code"`

	Status       OrderStatus `gorm:"type:VARCHAR(20);default:'pending'" json:"status"`
	FreeShipping bool        `json:"free_shipping"`

	SentToStockMount bool   `gorm:"column:sent_to_stockmount" json:"sent_to_stockmount"`
	EmailSent        bool   `json:"email_sent"`
	ShipmentCode     string `json:"shipment_code"`

	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Phone    string  `json:"phone"`
	Shipping Address `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping_address"`
	Billing  Address `gorm:"embedded;embeddedPrefix:billing_" json:"billing_address"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type OrderItem struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	OrderID         uint           `gorm:"index" json:"order_id"`
	ProductID       uint           `json:"product_id"`
	Name            string         `json:"name"`
	StockMountID    string         `json:"stockmount_id"` // external product id at the fulfillment side
	TaxRate         int            `json:"tax_rate"`
	Price           float64        `json:"price"`
	DiscountedPrice *float64       `json:"discounted_price,omitempty"`
	Quantity        int            `json:"quantity"`
	IsBundle        bool           `json:"is_bundle"`
	IsSubVariant    bool           `json:"is_sub_variant"`
	SubItems        []OrderSubItem `gorm:"foreignKey:OrderItemID;constraint:OnDelete:CASCADE" json:"sub_items,omitempty"`
}

// OrderSubItem is the snapshot of one bundle component at order time. Its
// price is authoritative when the order is exported to fulfillment.
type OrderSubItem struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	OrderItemID  uint    `gorm:"index" json:"order_item_id"`
	ProductID    uint    `json:"product_id"`
	Name         string  `json:"name"`
	StockMountID string  `json:"stockmount_id"`
	TaxRate      int     `json:"tax_rate"`
	Price        float64 `json:"price"`
	Quantity     int     `json:"quantity"`
}
