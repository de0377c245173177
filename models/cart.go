package models

import "time"

type Cart struct {
	CartID    uint       `gorm:"primaryKey" json:"cart_id"`
	UserID    string     `gorm:"uniqueIndex" json:"user_id"` // one cart per user
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CartItem snapshots the product at the moment it was added. Bundles carry
// their component snapshots so the order keeps them even if the bundle
// definition changes later.
type CartItem struct {
	ID              uint          `gorm:"primaryKey" json:"id"`
	CartID          uint          `gorm:"index" json:"cart_id"`
	ProductID       uint          `json:"product_id"`
	Name            string        `json:"name"`
	Image           string        `json:"image"`
	StockMountID    string        `json:"stockmount_id"`
	TaxRate         int           `json:"tax_rate"`
	Price           float64       `json:"price"`
	DiscountedPrice *float64      `json:"discounted_price,omitempty"`
	Quantity        int           `json:"quantity"`
	IsBundle        bool          `json:"is_bundle"`
	IsSubVariant    bool          `json:"is_sub_variant"`
	SubItems        []CartSubItem `gorm:"foreignKey:CartItemID;constraint:OnDelete:CASCADE" json:"sub_items,omitempty"`
	AddedAt         time.Time     `json:"added_at"`
}

type CartSubItem struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	CartItemID   uint    `gorm:"index" json:"cart_item_id"`
	ProductID    uint    `json:"product_id"`
	Name         string  `json:"name"`
	StockMountID string  `json:"stockmount_id"`
	TaxRate      int     `json:"tax_rate"`
	Price        float64 `json:"price"`
	Quantity     int     `json:"quantity"`
}
