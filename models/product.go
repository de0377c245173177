package models

import (
	"time"

	"gorm.io/gorm"
)

type Product struct {
	ID              uint     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string   `gorm:"not null" json:"name"`
	Description     string   `json:"description"`
	Brand           string   `gorm:"index" json:"brand"`
	Price           float64  `gorm:"not null" json:"price"`
	DiscountedPrice *float64 `json:"discounted_price,omitempty"`
	Image           string   `json:"image"`
	Stock           int      `json:"stock"`
	TaxRate         int      `gorm:"default:20" json:"tax_rate"`

	// StockMountID is the product's id at the fulfillment side. Sub-variants
	// may legitimately lack one; export falls back to a configured default.
	StockMountID string `json:"stockmount_id"`
	IsSubVariant bool   `json:"is_sub_variant"`

	IsBundle    bool         `json:"is_bundle"`
	BundleItems []BundleItem `gorm:"foreignKey:BundleID;constraint:OnDelete:CASCADE" json:"bundle_items,omitempty"`

	Categories []Category `gorm:"many2many:product_categories;" json:"categories"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BundleItem links a bundle product to one of its components.
type BundleItem struct {
	ID           uint `gorm:"primaryKey" json:"id"`
	BundleID     uint `gorm:"index" json:"bundle_id"`
	SubProductID uint `json:"sub_product_id"`
	Quantity     int  `gorm:"default:1" json:"quantity"`
}

type Category struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}
