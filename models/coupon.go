package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type DiscountType string
type CouponType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"

	CouponGeneral    CouponType = "general"
	CouponFirstOrder CouponType = "first_order"
	CouponBirthday   CouponType = "birthday"
	CouponLoyalty    CouponType = "loyalty"
	CouponReferral   CouponType = "referral"
	CouponSeasonal   CouponType = "seasonal"
)

// Eligibility reasons returned by CanUse. The storefront shows these to the
// customer verbatim, so they stay specific instead of a generic "invalid coupon".
const (
	ReasonInactive         = "coupon inactive"
	ReasonExpired          = "expired"
	ReasonNotStarted       = "not started yet"
	ReasonUsageLimit       = "usage limit reached"
	ReasonNotEligible      = "not eligible for this user"
	ReasonPerUserLimit     = "per-user limit reached"
	minOrderReasonTemplate = "minimum order amount not met (min %.2f)"
)

// CouponStats are aggregate counters, only ever increased by RecordUse.
type CouponStats struct {
	TotalUses       int     `json:"total_uses"`
	TotalDiscount   float64 `json:"total_discount"`
	TotalOrderValue float64 `json:"total_order_value"`
	UniqueUsers     int     `json:"unique_users"`
}

type Coupon struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	Code        string       `gorm:"uniqueIndex;size:20;not null" json:"code"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Type        DiscountType `gorm:"type:VARCHAR(20);not null" json:"type"`
	Value       float64      `gorm:"not null" json:"value"`

	MinOrderAmount    float64 `json:"min_order_amount"`
	MaxDiscountAmount float64 `json:"max_discount_amount"` // cap for percentage type, 0 = no cap
	UsageLimit        int     `json:"usage_limit"`          // global, 0 = unlimited
	UsageLimitPerUser int     `json:"usage_limit_per_user"` // 0 = unlimited
	UsedCount         int     `json:"used_count"`

	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`

	// Empty applicability list means the coupon applies to all.
	ApplicableProducts   datatypes.JSONSlice[string] `json:"applicable_products"`
	ApplicableCategories datatypes.JSONSlice[string] `json:"applicable_categories"`
	ApplicableBrands     datatypes.JSONSlice[string] `json:"applicable_brands"`
	ApplicableUsers      datatypes.JSONSlice[string] `json:"applicable_users"`
	ExcludedProducts     datatypes.JSONSlice[string] `json:"excluded_products"`
	ExcludedUsers        datatypes.JSONSlice[string] `json:"excluded_users"`

	IsActive   bool       `gorm:"default:true" json:"is_active"`
	IsPublic   bool       `json:"is_public"`
	CouponType CouponType `gorm:"type:VARCHAR(20);default:'general'" json:"coupon_type"`
	AutoApply  bool       `json:"auto_apply"`

	Stats  CouponStats   `gorm:"embedded;embeddedPrefix:stats_" json:"stats"`
	Usages []CouponUsage `gorm:"foreignKey:CouponID;constraint:OnDelete:CASCADE" json:"usage_history,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CouponUsage is one redemption record. Rows are append-only.
type CouponUsage struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CouponID       uint      `gorm:"index;not null" json:"coupon_id"`
	UserID         string    `gorm:"index" json:"user_id"`
	OrderID        uint      `json:"order_id"`
	OrderAmount    float64   `json:"order_amount"`
	DiscountAmount float64   `json:"discount_amount"`
	UsedAt         time.Time `json:"used_at"`
}

// CanUse checks eligibility without mutating anything. Checks run in a fixed
// order and the first failure wins. Per-user counts are derived from Usages,
// so the coupon must be loaded with its usage rows when userID is given.
func (c *Coupon) CanUse(userID string, orderAmount float64) (bool, string) {
	now := time.Now()

	if !c.IsActive {
		return false, ReasonInactive
	}
	if now.After(c.EndDate) {
		return false, ReasonExpired
	}
	if now.Before(c.StartDate) {
		return false, ReasonNotStarted
	}
	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return false, ReasonUsageLimit
	}
	if orderAmount < c.MinOrderAmount {
		return false, fmt.Sprintf(minOrderReasonTemplate, c.MinOrderAmount)
	}

	if userID != "" {
		if contains(c.ExcludedUsers, userID) {
			return false, ReasonNotEligible
		}
		if len(c.ApplicableUsers) > 0 && !contains(c.ApplicableUsers, userID) {
			return false, ReasonNotEligible
		}
		if c.UsageLimitPerUser > 0 && c.UserUsageCount(userID) >= c.UsageLimitPerUser {
			return false, ReasonPerUserLimit
		}
	}

	return true, ""
}

// CalculateDiscount computes the discount for an order amount. Percentage
// discounts are capped at MaxDiscountAmount and rounded to 2 decimals (half
// away from zero); fixed discounts never exceed the order amount.
func (c *Coupon) CalculateDiscount(orderAmount float64) float64 {
	amount := decimal.NewFromFloat(orderAmount)

	switch c.Type {
	case DiscountPercentage:
		d := amount.Mul(decimal.NewFromFloat(c.Value)).Div(decimal.NewFromInt(100))
		if c.MaxDiscountAmount > 0 {
			max := decimal.NewFromFloat(c.MaxDiscountAmount)
			if d.GreaterThan(max) {
				d = max
			}
		}
		f, _ := d.Round(2).Float64()
		return f
	case DiscountFixed:
		d := decimal.NewFromFloat(c.Value)
		if d.GreaterThan(amount) {
			d = amount
		}
		f, _ := d.Round(2).Float64()
		return f
	}
	return 0
}

// IsApplicableTo reports whether the coupon covers the given product, category
// and brand. Empty fields are skipped; an empty applicability list means the
// coupon applies to everything in that dimension.
func (c *Coupon) IsApplicableTo(productID, category, brand string) bool {
	if productID != "" {
		if contains(c.ExcludedProducts, productID) {
			return false
		}
		if len(c.ApplicableProducts) > 0 && !contains(c.ApplicableProducts, productID) {
			return false
		}
	}
	if category != "" && len(c.ApplicableCategories) > 0 && !contains(c.ApplicableCategories, category) {
		return false
	}
	if brand != "" && len(c.ApplicableBrands) > 0 && !contains(c.ApplicableBrands, brand) {
		return false
	}
	return true
}

// UserUsageCount counts redemptions by one user in the loaded usage history.
func (c *Coupon) UserUsageCount(userID string) int {
	n := 0
	for _, u := range c.Usages {
		if u.UserID == userID {
			n++
		}
	}
	return n
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
