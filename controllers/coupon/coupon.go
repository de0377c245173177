package couponControllers

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/volkanaggunlu/ecommerce-api/models"
	"gorm.io/gorm"
)

var (
	ErrCouponNotFound = errors.New("coupon not found")

	// ErrCouponExhausted means the usage limit was hit at commit time, after
	// an earlier eligibility check had passed. Shown to the customer as
	// "coupon no longer available", never as a 500.
	ErrCouponExhausted = errors.New("coupon no longer available")
)

var couponCodeRe = regexp.MustCompile(`^[A-Z0-9]{3,20}$`)

// -------- Request Structs --------

type CreateCouponRequest struct {
	Code              string   `json:"code" binding:"required"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	Type              string   `json:"type" binding:"required"`
	Value             float64  `json:"value" binding:"required,gt=0"`
	MinOrderAmount    float64  `json:"min_order_amount"`
	MaxDiscountAmount float64  `json:"max_discount_amount"`
	UsageLimit        int      `json:"usage_limit"`
	UsageLimitPerUser int      `json:"usage_limit_per_user"`
	StartDate         string   `json:"start_date" binding:"required"` // RFC3339
	EndDate           string   `json:"end_date" binding:"required"`   // RFC3339
	Products          []string `json:"applicable_products"`
	Categories        []string `json:"applicable_categories"`
	Brands            []string `json:"applicable_brands"`
	Users             []string `json:"applicable_users"`
	ExcludedProducts  []string `json:"excluded_products"`
	ExcludedUsers     []string `json:"excluded_users"`
	IsPublic          bool     `json:"is_public"`
	CouponType        string   `json:"coupon_type"`
	AutoApply         bool     `json:"auto_apply"`
}

type ValidateCouponRequest struct {
	Code        string  `json:"code" binding:"required"`
	UserID      string  `json:"user_id"`
	OrderAmount float64 `json:"order_amount" binding:"required"`
}

type RedeemCouponRequest struct {
	Code        string  `json:"code" binding:"required"`
	UserID      string  `json:"user_id" binding:"required"`
	OrderID     uint    `json:"order_id" binding:"required"`
	OrderAmount float64 `json:"order_amount" binding:"required"`
}

// -------- Core Logic --------

// GetCouponByCode loads a coupon with its usage history.
func GetCouponByCode(db *gorm.DB, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	err := db.Preload("Usages").Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).First(&coupon).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCouponNotFound
		}
		return nil, err
	}
	return &coupon, nil
}

// ValidateCoupon runs the read-only eligibility check and returns the
// discount the coupon would yield. No state is mutated.
func ValidateCoupon(db *gorm.DB, code, userID string, orderAmount float64) (bool, string, float64, error) {
	coupon, err := GetCouponByCode(db, code)
	if err != nil {
		return false, "", 0, err
	}
	ok, reason := coupon.CanUse(userID, orderAmount)
	if !ok {
		return false, reason, 0, nil
	}
	return true, "", coupon.CalculateDiscount(orderAmount), nil
}

// RecordUse redeems a coupon for a confirmed order. The usage-limit check and
// the counter increment are a single conditional UPDATE, so two orders racing
// past an earlier eligibility check cannot push used_count over the limit.
// Callers must have confirmed eligibility already; this only re-enforces the
// global limit.
func RecordUse(db *gorm.DB, code, userID string, orderID uint, orderAmount float64) (float64, error) {
	var discount float64

	err := db.Transaction(func(tx *gorm.DB) error {
		var coupon models.Coupon
		if err := tx.Where("code = ?", strings.ToUpper(strings.TrimSpace(code))).First(&coupon).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCouponNotFound
			}
			return err
		}

		discount = coupon.CalculateDiscount(orderAmount)

		// Reserve a use: check and increment as one statement.
		res := tx.Model(&models.Coupon{}).
			Where("id = ? AND (usage_limit = 0 OR used_count < usage_limit)", coupon.ID).
			UpdateColumn("used_count", gorm.Expr("used_count + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCouponExhausted
		}

		var prior int64
		if err := tx.Model(&models.CouponUsage{}).
			Where("coupon_id = ? AND user_id = ?", coupon.ID, userID).
			Count(&prior).Error; err != nil {
			return err
		}

		updates := map[string]interface{}{
			"stats_total_uses":        gorm.Expr("stats_total_uses + 1"),
			"stats_total_discount":    gorm.Expr("stats_total_discount + ?", discount),
			"stats_total_order_value": gorm.Expr("stats_total_order_value + ?", orderAmount),
		}
		if prior == 0 {
			updates["stats_unique_users"] = gorm.Expr("stats_unique_users + 1")
		}
		if err := tx.Model(&models.Coupon{}).Where("id = ?", coupon.ID).Updates(updates).Error; err != nil {
			return err
		}

		usage := models.CouponUsage{
			CouponID:       coupon.ID,
			UserID:         userID,
			OrderID:        orderID,
			OrderAmount:    orderAmount,
			DiscountAmount: discount,
			UsedAt:         time.Now(),
		}
		return tx.Create(&usage).Error
	})

	return discount, err
}

// AutoApplyCoupon picks the best auto-apply coupon for a checkout, by highest
// discount. Returns nil when none is eligible.
func AutoApplyCoupon(db *gorm.DB, userID string, orderAmount float64) (*models.Coupon, float64, error) {
	var coupons []models.Coupon
	if err := db.Preload("Usages").
		Where("auto_apply = ? AND is_active = ?", true, true).
		Find(&coupons).Error; err != nil {
		return nil, 0, err
	}

	var best *models.Coupon
	bestDiscount := 0.0
	for i := range coupons {
		if ok, _ := coupons[i].CanUse(userID, orderAmount); !ok {
			continue
		}
		if d := coupons[i].CalculateDiscount(orderAmount); d > bestDiscount {
			best = &coupons[i]
			bestDiscount = d
		}
	}
	return best, bestDiscount, nil
}

// -------- Handlers --------

// POST /admin/coupons
func CreateCoupon(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateCouponRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		code := strings.ToUpper(strings.TrimSpace(req.Code))
		if !couponCodeRe.MatchString(code) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "code must be 3-20 uppercase letters or digits"})
			return
		}

		dt := models.DiscountType(req.Type)
		if dt != models.DiscountPercentage && dt != models.DiscountFixed {
			c.JSON(http.StatusBadRequest, gin.H{"error": "type must be percentage or fixed"})
			return
		}

		start, err := time.Parse(time.RFC3339, req.StartDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start_date; use RFC3339"})
			return
		}
		end, err := time.Parse(time.RFC3339, req.EndDate)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end_date; use RFC3339"})
			return
		}
		if !end.After(start) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be after start_date"})
			return
		}

		couponType := models.CouponType(req.CouponType)
		if couponType == "" {
			couponType = models.CouponGeneral
		}

		coupon := models.Coupon{
			Code:                 code,
			Name:                 req.Name,
			Description:          req.Description,
			Type:                 dt,
			Value:                req.Value,
			MinOrderAmount:       req.MinOrderAmount,
			MaxDiscountAmount:    req.MaxDiscountAmount,
			UsageLimit:           req.UsageLimit,
			UsageLimitPerUser:    req.UsageLimitPerUser,
			StartDate:            start,
			EndDate:              end,
			ApplicableProducts:   req.Products,
			ApplicableCategories: req.Categories,
			ApplicableBrands:     req.Brands,
			ApplicableUsers:      req.Users,
			ExcludedProducts:     req.ExcludedProducts,
			ExcludedUsers:        req.ExcludedUsers,
			IsActive:             true,
			IsPublic:             req.IsPublic,
			CouponType:           couponType,
			AutoApply:            req.AutoApply,
			CreatedBy:            c.GetString("user_id"),
		}

		if err := db.Create(&coupon).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create coupon"})
			return
		}
		c.JSON(http.StatusCreated, coupon)
	}
}

// GET /admin/coupons
func GetAllCoupons(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var coupons []models.Coupon
		if err := db.Order("created_at DESC").Find(&coupons).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch coupons"})
			return
		}
		c.JSON(http.StatusOK, coupons)
	}
}

// GET /admin/coupons/:code
func GetCoupon(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		coupon, err := GetCouponByCode(db, c.Param("code"))
		if err != nil {
			if errors.Is(err, ErrCouponNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "coupon not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch coupon"})
			return
		}
		c.JSON(http.StatusOK, coupon)
	}
}

// DELETE /admin/coupons/:code
// Coupons are never physically removed; this soft-disables them.
func DisableCoupon(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		code := strings.ToUpper(strings.TrimSpace(c.Param("code")))
		res := db.Model(&models.Coupon{}).Where("code = ?", code).Update("is_active", false)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to disable coupon"})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "coupon not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Coupon disabled"})
	}
}

// GET /coupons/public: active public coupons only
func GetPublicCoupons(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var coupons []models.Coupon
		now := time.Now()
		if err := db.
			Where("is_public = ? AND is_active = ? AND start_date <= ? AND end_date > ?", true, true, now, now).
			Find(&coupons).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch coupons"})
			return
		}
		c.JSON(http.StatusOK, coupons)
	}
}

// POST /coupons/validate
func ValidateCouponHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ValidateCouponRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		valid, reason, discount, err := ValidateCoupon(db, req.Code, req.UserID, req.OrderAmount)
		if err != nil {
			if errors.Is(err, ErrCouponNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"valid": false, "reason": "coupon not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to validate coupon"})
			return
		}
		if !valid {
			c.JSON(http.StatusOK, gin.H{"valid": false, "reason": reason})
			return
		}
		c.JSON(http.StatusOK, gin.H{"valid": true, "discount": discount})
	}
}

// GET /coupons/auto: best auto-apply coupon for the current checkout amount
func AutoApplyHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderAmount, err := strconv.ParseFloat(c.Query("order_amount"), 64)
		if err != nil || orderAmount <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "order_amount is required"})
			return
		}

		best, discount, err := AutoApplyCoupon(db, c.GetString("user_id"), orderAmount)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to find coupon"})
			return
		}
		if best == nil {
			c.JSON(http.StatusOK, gin.H{"coupon": nil, "discount": 0})
			return
		}
		c.JSON(http.StatusOK, gin.H{"coupon": best.Code, "discount": discount})
	}
}

// POST /coupons/redeem: finalize a use for a confirmed order
func RedeemCouponHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RedeemCouponRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		discount, err := RecordUse(db, req.Code, req.UserID, req.OrderID, req.OrderAmount)
		if err != nil {
			switch {
			case errors.Is(err, ErrCouponNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "coupon not found"})
			case errors.Is(err, ErrCouponExhausted):
				c.JSON(http.StatusConflict, gin.H{"error": ErrCouponExhausted.Error()})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to redeem coupon"})
			}
			return
		}
		c.JSON(http.StatusOK, gin.H{"discount": discount})
	}
}
