package routes

import (
	"github.com/gin-gonic/gin"
	couponControllers "github.com/volkanaggunlu/ecommerce-api/controllers/coupon"
	"github.com/volkanaggunlu/ecommerce-api/middleware"
	"gorm.io/gorm"
)

func SetupCouponRoutes(r *gin.Engine, db *gorm.DB) {
	coupons := r.Group("/coupons")
	{
		coupons.GET("/public", couponControllers.GetPublicCoupons(db))
		coupons.GET("/auto", middleware.ValidateToken, couponControllers.AutoApplyHandler(db))
		coupons.POST("/validate", middleware.ValidateToken, couponControllers.ValidateCouponHandler(db))
		coupons.POST("/redeem", middleware.ValidateToken, couponControllers.RedeemCouponHandler(db))
	}
}
