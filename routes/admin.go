package routes

import (
	"github.com/gin-gonic/gin"
	couponControllers "github.com/volkanaggunlu/ecommerce-api/controllers/coupon"
	orderControllers "github.com/volkanaggunlu/ecommerce-api/controllers/order"
	productControllers "github.com/volkanaggunlu/ecommerce-api/controllers/product"
	userControllers "github.com/volkanaggunlu/ecommerce-api/controllers/user"
	"github.com/volkanaggunlu/ecommerce-api/middleware"
	"gorm.io/gorm"
)

// SetupAdminRoutes registers all "/admin/*" endpoints. Requires API key middleware.
func SetupAdminRoutes(r *gin.Engine, db *gorm.DB, deps *orderControllers.Collaborators) {
	adminGroup := r.Group("/admin")
	adminGroup.Use(middleware.ValidateAPIKey)
	{
		adminGroup.GET("/users", userControllers.GetAllUsers(db))

		productAdmin := adminGroup.Group("/products")
		{
			productAdmin.POST("", productControllers.CreateProduct(db))
			productAdmin.GET("", productControllers.GetProducts(db))
			productAdmin.PUT("/:id", productControllers.UpdateProduct(db))
			productAdmin.DELETE("/:id", productControllers.DeleteProduct(db))
		}

		categoryAdmin := adminGroup.Group("/categories")
		{
			categoryAdmin.POST("", productControllers.CreateCategory(db))
			categoryAdmin.GET("", productControllers.GetCategories(db))
			categoryAdmin.DELETE("/:id", productControllers.DeleteCategory(db))
		}

		couponAdmin := adminGroup.Group("/coupons")
		{
			couponAdmin.POST("", couponControllers.CreateCoupon(db))
			couponAdmin.GET("", couponControllers.GetAllCoupons(db))
			couponAdmin.GET("/:code", couponControllers.GetCoupon(db))
			couponAdmin.DELETE("/:code", couponControllers.DisableCoupon(db))
		}

		orderAdmin := adminGroup.Group("/orders")
		{
			orderAdmin.GET("", orderControllers.GetAllOrdersHandler(db))
			orderAdmin.GET("/export-excel", orderControllers.ExportOrdersToExcel(db))
			orderAdmin.GET("/:orderID", orderControllers.GetOrderByIDHandler(db))
			orderAdmin.PUT("/:orderID/status", orderControllers.UpdateOrderStatusHandler(db, deps))
			orderAdmin.POST("/:orderID/retry-export", orderControllers.RetryExportHandler(db, deps))
		}
	}
}
