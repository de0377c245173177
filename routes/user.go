package routes

import (
	"github.com/gin-gonic/gin"
	cartControllers "github.com/volkanaggunlu/ecommerce-api/controllers/cart"
	productControllers "github.com/volkanaggunlu/ecommerce-api/controllers/product"
	userControllers "github.com/volkanaggunlu/ecommerce-api/controllers/user"
	"github.com/volkanaggunlu/ecommerce-api/middleware"
	"gorm.io/gorm"
)

// SetupUserRoutes registers all "/user/*" endpoints plus public catalog
// browsing. User endpoints require the JWT middleware.
func SetupUserRoutes(r *gin.Engine, db *gorm.DB) {
	// Public catalog
	r.GET("/products", productControllers.GetProducts(db))
	r.GET("/products/:id", productControllers.GetProductByID(db))
	r.GET("/categories", productControllers.GetCategories(db))

	userGroup := r.Group("/user")
	userGroup.Use(middleware.ValidateToken)
	{
		userGroup.GET("/me", userControllers.GetUser(db))
		userGroup.PUT("/me", userControllers.UpdateUser(db))

		cart := userGroup.Group("/cart")
		{
			cart.GET("", cartControllers.GetUserCart(db))
			cart.PUT("/items", cartControllers.UpdateCartItem(db))
			cart.DELETE("/items/:product_id", cartControllers.DeleteCartItem(db))
			cart.DELETE("", cartControllers.ClearUserCart(db))
		}
	}
}
