package routes

import (
	"github.com/gin-gonic/gin"
	orderControllers "github.com/volkanaggunlu/ecommerce-api/controllers/order"
	"gorm.io/gorm"
)

// SetupRoutes is the single entry point that wires up all route groups.
func SetupRoutes(r *gin.Engine, db *gorm.DB, deps *orderControllers.Collaborators) {
	// Public auth routes (no middleware)
	SetupAuthRoutes(r, db)

	// User routes (JWT protected)
	SetupUserRoutes(r, db)

	// Admin routes (API key protected)
	SetupAdminRoutes(r, db, deps)

	// Public coupon routes
	SetupCouponRoutes(r, db)

	// Order routes
	SetupOrderRoutes(r, db, deps)

	// PayTR payment routes
	SetupPayTRRoutes(r, db, deps)
}
