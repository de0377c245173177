package routes

import (
	"github.com/gin-gonic/gin"
	orderControllers "github.com/volkanaggunlu/ecommerce-api/controllers/order"
	paytrControllers "github.com/volkanaggunlu/ecommerce-api/controllers/paytr"
	"github.com/volkanaggunlu/ecommerce-api/middleware"
	"gorm.io/gorm"
)

func SetupPayTRRoutes(r *gin.Engine, db *gorm.DB, deps *orderControllers.Collaborators) {
	payment := r.Group("/payment")
	{
		// Payment creation endpoint
		payment.POST("/place", middleware.ValidateToken, paytrControllers.PaymentRequestHandler(db))

		// Notification endpoint: middleware verifies the PayTR hash
		payment.POST("/callback",
			paytrControllers.CallbackAuth(),
			paytrControllers.CallbackHandler(db, deps),
		)
	}
}
