package routes

import (
	"github.com/gin-gonic/gin"
	orderControllers "github.com/volkanaggunlu/ecommerce-api/controllers/order"
	"github.com/volkanaggunlu/ecommerce-api/middleware"
	"gorm.io/gorm"
)

func SetupOrderRoutes(r *gin.Engine, db *gorm.DB, deps *orderControllers.Collaborators) {
	orders := r.Group("/orders")
	{
		// websocket endpoint for real-time order updates
		orders.GET("/ws", orderControllers.OrderWebSocketHandler)

		// Fetch orders for a specific user
		orders.GET("/user/:userID", middleware.ValidateToken, orderControllers.GetUserOrdersHandler(db))
	}

	// Carrier status notifications
	r.POST("/webhooks/shipping", orderControllers.CarrierWebhookHandler(db))
}
