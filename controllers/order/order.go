package orderControllers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	couponControllers "github.com/volkanaggunlu/ecommerce-api/controllers/coupon"
	"github.com/volkanaggunlu/ecommerce-api/klaviyo"
	"github.com/volkanaggunlu/ecommerce-api/models"
	"github.com/volkanaggunlu/ecommerce-api/stockmount"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// -------- Collaborators --------

// CarrierClient creates shipments at the carrier and returns a tracking code.
type CarrierClient interface {
	CreateShipment(ctx context.Context, order *models.Order) (string, error)
}

// MarketingClient receives order events for campaign automation.
type MarketingClient interface {
	TrackOrderPlaced(ctx context.Context, ev klaviyo.OrderPlacedEvent) error
	TrackProductOrdered(ctx context.Context, ev klaviyo.ProductOrderedEvent) error
}

// MailSender delivers transactional order mails.
type MailSender interface {
	SendOrderConfirmation(order *models.Order) error
}

// Collaborators bundles the external integrations the order flow talks to.
// Any nil field is simply skipped, which keeps tests and partial deployments
// simple.
type Collaborators struct {
	Fulfillment    stockmount.Submitter
	FulfillmentCfg stockmount.ExportConfig
	Carrier        CarrierClient
	Marketing      MarketingClient
	Mail           MailSender
}

// -------- Request Structs --------

type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// -------- Helpers --------

func mapOrderStatus(status string) (models.OrderStatus, error) {
	switch status {
	case string(models.OrderStatusPending):
		return models.OrderStatusPending, nil
	case string(models.OrderStatusPaid):
		return models.OrderStatusPaid, nil
	case string(models.OrderStatusInShipment):
		return models.OrderStatusInShipment, nil
	case string(models.OrderStatusDelivered):
		return models.OrderStatusDelivered, nil
	case string(models.OrderStatusCancelled):
		return models.OrderStatusCancelled, nil
	default:
		return "", errors.New("invalid order status")
	}
}

// allowedTransitions is the order lifecycle: linear towards delivered, with
// cancellation possible until shipment.
var allowedTransitions = map[models.OrderStatus][]models.OrderStatus{
	models.OrderStatusPending:    {models.OrderStatusPaid, models.OrderStatusCancelled},
	models.OrderStatusPaid:       {models.OrderStatusInShipment, models.OrderStatusCancelled},
	models.OrderStatusInShipment: {models.OrderStatusDelivered},
}

func transitionAllowed(from, to models.OrderStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func generateMerchantOID(orderID uint) string {
	return fmt.Sprintf("ORDER_%d_%d", orderID, time.Now().Unix())
}

type shippingConfig struct {
	Cost          float64
	FreeThreshold float64
}

func loadShippingConfig() shippingConfig {
	cost, _ := strconv.ParseFloat(os.Getenv("SHIPPING_COST"), 64)
	threshold, _ := strconv.ParseFloat(os.Getenv("FREE_SHIPPING_THRESHOLD"), 64)
	return shippingConfig{Cost: cost, FreeThreshold: threshold}
}

// lockForUpdate takes a row lock on databases that support it. SQLite has no
// row locks and rejects FOR UPDATE; its writes are serialized anyway.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func effectivePrice(item models.CartItem) float64 {
	if item.DiscountedPrice != nil {
		return *item.DiscountedPrice
	}
	return item.Price
}

// -------- Core Logic --------

// PlaceOrder creates a pending order from the user's cart: stock is checked
// and deducted under row locks, the coupon (explicit or auto-applied) is
// evaluated read-only, and the payable amount is fixed in minor currency
// units. The coupon use is recorded later, when payment is confirmed.
func PlaceOrder(db *gorm.DB, userID, couponCode string) (*models.Order, error) {
	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		return nil, errors.New("user not found")
	}

	var cart models.Cart
	if err := db.Preload("Items.SubItems").Where("user_id = ?", userID).First(&cart).Error; err != nil {
		return nil, errors.New("cart not found")
	}
	if len(cart.Items) == 0 {
		return nil, errors.New("cart is empty")
	}

	var order models.Order
	err := db.Transaction(func(tx *gorm.DB) error {
		total := decimal.Zero
		var orderItems []models.OrderItem

		for _, item := range cart.Items {
			var product models.Product
			if err := lockForUpdate(tx).
				First(&product, "id = ?", item.ProductID).Error; err != nil {
				return fmt.Errorf("product %d no longer available", item.ProductID)
			}
			if product.Stock < item.Quantity {
				return errors.New("insufficient stock for product: " + item.Name)
			}

			product.Stock -= item.Quantity
			if err := tx.Save(&product).Error; err != nil {
				return err
			}

			price := effectivePrice(item)
			total = total.Add(decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(item.Quantity))))

			oi := models.OrderItem{
				ProductID:       item.ProductID,
				Name:            item.Name,
				StockMountID:    item.StockMountID,
				TaxRate:         item.TaxRate,
				Price:           item.Price,
				DiscountedPrice: item.DiscountedPrice,
				Quantity:        item.Quantity,
				IsBundle:        item.IsBundle,
				IsSubVariant:    item.IsSubVariant,
			}
			for _, sub := range item.SubItems {
				oi.SubItems = append(oi.SubItems, models.OrderSubItem{
					ProductID:    sub.ProductID,
					Name:         sub.Name,
					StockMountID: sub.StockMountID,
					TaxRate:      sub.TaxRate,
					Price:        sub.Price,
					Quantity:     sub.Quantity,
				})
			}
			orderItems = append(orderItems, oi)
		}

		totalAmount, _ := total.Round(2).Float64()

		// Coupon is evaluated here but redeemed only on payment success.
		discount := 0.0
		appliedCode := ""
		if couponCode != "" {
			valid, reason, d, err := couponControllers.ValidateCoupon(tx, couponCode, userID, totalAmount)
			if err != nil {
				return err
			}
			if !valid {
				return errors.New(reason)
			}
			discount = d
			appliedCode = strings.ToUpper(strings.TrimSpace(couponCode))
		} else {
			if best, d, err := couponControllers.AutoApplyCoupon(tx, userID, totalAmount); err == nil && best != nil {
				discount = d
				appliedCode = best.Code
			}
		}

		shipping := loadShippingConfig()
		payable := total.Sub(decimal.NewFromFloat(discount))
		freeShipping := shipping.FreeThreshold > 0 && payable.GreaterThanOrEqual(decimal.NewFromFloat(shipping.FreeThreshold))
		shippingCost := 0.0
		if !freeShipping {
			shippingCost = shipping.Cost
			payable = payable.Add(decimal.NewFromFloat(shippingCost))
		}

		order = models.Order{
			UserID:         userID,
			Items:          orderItems,
			PaymentAmount:  payable.Mul(decimal.NewFromInt(100)).Round(0).IntPart(),
			TotalAmount:    totalAmount,
			ShippingCost:   shippingCost,
			DiscountAmount: discount,
			CouponCode:     appliedCode,
			Status:         models.OrderStatusPending,
			FreeShipping:   freeShipping,
			Name:           user.Name,
			Email:          user.Email,
			Phone:          user.Phone,
			Shipping:       user.Address,
			Billing:        user.Address,
			CreatedAt:      time.Now(),
		}
		if err := tx.Create(&order).Error; err != nil {
			return err
		}

		order.MerchantOID = generateMerchantOID(order.ID)
		return tx.Model(&models.Order{}).Where("id = ?", order.ID).
			Update("merchant_oid", order.MerchantOID).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FinalizePaidOrder applies the effects of a confirmed payment. The
// pending->paid transition is one conditional UPDATE, so a redelivered
// callback finds no pending row and none of the side effects run twice.
func FinalizePaidOrder(db *gorm.DB, deps *Collaborators, merchantOID string, capturedAmount int64) error {
	var order models.Order
	if err := db.Where("merchant_oid = ?", merchantOID).First(&order).Error; err != nil {
		return fmt.Errorf("order %s not found", merchantOID)
	}

	res := db.Model(&models.Order{}).
		Where("merchant_oid = ? AND status = ?", merchantOID, models.OrderStatusPending).
		Updates(map[string]interface{}{
			"status":         models.OrderStatusPaid,
			"payment_amount": capturedAmount,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil // already processed
	}

	if err := db.Preload("Items.SubItems").Where("merchant_oid = ?", merchantOID).First(&order).Error; err != nil {
		return err
	}

	if order.CouponCode != "" {
		_, err := couponControllers.RecordUse(db, order.CouponCode, order.UserID, order.ID, order.TotalAmount)
		if err != nil {
			// The payment is already captured; an exhausted coupon here is an
			// accepted race, surfaced to operators instead of the customer.
			log.Printf("order %s: record coupon %s use: %v", merchantOID, order.CouponCode, err)
		}
	}

	if err := db.Where("cart_id = (SELECT cart_id FROM carts WHERE user_id = ?)", order.UserID).
		Delete(&models.CartItem{}).Error; err != nil {
		log.Printf("order %s: clear cart: %v", merchantOID, err)
	}

	broadcastOrderUpdate(&order)

	if deps != nil {
		runPaidSideEffects(db, deps, &order)
	}
	return nil
}

// runPaidSideEffects fires the collaborator calls for a freshly paid order.
// All of them are best-effort: failures are logged for retry and never roll
// back the local order state.
func runPaidSideEffects(db *gorm.DB, deps *Collaborators, order *models.Order) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if deps.Marketing != nil {
		ev := klaviyo.OrderPlacedEvent{
			OrderID:      order.MerchantOID,
			Email:        order.Email,
			Value:        float64(order.PaymentAmount) / 100,
			DiscountCode: order.CouponCode,
			ItemCount:    len(order.Items),
			Time:         time.Now(),
		}
		if err := deps.Marketing.TrackOrderPlaced(ctx, ev); err != nil {
			log.Printf("order %s: klaviyo order placed: %v", order.MerchantOID, err)
		}
		for _, item := range order.Items {
			pe := klaviyo.ProductOrderedEvent{
				OrderID:     order.MerchantOID,
				Email:       order.Email,
				ProductName: item.Name,
				SKU:         item.StockMountID,
				Quantity:    item.Quantity,
				Price:       item.Price,
				Time:        time.Now(),
			}
			if err := deps.Marketing.TrackProductOrdered(ctx, pe); err != nil {
				log.Printf("order %s: klaviyo product ordered: %v", order.MerchantOID, err)
			}
		}
	}

	if deps.Mail != nil {
		// The email flag is claimed atomically so a concurrent finalize
		// cannot send the confirmation twice.
		res := db.Model(&models.Order{}).
			Where("id = ? AND email_sent = ?", order.ID, false).
			Update("email_sent", true)
		if res.Error == nil && res.RowsAffected == 1 {
			if err := deps.Mail.SendOrderConfirmation(order); err != nil {
				log.Printf("order %s: confirmation mail: %v", order.MerchantOID, err)
				db.Model(&models.Order{}).Where("id = ?", order.ID).Update("email_sent", false)
			}
		}
	}

	if deps.Fulfillment != nil {
		if err := stockmount.ExportOrderToStockMount(ctx, db, deps.Fulfillment, order, deps.FulfillmentCfg); err != nil {
			// Transient failures leave the sent flag unset for a later retry.
			log.Printf("order %s: stockmount export: %v", order.MerchantOID, err)
		}
	}
}

// CancelPendingOrder cancels an order whose payment failed and returns the
// reserved stock. A no-op when the order already left pending.
func CancelPendingOrder(db *gorm.DB, merchantOID string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).
			Where("merchant_oid = ? AND status = ?", merchantOID, models.OrderStatusPending).
			Update("status", models.OrderStatusCancelled)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var order models.Order
		if err := tx.Preload("Items").Where("merchant_oid = ?", merchantOID).First(&order).Error; err != nil {
			return err
		}
		for _, item := range order.Items {
			if err := tx.Model(&models.Product{}).Where("id = ?", item.ProductID).
				UpdateColumn("stock", gorm.Expr("stock + ?", item.Quantity)).Error; err != nil {
				return err
			}
		}
		broadcastOrderUpdate(&order)
		return nil
	})
}

// -------- Handlers --------

// GET /orders (admin)
func GetAllOrdersHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var orders []models.Order
		if err := db.
			Preload("Items.SubItems").
			Order("created_at DESC").
			Find(&orders).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, orders)
	}
}

// GET /orders/user/:userID
func GetUserOrdersHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userID")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "userID is required"})
			return
		}
		var orders []models.Order
		if err := db.
			Where("user_id = ?", userID).
			Preload("Items.SubItems").
			Order("created_at DESC").
			Find(&orders).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, orders)
	}
}

// GET /orders/:orderID: accepts the numeric id or the merchant oid
func GetOrderByIDHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("orderID")
		if id == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "orderID is required"})
			return
		}

		var order models.Order
		if err := db.
			Preload("Items.SubItems").
			Where("id = ? OR merchant_oid = ?", id, id).
			First(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

// PUT /admin/orders/:orderID/status
func UpdateOrderStatusHandler(db *gorm.DB, deps *Collaborators) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("orderID")
		var req UpdateOrderStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		newStatus, err := mapOrderStatus(req.Status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var order models.Order
		if err := db.Preload("Items").First(&order, "id = ?", orderID).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}
		if !transitionAllowed(order.Status, newStatus) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("cannot move order from %s to %s", order.Status, newStatus),
			})
			return
		}

		updates := map[string]interface{}{"status": newStatus}

		if newStatus == models.OrderStatusInShipment && deps != nil && deps.Carrier != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 20*time.Second)
			defer cancel()
			code, err := deps.Carrier.CreateShipment(ctx, &order)
			if err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": "failed to create shipment: " + err.Error()})
				return
			}
			updates["shipment_code"] = code
		}

		if err := db.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update order status"})
			return
		}

		order.Status = newStatus
		broadcastOrderUpdate(&order)
		c.JSON(http.StatusOK, gin.H{"message": "Order status updated successfully"})
	}
}

// POST /admin/orders/:orderID/retry-export: operator retry for fulfillment export
func RetryExportHandler(db *gorm.DB, deps *Collaborators) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps == nil || deps.Fulfillment == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "fulfillment not configured"})
			return
		}

		var order models.Order
		if err := db.Preload("Items.SubItems").First(&order, "id = ?", c.Param("orderID")).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		if err := stockmount.ExportOrderToStockMount(ctx, db, deps.Fulfillment, &order, deps.FulfillmentCfg); err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, stockmount.ErrRejected) {
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Order exported", "sent": order.SentToStockMount})
	}
}

// POST /webhooks/shipping: carrier status notifications
func CarrierWebhookHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input struct {
			ShipmentCode string `json:"shipment_code" binding:"required"`
			Status       string `json:"status" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		var newStatus models.OrderStatus
		switch strings.ToUpper(input.Status) {
		case "ON_THE_WAY", "IN_TRANSIT":
			newStatus = models.OrderStatusInShipment
		case "DELIVERED":
			newStatus = models.OrderStatusDelivered
		default:
			c.JSON(http.StatusOK, gin.H{"message": "status ignored"})
			return
		}

		var order models.Order
		if err := db.Where("shipment_code = ?", input.ShipmentCode).First(&order).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "shipment not found"})
			return
		}
		if !transitionAllowed(order.Status, newStatus) {
			c.JSON(http.StatusOK, gin.H{"message": "transition ignored"})
			return
		}

		if err := db.Model(&models.Order{}).Where("id = ?", order.ID).
			Update("status", newStatus).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update order"})
			return
		}
		order.Status = newStatus
		broadcastOrderUpdate(&order)
		c.JSON(http.StatusOK, gin.H{"message": "Order updated"})
	}
}
