package orderControllers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/volkanaggunlu/ecommerce-api/models"
	"github.com/volkanaggunlu/ecommerce-api/stockmount"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Cart{},
		&models.CartItem{},
		&models.CartSubItem{},
		&models.Order{},
		&models.OrderItem{},
		&models.OrderSubItem{},
		&models.Coupon{},
		&models.CouponUsage{},
	); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}
	return db
}

func seedUserWithCart(t *testing.T, db *gorm.DB, items ...models.CartItem) models.User {
	user := models.User{
		ID:    "user-1",
		Email: "musteri@example.com",
		Name:  "Ayşe Yılmaz",
		Phone: "+905551112233",
		Address: models.Address{
			Country: "Türkiye", City: "İstanbul", District: "Kadıköy", Street: "Çiçek Sok. 5",
		},
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	cart := models.Cart{UserID: user.ID, Items: items}
	if err := db.Create(&cart).Error; err != nil {
		t.Fatalf("Failed to create cart: %v", err)
	}
	return user
}

func seedProduct(t *testing.T, db *gorm.DB, p models.Product) models.Product {
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("Failed to create product: %v", err)
	}
	return p
}

func TestPlaceOrderTotalsAndStock(t *testing.T) {
	t.Setenv("SHIPPING_COST", "49.90")
	t.Setenv("FREE_SHIPPING_THRESHOLD", "")
	db := setupTestDB(t)

	p := seedProduct(t, db, models.Product{Name: "Mug", Price: 100, Stock: 5, TaxRate: 20})
	seedUserWithCart(t, db, models.CartItem{
		ProductID: p.ID, Name: "Mug", Price: 100, Quantity: 2, TaxRate: 20,
	})

	order, err := PlaceOrder(db, "user-1", "")
	assert.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, 200.0, order.TotalAmount)
	assert.Equal(t, 49.90, order.ShippingCost)
	assert.False(t, order.FreeShipping)
	assert.Equal(t, int64(24990), order.PaymentAmount)
	assert.NotEmpty(t, order.MerchantOID)
	assert.Contains(t, order.MerchantOID, "ORDER_")

	// Stock reserved at placement.
	var reloaded models.Product
	assert.NoError(t, db.First(&reloaded, p.ID).Error)
	assert.Equal(t, 3, reloaded.Stock)
}

func TestPlaceOrderFreeShippingThreshold(t *testing.T) {
	t.Setenv("SHIPPING_COST", "49.90")
	t.Setenv("FREE_SHIPPING_THRESHOLD", "150")
	db := setupTestDB(t)

	p := seedProduct(t, db, models.Product{Name: "Jacket", Price: 200, Stock: 1})
	seedUserWithCart(t, db, models.CartItem{
		ProductID: p.ID, Name: "Jacket", Price: 200, Quantity: 1,
	})

	order, err := PlaceOrder(db, "user-1", "")
	assert.NoError(t, err)
	assert.True(t, order.FreeShipping)
	assert.Equal(t, 0.0, order.ShippingCost)
	assert.Equal(t, int64(20000), order.PaymentAmount)
}

func TestPlaceOrderWithCoupon(t *testing.T) {
	t.Setenv("SHIPPING_COST", "0")
	t.Setenv("FREE_SHIPPING_THRESHOLD", "")
	db := setupTestDB(t)

	p := seedProduct(t, db, models.Product{Name: "Mug", Price: 100, Stock: 5})
	seedUserWithCart(t, db, models.CartItem{
		ProductID: p.ID, Name: "Mug", Price: 100, Quantity: 2,
	})
	coupon := models.Coupon{
		Code: "SAVE20", Type: models.DiscountPercentage, Value: 20,
		StartDate: time.Now().Add(-time.Hour), EndDate: time.Now().Add(time.Hour),
		IsActive: true,
	}
	assert.NoError(t, db.Create(&coupon).Error)

	order, err := PlaceOrder(db, "user-1", "save20")
	assert.NoError(t, err)
	assert.Equal(t, "SAVE20", order.CouponCode)
	assert.Equal(t, 40.0, order.DiscountAmount)
	assert.Equal(t, int64(16000), order.PaymentAmount)

	// Placement only evaluates the coupon; it is redeemed on payment.
	var reloadedCoupon models.Coupon
	assert.NoError(t, db.First(&reloadedCoupon, coupon.ID).Error)
	assert.Equal(t, 0, reloadedCoupon.UsedCount)
}

func TestPlaceOrderRejectsIneligibleCoupon(t *testing.T) {
	t.Setenv("SHIPPING_COST", "0")
	db := setupTestDB(t)

	p := seedProduct(t, db, models.Product{Name: "Mug", Price: 100, Stock: 5})
	seedUserWithCart(t, db, models.CartItem{
		ProductID: p.ID, Name: "Mug", Price: 100, Quantity: 1,
	})
	coupon := models.Coupon{
		Code: "BIG", Type: models.DiscountFixed, Value: 10, MinOrderAmount: 500,
		StartDate: time.Now().Add(-time.Hour), EndDate: time.Now().Add(time.Hour),
		IsActive: true,
	}
	assert.NoError(t, db.Create(&coupon).Error)

	_, err := PlaceOrder(db, "user-1", "BIG")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "minimum order amount")

	// The failed placement must not leak the stock reservation.
	var reloaded models.Product
	assert.NoError(t, db.First(&reloaded, p.ID).Error)
	assert.Equal(t, 5, reloaded.Stock)
}

func TestPlaceOrderInsufficientStock(t *testing.T) {
	t.Setenv("SHIPPING_COST", "0")
	db := setupTestDB(t)

	p := seedProduct(t, db, models.Product{Name: "Mug", Price: 100, Stock: 1})
	seedUserWithCart(t, db, models.CartItem{
		ProductID: p.ID, Name: "Mug", Price: 100, Quantity: 2,
	})

	_, err := PlaceOrder(db, "user-1", "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insufficient stock")
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	db := setupTestDB(t)
	seedUserWithCart(t, db)

	_, err := PlaceOrder(db, "user-1", "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cart is empty")
}

type fakeFulfillment struct {
	calls int
}

func (f *fakeFulfillment) SubmitOrder(ctx context.Context, order *stockmount.ExportOrder) error {
	f.calls++
	return nil
}

func TestFinalizePaidOrderIsIdempotent(t *testing.T) {
	t.Setenv("SHIPPING_COST", "0")
	db := setupTestDB(t)

	p := seedProduct(t, db, models.Product{Name: "Mug", Price: 100, Stock: 5, StockMountID: "SM-1"})
	seedUserWithCart(t, db, models.CartItem{
		ProductID: p.ID, Name: "Mug", Price: 100, Quantity: 1, StockMountID: "SM-1",
	})
	coupon := models.Coupon{
		Code: "SAVE10", Type: models.DiscountFixed, Value: 10,
		StartDate: time.Now().Add(-time.Hour), EndDate: time.Now().Add(time.Hour),
		IsActive: true,
	}
	assert.NoError(t, db.Create(&coupon).Error)

	order, err := PlaceOrder(db, "user-1", "SAVE10")
	assert.NoError(t, err)

	ful := &fakeFulfillment{}
	deps := &Collaborators{Fulfillment: ful}

	assert.NoError(t, FinalizePaidOrder(db, deps, order.MerchantOID, order.PaymentAmount))

	var paid models.Order
	assert.NoError(t, db.Where("merchant_oid = ?", order.MerchantOID).First(&paid).Error)
	assert.Equal(t, models.OrderStatusPaid, paid.Status)
	assert.True(t, paid.SentToStockMount)

	// Coupon redeemed exactly once, cart cleared.
	var reloadedCoupon models.Coupon
	assert.NoError(t, db.First(&reloadedCoupon, coupon.ID).Error)
	assert.Equal(t, 1, reloadedCoupon.UsedCount)

	var cartItems int64
	db.Model(&models.CartItem{}).Count(&cartItems)
	assert.Equal(t, int64(0), cartItems)

	// Redelivered callback: no pending row, nothing runs again.
	assert.NoError(t, FinalizePaidOrder(db, deps, order.MerchantOID, order.PaymentAmount))
	assert.Equal(t, 1, ful.calls)

	assert.NoError(t, db.First(&reloadedCoupon, coupon.ID).Error)
	assert.Equal(t, 1, reloadedCoupon.UsedCount)
}

func TestFinalizePaidOrderRecordsCapturedAmount(t *testing.T) {
	t.Setenv("SHIPPING_COST", "0")
	db := setupTestDB(t)

	p := seedProduct(t, db, models.Product{Name: "Mug", Price: 100, Stock: 5})
	seedUserWithCart(t, db, models.CartItem{
		ProductID: p.ID, Name: "Mug", Price: 100, Quantity: 1,
	})
	order, err := PlaceOrder(db, "user-1", "")
	assert.NoError(t, err)

	// Gateway reports a slightly different captured amount; it wins.
	assert.NoError(t, FinalizePaidOrder(db, nil, order.MerchantOID, 9950))

	var paid models.Order
	assert.NoError(t, db.Where("merchant_oid = ?", order.MerchantOID).First(&paid).Error)
	assert.Equal(t, int64(9950), paid.PaymentAmount)
}

func TestCancelPendingOrderRestocks(t *testing.T) {
	t.Setenv("SHIPPING_COST", "0")
	db := setupTestDB(t)

	p := seedProduct(t, db, models.Product{Name: "Mug", Price: 100, Stock: 5})
	seedUserWithCart(t, db, models.CartItem{
		ProductID: p.ID, Name: "Mug", Price: 100, Quantity: 2,
	})
	order, err := PlaceOrder(db, "user-1", "")
	assert.NoError(t, err)

	var reloaded models.Product
	assert.NoError(t, db.First(&reloaded, p.ID).Error)
	assert.Equal(t, 3, reloaded.Stock)

	assert.NoError(t, CancelPendingOrder(db, order.MerchantOID))

	assert.NoError(t, db.First(&reloaded, p.ID).Error)
	assert.Equal(t, 5, reloaded.Stock)

	var cancelled models.Order
	assert.NoError(t, db.Where("merchant_oid = ?", order.MerchantOID).First(&cancelled).Error)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)

	// Cancelling again does not restock twice.
	assert.NoError(t, CancelPendingOrder(db, order.MerchantOID))
	assert.NoError(t, db.First(&reloaded, p.ID).Error)
	assert.Equal(t, 5, reloaded.Stock)
}

func TestCancelDoesNotTouchPaidOrder(t *testing.T) {
	t.Setenv("SHIPPING_COST", "0")
	db := setupTestDB(t)

	p := seedProduct(t, db, models.Product{Name: "Mug", Price: 100, Stock: 5})
	seedUserWithCart(t, db, models.CartItem{
		ProductID: p.ID, Name: "Mug", Price: 100, Quantity: 1,
	})
	order, err := PlaceOrder(db, "user-1", "")
	assert.NoError(t, err)
	assert.NoError(t, FinalizePaidOrder(db, nil, order.MerchantOID, order.PaymentAmount))

	// A late failure callback for an already-captured payment is a no-op.
	assert.NoError(t, CancelPendingOrder(db, order.MerchantOID))

	var reloaded models.Order
	assert.NoError(t, db.Where("merchant_oid = ?", order.MerchantOID).First(&reloaded).Error)
	assert.Equal(t, models.OrderStatusPaid, reloaded.Status)
}

func TestTransitionRules(t *testing.T) {
	assert.True(t, transitionAllowed(models.OrderStatusPending, models.OrderStatusPaid))
	assert.True(t, transitionAllowed(models.OrderStatusPending, models.OrderStatusCancelled))
	assert.True(t, transitionAllowed(models.OrderStatusPaid, models.OrderStatusInShipment))
	assert.True(t, transitionAllowed(models.OrderStatusInShipment, models.OrderStatusDelivered))

	assert.False(t, transitionAllowed(models.OrderStatusDelivered, models.OrderStatusPending))
	assert.False(t, transitionAllowed(models.OrderStatusCancelled, models.OrderStatusPaid))
	assert.False(t, transitionAllowed(models.OrderStatusInShipment, models.OrderStatusCancelled))
	assert.False(t, transitionAllowed(models.OrderStatusPending, models.OrderStatusDelivered))
}
