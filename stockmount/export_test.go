package stockmount

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/volkanaggunlu/ecommerce-api/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	if err := db.AutoMigrate(&models.Order{}, &models.OrderItem{}, &models.OrderSubItem{}); err != nil {
		t.Fatalf("Failed to migrate database: %v", err)
	}
	return db
}

func testConfig() ExportConfig {
	return ExportConfig{
		ShippingCost:      49.90,
		ShippingProductID: "SHIP-1",
		ShippingTaxRate:   20,
		DefaultProductID:  "DEFAULT-1",
	}
}

func lineTotal(t *testing.T, lines []OrderLine) float64 {
	total := 0.0
	for _, l := range lines {
		price, err := strconv.ParseFloat(l.UnitPrice, 64)
		if err != nil {
			t.Fatalf("bad unit price %q: %v", l.UnitPrice, err)
		}
		total += price * float64(l.Quantity)
	}
	return total
}

func TestCastPassThroughWithoutDiscount(t *testing.T) {
	order := &models.Order{
		MerchantOID:   "ORDER_1_100",
		Status:        models.OrderStatusPaid,
		PaymentAmount: 24990, // 200.00 products + 49.90 shipping
		Items: []models.OrderItem{
			{Name: "Mug", StockMountID: "SM-1", TaxRate: 20, Price: 100, Quantity: 2},
		},
	}

	out, err := CastToExportOrder(order, testConfig())
	assert.NoError(t, err)
	assert.Equal(t, "ORDER_1_100", out.Code)
	assert.Equal(t, "Approved", out.Status)
	assert.Len(t, out.Lines, 2) // product + shipping

	assert.Equal(t, "SM-1", out.Lines[0].ProductCode)
	assert.Equal(t, "100.00", out.Lines[0].UnitPrice)
	assert.Equal(t, 2, out.Lines[0].Quantity)
	assert.Equal(t, "ORDER_1_100-0", out.Lines[0].Code)

	assert.Equal(t, "SHIP-1", out.Lines[1].ProductCode)
	assert.Equal(t, "49.90", out.Lines[1].UnitPrice)
	assert.Equal(t, 20, out.Lines[1].TaxRate)
}

func TestCastRedistributesCouponDiscount(t *testing.T) {
	// Products listed at 300, customer paid 250 plus shipping. The first
	// line absorbs the whole 50 deficit.
	order := &models.Order{
		MerchantOID:   "ORDER_2_100",
		Status:        models.OrderStatusPaid,
		PaymentAmount: 29990, // 250.00 + 49.90 shipping
		Items: []models.OrderItem{
			{Name: "Jacket", StockMountID: "SM-1", TaxRate: 20, Price: 200, Quantity: 1},
			{Name: "Scarf", StockMountID: "SM-2", TaxRate: 20, Price: 100, Quantity: 1},
		},
	}

	out, err := CastToExportOrder(order, testConfig())
	assert.NoError(t, err)

	assert.Equal(t, "150.00", out.Lines[0].UnitPrice)
	assert.Equal(t, "100.00", out.Lines[1].UnitPrice)
	assert.InDelta(t, 299.90, lineTotal(t, out.Lines), 0.001)
}

func TestCastRedistributionWalksPastFlooredLines(t *testing.T) {
	// Deficit of 150 exceeds 90% of the first line (90), so that line is
	// floored at 10% and the second line absorbs the remaining 60.
	order := &models.Order{
		MerchantOID:   "ORDER_3_100",
		Status:        models.OrderStatusPaid,
		PaymentAmount: 15000, // 150.00, free shipping
		FreeShipping:  true,
		Items: []models.OrderItem{
			{Name: "A", StockMountID: "SM-1", TaxRate: 20, Price: 100, Quantity: 1},
			{Name: "B", StockMountID: "SM-2", TaxRate: 20, Price: 200, Quantity: 1},
		},
	}

	out, err := CastToExportOrder(order, testConfig())
	assert.NoError(t, err)
	assert.Len(t, out.Lines, 2) // no shipping line

	assert.Equal(t, "10.00", out.Lines[0].UnitPrice)
	assert.Equal(t, "140.00", out.Lines[1].UnitPrice)
	assert.InDelta(t, 150.00, lineTotal(t, out.Lines), 0.001)
}

func TestCastResidualDeficitIsDropped(t *testing.T) {
	// Payment far below what even floored lines can reach. Every line ends
	// at 10% and the exported total stays above the captured amount.
	order := &models.Order{
		MerchantOID:   "ORDER_4_100",
		Status:        models.OrderStatusPaid,
		PaymentAmount: 500, // 5.00, free shipping
		FreeShipping:  true,
		Items: []models.OrderItem{
			{Name: "A", StockMountID: "SM-1", TaxRate: 20, Price: 100, Quantity: 1},
			{Name: "B", StockMountID: "SM-2", TaxRate: 20, Price: 100, Quantity: 1},
		},
	}

	out, err := CastToExportOrder(order, testConfig())
	assert.NoError(t, err)

	assert.Equal(t, "10.00", out.Lines[0].UnitPrice)
	assert.Equal(t, "10.00", out.Lines[1].UnitPrice)
	assert.InDelta(t, 20.00, lineTotal(t, out.Lines), 0.001)
}

func TestCastFlattensBundles(t *testing.T) {
	order := &models.Order{
		MerchantOID:   "ORDER_5_100",
		Status:        models.OrderStatusPaid,
		PaymentAmount: 30000, // 300.00, free shipping
		FreeShipping:  true,
		Items: []models.OrderItem{
			{
				Name:     "Gift Set",
				IsBundle: true,
				Price:    150,
				Quantity: 2,
				SubItems: []models.OrderSubItem{
					{Name: "Soap", StockMountID: "SM-S", TaxRate: 10, Price: 50, Quantity: 2},
					{Name: "Towel", StockMountID: "SM-T", TaxRate: 20, Price: 50}, // quantity defaults to 1
				},
			},
		},
	}

	out, err := CastToExportOrder(order, testConfig())
	assert.NoError(t, err)
	assert.Len(t, out.Lines, 2)

	// Sub quantities are multiplied by the bundle line quantity.
	assert.Equal(t, "SM-S", out.Lines[0].ProductCode)
	assert.Equal(t, 4, out.Lines[0].Quantity)
	assert.Equal(t, 10, out.Lines[0].TaxRate)
	assert.Equal(t, "SM-T", out.Lines[1].ProductCode)
	assert.Equal(t, 2, out.Lines[1].Quantity)

	// Sub prices sum to 300 and the payment is 300: reconciliation still
	// runs for bundles but changes nothing here.
	assert.InDelta(t, 300.00, lineTotal(t, out.Lines), 0.001)
}

func TestCastBundleComponentPricesAreAuthoritative(t *testing.T) {
	// Components sum to 120 but the customer paid the 100 bundle price.
	// The presence of a bundle forces reconciliation even without a coupon.
	order := &models.Order{
		MerchantOID:   "ORDER_6_100",
		Status:        models.OrderStatusPaid,
		PaymentAmount: 10000, // 100.00, free shipping
		FreeShipping:  true,
		Items: []models.OrderItem{
			{
				Name:     "Combo",
				IsBundle: true,
				Price:    100,
				Quantity: 1,
				SubItems: []models.OrderSubItem{
					{Name: "A", StockMountID: "SM-A", TaxRate: 20, Price: 60, Quantity: 1},
					{Name: "B", StockMountID: "SM-B", TaxRate: 20, Price: 60, Quantity: 1},
				},
			},
		},
	}

	out, err := CastToExportOrder(order, testConfig())
	assert.NoError(t, err)
	assert.InDelta(t, 100.00, lineTotal(t, out.Lines), 0.001)
}

func TestCastUsesDefaultProductCode(t *testing.T) {
	order := &models.Order{
		MerchantOID:   "ORDER_7_100",
		Status:        models.OrderStatusPaid,
		PaymentAmount: 5000,
		FreeShipping:  true,
		Items: []models.OrderItem{
			{Name: "Mystery", StockMountID: "", TaxRate: 20, Price: 50, Quantity: 1},
		},
	}

	out, err := CastToExportOrder(order, testConfig())
	assert.NoError(t, err)
	assert.Equal(t, "DEFAULT-1", out.Lines[0].ProductCode)
}

func TestCastUnknownStatus(t *testing.T) {
	order := &models.Order{
		MerchantOID: "ORDER_8_100",
		Status:      models.OrderStatus("refunded"),
	}

	_, err := CastToExportOrder(order, testConfig())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "refunded")
}

func TestCastStatusMapping(t *testing.T) {
	cases := map[models.OrderStatus]string{
		models.OrderStatusPending:    "New",
		models.OrderStatusPaid:       "Approved",
		models.OrderStatusInShipment: "Shipped",
		models.OrderStatusCancelled:  "Rejected",
		models.OrderStatusDelivered:  "Delivered",
	}
	for status, want := range cases {
		order := &models.Order{MerchantOID: "X", Status: status, FreeShipping: true}
		out, err := CastToExportOrder(order, testConfig())
		assert.NoError(t, err)
		assert.Equal(t, want, out.Status)
	}
}

// fakeSubmitter records submissions and can be told to fail.
type fakeSubmitter struct {
	calls int
	err   error
}

func (f *fakeSubmitter) SubmitOrder(ctx context.Context, order *ExportOrder) error {
	f.calls++
	return f.err
}

func TestExportClaimsFlagOnce(t *testing.T) {
	db := setupTestDB(t)
	order := &models.Order{
		MerchantOID:   "ORDER_9_100",
		UserID:        "user-1",
		Status:        models.OrderStatusPaid,
		PaymentAmount: 10000,
		FreeShipping:  true,
		Items: []models.OrderItem{
			{Name: "A", StockMountID: "SM-A", TaxRate: 20, Price: 100, Quantity: 1},
		},
	}
	assert.NoError(t, db.Create(order).Error)

	sub := &fakeSubmitter{}
	assert.NoError(t, ExportOrderToStockMount(context.Background(), db, sub, order, testConfig()))
	assert.Equal(t, 1, sub.calls)
	assert.True(t, order.SentToStockMount)

	// Second export is a no-op.
	assert.NoError(t, ExportOrderToStockMount(context.Background(), db, sub, order, testConfig()))
	assert.Equal(t, 1, sub.calls)

	var reloaded models.Order
	assert.NoError(t, db.First(&reloaded, order.ID).Error)
	assert.True(t, reloaded.SentToStockMount)
}

func TestExportReleasesFlagOnFailure(t *testing.T) {
	db := setupTestDB(t)
	order := &models.Order{
		MerchantOID:   "ORDER_10_100",
		UserID:        "user-1",
		Status:        models.OrderStatusPaid,
		PaymentAmount: 10000,
		FreeShipping:  true,
		Items: []models.OrderItem{
			{Name: "A", StockMountID: "SM-A", TaxRate: 20, Price: 100, Quantity: 1},
		},
	}
	assert.NoError(t, db.Create(order).Error)

	sub := &fakeSubmitter{err: errors.New("boom")}
	err := ExportOrderToStockMount(context.Background(), db, sub, order, testConfig())
	assert.Error(t, err)

	var reloaded models.Order
	assert.NoError(t, db.First(&reloaded, order.ID).Error)
	assert.False(t, reloaded.SentToStockMount)

	// The failed attempt left the order retryable.
	sub.err = nil
	assert.NoError(t, ExportOrderToStockMount(context.Background(), db, sub, order, testConfig()))
	assert.Equal(t, 2, sub.calls)
}
