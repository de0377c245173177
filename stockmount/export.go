package stockmount

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/volkanaggunlu/ecommerce-api/models"
	"gorm.io/gorm"
)

// StockMount has no concept of discounts: the line-item total of an exported
// order must equal the captured payment amount exactly. CastToExportOrder
// flattens bundles and redistributes per-line prices to close the gap.

// statusMap translates order statuses to StockMount's vocabulary. Anything
// not listed here is a validation error at export time.
var statusMap = map[models.OrderStatus]string{
	models.OrderStatusPending:    "New",
	models.OrderStatusPaid:       "Approved",
	models.OrderStatusInShipment: "Shipped",
	models.OrderStatusCancelled:  "Rejected",
	models.OrderStatusDelivered:  "Delivered",
}

type ExportConfig struct {
	ShippingCost      float64
	ShippingProductID string
	ShippingTaxRate   int
	DefaultProductID  string // fallback for sub-variants without a StockMount id
}

// LoadExportConfig reads the export settings from the environment.
func LoadExportConfig() ExportConfig {
	cost, _ := strconv.ParseFloat(os.Getenv("SHIPPING_COST"), 64)
	taxRate, _ := strconv.Atoi(os.Getenv("STOCKMOUNT_SHIPPING_TAX_RATE"))
	return ExportConfig{
		ShippingCost:      cost,
		ShippingProductID: os.Getenv("STOCKMOUNT_SHIPPING_PRODUCT_ID"),
		ShippingTaxRate:   taxRate,
		DefaultProductID:  os.Getenv("STOCKMOUNT_DEFAULT_PRODUCT_ID"),
	}
}

type OrderLine struct {
	Code        string `json:"Code"`
	ProductCode string `json:"ProductCode"`
	Quantity    int    `json:"Quantity"`
	UnitPrice   string `json:"UnitPrice"` // 2 decimal places
	TaxRate     int    `json:"TaxRate"`
}

type ExportOrder struct {
	Code         string      `json:"Code"` // merchant oid
	CustomerName string      `json:"CustomerName"`
	Email        string      `json:"Email"`
	Phone        string      `json:"Phone"`
	Address      string      `json:"Address"`
	City         string      `json:"City"`
	District     string      `json:"District"`
	Status       string      `json:"Status"`
	Lines        []OrderLine `json:"OrderItems"`
	OrderDate    string      `json:"OrderDate"`
}

// flatLine is one cart position after bundle expansion.
type flatLine struct {
	name         string
	productCode  string
	taxRate      int
	quantity     int
	unitPrice    decimal.Decimal
	isSubVariant bool
}

var (
	ratio90 = decimal.NewFromFloat(0.9)
	ratio10 = decimal.NewFromFloat(0.1)
)

// CastToExportOrder builds the fulfillment payload for an order. The exported
// line total is forced down to the captured payment amount (net of shipping)
// by shrinking per-line prices, never below 10% of the original unit price.
func CastToExportOrder(order *models.Order, cfg ExportConfig) (*ExportOrder, error) {
	status, ok := statusMap[order.Status]
	if !ok {
		return nil, fmt.Errorf("no stockmount status for order status %q", order.Status)
	}

	lines, hasBundle := flattenItems(order.Items)

	totalPrice := decimal.Zero
	for _, l := range lines {
		totalPrice = totalPrice.Add(l.unitPrice.Mul(decimal.NewFromInt(int64(l.quantity))))
	}

	// Captured amount arrives in minor units; shipping is collected on top of
	// the product prices, so it is carved out before reconciling.
	totalPayment := decimal.NewFromInt(order.PaymentAmount).Div(decimal.NewFromInt(100))
	if !order.FreeShipping {
		totalPayment = totalPayment.Sub(decimal.NewFromFloat(cfg.ShippingCost))
	}

	if totalPrice.GreaterThan(totalPayment) || hasBundle {
		redistribute(lines, totalPrice.Sub(totalPayment), order.MerchantOID)
	}

	out := make([]OrderLine, 0, len(lines)+1)
	for i, l := range lines {
		code := l.productCode
		if code == "" {
			code = cfg.DefaultProductID
			log.Printf("stockmount: order %s line %d (%s) has no product code, using default %s",
				order.MerchantOID, i, l.name, code)
		}
		out = append(out, OrderLine{
			Code:        fmt.Sprintf("%s-%d", order.MerchantOID, i),
			ProductCode: code,
			Quantity:    l.quantity,
			UnitPrice:   l.unitPrice.StringFixed(2),
			TaxRate:     l.taxRate,
		})
	}

	if !order.FreeShipping {
		out = append(out, OrderLine{
			Code:        fmt.Sprintf("%s-%d", order.MerchantOID, len(out)),
			ProductCode: cfg.ShippingProductID,
			Quantity:    1,
			UnitPrice:   decimal.NewFromFloat(cfg.ShippingCost).StringFixed(2),
			TaxRate:     cfg.ShippingTaxRate,
		})
	}

	return &ExportOrder{
		Code:         order.MerchantOID,
		CustomerName: order.Name,
		Email:        order.Email,
		Phone:        order.Phone,
		Address:      order.Shipping.Street,
		City:         order.Shipping.City,
		District:     order.Shipping.District,
		Status:       status,
		Lines:        out,
		OrderDate:    order.CreatedAt.Format("2006-01-02 15:04:05"),
	}, nil
}

// flattenItems expands bundle items into their component snapshots. Bundle
// sub-item prices are authoritative for export; the bundle's own display
// price is not reconciled against them.
func flattenItems(items []models.OrderItem) ([]*flatLine, bool) {
	var lines []*flatLine
	hasBundle := false

	for _, item := range items {
		if item.IsBundle {
			hasBundle = true
			for _, sub := range item.SubItems {
				qty := sub.Quantity
				if qty == 0 {
					qty = 1
				}
				lines = append(lines, &flatLine{
					name:         sub.Name,
					productCode:  sub.StockMountID,
					taxRate:      sub.TaxRate,
					quantity:     qty * item.Quantity,
					unitPrice:    decimal.NewFromFloat(sub.Price),
					isSubVariant: true,
				})
			}
			continue
		}

		price := item.Price
		if item.DiscountedPrice != nil {
			price = *item.DiscountedPrice
		}
		lines = append(lines, &flatLine{
			name:         item.Name,
			productCode:  item.StockMountID,
			taxRate:      item.TaxRate,
			quantity:     item.Quantity,
			unitPrice:    decimal.NewFromFloat(price),
			isSubVariant: item.IsSubVariant,
		})
	}
	return lines, hasBundle
}

// redistribute walks the lines in cart order, shrinking unit prices until the
// deficit is absorbed. A line absorbs the whole remainder when it can do so
// without dropping below 10% of its value; otherwise it is floored at 10% and
// the walk continues. A deficit that survives every line is dropped: the
// exported total then stays above the captured payment.
func redistribute(lines []*flatLine, deficit decimal.Decimal, merchantOID string) {
	if deficit.LessThanOrEqual(decimal.Zero) {
		return
	}

	for _, l := range lines {
		qty := decimal.NewFromInt(int64(l.quantity))
		lineValue := l.unitPrice.Mul(qty)

		if lineValue.Mul(ratio90).GreaterThan(deficit) {
			l.unitPrice = l.unitPrice.Sub(deficit.Div(qty))
			deficit = decimal.Zero
			break
		}

		l.unitPrice = l.unitPrice.Mul(ratio10)
		deficit = deficit.Sub(lineValue.Mul(ratio90))
	}

	if deficit.GreaterThan(decimal.Zero) {
		log.Printf("stockmount: order %s export total exceeds captured payment by %s, all lines at floor",
			merchantOID, deficit.StringFixed(2))
	}
}

// Submitter is the outbound half of the fulfillment integration.
type Submitter interface {
	SubmitOrder(ctx context.Context, order *ExportOrder) error
}

// ExportOrder sends an order to StockMount exactly once. The sent flag is
// claimed with a single conditional UPDATE before any network call, so
// concurrent retries cannot double-export; the claim is released again when
// the submit fails, leaving the order eligible for a later retry.
func ExportOrderToStockMount(ctx context.Context, db *gorm.DB, client Submitter, order *models.Order, cfg ExportConfig) error {
	res := db.Model(&models.Order{}).
		Where("id = ? AND sent_to_stockmount = ?", order.ID, false).
		Update("sent_to_stockmount", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil // already exported
	}

	payload, err := CastToExportOrder(order, cfg)
	if err == nil {
		err = client.SubmitOrder(ctx, payload)
	}
	if err != nil {
		db.Model(&models.Order{}).Where("id = ?", order.ID).Update("sent_to_stockmount", false)
		return fmt.Errorf("export order %s: %w", order.MerchantOID, err)
	}

	order.SentToStockMount = true
	return nil
}
