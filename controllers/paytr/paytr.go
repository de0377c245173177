package paytrControllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	orderControllers "github.com/volkanaggunlu/ecommerce-api/controllers/order"
	"github.com/volkanaggunlu/ecommerce-api/models"
	"gorm.io/gorm"
)

const hostedPageURL = "https://www.paytr.com/odeme/guvenli/"

type PayTRConfig struct {
	MerchantID   string
	MerchantKey  string
	MerchantSalt string
	OkURL        string
	FailURL      string
	TestMode     int
}

// GetPayTRConfig validates the merchant credentials up front: a missing
// id/key/salt must fail here, not silently produce an invalid signature.
func GetPayTRConfig() (PayTRConfig, error) {
	cfg := PayTRConfig{
		MerchantID:   os.Getenv("PAYTR_MERCHANT_ID"),
		MerchantKey:  os.Getenv("PAYTR_MERCHANT_KEY"),
		MerchantSalt: os.Getenv("PAYTR_MERCHANT_SALT"),
		OkURL:        os.Getenv("PAYTR_OK_URL"),
		FailURL:      os.Getenv("PAYTR_FAIL_URL"),
	}
	if cfg.MerchantID == "" || cfg.MerchantKey == "" || cfg.MerchantSalt == "" {
		return PayTRConfig{}, fmt.Errorf("paytr configuration missing")
	}
	mode := strings.ToLower(os.Getenv("PAYTR_MODE"))
	if mode == "sandbox" || mode == "dev" {
		cfg.TestMode = 1
	}
	return cfg, nil
}

type HostedPaymentRequest struct {
	MerchantOID string            `json:"merchant_oid"`
	IframeData  map[string]string `json:"iframe_data"`
	RedirectURL string            `json:"redirect_url"`
}

// BuildHostedPaymentRequest assembles the signed request for PayTR's hosted
// payment page. The amount is converted to minor currency units, the basket
// to PayTR's [[name, price, qty], ...] JSON format and the address to its
// pipe-joined form.
func BuildHostedPaymentRequest(cfg PayTRConfig, order *models.Order, userIP string) (*HostedPaymentRequest, error) {
	if order.MerchantOID == "" {
		return nil, fmt.Errorf("order %d has no merchant oid", order.ID)
	}

	amount := strconv.FormatInt(order.PaymentAmount, 10)

	basket := make([][]interface{}, 0, len(order.Items))
	for _, item := range order.Items {
		price := item.Price
		if item.DiscountedPrice != nil {
			price = *item.DiscountedPrice
		}
		basket = append(basket, []interface{}{item.Name, fmt.Sprintf("%.2f", price), item.Quantity})
	}
	basketJSON, err := json.Marshal(basket)
	if err != nil {
		return nil, fmt.Errorf("marshal basket: %v", err)
	}
	userBasket := base64.StdEncoding.EncodeToString(basketJSON)

	address := strings.Join([]string{
		order.Shipping.Street, order.Shipping.District, order.Shipping.City, order.Shipping.Country,
	}, "|")

	const (
		paymentType      = "card"
		installmentCount = "0"
		currency         = "TL"
		noInstallment    = "0"
		maxInstallment   = "0"
	)

	token := signRequest(cfg, userIP, order.MerchantOID, order.Email, amount,
		paymentType, installmentCount, currency, noInstallment, maxInstallment,
		userBasket, address)

	return &HostedPaymentRequest{
		MerchantOID: order.MerchantOID,
		RedirectURL: hostedPageURL,
		IframeData: map[string]string{
			"merchant_id":       cfg.MerchantID,
			"user_ip":           userIP,
			"merchant_oid":      order.MerchantOID,
			"email":             order.Email,
			"payment_amount":    amount,
			"payment_type":      paymentType,
			"installment_count": installmentCount,
			"currency":          currency,
			"test_mode":         strconv.Itoa(cfg.TestMode),
			"no_installment":    noInstallment,
			"max_installment":   maxInstallment,
			"user_basket":       userBasket,
			"user_name":         order.Name,
			"user_address":      address,
			"user_phone":        order.Phone,
			"merchant_ok_url":   cfg.OkURL,
			"merchant_fail_url": cfg.FailURL,
			"paytr_token":       token,
		},
	}, nil
}

// signRequest concatenates the request fields in PayTR's fixed order and
// returns the base64 of the SHA-256 digest.
func signRequest(cfg PayTRConfig, userIP, merchantOID, email, amount,
	paymentType, installmentCount, currency, noInstallment, maxInstallment,
	basket, address string) string {

	raw := cfg.MerchantID + userIP + merchantOID + email + amount +
		paymentType + installmentCount + currency + strconv.Itoa(cfg.TestMode) +
		noInstallment + maxInstallment + basket + address +
		cfg.MerchantKey + cfg.MerchantSalt

	sum := sha256.Sum256([]byte(raw))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// VerifyCallback checks the signature of a server-to-server payment
// notification. It is the sole authority for accepting the callback: callers
// must discard the notification without any state change when this returns
// false.
func VerifyCallback(merchantOID, status, totalAmount, hash, merchantSalt string) bool {
	sum := sha256.Sum256([]byte(merchantOID + merchantSalt + status + totalAmount))
	expected := base64.StdEncoding.EncodeToString(sum[:])
	return hmac.Equal([]byte(expected), []byte(hash))
}

// CallbackAuth verifies the PayTR notification signature before the handler
// runs. A bad hash is a security event: logged and discarded, never treated
// as ordinary validation failure.
func CallbackAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		cfg, err := GetPayTRConfig()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "payment gateway not configured"})
			c.Abort()
			return
		}

		if err := c.Request.ParseForm(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse form"})
			c.Abort()
			return
		}

		merchantOID := c.PostForm("merchant_oid")
		status := c.PostForm("status")
		totalAmount := c.PostForm("total_amount")
		hash := c.PostForm("hash")

		if !VerifyCallback(merchantOID, status, totalAmount, hash, cfg.MerchantSalt) {
			log.Printf("SECURITY paytr: callback hash mismatch for merchant_oid=%s from %s", merchantOID, c.ClientIP())
			c.String(http.StatusForbidden, "PAYTR notification failed")
			c.Abort()
			return
		}

		c.Next()
	}
}

// -------- Handlers --------

type paymentRequestInput struct {
	CouponCode string `json:"coupon_code"`
}

// PaymentRequestHandler creates a pending order from the user's cart and
// returns the signed hosted-page payload.
func PaymentRequestHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		userIDVal, exists := c.Get("user_id")
		if !exists {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		userID := userIDVal.(string)

		var input paymentRequestInput
		_ = c.ShouldBindJSON(&input) // coupon code is optional

		cfg, err := GetPayTRConfig()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		order, err := orderControllers.PlaceOrder(db, userID, input.CouponCode)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		req, err := BuildHostedPaymentRequest(cfg, order, c.ClientIP())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, req)
	}
}

// CallbackHandler applies a verified payment notification. PayTR delivers
// callbacks at least once; every effect is gated on the order still being
// pending, so a redelivery finds nothing to do and just answers OK.
func CallbackHandler(db *gorm.DB, deps *orderControllers.Collaborators) gin.HandlerFunc {
	return func(c *gin.Context) {
		merchantOID := c.PostForm("merchant_oid")
		status := c.PostForm("status")
		totalAmount := c.PostForm("total_amount")

		if merchantOID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing merchant_oid"})
			return
		}

		switch status {
		case "success":
			captured, err := strconv.ParseInt(totalAmount, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid total_amount"})
				return
			}
			if err := orderControllers.FinalizePaidOrder(db, deps, merchantOID, captured); err != nil {
				log.Printf("paytr: finalize order %s: %v", merchantOID, err)
			}
		case "failed", "cancelled", "expired":
			if err := orderControllers.CancelPendingOrder(db, merchantOID); err != nil {
				log.Printf("paytr: cancel order %s: %v", merchantOID, err)
			}
		default:
			// waiting / refunded / partial_refunded are acknowledged without
			// touching the order.
			log.Printf("paytr: callback status %q for %s acknowledged", status, merchantOID)
		}

		// PayTR retries unless it receives a bare OK.
		c.String(http.StatusOK, "OK")
	}
}
