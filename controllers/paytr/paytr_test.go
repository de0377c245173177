package paytrControllers

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/volkanaggunlu/ecommerce-api/models"
)

func testPayTRConfig() PayTRConfig {
	return PayTRConfig{
		MerchantID:   "123456",
		MerchantKey:  "test-key",
		MerchantSalt: "test-salt",
		OkURL:        "https://shop.example/odeme/basarili",
		FailURL:      "https://shop.example/odeme/hata",
	}
}

func signCallback(merchantOID, salt, status, totalAmount string) string {
	sum := sha256.Sum256([]byte(merchantOID + salt + status + totalAmount))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func TestVerifyCallbackRoundTrip(t *testing.T) {
	hash := signCallback("ORDER_1_100", "test-salt", "success", "24990")
	assert.True(t, VerifyCallback("ORDER_1_100", "success", "24990", hash, "test-salt"))
}

func TestVerifyCallbackRejectsMutations(t *testing.T) {
	hash := signCallback("ORDER_1_100", "test-salt", "success", "24990")

	// Any single changed field must invalidate the signature.
	assert.False(t, VerifyCallback("ORDER_2_100", "success", "24990", hash, "test-salt"))
	assert.False(t, VerifyCallback("ORDER_1_100", "failed", "24990", hash, "test-salt"))
	assert.False(t, VerifyCallback("ORDER_1_100", "success", "1", hash, "test-salt"))
	assert.False(t, VerifyCallback("ORDER_1_100", "success", "24990", hash, "other-salt"))
	assert.False(t, VerifyCallback("ORDER_1_100", "success", "24990", "garbage", "test-salt"))
	assert.False(t, VerifyCallback("ORDER_1_100", "success", "24990", "", "test-salt"))
}

func TestBuildHostedPaymentRequest(t *testing.T) {
	discounted := 80.0
	order := &models.Order{
		ID:            1,
		MerchantOID:   "ORDER_1_100",
		Email:         "musteri@example.com",
		Name:          "Ayşe Yılmaz",
		Phone:         "+905551112233",
		PaymentAmount: 24990,
		Shipping: models.Address{
			Street:   "Çiçek Sok. 5",
			District: "Kadıköy",
			City:     "İstanbul",
			Country:  "Türkiye",
		},
		Items: []models.OrderItem{
			{Name: "Mug", Price: 100, Quantity: 2},
			{Name: "Jacket", Price: 100, DiscountedPrice: &discounted, Quantity: 1},
		},
	}

	req, err := BuildHostedPaymentRequest(testPayTRConfig(), order, "203.0.113.7")
	assert.NoError(t, err)
	assert.Equal(t, "ORDER_1_100", req.MerchantOID)
	assert.Equal(t, hostedPageURL, req.RedirectURL)

	data := req.IframeData
	assert.Equal(t, "123456", data["merchant_id"])
	assert.Equal(t, "203.0.113.7", data["user_ip"])
	assert.Equal(t, "24990", data["payment_amount"])
	assert.Equal(t, "card", data["payment_type"])
	assert.Equal(t, "TL", data["currency"])
	assert.Equal(t, "0", data["test_mode"])
	assert.Equal(t, "Çiçek Sok. 5|Kadıköy|İstanbul|Türkiye", data["user_address"])
	assert.NotEmpty(t, data["paytr_token"])

	// The basket carries the discounted price when one is set.
	basketJSON, err := base64.StdEncoding.DecodeString(data["user_basket"])
	assert.NoError(t, err)
	var basket [][]interface{}
	assert.NoError(t, json.Unmarshal(basketJSON, &basket))
	assert.Len(t, basket, 2)
	assert.Equal(t, "Mug", basket[0][0])
	assert.Equal(t, "100.00", basket[0][1])
	assert.Equal(t, float64(2), basket[0][2])
	assert.Equal(t, "80.00", basket[1][1])
}

func TestBuildHostedPaymentRequestTokenIsDeterministic(t *testing.T) {
	order := &models.Order{
		ID:            2,
		MerchantOID:   "ORDER_2_100",
		Email:         "a@example.com",
		PaymentAmount: 1000,
	}

	cfg := testPayTRConfig()
	first, err := BuildHostedPaymentRequest(cfg, order, "10.0.0.1")
	assert.NoError(t, err)
	second, err := BuildHostedPaymentRequest(cfg, order, "10.0.0.1")
	assert.NoError(t, err)
	assert.Equal(t, first.IframeData["paytr_token"], second.IframeData["paytr_token"])

	// A different IP changes the token.
	third, err := BuildHostedPaymentRequest(cfg, order, "10.0.0.2")
	assert.NoError(t, err)
	assert.NotEqual(t, first.IframeData["paytr_token"], third.IframeData["paytr_token"])
}

func TestBuildHostedPaymentRequestNeedsMerchantOID(t *testing.T) {
	order := &models.Order{ID: 3}
	_, err := BuildHostedPaymentRequest(testPayTRConfig(), order, "10.0.0.1")
	assert.Error(t, err)
}

func TestGetPayTRConfigValidation(t *testing.T) {
	t.Setenv("PAYTR_MERCHANT_ID", "123456")
	t.Setenv("PAYTR_MERCHANT_KEY", "key")
	t.Setenv("PAYTR_MERCHANT_SALT", "")
	t.Setenv("PAYTR_MODE", "")

	_, err := GetPayTRConfig()
	assert.Error(t, err)

	t.Setenv("PAYTR_MERCHANT_SALT", "salt")
	cfg, err := GetPayTRConfig()
	assert.NoError(t, err)
	assert.Equal(t, 0, cfg.TestMode)

	t.Setenv("PAYTR_MODE", "sandbox")
	cfg, err = GetPayTRConfig()
	assert.NoError(t, err)
	assert.Equal(t, 1, cfg.TestMode)
}
