package basitkargo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/volkanaggunlu/ecommerce-api/models"
)

const defaultBaseURL = "https://basitkargo.com/api/v2"

type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClientFromEnv returns nil when no API key is configured.
func NewClientFromEnv() *Client {
	key := os.Getenv("BASITKARGO_API_KEY")
	if key == "" {
		return nil
	}
	base := os.Getenv("BASITKARGO_API_URL")
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{
		apiKey:  key,
		baseURL: base,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
}

type shipmentRequest struct {
	ReferenceCode string `json:"referenceCode"`
	Name          string `json:"name"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Address       string `json:"address"`
	City          string `json:"city"`
	District      string `json:"district"`
}

type shipmentResponse struct {
	Code    string `json:"code"` // tracking code
	Message string `json:"message,omitempty"`
}

// CreateShipment registers the order at the carrier and returns the tracking
// code used to correlate later webhook notifications.
func (c *Client) CreateShipment(ctx context.Context, order *models.Order) (string, error) {
	payload := shipmentRequest{
		ReferenceCode: order.MerchantOID,
		Name:          order.Name,
		Phone:         order.Phone,
		Email:         order.Email,
		Address:       order.Shipping.Street,
		City:          order.Shipping.City,
		District:      order.Shipping.District,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/shipments", bytes.NewBuffer(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("basitkargo: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("basitkargo: %d: %s", resp.StatusCode, string(body))
	}

	var out shipmentResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("basitkargo: parse response: %v", err)
	}
	if out.Code == "" {
		return "", fmt.Errorf("basitkargo: empty tracking code: %s", out.Message)
	}
	return out.Code, nil
}
