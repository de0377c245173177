package klaviyo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

const defaultTrackURL = "https://a.klaviyo.com/api/track"

// OrderPlacedEvent and ProductOrderedEvent carry fixed, explicitly-typed
// schemas per event kind, no dynamic property bags.

type OrderPlacedEvent struct {
	OrderID      string    `json:"order_id"`
	Email        string    `json:"email"`
	Value        float64   `json:"value"`
	DiscountCode string    `json:"discount_code,omitempty"`
	ItemCount    int       `json:"item_count"`
	Time         time.Time `json:"time"`
}

type ProductOrderedEvent struct {
	OrderID     string    `json:"order_id"`
	Email       string    `json:"email"`
	ProductName string    `json:"product_name"`
	SKU         string    `json:"sku,omitempty"`
	Quantity    int       `json:"quantity"`
	Price       float64   `json:"price"`
	Time        time.Time `json:"time"`
}

type Client struct {
	apiKey   string
	trackURL string
	http     *http.Client
}

// NewClientFromEnv returns nil when no API key is configured; callers treat a
// nil client as "marketing disabled".
func NewClientFromEnv() *Client {
	key := os.Getenv("KLAVIYO_API_KEY")
	if key == "" {
		return nil
	}
	url := os.Getenv("KLAVIYO_TRACK_URL")
	if url == "" {
		url = defaultTrackURL
	}
	return &Client{
		apiKey:   key,
		trackURL: url,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

type trackPayload struct {
	Token         string      `json:"token"`
	Event         string      `json:"event"`
	CustomerEmail string      `json:"customer_properties.$email"`
	Properties    interface{} `json:"properties"`
	Time          int64       `json:"time"`
}

func (c *Client) TrackOrderPlaced(ctx context.Context, ev OrderPlacedEvent) error {
	return c.track(ctx, "Placed Order", ev.Email, ev.Time, ev)
}

func (c *Client) TrackProductOrdered(ctx context.Context, ev ProductOrderedEvent) error {
	return c.track(ctx, "Ordered Product", ev.Email, ev.Time, ev)
}

func (c *Client) track(ctx context.Context, event, email string, at time.Time, props interface{}) error {
	payload := trackPayload{
		Token:         c.apiKey,
		Event:         event,
		CustomerEmail: email,
		Properties:    props,
		Time:          at.Unix(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.trackURL, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("klaviyo track: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("klaviyo track %s: %d: %s", event, resp.StatusCode, string(body))
	}
	return nil
}
