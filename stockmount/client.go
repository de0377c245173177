package stockmount

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"
)

var (
	// ErrTransient marks failures worth retrying: network errors, timeouts,
	// 5xx responses. The local order state is not rolled back on these.
	ErrTransient = errors.New("stockmount: transient error")

	// ErrRejected marks API-level rejections that a retry will not fix.
	ErrRejected = errors.New("stockmount: order rejected")
)

// StockMount error code returned when a cached ApiCode has expired.
const errCodeAPICodeExpired = 2

type Config struct {
	BaseURL  string
	Username string
	Password string
}

// LoadConfig reads StockMount credentials from the environment and fails
// when any required field is missing.
func LoadConfig() (Config, error) {
	cfg := Config{
		BaseURL:  os.Getenv("STOCKMOUNT_API_URL"),
		Username: os.Getenv("STOCKMOUNT_USERNAME"),
		Password: os.Getenv("STOCKMOUNT_PASSWORD"),
	}
	if cfg.BaseURL == "" || cfg.Username == "" || cfg.Password == "" {
		return Config{}, fmt.Errorf("stockmount configuration missing")
	}
	return cfg, nil
}

// Client talks to the StockMount API. The short-lived ApiCode session token
// is cached on the instance and refreshed lazily when the API reports it
// expired.
type Client struct {
	cfg  Config
	http *http.Client

	mu      sync.Mutex
	apiCode string
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 20 * time.Second},
	}
}

func NewClientFromEnv() (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return NewClient(cfg), nil
}

type apiResponse struct {
	IsError   bool   `json:"IsError"`
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
	ApiCode   string `json:"ApiCode,omitempty"`
}

// getAPICode returns the cached session token, logging in first if needed.
func (c *Client) getAPICode(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.apiCode != "" {
		return c.apiCode, nil
	}

	var resp apiResponse
	err := c.post(ctx, "/api/Customer/GetApiCode", map[string]string{
		"Username": c.cfg.Username,
		"Password": c.cfg.Password,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.IsError || resp.ApiCode == "" {
		return "", fmt.Errorf("%w: login failed: %s", ErrRejected, resp.Message)
	}

	c.apiCode = resp.ApiCode
	return c.apiCode, nil
}

func (c *Client) invalidateAPICode() {
	c.mu.Lock()
	c.apiCode = ""
	c.mu.Unlock()
}

// SubmitOrder pushes one order to StockMount. An expired session token is
// refreshed transparently with a single retry.
func (c *Client) SubmitOrder(ctx context.Context, order *ExportOrder) error {
	for attempt := 0; attempt < 2; attempt++ {
		code, err := c.getAPICode(ctx)
		if err != nil {
			return err
		}

		payload := struct {
			ApiCode string       `json:"ApiCode"`
			Order   *ExportOrder `json:"Order"`
		}{ApiCode: code, Order: order}

		var resp apiResponse
		if err := c.post(ctx, "/api/Order/SetOrder", payload, &resp); err != nil {
			return err
		}
		if !resp.IsError {
			return nil
		}
		if resp.ErrorCode == errCodeAPICodeExpired {
			c.invalidateAPICode()
			continue
		}
		return fmt.Errorf("%w: %s (code %d)", ErrRejected, resp.Message, resp.ErrorCode)
	}
	return fmt.Errorf("%w: session token expired twice in a row", ErrTransient)
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out *apiResponse) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: stockmount API %d: %s", ErrTransient, resp.StatusCode, string(raw))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: stockmount API %d: %s", ErrRejected, resp.StatusCode, string(raw))
	}

	return json.Unmarshal(raw, out)
}
