package stockmount

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubAPI struct {
	loginCalls  int
	orderCalls  int
	loginCode   string
	orderReply  func(calls int) apiResponse
	lastApiCode string
}

func newStubServer(t *testing.T, api *stubAPI) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/Customer/GetApiCode":
			api.loginCalls++
			json.NewEncoder(w).Encode(apiResponse{ApiCode: api.loginCode})
		case "/api/Order/SetOrder":
			api.orderCalls++
			var payload struct {
				ApiCode string `json:"ApiCode"`
			}
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				t.Errorf("bad order payload: %v", err)
			}
			api.lastApiCode = payload.ApiCode
			json.NewEncoder(w).Encode(api.orderReply(api.orderCalls))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
}

func testClient(url string) *Client {
	return NewClient(Config{BaseURL: url, Username: "u", Password: "p"})
}

func TestSubmitOrderCachesApiCode(t *testing.T) {
	api := &stubAPI{
		loginCode:  "code-1",
		orderReply: func(int) apiResponse { return apiResponse{} },
	}
	srv := newStubServer(t, api)
	defer srv.Close()

	client := testClient(srv.URL)
	ctx := context.Background()

	assert.NoError(t, client.SubmitOrder(ctx, &ExportOrder{Code: "O1"}))
	assert.NoError(t, client.SubmitOrder(ctx, &ExportOrder{Code: "O2"}))

	// One login serves both submissions.
	assert.Equal(t, 1, api.loginCalls)
	assert.Equal(t, 2, api.orderCalls)
	assert.Equal(t, "code-1", api.lastApiCode)
}

func TestSubmitOrderRefreshesExpiredApiCode(t *testing.T) {
	api := &stubAPI{
		loginCode: "code-1",
		orderReply: func(calls int) apiResponse {
			if calls == 1 {
				return apiResponse{IsError: true, ErrorCode: errCodeAPICodeExpired, Message: "expired"}
			}
			return apiResponse{}
		},
	}
	srv := newStubServer(t, api)
	defer srv.Close()

	client := testClient(srv.URL)
	assert.NoError(t, client.SubmitOrder(context.Background(), &ExportOrder{Code: "O1"}))

	// First attempt hit the expired code, second logged in again.
	assert.Equal(t, 2, api.loginCalls)
	assert.Equal(t, 2, api.orderCalls)
}

func TestSubmitOrderRejected(t *testing.T) {
	api := &stubAPI{
		loginCode: "code-1",
		orderReply: func(int) apiResponse {
			return apiResponse{IsError: true, ErrorCode: 17, Message: "invalid product"}
		},
	}
	srv := newStubServer(t, api)
	defer srv.Close()

	client := testClient(srv.URL)
	err := client.SubmitOrder(context.Background(), &ExportOrder{Code: "O1"})
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "invalid product")
	assert.Equal(t, 1, api.orderCalls)
}

func TestSubmitOrderServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := testClient(srv.URL)
	err := client.SubmitOrder(context.Background(), &ExportOrder{Code: "O1"})
	assert.ErrorIs(t, err, ErrTransient)
}

func TestSubmitOrderNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := testClient(srv.URL)
	err := client.SubmitOrder(context.Background(), &ExportOrder{Code: "O1"})
	assert.ErrorIs(t, err, ErrTransient)
}

func TestLoadConfigRequiresAllFields(t *testing.T) {
	t.Setenv("STOCKMOUNT_API_URL", "http://localhost:9999")
	t.Setenv("STOCKMOUNT_USERNAME", "u")
	t.Setenv("STOCKMOUNT_PASSWORD", "")

	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("STOCKMOUNT_PASSWORD", "p")
	cfg, err := LoadConfig()
	assert.NoError(t, err)
	assert.Equal(t, "u", cfg.Username)
}
