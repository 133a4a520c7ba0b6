// Package polymarket contains the REST clients for the Polymarket CLOB,
// Gamma, and Data APIs.
package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/openclaw/polygate/internal/crypto"
	"github.com/openclaw/polygate/internal/domain"
)

// ClobClient is the REST client for the Polymarket CLOB (Central Limit
// Order Book) API. It handles order placement, cancellation, status queries
// and price lookups.
type ClobClient struct {
	baseURL    string
	address    string
	httpClient *http.Client
	hmacAuth   *crypto.HMACAuth
}

// NewClobClient creates a new CLOB REST client.
//
// baseURL is the CLOB API root, e.g. "https://clob.polymarket.com".
// address is the gateway wallet address sent in POLY_ADDRESS.
// auth carries the HMAC API credentials; nil disables request signing.
func NewClobClient(baseURL, address string, auth *crypto.HMACAuth) *ClobClient {
	return &ClobClient{
		baseURL: baseURL,
		address: address,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		hmacAuth: auth,
	}
}

// PostOrder submits an order to the CLOB API and returns the normalized
// result. The error return covers transport and decode failures only; an
// exchange-side rejection comes back as Success=false with no error so the
// caller can persist the rejection verbatim.
func (c *ClobClient) PostOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error) {
	payload := map[string]any{
		"tokenID":   order.TokenID,
		"side":      string(order.Side),
		"size":      strconv.FormatFloat(order.AmountUSD, 'f', -1, 64),
		"orderType": string(order.Type),
		"nonce":     order.Nonce,
	}
	if order.Price != nil {
		payload["price"] = strconv.FormatFloat(*order.Price, 'f', -1, 64)
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", payload)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var apiResult APIOrderResult
	if err := json.Unmarshal(respBody, &apiResult); err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}

	result := domain.OrderResult{
		Success:  apiResult.Success,
		OrderID:  apiResult.OrderID,
		ErrorMsg: apiResult.ErrorMsg,
		Raw:      respBody,
	}
	if apiResult.Success {
		result.Status = MapExternalStatus(apiResult.Status)
		if result.Status == domain.OrderStatusPending {
			result.Status = domain.OrderStatusOpen
		}
	} else {
		result.Status = domain.OrderStatusFailed
	}
	return result, nil
}

// CancelOrder cancels a single order by its exchange-assigned id.
func (c *ClobClient) CancelOrder(ctx context.Context, externalRef string) (domain.CancelResult, error) {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, "/order",
		map[string]any{"orderID": externalRef})
	if err != nil {
		return domain.CancelResult{}, fmt.Errorf("polymarket/clob: cancel order %s: %w", externalRef, err)
	}

	var result struct {
		Success  bool   `json:"success"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return domain.CancelResult{}, fmt.Errorf("polymarket/clob: decode cancel response: %w", err)
	}

	return domain.CancelResult{
		Success:  result.Success,
		OrderID:  externalRef,
		ErrorMsg: result.ErrorMsg,
	}, nil
}

// CancelAll cancels every open order for the authenticated wallet.
func (c *ClobClient) CancelAll(ctx context.Context) (domain.CancelAllResult, error) {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodDelete, "/cancel-all", nil)
	if err != nil {
		return domain.CancelAllResult{}, fmt.Errorf("polymarket/clob: cancel all: %w", err)
	}

	var result struct {
		Success  bool   `json:"success"`
		ErrorMsg string `json:"errorMsg"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return domain.CancelAllResult{}, fmt.Errorf("polymarket/clob: decode cancel-all response: %w", err)
	}

	return domain.CancelAllResult{
		Success:  result.Success,
		ErrorMsg: result.ErrorMsg,
		Raw:      respBody,
	}, nil
}

// GetOrderStatus retrieves the current state of an order by its
// exchange-assigned id.
func (c *ClobClient) GetOrderStatus(ctx context.Context, externalRef string) (APIOrderStatus, error) {
	path := "/data/order/" + url.PathEscape(externalRef)

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return APIOrderStatus{}, fmt.Errorf("polymarket/clob: get order %s: %w", externalRef, err)
	}

	var status APIOrderStatus
	if err := json.Unmarshal(respBody, &status); err != nil {
		return APIOrderStatus{}, fmt.Errorf("polymarket/clob: decode order status: %w", err)
	}
	return status, nil
}

// GetBook fetches the current order book for a token.
func (c *ClobClient) GetBook(ctx context.Context, tokenID string) (APIBook, error) {
	path := "/book?token_id=" + url.QueryEscape(tokenID)

	respBody, err := c.doGet(ctx, path)
	if err != nil {
		return APIBook{}, fmt.Errorf("polymarket/clob: get book %s: %w", tokenID, err)
	}

	var book APIBook
	if err := json.Unmarshal(respBody, &book); err != nil {
		return APIBook{}, fmt.Errorf("polymarket/clob: decode book: %w", err)
	}
	return book, nil
}

// GetMidPrice returns the midpoint price for a token.
func (c *ClobClient) GetMidPrice(ctx context.Context, tokenID string) (float64, error) {
	path := "/midpoint?token_id=" + url.QueryEscape(tokenID)

	respBody, err := c.doGet(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: get midpoint %s: %w", tokenID, err)
	}

	var resp struct {
		Mid string `json:"mid"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode midpoint: %w", err)
	}
	mid, err := strconv.ParseFloat(resp.Mid, 64)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: parse midpoint %q: %w", resp.Mid, err)
	}
	return mid, nil
}

// GetPrice returns the best price on one side of a token's book.
func (c *ClobClient) GetPrice(ctx context.Context, tokenID string, side domain.OrderSide) (float64, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)
	params.Set("side", string(side))

	respBody, err := c.doGet(ctx, "/price?"+params.Encode())
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: get price %s: %w", tokenID, err)
	}

	var resp struct {
		Price string `json:"price"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode price: %w", err)
	}
	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: parse price %q: %w", resp.Price, err)
	}
	return price, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doAuthenticatedRequest builds, signs (HMAC), sends, and reads an HTTP
// request against the CLOB API. It returns the raw response body.
func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.hmacAuth != nil {
		for k, v := range c.hmacAuth.L2Headers(c.address, method, path, bodyStr) {
			req.Header.Set(k, v)
		}
	}

	return c.send(req)
}

// doGet sends an unauthenticated GET request against the CLOB API.
func (c *ClobClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.send(req)
}

func (c *ClobClient) send(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
