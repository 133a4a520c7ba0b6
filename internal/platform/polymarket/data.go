package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/openclaw/polygate/internal/domain"
)

// DataClient is the REST client for the Polymarket Data API, which serves
// per-wallet fills and positions. The fill monitor polls it to pick up
// executions the gateway did not observe directly.
type DataClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDataClient creates a new Data API client.
//
// baseURL is the Data API root, e.g. "https://data-api.polymarket.com".
func NewDataClient(baseURL string) *DataClient {
	return &DataClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetFills returns recent executed trades for a wallet, newest first.
func (d *DataClient) GetFills(ctx context.Context, wallet string, limit int) ([]APIFill, error) {
	if limit <= 0 {
		limit = 100
	}
	params := url.Values{}
	params.Set("user", wallet)
	params.Set("limit", strconv.Itoa(limit))

	body, err := d.doGet(ctx, "/trades?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: get fills: %w", err)
	}

	var fills []APIFill
	if err := json.Unmarshal(body, &fills); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode fills: %w", err)
	}
	return fills, nil
}

// GetPositions returns the wallet's current outcome-token positions.
func (d *DataClient) GetPositions(ctx context.Context, wallet string) ([]domain.Position, error) {
	params := url.Values{}
	params.Set("user", wallet)

	body, err := d.doGet(ctx, "/positions?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/data: get positions: %w", err)
	}

	var apiPositions []APIPosition
	if err := json.Unmarshal(body, &apiPositions); err != nil {
		return nil, fmt.Errorf("polymarket/data: decode positions: %w", err)
	}

	positions := make([]domain.Position, 0, len(apiPositions))
	for i := range apiPositions {
		positions = append(positions, apiPositions[i].ToDomainPosition())
	}
	return positions, nil
}

// GetPositionValue returns the current USD value of the wallet's position in
// one token, or 0 when the wallet holds none.
func (d *DataClient) GetPositionValue(ctx context.Context, wallet, tokenID string) (float64, error) {
	positions, err := d.GetPositions(ctx, wallet)
	if err != nil {
		return 0, err
	}
	for _, p := range positions {
		if p.TokenID == tokenID {
			return p.CurrentValue, nil
		}
	}
	return 0, nil
}

func (d *DataClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}
