package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/openclaw/polygate/internal/domain"
)

// APIMarket is the Gamma API's market representation.
type APIMarket struct {
	ID            string     `json:"id"`
	ConditionID   string     `json:"conditionId"`
	Question      string     `json:"question"`
	Slug          string     `json:"slug"`
	Active        bool       `json:"active"`
	Closed        bool       `json:"closed"`
	Volume        string     `json:"volume"`
	Liquidity     string     `json:"liquidity"`
	EndDate       *time.Time `json:"endDate,omitempty"`
	ClobTokenIDs  string     `json:"clobTokenIds"`
	Outcomes      string     `json:"outcomes"`
	OutcomePrices string     `json:"outcomePrices"`
	Tokens        []APIToken `json:"tokens,omitempty"`
}

// APIToken is one outcome token inside an APIMarket.
type APIToken struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
	Winner  bool    `json:"winner"`
}

// ToDomainMarket converts an APIMarket into the gateway's market type. Gamma
// sometimes returns the token list as JSON-encoded strings in clobTokenIds,
// outcomes and outcomePrices; the explicit tokens array takes precedence.
func (m *APIMarket) ToDomainMarket() domain.Market {
	out := domain.Market{
		ID:          m.ID,
		ConditionID: m.ConditionID,
		Question:    m.Question,
		Slug:        m.Slug,
		Active:      m.Active,
		Closed:      m.Closed,
		EndDate:     m.EndDate,
	}
	out.Volume, _ = strconv.ParseFloat(m.Volume, 64)
	out.Liquidity, _ = strconv.ParseFloat(m.Liquidity, 64)

	if len(m.Tokens) > 0 {
		for _, t := range m.Tokens {
			out.Tokens = append(out.Tokens, domain.MarketToken{
				TokenID: t.TokenID,
				Outcome: t.Outcome,
				Price:   t.Price,
			})
		}
		return out
	}

	var ids, outcomes []string
	var prices []string
	_ = json.Unmarshal([]byte(m.ClobTokenIDs), &ids)
	_ = json.Unmarshal([]byte(m.Outcomes), &outcomes)
	_ = json.Unmarshal([]byte(m.OutcomePrices), &prices)
	for i, id := range ids {
		tok := domain.MarketToken{TokenID: id}
		if i < len(outcomes) {
			tok.Outcome = outcomes[i]
		}
		if i < len(prices) {
			tok.Price, _ = strconv.ParseFloat(prices[i], 64)
		}
		out.Tokens = append(out.Tokens, tok)
	}
	return out
}

// APIOrderResult is the CLOB API's response to an order submission.
type APIOrderResult struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}

// APIOrderStatus is the CLOB API's representation of an existing order.
type APIOrderStatus struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
	Side         string `json:"side"`
	AssetID      string `json:"asset_id"`
}

// MatchedAmount returns the matched size as a float.
func (o *APIOrderStatus) MatchedAmount() float64 {
	v, _ := strconv.ParseFloat(o.SizeMatched, 64)
	return v
}

// MapExternalStatus translates a CLOB order status string into the gateway's
// lifecycle status. Unknown strings map to PENDING so the monitor keeps
// polling rather than guessing a terminal state.
func MapExternalStatus(s string) domain.OrderStatus {
	switch strings.ToUpper(s) {
	case "LIVE", "OPEN", "UNMATCHED":
		return domain.OrderStatusOpen
	case "MATCHED", "FILLED":
		return domain.OrderStatusFilled
	case "DELAYED":
		return domain.OrderStatusPending
	case "CANCELED", "CANCELLED":
		return domain.OrderStatusCancelled
	case "EXPIRED":
		return domain.OrderStatusExpired
	default:
		return domain.OrderStatusPending
	}
}

// APIFill is one executed trade as reported by the data API.
type APIFill struct {
	TransactionHash string  `json:"transactionHash"`
	OrderID         string  `json:"orderId"` // exchange order id of the taker order
	Asset           string  `json:"asset"`
	ConditionID     string  `json:"conditionId"`
	Side            string  `json:"side"`
	Size            float64 `json:"size"`
	Price           float64 `json:"price"`
	Timestamp       int64   `json:"timestamp"` // Unix seconds
}

// ToDomainTrade converts a fill into a ledger trade. The fill's notional is
// size times price in USD.
func (f *APIFill) ToDomainTrade() domain.Trade {
	side := domain.OrderSideBuy
	if strings.EqualFold(f.Side, "SELL") {
		side = domain.OrderSideSell
	}
	return domain.Trade{
		TokenID:   f.Asset,
		Side:      side,
		AmountUSD: f.Size * f.Price,
		Price:     f.Price,
		TxHash:    f.TransactionHash,
		Timestamp: time.Unix(f.Timestamp, 0).UTC(),
	}
}

// APIPosition is the data API's position representation.
type APIPosition struct {
	Asset          string  `json:"asset"`
	ConditionID    string  `json:"conditionId"`
	Size           float64 `json:"size"`
	AvgPrice       float64 `json:"avgPrice"`
	CurrentValue   float64 `json:"currentValue"`
	RealizedPnL    float64 `json:"realizedPnl"`
	CashPnL        float64 `json:"cashPnl"`
	PercentPnL     float64 `json:"percentPnl"`
	InitialValue   float64 `json:"initialValue"`
	CurPrice       float64 `json:"curPrice"`
	Redeemable     bool    `json:"redeemable"`
	Title          string  `json:"title"`
	OutcomeIndex   int     `json:"outcomeIndex"`
	Outcome        string  `json:"outcome"`
	EndDate        string  `json:"endDate"`
	NegativeRisk   bool    `json:"negativeRisk"`
	TotalBought    float64 `json:"totalBought"`
	RealizedReturn float64 `json:"realizedReturn"`
}

// ToDomainPosition converts an APIPosition into the gateway's read model.
func (p *APIPosition) ToDomainPosition() domain.Position {
	return domain.Position{
		TokenID:       p.Asset,
		ConditionID:   p.ConditionID,
		Size:          p.Size,
		AvgPrice:      p.AvgPrice,
		CurrentValue:  p.CurrentValue,
		RealizedPnL:   p.RealizedPnL,
		UnrealizedPnL: p.CashPnL,
	}
}

// APIBookLevel is one price level of an order book side.
type APIBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// APIBook is the CLOB order book snapshot for one token.
type APIBook struct {
	AssetID string         `json:"asset_id"`
	Bids    []APIBookLevel `json:"bids"`
	Asks    []APIBookLevel `json:"asks"`
}

// BestBid returns the highest bid price, or 0 when the book is empty.
func (b *APIBook) BestBid() float64 {
	best := 0.0
	for _, l := range b.Bids {
		p, _ := strconv.ParseFloat(l.Price, 64)
		if p > best {
			best = p
		}
	}
	return best
}

// BestAsk returns the lowest ask price, or 0 when the book is empty.
func (b *APIBook) BestAsk() float64 {
	best := 0.0
	for _, l := range b.Asks {
		p, _ := strconv.ParseFloat(l.Price, 64)
		if best == 0 || (p > 0 && p < best) {
			best = p
		}
	}
	return best
}
