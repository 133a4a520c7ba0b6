package polymarket

import (
	"testing"

	"github.com/openclaw/polygate/internal/domain"
)

func TestMapExternalStatus(t *testing.T) {
	tests := []struct {
		external string
		want     domain.OrderStatus
	}{
		{"LIVE", domain.OrderStatusOpen},
		{"live", domain.OrderStatusOpen},
		{"UNMATCHED", domain.OrderStatusOpen},
		{"MATCHED", domain.OrderStatusFilled},
		{"FILLED", domain.OrderStatusFilled},
		{"DELAYED", domain.OrderStatusPending},
		{"CANCELED", domain.OrderStatusCancelled},
		{"CANCELLED", domain.OrderStatusCancelled},
		{"EXPIRED", domain.OrderStatusExpired},
		// Unknown statuses stay PENDING so the reconciler keeps polling.
		{"SOMETHING_NEW", domain.OrderStatusPending},
		{"", domain.OrderStatusPending},
	}
	for _, tt := range tests {
		if got := MapExternalStatus(tt.external); got != tt.want {
			t.Errorf("MapExternalStatus(%q) = %s, want %s", tt.external, got, tt.want)
		}
	}
}

func TestMatchedAmount(t *testing.T) {
	tests := []struct {
		sizeMatched string
		want        float64
	}{
		{"12.5", 12.5},
		{"0", 0},
		{"", 0},
		{"not-a-number", 0},
	}
	for _, tt := range tests {
		st := APIOrderStatus{SizeMatched: tt.sizeMatched}
		if got := st.MatchedAmount(); got != tt.want {
			t.Errorf("MatchedAmount(%q) = %v, want %v", tt.sizeMatched, got, tt.want)
		}
	}
}

func TestFillToDomainTrade(t *testing.T) {
	fill := APIFill{
		TransactionHash: "0xabc",
		Asset:           "tok-1",
		ConditionID:     "cond-1",
		Side:            "BUY",
		Size:            20,
		Price:           0.45,
		Timestamp:       1_700_000_000,
	}
	trade := fill.ToDomainTrade()
	if trade.TxHash != "0xabc" || trade.TokenID != "tok-1" {
		t.Errorf("trade identity = %+v", trade)
	}
	if trade.AmountUSD != 9 {
		t.Errorf("AmountUSD = %v, want 9 (size*price)", trade.AmountUSD)
	}
	if trade.Side != domain.OrderSideBuy {
		t.Errorf("Side = %s, want BUY", trade.Side)
	}
	if trade.Timestamp.Unix() != 1_700_000_000 {
		t.Errorf("Timestamp = %v", trade.Timestamp)
	}
}
