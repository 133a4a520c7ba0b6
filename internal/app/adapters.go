package app

import (
	"context"

	"github.com/openclaw/polygate/internal/domain"
	"github.com/openclaw/polygate/internal/platform/polymarket"
)

// clobTrading adapts the CLOB client to the order service's TradingClient
// interface, folding the exchange's status payload into the local status set.
type clobTrading struct {
	clob *polymarket.ClobClient
}

func newClobTrading(clob *polymarket.ClobClient) *clobTrading {
	return &clobTrading{clob: clob}
}

func (t *clobTrading) PostOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error) {
	return t.clob.PostOrder(ctx, order)
}

func (t *clobTrading) CancelOrder(ctx context.Context, externalRef string) (domain.CancelResult, error) {
	return t.clob.CancelOrder(ctx, externalRef)
}

func (t *clobTrading) CancelAll(ctx context.Context) (domain.CancelAllResult, error) {
	return t.clob.CancelAll(ctx)
}

func (t *clobTrading) OrderStatus(ctx context.Context, externalRef string) (domain.OrderStatus, float64, error) {
	status, err := t.clob.GetOrderStatus(ctx, externalRef)
	if err != nil {
		return "", 0, err
	}
	return polymarket.MapExternalStatus(status.Status), status.MatchedAmount(), nil
}

// walletPositions binds the data API's position reads to the gateway wallet
// so the signal flow can query exposure by token id alone.
type walletPositions struct {
	data   *polymarket.DataClient
	wallet string
}

func newWalletPositions(data *polymarket.DataClient, wallet string) *walletPositions {
	return &walletPositions{data: data, wallet: wallet}
}

func (p *walletPositions) PositionValue(ctx context.Context, tokenID string) (float64, error) {
	return p.data.GetPositionValue(ctx, p.wallet, tokenID)
}
