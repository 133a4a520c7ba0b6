package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openclaw/polygate/internal/domain"
	"github.com/openclaw/polygate/internal/platform/polymarket"
)

// MarketCatalog is the read-only market discovery surface.
type MarketCatalog interface {
	ListMarkets(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, error)
	GetMarket(ctx context.Context, id string) (domain.Market, error)
	GetMarketBySlug(ctx context.Context, slug string) (domain.Market, error)
}

// PriceSource serves book and midpoint reads from the exchange.
type PriceSource interface {
	GetBook(ctx context.Context, tokenID string) (polymarket.APIBook, error)
	GetMidPrice(ctx context.Context, tokenID string) (float64, error)
}

// priceStaleAfter bounds how old a cached price may be before the service
// falls through to the exchange.
const priceStaleAfter = 30 * time.Second

// MarketService serves catalog and price reads, fronting the exchange with
// the shared price cache.
type MarketService struct {
	catalog MarketCatalog
	prices  PriceSource
	cache   domain.PriceCache
	logger  *slog.Logger
}

// NewMarketService creates a MarketService.
func NewMarketService(catalog MarketCatalog, prices PriceSource, cache domain.PriceCache, logger *slog.Logger) *MarketService {
	return &MarketService{
		catalog: catalog,
		prices:  prices,
		cache:   cache,
		logger:  logger.With(slog.String("component", "markets")),
	}
}

// ListMarkets returns a filtered catalog page.
func (s *MarketService) ListMarkets(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, error) {
	markets, err := s.catalog.ListMarkets(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service: list markets: %w", err)
	}
	return markets, nil
}

// GetMarket returns one market by id, falling back to a slug lookup when the
// id does not resolve.
func (s *MarketService) GetMarket(ctx context.Context, idOrSlug string) (domain.Market, error) {
	market, err := s.catalog.GetMarket(ctx, idOrSlug)
	if err == nil {
		return market, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.Market{}, fmt.Errorf("service: get market %q: %w", idOrSlug, err)
	}

	market, slugErr := s.catalog.GetMarketBySlug(ctx, idOrSlug)
	if slugErr != nil {
		return domain.Market{}, fmt.Errorf("service: get market %q: %w", idOrSlug, slugErr)
	}
	return market, nil
}

// GetPrice returns the current price of a token, serving from the cache when
// the entry is fresh and refreshing it from the exchange otherwise.
func (s *MarketService) GetPrice(ctx context.Context, tokenID string) (float64, error) {
	price, ts, err := s.cache.GetPrice(ctx, tokenID)
	if err == nil && time.Since(ts) < priceStaleAfter {
		return price, nil
	}
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "price cache read failed",
			slog.String("token_id", tokenID),
			slog.String("error", err.Error()),
		)
	}

	mid, err := s.prices.GetMidPrice(ctx, tokenID)
	if err != nil {
		return 0, fmt.Errorf("service: get price %q: %w", tokenID, err)
	}

	if cacheErr := s.cache.SetPrice(ctx, tokenID, mid, time.Now().UTC()); cacheErr != nil {
		s.logger.WarnContext(ctx, "price cache write failed",
			slog.String("token_id", tokenID),
			slog.String("error", cacheErr.Error()),
		)
	}
	return mid, nil
}

// GetBook returns the current order book snapshot for a token.
func (s *MarketService) GetBook(ctx context.Context, tokenID string) (polymarket.APIBook, error) {
	book, err := s.prices.GetBook(ctx, tokenID)
	if err != nil {
		return polymarket.APIBook{}, fmt.Errorf("service: get book %q: %w", tokenID, err)
	}
	return book, nil
}
