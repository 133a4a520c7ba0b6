package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/openclaw/polygate/internal/domain"
	"github.com/openclaw/polygate/internal/platform/polymarket"
)

// MarketService is the catalog and price surface the API exposes.
type MarketService interface {
	ListMarkets(ctx context.Context, filter domain.MarketFilter) ([]domain.Market, error)
	GetMarket(ctx context.Context, idOrSlug string) (domain.Market, error)
	GetPrice(ctx context.Context, tokenID string) (float64, error)
	GetBook(ctx context.Context, tokenID string) (polymarket.APIBook, error)
}

// MarketHandler serves the market discovery endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

// ListMarkets returns a catalog page.
// GET /api/markets?active=true&closed=false&slug=...&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := parseListOpts(r)

	filter := domain.MarketFilter{
		Slug:   q.Get("slug"),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	if v := q.Get("active"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "active must be true or false")
			return
		}
		filter.Active = &b
	}
	if v := q.Get("closed"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "closed must be true or false")
			return
		}
		filter.Closed = &b
	}

	markets, err := h.markets.ListMarkets(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list markets failed", slog.String("error", err.Error()))
		writeDomainError(w, err, "failed to list markets")
		return
	}
	if markets == nil {
		markets = []domain.Market{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": markets})
}

// GetMarket returns a market by id or slug.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "failed to get market")
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// GetPrice returns the current midpoint price of a token.
// GET /api/price/{token_id}
func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	tokenID := pathParam(r, "token_id")
	if tokenID == "" {
		writeError(w, http.StatusBadRequest, "missing token id")
		return
	}

	price, err := h.markets.GetPrice(r.Context(), tokenID)
	if err != nil {
		writeDomainError(w, err, "failed to get price")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token_id": tokenID,
		"price":    price,
	})
}

// GetBook returns the order book snapshot for a token.
// GET /api/book/{token_id}
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	tokenID := pathParam(r, "token_id")
	if tokenID == "" {
		writeError(w, http.StatusBadRequest, "missing token id")
		return
	}

	book, err := h.markets.GetBook(r.Context(), tokenID)
	if err != nil {
		writeDomainError(w, err, "failed to get book")
		return
	}
	writeJSON(w, http.StatusOK, book)
}
