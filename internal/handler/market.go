package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/matchbook/internal/domain"
	"github.com/efreitasn/matchbook/internal/service"
)

// MarketHandler handles HTTP requests for book and market data endpoints.
type MarketHandler struct {
	marketSvc *service.MarketService
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(marketSvc *service.MarketService) *MarketHandler {
	return &MarketHandler{marketSvc: marketSvc}
}

// bookStatsResponse is the JSON response for GET /book/stats.
type bookStatsResponse struct {
	BuyOrders       int              `json:"buy_orders"`
	SellOrders      int              `json:"sell_orders"`
	BuyQuantity     decimal.Decimal  `json:"buy_quantity"`
	SellQuantity    decimal.Decimal  `json:"sell_quantity"`
	BestBuy         *decimal.Decimal `json:"best_buy"`
	BestSell        *decimal.Decimal `json:"best_sell"`
	Spread          *decimal.Decimal `json:"spread"`
	BuyPriceLevels  int              `json:"buy_price_levels"`
	SellPriceLevels int              `json:"sell_price_levels"`
}

// quoteLevelResponse is a single price level in the quote response.
type quoteLevelResponse struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// quoteResponse is the JSON response for GET /book/quote.
type quoteResponse struct {
	Side              string               `json:"side"`
	QuantityRequested decimal.Decimal      `json:"quantity_requested"`
	QuantityAvailable decimal.Decimal      `json:"quantity_available"`
	FullyFillable     bool                 `json:"fully_fillable"`
	EstimatedAvgPrice *decimal.Decimal     `json:"estimated_average_price"`
	EstimatedTotal    *decimal.Decimal     `json:"estimated_total"`
	PriceLevels       []quoteLevelResponse `json:"price_levels"`
}

// vwapResponse is the JSON response for GET /market/vwap. VWAP is null
// when the window holds no trades.
type vwapResponse struct {
	Window string           `json:"window"`
	VWAP   *decimal.Decimal `json:"vwap"`
}

// GetBook handles GET /book?depth=.
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	depth, err := queryInt(r, "depth")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	book, err := h.marketSvc.Depth(depth)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, book)
}

// GetBookStats handles GET /book/stats.
func (h *MarketHandler) GetBookStats(w http.ResponseWriter, r *http.Request) {
	s := h.marketSvc.BookStats()
	WriteJSON(w, http.StatusOK, bookStatsResponse{
		BuyOrders:       s.BuyOrders,
		SellOrders:      s.SellOrders,
		BuyQuantity:     s.BuyQuantity,
		SellQuantity:    s.SellQuantity,
		BestBuy:         s.BestBuy,
		BestSell:        s.BestSell,
		Spread:          s.Spread,
		BuyPriceLevels:  s.BuyPriceLevels,
		SellPriceLevels: s.SellPriceLevels,
	})
}

// GetQuote handles GET /book/quote?side=&quantity=.
func (h *MarketHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	side := r.URL.Query().Get("side")

	quantity, err := decimal.NewFromString(r.URL.Query().Get("quantity"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, string(domain.RejectInvalidQuantity), "quantity must be a positive decimal")
		return
	}

	quote, err := h.marketSvc.Quote(domain.Side(side), quantity)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	levels := make([]quoteLevelResponse, len(quote.PriceLevels))
	for i, pl := range quote.PriceLevels {
		levels[i] = quoteLevelResponse{Price: pl.Price, Quantity: pl.Quantity}
	}

	WriteJSON(w, http.StatusOK, quoteResponse{
		Side:              side,
		QuantityRequested: quantity,
		QuantityAvailable: quote.QuantityAvailable,
		FullyFillable:     quote.FullyFillable,
		EstimatedAvgPrice: quote.EstimatedAvgPrice,
		EstimatedTotal:    quote.EstimatedTotal,
		PriceLevels:       levels,
	})
}

// GetTrades handles GET /trades?limit=.
func (h *MarketHandler) GetTrades(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	trades, err := h.marketSvc.RecentTrades(limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, service.NewTradeViews(trades))
}

// GetStats handles GET /market/stats.
func (h *MarketHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, service.NewMarketView(h.marketSvc.Snapshot()))
}

// GetVWAP handles GET /market/vwap?window=.
func (h *MarketHandler) GetVWAP(w http.ResponseWriter, r *http.Request) {
	window := service.DefaultVWAPSpan
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, string(domain.RejectInvalidRequest), "window must be a duration such as 30m or 24h")
			return
		}
		window = d
	}

	v, ok, err := h.marketSvc.VWAP(window)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := vwapResponse{Window: window.String()}
	if ok {
		resp.VWAP = &v
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetCandles handles GET /market/candles?interval=&from=&to=.
func (h *MarketHandler) GetCandles(w http.ResponseWriter, r *http.Request) {
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "1m"
	}
	from, err := queryUnixMilli(r, "from")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	to, err := queryUnixMilli(r, "to")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	candles, err := h.marketSvc.Candles(r.Context(), interval, from, to)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, candles)
}
