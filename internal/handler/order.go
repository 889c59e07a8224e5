package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/matchbook/internal/domain"
	"github.com/efreitasn/matchbook/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// submitOrderRequest is the JSON request body for POST /orders. Price and
// quantity accept JSON strings or numbers.
type submitOrderRequest struct {
	ID         string          `json:"id"`
	Side       string          `json:"side"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	OwnerID    string          `json:"owner_id"`
	OwnerLabel string          `json:"owner_label"`
	CreatedAt  *time.Time      `json:"created_at"`
}

// submitOrderResponse is the JSON response for POST /orders.
type submitOrderResponse struct {
	Order  service.OrderView   `json:"order"`
	Trades []service.TradeView `json:"trades"`
}

// listOrdersResponse is the JSON response for GET /orders.
type listOrdersResponse struct {
	Orders []service.OrderView `json:"orders"`
	Total  int                 `json:"total"`
	Page   int                 `json:"page"`
	Limit  int                 `json:"limit"`
}

// SubmitOrder handles POST /orders.
func (h *OrderHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req submitOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	result, err := h.orderSvc.SubmitOrder(service.SubmitOrderRequest{
		ID:         req.ID,
		Side:       domain.Side(req.Side),
		Price:      req.Price,
		Quantity:   req.Quantity,
		OwnerID:    req.OwnerID,
		OwnerLabel: req.OwnerLabel,
		CreatedAt:  req.CreatedAt,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, submitOrderResponse{
		Order:  service.NewOrderView(result.Order),
		Trades: service.NewTradeViews(result.Trades),
	})
}

// GetOrder handles GET /orders/{order_id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.GetOrder(chi.URLParam(r, "order_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, service.NewOrderView(order))
}

// CancelOrder handles DELETE /orders/{order_id}.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderSvc.CancelOrder(chi.URLParam(r, "order_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, service.NewOrderView(order))
}

// ListOrders handles GET /orders?owner_id=&status=&page=&limit=.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		writeServiceError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	req := service.ListOrdersRequest{
		OwnerID: r.URL.Query().Get("owner_id"),
		Status:  r.URL.Query().Get("status"),
		Page:    page,
		Limit:   limit,
	}
	orders, total, err := h.orderSvc.ListOrders(req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	views := make([]service.OrderView, len(orders))
	for i, o := range orders {
		views[i] = service.NewOrderView(o)
	}
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = 20
	}
	WriteJSON(w, http.StatusOK, listOrdersResponse{Orders: views, Total: total, Page: page, Limit: limit})
}
