package service

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/matchbook/internal/domain"
	"github.com/efreitasn/matchbook/internal/engine"
)

var (
	orderIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	ownerIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:@-]{1,128}$`)
)

// ValidOrderStatuses lists all valid order status values for validation.
var ValidOrderStatuses = map[domain.OrderStatus]bool{
	domain.OrderStatusPending:         true,
	domain.OrderStatusPartiallyFilled: true,
	domain.OrderStatusFilled:          true,
	domain.OrderStatusCancelled:       true,
}

// DefaultBookDepth is the number of levels per side in book events.
const DefaultBookDepth = 10

// SubmitOrderRequest represents the input for order submission.
type SubmitOrderRequest struct {
	ID         string // optional, generated when empty
	Side       domain.Side
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	OwnerID    string
	OwnerLabel string
	CreatedAt  *time.Time // optional, engine clock when nil
}

// ListOrdersRequest represents the input for listing an owner's orders.
type ListOrdersRequest struct {
	OwnerID string
	Status  string
	Page    int
	Limit   int
}

// OrderService is the order ingress: it validates requests, drives the
// engine and publishes the resulting trade and book events.
type OrderService struct {
	engine *engine.Engine
	pub    Publisher
	logger *slog.Logger
}

// NewOrderService creates a new OrderService with the given dependencies.
func NewOrderService(eng *engine.Engine, pub Publisher, logger *slog.Logger) *OrderService {
	return &OrderService{
		engine: eng,
		pub:    pub,
		logger: logger,
	}
}

// SubmitOrder validates the request, rests the order on the book, runs the
// match loop and publishes one trade event per trade plus a book event.
func (s *OrderService) SubmitOrder(req SubmitOrderRequest) (engine.SubmitResult, error) {
	if req.ID != "" && !orderIDRegex.MatchString(req.ID) {
		return engine.SubmitResult{}, domain.Reject(domain.RejectInvalidRequest,
			"id must match ^[a-zA-Z0-9_-]{1,64}$")
	}
	if !ownerIDRegex.MatchString(req.OwnerID) {
		return engine.SubmitResult{}, domain.Reject(domain.RejectInvalidRequest,
			"owner_id must match ^[a-zA-Z0-9_.:@-]{1,128}$")
	}
	if len(req.OwnerLabel) > 256 {
		return engine.SubmitResult{}, domain.Reject(domain.RejectInvalidRequest,
			"owner_label must be at most 256 characters")
	}

	o := domain.Order{
		ID:         req.ID,
		Side:       req.Side,
		Price:      req.Price,
		Quantity:   req.Quantity,
		OwnerID:    req.OwnerID,
		OwnerLabel: req.OwnerLabel,
	}
	if req.CreatedAt != nil {
		o.CreatedAt = *req.CreatedAt
	}

	result, err := s.engine.Submit(o)
	if err != nil {
		return engine.SubmitResult{}, err
	}

	for _, t := range result.Trades {
		s.pub.Publish(SectionMarket, TypeTrade, NewTradeView(t))
	}
	s.publishBook()

	if len(result.Trades) > 0 {
		s.logger.Debug("order matched",
			"order_id", result.Order.ID,
			"trades", len(result.Trades),
			"status", result.Order.Status,
		)
	}
	return result, nil
}

// GetOrder retrieves an order by ID.
func (s *OrderService) GetOrder(orderID string) (domain.Order, error) {
	return s.engine.Order(orderID)
}

// CancelOrder cancels a resting order and publishes the new book.
func (s *OrderService) CancelOrder(orderID string) (domain.Order, error) {
	o, err := s.engine.Cancel(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	s.publishBook()
	return o, nil
}

// ListOrders returns a page of an owner's orders, newest first, and the
// total count before pagination.
func (s *OrderService) ListOrders(req ListOrdersRequest) ([]domain.Order, int, error) {
	if req.OwnerID == "" {
		return nil, 0, domain.Reject(domain.RejectInvalidRequest, "owner_id is required")
	}

	var status *domain.OrderStatus
	if req.Status != "" {
		st := domain.OrderStatus(req.Status)
		if !ValidOrderStatuses[st] {
			return nil, 0, domain.Reject(domain.RejectInvalidRequest, fmt.Sprintf(
				"Unknown status: %s. Must be one of: pending, partially_filled, filled, cancelled", req.Status))
		}
		status = &st
	}

	if req.Page == 0 {
		req.Page = 1
	}
	if req.Page < 1 {
		return nil, 0, domain.Reject(domain.RejectInvalidRequest, "page must be >= 1")
	}
	if req.Limit == 0 {
		req.Limit = 20
	}
	if req.Limit < 1 || req.Limit > 100 {
		return nil, 0, domain.Reject(domain.RejectInvalidRequest, "limit must be between 1 and 100")
	}

	orders, total := s.engine.OrdersByOwner(req.OwnerID, status, req.Page, req.Limit)
	return orders, total, nil
}

func (s *OrderService) publishBook() {
	s.pub.Publish(SectionMarket, TypeBook, NewBookView(s.engine.Instrument(), s.engine.Depth(DefaultBookDepth)))
}
