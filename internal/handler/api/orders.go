package api

import (
	"errors"

	"github.com/labstack/echo/v4"

	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	"TradePulse/internal/order"
	"TradePulse/internal/strategy"
	xhttp "TradePulse/pkg/http"
	xlogger "TradePulse/pkg/logger"
)

// SubmitOrderRequest is the POST /api/orders body.
type SubmitOrderRequest struct {
	OrderID    string  `json:"order_id"`
	UserID     string  `json:"user_id" validate:"required"`
	Symbol     string  `json:"symbol" validate:"required"`
	Side       string  `json:"side" validate:"required,oneof=BUY SELL"`
	Type       string  `json:"type" validate:"required,oneof=MARKET LIMIT" default:"LIMIT"`
	Quantity   int64   `json:"quantity" validate:"required,gt=0"`
	LimitPrice float64 `json:"limit_price" validate:"gte=0"`
}

// OrdersHandler exposes order submission and lookup over HTTP.
type OrdersHandler struct {
	logger  *xlogger.Logger
	manager *order.Manager
	runtime *strategy.Runtime
}

// NewOrdersHandler creates the API handler.
func NewOrdersHandler(log *xlogger.Logger, manager *order.Manager, runtime *strategy.Runtime) *OrdersHandler {
	return &OrdersHandler{logger: log.With("api"), manager: manager, runtime: runtime}
}

// RegisterRoutes attaches the API routes.
func (h *OrdersHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/orders", h.Submit)
	g.GET("/orders/:id", h.Get)
	g.POST("/strategies/:id/evaluate", h.Evaluate)
	e.GET("/healthz", h.Health)
}

// Submit accepts a manual order and returns its settled state.
func (h *OrdersHandler) Submit(c echo.Context) error {
	req := &SubmitOrderRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	o, err := h.manager.Submit(c.Request().Context(), order.Request{
		OrderID:    req.OrderID,
		UserID:     req.UserID,
		Symbol:     req.Symbol,
		Side:       models.OrderSide(req.Side),
		Type:       models.OrderType(req.Type),
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
	})
	if err != nil {
		if errors.Is(err, order.ErrDuplicateOrder) {
			return xhttp.ConflictResponse(c, err.Error())
		}
		h.logger.Error("submit order", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, o)
}

// Get returns the current state of an order.
func (h *OrdersHandler) Get(c echo.Context) error {
	id := c.Param("id")
	o, err := h.manager.GetStatus(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			return xhttp.NotFoundResponse(c, err.Error())
		}
		h.logger.Error("get order", xlogger.String("order_id", id), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, o)
}

// Evaluate forces a synchronous evaluation of one strategy instance
// and returns the signals it produced without forwarding them.
func (h *OrdersHandler) Evaluate(c echo.Context) error {
	id := c.Param("id")
	signals, err := h.runtime.Evaluate(id)
	if err != nil {
		return xhttp.NotFoundResponse(c, err.Error())
	}
	return xhttp.ListResponse(c, signals, int64(len(signals)))
}

// Health reports process liveness.
func (h *OrdersHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}
