package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"sales-crm/internal/gateway/middleware"
	"sales-crm/internal/services/access"
	"sales-crm/internal/services/cart"
	"sales-crm/internal/services/orders"
)

const CartIDHeader = "X-Cart-ID"

type OrderHTTPHandler struct {
	orders *orders.OrderHandler
	carts  *cart.CartHandler
	db     *gorm.DB
}

func NewOrderHTTPHandler(orderHandler *orders.OrderHandler, carts *cart.CartHandler, db *gorm.DB) *OrderHTTPHandler {
	return &OrderHTTPHandler{
		orders: orderHandler,
		carts:  carts,
		db:     db,
	}
}

type OrderLineRequest struct {
	ProductID int64            `json:"product_id" binding:"required"`
	Quantity  int64            `json:"quantity" binding:"gte=0"`
	Discount  *decimal.Decimal `json:"discount,omitempty"`
}

type CreateOrderRequest struct {
	ClientID int64              `json:"client_id" binding:"required"`
	Lines    []OrderLineRequest `json:"lines" binding:"required,min=1,dive"`
}

type CartItemRequest struct {
	Quantity int64 `json:"quantity" binding:"gte=0"`
}

// --- Orders ---

// CreateOrder places an order on behalf of one of the signed-in salesperson's clients.
func (h *OrderHTTPHandler) CreateOrder(c *gin.Context) {
	actor := middleware.Actor(c)
	if err := access.Check(actor, access.RequireEmployee()); err != nil {
		respondError(c, err)
		return
	}

	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	lines := make([]orders.LineItem, 0, len(req.Lines))
	for _, l := range req.Lines {
		line := orders.LineItem{ProductID: l.ProductID, Quantity: l.Quantity}
		if l.Discount != nil {
			line.Discount = *l.Discount
		}
		lines = append(lines, line)
	}

	order, err := h.orders.PlaceOrder(c.Request.Context(), orders.PlaceOrderRequest{
		ClientID:      req.ClientID,
		SalespersonID: actor.Employee.ID,
		Lines:         lines,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("order placed successfully", orders.OrderView{Order: *order, Total: order.Total()}))
}

func (h *OrderHTTPHandler) ListOrders(c *gin.Context) {
	s, ok := scope(c, h.db, middleware.Actor(c))
	if !ok {
		return
	}
	list, err := h.orders.ListOrders(c.Request.Context(), s)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("orders retrieved successfully", list))
}

func (h *OrderHTTPHandler) GetOrder(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	s, ok := scope(c, h.db, middleware.Actor(c))
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(c.Request.Context(), s, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("order retrieved successfully", order))
}

// --- Cart ---

// cartID reads the visitor's cart id, minting one when create is set and none was sent.
func cartID(c *gin.Context, create bool) string {
	id := c.GetHeader(CartIDHeader)
	if id == "" && create {
		id = cart.NewCartID()
	}
	if id != "" {
		c.Header(CartIDHeader, id)
	}
	return id
}

func (h *OrderHTTPHandler) ViewCart(c *gin.Context) {
	id := cartID(c, true)
	view, err := h.carts.View(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("cart retrieved successfully", view))
}

func (h *OrderHTTPHandler) SetCartItem(c *gin.Context) {
	productID, ok := parseID(c, "product_id")
	if !ok {
		return
	}
	var req CartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}

	id := cartID(c, true)
	ctx := c.Request.Context()
	if err := h.carts.SetItem(ctx, id, productID, req.Quantity); err != nil {
		respondError(c, err)
		return
	}
	view, err := h.carts.View(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("cart updated", view))
}

func (h *OrderHTTPHandler) RemoveCartItem(c *gin.Context) {
	productID, ok := parseID(c, "product_id")
	if !ok {
		return
	}
	id := cartID(c, false)
	ctx := c.Request.Context()
	if err := h.carts.RemoveItem(ctx, id, productID); err != nil {
		respondError(c, err)
		return
	}
	view, err := h.carts.View(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("cart updated", view))
}

func (h *OrderHTTPHandler) Checkout(c *gin.Context) {
	order, err := h.carts.Checkout(c.Request.Context(), middleware.Actor(c), cartID(c, false))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("order placed successfully", orders.OrderView{Order: *order, Total: order.Total()}))
}
