// Package cart keeps anonymous shopping carts in Redis and turns them into orders.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sales-crm/internal/database/models"
	"sales-crm/internal/logger"
	"sales-crm/internal/services/access"
	"sales-crm/internal/services/catalog"
	"sales-crm/internal/services/orders"
)

const (
	CART_CACHE_PREFIX = "cart:"
	CART_TTL          = 7 * 24 * time.Hour
)

var (
	ErrInvalidCart     = errors.New("invalid cart id")
	ErrInvalidQuantity = errors.New("quantity must not be negative")
	ErrEmptyCart       = errors.New("cart is empty")
)

type CartHandler struct {
	redis  *redis.Client
	db     *gorm.DB
	orders *orders.OrderHandler
}

func NewCartHandler(redisClient *redis.Client, db *gorm.DB, orderHandler *orders.OrderHandler) *CartHandler {
	return &CartHandler{redis: redisClient, db: db, orders: orderHandler}
}

// NewCartID returns a fresh identifier for a visitor without one.
func NewCartID() string {
	return uuid.NewString()
}

func key(cartID string) (string, error) {
	if _, err := uuid.Parse(cartID); err != nil {
		return "", ErrInvalidCart
	}
	return CART_CACHE_PREFIX + cartID, nil
}

// SetItem sets the quantity of a product in the cart; zero removes the line.
func (h *CartHandler) SetItem(ctx context.Context, cartID string, productID, quantity int64) error {
	k, err := key(cartID)
	if err != nil {
		return err
	}
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	if quantity == 0 {
		return h.RemoveItem(ctx, cartID, productID)
	}

	_, product, err := catalog.Price(ctx, h.db, productID)
	if err != nil {
		return err
	}
	if !product.Active {
		return catalog.ErrInvalidProduct
	}

	pipe := h.redis.TxPipeline()
	pipe.HSet(ctx, k, strconv.FormatInt(productID, 10), quantity)
	pipe.Expire(ctx, k, CART_TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update cart: %w", err)
	}
	return nil
}

func (h *CartHandler) RemoveItem(ctx context.Context, cartID string, productID int64) error {
	k, err := key(cartID)
	if err != nil {
		return err
	}
	if err := h.redis.HDel(ctx, k, strconv.FormatInt(productID, 10)).Err(); err != nil {
		return fmt.Errorf("update cart: %w", err)
	}
	return nil
}

func (h *CartHandler) Clear(ctx context.Context, cartID string) error {
	k, err := key(cartID)
	if err != nil {
		return err
	}
	return h.redis.Del(ctx, k).Err()
}

// items reads the raw product -> quantity map, ordered by product id.
func (h *CartHandler) items(ctx context.Context, cartID string) ([]orders.LineItem, error) {
	k, err := key(cartID)
	if err != nil {
		return nil, err
	}
	raw, err := h.redis.HGetAll(ctx, k).Result()
	if err != nil {
		return nil, fmt.Errorf("read cart: %w", err)
	}

	lines := make([]orders.LineItem, 0, len(raw))
	for field, value := range raw {
		productID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		qty, err := strconv.ParseInt(value, 10, 64)
		if err != nil || qty <= 0 {
			continue
		}
		lines = append(lines, orders.LineItem{ProductID: productID, Quantity: qty})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines, nil
}

type Line struct {
	Product   models.Product  `json:"product"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int64           `json:"quantity"`
	LineTotal decimal.Decimal `json:"line_total"`
}

type View struct {
	CartID string          `json:"cart_id"`
	Lines  []Line          `json:"lines"`
	Total  decimal.Decimal `json:"total"`
}

// View prices the cart at current effective prices. Products that no longer exist are
// left out.
func (h *CartHandler) View(ctx context.Context, cartID string) (*View, error) {
	items, err := h.items(ctx, cartID)
	if err != nil {
		return nil, err
	}

	v := &View{CartID: cartID, Lines: make([]Line, 0, len(items)), Total: decimal.Zero}
	for _, item := range items {
		price, product, err := catalog.Price(ctx, h.db, item.ProductID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		line := Line{
			Product:   product,
			UnitPrice: price,
			Quantity:  item.Quantity,
			LineTotal: price.Mul(decimal.NewFromInt(item.Quantity)),
		}
		v.Lines = append(v.Lines, line)
		v.Total = v.Total.Add(line.LineTotal)
	}
	return v, nil
}

// Checkout places the cart as an order for the signed-in client through its assigned
// salesperson, without discount, and empties the cart on success.
func (h *CartHandler) Checkout(ctx context.Context, actor access.Actor, cartID string) (*models.Order, error) {
	if err := access.Check(actor, access.RequireClient()); err != nil {
		return nil, err
	}
	items, err := h.items(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}

	order, err := h.orders.PlaceOrder(ctx, orders.PlaceOrderRequest{
		ClientID:      actor.Client.ID,
		SalespersonID: actor.Client.SalespersonID,
		Lines:         items,
	})
	if err != nil {
		return nil, err
	}

	if err := h.Clear(ctx, cartID); err != nil {
		logger.FromContext(ctx).Warn("cart not cleared after checkout",
			zap.String("cart_id", cartID), zap.Int64("order_id", order.ID), zap.Error(err))
	}
	return order, nil
}
