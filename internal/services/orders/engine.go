// Package orders places client orders and serves order history.
package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sales-crm/internal/database/models"
	"sales-crm/internal/logger"
	"sales-crm/internal/services/catalog"
	"sales-crm/internal/services/events"
)

var (
	ErrDiscountExceeded      = errors.New("discount exceeds the salesperson's maximum")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrInvalidProduct        = errors.New("invalid product")
	ErrEmptyOrder            = errors.New("at least one item required")
	ErrUnauthorized          = errors.New("client is not assigned to this salesperson")
	ErrPersistence           = errors.New("order could not be saved")
	ErrInvalidLine           = errors.New("invalid order line")
	ErrOrderNotFound         = errors.New("order not found")
)

var hundred = decimal.NewFromInt(100)

type LineItem struct {
	ProductID int64
	Quantity  int64
	// Discount is a percentage of the effective price, 0-100.
	Discount decimal.Decimal
}

type PlaceOrderRequest struct {
	ClientID      int64
	SalespersonID int64
	Lines         []LineItem
}

type OrderHandler struct {
	db     *gorm.DB
	events events.Publisher
}

func NewOrderHandler(db *gorm.DB, publisher events.Publisher) *OrderHandler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &OrderHandler{db: db, events: publisher}
}

func validateLines(lines []LineItem) error {
	for i, line := range lines {
		if line.Quantity < 0 {
			return fmt.Errorf("%w: line %d has a negative quantity", ErrInvalidLine, i+1)
		}
		if line.Discount.IsNegative() || line.Discount.GreaterThan(hundred) {
			return fmt.Errorf("%w: line %d discount must be between 0 and 100", ErrInvalidLine, i+1)
		}
	}
	dup := lo.FindDuplicatesBy(lines, func(l LineItem) int64 { return l.ProductID })
	if len(dup) > 0 {
		return fmt.Errorf("%w: product %d appears more than once", ErrInvalidLine, dup[0].ProductID)
	}
	return nil
}

// PlaceOrder validates every line and commits the order, its items and the inventory
// decrements in a single transaction. Any failure leaves the store untouched.
func (h *OrderHandler) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*models.Order, error) {
	log := logger.FromContext(ctx).With(
		zap.Int64("client_id", req.ClientID),
		zap.Int64("salesperson_id", req.SalespersonID))

	if err := validateLines(req.Lines); err != nil {
		rejected(log, err)
		return nil, err
	}

	salesperson, err := h.ownership(ctx, req.ClientID, req.SalespersonID)
	if err != nil {
		rejected(log, err)
		return nil, err
	}

	tx := h.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		err := fmt.Errorf("%w: %w", ErrPersistence, tx.Error)
		rejected(log, err)
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	fail := func(err error) (*models.Order, error) {
		tx.Rollback()
		rejected(log, err)
		return nil, err
	}

	order := models.Order{
		Timestamp:     time.Now().UTC(),
		ClientID:      req.ClientID,
		SalespersonID: req.SalespersonID,
	}
	commission := decimal.Zero
	commissionRate := salesperson.Commission.Div(hundred)

	for _, line := range req.Lines {
		if line.Quantity == 0 {
			continue
		}

		if line.Discount.GreaterThan(salesperson.MaxDiscount) {
			return fail(fmt.Errorf("%w: %s%% requested, %s%% allowed", ErrDiscountExceeded,
				line.Discount.String(), salesperson.MaxDiscount.String()))
		}

		product, err := lockProduct(tx, line.ProductID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(fmt.Errorf("%w: product %d does not exist", ErrInvalidProduct, line.ProductID))
		}
		if err != nil {
			return fail(fmt.Errorf("%w: %w", ErrPersistence, err))
		}
		if !product.Active {
			return fail(fmt.Errorf("%w: %s is no longer sold", ErrInvalidProduct, product.Name))
		}
		if line.Quantity > product.Quantity {
			return fail(fmt.Errorf("%w: %d of %s requested, %d available", ErrInsufficientInventory,
				line.Quantity, product.Name, product.Quantity))
		}

		factor := decimal.NewFromInt(1).Sub(line.Discount.Div(hundred))
		charged := catalog.EffectivePrice(product, product.Promotion).Mul(factor).Round(2)

		// guarded decrement: a concurrent order that got there first leaves zero rows
		res := tx.Model(&models.Product{}).
			Where("id = ? AND quantity >= ?", product.ID, line.Quantity).
			UpdateColumn("quantity", gorm.Expr("quantity - ?", line.Quantity))
		if res.Error != nil {
			return fail(fmt.Errorf("%w: %w", ErrPersistence, res.Error))
		}
		if res.RowsAffected == 0 {
			return fail(fmt.Errorf("%w: %s sold out", ErrInsufficientInventory, product.Name))
		}

		order.Items = append(order.Items, models.OrderItem{
			ProductID: product.ID,
			Price:     charged,
			Quantity:  line.Quantity,
		})

		// TODO: confirm with sales ops whether commission should scale with quantity;
		// it currently accrues on the unit price only.
		commission = commission.Add(commissionRate.Mul(factor).Mul(charged))
	}

	if len(order.Items) == 0 {
		return fail(ErrEmptyOrder)
	}

	order.Commission = commission.Round(2)
	if err := tx.Create(&order).Error; err != nil {
		return fail(fmt.Errorf("%w: %w", ErrPersistence, err))
	}

	if err := tx.Commit().Error; err != nil {
		err = fmt.Errorf("%w: %w", ErrPersistence, err)
		rejected(log, err)
		return nil, err
	}

	ordersPlaced.Inc()
	log.Info("order placed",
		zap.Int64("order_id", order.ID),
		zap.Int("items", len(order.Items)),
		zap.String("total", order.Total().StringFixed(2)),
		zap.String("commission", order.Commission.StringFixed(2)))

	if err := h.events.PublishOrderEvent(ctx, events.OrderEvent{
		EventType:     events.EventOrderCreated,
		OrderID:       order.ID,
		ClientID:      order.ClientID,
		SalespersonID: order.SalespersonID,
		TotalAmount:   order.Total().StringFixed(2),
		Commission:    order.Commission.StringFixed(2),
		Timestamp:     order.Timestamp,
	}); err != nil {
		log.Warn("order event not published", zap.Int64("order_id", order.ID), zap.Error(err))
	}

	return &order, nil
}

// ownership loads the submitting salesperson and checks the client is assigned to them.
func (h *OrderHandler) ownership(ctx context.Context, clientID, salespersonID int64) (models.EmployeeProfile, error) {
	var salesperson models.EmployeeProfile
	err := h.db.WithContext(ctx).
		Joins("JOIN accounts ON accounts.id = employee_profiles.account_id AND accounts.active = ?", true).
		Where("employee_profiles.id = ? AND employee_profiles.title = ?", salespersonID, models.TitleSalesperson).
		First(&salesperson).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return salesperson, ErrUnauthorized
	}
	if err != nil {
		return salesperson, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	var client models.ClientProfile
	err = h.db.WithContext(ctx).
		Joins("JOIN accounts ON accounts.id = client_profiles.account_id AND accounts.active = ?", true).
		Where("client_profiles.id = ?", clientID).
		First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return salesperson, ErrUnauthorized
	}
	if err != nil {
		return salesperson, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if client.SalespersonID != salesperson.ID {
		return salesperson, ErrUnauthorized
	}
	return salesperson, nil
}

// lockProduct reads a product and its promotion inside tx, taking a row lock where the
// database supports one.
func lockProduct(tx *gorm.DB, id int64) (models.Product, error) {
	var product models.Product
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "products"}})
	}
	if err := q.First(&product, id).Error; err != nil {
		return product, err
	}

	var promotion models.Promotion
	err := tx.Where("product_id = ?", id).First(&promotion).Error
	switch {
	case err == nil:
		product.Promotion = &promotion
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return product, err
	}
	return product, nil
}

func rejected(log *zap.Logger, err error) {
	reason := "other"
	for _, known := range []struct {
		err    error
		reason string
	}{
		{ErrDiscountExceeded, "discount_exceeded"},
		{ErrInsufficientInventory, "insufficient_inventory"},
		{ErrInvalidProduct, "invalid_product"},
		{ErrEmptyOrder, "empty_order"},
		{ErrUnauthorized, "unauthorized"},
		{ErrInvalidLine, "invalid_line"},
		{ErrPersistence, "persistence"},
	} {
		if errors.Is(err, known.err) {
			reason = known.reason
			break
		}
	}
	ordersRejected.WithLabelValues(reason).Inc()

	if reason == "persistence" || reason == "other" {
		log.Error("order failed", zap.Error(err))
		return
	}
	log.Info("order rejected", zap.String("reason", reason), zap.Error(err))
}
