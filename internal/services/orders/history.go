package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sales-crm/internal/database/models"
	"sales-crm/internal/services/access"
)

// OrderView is an order with its derived total.
type OrderView struct {
	models.Order
	Total decimal.Decimal `json:"total"`
}

func view(o models.Order) OrderView {
	return OrderView{Order: o, Total: o.Total()}
}

func (h *OrderHandler) GetOrder(ctx context.Context, scope access.Scope, id int64) (*OrderView, error) {
	if err := access.Check(scope.Actor()); err != nil {
		return nil, err
	}

	var order models.Order
	err := h.db.WithContext(ctx).Preload("Items.Product").First(&order, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if !scope.CanViewOrder(order) {
		return nil, access.ErrNotVisible
	}

	v := view(order)
	return &v, nil
}

// ListOrders returns the orders visible to the actor, newest first. A client sees its own
// history, an employee the orders of every salesperson in its subtree.
func (h *OrderHandler) ListOrders(ctx context.Context, scope access.Scope) ([]OrderView, error) {
	actor := scope.Actor()
	if err := access.Check(actor); err != nil {
		return nil, err
	}

	q := h.db.WithContext(ctx).Preload("Items.Product").Order(clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: "timestamp"}, Desc: true},
		{Column: clause.Column{Name: "id"}, Desc: true},
	}})
	switch {
	case actor.IsClient():
		q = q.Where("client_id = ?", actor.Client.ID)
	case actor.IsEmployee():
		q = q.Where("salesperson_id IN ?", scope.EmployeeIDs())
	default:
		return nil, access.ErrForbidden
	}

	var orders []models.Order
	if err := q.Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	views := make([]OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, view(o))
	}
	return views, nil
}
