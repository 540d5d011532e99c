package orders

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"sales-crm/internal/database/models"
	"sales-crm/internal/services/access"
	"sales-crm/internal/services/hierarchy"
)

const dashboardSize = 3

type ReportSales struct {
	Employee models.EmployeeProfile `json:"employee"`
	Username string                 `json:"username"`
	Total    decimal.Decimal        `json:"total"`
}

type Dashboard struct {
	Reports []ReportSales `json:"reports"`
	Top     []ReportSales `json:"top"`
	Bottom  []ReportSales `json:"bottom"`
}

var canViewDashboard = access.RequireEmployee(models.TitleDirector, models.TitleManager)

// ManagerDashboard ranks the actor's direct reports by the sales of their whole subtree.
func (h *OrderHandler) ManagerDashboard(ctx context.Context, scope access.Scope) (*Dashboard, error) {
	actor := scope.Actor()
	if err := access.Check(actor, canViewDashboard); err != nil {
		return nil, err
	}

	type row struct {
		SalespersonID int64
		Total         decimal.Decimal
	}
	var rows []row
	err := h.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Select("orders.salesperson_id AS salesperson_id, SUM(order_items.price * order_items.quantity) AS total").
		Joins("JOIN orders ON orders.id = order_items.order_id").
		Where("orders.salesperson_id IN ?", scope.EmployeeIDs()).
		Group("orders.salesperson_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	sales := lo.SliceToMap(rows, func(r row) (int64, decimal.Decimal) {
		return r.SalespersonID, r.Total
	})

	tree := scope.Tree()
	reports := tree.DirectReports(actor.Employee.ID)
	usernames, err := h.usernames(ctx, reports)
	if err != nil {
		return nil, err
	}

	ranked := make([]ReportSales, 0, len(reports))
	for _, r := range reports {
		total := decimal.Sum(decimal.Zero, hierarchy.Flatten(tree, r.ID, func(e models.EmployeeProfile) []decimal.Decimal {
			return []decimal.Decimal{sales[e.ID]}
		})...)
		ranked = append(ranked, ReportSales{Employee: r, Username: usernames[r.AccountID], Total: total.Round(2)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Total.LessThan(ranked[j].Total)
	})

	return &Dashboard{
		Reports: ranked,
		Top:     lo.Reverse(append([]ReportSales(nil), lo.Subset(ranked, -dashboardSize, dashboardSize)...)),
		Bottom:  append([]ReportSales(nil), lo.Subset(ranked, 0, dashboardSize)...),
	}, nil
}

func (h *OrderHandler) usernames(ctx context.Context, employees []models.EmployeeProfile) (map[int64]string, error) {
	if len(employees) == 0 {
		return map[int64]string{}, nil
	}
	var accounts []models.Account
	ids := lo.Map(employees, func(e models.EmployeeProfile, _ int) int64 { return e.AccountID })
	if err := h.db.WithContext(ctx).Where("id IN ?", ids).Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return lo.SliceToMap(accounts, func(a models.Account) (int64, string) {
		return a.ID, a.Username
	}), nil
}
