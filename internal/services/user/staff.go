package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sales-crm/internal/database/models"
	"sales-crm/internal/logger"
	"sales-crm/internal/services/access"
)

var hundred = decimal.NewFromInt(100)

// canManageStaff guards employee and client administration.
var canManageStaff = access.RequireEmployee(models.TitleDirector, models.TitleManager)

type AddEmployeeRequest struct {
	Username    string
	Credentials Credentials
	Title       models.Title
	ManagedBy   *int64
	Commission  decimal.Decimal
	MaxDiscount decimal.Decimal
}

func validatePercent(field string, v decimal.Decimal) error {
	if v.IsNegative() || v.GreaterThan(hundred) {
		return fmt.Errorf("%w: %s must be between 0 and 100", ErrInvalidInput, field)
	}
	return nil
}

// managerInScope resolves a prospective manager, which must sit inside the actor's subtree.
func managerInScope(scope access.Scope, managedBy *int64) (*models.EmployeeProfile, error) {
	if managedBy == nil {
		return nil, nil
	}
	if !scope.IncludesEmployee(*managedBy) {
		return nil, fmt.Errorf("%w: manager %d is outside your organisation", access.ErrForbidden, *managedBy)
	}
	m, ok := scope.Tree().Get(*managedBy)
	if !ok {
		return nil, fmt.Errorf("%w: manager %d does not exist", ErrInvalidInput, *managedBy)
	}
	return &m, nil
}

// AddEmployee creates an account with an employee profile under a manager the actor
// controls. Directors are only ever bootstrapped, never added here.
func (h *UserHandler) AddEmployee(ctx context.Context, scope access.Scope, req AddEmployeeRequest) (*models.EmployeeProfile, error) {
	actor := scope.Actor()
	if err := access.Check(actor, canManageStaff); err != nil {
		return nil, err
	}
	if req.ManagedBy == nil {
		return nil, fmt.Errorf("%w: new employees must report to someone in your organisation", access.ErrForbidden)
	}
	manager, err := managerInScope(scope, req.ManagedBy)
	if err != nil {
		return nil, err
	}
	if err := access.ValidateManager(req.Title, manager); err != nil {
		return nil, err
	}
	if err := validatePercent("commission", req.Commission); err != nil {
		return nil, err
	}
	if err := validatePercent("max_discount", req.MaxDiscount); err != nil {
		return nil, err
	}

	var profile models.EmployeeProfile
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := h.newAccount(tx, req.Username, req.Credentials, true)
		if err != nil {
			return err
		}
		profile = models.EmployeeProfile{
			AccountID:   account.ID,
			Title:       req.Title,
			ManagedBy:   req.ManagedBy,
			Commission:  req.Commission,
			MaxDiscount: req.MaxDiscount,
			Account:     account,
		}
		return tx.Omit("Account").Create(&profile).Error
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("employee added",
		zap.Int64("employee_id", profile.ID),
		zap.String("title", string(profile.Title)),
		zap.Int64("by", actor.Account.ID))
	return &profile, nil
}

type EditEmployeeRequest struct {
	Title       *models.Title
	ManagedBy   *int64
	Commission  *decimal.Decimal
	MaxDiscount *decimal.Decimal
}

func (h *UserHandler) EditEmployee(ctx context.Context, scope access.Scope, id int64, req EditEmployeeRequest) (*models.EmployeeProfile, error) {
	actor := scope.Actor()
	if err := access.Check(actor, canManageStaff); err != nil {
		return nil, err
	}
	if !scope.CanManageEmployee(id) {
		return nil, access.ErrNotVisible
	}
	current, _ := scope.Tree().Get(id)

	updates := map[string]interface{}{}
	title := current.Title
	if req.Title != nil && *req.Title != current.Title {
		if len(scope.Tree().DirectReports(id)) > 0 {
			return nil, fmt.Errorf("%w: reassign their reports before changing title", ErrHasReports)
		}
		if current.Title == models.TitleSalesperson {
			if err := h.requireNoClients(ctx, id); err != nil {
				return nil, err
			}
		}
		title = *req.Title
		updates["title"] = title
	}

	managedBy := current.ManagedBy
	if req.ManagedBy != nil {
		if *req.ManagedBy == id {
			return nil, fmt.Errorf("%w: an employee cannot manage themselves", access.ErrInvalidRole)
		}
		managedBy = req.ManagedBy
		updates["managed_by"] = *req.ManagedBy
	}
	if _, ok := updates["title"]; ok || req.ManagedBy != nil {
		manager, err := managerInScope(scope, managedBy)
		if err != nil {
			return nil, err
		}
		if err := access.ValidateManager(title, manager); err != nil {
			return nil, err
		}
	}

	if req.Commission != nil {
		if err := validatePercent("commission", *req.Commission); err != nil {
			return nil, err
		}
		updates["commission"] = *req.Commission
	}
	if req.MaxDiscount != nil {
		if err := validatePercent("max_discount", *req.MaxDiscount); err != nil {
			return nil, err
		}
		updates["max_discount"] = *req.MaxDiscount
	}

	if len(updates) > 0 {
		if err := h.db.WithContext(ctx).Model(&models.EmployeeProfile{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update employee: %w", err)
		}
		h.invalidate(ctx, current.AccountID)
	}

	return h.employee(ctx, id)
}

// DeactivateEmployee disables the employee's login. Employees who still manage active
// employees stay active.
func (h *UserHandler) DeactivateEmployee(ctx context.Context, scope access.Scope, id int64) error {
	if err := access.Check(scope.Actor(), canManageStaff); err != nil {
		return err
	}
	if !scope.CanManageEmployee(id) {
		return access.ErrNotVisible
	}

	var activeReports int64
	err := h.db.WithContext(ctx).Model(&models.EmployeeProfile{}).
		Joins("JOIN accounts ON accounts.id = employee_profiles.account_id").
		Where("employee_profiles.managed_by = ? AND accounts.active = ?", id, true).
		Count(&activeReports).Error
	if err != nil {
		return fmt.Errorf("count reports: %w", err)
	}
	if activeReports > 0 {
		return ErrHasReports
	}

	e, _ := scope.Tree().Get(id)
	if e.Title == models.TitleSalesperson {
		if err := h.requireNoClients(ctx, id); err != nil {
			return err
		}
	}
	return h.deactivateAccount(ctx, e.AccountID)
}

// requireNoClients fails while active clients are still assigned to the salesperson.
func (h *UserHandler) requireNoClients(ctx context.Context, salespersonID int64) error {
	var clients int64
	err := h.db.WithContext(ctx).Model(&models.ClientProfile{}).
		Joins("JOIN accounts ON accounts.id = client_profiles.account_id").
		Where("client_profiles.salesperson_id = ? AND accounts.active = ?", salespersonID, true).
		Count(&clients).Error
	if err != nil {
		return fmt.Errorf("count clients: %w", err)
	}
	if clients > 0 {
		return fmt.Errorf("%w: reassign %d client(s) first", ErrHasClients, clients)
	}
	return nil
}

func (h *UserHandler) deactivateAccount(ctx context.Context, accountID int64) error {
	if err := h.db.WithContext(ctx).Model(&models.Account{}).Where("id = ?", accountID).Update("active", false).Error; err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	h.invalidate(ctx, accountID)
	logger.FromContext(ctx).Info("account deactivated", zap.Int64("account_id", accountID))
	return nil
}

func (h *UserHandler) employee(ctx context.Context, id int64) (*models.EmployeeProfile, error) {
	var e models.EmployeeProfile
	err := h.db.WithContext(ctx).Preload("Account").First(&e, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load employee: %w", err)
	}
	return &e, nil
}

func (h *UserHandler) employees(ctx context.Context, ids []int64, activeOnly bool) ([]models.EmployeeProfile, error) {
	if len(ids) == 0 {
		return []models.EmployeeProfile{}, nil
	}
	q := h.db.WithContext(ctx).Preload("Account").Where("employee_profiles.id IN ?", ids)
	if activeOnly {
		q = q.Joins("JOIN accounts ON accounts.id = employee_profiles.account_id AND accounts.active = ?", true)
	}
	var out []models.EmployeeProfile
	if err := q.Order("employee_profiles.id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return out, nil
}

// ListEmployees returns everyone below the actor in the hierarchy.
func (h *UserHandler) ListEmployees(ctx context.Context, scope access.Scope) ([]models.EmployeeProfile, error) {
	actor := scope.Actor()
	if err := access.Check(actor, access.RequireEmployee()); err != nil {
		return nil, err
	}
	ids := lo.Map(scope.Tree().Subordinates(actor.Employee.ID), func(e models.EmployeeProfile, _ int) int64 {
		return e.ID
	})
	return h.employees(ctx, ids, false)
}

// EligibleSalespeople lists the active salespeople a client may be assigned to by the actor.
func (h *UserHandler) EligibleSalespeople(ctx context.Context, scope access.Scope) ([]models.EmployeeProfile, error) {
	if err := access.Check(scope.Actor(), access.RequireEmployee()); err != nil {
		return nil, err
	}
	return h.employees(ctx, scope.SalespersonIDs(), true)
}

type BootstrapRequest struct {
	Username    string
	Credentials Credentials
	Commission  decimal.Decimal
	MaxDiscount decimal.Decimal
}

// BootstrapDirector creates a top-level Director without an acting user. It backs the
// createadmin command.
func (h *UserHandler) BootstrapDirector(ctx context.Context, req BootstrapRequest) (*models.EmployeeProfile, error) {
	if err := validatePercent("commission", req.Commission); err != nil {
		return nil, err
	}
	if err := validatePercent("max_discount", req.MaxDiscount); err != nil {
		return nil, err
	}

	var profile models.EmployeeProfile
	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := h.newAccount(tx, req.Username, req.Credentials, true)
		if err != nil {
			return err
		}
		profile = models.EmployeeProfile{
			AccountID:   account.ID,
			Title:       models.TitleDirector,
			Commission:  req.Commission,
			MaxDiscount: req.MaxDiscount,
			Account:     account,
		}
		return tx.Omit("Account").Create(&profile).Error
	})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("director bootstrapped", zap.Int64("employee_id", profile.ID))
	return &profile, nil
}
