package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sales-crm/internal/database/models"
	"sales-crm/internal/logger"
	"sales-crm/internal/services/access"
)

const maxCompanyLength = 64

type AddClientRequest struct {
	Username      string
	Credentials   Credentials
	Company       string
	SalespersonID int64
}

func validateCompany(company string) (string, error) {
	company = strings.TrimSpace(company)
	if company == "" || len(company) > maxCompanyLength {
		return "", fmt.Errorf("%w: company must be 1-%d characters", ErrInvalidInput, maxCompanyLength)
	}
	return company, nil
}

// assignable checks that salespersonID is an active salesperson in the actor's subtree.
func (h *UserHandler) assignable(ctx context.Context, scope access.Scope, salespersonID int64) error {
	if !lo.Contains(scope.SalespersonIDs(), salespersonID) {
		return ErrInvalidSalesperson
	}
	active, err := h.employees(ctx, []int64{salespersonID}, true)
	if err != nil {
		return err
	}
	if len(active) == 0 {
		return ErrInvalidSalesperson
	}
	return nil
}

func (h *UserHandler) AddClient(ctx context.Context, scope access.Scope, req AddClientRequest) (*models.ClientProfile, error) {
	actor := scope.Actor()
	if err := access.Check(actor, access.RequireEmployee()); err != nil {
		return nil, err
	}
	company, err := validateCompany(req.Company)
	if err != nil {
		return nil, err
	}
	if err := h.assignable(ctx, scope, req.SalespersonID); err != nil {
		return nil, err
	}

	var profile models.ClientProfile
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := h.newAccount(tx, req.Username, req.Credentials, false)
		if err != nil {
			return err
		}
		profile = models.ClientProfile{
			AccountID:     account.ID,
			Company:       company,
			SalespersonID: req.SalespersonID,
			Account:       account,
		}
		return tx.Omit("Account", "Salesperson").Create(&profile).Error
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx).Info("client added",
		zap.Int64("client_id", profile.ID),
		zap.Int64("salesperson_id", profile.SalespersonID),
		zap.Int64("by", actor.Account.ID))
	return &profile, nil
}

func (h *UserHandler) client(ctx context.Context, scope access.Scope, id int64) (*models.ClientProfile, error) {
	var c models.ClientProfile
	err := h.db.WithContext(ctx).
		Preload("Account").
		Preload("Salesperson.Account").
		First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load client: %w", err)
	}
	if !scope.CanViewClient(c) {
		return nil, access.ErrNotVisible
	}
	return &c, nil
}

func (h *UserHandler) GetClient(ctx context.Context, scope access.Scope, id int64) (*models.ClientProfile, error) {
	if err := access.Check(scope.Actor()); err != nil {
		return nil, err
	}
	return h.client(ctx, scope, id)
}

type EditClientRequest struct {
	Company       *string
	SalespersonID *int64
}

func (h *UserHandler) EditClient(ctx context.Context, scope access.Scope, id int64, req EditClientRequest) (*models.ClientProfile, error) {
	if err := access.Check(scope.Actor(), access.RequireEmployee()); err != nil {
		return nil, err
	}
	current, err := h.client(ctx, scope, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if req.Company != nil {
		company, err := validateCompany(*req.Company)
		if err != nil {
			return nil, err
		}
		updates["company"] = company
	}
	if req.SalespersonID != nil && *req.SalespersonID != current.SalespersonID {
		if err := h.assignable(ctx, scope, *req.SalespersonID); err != nil {
			return nil, err
		}
		updates["salesperson_id"] = *req.SalespersonID
	}

	if len(updates) > 0 {
		if err := h.db.WithContext(ctx).Model(&models.ClientProfile{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update client: %w", err)
		}
		h.invalidate(ctx, current.AccountID)
	}
	return h.client(ctx, scope, id)
}

func (h *UserHandler) DeactivateClient(ctx context.Context, scope access.Scope, id int64) error {
	if err := access.Check(scope.Actor(), access.RequireEmployee()); err != nil {
		return err
	}
	c, err := h.client(ctx, scope, id)
	if err != nil {
		return err
	}
	return h.deactivateAccount(ctx, c.AccountID)
}

// ListClients returns the clients served by salespeople in the actor's subtree.
func (h *UserHandler) ListClients(ctx context.Context, scope access.Scope) ([]models.ClientProfile, error) {
	if err := access.Check(scope.Actor(), access.RequireEmployee()); err != nil {
		return nil, err
	}
	ids := scope.EmployeeIDs()
	if len(ids) == 0 {
		return []models.ClientProfile{}, nil
	}

	var clients []models.ClientProfile
	err := h.db.WithContext(ctx).
		Preload("Account").
		Preload("Salesperson.Account").
		Where("salesperson_id IN ?", ids).
		Order("id").
		Find(&clients).Error
	if err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}
