// Package access decides which parts of the hierarchy, which clients and which orders an
// authenticated actor may see or act upon.
package access

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"sales-crm/internal/database/models"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("forbidden")
	// ErrNotVisible hides the existence of records outside the actor's scope.
	ErrNotVisible  = errors.New("not found")
	ErrInvalidRole = errors.New("invalid title / manager combination")
)

type Actor struct {
	Account  models.Account
	Employee *models.EmployeeProfile
	Client   *models.ClientProfile
}

func (a Actor) IsEmployee() bool {
	return a.Account.IsEmployee && a.Employee != nil
}

func (a Actor) IsClient() bool {
	return !a.Account.IsEmployee && a.Client != nil
}

func (a Actor) HasTitle(titles ...models.Title) bool {
	if !a.IsEmployee() {
		return false
	}
	for _, t := range titles {
		if a.Employee.Title == t {
			return true
		}
	}
	return false
}

// LoadActor resolves an account id carried by a session into an Actor. Inactive or
// missing accounts are treated as unauthenticated.
func LoadActor(ctx context.Context, db *gorm.DB, accountID int64) (Actor, error) {
	var account models.Account
	err := db.WithContext(ctx).
		Preload("Employee").
		Preload("Client").
		Where("id = ? AND active = ?", accountID, true).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Actor{}, ErrUnauthenticated
	}
	if err != nil {
		return Actor{}, fmt.Errorf("load actor: %w", err)
	}

	actor := Actor{Account: account, Employee: account.Employee, Client: account.Client}
	actor.Account.Employee = nil
	actor.Account.Client = nil
	return actor, nil
}

// Predicate is an authorization check evaluated at the start of an operation.
type Predicate func(Actor) error

// RequireEmployee admits employees, optionally restricted to the given titles.
func RequireEmployee(titles ...models.Title) Predicate {
	return func(a Actor) error {
		if !a.IsEmployee() {
			return ErrForbidden
		}
		if len(titles) > 0 && !a.HasTitle(titles...) {
			return ErrForbidden
		}
		return nil
	}
}

func RequireClient() Predicate {
	return func(a Actor) error {
		if !a.IsClient() {
			return ErrForbidden
		}
		return nil
	}
}

// AnyOf passes when at least one predicate passes.
func AnyOf(preds ...Predicate) Predicate {
	return func(a Actor) error {
		for _, p := range preds {
			if p(a) == nil {
				return nil
			}
		}
		return ErrForbidden
	}
}

func Check(a Actor, preds ...Predicate) error {
	if a.Account.ID == 0 {
		return ErrUnauthenticated
	}
	for _, p := range preds {
		if err := p(a); err != nil {
			return err
		}
	}
	return nil
}

var managerTitleFor = map[models.Title]models.Title{
	models.TitleManager:     models.TitleDirector,
	models.TitleSalesperson: models.TitleManager,
}

// ValidateManager enforces Director -> none, Manager -> Director, Salesperson -> Manager.
func ValidateManager(title models.Title, manager *models.EmployeeProfile) error {
	if !title.Valid() {
		return fmt.Errorf("%w: unknown title %q", ErrInvalidRole, title)
	}
	want, needsManager := managerTitleFor[title]
	if !needsManager {
		if manager != nil {
			return fmt.Errorf("%w: a %s has no manager", ErrInvalidRole, title)
		}
		return nil
	}
	if manager == nil {
		return fmt.Errorf("%w: a %s must be managed by a %s", ErrInvalidRole, title, want)
	}
	if manager.Title != want {
		return fmt.Errorf("%w: a %s must be managed by a %s, not a %s", ErrInvalidRole, title, want, manager.Title)
	}
	return nil
}
