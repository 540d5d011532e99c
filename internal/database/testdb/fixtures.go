package testdb

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"sales-crm/internal/database/models"
)

const Password = "correct horse battery"

func hash(t *testing.T) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func Employee(t *testing.T, db *gorm.DB, username string, title models.Title, managedBy *models.EmployeeProfile, commission, maxDiscount string) models.EmployeeProfile {
	t.Helper()

	account := models.Account{Username: username, PasswordHash: hash(t), IsEmployee: true, Active: true}
	require.NoError(t, db.Create(&account).Error)

	profile := models.EmployeeProfile{
		AccountID:   account.ID,
		Title:       title,
		Commission:  decimal.RequireFromString(commission),
		MaxDiscount: decimal.RequireFromString(maxDiscount),
	}
	if managedBy != nil {
		profile.ManagedBy = &managedBy.ID
	}
	require.NoError(t, db.Create(&profile).Error)
	return profile
}

func Client(t *testing.T, db *gorm.DB, username, company string, salesperson models.EmployeeProfile) models.ClientProfile {
	t.Helper()

	account := models.Account{Username: username, PasswordHash: hash(t), Active: true}
	require.NoError(t, db.Create(&account).Error)

	profile := models.ClientProfile{AccountID: account.ID, Company: company, SalespersonID: salesperson.ID}
	require.NoError(t, db.Create(&profile).Error)
	return profile
}

func Product(t *testing.T, db *gorm.DB, name, price string, quantity int64) models.Product {
	t.Helper()

	product := models.Product{
		Manufacturer: "Acme",
		Name:         name,
		Price:        decimal.RequireFromString(price),
		Quantity:     quantity,
		Active:       true,
	}
	require.NoError(t, db.Create(&product).Error)
	return product
}

// Hierarchy seeds root(Director) -> m1(Manager) -> s1(Salesperson) with client c1 on s1,
// plus an unrelated branch root2 -> m2 -> s2.
type Hierarchy struct {
	Root, M1, S1, Root2, M2, S2 models.EmployeeProfile
	C1                          models.ClientProfile
}

func SeedHierarchy(t *testing.T, db *gorm.DB) Hierarchy {
	t.Helper()

	var h Hierarchy
	h.Root = Employee(t, db, "root", models.TitleDirector, nil, "5", "30")
	h.M1 = Employee(t, db, "m1", models.TitleManager, &h.Root, "5", "25")
	h.S1 = Employee(t, db, "s1", models.TitleSalesperson, &h.M1, "10", "20")
	h.Root2 = Employee(t, db, "root2", models.TitleDirector, nil, "5", "30")
	h.M2 = Employee(t, db, "m2", models.TitleManager, &h.Root2, "5", "25")
	h.S2 = Employee(t, db, "s2", models.TitleSalesperson, &h.M2, "10", "20")
	h.C1 = Client(t, db, "c1", "Globex", h.S1)
	return h
}
