package hierarchy

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"sales-crm/internal/database/models"
)

// LoadTree snapshots every employee, active or not, so clients of a deactivated
// salesperson stay visible to that salesperson's managers.
func LoadTree(ctx context.Context, db *gorm.DB) (*Tree, error) {
	var employees []models.EmployeeProfile
	if err := db.WithContext(ctx).Order("id asc").Find(&employees).Error; err != nil {
		return nil, fmt.Errorf("load employees: %w", err)
	}
	return NewTree(employees), nil
}
