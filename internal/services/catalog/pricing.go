package catalog

import (
	"github.com/shopspring/decimal"

	"sales-crm/internal/database/models"
)

// EffectivePrice is the promotional price when the product has a promotion, otherwise
// its list price.
func EffectivePrice(product models.Product, promotion *models.Promotion) decimal.Decimal {
	if promotion != nil && promotion.ProductID == product.ID {
		return promotion.Discount
	}
	return product.Price
}

func IsPurchasable(product models.Product) bool {
	return product.Active && product.Quantity > 0
}
