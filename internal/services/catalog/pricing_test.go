package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"sales-crm/internal/database/models"
)

func TestEffectivePrice(t *testing.T) {
	product := models.Product{ID: 1, Price: decimal.RequireFromString("10.00"), Active: true, Quantity: 5}

	assert.True(t, EffectivePrice(product, nil).Equal(decimal.RequireFromString("10.00")))

	promo := &models.Promotion{ProductID: 1, Discount: decimal.RequireFromString("7.50")}
	assert.True(t, EffectivePrice(product, promo).Equal(decimal.RequireFromString("7.50")))

	foreign := &models.Promotion{ProductID: 2, Discount: decimal.RequireFromString("1.00")}
	assert.True(t, EffectivePrice(product, foreign).Equal(decimal.RequireFromString("10.00")))
}

func TestIsPurchasable(t *testing.T) {
	assert.True(t, IsPurchasable(models.Product{Active: true, Quantity: 1}))
	assert.False(t, IsPurchasable(models.Product{Active: true, Quantity: 0}))
	assert.False(t, IsPurchasable(models.Product{Active: false, Quantity: 3}))
}
