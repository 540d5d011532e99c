// Package catalog manages products and promotions and resolves the price actually
// charged for a product.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"sales-crm/internal/database/models"
	"sales-crm/internal/logger"
	"sales-crm/internal/services/access"
)

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrInvalidProduct   = errors.New("invalid product")
	ErrInvalidPromotion = errors.New("invalid promotion")
	ErrInvalidQuantity  = errors.New("invalid quantity")
)

const popularLimit = 3

// canManageCatalog guards product and promotion changes.
var canManageCatalog = access.RequireEmployee(models.TitleDirector, models.TitleManager)

type CatalogHandler struct {
	db *gorm.DB
}

func NewCatalogHandler(db *gorm.DB) *CatalogHandler {
	return &CatalogHandler{db: db}
}

// PricedProduct is a product together with the price a buyer pays for it right now.
type PricedProduct struct {
	models.Product
	EffectivePrice decimal.Decimal `json:"effective_price"`
	Purchasable    bool            `json:"purchasable"`
}

func priced(p models.Product) PricedProduct {
	return PricedProduct{
		Product:        p,
		EffectivePrice: EffectivePrice(p, p.Promotion),
		Purchasable:    IsPurchasable(p),
	}
}

// Price reads the product and its promotion from the store on every call.
func Price(ctx context.Context, db *gorm.DB, productID int64) (decimal.Decimal, models.Product, error) {
	var product models.Product
	err := db.WithContext(ctx).Preload("Promotion").First(&product, productID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, product, ErrProductNotFound
	}
	if err != nil {
		return decimal.Zero, product, err
	}
	return EffectivePrice(product, product.Promotion), product, nil
}

type AddProductRequest struct {
	Manufacturer string
	Name         string
	Price        decimal.Decimal
	Quantity     int64
}

func (h *CatalogHandler) AddProduct(ctx context.Context, actor access.Actor, req AddProductRequest) (*PricedProduct, error) {
	if err := access.Check(actor, canManageCatalog); err != nil {
		return nil, err
	}
	if req.Manufacturer == "" || req.Name == "" {
		return nil, fmt.Errorf("%w: manufacturer and name are required", ErrInvalidProduct)
	}
	price := req.Price.Round(2)
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: price must be at least 0.01", ErrInvalidProduct)
	}
	if req.Quantity < 0 {
		return nil, fmt.Errorf("%w: quantity cannot be negative", ErrInvalidQuantity)
	}

	product := models.Product{
		Manufacturer: req.Manufacturer,
		Name:         req.Name,
		Price:        price,
		Quantity:     req.Quantity,
		Active:       true,
	}
	if err := h.db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	logger.FromContext(ctx).Info("product added",
		zap.Int64("product_id", product.ID),
		zap.Int64("by_account", actor.Account.ID))

	p := priced(product)
	return &p, nil
}

func (h *CatalogHandler) GetProduct(ctx context.Context, id int64) (*PricedProduct, error) {
	var product models.Product
	err := h.db.WithContext(ctx).Preload("Promotion").First(&product, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	p := priced(product)
	return &p, nil
}

// ListProducts returns active products unless includeInactive is set.
func (h *CatalogHandler) ListProducts(ctx context.Context, includeInactive bool) ([]PricedProduct, error) {
	var products []models.Product
	query := h.db.WithContext(ctx).Preload("Promotion").Order("id asc")
	if !includeInactive {
		query = query.Where("active = ?", true)
	}
	if err := query.Find(&products).Error; err != nil {
		return nil, err
	}

	out := make([]PricedProduct, 0, len(products))
	for _, p := range products {
		out = append(out, priced(p))
	}
	return out, nil
}

// Reorder adds restocked units to an active product.
func (h *CatalogHandler) Reorder(ctx context.Context, actor access.Actor, productID, quantity int64) (*PricedProduct, error) {
	if err := access.Check(actor, canManageCatalog); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: reorder quantity must be positive", ErrInvalidQuantity)
	}

	res := h.db.WithContext(ctx).Model(&models.Product{}).
		Where("id = ? AND active = ?", productID, true).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", quantity))
	if res.Error != nil {
		return nil, fmt.Errorf("reorder product: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrProductNotFound
	}
	return h.GetProduct(ctx, productID)
}

// Deactivate soft-deletes a product and drops its promotion, which may only exist
// for active products.
func (h *CatalogHandler) Deactivate(ctx context.Context, actor access.Actor, productID int64) error {
	if err := access.Check(actor, canManageCatalog); err != nil {
		return err
	}

	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Product{}).Where("id = ? AND active = ?", productID, true).Update("active", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrProductNotFound
		}
		return tx.Where("product_id = ?", productID).Delete(&models.Promotion{}).Error
	})
}

// SetPromotion creates or replaces the promotional price of a product.
func (h *CatalogHandler) SetPromotion(ctx context.Context, actor access.Actor, productID int64, discount decimal.Decimal) (*PricedProduct, error) {
	if err := access.Check(actor, canManageCatalog); err != nil {
		return nil, err
	}

	err := h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var product models.Product
		if err := tx.Where("id = ? AND active = ?", productID, true).First(&product).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return err
		}
		discount := discount.Round(2)
		if !discount.IsPositive() || discount.GreaterThan(product.Price) {
			return fmt.Errorf("%w: discount price must be greater than zero and at most %s", ErrInvalidPromotion, product.Price.StringFixed(2))
		}

		promotion := models.Promotion{ProductID: product.ID, Discount: discount}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "product_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"discount", "updated_at"}),
		}).Create(&promotion).Error
	})
	if err != nil {
		return nil, err
	}
	return h.GetProduct(ctx, productID)
}

func (h *CatalogHandler) DeletePromotion(ctx context.Context, actor access.Actor, productID int64) error {
	if err := access.Check(actor, canManageCatalog); err != nil {
		return err
	}

	res := h.db.WithContext(ctx).Where("product_id = ?", productID).Delete(&models.Promotion{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: product %d has no promotion", ErrInvalidPromotion, productID)
	}
	return nil
}

type productCount struct {
	ProductID int64
	Total     int64
}

// Popular returns the most ordered active products. The client's own history is used
// once it covers enough distinct products, otherwise all orders are counted.
func (h *CatalogHandler) Popular(ctx context.Context, clientID int64) ([]PricedProduct, error) {
	count := func(byClient bool) ([]productCount, error) {
		var rows []productCount
		q := h.db.WithContext(ctx).Table("order_items").
			Select("order_items.product_id AS product_id, SUM(order_items.quantity) AS total").
			Joins("JOIN products ON products.id = order_items.product_id AND products.active = ?", true).
			Group("order_items.product_id").
			Order("total DESC, product_id ASC").
			Limit(popularLimit)
		if byClient {
			q = q.Joins("JOIN orders ON orders.id = order_items.order_id").Where("orders.client_id = ?", clientID)
		}
		err := q.Scan(&rows).Error
		return rows, err
	}

	var counts []productCount
	if clientID != 0 {
		own, err := count(true)
		if err != nil {
			return nil, err
		}
		if len(own) >= popularLimit {
			counts = own
		}
	}
	if counts == nil {
		all, err := count(false)
		if err != nil {
			return nil, err
		}
		counts = all
	}

	out := make([]PricedProduct, 0, len(counts))
	for _, c := range counts {
		p, err := h.GetProduct(ctx, c.ProductID)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}
