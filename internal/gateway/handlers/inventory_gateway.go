package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"sales-crm/internal/gateway/middleware"
	"sales-crm/internal/services/catalog"
)

type CatalogHTTPHandler struct {
	catalog *catalog.CatalogHandler
}

func NewCatalogHTTPHandler(catalogHandler *catalog.CatalogHandler) *CatalogHTTPHandler {
	return &CatalogHTTPHandler{catalog: catalogHandler}
}

type CreateProductRequest struct {
	Manufacturer string           `json:"manufacturer" binding:"required,max=64"`
	Name         string           `json:"name" binding:"required,max=128"`
	Price        *decimal.Decimal `json:"price" binding:"required"`
	Quantity     int64            `json:"quantity" binding:"gte=0"`
}

type ReorderRequest struct {
	Quantity int64 `json:"quantity" binding:"required,gt=0"`
}

type PromotionRequest struct {
	Discount *decimal.Decimal `json:"discount" binding:"required"`
}

type ListProductsQuery struct {
	IncludeInactive bool `form:"include_inactive"`
}

func (h *CatalogHTTPHandler) ListProducts(c *gin.Context) {
	var query ListProductsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondBindError(c, err)
		return
	}
	// only staff may look at withdrawn products
	includeInactive := query.IncludeInactive && middleware.Actor(c).IsEmployee()

	products, err := h.catalog.ListProducts(c.Request.Context(), includeInactive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("products retrieved successfully", products))
}

func (h *CatalogHTTPHandler) GetProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	product, err := h.catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("product retrieved successfully", product))
}

// PopularProducts personalises the ranking for a signed-in client.
func (h *CatalogHTTPHandler) PopularProducts(c *gin.Context) {
	var clientID int64
	if actor := middleware.Actor(c); actor.IsClient() {
		clientID = actor.Client.ID
	}
	products, err := h.catalog.Popular(c.Request.Context(), clientID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("popular products retrieved successfully", products))
}

func (h *CatalogHTTPHandler) CreateProduct(c *gin.Context) {
	var req CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	product, err := h.catalog.AddProduct(c.Request.Context(), middleware.Actor(c), catalog.AddProductRequest{
		Manufacturer: req.Manufacturer,
		Name:         req.Name,
		Price:        *req.Price,
		Quantity:     req.Quantity,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("product created successfully", product))
}

func (h *CatalogHTTPHandler) ReorderProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	product, err := h.catalog.Reorder(c.Request.Context(), middleware.Actor(c), id, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("product restocked", product))
}

func (h *CatalogHTTPHandler) DeleteProduct(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.Deactivate(c.Request.Context(), middleware.Actor(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("product deactivated", nil))
}

func (h *CatalogHTTPHandler) SetPromotion(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req PromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err)
		return
	}
	product, err := h.catalog.SetPromotion(c.Request.Context(), middleware.Actor(c), id, *req.Discount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("promotion saved", product))
}

func (h *CatalogHTTPHandler) DeletePromotion(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := h.catalog.DeletePromotion(c.Request.Context(), middleware.Actor(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("promotion removed", nil))
}
