package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"sales-crm/internal/gateway/middleware"
	"sales-crm/internal/services/orders"
)

type DashboardHTTPHandler struct {
	orders *orders.OrderHandler
	db     *gorm.DB
}

func NewDashboardHTTPHandler(orderHandler *orders.OrderHandler, db *gorm.DB) *DashboardHTTPHandler {
	return &DashboardHTTPHandler{orders: orderHandler, db: db}
}

func (h *DashboardHTTPHandler) ManagerDashboard(c *gin.Context) {
	s, ok := scope(c, h.db, middleware.Actor(c))
	if !ok {
		return
	}
	board, err := h.orders.ManagerDashboard(c.Request.Context(), s)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("dashboard retrieved successfully", board))
}
