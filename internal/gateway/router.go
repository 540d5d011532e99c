// Package gateway exposes the CRM over HTTP.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sales-crm/internal/app"
	"sales-crm/internal/gateway/handlers"
	"sales-crm/internal/gateway/middleware"
)

const serviceName = "sales-crm"

func NewRouter(a *app.App) (*gin.Engine, error) {
	handlers.UseJSONFieldNames()

	rateLimit, err := middleware.RateLimit(a.Config.RateLimit)
	if err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.AccessLog())
	r.Use(middleware.Metrics(serviceName))
	r.Use(middleware.CORS())

	userHandler := handlers.NewUserHTTPHandler(a.Users, a.Revoker, a.DB)
	catalogHandler := handlers.NewCatalogHTTPHandler(a.Catalog)
	orderHandler := handlers.NewOrderHTTPHandler(a.Orders, a.Carts, a.DB)
	dashboardHandler := handlers.NewDashboardHTTPHandler(a.Orders, a.DB)

	jwtAuth := middleware.JWTAuth(a.Issuer, a.Revoker, a.DB)
	optionalAuth := middleware.OptionalJWTAuth(a.Issuer, a.Revoker, a.DB)

	// --- Public API Group ---
	public := r.Group("/api/v1")
	public.Use(rateLimit)
	{
		public.POST("/auth/login", userHandler.Login)

		browse := public.Group("", optionalAuth)
		browse.GET("/products", catalogHandler.ListProducts)
		browse.GET("/products/popular", catalogHandler.PopularProducts)
		browse.GET("/products/:id", catalogHandler.GetProduct)

		public.GET("/cart", orderHandler.ViewCart)
		public.PUT("/cart/items/:product_id", orderHandler.SetCartItem)
		public.DELETE("/cart/items/:product_id", orderHandler.RemoveCartItem)
	}

	// --- Protected API Group ---
	protected := r.Group("/api/v1")
	protected.Use(rateLimit, jwtAuth)
	{
		protected.POST("/auth/logout", userHandler.Logout)
		protected.GET("/me", userHandler.Me)
		protected.POST("/users", userHandler.CreateUser)

		employees := protected.Group("/employees")
		{
			employees.POST("", userHandler.CreateEmployee)
			employees.GET("", userHandler.ListEmployees)
			employees.GET("/salespeople", userHandler.ListSalespeople)
			employees.PUT("/:id", userHandler.UpdateEmployee)
			employees.POST("/:id/deactivate", userHandler.DeactivateEmployee)
		}

		clients := protected.Group("/clients")
		{
			clients.POST("", userHandler.CreateClient)
			clients.GET("", userHandler.ListClients)
			clients.GET("/:id", userHandler.GetClient)
			clients.PUT("/:id", userHandler.UpdateClient)
			clients.POST("/:id/deactivate", userHandler.DeactivateClient)
		}

		products := protected.Group("/products")
		{
			products.POST("", catalogHandler.CreateProduct)
			products.POST("/:id/reorder", catalogHandler.ReorderProduct)
			products.DELETE("/:id", catalogHandler.DeleteProduct)
			products.PUT("/:id/promotion", catalogHandler.SetPromotion)
			products.DELETE("/:id/promotion", catalogHandler.DeletePromotion)
		}

		ordersGroup := protected.Group("/orders")
		{
			ordersGroup.POST("", orderHandler.CreateOrder)
			ordersGroup.GET("", orderHandler.ListOrders)
			ordersGroup.GET("/:id", orderHandler.GetOrder)
		}

		protected.POST("/cart/checkout", orderHandler.Checkout)
		protected.GET("/dashboard/manager", dashboardHandler.ManagerDashboard)

		protected.POST("/feedback", userHandler.GiveFeedback)
		protected.GET("/feedback", userHandler.ListFeedback)
	}

	r.GET("/health", healthCheckHandler(a))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r, nil
}

func healthCheckHandler(a *app.App) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status := "healthy"
		httpStatus := http.StatusOK
		unavailable := []string{}

		if sqlDB, err := a.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
			unavailable = append(unavailable, "database")
		}
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			unavailable = append(unavailable, "redis")
		}

		if len(unavailable) > 0 {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}

		c.JSON(httpStatus, gin.H{
			"status":               status,
			"unavailable_services": unavailable,
			"timestamp":            time.Now(),
		})
	}
}
