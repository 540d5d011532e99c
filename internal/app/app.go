// Package app holds the long-lived dependencies shared by every request.
package app

import (
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"sales-crm/config"
	"sales-crm/internal/services/cart"
	"sales-crm/internal/services/catalog"
	"sales-crm/internal/services/events"
	"sales-crm/internal/services/orders"
	"sales-crm/internal/services/user"
	"sales-crm/internal/utils"
)

// App is built once in main and handed to the gateway.
type App struct {
	Config config.Config
	DB     *gorm.DB
	Redis  *redis.Client

	Issuer  *utils.TokenIssuer
	Revoker *utils.TokenRevoker

	Users   *user.UserHandler
	Catalog *catalog.CatalogHandler
	Orders  *orders.OrderHandler
	Carts   *cart.CartHandler
}

func New(cfg config.Config, db *gorm.DB, redisClient *redis.Client) *App {
	issuer := utils.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	orderHandler := orders.NewOrderHandler(db, events.NewRedisPublisher(redisClient))

	return &App{
		Config:  cfg,
		DB:      db,
		Redis:   redisClient,
		Issuer:  issuer,
		Revoker: utils.NewTokenRevoker(redisClient),
		Users:   user.NewUserHandler(db, redisClient, issuer),
		Catalog: catalog.NewCatalogHandler(db),
		Orders:  orderHandler,
		Carts:   cart.NewCartHandler(redisClient, db, orderHandler),
	}
}
