// Command createadmin creates the first Director so the system has someone to log in as.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"go.uber.org/zap"

	"sales-crm/config"
	"sales-crm/internal/database"
	"sales-crm/internal/logger"
	"sales-crm/internal/services/user"
)

func main() {
	username := flag.String("username", "", "username of the new director")
	password := flag.String("password", "", "password (defaults to $ADMIN_PASSWORD)")
	flag.Parse()

	cfg := config.LoadConfig()
	if err := logger.Init(cfg.Log.Level, cfg.Server.Env, "createadmin"); err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Get()

	if *password == "" {
		*password = os.Getenv("ADMIN_PASSWORD")
	}
	if *username == "" || *password == "" {
		flag.Usage()
		os.Exit(2)
	}

	db, err := database.NewConnection(cfg.DB.GetDSN(), database.PoolConfig{
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		LogLevel:        cfg.DB.LogLevel,
	})
	if err != nil {
		log.Fatal("failed to connect to db", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// no redis: nothing is cached for an account that has never logged in
	users := user.NewUserHandler(db, nil, nil)
	director, err := users.BootstrapDirector(ctx, user.BootstrapRequest{
		Username:    *username,
		Credentials: user.Credentials{Password: *password, Confirm: *password},
		Commission:  cfg.Bootstrap.DirectorCommission,
		MaxDiscount: cfg.Bootstrap.DirectorMaxDiscount,
	})
	if err != nil {
		log.Fatal("failed to create director", zap.String("username", *username), zap.Error(err))
	}
	log.Info("director created", zap.Int64("employee_id", director.ID), zap.String("username", *username))
}
