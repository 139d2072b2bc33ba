package main

import (
	"context"
	"log"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/documind/user-service/internal/config"
	"github.com/documind/user-service/internal/db"
	"github.com/documind/user-service/internal/handler"
	"github.com/documind/user-service/internal/service"
	"github.com/documind/user-service/internal/store"
)

// @title DocuMind User Service API
// @version 1.0
// @description Authentication and session lifecycle API.
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	postgres, err := db.NewPostgres(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer postgres.Close()

	if err := postgres.EnsureUserSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure user schema: %v", err)
	}

	kv, err := store.NewRedisKV(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer kv.Close()

	authService, err := service.NewAuthService(postgres, store.NewRevocationStore(kv), cfg.Auth)
	if err != nil {
		log.Fatalf("Failed to init auth service: %v", err)
	}

	if err := authService.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminEmail, cfg.Auth.AdminPassword); err != nil {
		log.Fatalf("Failed to bootstrap admin account: %v", err)
	}

	authHandler := handler.NewAuthHandler(authService)

	router := gin.Default()
	if origins := cfg.Server.AllowedOrigins; origins != "" {
		router.Use(handler.CORSMiddleware(strings.Split(origins, ","), true))
	}

	router.GET("/", handler.Root)
	router.GET("/ping", handler.Ping)
	router.GET("/openapi.json", handler.OpenAPIDoc)

	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", authHandler.Logout)
		auth.POST("/validate", authHandler.Validate)
		auth.GET("/me", handler.AuthMiddleware(authService), authHandler.Me)
	}

	admin := router.Group("/api/v1/admin", handler.AuthMiddleware(authService), handler.RequireAdmin())
	{
		admin.POST("/accounts/:usernameOrEmail/lock", authHandler.Lock)
		admin.POST("/accounts/:usernameOrEmail/unlock", authHandler.Unlock)
	}

	if err := router.Run(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
