package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/channelpass/channelpass/internal/pkg/cache"
	"github.com/channelpass/channelpass/internal/pkg/database"
	"github.com/channelpass/channelpass/internal/pkg/env"
)

// HandleHealth reports liveness of the service and its backing stores.
func HandleHealth(c *fiber.Ctx) error {
	status := fiber.StatusOK
	dbOK := false
	if db := database.GetDB(); db != nil {
		if sqlDB, err := db.DB(); err == nil && sqlDB.Ping() == nil {
			dbOK = true
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cacheOK := cache.GetClient().Ping(ctx).Err() == nil
	gatewayOK := env.GetEnv("TELEGRAM_BOT_TOKEN", "") != ""

	overall := "ok"
	if !dbOK {
		status = fiber.StatusServiceUnavailable
		overall = "degraded"
	} else if !cacheOK {
		overall = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status":  overall,
		"db":      dbOK,
		"cache":   cacheOK,
		"gateway": gatewayOK,
	})
}
