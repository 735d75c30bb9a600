package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis/v3"

	"github.com/channelpass/channelpass/app/controllers"
	"github.com/channelpass/channelpass/internal/pkg/env"
	"github.com/channelpass/channelpass/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	port, err := strconv.Atoi(env.GetEnv("CACHE_PORT", "6379"))
	if err != nil {
		port = 6379
	}
	store := redis.New(redis.Config{
		Host: env.GetEnv("CACHE_HOST", "localhost"),
		Port: port,
	})

	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		Storage:    store,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes, all scoped to the authenticated creator
	v1 := api.Group("/v1", middleware.CreatorAuthMiddleware())
	v1.Get("/sales", controllers.HandleAPISales)
	v1.Get("/emails", controllers.HandleAPIEmails)
	v1.Get("/members", controllers.HandleAPIMembers)
	v1.Post("/members/:uuid/remove", controllers.HandleAPIRemoveMember)
	v1.Get("/channels", controllers.HandleAPIChannels)
	v1.Post("/channels", controllers.HandleAPISaveChannel)
	v1.Post("/invites", controllers.HandleAPIManualInvite)
	v1.Get("/followups/:sessionID", controllers.HandleAPIFollowUp)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
