package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/channelpass/channelpass/app/controllers"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Wire the reconciler and its collaborators before any route can fire.
	controllers.InitializeControllers()

	app.Post("/webhook", controllers.HandlePaymentWebhook)

	app.Get("/checkout/:pageID", controllers.HandleCheckoutStart)
	app.Get("/checkout/:pageID/:priceIndex", controllers.HandleCheckoutStart)
	app.Get("/success", controllers.HandleCheckoutSuccess)
	app.Get("/cancel", controllers.HandleCheckoutCancel)

	app.Get("/health", controllers.HandleHealth)
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
