package router

import (
	"context"
	"net/http"

	"fulfillment-service/internal/service"
	"fulfillment-service/internal/transport/http/handlers"
	"fulfillment-service/internal/transport/http/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Service       service.FulfillmentService
	Tokens        middleware.TokenParser
	WebhookSecret string
	Health        Pinger
}

func Router(d Deps, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", middleware.SignatureHeader},
		ExposeHeaders: []string{"Content-Length"},
	}))

	r.GET("/health", func(c *gin.Context) {
		if d.Health != nil {
			if err := d.Health.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := handlers.NewHandler(d.Service, log)
	v1 := r.Group("/api/v1")

	v1.POST("/webhooks/payments/orders/:id/confirm", middleware.WebhookSignature(d.WebhookSecret, log), h.ConfirmOrder)

	authed := v1.Group("", middleware.AuthRequired(d.Tokens, log))
	staff := middleware.RequireRole(service.RoleStaff)
	rider := middleware.RequireRole(service.RoleRider)
	customer := middleware.RequireRole(service.RoleCustomer)

	orders := authed.Group("/orders")
	orders.GET("/:id", h.GetOrder)
	orders.POST("/:id/cancel", middleware.RequireRole(service.RoleCustomer, service.RoleStaff), h.CancelOrder)
	orders.POST("/:id/lines/:lineId/cancel", staff, h.CancelOrderLine)

	units := authed.Group("/pick-units", staff)
	units.POST("/next", h.RequestNextUnit)
	units.GET("/mine", h.ListQueue)
	units.POST("/:id/complete", h.CompletePickUnit)
	units.POST("/:id/issue", h.ReportIssue)
	units.POST("/:id/resolve", h.ResolveIssue)

	deliveries := authed.Group("/deliveries")
	deliveries.POST("/:id/accept", rider, h.AcceptDelivery)
	deliveries.POST("/:id/status", rider, h.AdvanceDeliveryStatus)
	deliveries.POST("/:id/rating", customer, h.RateDelivery)

	authed.POST("/riders/me/location", rider, h.UpdateRiderLocation)

	inventory := authed.Group("/inventory", staff)
	inventory.POST("/receive", h.ReceiveStock)
	inventory.GET("/audit", h.AuditLedger)

	return r
}
