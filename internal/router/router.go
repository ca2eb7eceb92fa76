package router

import (
	"fundledger/config"
	"fundledger/internal/domain"
	"fundledger/internal/handler"
	"fundledger/internal/ledger"
	"fundledger/internal/middleware"
	"fundledger/internal/repository"
	"fundledger/internal/service"
	"fundledger/internal/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Services is everything the HTTP layer and the CLI share.
type Services struct {
	Ledger        *service.LedgerService
	Progress      *service.ProgressService
	Referrals     *service.ReferralService
	Notifications *service.NotificationService
	Webhooks      *service.WebhookService
	Bus           *service.EventBus
	Hub           *ws.Hub

	outboxRepo *repository.OutboxRepository
	auditRepo  *repository.AuditLogRepository
}

// NewServices wires repositories and services and subscribes the
// notification store, outbound webhooks and the WebSocket hub to the bus.
func NewServices(cfg *config.Config, db *gorm.DB) (*Services, error) {
	ledgerRepo := repository.NewLedgerRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	donationRepo := repository.NewDonationRepository(db)
	outboxRepo := repository.NewOutboxRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	webhookRepo := repository.NewWebhookRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	bus := service.NewEventBus(outboxRepo, 1024)
	s := &Services{
		Ledger:        service.NewLedgerService(ledgerRepo, projectRepo, donationRepo, bus, cfg.Ledger.PoolCategories),
		Progress:      service.NewProgressService(ledgerRepo, referralRepo, ledger.DefaultBadges(cfg.Ledger.Badges)),
		Referrals:     service.NewReferralService(referralRepo),
		Notifications: service.NewNotificationService(notificationRepo, donationRepo),
		Webhooks:      service.NewWebhookService(webhookRepo, cfg.Ledger.WebhookTimeout()),
		Bus:           bus,
		Hub:           ws.NewHub(),
		outboxRepo:    outboxRepo,
		auditRepo:     auditRepo,
	}
	if err := bus.Subscribe("notifications", s.Notifications, domain.EventDonationCaptured, domain.EventMilestoneReleased); err != nil {
		return nil, err
	}
	if err := bus.Subscribe("webhooks", s.Webhooks); err != nil {
		return nil, err
	}
	if err := bus.Subscribe("ws", s.Hub); err != nil {
		return nil, err
	}
	return s, nil
}

func Setup(cfg *config.Config, s *Services, limiter *middleware.InMemoryRateLimiter) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if limiter != nil {
		r.Use(middleware.RateLimit(limiter))
	}

	projectHandler := handler.NewProjectHandler(s.Ledger, s.outboxRepo)
	donationHandler := handler.NewDonationHandler(s.Ledger)
	milestoneHandler := handler.NewMilestoneHandler(s.Ledger, s.auditRepo)
	paymentWebhookHandler := handler.NewPaymentWebhookHandler(s.Ledger, cfg)
	progressHandler := handler.NewProgressHandler(s.Progress, cfg.Ledger.LeaderboardSize)
	notificationHandler := handler.NewNotificationHandler(s.Notifications)
	referralHandler := handler.NewReferralHandler(s.Referrals)
	webhookHandler := handler.NewWebhookHandler(s.Webhooks)

	authMw := middleware.AuthRequired(&cfg.JWT)

	r.GET("/health", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })
	r.GET("/ws/events", ws.UpgradeEventsWS(&cfg.JWT, s.Hub))

	api := r.Group("/api/v1")
	{
		api.POST("/webhooks/payment", paymentWebhookHandler.Handle)

		api.GET("/projects", projectHandler.List)
		api.GET("/projects/:id", projectHandler.Get)
		api.GET("/projects/:id/state", projectHandler.State)
		api.GET("/projects/:id/events", projectHandler.Events)
		api.GET("/pool", projectHandler.Pool)
		api.GET("/leaderboard", progressHandler.Leaderboard)
		api.GET("/donors/:id/progress", progressHandler.Donor)

		authed := api.Group("")
		authed.Use(authMw)
		{
			authed.POST("/donations", middleware.RequireRole(domain.RolePayment, domain.RoleAdmin), donationHandler.Record)
			authed.POST("/donations/pending", donationHandler.Open)
			authed.GET("/donations/:id", donationHandler.Get)
		}

		me := api.Group("/me")
		me.Use(authMw)
		{
			me.GET("/donations", donationHandler.ListMine)
			me.GET("/progress", progressHandler.Me)
			me.GET("/notifications", notificationHandler.List)
			me.PATCH("/notifications/:id/read", notificationHandler.MarkRead)
			me.POST("/referral", referralHandler.Claim)
			me.GET("/referrals", referralHandler.ListMine)
		}

		milestones := api.Group("/milestones")
		milestones.Use(authMw, middleware.RequireRole(domain.RoleApprover, domain.RoleAdmin))
		{
			milestones.POST("/:id/approve", milestoneHandler.Approve)
			milestones.POST("/:id/release", milestoneHandler.Release)
		}

		admin := api.Group("/admin")
		admin.Use(authMw, middleware.RequireRole(domain.RoleAdmin))
		{
			admin.POST("/projects", projectHandler.Create)
			admin.POST("/projects/:id/close", projectHandler.Close)
			admin.GET("/milestones/:id/audit", milestoneHandler.Audit)
			admin.POST("/webhooks", webhookHandler.Create)
			admin.GET("/webhooks", webhookHandler.List)
			admin.PATCH("/webhooks/:id", webhookHandler.SetActive)
			admin.DELETE("/webhooks/:id", webhookHandler.Delete)
		}
	}
	return r
}
