package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"licensewatch/pkg/otel"
	"licensewatch/pkg/rbac"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Router struct {
	Engine *gin.Engine
}

func NewRouter(handler *NotificationHandler, jwtSecret string, db Pinger, log *zap.Logger) *Router {
	r := gin.New()
	r.Use(gin.Recovery(), otel.GinMiddleware(), TraceMiddleware(log))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := r.Group("/")
	auth.Use(AuthMiddleware(jwtSecret))
	{
		auth.GET("/notifications/settings", RequirePermission(rbac.PermissionManageOwnSettings), handler.GetSettings)
		auth.PUT("/notifications/settings", RequirePermission(rbac.PermissionManageOwnSettings), handler.UpdateSettings)
		auth.POST("/notifications/test", RequirePermission(rbac.PermissionSendTestEmail), handler.SendTest)
		auth.GET("/notifications/schedule", RequirePermission(rbac.PermissionRefreshOwnSchedule), handler.GetSchedule)
		auth.POST("/notifications/schedule/refresh", RequirePermission(rbac.PermissionRefreshOwnSchedule), handler.RefreshSchedule)

		admin := auth.Group("/admin")
		admin.GET("/licenses/expiring", RequirePermission(rbac.PermissionPreviewExpiring), handler.PreviewExpiring)
		admin.POST("/notifications/run", RequirePermission(rbac.PermissionRunAdminSweep), handler.RunAdminSweep)
	}

	return &Router{Engine: r}
}
