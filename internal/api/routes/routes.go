package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jobvine/sentinel/internal/api/handlers"
	"github.com/jobvine/sentinel/internal/api/middleware"
	"github.com/jobvine/sentinel/internal/config"
	"github.com/jobvine/sentinel/internal/metrics"
	"github.com/jobvine/sentinel/internal/sentinel"
	"github.com/jobvine/sentinel/internal/services"
)

// Register wires up the health, metrics, webhook and security admin routes.
// archive may be nil when sqlite persistence is disabled; the history
// endpoints then report 404.
func Register(router *gin.Engine, svc *sentinel.Service, archive *services.ArchiveService, cfg config.Config) {
	router.GET("/healthz", handlers.HealthHandler)

	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")

	// Every versioned route sits behind the admission engine; health and
	// metrics stay outside so probes and scrapes are never denied.
	api.Use(middleware.CallerIdentity(cfg.JWTSecret), middleware.Admission(svc))

	// Payment-provider callbacks carry an HMAC signature instead of a JWT.
	webhooks := api.Group("/webhooks")
	webhooks.Use(middleware.WebhookGuard(svc, cfg.WebhookSecret, "payments"))
	webhooks.POST("/payments", func(c *gin.Context) {
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	})

	securityHandler := handlers.NewSecurityHandler(svc, cfg.BreakGlassHash)
	security := api.Group("/security")
	{
		security.GET("/status", securityHandler.GetStatus)
		security.GET("/audit", securityHandler.GetAudit)
		security.GET("/blocked", securityHandler.GetBlocked)
		security.GET("/whitelist", securityHandler.GetWhitelist)
		security.POST("/unblock", securityHandler.Unblock)

		security.GET("/events", archivedEvents(archive))
		security.GET("/blocks/history", blockHistory(archive))
	}
}

func archivedEvents(archive *services.ArchiveService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if archive == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "event archive disabled"})
			return
		}
		events, err := archive.RecentEvents(historyLimit(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query event archive"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	}
}

func blockHistory(archive *services.ArchiveService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if archive == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "event archive disabled"})
			return
		}
		records, err := archive.BlockHistory(historyLimit(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query block history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"blocks": records})
	}
}

func historyLimit(c *gin.Context) int {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	return limit
}
