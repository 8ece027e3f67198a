package httpserver

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"noticeboard/internal/handler"
)

type Router struct {
	Engine *gin.Engine
}

func NewRouter(
	announcementHandler *handler.AnnouncementHandler,
	noticeHandler *handler.NoticeHandler,
	jwtSecret string,
	db *pgxpool.Pool,
) *Router {
	r := gin.Default()
	r.Use(TraceMiddleware())
	r.Use(MetricsMiddleware())

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c, 1*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			c.JSON(500, gin.H{"status": "db_not_ready", "error": err.Error()})
			return
		}

		c.JSON(200, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// Admin surface: verified admin token required; the engine trusts the
	// identity it is handed and does not re-verify authorization deeper down.
	admin := api.Group("/")
	admin.Use(AuthMiddleware(jwtSecret), RequireAdmin())
	{
		admin.POST("/announcements", announcementHandler.Create)
		admin.GET("/announcements", announcementHandler.List)
		admin.GET("/announcements/:id", announcementHandler.Get)
		admin.PUT("/announcements/:id", announcementHandler.Update)
		admin.POST("/announcements/:id", announcementHandler.Action)
		admin.DELETE("/announcements/:id", announcementHandler.Delete)
		admin.GET("/batches/:id", announcementHandler.GetBatch)
	}

	// Public surface: viewing works anonymously, marking read does not.
	api.GET("/notices", OptionalAuthMiddleware(jwtSecret), noticeHandler.List)
	api.GET("/notices/:id", OptionalAuthMiddleware(jwtSecret), noticeHandler.Get)
	api.PATCH("/notices/:id/read", AuthMiddleware(jwtSecret), noticeHandler.MarkRead)

	return &Router{Engine: r}
}

func (r *Router) Run(port string) error {
	return r.Engine.Run(":" + port)
}
