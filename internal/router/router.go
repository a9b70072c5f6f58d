package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/dig"

	"github.com/deepresearch-go/pipeline/internal/config"
	"github.com/deepresearch-go/pipeline/internal/handler"
	"github.com/deepresearch-go/pipeline/internal/middleware"
	"github.com/deepresearch-go/pipeline/internal/types/interfaces"
)

// RouterParams collects everything NewRouter needs to assemble the gin
// engine: the auth middleware's dependencies plus one handler per
// registered route group.
type RouterParams struct {
	dig.In

	Config          *config.Config
	TenantService   interfaces.TenantService
	AuthHandler     *handler.AuthHandler
	TenantHandler   *handler.TenantHandler
	ModelHandler    *handler.ModelHandler
	SystemHandler   *handler.SystemHandler
	ResearchHandler *handler.ResearchHandler
	ChatHandler     *handler.ChatHandler
}

// NewRouter assembles the HTTP facade: CORS, request tracking, auth, then
// one route group per handler.
func NewRouter(params RouterParams) *gin.Engine {
	r := gin.New()

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-API-Key", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "Access-Control-Allow-Origin"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.Auth(params.TenantService, params.Config))
	r.Use(middleware.TracingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		RegisterAuthRoutes(v1, params.AuthHandler)
		RegisterTenantRoutes(v1, params.TenantHandler)
		RegisterModelRoutes(v1, params.ModelHandler)
		RegisterSystemRoutes(v1, params.SystemHandler)
		RegisterResearchRoutes(v1, params.ResearchHandler)
		RegisterChatRoutes(v1, params.ChatHandler)
	}

	return r
}

// RegisterResearchRoutes registers C5's trigger/poll/result/cancel surface.
func RegisterResearchRoutes(r *gin.RouterGroup, h *handler.ResearchHandler) {
	research := r.Group("/research")
	{
		research.POST("", h.Trigger)
		research.GET("/:task_id", h.Status)
		research.GET("/:task_id/result", h.Result)
		research.POST("/:task_id/cancel", h.Cancel)
	}
}

// RegisterChatRoutes registers C9's session/turn surface.
func RegisterChatRoutes(r *gin.RouterGroup, h *handler.ChatHandler) {
	chat := r.Group("/chat")
	{
		chat.POST("/sessions", h.CreateSession)
		chat.POST("/sessions/:session_id/messages", h.SendMessage)
		chat.POST("/sessions/:session_id/messages/stream", h.SendMessageStream)
		chat.GET("/sessions/:session_id/stream/:request_id", h.ContinueStream)
	}
}

// RegisterTenantRoutes registers tenant bootstrap/management routes.
func RegisterTenantRoutes(r *gin.RouterGroup, h *handler.TenantHandler) {
	tenants := r.Group("/tenants")
	{
		tenants.POST("", h.CreateTenant)
		tenants.GET("/:id", h.GetTenant)
		tenants.PUT("/:id", h.UpdateTenant)
		tenants.DELETE("/:id", h.DeleteTenant)
		tenants.GET("", h.ListTenants)
	}
}

// RegisterModelRoutes registers model-credential management routes.
func RegisterModelRoutes(r *gin.RouterGroup, h *handler.ModelHandler) {
	models := r.Group("/models")
	{
		models.POST("", h.CreateModel)
		models.GET("", h.ListModels)
		models.GET("/:id", h.GetModel)
		models.PUT("/:id", h.UpdateModel)
		models.DELETE("/:id", h.DeleteModel)
	}
}

// RegisterAuthRoutes registers authentication routes.
func RegisterAuthRoutes(r *gin.RouterGroup, h *handler.AuthHandler) {
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/refresh", h.RefreshToken)
	r.GET("/auth/validate", h.ValidateToken)
	r.POST("/auth/logout", h.Logout)
	r.GET("/auth/me", h.GetCurrentUser)
	r.POST("/auth/change-password", h.ChangePassword)
}

// RegisterSystemRoutes registers system information routes.
func RegisterSystemRoutes(r *gin.RouterGroup, h *handler.SystemHandler) {
	system := r.Group("/system")
	{
		system.GET("/info", h.GetSystemInfo)
	}
}
