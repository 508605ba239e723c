package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/unishare/unishare-api/api/swagger"
	"github.com/unishare/unishare-api/internal/handler"
	"github.com/unishare/unishare-api/internal/middleware"
	"github.com/unishare/unishare-api/internal/service"
	"github.com/unishare/unishare-api/pkg/config"
	"github.com/unishare/unishare-api/pkg/logger"
	corsmiddleware "github.com/unishare/unishare-api/pkg/middleware/cors"
	reqidmiddleware "github.com/unishare/unishare-api/pkg/middleware/requestid"
)

// Deps bundles everything route registration needs.
type Deps struct {
	Config   *config.Config
	Logger   *zap.Logger
	Auth     *service.AuthService
	Catalog  *service.CatalogService
	Resource *service.ResourceService
	Metrics  *service.MetricsService
}

// New builds the gin engine with all middleware and routes registered.
func New(deps Deps) *gin.Engine {
	cfg := deps.Config

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, _ interface{}) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Internal server error",
		})
	}))
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Route not found",
		})
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authHandler := handler.NewAuthHandler(deps.Auth)
	catalogHandler := handler.NewCatalogHandler(deps.Catalog)
	resourceHandler := handler.NewResourceHandler(deps.Resource, deps.Metrics)

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", authHandler.Login)

	// The download route authenticates with the signed token itself, so it
	// stays outside the JWT group.
	api.GET("/resources/:id/download", resourceHandler.Download)

	protected := api.Group("")
	protected.Use(middleware.JWT(deps.Auth))
	{
		protected.GET("/auth/me", authHandler.Me)

		protected.GET("/subjects", catalogHandler.ListSubjects)
		protected.GET("/academic-years", catalogHandler.ListAcademicYears)

		protected.GET("/resources", resourceHandler.List)
		protected.GET("/resources/latest", resourceHandler.Latest)
		protected.GET("/resources/facets", resourceHandler.Facets)
		protected.POST("/resources", resourceHandler.CreateLink)
		protected.POST("/resources/file", resourceHandler.CreateFile)
		protected.GET("/resources/signed-url/:id", resourceHandler.SignedURL)
		protected.PUT("/resources/:id", resourceHandler.Update)
		protected.DELETE("/resources/:id", resourceHandler.Delete)
	}

	return r
}
