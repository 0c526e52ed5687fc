package api

import (
	"github.com/gin-gonic/gin"
	"github.com/mkarlsen/depot/internal/api/handler"
	"github.com/mkarlsen/depot/internal/api/middleware"
	"github.com/mkarlsen/depot/internal/config"
	"github.com/mkarlsen/depot/internal/logger"
	"github.com/mkarlsen/depot/internal/reporting"
	"github.com/mkarlsen/depot/internal/service"
)

// Deps carries everything the router needs.
type Deps struct {
	Config    *config.Config
	Log       *logger.Logger
	Reporter  *reporting.Reporter
	Artifacts *service.ArtifactService
	Deltas    *service.DeltaService
}

// SetupRouter configures the Gin router with all middleware and routes.
// Middleware order matters: Lifecycle runs outermost so its completion
// stage observes the final status, including responses produced by
// Recovery.
func SetupRouter(deps Deps) *gin.Engine {
	switch deps.Config.Server.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(middleware.Lifecycle(deps.Log))
	r.Use(middleware.Recovery(deps.Reporter))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  deps.Config.Server.CORS.AllowedOrigins,
		AllowAllOrigins: deps.Config.Server.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler()
	docsHandler := handler.NewDocsHandler()
	artifactHandler := handler.NewArtifactHandler(deps.Artifacts)
	blobHandler := handler.NewBlobHandler(deps.Artifacts)
	deltaHandler := handler.NewDeltaHandler(deps.Deltas)

	r.GET("/health", healthHandler.Health)
	r.GET("/docs/openapi.json", docsHandler.OpenAPI)

	if dir := deps.Config.Server.StaticDir; dir != "" {
		r.Static("/static", dir)
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/artifacts", artifactHandler.List)
		v1.GET("/artifacts/:name", artifactHandler.Get)
		v1.GET("/artifacts/:name/versions", artifactHandler.ListVersions)
		v1.GET("/artifacts/:name/versions/:version", artifactHandler.GetVersion)

		v1.GET("/blobs/:checksum", blobHandler.Get)
		v1.HEAD("/blobs/:checksum", blobHandler.Head)

		v1.GET("/deltas/:name/:from/:to", deltaHandler.Get)
	}

	// Admin routes are mounted only when credentials are configured.
	if admin := deps.Config.Server.Admin; admin.Username != "" {
		adminGroup := v1.Group("/admin", gin.BasicAuth(gin.Accounts{
			admin.Username: admin.Password,
		}))
		adminGroup.POST("/artifacts/:name/versions", artifactHandler.Publish)
		adminGroup.DELETE("/artifacts/:name/versions/:version", artifactHandler.DeleteVersion)
		adminGroup.POST("/deltas/:name/:from/:to", deltaHandler.Register)
	}

	return r
}
