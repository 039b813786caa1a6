package routes

import (
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/filedrop/config"
	"github.com/cppla/filedrop/controllers"
	"github.com/cppla/filedrop/middleware"
	"github.com/cppla/filedrop/storage"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(cfg config.AppConfig, store *storage.Store, logger *zap.Logger) *gin.Engine {
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Content-Type", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	uploadController := controllers.NewUploadController(store, cfg, logger)
	filesController := controllers.NewFilesController(store, logger)
	healthController := controllers.NewHealthController(store)

	r.POST("/upload", middleware.RateLimit(cfg.RateLimitPerMinute), uploadController.Upload)
	r.GET("/files", filesController.List)
	r.GET("/health", healthController.Health)

	// Everything else is a raw file under StaticRoot, 404 when absent.
	static := http.FileServer(indexOnlyFS{gin.Dir(cfg.StaticRoot, false)})
	r.NoRoute(func(ctx *gin.Context) {
		if ctx.Request.Method != http.MethodGet && ctx.Request.Method != http.MethodHead {
			ctx.Status(http.StatusNotFound)
			return
		}
		static.ServeHTTP(ctx.Writer, ctx.Request)
	})

	return r
}

// indexOnlyFS hides directories that have no index.html.
type indexOnlyFS struct {
	http.FileSystem
}

func (fs indexOnlyFS) Open(name string) (http.File, error) {
	f, err := fs.FileSystem.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.IsDir() {
		idx, err := fs.FileSystem.Open(path.Join(name, "index.html"))
		if err != nil {
			f.Close()
			return nil, os.ErrNotExist
		}
		idx.Close()
	}
	return f, nil
}
