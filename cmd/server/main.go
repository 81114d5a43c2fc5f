package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/ndpa-visualizer/backend/internal/api"
	"github.com/ndpa-visualizer/backend/internal/config"
	"github.com/ndpa-visualizer/backend/internal/models"
	"github.com/ndpa-visualizer/backend/internal/parser"
	"github.com/ndpa-visualizer/backend/internal/session"
	"github.com/ndpa-visualizer/backend/internal/storage"
	"github.com/ndpa-visualizer/backend/internal/upload"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, "NDPAVisualizer.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Printf("Failed to create directories: %v\n", err)
		os.Exit(1)
	}

	// Initialize storage
	fileStore, err := storage.NewLocalStore(cfg.GetUploadDir())
	if err != nil {
		fmt.Printf("Failed to initialize storage: %v\n", err)
		os.Exit(1)
	}

	// Initialize session manager
	sessionMgr := session.NewManagerWithTempDir(cfg.Storage.TempDirectory)

	// Start background session cleanup
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Decode.CleanupIntervalMinutes) * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			sessionMgr.CleanupOldSessions(time.Duration(cfg.Decode.SessionTimeoutMinutes) * time.Minute)
		}
	}()

	// Initialize upload processing manager
	uploadMgr := upload.NewManager(cfg.GetUploadDir(), fileStore)

	// Initialize API handler
	h := api.NewHandler(fileStore, sessionMgr, uploadMgr)

	if mode, err := parser.ParseUnitMode(cfg.Decode.DefaultUnitMode); err != nil {
		fmt.Printf("Warning: %v, using %q\n", err, parser.UnitModePhysical)
	} else {
		h.SetDefaultUnitMode(mode)
	}

	if cfg.Decode.StaticFrame.Enabled {
		h.SetStaticFrame(&models.ReferenceFrame{
			WidthPx:     cfg.Decode.StaticFrame.WidthPx,
			HeightPx:    cfg.Decode.StaticFrame.HeightPx,
			NmPerPixelX: cfg.Decode.StaticFrame.NmPerPixelX,
			NmPerPixelY: cfg.Decode.StaticFrame.NmPerPixelY,
			OffsetX:     cfg.Decode.StaticFrame.OffsetX,
			OffsetY:     cfg.Decode.StaticFrame.OffsetY,
		})
	}

	// Load default displayname alias rules on startup
	if err := h.LoadDefaultAliases(cfg.Decode.AliasRulesPath); err != nil {
		fmt.Printf("Warning: failed to load alias rules: %v\n", err)
	}

	e := echo.New()
	e.HTTPErrorHandler = api.ErrorHandler

	// Configure middleware
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/status") || path == "/api/health" || path == "/health"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
	}))

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	// CORS configuration
	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	// API routes
	api.RegisterRoutes(e, h)

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("NDPA Visualizer backend %s (built %s) listening on %s\n", Version, BuildTime, s.Addr)
	if err := e.StartServer(s); err != nil && err != http.ErrServerClosed {
		fmt.Printf("Server stopped: %v\n", err)
		os.Exit(1)
	}
}
