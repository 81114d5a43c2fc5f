// routes.go - Route registration helpers
package api

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes registers all API routes with the Echo instance.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	// Health check
	e.GET("/health", h.HandleHealth)
	e.GET("/api/health", h.HandleHealth)

	// File upload routes
	files := e.Group("/api/files")
	files.POST("/upload", h.HandleUploadFile)
	files.POST("/upload/multipart", h.HandleUploadMultipart)
	files.POST("/upload/chunk", h.HandleUploadChunk)
	files.POST("/upload/complete", h.HandleCompleteUpload)
	files.GET("/upload/jobs/:jobId", h.HandleUploadJob)
	files.GET("/recent", h.HandleRecentFiles)
	files.GET("/:id", h.HandleGetFile)
	files.DELETE("/:id", h.HandleDeleteFile)

	// Decode session routes
	decode := e.Group("/api/decode")
	decode.POST("", h.HandleStartDecode)
	decode.GET("/:sessionId/status", h.HandleDecodeStatus)
	decode.POST("/:sessionId/keepalive", h.HandleSessionKeepAlive)
	decode.GET("/:sessionId/annotations", h.HandleAnnotations)
	decode.GET("/:sessionId/annotations/msgpack", h.HandleAnnotationsMsgpack)
	decode.GET("/:sessionId/viewport", h.HandleViewport)

	// Slide container routes
	slides := e.Group("/api/slides")
	slides.GET("/:id/info", h.HandleSlideInfo)
	slides.GET("/:id/frame", h.HandleSlideFrame)
}
