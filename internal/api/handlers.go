// Package api exposes the decode engine over HTTP.
package api

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/ndpa-visualizer/backend/internal/models"
	"github.com/ndpa-visualizer/backend/internal/parser"
	"github.com/ndpa-visualizer/backend/internal/session"
	"github.com/ndpa-visualizer/backend/internal/storage"
	"github.com/ndpa-visualizer/backend/internal/upload"
)

// Handler handles API requests.
type Handler struct {
	store         storage.Store
	sessionMgr    *session.Manager
	uploadManager *upload.Manager

	// defaultMode is used when a decode request does not name a unit mode.
	defaultMode parser.UnitMode
	// staticFrame, when set, serves as the reference frame for decode
	// requests that do not name a slide container.
	staticFrame *models.ReferenceFrame
}

// NewHandler creates a new API handler.
func NewHandler(store storage.Store, sessionMgr *session.Manager, uploadMgr *upload.Manager) *Handler {
	return &Handler{
		store:         store,
		sessionMgr:    sessionMgr,
		uploadManager: uploadMgr,
		defaultMode:   parser.UnitModePhysical,
	}
}

// SetDefaultUnitMode sets the unit mode used when requests omit one.
func (h *Handler) SetDefaultUnitMode(mode parser.UnitMode) {
	h.defaultMode = mode
}

// SetStaticFrame installs a config-supplied reference frame fallback.
func (h *Handler) SetStaticFrame(frame *models.ReferenceFrame) {
	h.staticFrame = frame
}

// LoadDefaultAliases loads the default displayname alias rules file if it
// exists.
func (h *Handler) LoadDefaultAliases(rulesPath string) error {
	if rulesPath == "" {
		return nil
	}
	if _, err := os.Stat(rulesPath); os.IsNotExist(err) {
		return nil // No alias rules file
	}

	aliases, err := parser.LoadAliasRules(rulesPath)
	if err != nil {
		return err
	}

	h.sessionMgr.SetAliases(aliases)
	return nil
}

// HandleHealth returns server health status.
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
