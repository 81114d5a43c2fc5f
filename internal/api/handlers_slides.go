// handlers_slides.go - Slide container metadata handlers
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/ndpa-visualizer/backend/internal/metadata"
	"github.com/ndpa-visualizer/backend/internal/parser"
)

// HandleSlideInfo returns the human-readable summary of an uploaded slide
// container: dimensions, scanner make/model/software and scan date. When the
// ndpaFileId query parameter names an uploaded sidecar, the annotation count
// is included.
func (h *Handler) HandleSlideInfo(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	path, err := h.store.GetFilePath(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	reader, err := metadata.NewNDPIReader(path)
	if err != nil {
		return NewUnprocessableError("cannot read slide metadata", err)
	}

	info, err := reader.Info()
	if err != nil {
		return NewUnprocessableError("slide container lacks summary tags", err)
	}

	if ndpaID := c.QueryParam("ndpaFileId"); ndpaID != "" {
		ndpaPath, err := h.store.GetFilePath(ndpaID)
		if err != nil {
			return NewNotFoundError("annotation file", ndpaID)
		}
		doc, err := parser.LoadNDPA(ndpaPath)
		if err != nil {
			return NewUnprocessableError("cannot read annotation file", err)
		}
		info.Annotations = len(doc.ViewStates)
	}

	return c.JSON(http.StatusOK, info)
}

// HandleSlideFrame returns the reference frame a pixel-mode decode of this
// slide would use. Useful for clients that truncate to integer pixels
// themselves.
func (h *Handler) HandleSlideFrame(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}

	path, err := h.store.GetFilePath(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}

	reader, err := metadata.NewNDPIReader(path)
	if err != nil {
		return NewUnprocessableError("cannot read slide metadata", err)
	}

	frame, err := reader.ReferenceFrame()
	if err != nil {
		return NewUnprocessableError("slide container lacks resolution or offset tags", err)
	}
	return c.JSON(http.StatusOK, frame)
}
