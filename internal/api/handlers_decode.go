// handlers_decode.go - Decode session handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/ndpa-visualizer/backend/internal/metadata"
	"github.com/ndpa-visualizer/backend/internal/models"
	"github.com/ndpa-visualizer/backend/internal/parser"
	"github.com/vmihailenco/msgpack/v5"
)

type startDecodeRequest struct {
	NDPAFileID string `json:"ndpaFileId"`
	NDPIFileID string `json:"ndpiFileId,omitempty"`
	UnitMode   string `json:"unitMode,omitempty"` // "physical" or "pixel"
}

type annotationsResponse struct {
	Annotations []models.Annotation `json:"annotations"`
	CoordFormat models.CoordFormat  `json:"coordformat"`
	Page        int                 `json:"page"`
	PageSize    int                 `json:"pageSize"`
	Total       int                 `json:"total"`
}

// HandleStartDecode starts decoding an uploaded annotation file.
//
// Pixel mode needs a reference frame; it comes from the named slide
// container, or from the configured static frame when no container is given.
func (h *Handler) HandleStartDecode(c echo.Context) error {
	var req startDecodeRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	if req.NDPAFileID == "" {
		return NewValidationError("ndpaFileId")
	}

	mode := h.defaultMode
	if req.UnitMode != "" {
		var err error
		mode, err = parser.ParseUnitMode(req.UnitMode)
		if err != nil {
			return NewBadRequestError("invalid unit mode", err)
		}
	}

	ndpaPath, err := h.store.GetFilePath(req.NDPAFileID)
	if err != nil {
		return NewNotFoundError("annotation file", req.NDPAFileID)
	}

	var provider metadata.Provider
	if req.NDPIFileID != "" {
		ndpiPath, err := h.store.GetFilePath(req.NDPIFileID)
		if err != nil {
			return NewNotFoundError("slide container", req.NDPIFileID)
		}
		reader, err := metadata.NewNDPIReader(ndpiPath)
		if err != nil {
			return NewUnprocessableError("cannot read slide metadata", err)
		}
		provider = reader
	} else if h.staticFrame != nil {
		provider = &metadata.StaticProvider{Frame: *h.staticFrame}
	} else if mode == parser.UnitModePixel {
		return NewBadRequestError("pixel mode requires ndpiFileId or a configured reference frame", nil)
	}

	sess, err := h.sessionMgr.StartDecode(req.NDPAFileID, ndpaPath, provider, mode)
	if err != nil {
		return NewInternalError("failed to start decode", err)
	}

	return c.JSON(http.StatusAccepted, sess)
}

// HandleDecodeStatus returns a decode session's status, including the
// per-annotation skip warnings and any fatal error.
func (h *Handler) HandleDecodeStatus(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	sess, ok := h.sessionMgr.GetSession(id)
	if !ok {
		return NewNotFoundError("session", id)
	}
	return c.JSON(http.StatusOK, sess)
}

// HandleSessionKeepAlive refreshes a session's expiry window.
func (h *Handler) HandleSessionKeepAlive(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	if !h.sessionMgr.TouchSession(id) {
		return NewNotFoundError("session", id)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// HandleAnnotations returns paginated annotations for a session, in source
// file order.
func (h *Handler) HandleAnnotations(c echo.Context) error {
	resp, err := h.annotationsPage(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// HandleAnnotationsMsgpack returns annotations in MessagePack format for
// viewers that poll large freehand outlines.
func (h *Handler) HandleAnnotationsMsgpack(c echo.Context) error {
	resp, err := h.annotationsPage(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(resp)
	if err != nil {
		return NewInternalError("failed to encode annotations", err)
	}
	return c.Blob(http.StatusOK, "application/x-msgpack", data)
}

func (h *Handler) annotationsPage(c echo.Context) (*annotationsResponse, error) {
	id := c.Param("sessionId")
	if id == "" {
		return nil, NewValidationError("sessionId")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))
	if pageSize < 1 || pageSize > 1000 {
		pageSize = 100
	}

	ctx := c.Request().Context()
	anns, total, ok := h.sessionMgr.Annotations(ctx, id, page, pageSize)
	if !ok {
		return nil, NewNotFoundError("session", id)
	}

	sess, _ := h.sessionMgr.GetSession(id)
	return &annotationsResponse{
		Annotations: anns,
		CoordFormat: sess.CoordFormat,
		Page:        page,
		PageSize:    pageSize,
		Total:       total,
	}, nil
}

// HandleViewport returns the session's annotations whose bounding boxes
// intersect the requested rectangle.
func (h *Handler) HandleViewport(c echo.Context) error {
	id := c.Param("sessionId")
	if id == "" {
		return NewValidationError("sessionId")
	}

	minX, err1 := strconv.ParseFloat(c.QueryParam("minX"), 64)
	minY, err2 := strconv.ParseFloat(c.QueryParam("minY"), 64)
	maxX, err3 := strconv.ParseFloat(c.QueryParam("maxX"), 64)
	maxY, err4 := strconv.ParseFloat(c.QueryParam("maxY"), 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return NewBadRequestError("minX, minY, maxX, maxY must be numbers", nil)
	}

	ctx := c.Request().Context()
	anns, ok := h.sessionMgr.QueryViewport(ctx, id, minX, minY, maxX, maxY)
	if !ok {
		return NewNotFoundError("session", id)
	}
	return c.JSON(http.StatusOK, anns)
}
