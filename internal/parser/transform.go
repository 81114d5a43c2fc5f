package parser

import (
	"errors"
	"fmt"

	"github.com/ndpa-visualizer/backend/internal/models"
)

// UnitMode selects the unit system of decoded point coordinates. Exactly one
// mode applies per decode call; mixed per-annotation modes are not supported.
type UnitMode string

const (
	// UnitModePhysical passes coordinates through unchanged (nanometers,
	// slide-centred origin).
	UnitModePhysical UnitMode = "physical"
	// UnitModePixel converts coordinates to pixels at the image's base
	// pyramid level, origin at the top-left corner.
	UnitModePixel UnitMode = "pixel"
)

// ParseUnitMode validates a unit mode token from config or an API request.
func ParseUnitMode(s string) (UnitMode, error) {
	switch UnitMode(s) {
	case UnitModePhysical, UnitModePixel:
		return UnitMode(s), nil
	}
	return "", fmt.Errorf("unknown unit mode %q (want %q or %q)", s, UnitModePhysical, UnitModePixel)
}

// CoordFormat returns the unit system decoded points end up in.
func (m UnitMode) CoordFormat() models.CoordFormat {
	if m == UnitModePixel {
		return models.CoordPixels
	}
	return models.CoordNanometers
}

// Fatal decode errors. Both abort the whole call with no partial output,
// since every annotation's transform depends on the same reference frame.
var (
	ErrMetadataUnavailable = errors.New("reference frame unavailable")
	ErrZeroResolution      = errors.New("reference frame has zero physical resolution")
)

// Transformer maps slide-centred nanometer points into the unit system its
// mode selects. It never mutates the reference frame and is shared by all
// annotations of one decode pass.
type Transformer struct {
	frame *models.ReferenceFrame
	mode  UnitMode
}

// NewTransformer validates the reference frame against the requested mode.
// Physical mode is a pass-through and needs no frame; pixel mode requires a
// frame with nonzero per-axis resolution.
func NewTransformer(frame *models.ReferenceFrame, mode UnitMode) (*Transformer, error) {
	if mode == UnitModePixel {
		if frame == nil {
			return nil, ErrMetadataUnavailable
		}
		if frame.NmPerPixelX == 0 || frame.NmPerPixelY == 0 {
			return nil, ErrZeroResolution
		}
	}
	return &Transformer{frame: frame, mode: mode}, nil
}

// Point transforms a single point.
//
// Pixel mode: pixelX = width/2 + (x - offsetX) / nmPerPixelX, and likewise
// for Y. Values stay floating point; truncation to integer pixels is a
// downstream concern.
func (t *Transformer) Point(p models.Point) models.Point {
	if t.mode != UnitModePixel {
		return p
	}
	return models.Point{
		X: float64(t.frame.WidthPx)/2 + (p.X-t.frame.OffsetX)/t.frame.NmPerPixelX,
		Y: float64(t.frame.HeightPx)/2 + (p.Y-t.frame.OffsetY)/t.frame.NmPerPixelY,
	}
}

// Points transforms a point list into a freshly allocated slice, preserving
// order exactly.
func (t *Transformer) Points(pts []models.Point) []models.Point {
	out := make([]models.Point, len(pts))
	for i, p := range pts {
		out[i] = t.Point(p)
	}
	return out
}

// Distance converts a scalar physical length (a circle radius) using the
// X-axis resolution. In physical mode it is returned unchanged.
func (t *Transformer) Distance(d float64) float64 {
	if t.mode != UnitModePixel {
		return d
	}
	return d / t.frame.NmPerPixelX
}
