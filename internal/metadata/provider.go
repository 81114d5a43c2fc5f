// Package metadata supplies the slide reference frame the coordinate
// transform depends on: image pixel dimensions, per-axis physical resolution
// and the slide-centre offset recorded by the scanner.
package metadata

import (
	"errors"

	"github.com/ndpa-visualizer/backend/internal/models"
)

// ErrUnavailable is returned when the image container lacks the resolution
// or offset tags required to build a reference frame.
var ErrUnavailable = errors.New("slide metadata unavailable")

// Provider supplies the reference frame for one slide image.
type Provider interface {
	ReferenceFrame() (*models.ReferenceFrame, error)
}

// StaticProvider serves a fixed reference frame, for tests and for
// deployments that configure frame values directly instead of reading the
// image container.
type StaticProvider struct {
	Frame models.ReferenceFrame
}

// ReferenceFrame returns a copy of the configured frame.
func (p *StaticProvider) ReferenceFrame() (*models.ReferenceFrame, error) {
	frame := p.Frame
	return &frame, nil
}
