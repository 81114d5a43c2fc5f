// Package models contains domain types for the NDPA annotation backend.
package models

// AnnotationType is the closed set of shape kinds the decoder emits.
type AnnotationType string

const (
	TypeFreehand  AnnotationType = "freehand"
	TypePolygon   AnnotationType = "polygon"
	TypeCircle    AnnotationType = "circle"
	TypeRectangle AnnotationType = "rectangle"
	TypePointer   AnnotationType = "pointer"
	TypeRuler     AnnotationType = "ruler"
)

// CoordFormat records which unit system an annotation's points are in.
type CoordFormat string

const (
	CoordNanometers CoordFormat = "nanometers"
	CoordPixels     CoordFormat = "pixels"
)

// Point is a single (x, y) coordinate pair. Order inside a point list is
// meaningful and defines the shape outline or path.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Annotation is one decoded slide annotation. Instances are created fresh on
// each decode call and never modified afterwards.
type Annotation struct {
	Title       string         `json:"title"`
	Details     string         `json:"details,omitempty"`
	Type        AnnotationType `json:"type"`
	CoordFormat CoordFormat    `json:"coordformat"`
	Lens        float64        `json:"lens"`
	DisplayName string         `json:"displayname"`
	Color       string         `json:"color"`
	Points      []Point        `json:"points"`
	Radius      float64        `json:"radius,omitempty"` // circle only, same unit as Points
	Z           float64        `json:"z,omitempty"`      // focal plane, copied verbatim
}

// AnnotationSet is the ordered result of one decode call. Annotation order
// mirrors the order of the source file exactly.
type AnnotationSet struct {
	Annotations []Annotation `json:"annotations"`
	CoordFormat CoordFormat  `json:"coordformat"`
}

// NewAnnotationSet creates an empty AnnotationSet in the given unit system.
func NewAnnotationSet(format CoordFormat) *AnnotationSet {
	return &AnnotationSet{
		Annotations: make([]Annotation, 0),
		CoordFormat: format,
	}
}

// DecodeError describes one annotation that was skipped during decoding.
// Skipped annotations are always reported alongside the successful set,
// never silently dropped.
type DecodeError struct {
	Index  int    `json:"index"` // zero-based position in the source file
	Title  string `json:"title"`
	Reason string `json:"reason"`
}
