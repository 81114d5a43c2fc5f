// Package parser decodes NDPA annotation files into the uniform annotation
// model and converts slide-centred nanometer coordinates into base-level
// pixel coordinates.
package parser

import (
	"encoding/xml"
	"io"
	"os"
)

// Document represents the raw XML structure of an NDPA annotation file.
// Leaf values are kept as strings so that numeric parsing failures can be
// reported per annotation instead of failing the whole file.
type Document struct {
	XMLName    xml.Name    `xml:"annotations"`
	ViewStates []ViewState `xml:"ndpviewstate"`
}

// ViewState is one <ndpviewstate> node. Every annotation in the file is
// wrapped in exactly one view state; single-point and ruler geometry is
// flattened onto the view state itself by the authoring software.
type ViewState struct {
	ID          string `xml:"id,attr"`
	Title       string `xml:"title"`
	Details     string `xml:"details"`
	CoordFormat string `xml:"coordformat"`
	Lens        string `xml:"lens"`

	// Single-point geometry (circle centre, pointer position) plus focal plane.
	X string `xml:"x"`
	Y string `xml:"y"`
	Z string `xml:"z"`

	// Ruler endpoints.
	X1 string `xml:"x1"`
	Y1 string `xml:"y1"`
	X2 string `xml:"x2"`
	Y2 string `xml:"y2"`

	ShowTitle       string `xml:"showtitle"`
	ShowHistogram   string `xml:"showhistogram"`
	ShowLineProfile string `xml:"showlineprofile"`

	Annotation AnnotationElement `xml:"annotation"`
}

// AnnotationElement is the nested <annotation> node carrying the shape's
// style and its point list.
type AnnotationElement struct {
	Type        string `xml:"type,attr"`
	DisplayName string `xml:"displayname,attr"`
	Color       string `xml:"color,attr"`

	MeasureType string `xml:"measuretype"`
	Closed      string `xml:"closed"`
	Radius      string `xml:"radius"`

	Points []PointElement `xml:"pointlist>point"`
}

// PointElement is one <point> child of a point list.
type PointElement struct {
	X string `xml:"x"`
	Y string `xml:"y"`
}

// ParseNDPA parses an NDPA annotation file from a reader. A document-level
// XML error is returned as-is; per-annotation problems are handled later,
// during decoding.
func ParseNDPA(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	return &doc, nil
}

// LoadNDPA parses an NDPA annotation file from disk.
func LoadNDPA(filePath string) (*Document, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseNDPA(file)
}
