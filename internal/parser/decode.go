package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ndpa-visualizer/backend/internal/models"
)

// shapeRecord is the transient per-annotation record the shape parser
// produces before the coordinate transform runs. Points are raw physical
// units exactly as read from the file.
type shapeRecord struct {
	title       string
	details     string
	typ         models.AnnotationType
	displayName string
	color       string
	lens        float64
	z           float64
	radius      float64
	points      []models.Point
}

// Decoder turns a parsed NDPA document into the uniform annotation model.
// The zero value uses only the built-in displayname table.
type Decoder struct {
	// Aliases extends the built-in displayname table with deployment-specific
	// tokens. See ParseAliasRules.
	Aliases map[string]models.AnnotationType
}

// Decode converts a parsed NDPA document into an ordered AnnotationSet using
// the package-default decoder.
func Decode(doc *Document, frame *models.ReferenceFrame, mode UnitMode) (*models.AnnotationSet, []*models.DecodeError, error) {
	var d Decoder
	return d.Decode(doc, frame, mode)
}

// Decode converts a parsed NDPA document into an ordered AnnotationSet.
//
// Output order mirrors source order exactly. Annotations with an
// unrecognized shape kind or malformed coordinates are skipped and reported
// in the returned DecodeError list; an unusable reference frame is fatal for
// the whole call and yields no partial output.
func (d *Decoder) Decode(doc *Document, frame *models.ReferenceFrame, mode UnitMode) (*models.AnnotationSet, []*models.DecodeError, error) {
	tr, err := NewTransformer(frame, mode)
	if err != nil {
		return nil, nil, err
	}

	set := models.NewAnnotationSet(mode.CoordFormat())
	var skipped []*models.DecodeError

	for i := range doc.ViewStates {
		vs := &doc.ViewStates[i]

		rec, reason := d.parseViewState(vs)
		if reason != "" {
			skipped = append(skipped, &models.DecodeError{
				Index:  i,
				Title:  strings.TrimSpace(vs.Title),
				Reason: reason,
			})
			continue
		}

		set.Annotations = append(set.Annotations, models.Annotation{
			Title:       rec.title,
			Details:     rec.details,
			Type:        rec.typ,
			CoordFormat: mode.CoordFormat(),
			Lens:        rec.lens,
			DisplayName: rec.displayName,
			Color:       rec.color,
			Points:      tr.Points(rec.points),
			Radius:      tr.Distance(rec.radius),
			Z:           rec.z,
		})
	}

	return set, skipped, nil
}

// parseViewState extracts one annotation's intermediate record. A non-empty
// reason string marks the annotation as skipped.
func (d *Decoder) parseViewState(vs *ViewState) (*shapeRecord, string) {
	ann := &vs.Annotation

	typ, ok := resolveType(ann.DisplayName, d.Aliases)
	if !ok {
		return nil, fmt.Sprintf("unrecognized shape kind %q", ann.DisplayName)
	}

	rec := &shapeRecord{
		title:       strings.TrimSpace(vs.Title),
		details:     strings.TrimSpace(vs.Details),
		typ:         typ,
		displayName: ann.DisplayName,
		color:       NormalizeColor(ann.Color),
		lens:        parseFloatOrZero(vs.Lens),
		z:           parseFloatOrZero(vs.Z),
	}

	var reason string
	switch typ {
	case models.TypeRuler:
		rec.points, reason = rulerPoints(vs)
	case models.TypeCircle:
		centre, r := singlePoint(vs)
		if r != "" {
			return nil, r
		}
		rec.points = []models.Point{centre}
		rec.radius = parseFloatOrZero(ann.Radius)
	case models.TypePointer:
		centre, r := singlePoint(vs)
		if r != "" {
			return nil, r
		}
		rec.points = []models.Point{centre}
	default:
		// freehand, polygon, rectangle: outline from the point list
		rec.points, reason = listPoints(ann.Points)
	}
	if reason != "" {
		return nil, reason
	}

	return rec, ""
}

// listPoints reads a point list in document order. Each child must carry a
// parseable x immediately paired with a parseable y.
func listPoints(elems []PointElement) ([]models.Point, string) {
	if len(elems) == 0 {
		return nil, "malformed coordinate pairing: empty point list"
	}
	points := make([]models.Point, 0, len(elems))
	for i, e := range elems {
		x, errX := parseCoord(e.X)
		if errX != nil {
			return nil, fmt.Sprintf("malformed coordinate pairing: point %d: %v", i, errX)
		}
		y, errY := parseCoord(e.Y)
		if errY != nil {
			return nil, fmt.Sprintf("malformed coordinate pairing: point %d has x without matching y: %v", i, errY)
		}
		points = append(points, models.Point{X: x, Y: y})
	}
	return points, ""
}

// rulerPoints reads the two measurement endpoints flattened onto the view
// state node.
func rulerPoints(vs *ViewState) ([]models.Point, string) {
	coords := [4]string{vs.X1, vs.Y1, vs.X2, vs.Y2}
	names := [4]string{"x1", "y1", "x2", "y2"}
	var vals [4]float64
	for i, s := range coords {
		v, err := parseCoord(s)
		if err != nil {
			return nil, fmt.Sprintf("malformed coordinate pairing: %s: %v", names[i], err)
		}
		vals[i] = v
	}
	return []models.Point{{X: vals[0], Y: vals[1]}, {X: vals[2], Y: vals[3]}}, ""
}

// singlePoint reads the x/y pair flattened onto the view state node.
func singlePoint(vs *ViewState) (models.Point, string) {
	x, err := parseCoord(vs.X)
	if err != nil {
		return models.Point{}, fmt.Sprintf("malformed coordinate pairing: x: %v", err)
	}
	y, err := parseCoord(vs.Y)
	if err != nil {
		return models.Point{}, fmt.Sprintf("malformed coordinate pairing: x without matching y: %v", err)
	}
	return models.Point{X: x, Y: y}, ""
}

// parseCoord parses a signed floating point coordinate value.
func parseCoord(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("missing value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}

// parseFloatOrZero parses optional numeric attributes (lens, z, radius)
// that default to zero when absent or unparseable.
func parseFloatOrZero(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}
