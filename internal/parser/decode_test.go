package parser

import (
	"math"
	"strings"
	"testing"

	"github.com/ndpa-visualizer/backend/internal/models"
)

const sampleNDPA = `<?xml version="1.0" encoding="utf-8"?>
<annotations>
  <ndpviewstate id="1">
    <title>Tumor region</title>
    <details>suspected margin</details>
    <coordformat>nanometers</coordformat>
    <lens>40</lens>
    <x>100</x><y>200</y><z>0</z>
    <showtitle>1</showtitle>
    <annotation type="freehand" displayname="AnnotateFreehand" color="#FF0000">
      <measuretype>0</measuretype>
      <closed>1</closed>
      <pointlist>
        <point><x>17981.38</x><y>9921.90</y></point>
        <point><x>-5000</x><y>2500.5</y></point>
      </pointlist>
    </annotation>
  </ndpviewstate>
  <ndpviewstate id="2">
    <title>Length check</title>
    <coordformat>nanometers</coordformat>
    <lens>20</lens>
    <x1>0</x1><y1>0</y1><x2>4424</x2><y2>2212</y2>
    <annotation type="linearmeasure" displayname="AnnotateRuler" color="00ff00">
      <measuretype>1</measuretype>
    </annotation>
  </ndpviewstate>
  <ndpviewstate id="3">
    <title>Focus spot</title>
    <coordformat>nanometers</coordformat>
    <lens>40</lens>
    <x>-2212</x><y>4424</y><z>150</z>
    <annotation type="circle" displayname="AnnotateCircle">
      <measuretype>0</measuretype>
      <radius>2212</radius>
    </annotation>
  </ndpviewstate>
</annotations>`

// testFrame matches the reference scenario: 82432x40320 px at 221.2 nm/px,
// annotation origin at the image centre.
func testFrame() *models.ReferenceFrame {
	return &models.ReferenceFrame{
		WidthPx:     82432,
		HeightPx:    40320,
		NmPerPixelX: 221.2,
		NmPerPixelY: 221.2,
	}
}

func mustParse(t *testing.T, xml string) *Document {
	t.Helper()
	doc, err := ParseNDPA(strings.NewReader(xml))
	if err != nil {
		t.Fatalf("Failed to parse NDPA: %v", err)
	}
	return doc
}

func TestDecodePhysicalPassThrough(t *testing.T) {
	doc := mustParse(t, sampleNDPA)

	set, skipped, err := Decode(doc, nil, UnitModePhysical)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("Expected no skipped annotations, got %d", len(skipped))
	}
	if set.CoordFormat != models.CoordNanometers {
		t.Errorf("Expected coordformat nanometers, got %s", set.CoordFormat)
	}

	ann := set.Annotations[0]
	want := []models.Point{{X: 17981.38, Y: 9921.90}, {X: -5000, Y: 2500.5}}
	if len(ann.Points) != len(want) {
		t.Fatalf("Expected %d points, got %d", len(want), len(ann.Points))
	}
	for i, p := range want {
		if ann.Points[i] != p {
			t.Errorf("Point %d: expected %v, got %v", i, p, ann.Points[i])
		}
	}
	if ann.CoordFormat != models.CoordNanometers {
		t.Errorf("Expected annotation coordformat nanometers, got %s", ann.CoordFormat)
	}
}

func TestDecodePixelTransform(t *testing.T) {
	doc := mustParse(t, sampleNDPA)

	set, skipped, err := Decode(doc, testFrame(), UnitModePixel)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("Expected no skipped annotations, got %d", len(skipped))
	}
	if set.CoordFormat != models.CoordPixels {
		t.Errorf("Expected coordformat pixels, got %s", set.CoordFormat)
	}

	// Reference scenario: (17981.38, 9921.90) nm -> (41216+81.3, 20160+44.9) px
	p := set.Annotations[0].Points[0]
	if math.Abs(p.X-41297.3) > 0.1 {
		t.Errorf("Expected pixel x ~= 41297.3, got %f", p.X)
	}
	if math.Abs(p.Y-20204.9) > 0.1 {
		t.Errorf("Expected pixel y ~= 20204.9, got %f", p.Y)
	}

	// Circle radius scales by the x-axis resolution: 2212 nm / 221.2 nm/px.
	circle := set.Annotations[2]
	if circle.Type != models.TypeCircle {
		t.Fatalf("Expected circle annotation, got %s", circle.Type)
	}
	if math.Abs(circle.Radius-10.0) > 1e-9 {
		t.Errorf("Expected pixel radius 10.0, got %f", circle.Radius)
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	frame := &models.ReferenceFrame{
		WidthPx:     82432,
		HeightPx:    40320,
		NmPerPixelX: 221.2,
		NmPerPixelY: 227.5,
		OffsetX:     130432.6,
		OffsetY:     -91522.9,
	}
	tr, err := NewTransformer(frame, UnitModePixel)
	if err != nil {
		t.Fatalf("NewTransformer failed: %v", err)
	}

	raw := []models.Point{
		{X: 17981.38, Y: 9921.90},
		{X: -250000.25, Y: 431021.0},
		{X: 0, Y: 0},
	}
	px := tr.Points(raw)

	for i, p := range px {
		// Invert the transform algebraically.
		backX := (p.X-float64(frame.WidthPx)/2)*frame.NmPerPixelX + frame.OffsetX
		backY := (p.Y-float64(frame.HeightPx)/2)*frame.NmPerPixelY + frame.OffsetY
		if math.Abs(backX-raw[i].X) > 1e-6 {
			t.Errorf("Point %d: round trip x %f != %f", i, backX, raw[i].X)
		}
		if math.Abs(backY-raw[i].Y) > 1e-6 {
			t.Errorf("Point %d: round trip y %f != %f", i, backY, raw[i].Y)
		}
	}
}

func TestDecodeSkipsUnknownShapeKind(t *testing.T) {
	xml := `<annotations>
  <ndpviewstate><title>first</title><lens>20</lens>
    <annotation displayname="AnnotateFreehand" color="#112233">
      <pointlist><point><x>1</x><y>2</y></point></pointlist>
    </annotation>
  </ndpviewstate>
  <ndpviewstate><title>second</title><lens>20</lens>
    <annotation displayname="UnknownShapeXYZ" color="#112233">
      <pointlist><point><x>3</x><y>4</y></point></pointlist>
    </annotation>
  </ndpviewstate>
  <ndpviewstate><title>third</title><lens>20</lens>
    <annotation displayname="AnnotateFreehand" color="#112233">
      <pointlist><point><x>5</x><y>6</y></point></pointlist>
    </annotation>
  </ndpviewstate>
</annotations>`
	doc := mustParse(t, xml)

	set, skipped, err := Decode(doc, nil, UnitModePhysical)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(set.Annotations) != 2 {
		t.Fatalf("Expected 2 annotations, got %d", len(set.Annotations))
	}
	if len(skipped) != 1 {
		t.Fatalf("Expected 1 skipped annotation, got %d", len(skipped))
	}
	if skipped[0].Index != 1 {
		t.Errorf("Expected skipped index 1, got %d", skipped[0].Index)
	}
	if skipped[0].Title != "second" {
		t.Errorf("Expected skipped title second, got %q", skipped[0].Title)
	}
	if !strings.Contains(skipped[0].Reason, "unrecognized shape kind") {
		t.Errorf("Unexpected skip reason: %q", skipped[0].Reason)
	}

	// Order of survivors mirrors the source, and their fields are intact.
	if set.Annotations[0].Title != "first" || set.Annotations[1].Title != "third" {
		t.Errorf("Survivor order wrong: %q, %q", set.Annotations[0].Title, set.Annotations[1].Title)
	}
	if set.Annotations[1].Points[0] != (models.Point{X: 5, Y: 6}) {
		t.Errorf("Skipping must not affect other annotations, got %v", set.Annotations[1].Points[0])
	}
}

func TestDecodeSkipsMalformedPairing(t *testing.T) {
	cases := []struct {
		name string
		xml  string
	}{
		{
			name: "point missing y",
			xml: `<annotations><ndpviewstate><title>bad</title>
  <annotation displayname="AnnotateFreehand"><pointlist><point><x>1</x></point></pointlist></annotation>
</ndpviewstate></annotations>`,
		},
		{
			name: "non-numeric x",
			xml: `<annotations><ndpviewstate><title>bad</title>
  <annotation displayname="AnnotateFreehand"><pointlist><point><x>abc</x><y>2</y></point></pointlist></annotation>
</ndpviewstate></annotations>`,
		},
		{
			name: "empty point list",
			xml: `<annotations><ndpviewstate><title>bad</title>
  <annotation displayname="AnnotateFreehand"><pointlist></pointlist></annotation>
</ndpviewstate></annotations>`,
		},
		{
			name: "ruler missing endpoint",
			xml: `<annotations><ndpviewstate><title>bad</title>
  <x1>0</x1><y1>0</y1><x2>10</x2>
  <annotation displayname="AnnotateRuler"/>
</ndpviewstate></annotations>`,
		},
		{
			name: "circle missing centre",
			xml: `<annotations><ndpviewstate><title>bad</title>
  <annotation displayname="AnnotateCircle"><radius>5</radius></annotation>
</ndpviewstate></annotations>`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc := mustParse(t, tc.xml)
			set, skipped, err := Decode(doc, nil, UnitModePhysical)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if len(set.Annotations) != 0 {
				t.Errorf("Expected 0 annotations, got %d", len(set.Annotations))
			}
			if len(skipped) != 1 {
				t.Fatalf("Expected 1 skipped annotation, got %d", len(skipped))
			}
			if !strings.Contains(skipped[0].Reason, "malformed coordinate pairing") {
				t.Errorf("Unexpected skip reason: %q", skipped[0].Reason)
			}
		})
	}
}

func TestDecodeFatalFrameErrors(t *testing.T) {
	doc := mustParse(t, sampleNDPA)

	t.Run("nil frame in pixel mode", func(t *testing.T) {
		set, skipped, err := Decode(doc, nil, UnitModePixel)
		if err != ErrMetadataUnavailable {
			t.Fatalf("Expected ErrMetadataUnavailable, got %v", err)
		}
		if set != nil || skipped != nil {
			t.Error("Fatal errors must not return partial output")
		}
	})

	t.Run("zero resolution", func(t *testing.T) {
		frame := testFrame()
		frame.NmPerPixelY = 0
		set, _, err := Decode(doc, frame, UnitModePixel)
		if err != ErrZeroResolution {
			t.Fatalf("Expected ErrZeroResolution, got %v", err)
		}
		if set != nil {
			t.Error("Fatal errors must not return partial output")
		}
	})

	t.Run("zero resolution ignored in physical mode", func(t *testing.T) {
		frame := testFrame()
		frame.NmPerPixelX = 0
		if _, _, err := Decode(doc, frame, UnitModePhysical); err != nil {
			t.Fatalf("Physical mode must not consult the frame, got %v", err)
		}
	})
}

func TestDecodeRulerEndpoints(t *testing.T) {
	doc := mustParse(t, sampleNDPA)

	set, _, err := Decode(doc, nil, UnitModePhysical)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	ruler := set.Annotations[1]
	if ruler.Type != models.TypeRuler {
		t.Fatalf("Expected ruler type, got %s", ruler.Type)
	}
	if ruler.DisplayName != "AnnotateRuler" {
		t.Errorf("Expected displayname AnnotateRuler, got %q", ruler.DisplayName)
	}
	if len(ruler.Points) != 2 {
		t.Fatalf("Expected 2 endpoints, got %d", len(ruler.Points))
	}
	if ruler.Points[1] != (models.Point{X: 4424, Y: 2212}) {
		t.Errorf("Unexpected second endpoint: %v", ruler.Points[1])
	}
	if ruler.Color != "#00ff00" {
		t.Errorf("Expected normalized color #00ff00, got %q", ruler.Color)
	}
}

func TestDecodeDefaults(t *testing.T) {
	xml := `<annotations><ndpviewstate>
  <annotation displayname="AnnotatePin"/>
  <x>10</x><y>20</y>
</ndpviewstate></annotations>`
	doc := mustParse(t, xml)

	set, skipped, err := Decode(doc, nil, UnitModePhysical)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(skipped) != 0 {
		t.Fatalf("Expected no skipped annotations, got %v", skipped[0])
	}

	ann := set.Annotations[0]
	if ann.Title != "" {
		t.Errorf("Missing title must default to empty, got %q", ann.Title)
	}
	if ann.Color != DefaultColor {
		t.Errorf("Missing color must default to %s, got %q", DefaultColor, ann.Color)
	}
	if ann.Type != models.TypePointer {
		t.Errorf("Expected pointer type, got %s", ann.Type)
	}
	if len(ann.Points) != 1 || ann.Points[0] != (models.Point{X: 10, Y: 20}) {
		t.Errorf("Unexpected points: %v", ann.Points)
	}
}

func TestParseUnitMode(t *testing.T) {
	if _, err := ParseUnitMode("physical"); err != nil {
		t.Errorf("physical must parse: %v", err)
	}
	if _, err := ParseUnitMode("pixel"); err != nil {
		t.Errorf("pixel must parse: %v", err)
	}
	if _, err := ParseUnitMode("furlongs"); err == nil {
		t.Error("Expected error for unknown unit mode")
	}
}
