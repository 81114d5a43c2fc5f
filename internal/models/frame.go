package models

// ReferenceFrame describes the slide image's coordinate system at its base
// pyramid level. It is obtained once per decode call from a metadata provider
// and is read-only for the whole pass.
type ReferenceFrame struct {
	WidthPx  int64 `json:"widthPx"`
	HeightPx int64 `json:"heightPx"`

	// Physical resolution at the base pyramid level, nanometers per pixel.
	NmPerPixelX float64 `json:"nmPerPixelX"`
	NmPerPixelY float64 `json:"nmPerPixelY"`

	// Displacement of the annotation coordinate origin (the slide's optical
	// centre) from the image centre, in nanometers.
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
}

// SlideInfo is a human-readable summary of the slide image container.
type SlideInfo struct {
	WidthPx     int64  `json:"widthPx"`
	HeightPx    int64  `json:"heightPx"`
	ScanDate    string `json:"scanDate,omitempty"`
	Maker       string `json:"maker,omitempty"`
	Model       string `json:"model,omitempty"`
	Software    string `json:"software,omitempty"`
	Annotations int    `json:"annotations"`
}
