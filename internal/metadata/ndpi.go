package metadata

import (
	"fmt"

	"github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"

	"github.com/ndpa-visualizer/backend/internal/models"
)

// TIFF tags the NDPI container carries. The 654xx range is the Hamamatsu
// private block; offsets from the slide centre are stored in nanometers.
const (
	tagImageWidth     = 0x0100
	tagImageLength    = 0x0101
	tagMake           = 0x010f
	tagModel          = 0x0110
	tagXResolution    = 0x011a
	tagYResolution    = 0x011b
	tagResolutionUnit = 0x0128
	tagSoftware       = 0x0131
	tagDateTime       = 0x0132

	tagSourceLens        = 65421
	tagXOffsetFromCentre = 65422
	tagYOffsetFromCentre = 65423
)

// Resolution unit values per the TIFF specification.
const (
	resUnitInch       = 2
	resUnitCentimeter = 3
)

// NDPIReader reads an NDPI whole-slide image container's TIFF tags and
// builds the reference frame for its base pyramid level. The first IFD of
// an NDPI file is always the base (highest resolution) level.
type NDPIReader struct {
	path    string
	rootIfd *exif.Ifd
}

// NewNDPIReader opens the container and collects its tag index once; the
// reader is read-only and safe to share across decode calls.
func NewNDPIReader(filePath string) (*NDPIReader, error) {
	rawExif, err := exif.SearchFileAndExtractExif(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: no TIFF tag block in %s: %v", ErrUnavailable, filePath, err)
	}

	im := exifcommon.NewIfdMapping()
	if err := exifcommon.LoadStandardIfds(im); err != nil {
		return nil, fmt.Errorf("loading IFD mapping: %w", err)
	}
	ti := exif.NewTagIndex()

	_, index, err := exif.Collect(im, ti, rawExif)
	if err != nil {
		return nil, fmt.Errorf("%w: collecting tags from %s: %v", ErrUnavailable, filePath, err)
	}

	return &NDPIReader{path: filePath, rootIfd: index.RootIfd}, nil
}

// ReferenceFrame builds the base-level reference frame from the container's
// dimension, resolution and slide-centre offset tags.
func (r *NDPIReader) ReferenceFrame() (*models.ReferenceFrame, error) {
	width, err := r.tagFloat(tagImageWidth)
	if err != nil {
		return nil, fmt.Errorf("%w: image width: %v", ErrUnavailable, err)
	}
	height, err := r.tagFloat(tagImageLength)
	if err != nil {
		return nil, fmt.Errorf("%w: image height: %v", ErrUnavailable, err)
	}

	nmppX, err := r.nmPerPixel(tagXResolution)
	if err != nil {
		return nil, fmt.Errorf("%w: x resolution: %v", ErrUnavailable, err)
	}
	nmppY, err := r.nmPerPixel(tagYResolution)
	if err != nil {
		return nil, fmt.Errorf("%w: y resolution: %v", ErrUnavailable, err)
	}

	offX, err := r.tagFloat(tagXOffsetFromCentre)
	if err != nil {
		return nil, fmt.Errorf("%w: x offset from slide centre: %v", ErrUnavailable, err)
	}
	offY, err := r.tagFloat(tagYOffsetFromCentre)
	if err != nil {
		return nil, fmt.Errorf("%w: y offset from slide centre: %v", ErrUnavailable, err)
	}

	return &models.ReferenceFrame{
		WidthPx:     int64(width),
		HeightPx:    int64(height),
		NmPerPixelX: nmppX,
		NmPerPixelY: nmppY,
		OffsetX:     offX,
		OffsetY:     offY,
	}, nil
}

// SourceLens returns the magnification the slide was scanned at, or zero if
// the container does not record it.
func (r *NDPIReader) SourceLens() float64 {
	lens, err := r.tagFloat(tagSourceLens)
	if err != nil {
		return 0
	}
	return lens
}

// Info returns the container's human-readable summary tags. Missing tags
// leave their field empty; only the dimensions are required.
func (r *NDPIReader) Info() (*models.SlideInfo, error) {
	width, err := r.tagFloat(tagImageWidth)
	if err != nil {
		return nil, fmt.Errorf("%w: image width: %v", ErrUnavailable, err)
	}
	height, err := r.tagFloat(tagImageLength)
	if err != nil {
		return nil, fmt.Errorf("%w: image height: %v", ErrUnavailable, err)
	}

	return &models.SlideInfo{
		WidthPx:  int64(width),
		HeightPx: int64(height),
		ScanDate: r.tagString(tagDateTime),
		Maker:    r.tagString(tagMake),
		Model:    r.tagString(tagModel),
		Software: r.tagString(tagSoftware),
	}, nil
}

// nmPerPixel converts a TIFF resolution tag (pixels per unit) into
// nanometers per pixel. NDPI writes resolutions in pixels per centimeter;
// inch-based files are converted the same way.
func (r *NDPIReader) nmPerPixel(resTag uint16) (float64, error) {
	res, err := r.tagFloat(resTag)
	if err != nil {
		return 0, err
	}
	if res == 0 {
		return 0, fmt.Errorf("zero resolution value")
	}

	unitLength := 1e7 // nanometers per centimeter
	if unit, err := r.tagFloat(tagResolutionUnit); err == nil && unit == resUnitInch {
		unitLength = 2.54e7
	}

	return unitLength / res, nil
}

// tagFloat reads the first value of a tag as float64, across the numeric
// TIFF value types.
func (r *NDPIReader) tagFloat(tagID uint16) (float64, error) {
	entries, err := r.rootIfd.FindTagWithId(tagID)
	if err != nil || len(entries) == 0 {
		return 0, fmt.Errorf("tag 0x%04x not found", tagID)
	}

	value, err := entries[0].Value()
	if err != nil {
		return 0, fmt.Errorf("tag 0x%04x unreadable: %v", tagID, err)
	}

	switch v := value.(type) {
	case []uint16:
		if len(v) > 0 {
			return float64(v[0]), nil
		}
	case []uint32:
		if len(v) > 0 {
			return float64(v[0]), nil
		}
	case []int32:
		if len(v) > 0 {
			return float64(v[0]), nil
		}
	case []float32:
		if len(v) > 0 {
			return float64(v[0]), nil
		}
	case []float64:
		if len(v) > 0 {
			return v[0], nil
		}
	case []exifcommon.Rational:
		if len(v) > 0 && v[0].Denominator != 0 {
			return float64(v[0].Numerator) / float64(v[0].Denominator), nil
		}
	case []exifcommon.SignedRational:
		if len(v) > 0 && v[0].Denominator != 0 {
			return float64(v[0].Numerator) / float64(v[0].Denominator), nil
		}
	}
	return 0, fmt.Errorf("tag 0x%04x has no numeric value", tagID)
}

// tagString reads a tag as a string, returning "" when absent.
func (r *NDPIReader) tagString(tagID uint16) string {
	entries, err := r.rootIfd.FindTagWithId(tagID)
	if err != nil || len(entries) == 0 {
		return ""
	}
	s, err := entries[0].FormatFirst()
	if err != nil {
		return ""
	}
	return s
}
