package services

import (
	"bytes"
	"io"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

// EXIFData holds the EXIF fields a field photo can fall back on
type EXIFData struct {
	Orientation int
	Latitude    *float64
	Longitude   *float64
	Altitude    *float64
	DateTaken   *time.Time
	CameraModel *string
}

// HasLocation reports whether EXIF carried a GPS fix
func (d *EXIFData) HasLocation() bool {
	return d != nil && d.Latitude != nil && d.Longitude != nil
}

// EXIFService extracts EXIF metadata from images
type EXIFService struct{}

// NewEXIFService creates a new EXIFService
func NewEXIFService() *EXIFService {
	return &EXIFService{}
}

// ExtractFromBytes extracts EXIF data from image bytes
func (s *EXIFService) ExtractFromBytes(data []byte) *EXIFData {
	return s.ExtractFromReader(bytes.NewReader(data))
}

// ExtractFromReader extracts EXIF data. Images without EXIF yield defaults.
func (s *EXIFService) ExtractFromReader(r io.Reader) *EXIFData {
	result := &EXIFData{Orientation: 1}

	x, err := exif.Decode(r)
	if err != nil {
		return result
	}

	if tag, err := x.Get(exif.Model); err == nil {
		if val, err := tag.StringVal(); err == nil && val != "" {
			result.CameraModel = &val
		}
	}

	if tag, err := x.Get(exif.Orientation); err == nil {
		if val, err := tag.Int(0); err == nil && val >= 1 && val <= 8 {
			result.Orientation = val
		}
	}

	if tm, err := x.DateTime(); err == nil {
		result.DateTaken = &tm
	}

	if lat, lng, err := x.LatLong(); err == nil {
		result.Latitude = &lat
		result.Longitude = &lng
	}

	if tag, err := x.Get(exif.GPSAltitude); err == nil {
		if rat, err := tag.Rat(0); err == nil && rat.Denom().Int64() != 0 {
			alt := float64(rat.Num().Int64()) / float64(rat.Denom().Int64())
			// 1 means below sea level
			if refTag, err := x.Get(exif.GPSAltitudeRef); err == nil {
				if ref, err := refTag.Int(0); err == nil && ref == 1 {
					alt = -alt
				}
			}
			result.Altitude = &alt
		}
	}

	return result
}
