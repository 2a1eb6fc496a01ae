package models

import (
	"path/filepath"
	"strings"
)

// PhotoEvent classifies what a field photo documents
type PhotoEvent string

const (
	EventSuckingPest        PhotoEvent = "sucking_pest"
	EventChewingPest        PhotoEvent = "chewing_pest"
	EventDisease            PhotoEvent = "disease"
	EventNutrientDeficiency PhotoEvent = "nutrient_deficiency"
	EventPopulationCount    PhotoEvent = "population_count"
	EventOther              PhotoEvent = "other"
)

// Valid reports whether e belongs to the event taxonomy
func (e PhotoEvent) Valid() bool {
	switch e {
	case EventSuckingPest, EventChewingPest, EventDisease,
		EventNutrientDeficiency, EventPopulationCount, EventOther:
		return true
	}
	return false
}

// Severity of an observed problem
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Valid reports whether s is a known severity
func (s Severity) Valid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// LocationSource records where a photo's coordinates came from
type LocationSource string

const (
	LocationFromRequest LocationSource = "request"
	LocationFromGPS     LocationSource = "gps"
	LocationFromEXIF    LocationSource = "exif"
	LocationNone        LocationSource = "none"
)

// PhotoPayload is the photo-specific part of a record
type PhotoPayload struct {
	EventType      PhotoEvent     `json:"eventType"`
	Label          string         `json:"label"`
	ImageRef       string         `json:"imageRef"`
	ThumbnailRef   string         `json:"thumbnailRef,omitempty"`
	ContentHash    string         `json:"contentHash,omitempty"`
	Latitude       *float64       `json:"latitude,omitempty"`
	Longitude      *float64       `json:"longitude,omitempty"`
	LocationSource LocationSource `json:"locationSource"`
	Severity       *Severity      `json:"severity,omitempty"`
	Quantity       *int           `json:"quantity,omitempty"`
	Notes          string         `json:"notes,omitempty"`
}

// Kind implements RecordPayload
func (*PhotoPayload) Kind() RecordKind { return KindPhoto }

// HasLocation reports whether both coordinates are present
func (p *PhotoPayload) HasLocation() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// IsDataURI reports whether the image reference embeds the image itself
func (p *PhotoPayload) IsDataURI() bool {
	return strings.HasPrefix(p.ImageRef, "data:")
}

// SanitizeFilename removes path components and invalid characters
func SanitizeFilename(filename string) string {
	name := filepath.Base(filename)

	replacer := strings.NewReplacer(
		"..", "",
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)

	return replacer.Replace(name)
}
