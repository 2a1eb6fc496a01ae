package models

import (
	"path/filepath"
	"strings"
)

// FileKind is the format of an imported geometry file
type FileKind string

const (
	FileKML FileKind = "kml"
	FileKMZ FileKind = "kmz"
)

// FileKindFromName derives the file kind from the extension
func FileKindFromName(name string) (FileKind, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".kml":
		return FileKML, nil
	case ".kmz":
		return FileKMZ, nil
	}
	return "", ErrUnsupportedFileKind
}

// BoundingBox is the minimal rectangle containing all coordinates of a file
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Extend grows the box to include a coordinate
func (b *BoundingBox) Extend(lat, lng float64) {
	if lat > b.North {
		b.North = lat
	}
	if lat < b.South {
		b.South = lat
	}
	if lng > b.East {
		b.East = lng
	}
	if lng < b.West {
		b.West = lng
	}
}

// FileImportPayload is the file-import-specific part of a record
type FileImportPayload struct {
	FileName        string       `json:"fileName"`
	FileKind        FileKind     `json:"fileKind"`
	Content         string       `json:"content"`
	BoundingBox     *BoundingBox `json:"boundingBox,omitempty"`
	CoordinateCount int          `json:"coordinateCount"`
}

// Kind implements RecordPayload
func (*FileImportPayload) Kind() RecordKind { return KindFileImport }
