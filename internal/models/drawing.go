package models

import (
	"time"

	"github.com/fieldsync/agent/internal/geo"
)

// ShapeKind is the drawing tool used to outline a field
type ShapeKind string

const (
	ShapeFreehand  ShapeKind = "freehand"
	ShapePolygon   ShapeKind = "polygon"
	ShapePivot     ShapeKind = "pivot"
	ShapeRectangle ShapeKind = "rectangle"
)

// Valid reports whether s is a known shape
func (s ShapeKind) Valid() bool {
	switch s {
	case ShapeFreehand, ShapePolygon, ShapePivot, ShapeRectangle:
		return true
	}
	return false
}

// MinPoints is the number of geo points needed to close the shape
func (s ShapeKind) MinPoints() int {
	switch s {
	case ShapePivot, ShapeRectangle:
		return 2
	default:
		return 3
	}
}

// ScreenPoint is a position on the map canvas in pixels
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DrawingPoint carries screen and/or geo coordinates of one vertex
type DrawingPoint struct {
	Screen *ScreenPoint    `json:"screen,omitempty"`
	Geo    *geo.Coordinate `json:"geo,omitempty"`
}

// DrawingPayload is the drawing-specific part of a record
type DrawingPayload struct {
	Shape     ShapeKind      `json:"shape"`
	Points    []DrawingPoint `json:"points"`
	FieldName string         `json:"fieldName,omitempty"`
	AreaM2    float64        `json:"areaM2"`
	AreaHa    float64        `json:"areaHa"`
}

// Kind implements RecordPayload
func (*DrawingPayload) Kind() RecordKind { return KindDrawing }

// GeoPoints returns the vertices that have geo coordinates, in order
func (d *DrawingPayload) GeoPoints() []geo.Coordinate {
	coords := make([]geo.Coordinate, 0, len(d.Points))
	for _, p := range d.Points {
		if p.Geo != nil {
			coords = append(coords, *p.Geo)
		}
	}
	return coords
}

// RecomputeArea derives AreaM2 and AreaHa from the points
func (d *DrawingPayload) RecomputeArea() {
	d.AreaM2 = geo.ShapeArea(string(d.Shape), d.GeoPoints())
	d.AreaHa = d.AreaM2 / geo.SquareMetersPerHectare
}

// DrawingActionType is one entry kind of a drawing session's undo log
type DrawingActionType string

const (
	ActionStartDrawing  DrawingActionType = "start_drawing"
	ActionAddPoint      DrawingActionType = "add_point"
	ActionRemovePoint   DrawingActionType = "remove_point"
	ActionClosePolygon  DrawingActionType = "close_polygon"
	ActionCancelDrawing DrawingActionType = "cancel_drawing"
)

// DrawingAction is one logged mutation of a drawing session
type DrawingAction struct {
	Type  DrawingActionType `json:"type"`
	Point *DrawingPoint     `json:"point,omitempty"`
	At    time.Time         `json:"at"`
}

// DrawingState is the lifecycle of a drawing session
type DrawingState string

const (
	DrawingOpen      DrawingState = "open"
	DrawingClosed    DrawingState = "closed"
	DrawingCancelled DrawingState = "cancelled"
)

// DrawingSession is an in-memory, not yet persisted drawing
type DrawingSession struct {
	ID        string          `json:"id"`
	FarmID    string          `json:"farmId"`
	FarmName  string          `json:"farmName"`
	Shape     ShapeKind       `json:"shape"`
	FieldName string          `json:"fieldName,omitempty"`
	Points    []DrawingPoint  `json:"points"`
	Actions   []DrawingAction `json:"actions"`
	State     DrawingState    `json:"state"`
	StartedAt time.Time       `json:"startedAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Clone returns a deep copy of the session
func (s *DrawingSession) Clone() *DrawingSession {
	c := *s
	c.Points = append([]DrawingPoint(nil), s.Points...)
	c.Actions = append([]DrawingAction(nil), s.Actions...)
	return &c
}
