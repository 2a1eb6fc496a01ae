package models

import (
	"time"

	"github.com/fieldsync/agent/internal/geo"
)

// TrailPoint is one GPS sample of a trail
type TrailPoint struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
	Accuracy  float64   `json:"accuracy"`
}

// Coordinate converts the point for distance math
func (p TrailPoint) Coordinate() geo.Coordinate {
	return geo.Coordinate{Lat: p.Latitude, Lng: p.Longitude}
}

// TrailPayload is the trail-specific part of a record
type TrailPayload struct {
	Points        []TrailPoint `json:"points"`
	StartTime     time.Time    `json:"startTime"`
	EndTime       *time.Time   `json:"endTime,omitempty"`
	TotalDistance float64      `json:"totalDistance"`
}

// Kind implements RecordPayload
func (*TrailPayload) Kind() RecordKind { return KindTrail }

// RecomputeDistance resums the great-circle length of the whole path
func (t *TrailPayload) RecomputeDistance() float64 {
	coords := make([]geo.Coordinate, len(t.Points))
	for i, p := range t.Points {
		coords[i] = p.Coordinate()
	}
	t.TotalDistance = geo.PathLength(coords)
	return t.TotalDistance
}

// LastPoint returns the most recent retained point
func (t *TrailPayload) LastPoint() (TrailPoint, bool) {
	if len(t.Points) == 0 {
		return TrailPoint{}, false
	}
	return t.Points[len(t.Points)-1], true
}

// Clone returns a deep copy
func (t *TrailPayload) Clone() *TrailPayload {
	c := *t
	c.Points = append([]TrailPoint(nil), t.Points...)
	if t.EndTime != nil {
		end := *t.EndTime
		c.EndTime = &end
	}
	return &c
}
