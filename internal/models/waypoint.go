package models

import "time"

// WaypointKind marks the role of a waypoint along a trail
type WaypointKind string

const (
	WaypointStart WaypointKind = "start"
	WaypointPhoto WaypointKind = "photo"
	WaypointEnd   WaypointKind = "end"
)

// Waypoint is a notable position derived from stored records
type Waypoint struct {
	Kind      WaypointKind `json:"kind"`
	RecordID  string       `json:"recordId"`
	Label     string       `json:"label,omitempty"`
	Latitude  float64      `json:"latitude"`
	Longitude float64      `json:"longitude"`
	Timestamp time.Time    `json:"timestamp"`
}

// TrailWaypoints is the derived view of one trail
type TrailWaypoints struct {
	TrailID       string     `json:"trailId"`
	FarmID        string     `json:"farmId"`
	TotalDistance float64    `json:"totalDistance"`
	Waypoints     []Waypoint `json:"waypoints"`
}

// FarmSummary counts one farm's records by kind and sync status
type FarmSummary struct {
	FarmID   string             `json:"farmId"`
	FarmName string             `json:"farmName,omitempty"`
	Total    int                `json:"total"`
	ByKind   map[RecordKind]int `json:"byKind"`
	ByStatus map[SyncStatus]int `json:"byStatus"`
}
