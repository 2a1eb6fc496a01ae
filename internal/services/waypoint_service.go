package services

import (
	"context"
	"sort"
	"time"

	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/repository"
)

// WaypointService builds read-only views on top of stored records
type WaypointService struct {
	recordRepo repository.RecordRepo
}

// NewWaypointService creates a new WaypointService
func NewWaypointService(recordRepo repository.RecordRepo) *WaypointService {
	return &WaypointService{recordRepo: recordRepo}
}

// TrailWaypoints returns the start of a trail, the geo-tagged photos of the
// same farm taken while it was recorded, and its end, ordered by time
func (s *WaypointService) TrailWaypoints(ctx context.Context, trailID string) (*models.TrailWaypoints, error) {
	record, err := s.recordRepo.GetByID(ctx, trailID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, models.ErrRecordNotFound
	}
	trail := record.Trail()
	if trail == nil {
		return nil, models.ErrRecordNotFound
	}

	view := &models.TrailWaypoints{
		TrailID:       record.ID,
		FarmID:        record.FarmID,
		TotalDistance: trail.TotalDistance,
		Waypoints:     []models.Waypoint{},
	}
	if len(trail.Points) == 0 {
		return view, nil
	}

	first := trail.Points[0]
	last, _ := trail.LastPoint()
	windowStart := trail.StartTime
	if windowStart.IsZero() || first.Timestamp.Before(windowStart) {
		windowStart = first.Timestamp
	}
	windowEnd := last.Timestamp
	if trail.EndTime != nil && trail.EndTime.After(windowEnd) {
		windowEnd = *trail.EndTime
	}

	view.Waypoints = append(view.Waypoints, models.Waypoint{
		Kind:      models.WaypointStart,
		RecordID:  record.ID,
		Latitude:  first.Latitude,
		Longitude: first.Longitude,
		Timestamp: first.Timestamp,
	})

	farmRecords, err := s.recordRepo.GetByFarm(ctx, record.FarmID)
	if err != nil {
		return nil, err
	}
	for _, r := range farmRecords {
		photo := r.Photo()
		if photo == nil || !photo.HasLocation() {
			continue
		}
		if !inWindow(r.CapturedAt, windowStart, windowEnd) {
			continue
		}
		view.Waypoints = append(view.Waypoints, models.Waypoint{
			Kind:      models.WaypointPhoto,
			RecordID:  r.ID,
			Label:     photo.Label,
			Latitude:  *photo.Latitude,
			Longitude: *photo.Longitude,
			Timestamp: r.CapturedAt,
		})
	}

	end := models.Waypoint{
		Kind:      models.WaypointEnd,
		RecordID:  record.ID,
		Latitude:  last.Latitude,
		Longitude: last.Longitude,
		Timestamp: last.Timestamp,
	}
	if trail.EndTime != nil {
		end.Timestamp = *trail.EndTime
	}
	view.Waypoints = append(view.Waypoints, end)

	// start stays first and end stays last on equal timestamps
	sort.SliceStable(view.Waypoints, func(i, j int) bool {
		return view.Waypoints[i].Timestamp.Before(view.Waypoints[j].Timestamp)
	})
	return view, nil
}

func inWindow(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// FarmSummary counts one farm's records by kind and sync status
func (s *WaypointService) FarmSummary(ctx context.Context, farmID string) (*models.FarmSummary, error) {
	if farmID == "" {
		return nil, models.ErrEmptyFarmID
	}
	records, err := s.recordRepo.GetByFarm(ctx, farmID)
	if err != nil {
		return nil, err
	}

	summary := &models.FarmSummary{
		FarmID:   farmID,
		ByKind:   map[models.RecordKind]int{},
		ByStatus: map[models.SyncStatus]int{},
	}
	for _, r := range records {
		if summary.FarmName == "" {
			summary.FarmName = r.FarmName
		}
		summary.Total++
		summary.ByKind[r.Kind]++
		summary.ByStatus[r.SyncStatus]++
	}
	return summary, nil
}
