package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fieldsync/agent/internal/geo"
	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/observability"
	"github.com/fieldsync/agent/internal/repository"
	"github.com/google/uuid"
)

// DefaultMinPointDistance is the GPS jitter threshold in meters
const DefaultMinPointDistance = 2.0

// maxFixAge bounds how old the last GPS update may be to serve as the current location
const maxFixAge = 30 * time.Second

type trailSession struct {
	id       string
	farmID   string
	farmName string
	trail    *models.TrailPayload
}

// TrailRecorder records one GPS trail at a time and saves it when stopped
type TrailRecorder struct {
	recordRepo       repository.RecordRepo
	minPointDistance float64
	events           *CaptureEvents
	metrics          *observability.CaptureMetrics
	logger           *observability.Logger

	mu        sync.Mutex
	active    *trailSession
	lastFix   models.TrailPoint
	lastFixAt time.Time
	now       func() time.Time
}

// NewTrailRecorder creates a new TrailRecorder. A non-positive minPointDistance uses the default.
func NewTrailRecorder(recordRepo repository.RecordRepo, minPointDistance float64, events *CaptureEvents, metrics *observability.CaptureMetrics) *TrailRecorder {
	if minPointDistance <= 0 {
		minPointDistance = DefaultMinPointDistance
	}
	return &TrailRecorder{
		recordRepo:       recordRepo,
		minPointDistance: minPointDistance,
		events:           events,
		metrics:          metrics,
		logger:           observability.WithField("component", "trail_recorder"),
		now:              time.Now,
	}
}

// Start begins a recording
func (r *TrailRecorder) Start(ctx context.Context, req *models.StartTrailRequest) (*models.Record, error) {
	if strings.TrimSpace(req.FarmID) == "" {
		return nil, models.ErrEmptyFarmID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return nil, models.ErrAlreadyRecording
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.New().String()
	}
	r.lastFixAt = time.Time{}
	r.active = &trailSession{
		id:       id,
		farmID:   strings.TrimSpace(req.FarmID),
		farmName: strings.TrimSpace(req.FarmName),
		trail: &models.TrailPayload{
			Points:    []models.TrailPoint{},
			StartTime: time.Now().UTC(),
		},
	}

	r.logger.WithContext(ctx).Infof("Started trail %s for farm %s", id, r.active.farmID)
	return r.snapshot(), nil
}

// AddPoint appends a GPS update unless it lies within the jitter threshold
// of the last retained point
func (r *TrailRecorder) AddPoint(p models.TrailPoint) (models.TrailPointResponse, error) {
	if !p.Coordinate().Valid() {
		return models.TrailPointResponse{}, models.ErrInvalidCoordinate
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == nil {
		return models.TrailPointResponse{}, models.ErrNotRecording
	}
	trail := r.active.trail

	if p.Timestamp.IsZero() {
		p.Timestamp = r.now()
	}
	p.Timestamp = p.Timestamp.UTC()
	r.lastFix, r.lastFixAt = p, r.now()

	retained := true
	if last, ok := trail.LastPoint(); ok && geo.Distance(last.Coordinate(), p.Coordinate()) < r.minPointDistance {
		retained = false
	}
	if retained {
		trail.Points = append(trail.Points, p)
		trail.RecomputeDistance()
	}

	return models.TrailPointResponse{
		Retained:      retained,
		PointCount:    len(trail.Points),
		TotalDistance: trail.TotalDistance,
	}, nil
}

// Stop finalizes the trail and saves it. When saving fails the recording stays
// active so the caller can retry.
func (r *TrailRecorder) Stop(ctx context.Context) (record *models.Record, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "trail_recorder", "stop")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == nil {
		return nil, models.ErrNotRecording
	}
	defer func() {
		r.metrics.RecordCapture(ctx, string(models.KindTrail), err == nil)
		observability.RecordError(span, err)
	}()

	trail := r.active.trail.Clone()
	end := time.Now().UTC()
	trail.EndTime = &end
	trail.RecomputeDistance()

	record, err = models.NewRecord(r.active.id, r.active.farmID, r.active.farmName, trail.StartTime, trail)
	if err != nil {
		return nil, err
	}
	if err := r.recordRepo.Save(ctx, record); err != nil {
		r.logger.WithContext(ctx).Errorf("Failed to save trail %s: %v", record.ID, err)
		return nil, fmt.Errorf("failed to save trail: %w", err)
	}

	r.active = nil
	r.logger.WithContext(ctx).Infof("Saved trail %s: %d points, %.1f m", record.ID, len(trail.Points), trail.TotalDistance)
	publish(r.events, record)
	return record, nil
}

// Current returns a snapshot of the recording in progress, or nil when idle
func (r *TrailRecorder) Current() *models.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

// CurrentLocation serves the latest GPS update received while recording, so
// photos taken along a trail are located without a separate fix
func (r *TrailRecorder) CurrentLocation(ctx context.Context) (float64, float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil || r.lastFixAt.IsZero() || r.now().Sub(r.lastFixAt) > maxFixAge {
		return 0, 0, models.ErrNoLocationFix
	}
	return r.lastFix.Latitude, r.lastFix.Longitude, nil
}

// IsRecording reports whether a trail is active
func (r *TrailRecorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

func (r *TrailRecorder) snapshot() *models.Record {
	if r.active == nil {
		return nil
	}
	record, err := models.NewRecord(r.active.id, r.active.farmID, r.active.farmName, r.active.trail.StartTime, r.active.trail.Clone())
	if err != nil {
		return nil
	}
	return record
}
