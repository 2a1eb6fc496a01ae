package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/observability"
	"github.com/fieldsync/agent/internal/repository"
	"github.com/google/uuid"
)

const (
	// DefaultDrawingMaxPoints caps a session's vertices. The action log keeps
	// the start entry plus the newest 2*maxPoints actions.
	DefaultDrawingMaxPoints = 5000
	// DefaultRecoveryWindow is how old a mirrored session may be and still be resumed
	DefaultRecoveryWindow = time.Hour

	drawingRecoverySlot = "drawing.session"
)

// DrawingService manages the single open drawing session
type DrawingService struct {
	recordRepo     repository.RecordRepo
	slotRepo       repository.SlotRepo
	maxPoints      int
	recoveryWindow time.Duration
	events         *CaptureEvents
	metrics        *observability.CaptureMetrics
	logger         *observability.Logger
	now            func() time.Time

	mu      sync.Mutex
	session *models.DrawingSession
}

// NewDrawingService creates a new DrawingService. slotRepo may be nil, which
// disables crash recovery.
func NewDrawingService(
	recordRepo repository.RecordRepo,
	slotRepo repository.SlotRepo,
	maxPoints int,
	recoveryWindow time.Duration,
	events *CaptureEvents,
	metrics *observability.CaptureMetrics,
) *DrawingService {
	if maxPoints <= 0 {
		maxPoints = DefaultDrawingMaxPoints
	}
	if recoveryWindow <= 0 {
		recoveryWindow = DefaultRecoveryWindow
	}
	return &DrawingService{
		recordRepo:     recordRepo,
		slotRepo:       slotRepo,
		maxPoints:      maxPoints,
		recoveryWindow: recoveryWindow,
		events:         events,
		metrics:        metrics,
		logger:         observability.WithField("component", "drawing"),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Start opens a new session
func (s *DrawingService) Start(ctx context.Context, req *models.StartDrawingRequest) (*models.DrawingSession, error) {
	if !req.Shape.Valid() {
		return nil, models.ErrInvalidShape
	}
	if strings.TrimSpace(req.FarmID) == "" {
		return nil, models.ErrEmptyFarmID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return nil, models.ErrDrawingInProgress
	}

	now := s.now()
	s.session = &models.DrawingSession{
		ID:        uuid.New().String(),
		FarmID:    strings.TrimSpace(req.FarmID),
		FarmName:  strings.TrimSpace(req.FarmName),
		Shape:     req.Shape,
		FieldName: strings.TrimSpace(req.FieldName),
		Points:    []models.DrawingPoint{},
		Actions:   []models.DrawingAction{{Type: models.ActionStartDrawing, At: now}},
		State:     models.DrawingOpen,
		StartedAt: now,
		UpdatedAt: now,
	}
	s.mirror(ctx)

	return s.session.Clone(), nil
}

// AddPoint appends a vertex to the open session
func (s *DrawingService) AddPoint(ctx context.Context, p models.DrawingPoint) (*models.DrawingSession, error) {
	if p.Screen == nil && p.Geo == nil {
		return nil, models.ErrInvalidCoordinate
	}
	if p.Geo != nil && !p.Geo.Valid() {
		return nil, models.ErrInvalidCoordinate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, models.ErrNoActiveDrawing
	}
	if len(s.session.Points) >= s.maxPoints {
		return nil, models.ErrDrawingPointLimit
	}

	s.session.Points = append(s.session.Points, p)
	s.record(models.DrawingAction{Type: models.ActionAddPoint, Point: &p})
	s.mirror(ctx)

	return s.session.Clone(), nil
}

// UndoLastPoint removes the most recent vertex
func (s *DrawingService) UndoLastPoint(ctx context.Context) (*models.DrawingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, models.ErrNoActiveDrawing
	}
	n := len(s.session.Points)
	if n == 0 {
		return nil, models.ErrNoPointToUndo
	}

	removed := s.session.Points[n-1]
	s.session.Points = s.session.Points[:n-1]
	s.record(models.DrawingAction{Type: models.ActionRemovePoint, Point: &removed})
	s.mirror(ctx)

	return s.session.Clone(), nil
}

// Close computes the area, saves the drawing and ends the session. A failed
// save leaves the session open.
func (s *DrawingService) Close(ctx context.Context, req *models.CloseDrawingRequest) (record *models.Record, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "drawing", "close")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, models.ErrNoActiveDrawing
	}
	defer func() {
		s.metrics.RecordCapture(ctx, string(models.KindDrawing), err == nil)
		observability.RecordError(span, err)
	}()

	payload := &models.DrawingPayload{
		Shape:     s.session.Shape,
		Points:    append([]models.DrawingPoint(nil), s.session.Points...),
		FieldName: s.session.FieldName,
	}
	if req != nil && strings.TrimSpace(req.FieldName) != "" {
		payload.FieldName = strings.TrimSpace(req.FieldName)
	}
	if len(payload.GeoPoints()) < payload.Shape.MinPoints() {
		return nil, models.ErrTooFewPoints
	}
	payload.RecomputeArea()

	record, err = models.NewRecord(s.session.ID, s.session.FarmID, s.session.FarmName, s.session.StartedAt, payload)
	if err != nil {
		return nil, err
	}
	if err := s.recordRepo.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save drawing: %w", err)
	}

	s.record(models.DrawingAction{Type: models.ActionClosePolygon})
	s.session.State = models.DrawingClosed
	s.logger.WithContext(ctx).Infof("Saved drawing %s (%s, %.2f ha)", record.ID, payload.Shape, payload.AreaHa)
	s.clear(ctx)

	publish(s.events, record)
	return record, nil
}

// Cancel discards the open session
func (s *DrawingService) Cancel(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return models.ErrNoActiveDrawing
	}
	s.record(models.DrawingAction{Type: models.ActionCancelDrawing})
	s.session.State = models.DrawingCancelled
	s.clear(ctx)
	return nil
}

// Current returns a copy of the open session, or nil
func (s *DrawingService) Current() *models.DrawingSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	return s.session.Clone()
}

// Recover resumes a session left in the recovery slot by a previous process.
// Sessions older than the recovery window are discarded. Returns nil when
// there is nothing to resume.
func (s *DrawingService) Recover(ctx context.Context) (*models.DrawingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return s.session.Clone(), nil
	}
	if s.slotRepo == nil {
		return nil, nil
	}

	value, updatedAt, found, err := s.slotRepo.Get(ctx, drawingRecoverySlot)
	if err != nil {
		return nil, fmt.Errorf("failed to read drawing recovery slot: %w", err)
	}
	if !found {
		return nil, nil
	}

	var session models.DrawingSession
	if err := json.Unmarshal([]byte(value), &session); err != nil {
		s.logger.Warnf("Discarding unreadable drawing recovery slot: %v", err)
		s.dropSlot(ctx)
		return nil, nil
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = updatedAt
	}

	if session.State != models.DrawingOpen || s.now().Sub(session.UpdatedAt) > s.recoveryWindow {
		s.logger.Infof("Discarding stale drawing session %s", session.ID)
		s.dropSlot(ctx)
		return nil, nil
	}

	if session.Points == nil {
		session.Points = []models.DrawingPoint{}
	}
	s.session = &session
	s.logger.Infof("Recovered drawing session %s with %d points", session.ID, len(session.Points))
	return s.session.Clone(), nil
}

func (s *DrawingService) record(action models.DrawingAction) {
	action.At = s.now()
	s.session.Actions = append(s.session.Actions, action)
	if limit := 2*s.maxPoints + 1; len(s.session.Actions) > limit {
		actions := s.session.Actions
		s.session.Actions = append(actions[:1], actions[len(actions)-limit+1:]...)
	}
	s.session.UpdatedAt = action.At
}

// mirror writes the session to the recovery slot. Failures only log.
func (s *DrawingService) mirror(ctx context.Context) {
	if s.slotRepo == nil {
		return
	}
	data, err := json.Marshal(s.session)
	if err != nil {
		s.logger.Warnf("Failed to encode drawing session: %v", err)
		return
	}
	if err := s.slotRepo.Set(ctx, drawingRecoverySlot, string(data)); err != nil {
		s.logger.WithContext(ctx).Warnf("Failed to mirror drawing session: %v", err)
	}
}

func (s *DrawingService) clear(ctx context.Context) {
	s.session = nil
	s.dropSlot(ctx)
}

func (s *DrawingService) dropSlot(ctx context.Context) {
	if s.slotRepo == nil {
		return
	}
	if err := s.slotRepo.Delete(ctx, drawingRecoverySlot); err != nil {
		s.logger.WithContext(ctx).Warnf("Failed to clear drawing recovery slot: %v", err)
	}
}
