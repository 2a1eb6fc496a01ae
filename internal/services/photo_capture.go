package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fieldsync/agent/internal/geo"
	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/observability"
	"github.com/fieldsync/agent/internal/repository"
	"github.com/google/uuid"
)

const defaultLocateTimeout = 3 * time.Second

// Locator provides the device's current position
type Locator interface {
	CurrentLocation(ctx context.Context) (lat, lng float64, err error)
}

// CaptureEvents fans out every record a capture service has saved
type CaptureEvents = Notifier[*models.Record]

// PhotoCaptureService turns camera output into photo records
type PhotoCaptureService struct {
	recordRepo    repository.RecordRepo
	media         *MediaStorageService
	thumbnails    *ThumbnailService
	exif          *EXIFService
	locator       Locator
	locateTimeout time.Duration
	events        *CaptureEvents
	metrics       *observability.CaptureMetrics
	logger        *observability.Logger
}

// NewPhotoCaptureService creates a new PhotoCaptureService.
// locator, thumbnails, events and metrics may be nil.
func NewPhotoCaptureService(
	recordRepo repository.RecordRepo,
	media *MediaStorageService,
	thumbnails *ThumbnailService,
	locator Locator,
	events *CaptureEvents,
	metrics *observability.CaptureMetrics,
) *PhotoCaptureService {
	return &PhotoCaptureService{
		recordRepo:    recordRepo,
		media:         media,
		thumbnails:    thumbnails,
		exif:          NewEXIFService(),
		locator:       locator,
		locateTimeout: defaultLocateTimeout,
		events:        events,
		metrics:       metrics,
		logger:        observability.WithField("component", "photo_capture"),
	}
}

// SetLocateTimeout bounds how long Capture waits for a GPS fix
func (s *PhotoCaptureService) SetLocateTimeout(d time.Duration) {
	if d > 0 {
		s.locateTimeout = d
	}
}

// Capture stores the image, resolves a location and saves a pending photo record
func (s *PhotoCaptureService) Capture(ctx context.Context, req *models.PhotoCaptureRequest) (record *models.Record, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "photo_capture", "capture")
	defer span.End()
	defer func() {
		s.metrics.RecordCapture(ctx, string(models.KindPhoto), err == nil)
		if err != nil {
			observability.RecordError(span, err)
		} else {
			observability.SetSuccess(span)
		}
	}()

	if strings.TrimSpace(req.FarmID) == "" {
		return nil, models.ErrEmptyFarmID
	}
	if !req.EventType.Valid() {
		return nil, models.ErrInvalidEventType
	}
	if req.Severity != nil && !req.Severity.Valid() {
		return nil, models.ErrInvalidSeverity
	}
	if len(req.Image) == 0 && strings.TrimSpace(req.ImageRef) == "" {
		return nil, models.ErrEmptyImage
	}
	if err := validateRequestLocation(req); err != nil {
		return nil, err
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.New().String()
	}

	payload := &models.PhotoPayload{
		EventType: req.EventType,
		Label:     strings.TrimSpace(req.Label),
		Severity:  req.Severity,
		Quantity:  req.Quantity,
		Notes:     strings.TrimSpace(req.Notes),
	}

	capturedAt := time.Now().UTC()
	if req.CapturedAt != nil && !req.CapturedAt.IsZero() {
		capturedAt = req.CapturedAt.UTC()
	}

	var exifData *EXIFData
	var stored *StoredMedia
	if len(req.Image) > 0 {
		exifData = s.exif.ExtractFromBytes(req.Image)
		if req.CapturedAt == nil && exifData.DateTaken != nil {
			capturedAt = exifData.DateTaken.UTC()
		}

		filename := req.Filename
		if strings.TrimSpace(filename) == "" {
			filename = id + ".jpg"
		}
		stored, err = s.media.Store(bytes.NewReader(req.Image), filename, capturedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to store image: %w", err)
		}
		payload.ImageRef = stored.Path
		payload.ContentHash = stored.Hash

		if s.thumbnails != nil {
			thumb, thumbErr := s.thumbnails.GeneratePreview(req.Image, id, stored.Path, exifData.Orientation)
			if thumbErr != nil {
				s.logger.WithContext(ctx).Warnf("Failed to generate preview for %s: %v", id, thumbErr)
			} else {
				payload.ThumbnailRef = thumb
			}
		}
	} else {
		payload.ImageRef = strings.TrimSpace(req.ImageRef)
	}

	s.resolveLocation(ctx, req, exifData, payload)

	record, err = models.NewRecord(id, req.FarmID, req.FarmName, capturedAt, payload)
	if err != nil {
		s.discard(stored)
		return nil, err
	}

	if err := s.recordRepo.Save(ctx, record); err != nil {
		s.discard(stored)
		return nil, fmt.Errorf("failed to save photo record: %w", err)
	}

	s.logger.WithContext(ctx).Infof("Captured photo %s for farm %s (location: %s)", record.ID, record.FarmID, payload.LocationSource)
	publish(s.events, record)
	return record, nil
}

// validateRequestLocation rejects a half-given or out-of-range position.
// Leaving both coordinates out lets GPS and EXIF fill in.
func validateRequestLocation(req *models.PhotoCaptureRequest) error {
	if req.Latitude == nil && req.Longitude == nil {
		return nil
	}
	if req.Latitude == nil || req.Longitude == nil {
		return models.ErrInvalidCoordinate
	}
	if !(geo.Coordinate{Lat: *req.Latitude, Lng: *req.Longitude}).Valid() {
		return models.ErrInvalidCoordinate
	}
	return nil
}

// resolveLocation walks request coordinates, GPS and EXIF in that order
func (s *PhotoCaptureService) resolveLocation(ctx context.Context, req *models.PhotoCaptureRequest, exifData *EXIFData, payload *models.PhotoPayload) {
	if req.Latitude != nil && req.Longitude != nil {
		lat, lng := *req.Latitude, *req.Longitude
		payload.Latitude, payload.Longitude = &lat, &lng
		payload.LocationSource = models.LocationFromRequest
		return
	}

	if s.locator != nil {
		locateCtx, cancel := context.WithTimeout(ctx, s.locateTimeout)
		lat, lng, err := s.locator.CurrentLocation(locateCtx)
		cancel()
		if err == nil {
			payload.Latitude, payload.Longitude = &lat, &lng
			payload.LocationSource = models.LocationFromGPS
			return
		}
		s.logger.WithContext(ctx).Debugf("GPS location unavailable: %v", err)
	}

	if exifData.HasLocation() && (geo.Coordinate{Lat: *exifData.Latitude, Lng: *exifData.Longitude}).Valid() {
		lat, lng := *exifData.Latitude, *exifData.Longitude
		payload.Latitude, payload.Longitude = &lat, &lng
		payload.LocationSource = models.LocationFromEXIF
		return
	}

	payload.LocationSource = models.LocationNone
}

func (s *PhotoCaptureService) discard(stored *StoredMedia) {
	if stored == nil {
		return
	}
	s.media.Delete(stored.Path)
	if stored.Path != "" {
		s.logger.Debugf("Removed orphaned image %s", stored.Path)
	}
}

func publish(events *CaptureEvents, record *models.Record) {
	if events != nil {
		events.Notify(record)
	}
}
