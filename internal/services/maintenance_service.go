package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/observability"
	"github.com/fieldsync/agent/internal/repository"
)

// MaintenanceStatus represents the current status of maintenance tasks
type MaintenanceStatus struct {
	Running          bool      `json:"running"`
	Enabled          bool      `json:"enabled"`
	LastRun          time.Time `json:"lastRun,omitempty"`
	LastRunDuration  string    `json:"lastRunDuration,omitempty"`
	OrphansRemoved   int       `json:"orphansRemoved"`
	PreviewsRepaired int       `json:"previewsRepaired"`
	StatsRepaired    bool      `json:"statsRepaired"`
	Errors           []string  `json:"errors,omitempty"`
	NextScheduledRun time.Time `json:"nextScheduledRun,omitempty"`
}

// MaintenanceService keeps the media folder and the stats row consistent
// with the record store.
type MaintenanceService struct {
	recordRepo repository.RecordRepo
	media      *MediaStorageService
	thumbnails *ThumbnailService
	exif       *EXIFService
	interval   time.Duration
	grace      time.Duration
	now        func() time.Time
	logger     *observability.Logger

	mu       sync.RWMutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
	status   MaintenanceStatus
}

// NewMaintenanceService creates a new MaintenanceService. Files younger than
// grace are never treated as orphans, so a capture that has stored its image
// but not yet saved its record is left alone.
func NewMaintenanceService(
	recordRepo repository.RecordRepo,
	media *MediaStorageService,
	thumbnails *ThumbnailService,
	interval, grace time.Duration,
) *MaintenanceService {
	if interval <= 0 {
		interval = time.Hour
	}
	if grace < 0 {
		grace = 0
	}
	return &MaintenanceService{
		recordRepo: recordRepo,
		media:      media,
		thumbnails: thumbnails,
		exif:       NewEXIFService(),
		interval:   interval,
		grace:      grace,
		now:        time.Now,
		logger:     observability.WithField("component", "maintenance"),
	}
}

// Start runs maintenance now and then every interval
func (s *MaintenanceService) Start() {
	s.mu.Lock()
	if s.stopChan != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stopChan = stop
	s.done = done
	s.status.Enabled = true
	s.status.NextScheduledRun = s.now().Add(s.interval)
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(done)
		defer cancel()
		go func() {
			<-stop
			cancel()
		}()

		s.RunNow(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.mu.Lock()
				s.status.NextScheduledRun = s.now().Add(s.interval)
				s.mu.Unlock()
				s.RunNow(ctx)
			case <-stop:
				return
			}
		}
	}()

	s.logger.Infof("Maintenance service started (runs every %s)", s.interval)
}

// Stop ends the loop and waits for a run in progress
func (s *MaintenanceService) Stop() {
	s.mu.Lock()
	if s.stopChan == nil {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.stopChan = nil
	s.status.Enabled = false
	s.status.NextScheduledRun = time.Time{}
	s.mu.Unlock()

	<-done
	s.logger.Info("Maintenance service stopped")
}

// GetStatus returns the current maintenance status
func (s *MaintenanceService) GetStatus() MaintenanceStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := s.status
	status.Errors = append([]string(nil), s.status.Errors...)
	return status
}

// RunNow performs every maintenance task and returns the resulting status.
// A call made while another run is in progress returns immediately.
func (s *MaintenanceService) RunNow(ctx context.Context) MaintenanceStatus {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Debug("Maintenance already running, skipping")
		return s.GetStatus()
	}
	s.running = true
	s.status.Running = true
	s.mu.Unlock()

	startTime := s.now()
	log := s.logger.WithContext(ctx)

	var errs []string
	orphans, orphanErrs := s.removeOrphanedMedia(ctx)
	errs = append(errs, orphanErrs...)
	previews, previewErrs := s.repairPreviews(ctx)
	errs = append(errs, previewErrs...)
	repaired, err := s.repairStats(ctx)
	if err != nil {
		errs = append(errs, "stats: "+err.Error())
	}

	duration := time.Since(startTime)

	s.mu.Lock()
	s.running = false
	s.status.Running = false
	s.status.LastRun = startTime
	s.status.LastRunDuration = duration.Round(time.Millisecond).String()
	s.status.OrphansRemoved = orphans
	s.status.PreviewsRepaired = previews
	s.status.StatsRepaired = repaired
	s.status.Errors = errs
	s.mu.Unlock()

	if orphans > 0 {
		log.Infof("Maintenance: removed %d orphaned media files", orphans)
	}
	if previews > 0 {
		log.Infof("Maintenance: regenerated %d previews", previews)
	}
	if len(errs) > 0 {
		log.Warnf("Maintenance: completed with %d errors", len(errs))
	}
	log.Debugf("Maintenance tasks completed in %s", duration.Round(time.Millisecond))

	return s.GetStatus()
}

// photoRecords lists live photos plus those still waiting for remote deletion
func (s *MaintenanceService) photoRecords(ctx context.Context) ([]*models.Record, error) {
	live, err := s.recordRepo.GetByKind(ctx, models.KindPhoto)
	if err != nil {
		return nil, err
	}
	deleted, err := s.recordRepo.GetByStatus(ctx, models.StatusDeletedPendingSync)
	if err != nil {
		return nil, err
	}
	for _, rec := range deleted {
		if rec.Kind == models.KindPhoto {
			live = append(live, rec)
		}
	}
	return live, nil
}

// removeOrphanedMedia deletes stored images and previews no photo record points at
func (s *MaintenanceService) removeOrphanedMedia(ctx context.Context) (int, []string) {
	photos, err := s.photoRecords(ctx)
	if err != nil {
		return 0, []string{"failed to list photos: " + err.Error()}
	}

	referenced := make(map[string]bool, len(photos)*2)
	for _, rec := range photos {
		p := rec.Photo()
		if p == nil || p.IsDataURI() {
			continue
		}
		referenced[p.ImageRef] = true
		if p.ThumbnailRef != "" {
			referenced[p.ThumbnailRef] = true
		}
	}

	base := s.media.BasePath()
	cutoff := s.now().Add(-s.grace)
	var errs []string
	removed := 0

	walkErr := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			errs = append(errs, err.Error())
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !s.media.Allowed(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		// only Year/Month folders hold captured media
		if !strings.Contains(rel, "/") || referenced[rel] {
			return nil
		}

		info, err := d.Info()
		if err != nil || info.ModTime().After(cutoff) {
			return nil
		}

		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, fmt.Sprintf("failed to delete %s: %v", rel, err))
			return nil
		}
		removed++
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr.Error())
	}

	return removed, errs
}

// repairPreviews regenerates preview files that a record references but that
// are gone from disk. The record itself is not rewritten.
func (s *MaintenanceService) repairPreviews(ctx context.Context) (int, []string) {
	if s.thumbnails == nil {
		return 0, nil
	}

	photos, err := s.recordRepo.GetByKind(ctx, models.KindPhoto)
	if err != nil {
		return 0, []string{"failed to list photos: " + err.Error()}
	}

	var errs []string
	repaired := 0
	for _, rec := range photos {
		if ctx.Err() != nil {
			break
		}
		p := rec.Photo()
		if p == nil || p.ThumbnailRef == "" || p.IsDataURI() || s.media.Exists(p.ThumbnailRef) {
			continue
		}

		fullPath, err := s.media.GetFullPath(p.ImageRef)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(fullPath)
		if err != nil {
			// image gone too, nothing to rebuild from
			s.logger.Debugf("Maintenance: no source image for %s: %v", rec.ID, err)
			continue
		}

		orientation := s.exif.ExtractFromBytes(data).Orientation
		if _, err := s.thumbnails.GeneratePreview(data, rec.ID, p.ImageRef, orientation); err != nil {
			errs = append(errs, fmt.Sprintf("failed to regenerate preview for %s: %v", rec.ID, err))
			continue
		}
		repaired++
	}

	return repaired, errs
}

// repairStats recounts the stats row and reports whether it had drifted
func (s *MaintenanceService) repairStats(ctx context.Context) (bool, error) {
	before, err := s.recordRepo.GetStats(ctx)
	if err != nil {
		return false, err
	}
	after, err := s.recordRepo.RecountStats(ctx)
	if err != nil {
		return false, err
	}
	if *before != *after {
		s.logger.WithContext(ctx).Warnf("Maintenance: stats drifted from %+v, recounted to %+v", *before, *after)
		return true, nil
	}
	return false, nil
}
