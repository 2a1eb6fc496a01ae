package services

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"math"
	"path"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/observability"
	"github.com/fieldsync/agent/internal/repository"
)

const maxKMLBytes = 64 << 20

// FileImportService stores KML/KMZ files picked by the user as records
type FileImportService struct {
	recordRepo repository.RecordRepo
	events     *CaptureEvents
	metrics    *observability.CaptureMetrics
	logger     *observability.Logger
}

// NewFileImportService creates a new FileImportService
func NewFileImportService(recordRepo repository.RecordRepo, events *CaptureEvents, metrics *observability.CaptureMetrics) *FileImportService {
	return &FileImportService{
		recordRepo: recordRepo,
		events:     events,
		metrics:    metrics,
		logger:     observability.WithField("component", "file_import"),
	}
}

// Import reads the file, extracts its bounding box and saves a pending record.
// Files without usable coordinates are still imported, without a bounding box.
func (s *FileImportService) Import(ctx context.Context, req *models.FileImportRequest) (record *models.Record, err error) {
	ctx, span := observability.StartServiceSpan(ctx, "file_import", "import")
	defer span.End()
	defer func() {
		s.metrics.RecordCapture(ctx, string(models.KindFileImport), err == nil)
		observability.RecordError(span, err)
	}()

	if strings.TrimSpace(req.FarmID) == "" {
		return nil, models.ErrEmptyFarmID
	}
	fileName := models.SanitizeFilename(req.FileName)
	kind, err := models.FileKindFromName(fileName)
	if err != nil {
		return nil, err
	}
	if len(req.Data) == 0 {
		return nil, models.ErrEmptyFile
	}

	content := string(req.Data)
	if kind == models.FileKMZ {
		content, err = ReadKMZ(req.Data)
		if err != nil {
			return nil, err
		}
	}

	box, count := ExtractBoundingBox(content)
	payload := &models.FileImportPayload{
		FileName:        fileName,
		FileKind:        kind,
		Content:         content,
		BoundingBox:     box,
		CoordinateCount: count,
	}

	record, err = models.NewRecord(req.ID, req.FarmID, req.FarmName, time.Time{}, payload)
	if err != nil {
		return nil, err
	}
	if err := s.recordRepo.Save(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to save import: %w", err)
	}

	if box == nil {
		s.logger.WithContext(ctx).Warnf("Imported %s without usable coordinates", fileName)
	} else {
		s.logger.WithContext(ctx).Infof("Imported %s (%d coordinates)", fileName, count)
	}
	publish(s.events, record)
	return record, nil
}

// ReadKMZ returns the text of the first .kml entry of a KMZ archive
func ReadKMZ(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("invalid kmz archive: %w", err)
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(path.Ext(f.Name), ".kml") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open %s: %w", f.Name, err)
		}
		body, err := io.ReadAll(io.LimitReader(rc, maxKMLBytes))
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
		return string(body), nil
	}

	return "", models.ErrNoKMLInArchive
}

// ExtractBoundingBox scans <coordinates> and <gx:coord> elements and returns
// the box around every valid coordinate with the number of coordinates used.
// Malformed values are skipped; no valid coordinate yields a nil box.
func ExtractBoundingBox(content string) (*models.BoundingBox, int) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(escapeCDATA(content)))
	if err != nil {
		return nil, 0
	}

	var box *models.BoundingBox
	count := 0
	add := func(lngText, latText string) {
		lng, errLng := strconv.ParseFloat(lngText, 64)
		lat, errLat := strconv.ParseFloat(latText, 64)
		if errLng != nil || errLat != nil || !validLatLng(lat, lng) {
			return
		}
		if box == nil {
			box = &models.BoundingBox{North: lat, South: lat, East: lng, West: lng}
		} else {
			box.Extend(lat, lng)
		}
		count++
	}

	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		switch strings.ToLower(goquery.NodeName(sel)) {
		case "coordinates":
			text := tupleSeparator.ReplaceAllString(sel.Text(), ",")
			fields := strings.Fields(text)
			if strings.Contains(text, ",") {
				for _, tuple := range fields {
					parts := strings.Split(tuple, ",")
					if len(parts) >= 2 {
						add(parts[0], parts[1])
					}
				}
				return
			}
			for i := 0; i+1 < len(fields); i += 2 {
				add(fields[i], fields[i+1])
			}
		case "gx:coord":
			fields := strings.Fields(sel.Text())
			if len(fields) >= 2 {
				add(fields[0], fields[1])
			}
		}
	})

	return box, count
}

var (
	cdataSection   = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)
	tupleSeparator = regexp.MustCompile(`\s*,\s*`)
)

// escapeCDATA turns CDATA sections into escaped text. The HTML parser does
// not know CDATA, so markup inside a description would otherwise be parsed
// and an unclosed raw-text tag would hide the rest of the document.
func escapeCDATA(content string) string {
	return cdataSection.ReplaceAllStringFunc(content, func(section string) string {
		inner := cdataSection.FindStringSubmatch(section)[1]
		return html.EscapeString(inner)
	})
}

func validLatLng(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
