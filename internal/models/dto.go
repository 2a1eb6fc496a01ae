package models

import "time"

// PhotoCaptureRequest is the input of a single photo capture
type PhotoCaptureRequest struct {
	ID         string     `json:"id,omitempty"`
	FarmID     string     `json:"farmId"`
	FarmName   string     `json:"farmName"`
	EventType  PhotoEvent `json:"eventType"`
	Label      string     `json:"label"`
	ImageRef   string     `json:"imageRef,omitempty"`
	Filename   string     `json:"filename,omitempty"`
	Latitude   *float64   `json:"latitude,omitempty"`
	Longitude  *float64   `json:"longitude,omitempty"`
	Severity   *Severity  `json:"severity,omitempty"`
	Quantity   *int       `json:"quantity,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	CapturedAt *time.Time `json:"capturedAt,omitempty"`

	// Image holds the camera output when the bytes are uploaded
	Image []byte `json:"-"`
}

// StartTrailRequest starts a trail recording
type StartTrailRequest struct {
	ID       string `json:"id,omitempty"`
	FarmID   string `json:"farmId"`
	FarmName string `json:"farmName"`
}

// TrailPointResponse reports whether a GPS update was kept
type TrailPointResponse struct {
	Retained      bool    `json:"retained"`
	PointCount    int     `json:"pointCount"`
	TotalDistance float64 `json:"totalDistance"`
}

// StartDrawingRequest opens a drawing session
type StartDrawingRequest struct {
	FarmID    string    `json:"farmId"`
	FarmName  string    `json:"farmName"`
	Shape     ShapeKind `json:"shape"`
	FieldName string    `json:"fieldName,omitempty"`
}

// CloseDrawingRequest finalizes a drawing session
type CloseDrawingRequest struct {
	FieldName string `json:"fieldName,omitempty"`
}

// FileImportRequest is the input of a KML/KMZ import
type FileImportRequest struct {
	ID       string `json:"id,omitempty"`
	FarmID   string `json:"farmId"`
	FarmName string `json:"farmName"`
	FileName string `json:"fileName"`
	Data     []byte `json:"-"`
}

// RecordListResponse is returned when listing records
type RecordListResponse struct {
	Records    []*Record `json:"records"`
	TotalCount int       `json:"totalCount"`
}

// RequeueResponse is returned after requeueing failed records
type RequeueResponse struct {
	Requeued int `json:"requeued"`
}

// HealthResponse is returned by health check
type HealthResponse struct {
	Status    string        `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Network   NetworkStatus `json:"network"`
	Stats     *SyncStats    `json:"stats,omitempty"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}
