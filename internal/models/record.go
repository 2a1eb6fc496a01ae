package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RecordKind selects the payload shape of a record
type RecordKind string

const (
	KindPhoto      RecordKind = "photo"
	KindTrail      RecordKind = "trail"
	KindDrawing    RecordKind = "drawing"
	KindFileImport RecordKind = "file_import"
)

// Valid reports whether k is one of the known record kinds
func (k RecordKind) Valid() bool {
	switch k {
	case KindPhoto, KindTrail, KindDrawing, KindFileImport:
		return true
	}
	return false
}

// SyncStatus is the per-record synchronization state
type SyncStatus string

const (
	StatusPending            SyncStatus = "pending"
	StatusSynced             SyncStatus = "synced"
	StatusFailed             SyncStatus = "failed"
	StatusDeletedPendingSync SyncStatus = "deleted_pending_sync"
)

// Valid reports whether s is a known sync status
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSynced, StatusFailed, StatusDeletedPendingSync:
		return true
	}
	return false
}

// CanTransition reports whether a record may move from one sync status to another.
//
//	pending -> synced | failed
//	failed  -> pending
//	any     -> deleted_pending_sync
func CanTransition(from, to SyncStatus) bool {
	if to == StatusDeletedPendingSync {
		return true
	}
	switch from {
	case StatusPending:
		return to == StatusSynced || to == StatusFailed
	case StatusFailed:
		return to == StatusPending
	}
	return false
}

// Record is one persisted unit of field-captured data
type Record struct {
	ID              string        `json:"id"`
	Kind            RecordKind    `json:"kind"`
	FarmID          string        `json:"farmId"`
	FarmName        string        `json:"farmName"`
	CapturedAt      time.Time     `json:"capturedAt"`
	SyncStatus      SyncStatus    `json:"syncStatus"`
	LastSyncAttempt *time.Time    `json:"lastSyncAttempt,omitempty"`
	SyncError       *string       `json:"syncError,omitempty"`
	SyncAttempts    int           `json:"syncAttempts"`
	IsDeleted       bool          `json:"isDeleted"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
	Payload         RecordPayload `json:"-"`
}

// NewRecord creates a pending record around a payload. An empty id gets a generated one.
func NewRecord(id, farmID, farmName string, capturedAt time.Time, payload RecordPayload) (*Record, error) {
	if strings.TrimSpace(farmID) == "" {
		return nil, ErrEmptyFarmID
	}
	if payload == nil {
		return nil, ErrPayloadMismatch
	}
	if strings.TrimSpace(id) == "" {
		id = uuid.New().String()
	}
	now := time.Now().UTC()
	if capturedAt.IsZero() {
		capturedAt = now
	}

	return &Record{
		ID:         id,
		Kind:       payload.Kind(),
		FarmID:     strings.TrimSpace(farmID),
		FarmName:   strings.TrimSpace(farmName),
		CapturedAt: capturedAt.UTC(),
		SyncStatus: StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		Payload:    payload,
	}, nil
}

// Validate checks the structural shape of a record
func (r *Record) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrEmptyRecordID
	}
	if strings.TrimSpace(r.FarmID) == "" {
		return ErrEmptyFarmID
	}
	if !r.Kind.Valid() {
		return ErrInvalidKind
	}
	if !r.SyncStatus.Valid() {
		return ErrInvalidStatus
	}
	if r.Payload == nil || r.Payload.Kind() != r.Kind {
		return ErrPayloadMismatch
	}
	return nil
}

// Photo returns the photo payload, or nil when the record is another kind
func (r *Record) Photo() *PhotoPayload {
	p, _ := r.Payload.(*PhotoPayload)
	return p
}

// Trail returns the trail payload, or nil when the record is another kind
func (r *Record) Trail() *TrailPayload {
	p, _ := r.Payload.(*TrailPayload)
	return p
}

// Drawing returns the drawing payload, or nil when the record is another kind
func (r *Record) Drawing() *DrawingPayload {
	p, _ := r.Payload.(*DrawingPayload)
	return p
}

// FileImport returns the file import payload, or nil when the record is another kind
func (r *Record) FileImport() *FileImportPayload {
	p, _ := r.Payload.(*FileImportPayload)
	return p
}

type recordAlias Record

type recordJSON struct {
	*recordAlias
	Payload json.RawMessage `json:"payload"`
}

// MarshalJSON writes the payload next to the record fields under "payload"
func (r Record) MarshalJSON() ([]byte, error) {
	payload, err := EncodePayload(r.Payload)
	if err != nil {
		return nil, err
	}
	alias := recordAlias(r)
	return json.Marshal(recordJSON{recordAlias: &alias, Payload: payload})
}

// UnmarshalJSON decodes the payload according to the record kind
func (r *Record) UnmarshalJSON(data []byte) error {
	aux := recordJSON{recordAlias: (*recordAlias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Payload) == 0 || string(aux.Payload) == "null" {
		r.Payload = nil
		return nil
	}
	payload, err := DecodePayload(r.Kind, aux.Payload)
	if err != nil {
		return err
	}
	r.Payload = payload
	return nil
}

// RecordPayload is implemented by exactly the four kind-specific payloads
type RecordPayload interface {
	Kind() RecordKind
	isRecordPayload()
}

func (*PhotoPayload) isRecordPayload()      {}
func (*TrailPayload) isRecordPayload()      {}
func (*DrawingPayload) isRecordPayload()    {}
func (*FileImportPayload) isRecordPayload() {}

// EncodePayload serializes a payload to JSON
func EncodePayload(p RecordPayload) ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	switch v := p.(type) {
	case *PhotoPayload:
		return json.Marshal(v)
	case *TrailPayload:
		return json.Marshal(v)
	case *DrawingPayload:
		return json.Marshal(v)
	case *FileImportPayload:
		return json.Marshal(v)
	default:
		return nil, fmt.Errorf("unknown payload type %T", p)
	}
}

// DecodePayload deserializes a payload for the given kind
func DecodePayload(kind RecordKind, data []byte) (RecordPayload, error) {
	var p RecordPayload
	switch kind {
	case KindPhoto:
		p = &PhotoPayload{}
	case KindTrail:
		p = &TrailPayload{}
	case KindDrawing:
		p = &DrawingPayload{}
	case KindFileImport:
		p = &FileImportPayload{}
	default:
		return nil, ErrInvalidKind
	}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return p, nil
}
