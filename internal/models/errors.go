package models

import "fmt"

// Record errors
var (
	ErrRecordNotFound      = RecordError{"record not found"}
	ErrEmptyRecordID       = RecordError{"record ID cannot be empty"}
	ErrEmptyFarmID         = RecordError{"farm ID cannot be empty"}
	ErrInvalidKind         = RecordError{"unknown record kind"}
	ErrInvalidStatus       = RecordError{"unknown sync status"}
	ErrPayloadMismatch     = RecordError{"payload does not match record kind"}
	ErrKindChanged         = RecordError{"record kind cannot change"}
	ErrInvalidTransition   = RecordError{"sync status transition not allowed"}
	ErrOffline             = RecordError{"device is offline"}
	ErrInvalidEventType    = RecordError{"unknown photo event type"}
	ErrInvalidSeverity     = RecordError{"severity must be 'low', 'medium' or 'high'"}
	ErrEmptyImage          = RecordError{"image data or reference is required"}
	ErrFileTooLarge        = RecordError{"file exceeds maximum allowed size"}
	ErrInvalidExtension    = RecordError{"file extension not allowed"}
	ErrPathTraversal       = RecordError{"path traversal detected"}
	ErrAlreadyRecording    = RecordError{"a trail is already being recorded"}
	ErrNotRecording        = RecordError{"no trail is being recorded"}
	ErrInvalidCoordinate   = RecordError{"coordinate out of range"}
	ErrInvalidShape        = RecordError{"unknown drawing shape"}
	ErrDrawingInProgress   = RecordError{"a drawing session is already open"}
	ErrNoActiveDrawing     = RecordError{"no drawing session is open"}
	ErrNoPointToUndo       = RecordError{"drawing has no point to undo"}
	ErrTooFewPoints        = RecordError{"drawing needs more points to close"}
	ErrDrawingPointLimit   = RecordError{"drawing point limit reached"}
	ErrUnsupportedFileKind = RecordError{"only .kml and .kmz files can be imported"}
	ErrNoKMLInArchive      = RecordError{"kmz archive contains no .kml entry"}
	ErrEmptyFile           = RecordError{"imported file is empty"}
	ErrNoLocationFix       = RecordError{"no recent location fix"}
)

type RecordError struct {
	Message string
}

func (e RecordError) Error() string {
	return e.Message
}

// StorageError wraps a failure of the durable record store
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// RemoteSyncError describes a failed push to the remote sync target
type RemoteSyncError struct {
	RecordID   string
	StatusCode int
	Err        error
}

func (e *RemoteSyncError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("remote sync of %s failed with status %d: %v", e.RecordID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote sync of %s failed: %v", e.RecordID, e.Err)
}

func (e *RemoteSyncError) Unwrap() error {
	return e.Err
}
