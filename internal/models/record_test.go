package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	t.Run("creates a pending record with the payload kind", func(t *testing.T) {
		captured := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

		rec, err := NewRecord("", "F1", "North Farm", captured, &PhotoPayload{EventType: EventDisease})

		require.NoError(t, err)
		assert.NotEmpty(t, rec.ID)
		assert.Equal(t, KindPhoto, rec.Kind)
		assert.Equal(t, StatusPending, rec.SyncStatus)
		assert.Equal(t, captured, rec.CapturedAt)
		assert.Nil(t, rec.LastSyncAttempt)
		assert.Nil(t, rec.SyncError)
		assert.False(t, rec.IsDeleted)
		assert.NoError(t, rec.Validate())
	})

	t.Run("keeps a caller supplied id", func(t *testing.T) {
		rec, err := NewRecord("trail-1", "F1", "", time.Time{}, &TrailPayload{})

		require.NoError(t, err)
		assert.Equal(t, "trail-1", rec.ID)
		assert.False(t, rec.CapturedAt.IsZero())
	})

	t.Run("rejects empty farm id", func(t *testing.T) {
		_, err := NewRecord("", "  ", "", time.Now(), &TrailPayload{})
		assert.ErrorIs(t, err, ErrEmptyFarmID)
	})

	t.Run("rejects nil payload", func(t *testing.T) {
		_, err := NewRecord("", "F1", "", time.Now(), nil)
		assert.ErrorIs(t, err, ErrPayloadMismatch)
	})

	t.Run("generates unique IDs", func(t *testing.T) {
		a, err := NewRecord("", "F1", "", time.Now(), &DrawingPayload{})
		require.NoError(t, err)
		b, err := NewRecord("", "F1", "", time.Now(), &DrawingPayload{})
		require.NoError(t, err)

		assert.NotEqual(t, a.ID, b.ID)
	})
}

func TestRecordValidate(t *testing.T) {
	valid := func() *Record {
		rec, err := NewRecord("r1", "F1", "", time.Now(), &FileImportPayload{FileName: "a.kml"})
		require.NoError(t, err)
		return rec
	}

	t.Run("empty id", func(t *testing.T) {
		rec := valid()
		rec.ID = ""
		assert.ErrorIs(t, rec.Validate(), ErrEmptyRecordID)
	})

	t.Run("unknown kind", func(t *testing.T) {
		rec := valid()
		rec.Kind = "video"
		assert.ErrorIs(t, rec.Validate(), ErrInvalidKind)
	})

	t.Run("unknown status", func(t *testing.T) {
		rec := valid()
		rec.SyncStatus = "queued"
		assert.ErrorIs(t, rec.Validate(), ErrInvalidStatus)
	})

	t.Run("payload of another kind", func(t *testing.T) {
		rec := valid()
		rec.Payload = &TrailPayload{}
		assert.ErrorIs(t, rec.Validate(), ErrPayloadMismatch)
	})
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to SyncStatus
		want     bool
	}{
		{StatusPending, StatusSynced, true},
		{StatusPending, StatusFailed, true},
		{StatusFailed, StatusPending, true},
		{StatusPending, StatusDeletedPendingSync, true},
		{StatusSynced, StatusDeletedPendingSync, true},
		{StatusFailed, StatusDeletedPendingSync, true},
		{StatusDeletedPendingSync, StatusDeletedPendingSync, true},
		{StatusSynced, StatusPending, false},
		{StatusSynced, StatusFailed, false},
		{StatusFailed, StatusSynced, false},
		{StatusDeletedPendingSync, StatusPending, false},
		{StatusDeletedPendingSync, StatusSynced, false},
		{StatusPending, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestRecordJSON(t *testing.T) {
	t.Run("payload is decoded by kind", func(t *testing.T) {
		end := time.Date(2024, 3, 15, 11, 0, 0, 0, time.UTC)
		rec, err := NewRecord("t1", "F1", "North", time.Now(), &TrailPayload{
			Points: []TrailPoint{
				{Latitude: 0, Longitude: 0, Accuracy: 5},
				{Latitude: 0, Longitude: 0.001, Accuracy: 5},
			},
			EndTime: &end,
		})
		require.NoError(t, err)
		rec.Trail().RecomputeDistance()

		data, err := json.Marshal(rec)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"kind":"trail"`)
		assert.Contains(t, string(data), `"payload":{`)

		var decoded Record
		require.NoError(t, json.Unmarshal(data, &decoded))

		trail := decoded.Trail()
		require.NotNil(t, trail)
		assert.Nil(t, decoded.Photo())
		assert.Len(t, trail.Points, 2)
		assert.InDelta(t, rec.Trail().TotalDistance, trail.TotalDistance, 1e-9)
		assert.Equal(t, end, *trail.EndTime)
	})

	t.Run("unknown kind is rejected", func(t *testing.T) {
		var decoded Record
		err := json.Unmarshal([]byte(`{"id":"x","kind":"video","payload":{}}`), &decoded)
		assert.ErrorIs(t, err, ErrInvalidKind)
	})
}

func TestSyncStatsAdd(t *testing.T) {
	var s SyncStats
	s.Add(StatusPending, 1)
	s.Add(StatusPending, 1)
	s.Add(StatusPending, -1)
	s.Add(StatusSynced, 1)

	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 1, s.Synced)
	assert.Equal(t, 0, s.Failed)
}
