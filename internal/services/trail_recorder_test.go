package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fieldsync/agent/internal/geo"
	"github.com/fieldsync/agent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func point(lat, lng float64, at time.Time) models.TrailPoint {
	return models.TrailPoint{Latitude: lat, Longitude: lng, Timestamp: at, Accuracy: 5}
}

func TestTrailRecorder_Lifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("idle recorder rejects points and stop", func(t *testing.T) {
		rec := NewTrailRecorder(newTestRecordRepo(t), 0, nil, nil)

		_, err := rec.AddPoint(point(0, 0, time.Now()))
		assert.ErrorIs(t, err, models.ErrNotRecording)

		_, err = rec.Stop(ctx)
		assert.ErrorIs(t, err, models.ErrNotRecording)
		assert.Nil(t, rec.Current())
	})

	t.Run("only one recording at a time", func(t *testing.T) {
		rec := NewTrailRecorder(newTestRecordRepo(t), 0, nil, nil)
		_, err := rec.Start(ctx, &models.StartTrailRequest{FarmID: "F1"})
		require.NoError(t, err)

		_, err = rec.Start(ctx, &models.StartTrailRequest{FarmID: "F2"})
		assert.ErrorIs(t, err, models.ErrAlreadyRecording)
		assert.True(t, rec.IsRecording())
	})

	t.Run("start requires a farm", func(t *testing.T) {
		rec := NewTrailRecorder(newTestRecordRepo(t), 0, nil, nil)
		_, err := rec.Start(ctx, &models.StartTrailRequest{})
		assert.ErrorIs(t, err, models.ErrEmptyFarmID)
	})

	t.Run("out of range coordinates are rejected", func(t *testing.T) {
		rec := NewTrailRecorder(newTestRecordRepo(t), 0, nil, nil)
		_, err := rec.Start(ctx, &models.StartTrailRequest{FarmID: "F1"})
		require.NoError(t, err)

		_, err = rec.AddPoint(point(91, 0, time.Now()))
		assert.ErrorIs(t, err, models.ErrInvalidCoordinate)
	})
}

func TestTrailRecorder_JitterFilter(t *testing.T) {
	ctx := context.Background()
	repo := newTestRecordRepo(t)
	events := NewNotifier[*models.Record]()
	var published []*models.Record
	events.Subscribe(func(r *models.Record) { published = append(published, r) })

	rec := NewTrailRecorder(repo, 0, events, nil)
	_, err := rec.Start(ctx, &models.StartTrailRequest{ID: "trail-b", FarmID: "F1", FarmName: "North"})
	require.NoError(t, err)

	t0 := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	first, err := rec.AddPoint(point(0, 0, t0))
	require.NoError(t, err)
	assert.True(t, first.Retained)

	second, err := rec.AddPoint(point(0, 0.00002, t0.Add(time.Second)))
	require.NoError(t, err)
	assert.True(t, second.Retained)

	third, err := rec.AddPoint(point(0, 0.000021, t0.Add(2*time.Second)))
	require.NoError(t, err)
	assert.False(t, third.Retained)
	assert.Equal(t, 2, third.PointCount)

	current := rec.Current()
	require.NotNil(t, current)
	assert.Len(t, current.Trail().Points, 2)

	saved, err := rec.Stop(ctx)
	require.NoError(t, err)
	assert.False(t, rec.IsRecording())

	stored, err := repo.GetByID(ctx, "trail-b")
	require.NoError(t, err)
	require.NotNil(t, stored)
	trail := stored.Trail()
	require.NotNil(t, trail)
	assert.Len(t, trail.Points, 2)
	assert.InDelta(t, 2.2, trail.TotalDistance, 0.1)
	require.NotNil(t, trail.EndTime)
	assert.Equal(t, models.StatusPending, stored.SyncStatus)

	require.Len(t, published, 1)
	assert.Equal(t, saved.ID, published[0].ID)
}

func TestTrailRecorder_DistanceRecomputed(t *testing.T) {
	rec := NewTrailRecorder(newTestRecordRepo(t), 0, nil, nil)
	_, err := rec.Start(context.Background(), &models.StartTrailRequest{FarmID: "F1"})
	require.NoError(t, err)

	now := time.Now()
	_, err = rec.AddPoint(point(0, 0, now))
	require.NoError(t, err)
	resp, err := rec.AddPoint(point(0, 0.001, now.Add(time.Second)))
	require.NoError(t, err)

	expected := geo.Distance(geo.Coordinate{Lat: 0, Lng: 0}, geo.Coordinate{Lat: 0, Lng: 0.001})
	assert.InDelta(t, expected, resp.TotalDistance, 1)
	assert.InDelta(t, 111.2, resp.TotalDistance, 1)

	resp, err = rec.AddPoint(point(0, 0.001005, now.Add(2*time.Second)))
	require.NoError(t, err)
	assert.False(t, resp.Retained)
	assert.Equal(t, 2, resp.PointCount)
	assert.InDelta(t, expected, resp.TotalDistance, 1)
}

func TestTrailRecorder_StopKeepsTrailOnStorageFailure(t *testing.T) {
	ctx := context.Background()
	repo := &failingSaveRepo{RecordRepo: newTestRecordRepo(t), failing: true}
	rec := NewTrailRecorder(repo, 0, nil, nil)

	_, err := rec.Start(ctx, &models.StartTrailRequest{ID: "trail-retry", FarmID: "F1"})
	require.NoError(t, err)
	_, err = rec.AddPoint(point(1, 1, time.Now()))
	require.NoError(t, err)

	_, err = rec.Stop(ctx)
	var storageErr *models.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.True(t, rec.IsRecording())

	repo.failing = false
	saved, err := rec.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "trail-retry", saved.ID)
	assert.Len(t, saved.Trail().Points, 1)
	assert.Equal(t, 2, repo.saves)
}

func TestTrailRecorder_CurrentLocation(t *testing.T) {
	ctx := context.Background()
	rec := NewTrailRecorder(newTestRecordRepo(t), 0, nil, nil)

	_, _, err := rec.CurrentLocation(ctx)
	assert.ErrorIs(t, err, models.ErrNoLocationFix)

	_, err = rec.Start(ctx, &models.StartTrailRequest{FarmID: "F1"})
	require.NoError(t, err)
	_, _, err = rec.CurrentLocation(ctx)
	assert.ErrorIs(t, err, models.ErrNoLocationFix)

	now := time.Now()
	rec.now = func() time.Time { return now }
	_, err = rec.AddPoint(point(-22.5, -47.1, now))
	require.NoError(t, err)

	lat, lng, err := rec.CurrentLocation(ctx)
	require.NoError(t, err)
	assert.Equal(t, -22.5, lat)
	assert.Equal(t, -47.1, lng)

	t.Run("jitter still moves the fix", func(t *testing.T) {
		_, err := rec.AddPoint(point(-22.500001, -47.1, now))
		require.NoError(t, err)
		lat, _, err := rec.CurrentLocation(ctx)
		require.NoError(t, err)
		assert.Equal(t, -22.500001, lat)
	})

	t.Run("stale fix", func(t *testing.T) {
		rec.now = func() time.Time { return now.Add(time.Minute) }
		_, _, err := rec.CurrentLocation(ctx)
		assert.ErrorIs(t, err, models.ErrNoLocationFix)
	})

	t.Run("photo capture uses the trail position", func(t *testing.T) {
		rec.now = func() time.Time { return now }
		photos := NewPhotoCaptureService(newTestRecordRepo(t), setupTestMedia(t), nil, rec, nil, nil)
		record, err := photos.Capture(ctx, &models.PhotoCaptureRequest{
			FarmID:    "F1",
			EventType: models.EventChewingPest,
			ImageRef:  "x",
		})
		require.NoError(t, err)
		assert.Equal(t, models.LocationFromGPS, record.Photo().LocationSource)
		assert.Equal(t, -22.500001, *record.Photo().Latitude)
	})
}
