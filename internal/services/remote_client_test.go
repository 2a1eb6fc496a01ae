package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fieldsync/agent/internal/config"
	"github.com/fieldsync/agent/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPhotoForPush(t *testing.T, imageRef string) *models.Record {
	t.Helper()
	rec, err := models.NewRecord("rec-1", "F1", "North", time.Now(), &models.PhotoPayload{
		EventType: models.EventDisease,
		Label:     "rust",
		ImageRef:  imageRef,
	})
	require.NoError(t, err)
	return rec
}

type fakeUploader struct {
	mu    sync.Mutex
	keys  []string
	body  []byte
	ctype string
	err   error
}

func (u *fakeUploader) Upload(ctx context.Context, key string, body io.ReadSeeker, contentType string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return u.err
	}
	data, _ := io.ReadAll(body)
	u.keys = append(u.keys, key)
	u.body = data
	u.ctype = contentType
	return nil
}

func TestRemoteClient_PushRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("posts the record with auth and idempotency headers", func(t *testing.T) {
		var got struct {
			Record models.Record `json:"record"`
			Farm   struct {
				ID   string `json:"id"`
				Name string `json:"name"`
			} `json:"farm"`
		}
		var headers http.Header
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/records", r.URL.Path)
			headers = r.Header.Clone()
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusCreated)
		}))
		defer srv.Close()

		client, err := NewRemoteClient(config.Sync{Endpoint: srv.URL + "/v1/", Token: "secret", APIKey: "anon"}, nil, nil)
		require.NoError(t, err)

		require.NoError(t, client.PushRecord(ctx, newPhotoForPush(t, "2024/05/a.jpg")))
		assert.Equal(t, "Bearer secret", headers.Get("Authorization"))
		assert.Equal(t, "anon", headers.Get("apikey"))
		assert.Equal(t, "rec-1", headers.Get("Idempotency-Key"))
		assert.Equal(t, "rec-1", got.Record.ID)
		assert.Equal(t, "F1", got.Farm.ID)
		assert.Equal(t, "North", got.Farm.Name)
		require.NotNil(t, got.Record.Photo())
		assert.Equal(t, "rust", got.Record.Photo().Label)
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		client, err := NewRemoteClient(config.Sync{Endpoint: srv.URL, HTTPRetries: 3}, nil, nil)
		require.NoError(t, err)

		require.NoError(t, client.PushRecord(ctx, newPhotoForPush(t, "a.jpg")))
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("client errors are permanent", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "farm unknown", http.StatusUnprocessableEntity)
		}))
		defer srv.Close()

		client, err := NewRemoteClient(config.Sync{Endpoint: srv.URL, HTTPRetries: 3}, nil, nil)
		require.NoError(t, err)

		err = client.PushRecord(ctx, newPhotoForPush(t, "a.jpg"))
		var remoteErr *models.RemoteSyncError
		require.True(t, errors.As(err, &remoteErr))
		assert.Equal(t, http.StatusUnprocessableEntity, remoteErr.StatusCode)
		assert.Equal(t, "rec-1", remoteErr.RecordID)
		assert.Contains(t, err.Error(), "farm unknown")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("unreachable target", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		client, err := NewRemoteClient(config.Sync{Endpoint: url}, nil, nil)
		require.NoError(t, err)

		err = client.PushRecord(ctx, newPhotoForPush(t, "a.jpg"))
		var remoteErr *models.RemoteSyncError
		require.True(t, errors.As(err, &remoteErr))
		assert.Zero(t, remoteErr.StatusCode)
	})

	t.Run("endpoint required", func(t *testing.T) {
		_, err := NewRemoteClient(config.Sync{}, nil, nil)
		assert.Error(t, err)
	})
}

func TestRemoteClient_MediaUpload(t *testing.T) {
	ctx := context.Background()
	media := setupTestMedia(t)
	stored, err := media.Store(bytes.NewReader([]byte("jpeg bytes")), "leaf.JPG", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	var pushedRef string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env struct {
			Record models.Record `json:"record"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&env))
		pushedRef = env.Record.Photo().ImageRef
	}))
	defer srv.Close()

	t.Run("uploads stored photo and references the key", func(t *testing.T) {
		uploader := &fakeUploader{}
		client, err := NewRemoteClient(config.Sync{Endpoint: srv.URL, Media: config.SyncMedia{Prefix: "/photos/"}}, media, uploader)
		require.NoError(t, err)

		rec := newPhotoForPush(t, stored.Path)
		require.NoError(t, client.PushRecord(ctx, rec))

		require.Len(t, uploader.keys, 1)
		assert.Equal(t, "photos/F1/rec-1.jpg", uploader.keys[0])
		assert.Equal(t, []byte("jpeg bytes"), uploader.body)
		assert.Equal(t, "image/jpeg", uploader.ctype)
		assert.Equal(t, "photos/F1/rec-1.jpg", pushedRef)
		assert.Equal(t, stored.Path, rec.Photo().ImageRef)
	})

	t.Run("upload failure fails the push", func(t *testing.T) {
		client, err := NewRemoteClient(config.Sync{Endpoint: srv.URL}, media, &fakeUploader{err: errors.New("bucket gone")})
		require.NoError(t, err)

		err = client.PushRecord(ctx, newPhotoForPush(t, stored.Path))
		var remoteErr *models.RemoteSyncError
		require.True(t, errors.As(err, &remoteErr))
		assert.Contains(t, err.Error(), "bucket gone")
	})

	t.Run("data URIs are pushed as they are", func(t *testing.T) {
		uploader := &fakeUploader{}
		client, err := NewRemoteClient(config.Sync{Endpoint: srv.URL}, media, uploader)
		require.NoError(t, err)

		require.NoError(t, client.PushRecord(ctx, newPhotoForPush(t, "data:image/png;base64,AA==")))
		assert.Empty(t, uploader.keys)
		assert.Equal(t, "data:image/png;base64,AA==", pushedRef)
	})
}

func TestRemoteClient_DeleteRecord(t *testing.T) {
	ctx := context.Background()

	t.Run("not found counts as deleted", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			assert.Equal(t, "/records/rec-1", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		client, err := NewRemoteClient(config.Sync{Endpoint: srv.URL}, nil, nil)
		require.NoError(t, err)
		assert.NoError(t, client.DeleteRecord(ctx, newPhotoForPush(t, "a.jpg")))
	})

	t.Run("server error is reported", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client, err := NewRemoteClient(config.Sync{Endpoint: srv.URL}, nil, nil)
		require.NoError(t, err)

		err = client.DeleteRecord(ctx, newPhotoForPush(t, "a.jpg"))
		var remoteErr *models.RemoteSyncError
		require.True(t, errors.As(err, &remoteErr))
		assert.Equal(t, http.StatusInternalServerError, remoteErr.StatusCode)
	})
}
