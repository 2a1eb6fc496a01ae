package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v5"
	"github.com/fieldsync/agent/internal/config"
	"github.com/fieldsync/agent/internal/models"
	"github.com/fieldsync/agent/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// MediaUploader stores photo files next to the remote records
type MediaUploader interface {
	Upload(ctx context.Context, key string, body io.ReadSeeker, contentType string) error
}

// RemoteClient pushes records to the remote sync target over HTTP
type RemoteClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	maxTries   uint
	uploader   MediaUploader
	mediaKey   string
	media      *MediaStorageService
	logger     *observability.Logger
}

type remoteFarm struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type remoteEnvelope struct {
	Record *models.Record `json:"record"`
	Farm   remoteFarm     `json:"farm"`
}

// NewRemoteClient creates a client for cfg.Endpoint. Authentication uses OAuth2
// client credentials when a token URL is configured, otherwise the static token.
func NewRemoteClient(cfg config.Sync, media *MediaStorageService, uploader MediaUploader) (*RemoteClient, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("sync endpoint is required")
	}

	timeout := cfg.PushTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	base := &http.Client{Timeout: timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	var httpClient *http.Client
	switch {
	case cfg.TokenURL != "":
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		httpClient = cc.Client(ctx)
	case cfg.Token != "":
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
	default:
		httpClient = base
	}
	httpClient.Timeout = timeout

	maxTries := uint(1)
	if cfg.HTTPRetries > 0 {
		maxTries = uint(cfg.HTTPRetries) + 1
	}

	return &RemoteClient{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		maxTries:   maxTries,
		uploader:   uploader,
		mediaKey:   strings.Trim(cfg.Media.Prefix, "/"),
		media:      media,
		logger:     observability.WithField("component", "remote"),
	}, nil
}

// PushRecord creates or replaces the record on the remote side
func (c *RemoteClient) PushRecord(ctx context.Context, record *models.Record) error {
	outgoing, err := c.withUploadedMedia(ctx, record)
	if err != nil {
		return &models.RemoteSyncError{RecordID: record.ID, Err: err}
	}

	body, err := json.Marshal(remoteEnvelope{
		Record: outgoing,
		Farm:   remoteFarm{ID: record.FarmID, Name: record.FarmName},
	})
	if err != nil {
		return &models.RemoteSyncError{RecordID: record.ID, Err: err}
	}

	return c.send(ctx, record.ID, http.MethodPost, c.endpoint+"/records", body, false)
}

// DeleteRecord removes the record remotely. A record the target never saw counts as deleted.
func (c *RemoteClient) DeleteRecord(ctx context.Context, record *models.Record) error {
	return c.send(ctx, record.ID, http.MethodDelete, c.endpoint+"/records/"+record.ID, nil, true)
}

// withUploadedMedia uploads a stored photo and returns a copy of the record
// that references the object key. Other records are returned unchanged.
func (c *RemoteClient) withUploadedMedia(ctx context.Context, record *models.Record) (*models.Record, error) {
	photo := record.Photo()
	if c.uploader == nil || c.media == nil || photo == nil || photo.ImageRef == "" || photo.IsDataURI() {
		return record, nil
	}

	fullPath, err := c.media.GetFullPath(photo.ImageRef)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			c.logger.Warnf("Image %s of record %s is missing, pushing without upload", photo.ImageRef, record.ID)
			return record, nil
		}
		return nil, err
	}
	defer f.Close()

	key := path.Join(c.mediaKey, record.FarmID, record.ID+strings.ToLower(path.Ext(photo.ImageRef)))
	if err := c.uploader.Upload(ctx, key, f, contentTypeFor(photo.ImageRef)); err != nil {
		return nil, fmt.Errorf("media upload failed: %w", err)
	}

	uploaded := *photo
	uploaded.ImageRef = key
	out := *record
	out.Payload = &uploaded
	return &out, nil
}

func (c *RemoteClient) send(ctx context.Context, recordID, method, url string, body []byte, notFoundOK bool) error {
	lastStatus := 0

	operation := func() (struct{}, error) {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Idempotency-Key", recordID)
		if c.apiKey != "" {
			req.Header.Set("apikey", c.apiKey)
		}
		otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastStatus = 0
			return struct{}{}, err
		}
		defer resp.Body.Close()
		lastStatus = resp.StatusCode

		if resp.StatusCode < 300 || (notFoundOK && resp.StatusCode == http.StatusNotFound) {
			io.Copy(io.Discard, resp.Body)
			return struct{}{}, nil
		}

		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		statusErr := fmt.Errorf("%s %s: %s", method, resp.Status, strings.TrimSpace(string(msg)))

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				return struct{}{}, backoff.RetryAfter(secs)
			}
			return struct{}{}, statusErr
		case resp.StatusCode >= 500:
			return struct{}{}, statusErr
		default:
			return struct{}{}, backoff.Permanent(statusErr)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(c.maxTries),
	)
	if err != nil {
		return &models.RemoteSyncError{RecordID: recordID, StatusCode: lastStatus, Err: err}
	}
	return nil
}

func contentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".heic", ".heif":
		return "image/heic"
	default:
		return "image/jpeg"
	}
}

// S3MediaUploader writes photos to an S3 compatible bucket
type S3MediaUploader struct {
	client *s3.Client
	bucket string
}

// NewS3MediaUploader creates an uploader from the media sync configuration
func NewS3MediaUploader(ctx context.Context, cfg config.SyncMedia) (*S3MediaUploader, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	return &S3MediaUploader{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
	}, nil
}

// Upload puts the object under key
func (u *S3MediaUploader) Upload(ctx context.Context, key string, body io.ReadSeeker, contentType string) error {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("S3 put object failed: %w", err)
	}
	return nil
}
