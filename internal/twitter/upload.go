package twitter

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/masganem/PuffleBot/internal/domain"
	"github.com/masganem/PuffleBot/internal/metrics"
)

const uploadTarget = "media/upload.json"

// DefaultSegmentSize is the largest raw chunk sent in one APPEND. Assets up
// to this size go out as a single segment with index 0.
const DefaultSegmentSize = 4 << 20

// UploadState is a phase of the remote upload protocol.
type UploadState string

const (
	StateFetched   UploadState = domain.UploadFetched
	StateInitiated UploadState = domain.UploadInitiated
	StateAppended  UploadState = domain.UploadAppended
	StateFinalized UploadState = domain.UploadFinalized
	StateAborted   UploadState = domain.UploadAborted
)

// nextState lists the only state each state may move to, apart from aborting.
var nextState = map[UploadState]UploadState{
	"":             StateFetched,
	StateFetched:   StateInitiated,
	StateInitiated: StateAppended,
	StateAppended:  StateFinalized,
}

// UploadSession tracks one asset through INIT, APPEND, and FINALIZE.
type UploadSession struct {
	ID         string
	Source     string
	MIMEType   string
	TotalBytes int
	MediaID    string
	Segments   int
	State      UploadState
	StartedAt  time.Time
}

func (s *UploadSession) advance(to UploadState) error {
	if to == StateAborted {
		if s.State == StateFinalized || s.State == StateAborted {
			return fmt.Errorf("upload %s: cannot abort from %s", s.ID, s.State)
		}
		s.State = to
		return nil
	}
	if nextState[s.State] != to {
		return fmt.Errorf("upload %s: invalid transition %q -> %q", s.ID, s.State, to)
	}
	s.State = to
	return nil
}

func (s *UploadSession) record(cause error, now time.Time) domain.UploadRecord {
	rec := domain.UploadRecord{
		ID:         s.ID,
		Source:     s.Source,
		MediaID:    s.MediaID,
		MIMEType:   s.MIMEType,
		TotalBytes: s.TotalBytes,
		Segments:   s.Segments,
		State:      string(s.State),
		StartedAt:  s.StartedAt,
		UpdatedAt:  now,
	}
	if cause != nil {
		rec.Error = cause.Error()
	}
	return rec
}

// AbortFunc is called once when an upload stops before FINALIZE. The
// session carries the media id if INIT had succeeded.
type AbortFunc func(ctx context.Context, s UploadSession, cause error)

// UploaderConfig configures an Uploader.
type UploaderConfig struct {
	Client      *Client
	Fetcher     Fetcher  // default: NewHTTPFetcher()
	Detector    Detector // default: ContentDetector
	SegmentSize int      // default: DefaultSegmentSize
	Journal     domain.Journal
	OnAbort     AbortFunc
	Logger      *slog.Logger
}

// Uploader drives the chunked media upload and returns a media id usable
// in a Direct Message attachment.
type Uploader struct {
	client      *Client
	fetcher     Fetcher
	detector    Detector
	segmentSize int
	journal     domain.Journal
	onAbort     AbortFunc
	logger      *slog.Logger
	now         func() time.Time
}

func NewUploader(cfg UploaderConfig) *Uploader {
	if cfg.Fetcher == nil {
		cfg.Fetcher = NewHTTPFetcher()
	}
	if cfg.Detector == nil {
		cfg.Detector = ContentDetector{}
	}
	if cfg.SegmentSize <= 0 {
		cfg.SegmentSize = DefaultSegmentSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Uploader{
		client:      cfg.Client,
		fetcher:     cfg.Fetcher,
		detector:    cfg.Detector,
		segmentSize: cfg.SegmentSize,
		journal:     cfg.Journal,
		onAbort:     cfg.OnAbort,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// Upload fetches source, detects its type, and uploads it.
func (u *Uploader) Upload(ctx context.Context, source string) (string, error) {
	asset, err := loadAsset(ctx, u.fetcher, u.detector, source)
	if err != nil {
		u.logger.Warn("media fetch failed", "source", source, "err", err)
		return "", err
	}
	return u.UploadAsset(ctx, asset)
}

// UploadAsset runs INIT, APPEND, and FINALIZE for an already fetched asset.
// Phases run strictly in order; the first failure aborts the session and is
// returned unchanged.
func (u *Uploader) UploadAsset(ctx context.Context, asset Asset) (string, error) {
	s := &UploadSession{
		ID:         uuid.NewString(),
		Source:     asset.Source,
		MIMEType:   asset.MIMEType,
		TotalBytes: len(asset.Data),
		StartedAt:  u.now(),
	}
	if err := u.transition(ctx, s, StateFetched); err != nil {
		return "", err
	}

	if err := u.init(ctx, s); err != nil {
		return "", u.abort(ctx, s, err)
	}
	if err := u.appendSegments(ctx, s, asset.Data); err != nil {
		return "", u.abort(ctx, s, err)
	}
	if err := u.finalize(ctx, s); err != nil {
		return "", u.abort(ctx, s, err)
	}

	metrics.MediaUploads.Inc()
	u.logger.Info("media uploaded", "upload", s.ID, "media_id", s.MediaID, "type", s.MIMEType, "bytes", s.TotalBytes, "segments", s.Segments)
	return s.MediaID, nil
}

type mediaResponse struct {
	MediaID       int64  `json:"media_id"`
	MediaIDString string `json:"media_id_string"`
}

func (r mediaResponse) id() string {
	if r.MediaIDString != "" {
		return r.MediaIDString
	}
	if r.MediaID != 0 {
		return strconv.FormatInt(r.MediaID, 10)
	}
	return ""
}

func (u *Uploader) init(ctx context.Context, s *UploadSession) error {
	req := u.client.NewRequest(UploadAPI, http.MethodPost, uploadTarget, Query(
		"command", "INIT",
		"total_bytes", strconv.Itoa(s.TotalBytes),
		"media_type", s.MIMEType,
	))

	var resp mediaResponse
	if err := u.client.Do(ctx, "upload INIT", req, &resp); err != nil {
		return err
	}
	if resp.id() == "" {
		return &TransportError{Op: "upload INIT", Method: req.Method, URL: req.URL, StatusCode: http.StatusOK,
			Err: errors.New("response carried no media id")}
	}
	s.MediaID = resp.id()
	return u.transition(ctx, s, StateInitiated)
}

func (u *Uploader) appendSegments(ctx context.Context, s *UploadSession, data []byte) error {
	for i, segment := range splitSegments(data, u.segmentSize) {
		body, contentType, err := mediaDataForm(segment)
		if err != nil {
			return err
		}
		req := u.client.NewRequest(UploadAPI, http.MethodPost, uploadTarget, Query(
			"command", "APPEND",
			"media_id", s.MediaID,
			"segment_index", strconv.Itoa(i),
		))
		req.Body = body
		req.ContentType = contentType

		if err := u.client.Do(ctx, "upload APPEND", req, nil); err != nil {
			return err
		}
		s.Segments++
	}
	return u.transition(ctx, s, StateAppended)
}

func (u *Uploader) finalize(ctx context.Context, s *UploadSession) error {
	req := u.client.NewRequest(UploadAPI, http.MethodPost, uploadTarget, Query(
		"command", "FINALIZE",
		"media_id", s.MediaID,
	))

	var resp mediaResponse
	if err := u.client.Do(ctx, "upload FINALIZE", req, &resp); err != nil {
		return err
	}
	if id := resp.id(); id != "" {
		s.MediaID = id
	}
	return u.transition(ctx, s, StateFinalized)
}

func (u *Uploader) transition(ctx context.Context, s *UploadSession, to UploadState) error {
	if err := s.advance(to); err != nil {
		return err
	}
	u.journalUpload(ctx, s, nil)
	return nil
}

// abort marks the session aborted, runs the cleanup hook, and returns cause.
func (u *Uploader) abort(ctx context.Context, s *UploadSession, cause error) error {
	phase := s.State
	if err := s.advance(StateAborted); err != nil {
		u.logger.Error("upload abort", "upload", s.ID, "err", err)
		return cause
	}
	metrics.MediaAborted.Inc()
	u.logger.Warn("media upload aborted",
		"upload", s.ID,
		"after", phase,
		"media_id", s.MediaID,
		"source", s.Source,
		"err", cause,
	)

	// The request context may already be done; cleanup still has to run.
	cleanupCtx := context.WithoutCancel(ctx)
	u.journalUpload(cleanupCtx, s, cause)
	if u.onAbort != nil {
		u.onAbort(cleanupCtx, *s, cause)
	}
	return cause
}

func (u *Uploader) journalUpload(ctx context.Context, s *UploadSession, cause error) {
	if u.journal == nil {
		return
	}
	if err := u.journal.RecordUpload(ctx, s.record(cause, u.now())); err != nil {
		u.logger.Warn("journal upload failed", "upload", s.ID, "state", s.State, "err", err)
	}
}

// splitSegments cuts data into chunks of at most size bytes. It always
// returns at least one chunk.
func splitSegments(data []byte, size int) [][]byte {
	if size <= 0 || len(data) <= size {
		return [][]byte{data}
	}
	var out [][]byte
	for len(data) > 0 {
		n := min(size, len(data))
		out = append(out, data[:n])
		data = data[n:]
	}
	return out
}

// mediaDataForm encodes a segment as the multipart field media_data.
func mediaDataForm(segment []byte) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("media_data", base64.StdEncoding.EncodeToString(segment)); err != nil {
		return nil, "", fmt.Errorf("write media_data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
