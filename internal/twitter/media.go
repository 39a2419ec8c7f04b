package twitter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxAssetBytes caps how much of a media source is read.
const DefaultMaxAssetBytes = 15 << 20

// Asset is a fetched media file ready for upload.
type Asset struct {
	Source   string
	Data     []byte
	MIMEType string
}

// Fetcher downloads the raw bytes behind a media URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Detector classifies bytes by content. ok is false when there is no verdict.
type Detector interface {
	Detect(data []byte) (mime string, ok bool)
}

// HTTPFetcher fetches media over plain HTTP(S).
type HTTPFetcher struct {
	Client   Doer
	MaxBytes int64
}

// NewHTTPFetcher returns a fetcher bounded by DefaultTimeout and DefaultMaxAssetBytes.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{Client: NewHTTPClient(DefaultTimeout), MaxBytes: DefaultMaxAssetBytes}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &TransportError{Op: "fetch media", Method: http.MethodGet, URL: url, Err: err}
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "fetch media", Method: http.MethodGet, URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{
			Op:         "fetch media",
			Method:     http.MethodGet,
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxAssetBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &TransportError{Op: "fetch media", Method: http.MethodGet, URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	if int64(len(data)) > limit {
		return nil, &TransportError{Op: "fetch media", Method: http.MethodGet, URL: url, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("asset larger than %d bytes", limit)}
	}
	return data, nil
}

// ContentDetector sniffs magic numbers; declared headers and file names are
// ignored. Only image and video types get a verdict, so an HTML error page
// served with status 200 never reaches INIT.
type ContentDetector struct{}

func (ContentDetector) Detect(data []byte) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	mt := mimetype.Detect(data)
	if mt == nil {
		return "", false
	}
	mime, _, _ := strings.Cut(mt.String(), ";")
	if !strings.HasPrefix(mime, "image/") && !strings.HasPrefix(mime, "video/") {
		return "", false
	}
	return mime, true
}

// loadAsset fetches source and classifies it.
func loadAsset(ctx context.Context, f Fetcher, d Detector, source string) (Asset, error) {
	data, err := f.Fetch(ctx, source)
	if err != nil {
		return Asset{}, err
	}
	mime, ok := d.Detect(data)
	if !ok {
		return Asset{}, &EncodingError{Source: source, Err: ErrUnknownMediaType}
	}
	return Asset{Source: source, Data: data, MIMEType: mime}, nil
}
