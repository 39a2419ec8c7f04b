package twitter

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/masganem/PuffleBot/internal/domain"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeFetcher struct {
	data []byte
	err  error
}

func (f fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	return f.data, f.err
}

type memJournal struct {
	mu         sync.Mutex
	uploads    []domain.UploadRecord
	deliveries []domain.DeliveryRecord
}

func (j *memJournal) RecordUpload(ctx context.Context, rec domain.UploadRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.uploads = append(j.uploads, rec)
	return nil
}

func (j *memJournal) RecordDelivery(ctx context.Context, rec domain.DeliveryRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.deliveries = append(j.deliveries, rec)
	return nil
}

func (j *memJournal) states() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.uploads))
	for i, r := range j.uploads {
		out[i] = r.State
	}
	return out
}

// fakeTwitter records every call and fails the commands listed in fail.
type fakeTwitter struct {
	mu       sync.Mutex
	calls    []string // "INIT", "APPEND:0", "FINALIZE", "DM"
	segments []string // decoded media_data per APPEND
	bodies   [][]byte // DM bodies
	auths    []string
	fail     map[string]int
}

func newFakeTwitter(t *testing.T) (*fakeTwitter, *httptest.Server) {
	ft := &fakeTwitter{fail: map[string]int{}}
	srv := httptest.NewServer(http.HandlerFunc(ft.serve))
	t.Cleanup(srv.Close)
	return ft, srv
}

func (ft *fakeTwitter) serve(w http.ResponseWriter, r *http.Request) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.auths = append(ft.auths, r.Header.Get("Authorization"))

	if strings.HasSuffix(r.URL.Path, "/direct_messages/events/new.json") {
		body, _ := io.ReadAll(r.Body)
		ft.calls = append(ft.calls, "DM")
		ft.bodies = append(ft.bodies, body)
		if code := ft.fail["DM"]; code != 0 {
			http.Error(w, `{"errors":[{"code":349,"message":"You cannot send messages to this user."}]}`, code)
			return
		}
		fmt.Fprint(w, `{"event":{"type":"message_create","id":"1111"}}`)
		return
	}

	cmd := r.URL.Query().Get("command")
	call := cmd
	if cmd == "APPEND" {
		call += ":" + r.URL.Query().Get("segment_index")
		if data := r.FormValue("media_data"); data != "" {
			ft.segments = append(ft.segments, data)
		}
	}
	ft.calls = append(ft.calls, call)
	if code := ft.fail[cmd]; code != 0 {
		http.Error(w, `{"errors":[{"message":"boom"}]}`, code)
		return
	}
	switch cmd {
	case "INIT":
		fmt.Fprint(w, `{"media_id":710511363345354753,"media_id_string":"710511363345354753","expires_after_secs":86400}`)
	case "APPEND":
		w.WriteHeader(http.StatusNoContent)
	case "FINALIZE":
		fmt.Fprint(w, `{"media_id":710511363345354753,"media_id_string":"710511363345354753","size":44}`)
	default:
		http.Error(w, "unknown command", http.StatusBadRequest)
	}
}

func (ft *fakeTwitter) callList() []string {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return append([]string(nil), ft.calls...)
}

func newTestClient(srvURL string) *Client {
	return NewClient(ClientConfig{
		Endpoints: Endpoints{API: srvURL + "/1.1/", Upload: srvURL + "/upload/1.1/"},
		Signer:    NewSigner(SignerConfig{Credentials: Credentials{"ck", "cs", "tok", "ts"}}),
		Logger:    testLogger(),
	})
}

func newTestUploader(srvURL string, data []byte, j domain.Journal, onAbort AbortFunc) *Uploader {
	return NewUploader(UploaderConfig{
		Client:  newTestClient(srvURL),
		Fetcher: fakeFetcher{data: data},
		Journal: j,
		OnAbort: onAbort,
		Logger:  testLogger(),
	})
}

func TestUpload_Success(t *testing.T) {
	ft, srv := newFakeTwitter(t)
	j := &memJournal{}
	u := newTestUploader(srv.URL, pngBytes, j, nil)

	id, err := u.Upload(context.Background(), "https://img.example.com/puffle.png")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if id != "710511363345354753" {
		t.Errorf("unexpected media id %s", id)
	}

	calls := ft.callList()
	want := []string{"INIT", "APPEND:0", "FINALIZE"}
	if strings.Join(calls, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, calls)
	}
	if len(ft.segments) != 1 || ft.segments[0] != base64.StdEncoding.EncodeToString(pngBytes) {
		t.Error("APPEND should carry the whole asset base64-encoded")
	}
	if ft.auths[0] == ft.auths[1] || ft.auths[1] == ft.auths[2] {
		t.Error("each phase must be signed separately")
	}

	states := strings.Join(j.states(), ",")
	if states != "fetched,initiated,appended,finalized" {
		t.Errorf("unexpected journal states %s", states)
	}
}

func TestUpload_InitFailureStopsPipeline(t *testing.T) {
	ft, srv := newFakeTwitter(t)
	ft.fail["INIT"] = http.StatusBadRequest

	var aborted UploadSession
	var cause error
	u := newTestUploader(srv.URL, pngBytes, nil, func(ctx context.Context, s UploadSession, err error) {
		aborted, cause = s, err
	})

	_, err := u.Upload(context.Background(), "https://img.example.com/puffle.png")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T: %v", err, err)
	}
	if te.StatusCode != http.StatusBadRequest {
		t.Errorf("unexpected status %d", te.StatusCode)
	}
	if calls := ft.callList(); len(calls) != 1 || calls[0] != "INIT" {
		t.Errorf("no APPEND or FINALIZE after failed INIT, got %v", calls)
	}
	if aborted.State != StateAborted || cause != err {
		t.Errorf("abort hook not called with the failure: %+v %v", aborted, cause)
	}
	if aborted.MediaID != "" {
		t.Error("no media id exists before INIT succeeds")
	}
}

func TestUpload_AppendFailureSkipsFinalize(t *testing.T) {
	ft, srv := newFakeTwitter(t)
	ft.fail["APPEND"] = http.StatusInternalServerError
	j := &memJournal{}

	var aborted UploadSession
	u := newTestUploader(srv.URL, pngBytes, j, func(ctx context.Context, s UploadSession, err error) {
		aborted = s
	})

	if _, err := u.Upload(context.Background(), "https://img.example.com/puffle.png"); err == nil {
		t.Fatal("expected error")
	}
	calls := ft.callList()
	if strings.Join(calls, ",") != "INIT,APPEND:0" {
		t.Errorf("expected INIT,APPEND:0 got %v", calls)
	}
	if aborted.MediaID != "710511363345354753" {
		t.Errorf("aborted session should carry the dangling media id, got %q", aborted.MediaID)
	}

	states := j.states()
	last := j.uploads[len(j.uploads)-1]
	if states[len(states)-1] != "aborted" || last.Error == "" {
		t.Errorf("expected aborted record with error, got %+v", last)
	}
}

func TestUpload_FinalizeFailure(t *testing.T) {
	ft, srv := newFakeTwitter(t)
	ft.fail["FINALIZE"] = http.StatusBadRequest
	u := newTestUploader(srv.URL, pngBytes, nil, nil)

	_, err := u.Upload(context.Background(), "https://img.example.com/puffle.png")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	if te.Op != "upload FINALIZE" {
		t.Errorf("unexpected op %s", te.Op)
	}
}

func TestUpload_UnknownType(t *testing.T) {
	ft, srv := newFakeTwitter(t)
	u := newTestUploader(srv.URL, []byte{0x00, 0x01, 0x02, 0xfe, 0xff, 0x00}, nil, nil)

	_, err := u.Upload(context.Background(), "https://img.example.com/blob")
	var ee *EncodingError
	if !errors.As(err, &ee) || !errors.Is(err, ErrUnknownMediaType) {
		t.Fatalf("expected EncodingError wrapping ErrUnknownMediaType, got %v", err)
	}
	if len(ft.callList()) != 0 {
		t.Error("nothing should be sent for an unclassified asset")
	}
}

func TestUpload_FetchFailure(t *testing.T) {
	ft, srv := newFakeTwitter(t)
	fetchErr := &TransportError{Op: "fetch media", Method: "GET", URL: "x", StatusCode: 404}
	u := NewUploader(UploaderConfig{
		Client:  newTestClient(srv.URL),
		Fetcher: fakeFetcher{err: fetchErr},
		Logger:  testLogger(),
	})

	_, err := u.Upload(context.Background(), "x")
	if err != fetchErr {
		t.Fatalf("fetch error should pass through, got %v", err)
	}
	if len(ft.callList()) != 0 {
		t.Error("nothing should be sent when fetch fails")
	}
}

func TestUpload_Segmented(t *testing.T) {
	ft, srv := newFakeTwitter(t)
	u := NewUploader(UploaderConfig{
		Client:      newTestClient(srv.URL),
		Fetcher:     fakeFetcher{data: pngBytes},
		SegmentSize: 20,
		Logger:      testLogger(),
	})

	if _, err := u.Upload(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	calls := strings.Join(ft.callList(), ",")
	if calls != "INIT,APPEND:0,APPEND:1,APPEND:2,FINALIZE" {
		t.Errorf("unexpected calls %s", calls)
	}

	var joined []byte
	for _, s := range ft.segments {
		part, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			t.Fatal(err)
		}
		joined = append(joined, part...)
	}
	if string(joined) != string(pngBytes) {
		t.Error("segments should reassemble to the asset")
	}
}

func TestUpload_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(ClientConfig{
		Endpoints: Endpoints{API: srv.URL + "/", Upload: srv.URL + "/"},
		Signer:    NewSigner(SignerConfig{}),
		Timeout:   20 * time.Millisecond,
		Logger:    testLogger(),
	})
	u := NewUploader(UploaderConfig{Client: client, Fetcher: fakeFetcher{data: pngBytes}, Logger: testLogger()})

	_, err := u.Upload(context.Background(), "x")
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	if te.StatusCode != 0 {
		t.Errorf("timeout has no status, got %d", te.StatusCode)
	}
}

func TestUploadSession_Advance(t *testing.T) {
	s := &UploadSession{ID: "u1"}
	if err := s.advance(StateInitiated); err == nil {
		t.Error("cannot skip fetched")
	}
	for _, st := range []UploadState{StateFetched, StateInitiated, StateAppended, StateFinalized} {
		if err := s.advance(st); err != nil {
			t.Fatalf("advance to %s: %v", st, err)
		}
	}
	if err := s.advance(StateAborted); err == nil {
		t.Error("finalized upload cannot be aborted")
	}
}

func TestSplitSegments(t *testing.T) {
	if got := splitSegments(make([]byte, 10), 10); len(got) != 1 {
		t.Errorf("exact fit should be one segment, got %d", len(got))
	}
	if got := splitSegments(nil, 10); len(got) != 1 {
		t.Errorf("empty data should still be one segment, got %d", len(got))
	}
	got := splitSegments(make([]byte, 25), 10)
	if len(got) != 3 || len(got[2]) != 5 {
		t.Errorf("unexpected split %d", len(got))
	}
}
