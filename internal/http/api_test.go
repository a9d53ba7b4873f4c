package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"downbeat/internal/domain"
	"downbeat/internal/engine"
	"downbeat/internal/remote"
	"downbeat/internal/store"
)

type stubRemote struct {
	mu      sync.Mutex
	nextIDs []string
}

func (s *stubRemote) StartJob(ctx context.Context, req remote.StartRequest) (*remote.StartResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.nextIDs) == 0 {
		return nil, errors.New("download server unavailable")
	}
	ids := s.nextIDs
	s.nextIDs = nil
	return &remote.StartResult{TaskIDs: ids}, nil
}

func (s *stubRemote) TaskStatus(ctx context.Context, taskID string) (*remote.StatusEnvelope, error) {
	return &remote.StatusEnvelope{TaskID: taskID, Status: "queued"}, nil
}

func (s *stubRemote) ListTasks(ctx context.Context) ([]remote.TaskInfo, error) {
	return nil, errors.New("not scripted")
}

func (s *stubRemote) CancelTask(ctx context.Context, taskID string) error { return nil }

func (s *stubRemote) CancelTasks(ctx context.Context, taskIDs []string) error {
	return remote.ErrBatchUnsupported
}

func newTestServer(t *testing.T, api *stubRemote) (*httptest.Server, *store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	st := store.New(nil, logger)
	eng := engine.New(engine.Config{
		PollInterval:      time.Hour,
		ReconcileInterval: time.Hour,
		Logger:            logger,
	}, st, api, nil)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start engine: %v", err)
	}
	t.Cleanup(eng.Shutdown)

	router := gin.New()
	NewHandler(eng, st).RegisterRoutes(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, st
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func doRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	return resp
}

func TestCreateDownload(t *testing.T) {
	api := &stubRemote{nextIDs: []string{"srv-1"}}
	srv, _ := newTestServer(t, api)

	resp := postJSON(t, srv.URL+"/api/downloads", gin.H{
		"type": "album", "url": "https://example.com/album/1", "name": "Kid A", "artist": "Radiohead",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var created []TaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("entries = %d, want 1", len(created))
	}
	if created[0].TaskID != "srv-1" || created[0].Type != domain.KindAlbum || created[0].Name != "Kid A" {
		t.Errorf("created = %+v", created[0])
	}
	if created[0].Status != domain.StatusQueued {
		t.Errorf("status = %s, want queued", created[0].Status)
	}
}

func TestCreateDownloadValidation(t *testing.T) {
	srv, _ := newTestServer(t, &stubRemote{})

	tests := []struct {
		name string
		body gin.H
		want int
	}{
		{"missing url", gin.H{"type": "track"}, http.StatusBadRequest},
		{"missing type", gin.H{"url": "https://example.com/x"}, http.StatusBadRequest},
		{"unknown type", gin.H{"type": "podcast", "url": "https://example.com/x"}, http.StatusBadRequest},
		{"server unavailable", gin.H{"type": "track", "url": "https://example.com/x"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL+"/api/downloads", tt.body)
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestListAndGetDownload(t *testing.T) {
	srv, st := newTestServer(t, &stubRemote{})

	entry := st.Add(context.Background(), domain.TaskEntry{
		ExternalTaskID: "srv-2",
		Kind:           domain.KindPlaylist,
		Display:        domain.DisplayItem{Name: "Focus", TotalItems: 14},
		Progress:       37.5,
	})

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/downloads")
	defer resp.Body.Close()
	var list []TaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 || list[0].ID != entry.InternalID {
		t.Fatalf("list = %+v", list)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/downloads/"+entry.InternalID)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var got TaskResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode get: %v", err)
	}
	if got.Type != domain.KindPlaylist || got.TotalItems != 14 || got.Progress != 37.5 {
		t.Errorf("got = %+v", got)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/api/downloads/no-such-id")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown id status = %d, want 404", resp.StatusCode)
	}
}

func TestCancelDownload(t *testing.T) {
	srv, st := newTestServer(t, &stubRemote{})

	entry := st.Add(context.Background(), domain.TaskEntry{ExternalTaskID: "srv-3", Kind: domain.KindTrack})

	resp := doRequest(t, http.MethodDelete, srv.URL+"/api/downloads/"+entry.InternalID)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("cancel status = %d", resp.StatusCode)
	}
	if _, ok := st.Get(entry.InternalID); ok {
		t.Error("cancelled entry should be removed")
	}

	// cancelling again stays a 200 no-op
	resp = doRequest(t, http.MethodDelete, srv.URL+"/api/downloads/"+entry.InternalID)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("second cancel status = %d", resp.StatusCode)
	}
}

func TestRetryDownloadErrors(t *testing.T) {
	srv, st := newTestServer(t, &stubRemote{})

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/downloads/no-such-id/retry")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown retry status = %d, want 404", resp.StatusCode)
	}

	live := st.Add(context.Background(), domain.TaskEntry{ExternalTaskID: "srv-4", Kind: domain.KindTrack, SourceURL: "u"})
	resp = doRequest(t, http.MethodPost, srv.URL+"/api/downloads/"+live.InternalID+"/retry")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("live retry status = %d, want 409", resp.StatusCode)
	}
}

func TestHealthAndCORS(t *testing.T) {
	srv, _ := newTestServer(t, &stubRemote{})

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/health")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("allow-origin = %q", got)
	}

	resp = doRequest(t, http.MethodOptions, srv.URL+"/api/downloads")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", resp.StatusCode)
	}
}
