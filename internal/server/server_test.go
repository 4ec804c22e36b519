package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"docsync/internal/app"
	"docsync/internal/docsync"
)

type fakeBackend struct {
	maintenance bool
	updates     int
	updateErr   error
	updateDue   bool
	buildDirs   []string
	runLimits   []time.Duration
	cleared     int
	forceUpdate *bool
	listArgs    [2]int
	records     []*docsync.ContentRecord
	err         error
}

func (f *fakeBackend) QueueStatus(context.Context) (*app.QueueStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &app.QueueStatus{Name: "docsync", Items: 3, LastSyncTimestamp: 100}, nil
}

func (f *fakeBackend) BuildFromPath(_ context.Context, dir string) (*docsync.BuildSummary, error) {
	f.buildDirs = append(f.buildDirs, dir)
	if f.err != nil {
		return nil, f.err
	}
	return &docsync.BuildSummary{ContentFiles: 120, ContentBatches: 3, PassStart: 100}, nil
}

func (f *fakeBackend) RunQueue(_ context.Context, limit time.Duration) (int, error) {
	f.runLimits = append(f.runLimits, limit)
	return 4, f.err
}

func (f *fakeBackend) ClearQueue(context.Context) error {
	f.cleared++
	return f.err
}

func (f *fakeBackend) SetForceUpdate(_ context.Context, on bool) error {
	f.forceUpdate = &on
	return f.err
}

func (f *fakeBackend) ListContent(_ context.Context, limit, offset int) (int64, []*docsync.ContentRecord, error) {
	f.listArgs = [2]int{limit, offset}
	return int64(len(f.records)), f.records, f.err
}

func (f *fakeBackend) MaintenanceMode(context.Context) (bool, error) {
	return f.maintenance, nil
}

func (f *fakeBackend) RequestSourceUpdate(ctx context.Context) error {
	f.updates++
	f.updateErr = ctx.Err()
	_, f.updateDue = ctx.Deadline()
	return f.err
}

func newTestServer(t *testing.T, key string, backend *fakeBackend) *httptest.Server {
	t.Helper()
	s := New(Config{WebhookAccessKey: key}, backend, docsync.NewNopLogger())
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, u string, body string) *http.Response {
	t.Helper()
	var req *http.Request
	var err error
	if body == "" {
		req, err = http.NewRequest(method, u, nil)
	} else {
		req, err = http.NewRequest(method, u, strings.NewReader(body))
	}
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, u, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestWebhook_UpdateOutlivesRequest(t *testing.T) {
	backend := &fakeBackend{}
	s := New(Config{WebhookAccessKey: "s3cret"}, backend, docsync.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/webhook/content-update/s3cret", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if backend.updates != 1 {
		t.Fatalf("updates = %d, want 1", backend.updates)
	}
	if backend.updateErr != nil {
		t.Errorf("update context error = %v, want a live context", backend.updateErr)
	}
	if !backend.updateDue {
		t.Error("update context has no deadline")
	}
}

func TestWebhook_Access(t *testing.T) {
	tests := []struct {
		name        string
		key         string
		pathKey     string
		maintenance bool
		wantStatus  int
		wantUpdates int
	}{
		{name: "matching key", key: "s3cret", pathKey: "s3cret", wantStatus: http.StatusOK, wantUpdates: 1},
		{name: "wrong key", key: "s3cret", pathKey: "nope", wantStatus: http.StatusForbidden},
		{name: "no key configured", key: "", pathKey: "anything", wantStatus: http.StatusForbidden},
		{name: "maintenance mode", key: "s3cret", pathKey: "s3cret", maintenance: true, wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{maintenance: tt.maintenance}
			ts := newTestServer(t, tt.key, backend)

			resp := do(t, http.MethodPost, ts.URL+"/webhook/content-update/"+tt.pathKey, "")
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if backend.updates != tt.wantUpdates {
				t.Errorf("RequestSourceUpdate calls = %d, want %d", backend.updates, tt.wantUpdates)
			}
		})
	}
}

func TestWebhook_RejectsGet(t *testing.T) {
	backend := &fakeBackend{}
	ts := newTestServer(t, "k", backend)

	resp := do(t, http.MethodGet, ts.URL+"/webhook/content-update/k", "")
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
	if backend.updates != 0 {
		t.Errorf("RequestSourceUpdate calls = %d, want 0", backend.updates)
	}
}

func TestQueueStatus(t *testing.T) {
	ts := newTestServer(t, "", &fakeBackend{})

	resp := do(t, http.MethodGet, ts.URL+"/admin/queue", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var st app.QueueStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if st.Items != 3 || st.Name != "docsync" {
		t.Errorf("status = %+v, want 3 items in docsync", st)
	}
}

func TestQueueBuild_DirMustBeDirectory(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		dir     string
		wantDir string
	}{
		{name: "default", dir: "", wantDir: ""},
		{name: "existing directory", dir: dir, wantDir: dir},
		{name: "missing directory", dir: dir + "/missing", wantDir: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{}
			ts := newTestServer(t, "", backend)

			resp := do(t, http.MethodPost, ts.URL+"/admin/queue/build?dir="+url.QueryEscape(tt.dir), "")
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d, want 200", resp.StatusCode)
			}
			if len(backend.buildDirs) != 1 || backend.buildDirs[0] != tt.wantDir {
				t.Errorf("BuildFromPath dirs = %q, want [%q]", backend.buildDirs, tt.wantDir)
			}

			var summary docsync.BuildSummary
			if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if summary.ContentBatches != 3 {
				t.Errorf("ContentBatches = %d, want 3", summary.ContentBatches)
			}
		})
	}
}

func TestQueueRun(t *testing.T) {
	tests := []struct {
		name       string
		query      string
		wantStatus int
		wantLimit  []time.Duration
	}{
		{name: "no limit", query: "", wantStatus: http.StatusOK, wantLimit: []time.Duration{0}},
		{name: "time limit", query: "?time_limit=30", wantStatus: http.StatusOK, wantLimit: []time.Duration{30 * time.Second}},
		{name: "negative", query: "?time_limit=-1", wantStatus: http.StatusBadRequest},
		{name: "not a number", query: "?time_limit=soon", wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{}
			ts := newTestServer(t, "", backend)

			resp := do(t, http.MethodPost, ts.URL+"/admin/queue/run"+tt.query, "")
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if fmt.Sprint(backend.runLimits) != fmt.Sprint(tt.wantLimit) {
				t.Errorf("RunQueue limits = %v, want %v", backend.runLimits, tt.wantLimit)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var out map[string]int
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if out["processed"] != 4 {
				t.Errorf("processed = %d, want 4", out["processed"])
			}
		})
	}
}

func TestQueueClear(t *testing.T) {
	backend := &fakeBackend{}
	ts := newTestServer(t, "", backend)

	resp := do(t, http.MethodPost, ts.URL+"/admin/queue/clear", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if backend.cleared != 1 {
		t.Errorf("ClearQueue calls = %d, want 1", backend.cleared)
	}
}

func TestForceUpdate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		want       *bool
	}{
		{name: "enable", body: `{"enabled": true}`, wantStatus: http.StatusNoContent, want: ptr(true)},
		{name: "disable", body: `{"enabled": false}`, wantStatus: http.StatusNoContent, want: ptr(false)},
		{name: "missing field", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "malformed", body: `enabled`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{}
			ts := newTestServer(t, "", backend)

			resp := do(t, http.MethodPut, ts.URL+"/admin/settings/force-update", tt.body)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			switch {
			case tt.want == nil && backend.forceUpdate != nil:
				t.Errorf("SetForceUpdate called with %v, want no call", *backend.forceUpdate)
			case tt.want != nil && (backend.forceUpdate == nil || *backend.forceUpdate != *tt.want):
				t.Errorf("SetForceUpdate = %v, want %v", backend.forceUpdate, *tt.want)
			}
		})
	}
}

func TestContentList(t *testing.T) {
	backend := &fakeBackend{records: []*docsync.ContentRecord{
		{ID: 7, ExternalID: "guide/install", Locale: "en", CoreVersion: "2.x", Title: "Install"},
	}}
	ts := newTestServer(t, "", backend)

	resp := do(t, http.MethodGet, ts.URL+"/admin/content?limit=10000&offset=5", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if backend.listArgs != [2]int{maxContentLimit, 5} {
		t.Errorf("ListContent args = %v, want [%d 5]", backend.listArgs, maxContentLimit)
	}

	var out contentList
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if out.Total != 1 || len(out.Rows) != 1 {
		t.Fatalf("content list = %+v, want one row", out)
	}
	want := contentRow{ID: 7, ExternalID: "guide/install", Locale: "en", Core: "2.x", Title: "Install"}
	if out.Rows[0] != want {
		t.Errorf("row = %+v, want %+v", out.Rows[0], want)
	}
}

func TestContentList_BadParams(t *testing.T) {
	ts := newTestServer(t, "", &fakeBackend{})

	for _, q := range []string{"?limit=0", "?limit=x", "?offset=-1"} {
		resp := do(t, http.MethodGet, ts.URL+"/admin/content"+q, "")
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("GET /admin/content%s status = %d, want 400", q, resp.StatusCode)
		}
	}
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "invalid dir", err: fmt.Errorf("%w: /nope", docsync.ErrInvalidSourceDirectory), wantStatus: http.StatusBadRequest},
		{name: "storage", err: fmt.Errorf("%w: locked", docsync.ErrStorageUnavailable), wantStatus: http.StatusServiceUnavailable},
		{name: "other", err: errors.New("boom"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, "", &fakeBackend{err: tt.err})

			resp := do(t, http.MethodPost, ts.URL+"/admin/queue/build", "")
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			var body errorBody
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if body.Error != tt.err.Error() {
				t.Errorf("error body = %q, want %q", body.Error, tt.err.Error())
			}
		})
	}
}

func TestMediaAndHealth(t *testing.T) {
	media := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, r.URL.Path)
	})
	s := New(Config{Media: media}, &fakeBackend{}, docsync.NewNopLogger())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp := do(t, http.MethodGet, ts.URL+"/media/abc.png", "")
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading media body: %v", err)
	}
	if got := string(data); got != "/abc.png" {
		t.Errorf("media handler saw path %q, want /abc.png", got)
	}

	resp = do(t, http.MethodGet, ts.URL+"/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want 200", resp.StatusCode)
	}
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	s := New(Config{Addr: "127.0.0.1:0"}, &fakeBackend{}, docsync.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func ptr[T any](v T) *T { return &v }
