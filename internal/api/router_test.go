package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-scheduler/internal/api"
	"github.com/notifyhub/notification-scheduler/internal/domain"
	"github.com/notifyhub/notification-scheduler/internal/metrics"
	"github.com/notifyhub/notification-scheduler/internal/queue"
	"github.com/notifyhub/notification-scheduler/internal/repository"
	"github.com/notifyhub/notification-scheduler/internal/service"
	"github.com/notifyhub/notification-scheduler/internal/store"
)

type fakeTrigger struct {
	repo *repository.MemoryCycleRepository
	runs int
}

func (f *fakeTrigger) Trigger(ctx context.Context) domain.CycleReport {
	f.runs++
	r := domain.CycleReport{
		ID:        fmt.Sprintf("cycle-%d", f.runs),
		StartedAt: time.Date(2026, 8, 1, 0, 0, f.runs, 0, time.UTC),
		Phases:    []domain.PhaseReport{{Phase: domain.PhaseSweep}},
	}
	_ = f.repo.Save(ctx, &r)
	return r
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type testServer struct {
	handler http.Handler
	kv      *store.Memory
	lanes   *queue.LaneStore
	trigger *fakeTrigger
	pinger  *fakePinger
}

func newTestServer() *testServer {
	kv := store.NewMemory()
	lanes := queue.NewLaneStore(kv, zap.NewNop())
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	onAccepted, onRejected := m.IngestHooks()
	repo := repository.NewMemoryCycleRepository(10)

	ts := &testServer{
		kv:      kv,
		lanes:   lanes,
		trigger: &fakeTrigger{repo: repo},
		pinger:  &fakePinger{},
	}
	ts.handler = api.NewRouter(api.Deps{
		Ingest:  service.NewIngestService(lanes, zap.NewNop(), onAccepted, onRejected),
		Cycles:  ts.trigger,
		Reports: repo,
		Store:   ts.pinger,
		Metrics: reg,
	}, zap.NewNop())
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, r)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestCreateNotification(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(http.MethodPost, "/api/v1/notifications", `{"user_id":"u1","title":"hi","lane":"priority"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	var got struct {
		ID   string      `json:"id"`
		Lane domain.Lane `json:"lane"`
	}
	decode(t, rec, &got)
	if got.ID == "" || got.Lane != domain.LanePriority {
		t.Fatalf("unexpected response %+v", got)
	}
	if rec.Header().Get("X-Correlation-ID") == "" {
		t.Fatal("expected correlation id header")
	}

	depths, _ := ts.lanes.Depths(context.Background())
	if depths[domain.LanePriority] != 1 {
		t.Fatalf("expected record stored, depths=%v", depths)
	}
}

func TestCreateNotification_Errors(t *testing.T) {
	ts := newTestServer()

	tests := []struct {
		body string
		code int
	}{
		{`{"title":"no user"}`, http.StatusUnprocessableEntity},
		{`{"user_id":"u1","lane":"deferred"}`, http.StatusUnprocessableEntity},
		{`{oops`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := ts.do(http.MethodPost, "/api/v1/notifications", tt.body); rec.Code != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.body, tt.code, rec.Code)
		}
	}

	ts.kv.Failures[queue.Key(domain.LaneRegular)] = errors.New("connection refused")
	if rec := ts.do(http.MethodPost, "/api/v1/notifications", `{"user_id":"u1"}`); rec.Code != http.StatusInternalServerError {
		t.Errorf("store failure: expected 500, got %d", rec.Code)
	}
}

func TestCreateBatch(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(http.MethodPost, "/api/v1/notifications/batch",
		`{"notifications":[{"user_id":"u1"},{"title":"bad"},{"user_id":"u2","lane":"priority"}]}`)
	if rec.Code != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d: %s", rec.Code, rec.Body)
	}
	var got struct {
		Accepted int                   `json:"accepted"`
		Rejected int                   `json:"rejected"`
		Results  []domain.IngestResult `json:"results"`
	}
	decode(t, rec, &got)
	if got.Accepted != 2 || got.Rejected != 1 || len(got.Results) != 3 {
		t.Fatalf("unexpected response %+v", got)
	}
	if got.Results[1].Error == "" {
		t.Fatal("expected per-record error for index 1")
	}

	if rec := ts.do(http.MethodPost, "/api/v1/notifications/batch", `{"notifications":[]}`); rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty batch: expected 422, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodPost, "/api/v1/notifications/batch", `{"notifications":[{"user_id":"u"}]}`); rec.Code != http.StatusCreated {
		t.Fatalf("clean batch: expected 201, got %d", rec.Code)
	}
}

func TestGetLanes(t *testing.T) {
	ts := newTestServer()
	_ = ts.lanes.PushRaw(context.Background(), domain.LaneDeferred, []byte(`{"user_id":"u"}`), []byte(`{"user_id":"u"}`))

	rec := ts.do(http.MethodGet, "/api/v1/lanes", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got struct {
		Lanes map[string]int64 `json:"lanes"`
		Total int64            `json:"total"`
	}
	decode(t, rec, &got)
	if got.Lanes["deferred"] != 2 || got.Total != 2 {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

func TestCycles(t *testing.T) {
	ts := newTestServer()

	rec := ts.do(http.MethodPost, "/api/v1/cycles", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var run domain.CycleReport
	decode(t, rec, &run)
	if run.ID != "cycle-1" || ts.trigger.runs != 1 {
		t.Fatalf("unexpected run %+v", run)
	}
	ts.do(http.MethodPost, "/api/v1/cycles", "")

	rec = ts.do(http.MethodGet, "/api/v1/cycles?limit=1", "")
	var list struct {
		Data []domain.CycleReport `json:"data"`
	}
	decode(t, rec, &list)
	if len(list.Data) != 1 || list.Data[0].ID != "cycle-2" {
		t.Fatalf("expected newest cycle only, got %+v", list.Data)
	}

	if rec := ts.do(http.MethodGet, "/api/v1/cycles/cycle-1", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for known cycle, got %d", rec.Code)
	}
	if rec := ts.do(http.MethodGet, "/api/v1/cycles/nope", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown cycle, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer()

	if rec := ts.do(http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected healthy, got %d", rec.Code)
	}
	ts.pinger.err = errors.New("redis down")
	if rec := ts.do(http.MethodGet, "/health", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	ts.do(http.MethodPost, "/api/v1/notifications", `{"user_id":"u1"}`)
	rec := ts.do(http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "scheduler_ingested_total") {
		t.Fatalf("expected ingestion counter in scrape, got %d", rec.Code)
	}
}
