package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pepper-guardian/guardian/controller"
	"github.com/pepper-guardian/guardian/controller/fault"
	"github.com/pepper-guardian/guardian/controller/modules/advisor"
	"github.com/pepper-guardian/guardian/controller/modules/soil"
	"github.com/pepper-guardian/guardian/controller/storage"
	"github.com/pepper-guardian/guardian/controller/telemetry"
)

type fakeAcquirer struct {
	mu    sync.Mutex
	calls int
	err   error
	panic bool
}

func (f *fakeAcquirer) Dispatch(_ context.Context, cfg soil.Config) (soil.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.panic {
		panic("serial driver exploded")
	}
	if f.err != nil {
		return soil.Reading{}, f.err
	}
	return soil.Reading{Temperature: 28.5, Moisture: 55, Nitrogen: 180, Phosphorus: 40, Potassium: 220, PH: 6.2, Humidity: 70}, nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (p *recordingPublisher) Publish(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, b)
	return nil
}

func (p *recordingPublisher) Close() {}

// healthyBundle always votes Healthy.
func healthyBundle() *advisor.Bundle {
	leaf := []advisor.Node{{Left: -1, Right: -1, Value: []float64{0, 1}}}
	return &advisor.Bundle{
		Forest:  &advisor.Forest{NClasses: 2, Trees: []advisor.Tree{{Nodes: leaf}}},
		Booster: &advisor.Booster{NClasses: 2, Trees: []advisor.BoostedTree{{Class: 1, Nodes: []advisor.Node{{Left: -1, Value: []float64{1}}}}}},
		SVM: &advisor.SVM{
			Kernel:    advisor.KernelLinear,
			Coef:      [][]float64{make([]float64, 6), make([]float64, 6)},
			Intercept: []float64{0, 1},
		},
		Scaler:  &advisor.Scaler{Mean: make([]float64, 6), Scale: make([]float64, 6)},
		Encoder: &advisor.LabelEncoder{Classes: []string{"Deficient", "Healthy"}},
	}
}

func newTestController(t *testing.T, acq Acquirer, bundle *advisor.Bundle, bundleErr error) (*Controller, *recordingPublisher) {
	t.Helper()
	store, err := storage.NewStore(filepath.Join(t.TempDir(), "guardian.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	metrics, err := telemetry.NewMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	pub := &recordingPublisher{}
	m, err := New(controller.New(store, metrics, pub), acq, bundle, bundleErr)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Setup(Settings{Schedule: "@every 1h", Soil: soil.DefaultConfig()}); err != nil {
		t.Fatal(err)
	}
	m.Start()
	t.Cleanup(m.Stop)
	return m, pub
}

func TestManualCycle(t *testing.T) {
	m, pub := newTestController(t, &fakeAcquirer{}, healthyBundle(), nil)

	res, err := m.Trigger(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Failure != nil || res.Reading == nil || res.Verdict == nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if !res.Verdict.Healthy() || len(res.Verdict.Votes) != 3 {
		t.Errorf("verdict %+v", res.Verdict)
	}
	if res.Trigger != Manual || res.ID == "" {
		t.Errorf("trigger %q id %q", res.Trigger, res.ID)
	}
	if pts := m.Trend(); len(pts) != 1 || pts[0].Nitrogen != 180 {
		t.Errorf("trend %+v", pts)
	}
	last, ok := m.Last()
	if !ok || last.ID != res.ID {
		t.Errorf("last %+v", last)
	}
	if len(pub.payloads) != 1 || !strings.Contains(string(pub.payloads[0]), `"consensus":"Healthy"`) {
		t.Errorf("published %q", pub.payloads)
	}
}

func TestFailedCycleKeepsTrend(t *testing.T) {
	acq := &fakeAcquirer{err: fault.Newf(fault.Protocol, "cloud", "latest sample", "channel 1 has no data yet")}
	m, _ := newTestController(t, acq, healthyBundle(), nil)

	res, err := m.Trigger(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Failure == nil || res.Failure.Kind != "protocol" || res.Reading != nil || res.Verdict != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(m.Trend()) != 0 {
		t.Error("failed cycle should not append to the trend")
	}
	found := false
	for _, l := range m.Logs() {
		if strings.Contains(l, "no data yet") {
			found = true
		}
	}
	if !found {
		t.Errorf("failure not in activity log: %v", m.Logs())
	}
}

func TestAdapterPanicBecomesProtocolFailure(t *testing.T) {
	m, _ := newTestController(t, &fakeAcquirer{panic: true}, healthyBundle(), nil)

	res, err := m.Trigger(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Failure == nil || res.Failure.Kind != "protocol" {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, err := m.Trigger(context.Background()); err != nil {
		t.Errorf("worker should survive a panic: %v", err)
	}
}

func TestInferenceDisabledStillAcquires(t *testing.T) {
	loadErr := fault.Newf(fault.Configuration, "advisor", "load svm.json", "missing")
	m, _ := newTestController(t, &fakeAcquirer{}, nil, loadErr)

	res, err := m.Trigger(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Reading == nil || res.Verdict != nil {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(res.InferenceError, "inference disabled") {
		t.Errorf("inference error %q", res.InferenceError)
	}
}

func TestQueueRejectsDuplicateSchedule(t *testing.T) {
	q := NewQueue()
	if _, err := q.Add(Scheduled); err != nil {
		t.Fatal(err)
	}
	if _, err := q.Add(Scheduled); !errors.Is(err, ErrDuplicate) {
		t.Errorf("expected duplicate rejection, got %v", err)
	}
	if _, err := q.Add(Manual); err != nil {
		t.Errorf("manual trigger should queue: %v", err)
	}
	if n := len(q.Pending()); n != 2 {
		t.Errorf("pending %d, want 2", n)
	}

	var order []string
	done := make(chan struct{})
	go func() {
		q.ProcessTasks(func(task Task) CycleResult {
			order = append(order, task.Source)
			return CycleResult{ID: task.ID}
		})
		close(done)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for len(q.Pending()) > 0 || q.Running() {
		if time.Now().After(deadline) {
			t.Fatal("queue did not drain")
		}
		time.Sleep(5 * time.Millisecond)
	}
	q.Close()
	<-done
	if len(order) != 2 || order[0] != Scheduled || order[1] != Manual {
		t.Errorf("processing order %v", order)
	}
	if _, err := q.Add(Manual); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected closed queue, got %v", err)
	}
}

func TestParseSchedule(t *testing.T) {
	now := time.Now()
	for _, spec := range []string{"@every 5s", "*/5 * * * *", "FREQ=MINUTELY;INTERVAL=5"} {
		s, err := ParseSchedule(spec)
		if err != nil {
			t.Errorf("%q: %v", spec, err)
			continue
		}
		if next := s.Next(now); !next.After(now) {
			t.Errorf("%q: next %v not after %v", spec, next, now)
		}
	}
	for _, spec := range []string{"", "every so often", "FREQ=SOMETIMES"} {
		if _, err := ParseSchedule(spec); err == nil {
			t.Errorf("%q: expected error", spec)
		}
	}
}

func TestAPI(t *testing.T) {
	m, _ := newTestController(t, &fakeAcquirer{}, healthyBundle(), nil)
	r := mux.NewRouter()
	m.LoadAPI(r, nil)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
		return rec
	}

	if rec := do("GET", "/api/soil/last", ""); rec.Code != http.StatusNotFound {
		t.Errorf("last before any cycle: %d", rec.Code)
	}

	rec := do("POST", "/api/soil/cycle", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("cycle: %d %s", rec.Code, rec.Body)
	}
	var res CycleResult
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if res.Mode != soil.ModeSimulated || res.Verdict == nil || res.Verdict.Consensus != "Healthy" {
		t.Errorf("cycle result %+v", res)
	}

	rec = do("GET", "/api/soil/trend", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"nitrogen":180`) {
		t.Errorf("trend: %d %s", rec.Code, rec.Body)
	}

	bad := `{"enable":false,"soil":{"mode":"cloud","cloud":{"channel_id":"1","mapping":{"Temperature":"field1"}}}}`
	if rec := do("PUT", "/api/soil/config", bad); rec.Code != http.StatusBadRequest {
		t.Errorf("incomplete mapping accepted: %d", rec.Code)
	}
	good := `{"enable":true,"schedule":"@every 1h","soil":{"mode":"register","register":{"port":"/dev/ttyUSB1","baud":9600,"slave_id":2,"function_code":4}}}`
	if rec := do("PUT", "/api/soil/config", good); rec.Code != http.StatusNoContent {
		t.Fatalf("put config: %d %s", rec.Code, rec.Body)
	}
	s, err := m.Get()
	if err != nil {
		t.Fatal(err)
	}
	if s.Soil.Mode != soil.ModeRegister || s.Soil.Register.SlaveID != 2 || s.ID != DefaultID {
		t.Errorf("stored settings %+v", s)
	}

	rec = do("GET", "/api/soil/status", "")
	var st statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Mode != "register" || st.Cycles != 1 || !st.InferenceEnabled || st.LastConsensus != "Healthy" {
		t.Errorf("status %+v", st)
	}

	for _, path := range []string{"/api/soil/config", "/api/soil/log", "/api/soil/queue", "/api/soil/health"} {
		if rec := do("GET", path, ""); rec.Code != http.StatusOK {
			t.Errorf("GET %s: %d", path, rec.Code)
		}
	}
}

func TestGuardProtectsMutations(t *testing.T) {
	m, _ := newTestController(t, &fakeAcquirer{}, healthyBundle(), nil)
	r := mux.NewRouter()
	m.LoadAPI(r, func(http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusUnauthorized) }
	})
	for _, c := range []struct{ method, path string }{{"PUT", "/api/soil/config"}, {"POST", "/api/soil/cycle"}} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(c.method, c.path, strings.NewReader("{}")))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: %d", c.method, c.path, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/soil/config", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET config should stay open: %d", rec.Code)
	}
}

func TestSettingsHistoryIsCapped(t *testing.T) {
	m, _ := newTestController(t, &fakeAcquirer{}, nil, nil)

	s, err := m.Get()
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= maxRevisions+5; i++ {
		s.Schedule = fmt.Sprintf("@every %dm", i)
		if err := m.CreateOrUpdate(s); err != nil {
			t.Fatalf("CreateOrUpdate: %v", err)
		}
	}
	revs, err := m.Revisions()
	if err != nil {
		t.Fatal(err)
	}
	if len(revs) != maxRevisions {
		t.Fatalf("expected %d revisions, got %d", maxRevisions, len(revs))
	}
	if got := revs[len(revs)-1].Settings.Schedule; got != "@every 25m" {
		t.Errorf("newest revision schedule = %q", got)
	}
	if got := revs[0].Settings.Schedule; got != "@every 6m" {
		t.Errorf("oldest kept revision schedule = %q", got)
	}
	for i := 1; i < len(revs); i++ {
		if revisionSeq(revs[i].ID) <= revisionSeq(revs[i-1].ID) {
			t.Errorf("revisions out of order: %s after %s", revs[i].ID, revs[i-1].ID)
		}
	}
	cur, err := m.Get()
	if err != nil || cur.Schedule != "@every 25m" {
		t.Errorf("current settings %+v, %v", cur, err)
	}

	r := mux.NewRouter()
	m.LoadAPI(r, nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/soil/config/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("history status %d", rec.Code)
	}
	var listed []Revision
	if err := json.Unmarshal(rec.Body.Bytes(), &listed); err != nil || len(listed) != maxRevisions {
		t.Errorf("history body: %d revisions, %v", len(listed), err)
	}
}

func TestConcurrentRescheduleLeavesNoScheduler(t *testing.T) {
	m, _ := newTestController(t, &fakeAcquirer{}, nil, nil)

	base, err := m.Get()
	if err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cur := base
			cur.Enable = true
			cur.Schedule = fmt.Sprintf("@every %dh", i+2)
			m.applyChanges(base, cur)
		}(i)
	}
	wg.Wait()

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return; a scheduler goroutine is still running")
	}

	m.applyChanges(base, Settings{Enable: true, Schedule: "@every 1h"})
	m.schedMu.Lock()
	defer m.schedMu.Unlock()
	if m.quit != nil {
		t.Error("scheduler restarted after Stop")
	}
}
