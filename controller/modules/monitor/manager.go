package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/pepper-guardian/guardian/controller"
	"github.com/pepper-guardian/guardian/controller/fault"
	"github.com/pepper-guardian/guardian/controller/modules/advisor"
	"github.com/pepper-guardian/guardian/controller/modules/soil"
	"github.com/pepper-guardian/guardian/controller/modules/trend"
	"github.com/pepper-guardian/guardian/controller/storage"
)

const (
	module  = "soil"
	maxLogs = 100
)

// Acquirer produces one reading for a config.
type Acquirer interface {
	Dispatch(ctx context.Context, cfg soil.Config) (soil.Reading, error)
}

// FailureView is the serialized form of an acquisition failure.
type FailureView struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// CycleResult is the outcome of one acquisition and inference cycle. A
// failed acquisition has no Reading and no Verdict.
type CycleResult struct {
	ID             string           `json:"id"`
	At             time.Time        `json:"at"`
	Trigger        string           `json:"trigger"`
	Mode           soil.Mode        `json:"mode"`
	Duration       time.Duration    `json:"duration"`
	Reading        *soil.Reading    `json:"reading,omitempty"`
	Verdict        *advisor.Verdict `json:"verdict,omitempty"`
	Failure        *FailureView     `json:"failure,omitempty"`
	InferenceError string           `json:"inference_error,omitempty"`
}

// Controller runs soil cycles and serves their results.
type Controller struct {
	c         controller.Controller
	acquirer  Acquirer
	bundle    *advisor.Bundle
	bundleErr error
	trend     *trend.Buffer
	queue     *Queue
	started   time.Time

	mu     sync.Mutex
	logs   []string
	last   *CycleResult
	cycles int
	ctx    context.Context
	cancel context.CancelFunc

	schedMu   sync.Mutex
	quit      chan struct{}
	stopped   bool
	schedules sync.WaitGroup
}

// New builds the subsystem. A nil acquirer uses the standard adapters logging
// to the activity log. A nil bundle disables inference; bundleErr explains
// why and is reported with every cycle.
func New(c controller.Controller, acquirer Acquirer, bundle *advisor.Bundle, bundleErr error) (*Controller, error) {
	for _, b := range []string{Bucket, HistoryBucket} {
		if err := c.Store().CreateBucket(b); err != nil {
			return nil, err
		}
	}
	if bundle == nil && bundleErr == nil {
		bundleErr = fmt.Errorf("no classifier bundle loaded")
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Controller{
		c:         c,
		acquirer:  acquirer,
		bundle:    bundle,
		bundleErr: bundleErr,
		trend:     trend.NewBuffer(trend.Capacity),
		queue:     NewQueue(),
		started:   time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}
	if m.acquirer == nil {
		m.acquirer = soil.NewDispatcher(m.Logf)
	}
	return m, nil
}

// Setup stores defaults unless settings already exist.
func (m *Controller) Setup(defaults Settings) error {
	_, err := m.Get()
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	defaults.ID = DefaultID
	if err := defaults.Validate(); err != nil {
		return err
	}
	return m.CreateOrUpdate(defaults)
}

// Start launches the cycle worker and the scheduler.
func (m *Controller) Start() {
	go m.queue.ProcessTasks(m.runCycle)

	s, err := m.Get()
	if err != nil {
		m.c.LogError(module, "load settings: "+err.Error())
		return
	}
	if m.bundle == nil {
		m.appendLog("INFERENCE: disabled (" + m.bundleErr.Error() + ")")
	}
	m.reschedule(&s)
}

// Stop halts the scheduler and the worker. It returns once every scheduler
// goroutine has exited.
func (m *Controller) Stop() {
	m.schedMu.Lock()
	m.stopped = true
	m.schedMu.Unlock()
	m.reschedule(nil)
	m.schedules.Wait()
	m.cancel()
	m.queue.Close()
}

// reschedule closes the running scheduler, if any, and starts one for s when
// it is enabled. A nil s only stops.
func (m *Controller) reschedule(s *Settings) {
	m.schedMu.Lock()
	defer m.schedMu.Unlock()
	if m.quit != nil {
		close(m.quit)
		m.quit = nil
	}
	if s == nil || !s.Enable || m.stopped {
		return
	}
	q := make(chan struct{})
	done, err := StartSchedule(s.Schedule, q, func() {
		if _, err := m.queue.Add(Scheduled); err != nil {
			m.appendLog(fmt.Sprintf("CYCLE: Skipped schedule (%v)", err))
		}
	})
	if err != nil {
		m.c.LogError(module, "schedule: "+err.Error())
		return
	}
	m.schedules.Add(1)
	go func() {
		<-done
		m.schedules.Done()
	}()
	m.quit = q
	m.appendLog("CYCLE: Schedule started (" + s.Schedule + ")")
}

// applyChanges restarts the scheduler when enable or schedule changed.
func (m *Controller) applyChanges(old, cur Settings) {
	if old.Enable == cur.Enable && old.Schedule == cur.Schedule {
		return
	}
	m.reschedule(&cur)
}

// Trigger enqueues a manual cycle and waits for its result.
func (m *Controller) Trigger(ctx context.Context) (CycleResult, error) {
	t, err := m.queue.Add(Manual)
	if err != nil {
		return CycleResult{}, err
	}
	select {
	case res, ok := <-t.done:
		if !ok {
			return CycleResult{}, ErrQueueClosed
		}
		return res, nil
	case <-ctx.Done():
		return CycleResult{}, ctx.Err()
	}
}

func (m *Controller) runCycle(t Task) CycleResult {
	res := CycleResult{ID: t.ID, At: time.Now(), Trigger: t.Source}
	s, err := m.Get()
	if err != nil {
		res.Failure = failureView(fault.New(fault.Configuration, module, "load settings", err))
		m.finish(&res)
		return res
	}
	res.Mode = s.Soil.Mode

	reading, err := m.acquire(s.Soil)
	res.Duration = time.Since(res.At)
	if err != nil {
		res.Failure = failureView(err)
		m.finish(&res)
		return res
	}
	res.Reading = &reading
	m.trend.Append(reading, res.At)

	if m.bundle == nil {
		res.InferenceError = "inference disabled: " + m.bundleErr.Error()
	} else if v, err := m.bundle.Advise(reading); err != nil {
		res.InferenceError = fault.Message(err)
	} else {
		res.Verdict = &v
	}
	res.Duration = time.Since(res.At)
	m.finish(&res)
	return res
}

// acquire dispatches one read. Panics become Protocol failures.
func (m *Controller) acquire(cfg soil.Config) (r soil.Reading, err error) {
	defer func() {
		if p := recover(); p != nil {
			log.Printf("soil: adapter panic: %v\n%s", p, debug.Stack())
			err = fault.Newf(fault.Protocol, cfg.Mode.String(), "acquire", "adapter panic: %v", p)
		}
	}()
	return m.acquirer.Dispatch(m.ctx, cfg)
}

func failureView(err error) *FailureView {
	return &FailureView{Kind: fault.KindOf(err).String(), Message: fault.Message(err)}
}

func (m *Controller) finish(res *CycleResult) {
	mode := res.Mode.String()
	if metrics := m.c.Metrics(); metrics != nil {
		kind := ""
		if res.Failure != nil {
			kind = res.Failure.Kind
		}
		metrics.ObserveCycle(mode, kind, res.Duration)
		if res.Reading != nil {
			for _, f := range soil.Fields {
				metrics.SetReading(f.String(), res.Reading.Get(f))
			}
		}
		if res.Verdict != nil {
			for _, v := range res.Verdict.Votes {
				metrics.ObserveVote(v.Model, v.Label)
			}
			metrics.ObserveVote("consensus", res.Verdict.Consensus)
		}
	}

	switch {
	case res.Failure != nil:
		m.appendLog(fmt.Sprintf("CYCLE: %s %s failed: %s", strings.ToUpper(mode), res.Trigger, res.Failure.Message))
		m.c.LogError(module, res.Failure.Message)
	case res.Verdict != nil:
		m.appendLog(fmt.Sprintf("CYCLE: %s reading N=%.0f P=%.0f K=%.0f pH=%.2f, consensus %s (%s %s, %s %s, %s %s)",
			strings.ToUpper(mode), res.Reading.Nitrogen, res.Reading.Phosphorus, res.Reading.Potassium, res.Reading.PH,
			res.Verdict.Consensus,
			advisor.RandomForest, res.Verdict.Label(advisor.RandomForest),
			advisor.GradientBoosting, res.Verdict.Label(advisor.GradientBoosting),
			advisor.SupportVector, res.Verdict.Label(advisor.SupportVector)))
	default:
		m.appendLog(fmt.Sprintf("CYCLE: %s reading N=%.0f P=%.0f K=%.0f pH=%.2f, %s",
			strings.ToUpper(mode), res.Reading.Nitrogen, res.Reading.Phosphorus, res.Reading.Potassium, res.Reading.PH,
			res.InferenceError))
	}

	if payload, err := json.Marshal(res); err == nil {
		if err := m.c.Publisher().Publish(payload); err != nil {
			m.appendLog("MQTT: publish failed: " + err.Error())
		}
	}

	m.mu.Lock()
	m.last = res
	m.cycles++
	m.mu.Unlock()
}

// Last returns the most recent cycle result, if any.
func (m *Controller) Last() (CycleResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return CycleResult{}, false
	}
	return *m.last, true
}

func (m *Controller) Trend() []trend.Point { return m.trend.Points() }

// appendLog adds an entry to the in-memory activity log, capped at 100 entries.
func (m *Controller) appendLog(msg string) {
	entry := fmt.Sprintf("%s %s", time.Now().Format("15:04:05"), msg)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, entry)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Logs returns a copy of the activity log.
func (m *Controller) Logs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.logs...)
}

// Logf writes adapter diagnostics to the activity log.
func (m *Controller) Logf(format string, args ...any) {
	m.appendLog(fmt.Sprintf(format, args...))
}

func (m *Controller) Get() (Settings, error) {
	var s Settings
	return s, m.c.Store().Get(Bucket, DefaultID, &s)
}

// CreateOrUpdate saves s as the current settings and records a revision.
func (m *Controller) CreateOrUpdate(s Settings) error {
	s.ID = DefaultID
	err := m.c.Store().Update(Bucket, s.ID, &s)
	if errors.Is(err, storage.ErrNotFound) {
		err = m.c.Store().Put(Bucket, s.ID, &s)
	}
	if err != nil {
		return err
	}
	return m.recordRevision(s)
}
