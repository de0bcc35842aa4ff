package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/areahq/area-engine/internal/connector"
	"github.com/areahq/area-engine/internal/connector/connectortest"
	"github.com/areahq/area-engine/internal/connector/timer"
	"github.com/areahq/area-engine/internal/evaluator"
	"github.com/areahq/area-engine/internal/health"
	"github.com/areahq/area-engine/internal/model"
	"github.com/areahq/area-engine/internal/store"
	"github.com/areahq/area-engine/internal/store/sqlite"
)

type listOnly struct {
	store.Areas
	areas []*model.Area
	err   error
}

func (l *listOnly) ListActive(context.Context) ([]*model.Area, error) { return l.areas, l.err }

type scriptedEval struct {
	mu       sync.Mutex
	calls    map[string]int
	outcomes map[string]model.Outcome
	running  map[string]int
	overlap  atomic.Bool
	delay    time.Duration
}

func newScriptedEval(outcomes map[string]model.Outcome) *scriptedEval {
	return &scriptedEval{calls: map[string]int{}, outcomes: outcomes, running: map[string]int{}}
}

func (s *scriptedEval) Evaluate(_ context.Context, a *model.Area) evaluator.Result {
	s.mu.Lock()
	s.calls[a.AreaID]++
	s.running[a.AreaID]++
	if s.running[a.AreaID] > 1 {
		s.overlap.Store(true)
	}
	out := s.outcomes[a.AreaID]
	s.mu.Unlock()

	time.Sleep(s.delay)

	s.mu.Lock()
	s.running[a.AreaID]--
	s.mu.Unlock()
	if out == "" {
		out = model.OutcomeNotTriggered
	}
	return evaluator.Result{AreaID: a.AreaID, Outcome: out}
}

func (s *scriptedEval) count(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[id]
}

func areasN(n int) []*model.Area {
	out := make([]*model.Area, n)
	for i := range out {
		out[i] = &model.Area{AreaID: fmt.Sprintf("area-%d", i), Active: true}
	}
	return out
}

func TestRunOnce_Report(t *testing.T) {
	ev := newScriptedEval(map[string]model.Outcome{
		"area-0": model.OutcomeTriggered,
		"area-1": model.OutcomeError,
	})
	s := New(&listOnly{areas: areasN(4)}, ev, zerolog.Nop(), Options{Parallelism: 2})
	defer func() { _ = s.Close() }()

	rep, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Active)
	assert.Equal(t, 1, rep.Triggered)
	assert.Equal(t, 1, rep.Errors)
	assert.Equal(t, 2, rep.NotTriggered)
	require.Len(t, rep.Results, 4)
	for i, r := range rep.Results {
		assert.Equal(t, fmt.Sprintf("area-%d", i), r.AreaID)
	}
}

func TestRunOnce_ListFailure(t *testing.T) {
	s := New(&listOnly{err: errors.New("db down")}, newScriptedEval(nil), zerolog.Nop(), Options{})
	defer func() { _ = s.Close() }()

	_, err := s.RunOnce(context.Background())
	require.EqualError(t, err, "db down")
}

func TestRunOnce_CancelledContextDoesNotHang(t *testing.T) {
	ev := newScriptedEval(nil)
	s := New(&listOnly{areas: areasN(3)}, ev, zerolog.Nop(), Options{Parallelism: 1})
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Errors)
	assert.Equal(t, 0, ev.count("area-0"))
}

func TestRunOnce_FullQueueStillEvaluatesEveryArea(t *testing.T) {
	ev := newScriptedEval(nil)
	ev.delay = 1100 * time.Millisecond
	s := New(&listOnly{areas: areasN(3)}, ev, zerolog.Nop(), Options{Parallelism: 1, QueueSize: 1})
	defer func() { _ = s.Close() }()

	rep, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Active)
	assert.Equal(t, 0, rep.Errors)
	assert.Equal(t, 3, rep.NotTriggered)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 1, ev.count(fmt.Sprintf("area-%d", i)))
	}
}

func TestRun_ImmediatePassThenTicks(t *testing.T) {
	ev := newScriptedEval(nil)
	hb := health.NewHeartbeat("scheduler", time.Minute)
	s := New(&listOnly{areas: areasN(2)}, ev, zerolog.Nop(), Options{Interval: 20 * time.Millisecond, Heartbeat: hb})
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return ev.count("area-0") >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, hb.IsHealthy())
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_SameAreaNeverOverlaps(t *testing.T) {
	ev := newScriptedEval(nil)
	ev.delay = 15 * time.Millisecond
	s := New(&listOnly{areas: areasN(6)}, ev, zerolog.Nop(), Options{Interval: 5 * time.Millisecond, Parallelism: 3})
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = s.Run(ctx); close(done) }()

	// Ad-hoc passes race the loop; passes must still serialise.
	for i := 0; i < 3; i++ {
		_, err := s.RunOnce(ctx)
		require.NoError(t, err)
	}
	cancel()
	<-done
	assert.False(t, ev.overlap.Load())
}

// recorder is an effect connector counting deliveries.
type recorder struct {
	connector.NoTriggers
	delivered atomic.Int32
}

func (r *recorder) Describe() connector.Descriptor {
	return connector.Descriptor{Name: "Recorder", Effects: []string{"record"}}
}

func (r *recorder) ExecuteEffect(context.Context, connector.EffectRequest) connector.EffectResult {
	r.delivered.Add(1)
	return connector.Succeeded("ok", nil)
}

func TestRunOnce_EndToEndWithSQLite(t *testing.T) {
	ctx := context.Background()
	st, err := sqlite.OpenStore(ctx, filepath.Join(t.TempDir(), "area.db"))
	require.NoError(t, err)
	defer func() { _ = st.Close() }()

	cat := st.Catalog()
	require.NoError(t, cat.PutService(ctx, &model.Service{Name: timer.Name, AuthType: "none"}))
	require.NoError(t, cat.PutService(ctx, &model.Service{Name: "Recorder", AuthType: "none"}))
	action := &model.Capability{Service: timer.Name, Kind: model.KindAction, Identifier: timer.EveryXMinutes, Name: "every"}
	reaction := &model.Capability{Service: "Recorder", Kind: model.KindReaction, Identifier: "record", Name: "record"}
	require.NoError(t, cat.PutCapability(ctx, action))
	require.NoError(t, cat.PutCapability(ctx, reaction))

	area, err := st.Areas().Create(ctx, &model.Area{
		UserID:       "u1",
		Name:         "every 30",
		Action:       model.Binding{CapabilityID: action.ID},
		Reaction:     model.Binding{CapabilityID: reaction.ID},
		ActionParams: map[string]any{"minutes": 30},
		Active:       true,
	})
	require.NoError(t, err)

	clock := connectortest.NewClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	rec := &recorder{}
	reg, err := connector.NewRegistry(timer.New(connectortest.Deps(clock)), rec)
	require.NoError(t, err)
	ev := evaluator.New(reg, st.Areas(), st.Executions(), zerolog.Nop(), evaluator.Options{CallTimeout: time.Second, Now: clock.Now})
	s := New(st.Areas(), ev, zerolog.Nop(), Options{Parallelism: 2, Now: clock.Now})
	defer func() { _ = s.Close() }()

	rep, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Triggered)

	got, err := st.Areas().Get(ctx, area.AreaID)
	require.NoError(t, err)
	require.NotNil(t, got.LastExecutedAt)
	assert.True(t, got.LastExecutedAt.Equal(clock.Now()))

	clock.Advance(10 * time.Minute)
	rep, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.NotTriggered)

	clock.Advance(25 * time.Minute)
	rep, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Triggered)
	assert.Equal(t, int32(2), rec.delivered.Load())

	history, err := st.Executions().List(ctx, area.AreaID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
